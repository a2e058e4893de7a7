package chat

import "sync"

const defaultThreadCapacity = 50000

// Threads remembers which relayed copy corresponds to which original so that
// replies can be threaded on the receiving side. Links are symmetric: the
// copy points back at the original as well. The oldest links are evicted
// once capacity is reached.
type Threads struct {
	mu    sync.Mutex
	links map[MessageRef]MessageRef
	order []MessageRef
	next  int
	cap   int
}

// NewThreads returns a link table holding up to capacity relayed messages.
func NewThreads(capacity int) *Threads {
	if capacity <= 0 {
		capacity = defaultThreadCapacity
	}
	return &Threads{
		links: make(map[MessageRef]MessageRef, capacity*2),
		order: make([]MessageRef, 0, capacity),
		cap:   capacity,
	}
}

// Link records that src was delivered as dst.
func (t *Threads) Link(src, dst MessageRef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.order) < t.cap {
		t.order = append(t.order, src)
	} else {
		old := t.order[t.next]
		if peer, ok := t.links[old]; ok {
			delete(t.links, peer)
		}
		delete(t.links, old)
		t.order[t.next] = src
		t.next = (t.next + 1) % t.cap
	}
	t.links[src] = dst
	t.links[dst] = src
}

// Counterpart returns the message in chat `to` linked with ref.
func (t *Threads) Counterpart(ref MessageRef, to int64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	peer, ok := t.links[ref]
	if !ok || peer.ChatID != to {
		return 0, false
	}
	return peer.MessageID, true
}

// Len reports the number of stored links.
func (t *Threads) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
