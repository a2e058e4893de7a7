// Package memory keeps chat users in process memory. State is lost on
// restart, which matches the reset-on-start contract of the bot.
package memory

import (
	"context"
	"sync"

	"github.com/m3rciful/pairbot/chat"
)

type record struct {
	status  chat.Status
	partner int64
	// since orders searchers; smaller waits longer.
	since uint64
}

// Store is a chat.Store guarded by a single mutex.
type Store struct {
	mu    sync.Mutex
	users map[int64]*record
	seq   uint64
}

var _ chat.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{users: make(map[int64]*record)}
}

// get returns the record of id, creating it when absent. Callers hold mu.
func (s *Store) get(id int64) *record {
	r, ok := s.users[id]
	if !ok {
		r = &record{status: chat.StatusIdle}
		s.users[id] = r
	}
	return r
}

func (s *Store) set(r *record, st chat.Status) {
	r.status = st
	r.partner = 0
	r.since = 0
	if st == chat.StatusInSearch {
		s.seq++
		r.since = s.seq
	}
}

func (s *Store) InsertUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(id)
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (chat.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(id)
	return chat.User{ID: id, Status: r.status, PartnerID: r.partner}, nil
}

func (s *Store) Status(ctx context.Context, id int64) (chat.Status, error) {
	u, err := s.Get(ctx, id)
	return u.Status, err
}

func (s *Store) Partner(ctx context.Context, id int64) (int64, bool, error) {
	u, err := s.Get(ctx, id)
	return u.PartnerID, u.HasPartner(), err
}

func (s *Store) SetStatus(_ context.Context, id int64, st chat.Status) error {
	if err := chat.CheckSettable(st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(s.get(id), st)
	return nil
}

func (s *Store) CompareAndSetStatus(_ context.Context, id int64, from, to chat.Status) (bool, error) {
	if err := chat.CheckSettable(to); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(id)
	if r.status != from {
		return false, nil
	}
	s.set(r, to)
	return true, nil
}

func (s *Store) Couple(_ context.Context, id int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	me := s.get(id)
	if me.status != chat.StatusInSearch {
		return 0, false, nil
	}
	var (
		best   int64
		bestAt uint64
	)
	for uid, r := range s.users {
		if uid == id || r.status != chat.StatusInSearch {
			continue
		}
		if best == 0 || r.since < bestAt || (r.since == bestAt && uid < best) {
			best, bestAt = uid, r.since
		}
	}
	if best == 0 {
		return 0, false, nil
	}
	other := s.users[best]
	me.status, me.partner, me.since = chat.StatusCoupled, best, 0
	other.status, other.partner, other.since = chat.StatusCoupled, id, 0
	return best, true, nil
}

func (s *Store) Uncouple(_ context.Context, id int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	me := s.get(id)
	if me.status != chat.StatusCoupled {
		return 0, false, nil
	}
	partner := me.partner
	s.set(me, chat.StatusIdle)
	if partner == 0 {
		return 0, false, nil
	}
	other, ok := s.users[partner]
	if !ok || other.status != chat.StatusCoupled || other.partner != id {
		return partner, false, nil
	}
	s.set(other, chat.StatusPartnerLeft)
	return partner, true, nil
}

func (s *Store) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.users {
		s.set(r, chat.StatusIdle)
	}
	return nil
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *Store) CountPaired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.users {
		if r.status == chat.StatusCoupled {
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }
