package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/pairbot/chat"
	"github.com/m3rciful/pairbot/storage/memory"
)

type sent struct {
	To   int64
	Text string
	// Copy is set for relayed messages.
	Copy *copied
}

type copied struct {
	From chat.MessageRef
	Opts chat.CopyOptions
	ID   int
}

// recorder is a chat.Transport that keeps every outbound message.
type recorder struct {
	mu      sync.Mutex
	out     []sent
	nextID  int
	failFor map[int64]error
}

func newRecorder() *recorder {
	return &recorder{nextID: 1000, failFor: map[int64]error{}}
}

func (r *recorder) Send(_ context.Context, to int64, text string) error {
	return r.record(sent{To: to, Text: text})
}

func (r *recorder) Notify(_ context.Context, to int64, text string) error {
	return r.record(sent{To: to, Text: text})
}

func (r *recorder) Copy(_ context.Context, to int64, msg chat.MessageRef, opts chat.CopyOptions) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[to]; err != nil {
		return 0, err
	}
	r.nextID++
	r.out = append(r.out, sent{To: to, Copy: &copied{From: msg, Opts: opts, ID: r.nextID}})
	return r.nextID, nil
}

func (r *recorder) record(s sent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[s.To]; err != nil {
		return err
	}
	r.out = append(r.out, s)
	return nil
}

// texts returns the plain messages delivered to id, in order.
func (r *recorder) texts(id int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []string
	for _, s := range r.out {
		if s.To == id && s.Copy == nil {
			res = append(res, s.Text)
		}
	}
	return res
}

func (r *recorder) copies(id int64) []copied {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []copied
	for _, s := range r.out {
		if s.To == id && s.Copy != nil {
			res = append(res, *s.Copy)
		}
	}
	return res
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = nil
}

var errBlocked = errors.New("forbidden: bot was blocked by the user")

const adminID int64 = 777

// hookedStore runs before once, right ahead of the first CompareAndSetStatus
// or Couple call that when accepts. Tests use it to slip a second request in
// between a read and the transition based on it.
type hookedStore struct {
	chat.Store
	when   func(call string, id int64, from chat.Status) bool
	before func(ctx context.Context)
}

func (s *hookedStore) trip(ctx context.Context, call string, id int64, from chat.Status) {
	if s.before == nil || !s.when(call, id, from) {
		return
	}
	run := s.before
	s.before = nil
	run(ctx)
}

func (s *hookedStore) CompareAndSetStatus(ctx context.Context, id int64, from, to chat.Status) (bool, error) {
	s.trip(ctx, "cas", id, from)
	return s.Store.CompareAndSetStatus(ctx, id, from, to)
}

func (s *hookedStore) Couple(ctx context.Context, id int64) (int64, bool, error) {
	s.trip(ctx, "couple", id, "")
	return s.Store.Couple(ctx, id)
}

type fixture struct {
	store  *memory.Store
	hooks  *hookedStore
	engine *chat.Engine
	tr     *recorder
	d      *chat.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	hooks := &hookedStore{Store: store}
	engine := chat.NewEngine(hooks)
	tr := newRecorder()
	return &fixture{
		store:  store,
		hooks:  hooks,
		engine: engine,
		tr:     tr,
		d: chat.NewDispatcher(engine, tr, chat.DispatcherOptions{
			AdminID: adminID,
			Threads: chat.NewThreads(16),
		}),
	}
}

func (f *fixture) command(t *testing.T, id int64, cmd string) {
	t.Helper()
	require.NoError(t, f.d.Handle(context.Background(), chat.Event{
		Kind:     chat.EventCommand,
		Command:  cmd,
		SenderID: id,
		ChatID:   id,
	}))
}

func (f *fixture) content(t *testing.T, id int64, msgID, replyTo int) error {
	t.Helper()
	return f.d.Handle(context.Background(), chat.Event{
		Kind:      chat.EventContent,
		SenderID:  id,
		ChatID:    id,
		MessageID: msgID,
		ReplyTo:   replyTo,
	})
}

func (f *fixture) user(t *testing.T, id int64) chat.User {
	t.Helper()
	u, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

// interleave runs fn right before the first store transition of id that
// matches call and from. from is ignored for couple.
func (f *fixture) interleave(call string, id int64, from chat.Status, fn func()) {
	f.hooks.when = func(c string, uid int64, st chat.Status) bool {
		return c == call && uid == id && (call == "couple" || st == from)
	}
	f.hooks.before = func(context.Context) { fn() }
}

// pair puts a and b into a chat, a searching first.
func (f *fixture) pair(t *testing.T, a, b int64) {
	t.Helper()
	f.command(t, a, chat.CmdChat)
	f.command(t, b, chat.CmdChat)
	require.Equal(t, chat.User{ID: a, Status: chat.StatusCoupled, PartnerID: b}, f.user(t, a))
	f.tr.reset()
}
