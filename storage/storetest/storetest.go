// Package storetest holds the behaviour every chat.Store must share. Backend
// packages call Run from their tests.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/pairbot/chat"
)

// Factory returns an empty store. The suite closes it when the subtest ends.
type Factory func(t *testing.T) chat.Store

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s chat.Store)
	}{
		{"InsertUserIsIdempotent", testInsertUser},
		{"GetRegistersUnknown", testGetRegisters},
		{"SetStatusClearsPartner", testSetStatusClearsPartner},
		{"SetStatusRejects", testSetStatusRejects},
		{"CompareAndSet", testCompareAndSet},
		{"CoupleNeedsSearcher", testCoupleNeedsSearcher},
		{"CoupleIsMutual", testCoupleMutual},
		{"CoupleOldestFirst", testCoupleOldestFirst},
		{"UncoupleLivePair", testUncoupleLive},
		{"UncoupleStalePartner", testUncoupleStale},
		{"UncoupleNotCoupled", testUncoupleNotCoupled},
		{"ResetAll", testResetAll},
		{"Counters", testCounters},
		{"ConcurrentSearch", testConcurrentSearch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func search(t *testing.T, s chat.Store, id int64) {
	t.Helper()
	require.NoError(t, s.SetStatus(context.Background(), id, chat.StatusInSearch))
}

func pair(t *testing.T, s chat.Store, a, b int64) {
	t.Helper()
	search(t, s, a)
	search(t, s, b)
	partner, ok, err := s.Couple(context.Background(), b)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a, partner)
}

func testInsertUser(t *testing.T, s chat.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertUser(ctx, 1))
	search(t, s, 1)
	require.NoError(t, s.InsertUser(ctx, 1))

	st, err := s.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusInSearch, st, "insert must not overwrite")

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testGetRegisters(t *testing.T, s chat.Store) {
	ctx := context.Background()
	u, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, chat.User{ID: 42, Status: chat.StatusIdle}, u)

	_, ok, err := s.Partner(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testSetStatusClearsPartner(t *testing.T, s chat.Store) {
	ctx := context.Background()
	pair(t, s, 1, 2)

	require.NoError(t, s.SetStatus(ctx, 1, chat.StatusPartnerLeft))
	u, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusPartnerLeft, u.Status)
	assert.False(t, u.HasPartner())
}

func testSetStatusRejects(t *testing.T, s chat.Store) {
	ctx := context.Background()
	assert.ErrorIs(t, s.SetStatus(ctx, 1, chat.StatusCoupled), chat.ErrCoupledStatus)
	assert.ErrorIs(t, s.SetStatus(ctx, 1, chat.Status("lost")), chat.ErrInvalidStatus)

	_, err := s.CompareAndSetStatus(ctx, 1, chat.StatusIdle, chat.StatusCoupled)
	assert.ErrorIs(t, err, chat.ErrCoupledStatus)
}

func testCompareAndSet(t *testing.T, s chat.Store) {
	ctx := context.Background()
	ok, err := s.CompareAndSetStatus(ctx, 7, chat.StatusIdle, chat.StatusInSearch)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSetStatus(ctx, 7, chat.StatusIdle, chat.StatusPartnerLeft)
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := s.Status(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusInSearch, st)
}

func testCoupleNeedsSearcher(t *testing.T, s chat.Store) {
	ctx := context.Background()

	// caller not in search
	search(t, s, 2)
	_, ok, err := s.Couple(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// nobody else waiting
	st, err := s.Status(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, chat.StatusInSearch, st)
	_, ok, err = s.Couple(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	st, err = s.Status(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusInSearch, st)
}

func testCoupleMutual(t *testing.T, s chat.Store) {
	ctx := context.Background()
	pair(t, s, 10, 20)

	a, err := s.Get(ctx, 10)
	require.NoError(t, err)
	b, err := s.Get(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, chat.User{ID: 10, Status: chat.StatusCoupled, PartnerID: 20}, a)
	assert.Equal(t, chat.User{ID: 20, Status: chat.StatusCoupled, PartnerID: 10}, b)

	n, err := s.CountPaired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testCoupleOldestFirst(t *testing.T, s chat.Store) {
	ctx := context.Background()
	search(t, s, 30)
	search(t, s, 10)
	search(t, s, 20)
	search(t, s, 99)

	partner, ok, err := s.Couple(ctx, 99)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(30), partner)

	search(t, s, 98)
	partner, ok, err = s.Couple(ctx, 98)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), partner)
}

func testUncoupleLive(t *testing.T, s chat.Store) {
	ctx := context.Background()
	pair(t, s, 1, 2)

	former, live, err := s.Uncouple(ctx, 1)
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, int64(2), former)

	a, err := s.Get(ctx, 1)
	require.NoError(t, err)
	b, err := s.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, chat.User{ID: 1, Status: chat.StatusIdle}, a)
	assert.Equal(t, chat.User{ID: 2, Status: chat.StatusPartnerLeft}, b)
}

func testUncoupleStale(t *testing.T, s chat.Store) {
	ctx := context.Background()
	pair(t, s, 1, 2)
	// partner moved on without dissolving the pair
	require.NoError(t, s.SetStatus(ctx, 2, chat.StatusInSearch))

	former, live, err := s.Uncouple(ctx, 1)
	require.NoError(t, err)
	assert.False(t, live)
	assert.Equal(t, int64(2), former)

	a, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, chat.User{ID: 1, Status: chat.StatusIdle}, a)
	st, err := s.Status(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusInSearch, st)
}

func testUncoupleNotCoupled(t *testing.T, s chat.Store) {
	ctx := context.Background()
	search(t, s, 5)

	former, live, err := s.Uncouple(ctx, 5)
	require.NoError(t, err)
	assert.False(t, live)
	assert.Zero(t, former)

	st, err := s.Status(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusInSearch, st)
}

func testResetAll(t *testing.T, s chat.Store) {
	ctx := context.Background()
	pair(t, s, 1, 2)
	search(t, s, 3)
	require.NoError(t, s.SetStatus(ctx, 4, chat.StatusPartnerLeft))

	require.NoError(t, s.ResetAll(ctx))
	for _, id := range []int64{1, 2, 3, 4} {
		u, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, chat.User{ID: id, Status: chat.StatusIdle}, u)
	}
	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func testCounters(t *testing.T, s chat.Store) {
	ctx := context.Background()
	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	pair(t, s, 1, 2)
	pair(t, s, 3, 4)
	require.NoError(t, s.InsertUser(ctx, 5))
	_, _, err = s.Uncouple(ctx, 3)
	require.NoError(t, err)

	n, err = s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	n, err = s.CountPaired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// testConcurrentSearch enters many users into search at once. Every pair must
// be mutual and at most one user may remain waiting.
func testConcurrentSearch(t *testing.T, s chat.Store) {
	ctx := context.Background()
	const n = 16

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := s.SetStatus(ctx, id, chat.StatusInSearch); err != nil {
				errs <- err
				return
			}
			if _, _, err := s.Couple(ctx, id); err != nil {
				errs <- err
			}
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	waiting := 0
	for i := int64(1); i <= n; i++ {
		u, err := s.Get(ctx, i)
		require.NoError(t, err)
		switch u.Status {
		case chat.StatusInSearch:
			waiting++
		case chat.StatusCoupled:
			p, err := s.Get(ctx, u.PartnerID)
			require.NoError(t, err)
			assert.Equal(t, chat.StatusCoupled, p.Status)
			assert.Equal(t, i, p.PartnerID, "pair of %d is not mutual", i)
		default:
			t.Fatalf("user %d ended in %s", i, u.Status)
		}
	}
	assert.LessOrEqual(t, waiting, 1)
}
