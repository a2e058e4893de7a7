package redis_test

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/pairbot/chat"
	"github.com/m3rciful/pairbot/storage/redis"
	"github.com/m3rciful/pairbot/storage/storetest"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) chat.Store {
		_, client := newClient(t)
		return redis.New(client, "")
	})
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := redis.Open(context.Background(), redis.Options{Addr: mr.Addr(), Prefix: "t:"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.InsertUser(context.Background(), 9))
	assert.True(t, mr.Exists("t:user:9"))
	members, err := mr.Members("t:users")
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, members)
}

func TestOpenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := redis.Open(context.Background(), redis.Options{Addr: addr})
	assert.Error(t, err)
}

func TestPrefixesAreIsolated(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()
	a := redis.New(client, "a:")
	b := redis.New(client, "b:")

	require.NoError(t, a.SetStatus(ctx, 1, chat.StatusInSearch))
	require.NoError(t, b.SetStatus(ctx, 2, chat.StatusInSearch))

	_, ok, err := b.Couple(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok, "searchers of another prefix must not match")

	n, err := a.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSearchIndexFollowsStatus(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	s := redis.New(client, "")

	require.NoError(t, s.SetStatus(ctx, 1, chat.StatusInSearch))
	require.NoError(t, s.SetStatus(ctx, 2, chat.StatusInSearch))
	members, err := mr.ZMembers(redis.DefaultPrefix + "searching")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, members)

	require.NoError(t, s.SetStatus(ctx, 1, chat.StatusIdle))
	members, err = mr.ZMembers(redis.DefaultPrefix + "searching")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, members)
}

func TestDefaultKeysShareHashTag(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	s := redis.New(client, "")

	require.NoError(t, s.SetStatus(ctx, 1, chat.StatusInSearch))
	require.NoError(t, s.SetStatus(ctx, 2, chat.StatusInSearch))
	_, matched, err := s.Couple(ctx, 2)
	require.NoError(t, err)
	require.True(t, matched)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "{pairbot}:"), k)
	}
}
