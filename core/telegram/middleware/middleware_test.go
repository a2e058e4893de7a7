package middleware

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/core/keylock"
	"github.com/m3rciful/pairbot/core/logger"
	tghelpers "github.com/m3rciful/pairbot/core/telegram/helpers"
	"github.com/m3rciful/pairbot/core/telegram/sender"
)

func newBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b
}

func messageFrom(b *tele.Bot, updateID int, userID int64) tele.Context {
	return b.NewContext(tele.Update{
		ID: updateID,
		Message: &tele.Message{
			ID:     updateID,
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   "hi",
		},
	})
}

func TestSerializeSameSender(t *testing.T) {
	b := newBot(t)
	var (
		active  atomic.Int32
		overlap atomic.Bool
	)
	h := SerializeMiddleware(keylock.New())(func(c tele.Context) error {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, h(messageFrom(b, id, 1)))
		}(i)
	}
	wg.Wait()
	assert.False(t, overlap.Load())
}

func TestSerializeDistinctSenders(t *testing.T) {
	b := newBot(t)
	release := make(chan struct{})
	entered := make(chan int64, 2)
	h := SerializeMiddleware(nil)(func(c tele.Context) error {
		entered <- c.Sender().ID
		<-release
		return nil
	})

	go func() { _ = h(messageFrom(b, 1, 1)) }()
	go func() { _ = h(messageFrom(b, 2, 2)) }()

	// both run at once; a shared lock would block the second
	got := map[int64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-entered:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("distinct senders were serialized")
		}
	}
	close(release)
	assert.Equal(t, map[int64]bool{1: true, 2: true}, got)
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	b := newBot(t)
	h := RecoverMiddleware(func(c tele.Context) error {
		panic("boom")
	})
	err := h(messageFrom(b, 1, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLoggerKeepsContextAndCounters(t *testing.T) {
	b := newBot(t)
	c := messageFrom(b, 10, 5)
	bot := &countingBot{}
	disp := sender.NewDispatcher(sender.Options{Workers: 1})
	defer disp.Close()
	out := tghelpers.NewOutbox(bot, disp)

	h := LoggerMiddleware(MessageMetricsMiddleware(LoggerMiddleware(func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		return out.SendText(ctx, 5, "pong")
	})))
	require.NoError(t, h(c))

	msgs, copies := GetCounters(c)
	assert.Equal(t, 1, msgs)
	assert.Zero(t, copies)
	assert.Equal(t, "10:5:5", logger.RIDFrom(tghelpers.BuildContext(c)))
}

func TestSeenUpdates(t *testing.T) {
	s := &seenUpdates{ttl: time.Second, seen: map[int]time.Time{}}
	now := time.Now()
	assert.True(t, s.firstTime(1, now))
	assert.False(t, s.firstTime(1, now.Add(500*time.Millisecond)))
	assert.True(t, s.firstTime(2, now))
	// expired entries are forgotten
	assert.True(t, s.firstTime(1, now.Add(2*time.Second)))
}

type countingBot struct{ n atomic.Int32 }

func (b *countingBot) Send(tele.Recipient, interface{}, ...interface{}) (*tele.Message, error) {
	b.n.Add(1)
	return &tele.Message{}, nil
}

func (b *countingBot) Copy(tele.Recipient, tele.Editable, ...interface{}) (*tele.Message, error) {
	return &tele.Message{}, nil
}

func TestWithAdminCheck(t *testing.T) {
	b := newBot(t)
	var handled, rejected []int64
	h := func(c tele.Context) error {
		handled = append(handled, c.Sender().ID)
		return nil
	}
	opts := AdminOptions{AdminID: 7, OnReject: func(c tele.Context) error {
		rejected = append(rejected, c.Sender().ID)
		return nil
	}}

	guarded := WithAdminCheck(opts, true, h)
	require.NoError(t, guarded(messageFrom(b, 1, 7)))
	require.NoError(t, guarded(messageFrom(b, 2, 8)))
	assert.Equal(t, []int64{7}, handled)
	assert.Equal(t, []int64{8}, rejected)

	// public commands are not wrapped
	require.NoError(t, WithAdminCheck(opts, false, h)(messageFrom(b, 3, 8)))
	assert.Equal(t, []int64{7, 8}, handled)

	// without an admin nobody passes
	handled = nil
	locked := WithAdminCheck(AdminOptions{}, true, h)
	require.NoError(t, locked(messageFrom(b, 4, 7)))
	require.NoError(t, locked(messageFrom(b, 5, 0)))
	assert.Empty(t, handled)
}
