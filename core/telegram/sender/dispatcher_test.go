package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestOrderPerKey(t *testing.T) {
	d := NewDispatcher(Options{Workers: 3, QueueSize: 64})

	var (
		mu  sync.Mutex
		got = map[int64][]int{}
	)
	for i := 0; i < 20; i++ {
		for _, key := range []int64{1, 2, 5} {
			i, key := i, key
			require.NoError(t, d.Enqueue(context.Background(), key, "send.text", "sendMessage", func() error {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
				return nil
			}))
		}
	}
	var last []int
	require.NoError(t, d.Do(context.Background(), 1, "send.text", "sendMessage", func() error {
		mu.Lock()
		last = append([]int(nil), got[1]...)
		mu.Unlock()
		return nil
	}))
	// everything queued for key 1 ran before the awaited call
	assert.Len(t, last, 20)

	d.Close()
	for _, key := range []int64{1, 2, 5} {
		for i, v := range got[key] {
			assert.Equal(t, i, v, "key %d out of order", key)
		}
	}
}

func TestDoReturnsFinalError(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	defer d.Close()

	boom := errors.New("bad request")
	calls := 0
	err := d.Do(context.Background(), 7, "copy", "copyMessage", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "permanent errors are not retried")
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDoRetriesTransient(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	defer d.Close()

	calls := 0
	err := d.Do(context.Background(), 7, "send.text", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return timeoutErr{}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Zero(t, d.ErrorCount())
}

func TestRetryDelayHonoursFlood(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, RetryBackoff: time.Second})
	defer d.Close()

	delay, ok := d.retryDelay(tele.FloodError{RetryAfter: 3}, 1)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, delay)

	delay, ok = d.retryDelay(timeoutErr{}, 2)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)

	_, ok = d.retryDelay(errors.New("chat not found"), 1)
	assert.False(t, ok)
}

func TestQueueFullAndClosed(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), 1, "a", "", func() error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), 1, "b", "", func() error { return nil }))
	assert.ErrorIs(t, d.Enqueue(context.Background(), 1, "c", "", func() error { return nil }), ErrQueueFull)

	close(release)
	d.Close()
	assert.ErrorIs(t, d.Enqueue(context.Background(), 1, "d", "", func() error { return nil }), ErrQueueClosed)
	assert.ErrorIs(t, d.Do(context.Background(), 1, "e", "", func() error { return nil }), ErrQueueClosed)
}

func TestShardNegativeKey(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4})
	defer d.Close()
	// group chats have negative ids
	assert.NotNil(t, d.queueFor(-1001234567890))
	assert.Equal(t, d.queueFor(3), d.queueFor(-1))
}

func TestRedactToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:ABC-def_1/sendMessage": timeout`)
	assert.NotContains(t, redactToken(err), "ABC-def_1")
	assert.Contains(t, redactToken(err), "bot<redacted>")
	assert.Empty(t, redactToken(nil))
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"net timeout", timeoutErr{}, "timeout"},
		{"flood", tele.FloodError{RetryAfter: 2}, "flood"},
		{"blocked", tele.ErrBlockedByUser, "forbidden"},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.telegram.org"}, "dns"},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, "dial"},
		{"read", &net.OpError{Op: "read", Err: errors.New("reset")}, "io"},
		{"plain", errors.New("boom"), "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errorKind(tc.err))
		})
	}
}
