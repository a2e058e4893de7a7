// Package sender runs outbound Telegram calls on per-recipient queues with
// bounded retries.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/core/logger"
	"github.com/m3rciful/pairbot/core/telegram/netutil"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned for calls submitted after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned by Enqueue when the recipient's queue is saturated.
	ErrQueueFull = errors.New("telegram sender: queue full")

	errNilCall = errors.New("telegram sender: nil run function")
)

// Options controls the behaviour of the outbound dispatcher. Zero values
// pick defaults.
type Options struct {
	QueueSize    int // per shard, default 256
	Workers      int // shard count, default 4
	MaxRetries   int
	RetryBackoff time.Duration // multiplied by the attempt number
	// MaxDuration bounds the time spent on a single call, retries included.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// call is one outbound Telegram request.
type call struct {
	ctx      context.Context
	to       int64
	action   string
	endpoint string
	run      func() error
	// result is set for awaited calls.
	result chan error
}

// Dispatcher executes outbound calls. Calls are sharded by recipient and a
// shard runs its calls one at a time, so one recipient sees them in
// submission order.
type Dispatcher struct {
	opts   Options
	queues []chan call

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	failed atomic.Uint64
}

// NewDispatcher starts the shard workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, queues: make([]chan call, opts.Workers)}
	for i := range d.queues {
		q := make(chan call, opts.QueueSize)
		d.queues[i] = q
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for c := range q {
				err := d.execute(c)
				if c.result != nil {
					c.result <- err
				}
			}
		}()
	}
	return d
}

// queueFor maps a chat id onto a shard. Group chat ids are negative.
func (d *Dispatcher) queueFor(to int64) chan call {
	n := int64(len(d.queues))
	return d.queues[((to%n)+n)%n]
}

// Enqueue schedules run for the recipient without waiting. It never blocks:
// a saturated queue yields ErrQueueFull. run may be retried.
func (d *Dispatcher) Enqueue(ctx context.Context, to int64, action, endpoint string, run func() error) error {
	if run == nil {
		return errNilCall
	}
	return d.push(ctx, call{ctx: ctx, to: to, action: action, endpoint: endpoint, run: run}, false)
}

// Do schedules run and waits for its final result. Calls queued earlier for
// the same recipient complete first.
func (d *Dispatcher) Do(ctx context.Context, to int64, action, endpoint string, run func() error) error {
	if run == nil {
		return errNilCall
	}
	c := call{ctx: ctx, to: to, action: action, endpoint: endpoint, run: run, result: make(chan error, 1)}
	if err := d.push(ctx, c, true); err != nil {
		return err
	}
	select {
	case err := <-c.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) push(ctx context.Context, c call, wait bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	q := d.queueFor(c.to)
	if !wait {
		select {
		case q <- c:
			return nil
		default:
			return ErrQueueFull
		}
	}
	select {
	case q <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrorCount returns the number of calls that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failed.Load()
}

// Close stops accepting calls and drains the queues.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// retryDelay reports whether err is worth another attempt and the pause
// before it. Flood control dictates its own pause.
func (d *Dispatcher) retryDelay(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	if netutil.ShouldRetry(err) {
		return d.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

func (d *Dispatcher) execute(c call) error {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	budget, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attrs := callAttrs(c)
	logger.Debug(ctx, component, "send.start", attrs...)

	limit := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= limit; attempt++ {
		if err = c.run(); err == nil {
			logger.Debug(ctx, component, "send.success", append(attrs,
				slog.Int("attempts", attempt),
				slog.Duration("elapsed", time.Since(start)),
			)...)
			return nil
		}
		delay, retry := d.retryDelay(err, attempt)
		if !retry || attempt == limit {
			break
		}
		logger.Debug(ctx, component, "send.retry", append(attrs,
			slog.Int("attempts", attempt),
			slog.Duration("delay", delay),
			slog.String("error_kind", errorKind(err)),
		)...)
		if werr := sleepCtx(budget, delay); werr != nil {
			err = errors.Join(err, werr)
			break
		}
	}

	d.failed.Add(1)
	logger.Error(ctx, component, "send.fail", append(attrs,
		slog.String("status", "fail"),
		slog.String("err", redactToken(err)),
		slog.String("error_kind", errorKind(err)),
		slog.Duration("elapsed", time.Since(start)),
	)...)
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// callAttrs names the call. The logger adds update correlation from ctx.
func callAttrs(c call) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", c.action),
		slog.Int64("to", c.to),
	}
	if c.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", c.endpoint))
	}
	return slices.Clip(attrs)
}
