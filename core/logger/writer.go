package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// entry is either a log line or, with a non-nil ack, a flush request.
type entry struct {
	data []byte
	ack  chan error
}

// asyncWriter moves log output off the calling goroutine. Lines reach every
// sink in the order they were written; a flush request is answered only once
// every earlier line is on its sinks.
type asyncWriter struct {
	queue chan entry
	done  chan struct{}
	sinks []*bufio.Writer

	// state guards queue against sends after Close.
	state  sync.RWMutex
	closed bool

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue: make(chan entry, 512),
		done:  make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for e := range w.queue {
		if e.ack != nil {
			e.ack <- w.flush()
			continue
		}
		w.fail(w.write(e.data))
		// flush when the burst is over
		if len(w.queue) == 0 {
			w.fail(w.flush())
		}
	}
	w.fail(w.flush())
}

// Write copies p and queues it. It blocks while the queue is full.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return w.send(entry{data: append([]byte(nil), p...)})
}

func (w *asyncWriter) send(e entry) error {
	w.state.RLock()
	defer w.state.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- e
	return nil
}

// Flush returns once everything written before the call is on the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	if err := w.send(entry{ack: ack}); err != nil {
		return w.firstErr()
	}
	return errors.Join(<-ack, w.firstErr())
}

// Close drains the queue and reports the first write error.
func (w *asyncWriter) Close() error {
	w.state.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.state.Unlock()
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) write(p []byte) error {
	for _, s := range w.sinks {
		if _, err := s.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) fail(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *asyncWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
