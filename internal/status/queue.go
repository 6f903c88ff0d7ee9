package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"callbridge/pkg/logger"
)

// Queue runs one call's reports on a single goroutine, in submission order,
// so the backend never sees "active" land after "completed". Each report gets
// its own timeout; the context is detached from the caller's cancellation but
// keeps its logger.
type Queue struct {
	log     *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending []func(ctx context.Context)
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func NewQueue(parent context.Context, timeout time.Duration) *Queue {
	q := &Queue{
		log:     logger.From(parent),
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit queues fn behind every earlier report. It returns false once the
// queue is closed.
func (q *Queue) Submit(fn func(ctx context.Context)) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
	q.signal()
	return true
}

// Close stops accepting reports. Already queued ones still run.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Done is closed once the queue is closed and drained.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		q.runOne(fn)
	}
}

func (q *Queue) runOne(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(logger.With(context.Background(), q.log), q.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			q.log.Error("status report panicked", "panic", p)
		}
	}()
	fn(ctx)
}
