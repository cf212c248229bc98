package engine

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("pass queue closed")

// job is one unit of work run on the pass worker.
type job struct {
	reason string
	run    func(ctx context.Context) error
	result chan<- error
}

// passQueue feeds a single worker goroutine from a bounded queue, so no two
// jobs ever run at the same time.
type passQueue struct {
	mu     sync.RWMutex
	queue  chan job
	closed bool
	wg     sync.WaitGroup
}

// newPassQueue starts the worker. depth is the number of jobs that may wait
// behind the running one.
func newPassQueue(ctx context.Context, depth int, fn func(context.Context, job) error) *passQueue {
	if depth < 1 {
		depth = 1
	}
	q := &passQueue{queue: make(chan job, depth)}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(ctx, fn)
	}()
	return q
}

func (q *passQueue) run(ctx context.Context, fn func(context.Context, job) error) {
	for {
		select {
		case j, ok := <-q.queue:
			if !ok {
				return
			}
			err := fn(ctx, j)
			if j.result != nil {
				j.result <- err
			}
		case <-ctx.Done():
			return
		}
	}
}

// TrySubmit enqueues j without blocking. It returns false when the queue is
// full, which coalesces the request into the one already waiting.
func (q *passQueue) TrySubmit(j job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.queue <- j:
		return true
	default:
		return false
	}
}

// Do enqueues j, waiting for room, then waits for it to finish.
func (q *passQueue) Do(ctx context.Context, j job) error {
	res := make(chan error, 1)
	j.result = res
	if err := q.submit(ctx, j); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *passQueue) submit(ctx context.Context, j job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errQueueClosed
	}
	select {
	case q.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain closes the queue and waits for the worker to finish what is queued.
func (q *passQueue) Drain() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Len returns how many jobs are waiting.
func (q *passQueue) Len() int {
	return len(q.queue)
}

// Cap returns the queue depth.
func (q *passQueue) Cap() int {
	return cap(q.queue)
}
