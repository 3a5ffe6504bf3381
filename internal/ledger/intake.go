package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/relves/landreg/pkg/registry"
)

// submission is one accepted transaction on its way to finalization.
type submission struct {
	tx      *registry.Transaction
	raw     []byte // canonical signed bytes
	receipt registry.Receipt
}

// intakeQueue batches accepted submissions by size and age before handing
// them to the engine. Add never waits for finality; it may block only on
// channel backpressure when the engine is behind.
type intakeQueue struct {
	maxSize int
	maxAge  time.Duration
	out     chan []submission

	mu     sync.Mutex
	items  []submission
	timer  *time.Timer
	closed bool
}

func newIntakeQueue(maxAge time.Duration, maxSize, depth int) *intakeQueue {
	return &intakeQueue{
		maxSize: maxSize,
		maxAge:  maxAge,
		out:     make(chan []submission, depth),
		items:   make([]submission, 0, maxSize),
	}
}

// Add accepts a submission for finalization. It blocks only on channel
// backpressure when a full batch cannot be handed to the engine.
func (q *intakeQueue) Add(ctx context.Context, s submission) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return registry.NewError(registry.KindBackend, "ledger intake is closed")
	}

	q.items = append(q.items, s)

	if len(q.items) == 1 && q.maxAge > 0 {
		q.timer = time.AfterFunc(q.maxAge, q.flush)
	}

	if len(q.items) >= q.maxSize {
		if q.timer != nil {
			q.timer.Stop()
		}
		batch := q.items
		q.items = make([]submission, 0, q.maxSize)
		q.mu.Unlock()

		select {
		case q.out <- batch:
			return nil
		case <-ctx.Done():
			// Put back the other callers' submissions but not this
			// one, so the returned error truthfully means the caller's
			// transaction was never accepted.
			q.mu.Lock()
			q.items = append(batch[:len(batch)-1], q.items...)
			if len(q.items) > 0 && q.maxAge > 0 {
				q.timer = time.AfterFunc(q.maxAge, q.flush)
			}
			q.mu.Unlock()
			return registry.WrapError(registry.KindBackend, "ledger intake congested", ctx.Err())
		}
	}

	q.mu.Unlock()
	return nil
}

func (q *intakeQueue) flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.items) == 0 {
		return
	}
	select {
	case q.out <- q.items:
		q.items = make([]submission, 0, q.maxSize)
	default:
		// The engine is behind and the channel is full. Parking this
		// goroutine on the send would strand the batch, so keep it and
		// try again after another interval.
		q.timer = time.AfterFunc(q.maxAge, q.flush)
	}
}

// Batches returns the channel the engine drains.
func (q *intakeQueue) Batches() <-chan []submission {
	return q.out
}

// drain closes intake and returns everything still pending, both batches
// already handed to the channel and items awaiting a flush, oldest first.
func (q *intakeQueue) drain() []submission {
	q.mu.Lock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
	}
	tail := q.items
	q.items = nil
	q.mu.Unlock()

	var pending []submission
	for {
		select {
		case batch := <-q.out:
			pending = append(pending, batch...)
		default:
			return append(pending, tail...)
		}
	}
}

// Close rejects further submissions and hands any pending batch to the
// engine. The batch channel itself stays open; the engine loop terminates on
// context cancellation after draining. Returns the number of submissions
// that could not be handed over.
func (q *intakeQueue) Close() int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
	}
	batch := q.items
	q.items = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	select {
	case q.out <- batch:
		return 0
	default:
		return len(batch)
	}
}
