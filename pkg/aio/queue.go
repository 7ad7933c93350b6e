package aio

import (
	"sync"

	"github.com/brickingsoft/errors"
	"github.com/gammazero/deque"
)

// OpFactory builds an operation at the moment a slot frees up, so buffers
// and descriptors can be acquired late. The queue calls it at most once.
type OpFactory func() *Operation

// NewQueue wraps engine with an unbounded submission front end.
func NewQueue(engine Engine) *Queue {
	return &Queue{engine: engine}
}

// Queue feeds an engine while respecting its budget. Submissions past the
// budget wait in a FIFO and flow in as completions free slots, preserving
// submission order. The refill rides on the completion handler, so whoever
// surfaces completions pumps the queue.
type Queue struct {
	engine  Engine
	mu      sync.Mutex
	fifo    deque.Deque[OpFactory]
	failure error
}

// Submit hands op to the engine now if a slot is open, otherwise holds it.
func (q *Queue) Submit(op *Operation) error {
	if op == nil {
		return errors.From(
			ErrOperationState,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSubmit),
		)
	}
	return q.SubmitFunc(func() *Operation { return op })
}

// SubmitFunc queues fn to build and submit an operation once room exists.
func (q *Queue) SubmitFunc(fn OpFactory) error {
	if fn == nil {
		return errors.From(
			ErrOperationState,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSubmit),
		)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failure != nil {
		return q.failure
	}
	q.fifo.PushBack(fn)
	return q.pump()
}

// Queued counts submissions still waiting for a slot.
func (q *Queue) Queued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fifo.Len()
}

// pump moves queued submissions into the engine while room remains. Called
// with mu held.
func (q *Queue) pump() error {
	for q.fifo.Len() > 0 && q.engine.Pending() < int64(q.engine.Capacity()) {
		fn := q.fifo.PopFront()
		op := fn()
		if op == nil {
			continue
		}
		prev := op.handler
		op.handler = q.interpose(prev)
		if err := q.engine.Submit(op); err != nil {
			op.handler = prev
			if IsCapacity(err) {
				// Lost a slot race against a direct submitter. Hold the
				// built operation for the next completion.
				held := op
				q.fifo.PushFront(func() *Operation { return held })
				return nil
			}
			return err
		}
	}
	return nil
}

// interpose chains the refill in front of the caller's handler. Refilling
// first keeps slots from sitting idle while the handler runs.
func (q *Queue) interpose(prev Handler) Handler {
	return func(op *Operation) {
		q.refill()
		if prev != nil {
			prev(op)
		}
	}
}

// refill runs on the completion path. A submission failure here has no
// caller to land on, so it parks as a sticky failure returned by the next
// Submit or SubmitFunc.
func (q *Queue) refill() {
	q.mu.Lock()
	if err := q.pump(); err != nil && q.failure == nil {
		q.failure = err
	}
	q.mu.Unlock()
}
