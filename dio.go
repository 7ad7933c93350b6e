// Package dio reads and writes files asynchronously through the kernel
// async I/O facilities. AsyncIO is the managed front end, one call per
// positioned read or write with a completion callback. The engine and queue
// underneath live in pkg/aio for callers that want to drive waits themselves.
package dio

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/dio/pkg/aio"
	"github.com/brickingsoft/errors"
)

// Callback observes one finished operation, n transferred bytes or err.
// Callbacks run on the package executors, not on the submitting goroutine.
type Callback func(n int, err error)

// New builds a managed instance with its own engine, queue and reaper.
// Closing it resolves everything still outstanding.
func New(options ...Option) (*AsyncIO, error) {
	opts := Options{
		Capacity: DefaultCapacity,
	}
	for _, option := range options {
		if err := option(&opts); err != nil {
			return nil, err
		}
	}
	engine, engineErr := aio.New(opts.Capacity, aio.WithDriver(opts.Driver))
	if engineErr != nil {
		return nil, engineErr
	}
	a := &AsyncIO{
		engine: engine,
		queue:  aio.NewQueue(engine),
		tasks:  make(map[*aio.Operation]Callback),
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		reaped: make(chan struct{}),
	}
	a.pool.New = func() interface{} {
		return aio.NewOperation()
	}
	go a.reap()
	return a, nil
}

// AsyncIO owns one engine, a queue in front of it and a reaper goroutine
// that surfaces completions and hands callbacks to the executors. Submits
// past the engine budget queue up and flow in as slots free.
type AsyncIO struct {
	engine   aio.Engine
	queue    *aio.Queue
	pool     sync.Pool
	mu       sync.Mutex
	tasks    map[*aio.Operation]Callback
	inflight atomic.Int64
	subs     sync.RWMutex
	closed   bool
	kick     chan struct{}
	done     chan struct{}
	reaped   chan struct{}
}

// ReadAt reads len(b) bytes from fd at offset off and calls cb when the
// read resolves. The buffer is borrowed until then.
func (a *AsyncIO) ReadAt(fd int, b []byte, off int64, cb Callback) error {
	return a.submit(false, fd, b, off, cb)
}

// WriteAt writes len(b) bytes to fd at offset off and calls cb when the
// write resolves. The buffer is borrowed until then.
func (a *AsyncIO) WriteAt(fd int, b []byte, off int64, cb Callback) error {
	return a.submit(true, fd, b, off, cb)
}

func (a *AsyncIO) submit(write bool, fd int, b []byte, off int64, cb Callback) error {
	if cb == nil {
		return errors.From(
			ErrCallbackRequired,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
	}
	a.subs.RLock()
	defer a.subs.RUnlock()
	if a.closed {
		return errors.From(
			ErrClosed,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
	}
	op := a.pool.Get().(*aio.Operation)
	var armErr error
	if write {
		armErr = op.Pwrite(fd, b, off)
	} else {
		armErr = op.Pread(fd, b, off)
	}
	if armErr != nil {
		a.pool.Put(op)
		return armErr
	}
	a.register(op, cb)
	if err := a.queue.Submit(op); err != nil {
		a.unregister(op)
		a.recycle(op)
		return err
	}
	// wake the reaper, a buffered stale kick is absorbed by its own loop
	select {
	case a.kick <- struct{}{}:
	default:
	}
	return nil
}

// Pending counts operations the engine holds in flight.
func (a *AsyncIO) Pending() int64 {
	return a.engine.Pending()
}

// Queued counts operations buffered ahead of the engine.
func (a *AsyncIO) Queued() int {
	return a.queue.Queued()
}

// TotalSubmits counts operations the engine accepted over its lifetime.
func (a *AsyncIO) TotalSubmits() uint64 {
	return a.engine.TotalSubmits()
}

// Close stops accepting work, resolves every outstanding operation with
// ErrClosed through its callback, stops the reaper and tears the engine
// down. Close does not touch the package executors.
func (a *AsyncIO) Close() error {
	a.subs.Lock()
	if a.closed {
		a.subs.Unlock()
		return errors.From(
			ErrClosed,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
	}
	a.closed = true
	a.subs.Unlock()
	close(a.done)
	<-a.reaped
	return a.engine.Close()
}

func (a *AsyncIO) register(op *aio.Operation, cb Callback) {
	a.mu.Lock()
	a.tasks[op] = cb
	a.mu.Unlock()
	a.inflight.Add(1)
}

func (a *AsyncIO) unregister(op *aio.Operation) Callback {
	a.mu.Lock()
	cb := a.tasks[op]
	delete(a.tasks, op)
	a.mu.Unlock()
	a.inflight.Add(-1)
	return cb
}

func (a *AsyncIO) recycle(op *aio.Operation) {
	if op.Reset() == nil {
		a.pool.Put(op)
	}
}

// reap drives the engine wait loop. Submitters are registered before their
// operation reaches the engine, so a wait can outrun a submit and overrun,
// the kick channel parks the loop until the submit lands.
func (a *AsyncIO) reap() {
	defer close(a.reaped)
	ops := make([]*aio.Operation, 0, a.engine.Capacity())
	for {
		if a.inflight.Load() == 0 {
			select {
			case <-a.kick:
				continue
			case <-a.done:
				a.sweep()
				return
			}
		}
		var err error
		ops, err = a.engine.Wait(ops[:0], 1)
		if err != nil {
			if aio.IsWaitOverrun(err) {
				select {
				case <-a.kick:
				case <-a.done:
					a.sweep()
					return
				}
				continue
			}
			// the engine is wedged, resolve what is registered and leave
			a.sweep()
			return
		}
		for _, op := range ops {
			a.dispatch(op)
		}
		select {
		case <-a.done:
			a.sweep()
			return
		default:
		}
	}
}

// dispatch resolves one surfaced operation, recycles it and hands the
// callback to the executors. A refused execute runs the callback inline.
func (a *AsyncIO) dispatch(op *aio.Operation) {
	cb := a.unregister(op)
	n := op.Result()
	err := op.Err()
	a.recycle(op)
	if cb == nil {
		return
	}
	if execErr := Executors().Execute(context.Background(), func() {
		cb(int(n), err)
	}); execErr != nil {
		cb(int(n), err)
	}
}

// sweep runs on the close path. It cancels whatever the kernel still holds
// and fails every registered callback, including operations that never left
// the queue.
func (a *AsyncIO) sweep() {
	_, _ = a.engine.Cancel(nil)
	a.mu.Lock()
	tasks := a.tasks
	a.tasks = make(map[*aio.Operation]Callback)
	a.mu.Unlock()
	for op, cb := range tasks {
		a.inflight.Add(-1)
		a.recycle(op)
		if cb == nil {
			continue
		}
		err := errors.From(
			ErrClosed,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
		if execErr := Executors().Execute(context.Background(), func() {
			cb(0, err)
		}); execErr != nil {
			cb(0, err)
		}
	}
}
