//go:build linux

package aio

import (
	"sync"
	"syscall"
	"unsafe"

	"github.com/brickingsoft/dio/pkg/kernel"
	"github.com/brickingsoft/dio/pkg/queue"
	"github.com/brickingsoft/dio/pkg/sys"
	"github.com/brickingsoft/errors"
	"github.com/pawelgaczynski/giouring"
)

// The uring driver leans on read, write and async cancel support plus
// registered eventfds, all settled by 5.10.
const (
	uringKernelMajor = 5
	uringKernelMinor = 10
)

func newURing(capacity int, pollable bool) (*uring, error) {
	ok, checkErr := kernel.Check(uringKernelMajor, uringKernelMinor, 0)
	if checkErr != nil || !ok {
		return nil, errors.From(
			ErrUnsupported,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSetup),
		)
	}
	ring, ringErr := giouring.CreateRing(uint32(capacity))
	if ringErr != nil {
		return nil, errors.New(
			"ring setup failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSetup),
			errors.WithWrap(ringErr),
		)
	}
	eng := &uring{
		core:  core{capacity: capacity, pollable: pollable},
		ring:  ring,
		slots: make([]uringSlot, capacity),
		free:  queue.New[uringSlot](),
		cqes:  make([]*giouring.CompletionQueueEvent, capacity),
	}
	for i := range eng.slots {
		s := &eng.slots[i]
		s.token = uint64(i) + 1
		eng.free.Enqueue(s)
	}
	if pollable {
		efd, efdErr := sys.NewEventfd()
		if efdErr == nil {
			if _, regErr := ring.RegisterEventFd(efd.FD()); regErr != nil {
				_ = efd.Close()
				efdErr = regErr
			}
		}
		if efdErr != nil {
			ring.QueueExit()
			return nil, errors.New(
				"ring setup failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpSetup),
				errors.WithWrap(efdErr),
			)
		}
		eng.efd = efd
	}
	return eng, nil
}

// uringSlot binds one in-flight operation to its cqe user data token. Zero
// stays reserved for plumbing entries like cancels, so tokens run from one.
type uringSlot struct {
	token uint64
	op    *Operation
}

type uring struct {
	core
	ring  *giouring.Ring
	efd   sys.Eventfd
	slots []uringSlot
	free  *queue.Queue[uringSlot]
	cqes  []*giouring.CompletionQueueEvent
	sqMu  sync.Mutex
}

func (eng *uring) Submit(op *Operation) error {
	if eng.closed.Load() {
		return errors.From(
			ErrClosed,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSubmit),
		)
	}
	if op == nil || !op.start() {
		return errors.From(
			ErrOperationState,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSubmit),
		)
	}
	if err := eng.reserve(); err != nil {
		op.unstart()
		return err
	}
	s := eng.free.Dequeue()
	s.op = op

	eng.sqMu.Lock()
	sqe := eng.ring.GetSQE()
	if sqe == nil {
		if _, flushErr := eng.ring.Submit(); flushErr == nil {
			sqe = eng.ring.GetSQE()
		}
	}
	if sqe == nil {
		eng.sqMu.Unlock()
		eng.undo(s, op)
		return errors.From(
			ErrBusy,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSubmit),
		)
	}
	if op.kind == kindWrite {
		sqe.PrepareWrite(op.fd, bufUintptr(op.buf), uint32(len(op.buf)), uint64(op.offset))
	} else {
		sqe.PrepareRead(op.fd, bufUintptr(op.buf), uint32(len(op.buf)), uint64(op.offset))
	}
	sqe.SetData64(s.token)
	_, submitErr := eng.ring.Submit()
	eng.sqMu.Unlock()
	if submitErr != nil {
		eng.undo(s, op)
		return errors.New(
			"submit failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSubmit),
			errors.WithWrap(submitErr),
		)
	}
	eng.submitted.Add(1)
	return nil
}

func (eng *uring) undo(s *uringSlot, op *Operation) {
	s.op = nil
	eng.free.Enqueue(s)
	eng.release()
	op.unstart()
}

func (eng *uring) Wait(ops []*Operation, min int) ([]*Operation, error) {
	if eng.closed.Load() {
		return ops, errors.From(
			ErrClosed,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpWait),
		)
	}
	m, err := eng.checkWait(min)
	if err != nil {
		return ops, err
	}
	count := 0
	for {
		n, reapErr := eng.reap(m-count > 0)
		if reapErr != nil {
			return ops, reapErr
		}
		// count resolved operations, not raw cqes, some may be plumbing acks
		before := len(ops)
		ops = eng.surface(ops, n, false)
		count += len(ops) - before
		if count >= m {
			return ops, nil
		}
	}
}

func (eng *uring) Cancel(ops []*Operation) ([]*Operation, error) {
	if eng.closed.Load() {
		return ops, errors.From(
			ErrClosed,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpCancel),
		)
	}
	// Ask the kernel to abort every in-flight request. Requests past the
	// point of no return finish on their own, the reap below resolves both
	// kinds as canceled.
	eng.sqMu.Lock()
	for i := range eng.slots {
		s := &eng.slots[i]
		if s.op == nil {
			continue
		}
		for {
			sqe := eng.ring.GetSQE()
			if sqe == nil {
				if _, flushErr := eng.ring.Submit(); flushErr != nil {
					break
				}
				continue
			}
			sqe.PrepareCancel64(s.token, 0)
			sqe.SetData64(0)
			break
		}
	}
	_, _ = eng.ring.Submit()
	eng.sqMu.Unlock()

	for eng.pending.Load() > 0 {
		n, reapErr := eng.reap(true)
		if reapErr != nil {
			return ops, reapErr
		}
		ops = eng.surface(ops, n, true)
	}
	if eng.pollable {
		if _, drainErr := eng.efd.Drain(); drainErr != nil {
			return ops, errors.New(
				"cancel failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpCancel),
				errors.WithWrap(drainErr),
			)
		}
	}
	return ops, nil
}

func (eng *uring) PollFD() (int, error) {
	if !eng.pollable {
		return -1, errors.From(
			ErrNotPollable,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpPoll),
		)
	}
	return eng.efd.FD(), nil
}

func (eng *uring) PollCompleted(ops []*Operation) ([]*Operation, error) {
	if eng.closed.Load() {
		return ops, errors.From(
			ErrClosed,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpPoll),
		)
	}
	if !eng.pollable {
		return ops, errors.From(
			ErrNotPollable,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpPoll),
		)
	}
	n, reapErr := eng.reap(false)
	if reapErr != nil {
		return ops, reapErr
	}
	ops = eng.surface(ops, n, false)
	return ops, nil
}

func (eng *uring) Close() error {
	if eng.pending.Load() > 0 {
		return errors.From(
			ErrBusy,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpClose),
		)
	}
	if !eng.closed.CompareAndSwap(false, true) {
		return errors.From(
			ErrClosed,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpClose),
		)
	}
	var err error
	if eng.pollable {
		err = eng.efd.Close()
	}
	eng.ring.QueueExit()
	if err != nil {
		return errors.New(
			"close failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpClose),
			errors.WithWrap(err),
		)
	}
	return nil
}

// reap fills cqes with whatever the completion queue holds. When block is
// set and the queue is empty it waits for at least one entry, via the
// registered eventfd on pollable engines and io_uring_enter otherwise.
func (eng *uring) reap(block bool) (int, error) {
	n := eng.ring.PeekBatchCQE(eng.cqes)
	if n > 0 || !block {
		if eng.pollable {
			if _, drainErr := eng.efd.Drain(); drainErr != nil {
				return 0, errors.New(
					"reap failed",
					errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
					errors.WithMeta(errMetaOpKey, errMetaOpWait),
					errors.WithWrap(drainErr),
				)
			}
		}
		return int(n), nil
	}
	if eng.pollable {
		for n == 0 {
			if waitErr := sys.WaitReadable(eng.efd.FD()); waitErr != nil {
				return 0, errors.New(
					"reap failed",
					errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
					errors.WithMeta(errMetaOpKey, errMetaOpWait),
					errors.WithWrap(waitErr),
				)
			}
			if _, drainErr := eng.efd.Drain(); drainErr != nil {
				return 0, errors.New(
					"reap failed",
					errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
					errors.WithMeta(errMetaOpKey, errMetaOpWait),
					errors.WithWrap(drainErr),
				)
			}
			n = eng.ring.PeekBatchCQE(eng.cqes)
		}
		return int(n), nil
	}
	for n == 0 {
		if _, waitErr := eng.ring.WaitCQEs(1, nil, nil); waitErr != nil {
			if errors.Is(waitErr, syscall.EINTR) {
				continue
			}
			return 0, errors.New(
				"reap failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpWait),
				errors.WithWrap(waitErr),
			)
		}
		n = eng.ring.PeekBatchCQE(eng.cqes)
	}
	return int(n), nil
}

// surface resolves n reaped cqes. Zero user data entries are plumbing acks
// and advance without resolving anything.
func (eng *uring) surface(ops []*Operation, n int, canceled bool) []*Operation {
	for i := 0; i < n; i++ {
		cqe := eng.cqes[i]
		if cqe.UserData == 0 {
			continue
		}
		s := &eng.slots[cqe.UserData-1]
		op := s.op
		s.op = nil
		eng.free.Enqueue(s)
		eng.release()
		if canceled {
			op.cancel()
		} else {
			op.complete(int64(cqe.Res))
			op.fire()
		}
		ops = append(ops, op)
	}
	eng.ring.CQAdvance(uint32(n))
	return ops
}

func bufUintptr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
