//go:build linux

package aio

import (
	"syscall"
	"unsafe"

	"github.com/brickingsoft/dio/pkg/libaio"
	"github.com/brickingsoft/dio/pkg/queue"
	"github.com/brickingsoft/dio/pkg/sys"
	"github.com/brickingsoft/errors"
)

func newNative(capacity int, pollable bool) (*native, error) {
	ctx, setupErr := libaio.Setup(uint32(capacity))
	if setupErr != nil {
		return nil, errors.New(
			"io context setup failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSetup),
			errors.WithWrap(setupErr),
		)
	}
	eng := &native{
		core:   core{capacity: capacity, pollable: pollable},
		ctx:    ctx,
		slots:  make([]nativeSlot, capacity),
		free:   queue.New[nativeSlot](),
		events: make([]libaio.IOEvent, capacity),
	}
	for i := range eng.slots {
		s := &eng.slots[i]
		s.index = uint64(i)
		s.cbv[0] = &s.iocb
		eng.free.Enqueue(s)
	}
	if pollable {
		efd, efdErr := sys.NewEventfd()
		if efdErr != nil {
			_ = libaio.Destroy(ctx)
			return nil, errors.New(
				"io context setup failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpSetup),
				errors.WithWrap(efdErr),
			)
		}
		eng.efd = efd
	}
	return eng, nil
}

// nativeSlot binds one in-flight operation to its control block. The iocb
// and the single entry submit vector live for the engine lifetime, so the
// submit path allocates nothing.
type nativeSlot struct {
	index uint64
	op    *Operation
	iocb  libaio.IOCB
	cbv   [1]*libaio.IOCB
}

// native drives the kernel io_setup interface. The iocb Data field carries
// the slot index, correlating each io_event back to its operation.
type native struct {
	core
	ctx    libaio.Context
	efd    sys.Eventfd
	slots  []nativeSlot
	free   *queue.Queue[nativeSlot]
	events []libaio.IOEvent
}

func (eng *native) Submit(op *Operation) error {
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
	s.iocb = libaio.IOCB{
		Data:   s.index,
		OpCode: libaio.CmdPread,
		FD:     int32(op.fd),
		Buf:    bufPointer(op.buf),
		Bytes:  uint64(len(op.buf)),
		Offset: op.offset,
	}
	if op.kind == kindWrite {
		s.iocb.OpCode = libaio.CmdPwrite
	}
	if eng.pollable {
		s.iocb.Flags = libaio.FlagResfd
		s.iocb.ResFD = int32(eng.efd.FD())
	}
	n, submitErr := libaio.Submit(eng.ctx, s.cbv[:])
	if submitErr != nil || n != 1 {
		s.op = nil
		eng.free.Enqueue(s)
		eng.release()
		op.unstart()
		if submitErr == nil {
			submitErr = syscall.EAGAIN
		}
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

func (eng *native) Wait(ops []*Operation, min int) ([]*Operation, error) {
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
		want := m - count
		if want < 0 {
			want = 0
		}
		n, reapErr := eng.reap(want)
		if reapErr != nil {
			return ops, reapErr
		}
		for i := 0; i < n; i++ {
			ops = append(ops, eng.surface(&eng.events[i], false))
		}
		count += n
		if count >= m {
			return ops, nil
		}
	}
}

func (eng *native) Cancel(ops []*Operation) ([]*Operation, error) {
	if eng.closed.Load() {
		return ops, errors.From(
			ErrClosed,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpCancel),
		)
	}
	// File I/O past io_submit cannot be aborted, so ride each request out
	// and resolve it as canceled.
	for eng.pending.Load() > 0 {
		n, reapErr := eng.reap(1)
		if reapErr != nil {
			return ops, reapErr
		}
		for i := 0; i < n; i++ {
			ops = append(ops, eng.surface(&eng.events[i], true))
		}
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

func (eng *native) PollFD() (int, error) {
	if !eng.pollable {
		return -1, errors.From(
			ErrNotPollable,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpPoll),
		)
	}
	return eng.efd.FD(), nil
}

func (eng *native) PollCompleted(ops []*Operation) ([]*Operation, error) {
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
	n, reapErr := eng.reap(0)
	if reapErr != nil {
		return ops, reapErr
	}
	for i := 0; i < n; i++ {
		ops = append(ops, eng.surface(&eng.events[i], false))
	}
	return ops, nil
}

func (eng *native) Close() error {
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
	err := libaio.Destroy(eng.ctx)
	if eng.pollable {
		if closeErr := eng.efd.Close(); err == nil {
			err = closeErr
		}
	}
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

// reap pulls up to cap(events) completions. want zero polls, otherwise the
// call blocks until at least one event is reapable. The caller loops to
// honor larger minimums.
func (eng *native) reap(want int) (int, error) {
	if !eng.pollable {
		var ts *syscall.Timespec
		if want == 0 {
			ts = &zeroTimespec
		}
		n, err := libaio.GetEvents(eng.ctx, want, eng.events, ts)
		if err != nil {
			return 0, errors.New(
				"reap failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpWait),
				errors.WithWrap(err),
			)
		}
		return n, nil
	}
	// Pollable engines keep the eventfd counter and the completion queue in
	// step: consume ticks first, then reap without blocking, and fall back
	// to polling the eventfd when a minimum is owed.
	for {
		if _, drainErr := eng.efd.Drain(); drainErr != nil {
			return 0, errors.New(
				"reap failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpWait),
				errors.WithWrap(drainErr),
			)
		}
		n, err := libaio.GetEvents(eng.ctx, 0, eng.events, &zeroTimespec)
		if err != nil {
			return 0, errors.New(
				"reap failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpWait),
				errors.WithWrap(err),
			)
		}
		if n > 0 || want == 0 {
			return n, nil
		}
		if waitErr := sys.WaitReadable(eng.efd.FD()); waitErr != nil {
			return 0, errors.New(
				"reap failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpWait),
				errors.WithWrap(waitErr),
			)
		}
	}
}

// surface resolves the slot behind one io_event. The slot and budget free
// up before the operation resolves, so a handler driven refill finds room.
func (eng *native) surface(ev *libaio.IOEvent, canceled bool) *Operation {
	s := &eng.slots[ev.Data]
	op := s.op
	s.op = nil
	eng.free.Enqueue(s)
	eng.release()
	if canceled {
		op.cancel()
		return op
	}
	op.complete(ev.Result)
	op.fire()
	return op
}

var zeroTimespec syscall.Timespec

func bufPointer(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}
