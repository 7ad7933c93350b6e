package aio

import (
	"os"
	"sync/atomic"
	"syscall"

	"github.com/brickingsoft/errors"
)

// State is the lifecycle position of an Operation.
type State int64

const (
	Uninitialized State = iota
	Initialized
	Pending
	Completed
	Canceled
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Canceled:
		return "canceled"
	default:
		return "uninitialized"
	}
}

const (
	kindRead uint8 = iota
	kindWrite
)

// Handler observes one operation resolving with a result. The surfacing
// goroutine invokes it synchronously, canceled operations never do.
type Handler func(op *Operation)

func NewOperation() *Operation {
	return &Operation{fd: -1}
}

// Operation describes one positioned read or write and carries its state
// from armed through pending to resolved. The zero value is usable. An
// operation belongs to the engine between Submit and the Wait, Cancel or
// PollCompleted call that surfaces it, and must not be touched meanwhile.
type Operation struct {
	state   atomic.Int64
	kind    uint8
	fd      int
	buf     []byte
	offset  int64
	result  int64
	handler Handler
}

// Pread arms the operation to read len(b) bytes from fd at offset off.
func (op *Operation) Pread(fd int, b []byte, off int64) error {
	return op.arm(kindRead, fd, b, off)
}

// Pwrite arms the operation to write len(b) bytes to fd at offset off.
func (op *Operation) Pwrite(fd int, b []byte, off int64) error {
	return op.arm(kindWrite, fd, b, off)
}

func (op *Operation) arm(kind uint8, fd int, b []byte, off int64) error {
	if fd < 0 || off < 0 {
		return errors.New(
			"bad fd or offset",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
	}
	if !op.state.CompareAndSwap(int64(Uninitialized), int64(Initialized)) {
		return errors.From(
			ErrOperationState,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
	}
	op.kind = kind
	op.fd = fd
	op.buf = b
	op.offset = off
	op.result = 0
	return nil
}

// WithHandler
// attaches a completion observer. Attach before Submit, the engine reads it
// while the operation is in flight.
func (op *Operation) WithHandler(handler Handler) *Operation {
	op.handler = handler
	return op
}

func (op *Operation) State() State {
	return State(op.state.Load())
}

func (op *Operation) FD() int {
	return op.fd
}

// Size is the length of the armed buffer.
func (op *Operation) Size() int {
	return len(op.buf)
}

func (op *Operation) Offset() int64 {
	return op.offset
}

// Result is the signed outcome of a completed operation, a transferred byte
// count or a negated errno. Reading it in any other state is a caller bug
// and panics.
func (op *Operation) Result() int64 {
	if op.State() != Completed {
		panic("aio: result of an unresolved operation")
	}
	return op.result
}

// Err maps a negative result onto the matching errno. Like Result it only
// applies to completed operations.
func (op *Operation) Err() error {
	if op.State() != Completed {
		panic("aio: error of an unresolved operation")
	}
	if op.result < 0 {
		return os.NewSyscallError(op.name(), syscall.Errno(-op.result))
	}
	return nil
}

// Reset returns a resolved or armed operation to Uninitialized so it can be
// armed again. The handler is cleared too. Resetting an in-flight operation
// fails.
func (op *Operation) Reset() error {
	if op.State() == Pending {
		return errors.From(
			ErrOperationState,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
	}
	op.kind = kindRead
	op.fd = -1
	op.buf = nil
	op.offset = 0
	op.result = 0
	op.handler = nil
	op.state.Store(int64(Uninitialized))
	return nil
}

func (op *Operation) name() string {
	if op.kind == kindWrite {
		return "pwrite"
	}
	return "pread"
}

func (op *Operation) start() bool {
	return op.state.CompareAndSwap(int64(Initialized), int64(Pending))
}

func (op *Operation) unstart() {
	op.state.CompareAndSwap(int64(Pending), int64(Initialized))
}

func (op *Operation) complete(result int64) {
	op.result = result
	op.state.CompareAndSwap(int64(Pending), int64(Completed))
}

func (op *Operation) cancel() {
	op.state.CompareAndSwap(int64(Pending), int64(Canceled))
}

func (op *Operation) fire() {
	if op.handler != nil {
		op.handler(op)
	}
}
