// Package aio dispatches disk reads and writes to the kernel asynchronously
// and surfaces their completions on demand. An Engine owns a fixed budget of
// in-flight operations, a Queue in front of it buffers past that budget.
package aio

import (
	"github.com/brickingsoft/errors"
)

// Driver selects the kernel submission backend.
type Driver uint8

const (
	// Native drives the io_setup interface. Works on every modern kernel.
	Native Driver = iota
	// URing drives io_uring. Needs a 5.10 kernel or newer.
	URing
)

func (d Driver) String() string {
	if d == URing {
		return "uring"
	}
	return "native"
}

// PollMode decides how completions are observed.
type PollMode uint8

const (
	// NotPollable engines surface completions through Wait alone.
	NotPollable PollMode = iota
	// Pollable engines also expose a file descriptor whose readability
	// signals reapable completions, for external event loops.
	Pollable
)

func (m PollMode) String() string {
	if m == Pollable {
		return "pollable"
	}
	return "not_pollable"
}

// Engine dispatches operations to the kernel and hands them back as they
// finish. Submit is safe for concurrent use. Wait, Cancel and PollCompleted
// surface completions and must not race each other.
type Engine interface {
	// Submit hands one armed operation to the kernel. The operation moves
	// to Pending and stays owned by the engine until surfaced.
	Submit(op *Operation) error
	// Wait appends at least min surfaced operations to ops and returns the
	// grown slice. Zero min reaps whatever is already finished without
	// blocking. min above Pending fails with ErrWaitOverrun.
	Wait(ops []*Operation, min int) ([]*Operation, error)
	// Cancel resolves every pending operation. Results the kernel already
	// posted are discarded, the operations land in ops marked Canceled and
	// their handlers stay silent. Pending is zero afterwards. Cancel must
	// not race Submit.
	Cancel(ops []*Operation) ([]*Operation, error)
	// Pending counts submitted operations not yet surfaced.
	Pending() int64
	// TotalSubmits counts accepted submissions over the engine lifetime.
	TotalSubmits() uint64
	// Capacity is the in-flight budget fixed at construction.
	Capacity() int
	// PollFD exposes the readiness descriptor of a Pollable engine.
	PollFD() (int, error)
	// PollCompleted reaps whatever is finished without blocking, appending
	// to ops. Only Pollable engines support it.
	PollCompleted(ops []*Operation) ([]*Operation, error)
	// Close releases kernel resources. Closing with operations still
	// pending fails with ErrBusy.
	Close() error
}

// New builds an engine with room for capacity in-flight operations. Engines
// exist on linux only, elsewhere New fails with ErrUnsupported.
func New(capacity int, options ...Option) (Engine, error) {
	if capacity <= 0 {
		return nil, errors.New(
			"capacity must be positive",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSetup),
		)
	}
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}
	return newEngine(capacity, &opts)
}
