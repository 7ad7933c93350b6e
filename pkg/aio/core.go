package aio

import (
	"sync/atomic"

	"github.com/brickingsoft/errors"
)

// core carries the bookkeeping both drivers share, the in-flight budget and
// the lifetime counters.
type core struct {
	capacity  int
	pollable  bool
	pending   atomic.Int64
	submitted atomic.Uint64
	closed    atomic.Bool
}

func (c *core) Capacity() int {
	return c.capacity
}

func (c *core) Pending() int64 {
	return c.pending.Load()
}

func (c *core) TotalSubmits() uint64 {
	return c.submitted.Load()
}

// reserve takes one slot of the budget without blocking.
func (c *core) reserve() error {
	if n := c.pending.Add(1); n > int64(c.capacity) {
		c.pending.Add(-1)
		return errors.From(
			ErrCapacity,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSubmit),
		)
	}
	return nil
}

func (c *core) release() {
	c.pending.Add(-1)
}

// checkWait clamps a negative min to zero and rejects asking for more
// completions than operations are in flight.
func (c *core) checkWait(min int) (int, error) {
	if min < 0 {
		min = 0
	}
	if int64(min) > c.pending.Load() {
		return 0, errors.From(
			ErrWaitOverrun,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpWait),
		)
	}
	return min, nil
}
