// Package timeslimiter bounds how many of something are out at once.
// Benchmark runs use a Bucket as their in flight window, one token per
// submitted operation, reverted when it resolves.
package timeslimiter

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// New builds a window of upperbound tokens. A bound below one disables the
// window, Wait then never blocks.
func New(upperbound int64) *Bucket {
	if upperbound < 1 {
		upperbound = 0
	}
	return &Bucket{
		upperbound: upperbound,
	}
}

const (
	napDuration       = 500 * time.Nanosecond
	napsBeforeGosched = 10
)

// Bucket hands out tokens up to its bound. Waiters nap then yield, there is
// no queue and no fairness.
type Bucket struct {
	upperbound int64
	tokens     atomic.Int64
}

// Wait takes one token, blocking while the window is full. The context
// bounds the blocking.
func (bucket *Bucket) Wait(ctx context.Context) (err error) {
	if !bucket.ok() {
		return
	}
	naps := 0
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return
		default:
			if n := bucket.tokens.Add(1); n <= bucket.upperbound {
				return
			}
			bucket.tokens.Add(-1)
			naps++
			if naps > napsBeforeGosched {
				naps = 0
				runtime.Gosched()
			} else {
				time.Sleep(napDuration)
			}
		}
	}
}

// Revert returns one token.
func (bucket *Bucket) Revert() {
	if !bucket.ok() {
		return
	}
	bucket.tokens.Add(-1)
}

// Used reports tokens currently out.
func (bucket *Bucket) Used() int64 {
	return bucket.tokens.Load()
}

func (bucket *Bucket) ok() bool {
	return bucket.upperbound > 0
}
