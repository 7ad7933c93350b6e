package dio

import (
	"github.com/brickingsoft/dio/pkg/aio"
)

const (
	DefaultCapacity = 1024
)

type Options struct {
	Capacity int
	Driver   aio.Driver
}

type Option func(options *Options) (err error)

// WithCapacity
// bounds how many operations the engine holds in flight at once.
//
// Defaults to DefaultCapacity. Values below one fall back to the default.
// Submits past the bound are queued, not refused.
func WithCapacity(capacity int) Option {
	return func(options *Options) (err error) {
		if capacity < 1 {
			capacity = DefaultCapacity
		}
		options.Capacity = capacity
		return
	}
}

// WithDriver
// selects the kernel submission backend, aio.Native by default.
//
// aio.URing needs kernel 5.10 or newer, New fails with an unsupported
// error on older hosts.
func WithDriver(driver aio.Driver) Option {
	return func(options *Options) (err error) {
		options.Driver = driver
		return
	}
}
