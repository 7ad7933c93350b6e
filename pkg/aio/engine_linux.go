//go:build linux

package aio

func newEngine(capacity int, opts *Options) (Engine, error) {
	switch opts.Driver {
	case URing:
		return newURing(capacity, opts.PollMode == Pollable)
	default:
		return newNative(capacity, opts.PollMode == Pollable)
	}
}
