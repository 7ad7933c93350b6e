package aio

import (
	"github.com/brickingsoft/errors"
)

var (
	ErrCapacity       = errors.Define("engine at capacity")
	ErrClosed         = errors.Define("engine closed")
	ErrBusy           = errors.Define("engine busy")
	ErrOperationState = errors.Define("operation state does not permit this")
	ErrWaitOverrun    = errors.Define("wait wants more than pending")
	ErrNotPollable    = errors.Define("engine is not pollable")
	ErrUnsupported    = errors.Define("engine unsupported on this host")
)

func IsCapacity(err error) bool {
	return errors.Is(err, ErrCapacity)
}

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

func IsOperationState(err error) bool {
	return errors.Is(err, ErrOperationState)
}

func IsWaitOverrun(err error) bool {
	return errors.Is(err, ErrWaitOverrun)
}

func IsNotPollable(err error) bool {
	return errors.Is(err, ErrNotPollable)
}

func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "aio"
)

const (
	errMetaOpKey    = "op"
	errMetaOpSetup  = "setup"
	errMetaOpSubmit = "submit"
	errMetaOpWait   = "wait"
	errMetaOpCancel = "cancel"
	errMetaOpPoll   = "poll"
	errMetaOpClose  = "close"
)
