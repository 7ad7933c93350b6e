package dio

import (
	"github.com/brickingsoft/dio/pkg/aio"
	"github.com/brickingsoft/errors"
)

var (
	ErrClosed           = errors.Define("dio: closed")
	ErrCallbackRequired = errors.Define("dio: callback is required")
	ErrNotPinned        = errors.Define("dio: not pinned")
)

// IsClosed matches both a closed instance and a closed engine underneath.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || aio.IsClosed(err)
}

func IsCallbackRequired(err error) bool {
	return errors.Is(err, ErrCallbackRequired)
}

func IsNotPinned(err error) bool {
	return errors.Is(err, ErrNotPinned)
}

// IsUnsupported reports whether the host cannot run any engine, or the
// selected driver is missing kernel support.
func IsUnsupported(err error) bool {
	return aio.IsUnsupported(err)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "dio"
)
