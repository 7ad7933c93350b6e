//go:build !linux

package aio

import (
	"github.com/brickingsoft/errors"
)

func newEngine(_ int, _ *Options) (Engine, error) {
	return nil, errors.From(
		ErrUnsupported,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, errMetaOpSetup),
	)
}
