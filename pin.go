package dio

import (
	"sync"

	"github.com/brickingsoft/dio/pkg/reference"
	"github.com/brickingsoft/errors"
)

var (
	defaultInstance *reference.Pointer[*AsyncIO]
	defaultOptions  []Option
	defaultLock     sync.Mutex
)

// Preset stores options for the shared instance. Only a Pin that builds the
// instance reads them, an already-built one keeps its configuration.
func Preset(options ...Option) {
	defaultLock.Lock()
	defaultOptions = append(defaultOptions, options...)
	defaultLock.Unlock()
}

// Pin borrows the shared instance, building it from Preset options on first
// use. Every Pin needs a matching Unpin.
func Pin() (*AsyncIO, error) {
	defaultLock.Lock()
	defer defaultLock.Unlock()
	if defaultInstance == nil {
		a, err := New(defaultOptions...)
		if err != nil {
			return nil, err
		}
		defaultInstance = reference.Make(a)
	}
	return defaultInstance.Value(), nil
}

// Unpin returns one borrow. The last one closes the shared instance and
// discards it, a later Pin builds a fresh one.
func Unpin() error {
	defaultLock.Lock()
	defer defaultLock.Unlock()
	if defaultInstance == nil {
		return errors.From(
			ErrNotPinned,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
	}
	err := defaultInstance.Close()
	if defaultInstance.Count() <= 0 {
		defaultInstance = nil
	}
	return err
}
