package reference

import (
	"io"
	"reflect"
	"sync/atomic"
)

// Make wraps a non-nil closable value with a reference count of zero.
func Make[E io.Closer](value E) *Pointer[E] {
	if reflect.ValueOf(value).IsNil() {
		panic("reference: value is nil")
	}
	return &Pointer[E]{value: value}
}

// Pointer counts borrows of a shared closable value and closes it when the
// last borrow is returned.
type Pointer[E io.Closer] struct {
	value E
	count atomic.Int64
}

// Value borrows the wrapped value.
func (p *Pointer[E]) Value() E {
	p.count.Add(1)
	return p.value
}

func (p *Pointer[E]) Count() int64 {
	return p.count.Load()
}

// Close returns one borrow. The wrapped value is closed when no borrows
// remain, or when Close is called on a pointer that was never borrowed.
func (p *Pointer[E]) Close() error {
	if n := p.count.Add(-1); n <= 0 {
		return p.value.Close()
	}
	return nil
}
