package reference_test

import (
	"testing"

	"github.com/brickingsoft/dio/pkg/reference"
)

type closable struct {
	closed int
}

func (c *closable) Close() error {
	c.closed++
	return nil
}

func TestPointer(t *testing.T) {
	c := &closable{}
	p := reference.Make(c)

	if p.Value() != c {
		t.Fatal("borrow must return the wrapped value")
	}
	_ = p.Value()
	if p.Count() != 2 {
		t.Error("count mismatch:", p.Count())
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if c.closed != 0 {
		t.Error("closed early")
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if c.closed != 1 {
		t.Error("last return must close the value")
	}
}

func TestPointerUnborrowed(t *testing.T) {
	c := &closable{}
	p := reference.Make(c)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if c.closed != 1 {
		t.Error("closing an unborrowed pointer must close the value")
	}
}
