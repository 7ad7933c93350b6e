//go:build linux

package mem_test

import (
	"testing"

	"github.com/brickingsoft/dio/pkg/mem"
)

func TestAllocAligned(t *testing.T) {
	b, err := mem.AllocAligned(3 * mem.Alignment)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 3*mem.Alignment {
		t.Error("length mismatch:", len(b))
	}
	if !mem.Aligned(b, mem.Alignment) {
		t.Error("buffer not aligned")
	}

	for i := range b {
		b[i] = byte(i)
	}
	idx := mem.Alignment
	if b[idx] != byte(idx) {
		t.Error("buffer not writable")
	}

	if err = mem.Release(b); err != nil {
		t.Fatal(err)
	}
}

func TestAllocAlignedZero(t *testing.T) {
	b, err := mem.AllocAligned(0)
	if err != nil {
		t.Fatal(err)
	}
	if b != nil {
		t.Error("zero size must map nothing")
	}
	if err = mem.Release(b); err != nil {
		t.Fatal(err)
	}
}

func TestAligned(t *testing.T) {
	b, err := mem.AllocAligned(mem.Alignment)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = mem.Release(b)
	}()

	if !mem.Aligned(b, mem.Alignment) {
		t.Error("mapped buffer must be aligned")
	}
	if mem.Aligned(b[1:], mem.Alignment) {
		t.Error("offset slice must not be aligned")
	}
	if !mem.Aligned(nil, mem.Alignment) {
		t.Error("empty slice counts as aligned")
	}
}
