//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package queue

import (
	"runtime"
	"unsafe"
)

const (
	addrBits = 48
	tagBits  = 64 - addrBits + 3

	// riscv64 exposes a 56 bit virtual address space.
	riscv64AddrBits = 56
	riscv64TagBits  = 64 - riscv64AddrBits + 3
)

// packPointer packs ptr and tag. Tag bits that do not fit are discarded.
func packPointer[E any](ptr unsafe.Pointer, tag uintptr) tagPointer[E] {
	if runtime.GOARCH == "riscv64" {
		return tagPointer[E](uint64(uintptr(ptr))<<(64-riscv64AddrBits) | uint64(tag&(1<<riscv64TagBits-1)))
	}
	return tagPointer[E](uint64(uintptr(ptr))<<(64-addrBits) | uint64(tag&(1<<tagBits-1)))
}

func (tp tagPointer[E]) pointer() unsafe.Pointer {
	if runtime.GOARCH == "amd64" {
		// amd64 can place the stack above the VA hole, so sign extend
		// before unpacking.
		return unsafe.Pointer(uintptr(int64(tp) >> tagBits << 3))
	}
	if runtime.GOARCH == "riscv64" {
		return unsafe.Pointer(uintptr(tp >> riscv64TagBits << 3))
	}
	return unsafe.Pointer(uintptr(tp >> tagBits << 3))
}

func (tp tagPointer[E]) value() *E {
	return (*E)(tp.pointer())
}
