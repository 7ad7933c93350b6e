//go:build linux

// Package mem allocates page-aligned buffers suitable for direct I/O.
package mem

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Alignment is the block alignment direct I/O requires on common filesystems.
const Alignment = 4096

// AllocAligned maps an anonymous page-aligned region of size bytes.
// Release the returned slice with Release, nothing else.
func AllocAligned(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	if size < 0 {
		return nil, os.NewSyscallError("mmap", unix.EINVAL)
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, os.NewSyscallError("mmap", err)
	}
	return b, nil
}

// Release unmaps a slice obtained from AllocAligned.
func Release(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Munmap(b); err != nil {
		return os.NewSyscallError("munmap", err)
	}
	return nil
}

// Aligned reports whether the first byte of b sits on an align boundary.
// Empty slices are aligned by definition.
func Aligned(b []byte, align int) bool {
	if len(b) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))%uintptr(align) == 0
}
