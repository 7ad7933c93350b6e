//go:build linux

package sys

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenDirect opens path with O_DIRECT set. flag carries the access mode and
// creation bits. Filesystems without direct I/O support fail with EINVAL.
func OpenDirect(path string, flag int, perm os.FileMode) (int, error) {
	fd, err := unix.Open(path, flag|unix.O_DIRECT|unix.O_CLOEXEC, uint32(perm.Perm()))
	if err != nil {
		return -1, os.NewSyscallError("open", err)
	}
	return fd, nil
}
