//go:build linux

package sys

import (
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// NewEventfd opens a non-blocking eventfd with a zero counter.
func NewEventfd() (Eventfd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return Eventfd{fd: -1}, os.NewSyscallError("eventfd2", err)
	}
	return Eventfd{fd: fd}, nil
}

type Eventfd struct {
	fd int
}

func (e Eventfd) FD() int {
	return e.fd
}

// Notify adds one to the counter, waking any reader.
func (e Eventfd) Notify() error {
	var one uint64 = 1
	for {
		_, err := unix.Write(e.fd, (*(*[8]byte)(unsafe.Pointer(&one)))[:])
		if err == nil {
			return nil
		}
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		return os.NewSyscallError("write", err)
	}
}

// Drain consumes the counter without blocking. A zero counter is not an error.
func (e Eventfd) Drain() (uint64, error) {
	var buf [8]byte
	for {
		n, err := unix.Read(e.fd, buf[:])
		if err != nil {
			if err == unix.EAGAIN {
				return 0, nil
			}
			if err == unix.EINTR {
				continue
			}
			return 0, os.NewSyscallError("read", err)
		}
		if n != 8 {
			return 0, nil
		}
		return *(*uint64)(unsafe.Pointer(&buf[0])), nil
	}
}

func (e Eventfd) Close() error {
	return syscall.Close(e.fd)
}
