//go:build linux

package sys

import (
	"os"

	"golang.org/x/sys/unix"
)

// WaitReadable blocks until fd becomes readable.
func WaitReadable(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return os.NewSyscallError("poll", err)
		}
		if n > 0 {
			return nil
		}
	}
}
