//go:build linux

package libaio

import (
	"os"
	"syscall"
	"unsafe"
)

// Setup creates a context able to carry nr in-flight requests.
func Setup(nr uint32) (Context, error) {
	var ctx Context
	_, _, errno := syscall.Syscall(syscall.SYS_IO_SETUP, uintptr(nr), uintptr(unsafe.Pointer(&ctx)), 0)
	if errno != 0 {
		return 0, os.NewSyscallError("io_setup", errno)
	}
	return ctx, nil
}

// Destroy tears the context down, cancelling what it can and waiting for
// requests it cannot.
func Destroy(ctx Context) error {
	for {
		_, _, errno := syscall.Syscall(syscall.SYS_IO_DESTROY, uintptr(ctx), 0, 0)
		if errno != 0 {
			if errno == syscall.EINTR {
				continue
			}
			return os.NewSyscallError("io_destroy", errno)
		}
		return nil
	}
}

// Submit hands the control blocks to the kernel and returns how many were
// accepted. A short count without an error means the tail was not queued.
func Submit(ctx Context, cbs []*IOCB) (int, error) {
	if len(cbs) == 0 {
		return 0, nil
	}
	for {
		n, _, errno := syscall.Syscall(syscall.SYS_IO_SUBMIT, uintptr(ctx), uintptr(len(cbs)), uintptr(unsafe.Pointer(&cbs[0])))
		if errno != 0 {
			if errno == syscall.EINTR {
				continue
			}
			return 0, os.NewSyscallError("io_submit", errno)
		}
		return int(n), nil
	}
}

// GetEvents reaps up to len(events) completions, blocking until at least min
// arrive. A nil timeout blocks without bound, a zero timeout polls. The
// return may be short of min when a signal lands after some events were
// already read, callers loop as needed.
func GetEvents(ctx Context, min int, events []IOEvent, timeout *syscall.Timespec) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	for {
		n, _, errno := syscall.Syscall6(
			syscall.SYS_IO_GETEVENTS,
			uintptr(ctx),
			uintptr(min),
			uintptr(len(events)),
			uintptr(unsafe.Pointer(&events[0])),
			uintptr(unsafe.Pointer(timeout)),
			0,
		)
		if errno != 0 {
			if errno == syscall.EINTR {
				continue
			}
			return 0, os.NewSyscallError("io_getevents", errno)
		}
		return int(n), nil
	}
}

// Cancel asks the kernel to abort one submitted control block. File I/O
// requests are typically past the point of no return, so ENOENT and EINVAL
// are the common outcomes.
func Cancel(ctx Context, cb *IOCB, ev *IOEvent) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IO_CANCEL, uintptr(ctx), uintptr(unsafe.Pointer(cb)), uintptr(unsafe.Pointer(ev)))
	if errno != 0 {
		return os.NewSyscallError("io_cancel", errno)
	}
	return nil
}
