//go:build windows

package process

import "golang.org/x/sys/windows"

// SetCurrentProcessPriority moves the whole process to another priority
// class.
func SetCurrentProcessPriority(level PriorityLevel) (err error) {
	handle := windows.CurrentProcess()
	n := uint32(0)
	switch level {
	case REALTIME:
		n = windows.REALTIME_PRIORITY_CLASS
	case HIGH:
		n = windows.HIGH_PRIORITY_CLASS
	case IDLE:
		n = windows.IDLE_PRIORITY_CLASS
	default:
		n = windows.NORMAL_PRIORITY_CLASS
	}
	err = windows.SetPriorityClass(handle, n)
	return
}
