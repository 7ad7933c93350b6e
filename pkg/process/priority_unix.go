//go:build unix

package process

import (
	"golang.org/x/sys/unix"
	"os"
)

// SetCurrentProcessPriority renices the whole process. Raising priority
// above NORM needs the privilege to lower the nice value.
func SetCurrentProcessPriority(level PriorityLevel) (err error) {
	pid := os.Getpid()
	n := 0
	switch level {
	case REALTIME:
		n = -19
	case HIGH:
		n = -15
	case IDLE:
		n = 15
	default:
		n = 0
	}
	err = unix.Setpriority(unix.PRIO_PROCESS, pid, n)
	return
}
