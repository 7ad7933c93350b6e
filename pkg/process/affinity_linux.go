//go:build linux

package process

import (
	"fmt"
	"golang.org/x/sys/unix"
	"runtime"
)

// SetCPUAffinity pins the calling thread to one CPU. The index wraps at the
// CPU count so callers can hand out workers round robin.
func SetCPUAffinity(index int) error {
	var mask unix.CPUSet
	mask.Zero()
	mask.Set(index % runtime.NumCPU())
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return fmt.Errorf("sched_setaffinity: %w", err)
	}
	return nil
}
