// Package process adjusts scheduling properties of the running process,
// priority class and CPU affinity. Benchmark runs use it to keep timings
// stable.
package process

// PriorityLevel selects the scheduling class SetCurrentProcessPriority
// requests.
type PriorityLevel int

const (
	NORM PriorityLevel = iota
	IDLE
	HIGH
	REALTIME
)

func (level PriorityLevel) String() string {
	switch level {
	case IDLE:
		return "idle"
	case HIGH:
		return "high"
	case REALTIME:
		return "realtime"
	default:
		return "norm"
	}
}

// ParsePriorityLevel maps a configuration word onto a level. Unknown words
// map to NORM.
func ParsePriorityLevel(s string) PriorityLevel {
	switch s {
	case "idle":
		return IDLE
	case "high":
		return HIGH
	case "realtime":
		return REALTIME
	default:
		return NORM
	}
}
