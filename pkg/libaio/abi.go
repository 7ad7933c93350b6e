//go:build linux

// Package libaio wraps the kernel native asynchronous I/O calls, io_setup
// and friends, for direct use from Go.
package libaio

// Context identifies a kernel AIO context. The kernel type is an unsigned
// long written by io_setup.
type Context uintptr

// Command codes for IOCB.OpCode.
const (
	CmdPread   uint16 = 0
	CmdPwrite  uint16 = 1
	CmdFsync   uint16 = 2
	CmdFdsync  uint16 = 3
	CmdPoll    uint16 = 5
	CmdNoop    uint16 = 6
	CmdPreadv  uint16 = 7
	CmdPwritev uint16 = 8
)

// Flags for IOCB.Flags.
const (
	FlagResfd  uint32 = 1 << 0
	FlagIoprio uint32 = 1 << 1
)

// IOCB mirrors struct iocb from the kernel uapi on little endian targets.
// Data round-trips untouched into the matching IOEvent. When FlagResfd is
// set, ResFD names an eventfd the kernel ticks on completion.
type IOCB struct {
	Data      uint64
	Key       uint32
	RWFlags   int32
	OpCode    uint16
	ReqPrio   int16
	FD        int32
	Buf       uint64
	Bytes     uint64
	Offset    int64
	Reserved2 uint64
	Flags     uint32
	ResFD     int32
}

// IOEvent mirrors struct io_event. Result holds the transferred byte count
// or a negated errno.
type IOEvent struct {
	Data    uint64
	Obj     uint64
	Result  int64
	Result2 int64
}
