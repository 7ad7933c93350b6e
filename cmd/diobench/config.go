package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// benchConfig is one job file, global knobs plus jobs run in order.
type benchConfig struct {
	Global globalConfig `toml:"global"`
	Jobs   []jobConfig  `toml:"job"`
}

type globalConfig struct {
	// Driver picks the submission backend, "native" or "uring".
	Driver string `toml:"driver"`
	// Pollable drives completions over the poll descriptor instead of
	// blocking waits.
	Pollable bool `toml:"pollable"`
	// Priority renices the process before any job runs. One of idle,
	// norm, high, realtime.
	Priority string `toml:"priority"`
	// CPU pins the process to one CPU. Negative leaves it unpinned.
	CPU int `toml:"cpu"`
}

type jobConfig struct {
	Name string `toml:"name"`
	// Path is the file under test. Empty means a throwaway file sized by
	// Size.
	Path string `toml:"path"`
	Size string `toml:"size"`
	// BS is the byte count moved per operation, "4K" style suffixes.
	BS string `toml:"bs"`
	// RW is the access pattern, read, write, randread or randwrite.
	RW      string `toml:"rw"`
	Nops    int    `toml:"nops"`
	IODepth int    `toml:"iodepth"`
	Seed    uint64 `toml:"seed"`
	// Direct opens the file with O_DIRECT and aligns every buffer.
	Direct bool `toml:"direct"`

	bsBytes   int64
	sizeBytes int64
}

// loadConfig reads a TOML job file. Keys absent from the file keep their
// defaults.
func loadConfig(path string) (*benchConfig, error) {
	c := benchConfig{
		Global: globalConfig{CPU: -1},
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("decode job file %q: %w", path, err)
	}
	if len(c.Jobs) == 0 {
		return nil, fmt.Errorf("job file %q holds no jobs", path)
	}
	return &c, nil
}

const (
	defaultSize    = "64M"
	defaultBS      = "4K"
	defaultNops    = 4096
	defaultIODepth = 32
)

// normalize fills defaults and resolves sizes. Call it before running the
// job.
func (j *jobConfig) normalize(index int) (err error) {
	if j.Name == "" {
		j.Name = fmt.Sprintf("job%d", index)
	}
	if j.Size == "" {
		j.Size = defaultSize
	}
	if j.BS == "" {
		j.BS = defaultBS
	}
	if j.RW == "" {
		j.RW = "read"
	}
	switch j.RW {
	case "read", "write", "randread", "randwrite":
	default:
		return fmt.Errorf("job %s: unknown rw %q", j.Name, j.RW)
	}
	if j.Nops <= 0 {
		j.Nops = defaultNops
	}
	if j.IODepth <= 0 {
		j.IODepth = defaultIODepth
	}
	if j.sizeBytes, err = parseSize(j.Size); err != nil {
		return fmt.Errorf("job %s: size: %w", j.Name, err)
	}
	if j.bsBytes, err = parseSize(j.BS); err != nil {
		return fmt.Errorf("job %s: bs: %w", j.Name, err)
	}
	if j.bsBytes > j.sizeBytes {
		return fmt.Errorf("job %s: bs %s exceeds size %s", j.Name, j.BS, j.Size)
	}
	return nil
}

func (j *jobConfig) reads() bool {
	return j.RW == "read" || j.RW == "randread"
}

func (j *jobConfig) random() bool {
	return j.RW == "randread" || j.RW == "randwrite"
}

// parseSize resolves "4096", "4K", "64M" or "1G" to bytes. Suffixes are
// binary and case insensitive.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		mult = 1 << 10
		s = s[:len(s)-1]
	case "M":
		mult = 1 << 20
		s = s[:len(s)-1]
	case "G":
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad size %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return n * mult, nil
}
