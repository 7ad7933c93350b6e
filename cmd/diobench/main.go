//go:build linux

// diobench drives positioned reads and writes through the async engines and
// reports throughput and latency. Jobs come from a TOML file or, without
// one, from the flags describing a single job.
package main

import (
	"flag"
	"os"

	"github.com/brickingsoft/dio/pkg/process"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		jobFile  = flag.String("job", "", "TOML job file, overrides the single job flags")
		name     = flag.String("name", "bench", "job name")
		path     = flag.String("path", "", "file under test, empty for a throwaway file")
		size     = flag.String("size", defaultSize, "file size")
		bs       = flag.String("bs", defaultBS, "bytes per operation")
		rw       = flag.String("rw", "read", "read, write, randread or randwrite")
		nops     = flag.Int("nops", defaultNops, "operations to run")
		iodepth  = flag.Int("iodepth", defaultIODepth, "operations in flight")
		seed     = flag.Uint64("seed", 1, "content and offset seed")
		direct   = flag.Bool("direct", false, "open with O_DIRECT")
		driver   = flag.String("driver", "native", "native or uring")
		pollable = flag.Bool("pollable", false, "surface completions over the poll descriptor")
		priority = flag.String("priority", "", "renice first, idle, norm, high or realtime")
		cpu      = flag.Int("cpu", -1, "pin to one CPU, negative leaves it alone")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var cfg *benchConfig
	if *jobFile != "" {
		loaded, err := loadConfig(*jobFile)
		if err != nil {
			logrus.WithError(err).Fatal("load job file")
		}
		cfg = loaded
	} else {
		cfg = &benchConfig{
			Global: globalConfig{
				Driver:   *driver,
				Pollable: *pollable,
				Priority: *priority,
				CPU:      *cpu,
			},
			Jobs: []jobConfig{{
				Name:    *name,
				Path:    *path,
				Size:    *size,
				BS:      *bs,
				RW:      *rw,
				Nops:    *nops,
				IODepth: *iodepth,
				Seed:    *seed,
				Direct:  *direct,
			}},
		}
	}

	applyGlobal(&cfg.Global)

	failed := false
	for i := range cfg.Jobs {
		job := &cfg.Jobs[i]
		if err := job.normalize(i); err != nil {
			logrus.WithError(err).Error("bad job")
			failed = true
			continue
		}
		if err := runJob(&cfg.Global, job); err != nil {
			logrus.WithError(err).Errorf("job %s failed", job.Name)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// applyGlobal renices and pins before any job runs. Both knobs are advisory,
// failures downgrade to warnings.
func applyGlobal(global *globalConfig) {
	if global.Priority != "" {
		level := process.ParsePriorityLevel(global.Priority)
		if err := process.SetCurrentProcessPriority(level); err != nil {
			logrus.WithError(err).Warnf("set priority %s failed", level)
		}
	}
	if global.CPU >= 0 {
		if err := process.SetCPUAffinity(global.CPU); err != nil {
			logrus.WithError(err).Warnf("pin to cpu %d failed", global.CPU)
		}
	}
}
