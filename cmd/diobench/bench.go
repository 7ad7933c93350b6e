//go:build linux

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/brickingsoft/dio/pkg/aio"
	"github.com/brickingsoft/dio/pkg/mem"
	"github.com/brickingsoft/dio/pkg/rand"
	"github.com/brickingsoft/dio/pkg/rate/timeslimiter"
	"github.com/brickingsoft/dio/pkg/sys"
	"github.com/sirupsen/logrus"
)

func resolveDriver(name string) (aio.Driver, error) {
	switch name {
	case "", "native":
		return aio.Native, nil
	case "uring":
		return aio.URing, nil
	default:
		return aio.Native, fmt.Errorf("unknown driver %q", name)
	}
}

// offsetSeq hands out block aligned offsets, sequential with wraparound or
// seeded random.
type offsetSeq struct {
	random  bool
	nblocks int64
	bs      int64
	src     io.Reader
	next    int64
}

func newOffsetSeq(job *jobConfig) *offsetSeq {
	o := &offsetSeq{
		random:  job.random(),
		nblocks: job.sizeBytes / job.bsBytes,
		bs:      job.bsBytes,
	}
	if o.random {
		o.src = rand.NewSource(job.Seed)
	}
	return o
}

func (o *offsetSeq) Next() int64 {
	if o.random {
		var raw [8]byte
		_, _ = io.ReadFull(o.src, raw[:])
		return int64(binary.LittleEndian.Uint64(raw[:])%uint64(o.nblocks)) * o.bs
	}
	off := (o.next % o.nblocks) * o.bs
	o.next++
	return off
}

type jobStats struct {
	mu     sync.Mutex
	ops    int
	bytes  int64
	errs   int
	latSum time.Duration
	latMin time.Duration
	latMax time.Duration
}

func (st *jobStats) record(lat time.Duration, result int64) {
	st.mu.Lock()
	st.ops++
	if result < 0 {
		st.errs++
	} else {
		st.bytes += result
	}
	st.latSum += lat
	if st.latMin == 0 || lat < st.latMin {
		st.latMin = lat
	}
	if lat > st.latMax {
		st.latMax = lat
	}
	st.mu.Unlock()
}

func (st *jobStats) report(job *jobConfig, elapsed time.Duration) {
	secs := elapsed.Seconds()
	if secs == 0 {
		secs = 1e-9
	}
	avg := time.Duration(0)
	if st.ops > 0 {
		avg = st.latSum / time.Duration(st.ops)
	}
	logrus.Infof("%s: %s bs=%s iodepth=%d, %d ops in %s, iops=%.0f bw=%.1fMB/s lat avg/min/max=%s/%s/%s errs=%d",
		job.Name, job.RW, job.BS, job.IODepth,
		st.ops, elapsed.Round(time.Millisecond),
		float64(st.ops)/secs,
		float64(st.bytes)/secs/(1<<20),
		avg.Round(time.Microsecond), st.latMin.Round(time.Microsecond), st.latMax.Round(time.Microsecond),
		st.errs)
}

// layoutFile fills path with sizeBytes of reproducible content, in chunks so
// large files do not balloon the process.
func layoutFile(path string, size int64, seed uint64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	src := rand.NewSource(seed)
	chunk := make([]byte, 4<<20)
	var written int64
	for written < size {
		n := int64(len(chunk))
		if size-written < n {
			n = size - written
		}
		_, _ = io.ReadFull(src, chunk[:n])
		if _, err = f.Write(chunk[:n]); err != nil {
			_ = f.Close()
			return err
		}
		written += n
	}
	return f.Close()
}

// prepareFile makes sure the job's file exists with at least sizeBytes of
// content, laying it out when missing or short. It returns the path and
// whether the file is a throwaway.
func prepareFile(job *jobConfig) (string, bool, error) {
	path := job.Path
	created := false
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("diobench-%s-%d.dat", job.Name, os.Getpid()))
		created = true
	}
	st, statErr := os.Stat(path)
	if statErr != nil || st.Size() < job.sizeBytes {
		logrus.Debugf("%s: laying out %s (%s)", job.Name, path, job.Size)
		if err := layoutFile(path, job.sizeBytes, job.Seed); err != nil {
			return "", created, fmt.Errorf("lay out %q: %w", path, err)
		}
	}
	return path, created, nil
}

func openJobFile(job *jobConfig, path string) (*os.File, error) {
	flag := os.O_RDONLY
	if !job.reads() {
		flag = os.O_RDWR
	}
	if job.Direct {
		fd, err := sys.OpenDirect(path, flag, 0o644)
		if err != nil {
			return nil, err
		}
		return os.NewFile(uintptr(fd), path), nil
	}
	return os.OpenFile(path, flag, 0o644)
}

// runJob drives one job to completion. Submits flow through a queue in
// front of the engine while a window the size of iodepth bounds how many
// are out at once, one waiter goroutine surfaces completions.
func runJob(global *globalConfig, job *jobConfig) error {
	if job.Direct && job.bsBytes%int64(mem.Alignment) != 0 {
		return fmt.Errorf("job %s: direct bs must be a multiple of %d", job.Name, mem.Alignment)
	}
	driver, driverErr := resolveDriver(global.Driver)
	if driverErr != nil {
		return driverErr
	}

	path, created, prepErr := prepareFile(job)
	if prepErr != nil {
		return prepErr
	}
	if created {
		defer os.Remove(path)
	}
	f, openErr := openJobFile(job, path)
	if openErr != nil {
		return openErr
	}
	defer f.Close()
	fd := int(f.Fd())

	depth := job.IODepth
	engOpts := []aio.Option{aio.WithDriver(driver)}
	if global.Pollable {
		engOpts = append(engOpts, aio.WithPollMode(aio.Pollable))
	}
	eng, engErr := aio.New(depth, engOpts...)
	if engErr != nil {
		return engErr
	}
	defer eng.Close()
	q := aio.NewQueue(eng)

	bufPool := make(chan []byte, depth)
	var alignedBufs [][]byte
	defer func() {
		for _, b := range alignedBufs {
			_ = mem.Release(b)
		}
	}()
	for i := 0; i < depth; i++ {
		var buf []byte
		if job.Direct {
			aligned, allocErr := mem.AllocAligned(int(job.bsBytes))
			if allocErr != nil {
				return allocErr
			}
			alignedBufs = append(alignedBufs, aligned)
			buf = aligned
		} else {
			buf = make([]byte, job.bsBytes)
		}
		if !job.reads() {
			rand.Fill(job.Seed+uint64(i), buf)
		}
		bufPool <- buf
	}
	opPool := make(chan *aio.Operation, depth)
	for i := 0; i < depth; i++ {
		opPool <- aio.NewOperation()
	}

	logrus.WithFields(logrus.Fields{
		"job":     job.Name,
		"rw":      job.RW,
		"driver":  driver.String(),
		"file":    path,
		"direct":  job.Direct,
		"iodepth": depth,
	}).Debug("job starting")

	total := job.Nops
	stats := &jobStats{}
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- surfaceCompletions(eng, global.Pollable, total)
	}()

	bucket := timeslimiter.New(int64(depth))
	offsets := newOffsetSeq(job)
	ctx := context.Background()
	started := time.Now()
	for i := 0; i < total; i++ {
		if err := bucket.Wait(ctx); err != nil {
			return err
		}
		buf := <-bufPool
		op := <-opPool
		off := offsets.Next()
		start := time.Now()
		op.WithHandler(func(done *aio.Operation) {
			lat := time.Since(start)
			stats.record(lat, done.Result())
			_ = done.Reset()
			bufPool <- buf
			opPool <- done
			bucket.Revert()
		})
		var armErr error
		if job.reads() {
			armErr = op.Pread(fd, buf, off)
		} else {
			armErr = op.Pwrite(fd, buf, off)
		}
		if armErr != nil {
			logrus.WithError(armErr).Fatalf("%s: arm failed", job.Name)
		}
		if err := q.Submit(op); err != nil {
			logrus.WithError(err).Fatalf("%s: submit failed", job.Name)
		}
	}
	if err := <-waitErr; err != nil {
		return err
	}
	elapsed := time.Since(started)

	stats.report(job, elapsed)
	if stats.errs > 0 {
		return fmt.Errorf("job %s: %d operations failed", job.Name, stats.errs)
	}
	return nil
}

// surfaceCompletions drains the engine until total operations surfaced,
// blocking waits or the poll descriptor depending on the engine mode. A
// wait can outrun the submitting goroutine, overruns just retry.
func surfaceCompletions(eng aio.Engine, pollable bool, total int) error {
	surfaced := 0
	batch := make([]*aio.Operation, 0, 64)
	if pollable {
		pollFD, pollErr := eng.PollFD()
		if pollErr != nil {
			return pollErr
		}
		for surfaced < total {
			var err error
			batch, err = eng.PollCompleted(batch[:0])
			if err != nil {
				return err
			}
			surfaced += len(batch)
			if surfaced >= total {
				break
			}
			if len(batch) == 0 {
				if err = sys.WaitReadable(pollFD); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for surfaced < total {
		var err error
		batch, err = eng.Wait(batch[:0], 1)
		if err != nil {
			if aio.IsWaitOverrun(err) {
				runtime.Gosched()
				continue
			}
			return err
		}
		surfaced += len(batch)
	}
	return nil
}
