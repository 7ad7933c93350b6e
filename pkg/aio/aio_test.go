//go:build linux

package aio_test

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/brickingsoft/dio/pkg/aio"
	"github.com/brickingsoft/dio/pkg/mem"
	"github.com/brickingsoft/dio/pkg/rand"
	"github.com/brickingsoft/dio/pkg/sys"
	"golang.org/x/sys/unix"
)

const testFileSize = 6 << 20

type engineConfig struct {
	name   string
	driver aio.Driver
	mode   aio.PollMode
}

var engineConfigs = []engineConfig{
	{"native", aio.Native, aio.NotPollable},
	{"native_pollable", aio.Native, aio.Pollable},
	{"uring", aio.URing, aio.NotPollable},
	{"uring_pollable", aio.URing, aio.Pollable},
}

// withEngines runs fn against every driver and poll mode combination the
// host supports.
func withEngines(t *testing.T, capacity int, fn func(t *testing.T, eng aio.Engine)) {
	for _, cfg := range engineConfigs {
		t.Run(cfg.name, func(t *testing.T) {
			eng, err := aio.New(capacity, aio.WithDriver(cfg.driver), aio.WithPollMode(cfg.mode))
			if err != nil {
				if aio.IsUnsupported(err) {
					t.Skip("skipping:", err)
				}
				t.Fatal(err)
			}
			defer func() {
				if closeErr := eng.Close(); closeErr != nil && !aio.IsClosed(closeErr) {
					t.Error(closeErr)
				}
			}()
			fn(t, eng)
		})
	}
}

// dataFile writes testFileSize reproducible bytes and returns the path with
// the content for verification.
func dataFile(t *testing.T, seed uint64) (string, []byte) {
	t.Helper()
	content := make([]byte, testFileSize)
	rand.Fill(seed, content)
	path := filepath.Join(t.TempDir(), "aio.dat")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path, content
}

func openRead(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = f.Close()
	})
	return f
}

type readSpec struct {
	off  int64
	size int
}

// smallSpecs mirror block sized sequential reads.
var smallSpecs = []readSpec{
	{0, 4096},
	{4096, 4096},
	{8192, 4096},
	{12288, 4096},
}

// mixedSpecs cover odd offsets, odd lengths, large reads and a zero read.
var mixedSpecs = []readSpec{
	{0, 0},
	{0, 4096},
	{513, 1022},
	{4096, 128 * 1024},
	{1 << 20, 5 << 20},
	{testFileSize - 4096, 4096},
}

// surfaceAll drives completions out of the engine until want operations
// surfaced, over the poll path when the engine has one.
func surfaceAll(t *testing.T, eng aio.Engine, want int) []*aio.Operation {
	t.Helper()
	ops := make([]*aio.Operation, 0, want)
	fd, pollErr := eng.PollFD()
	for len(ops) < want {
		var err error
		if pollErr == nil {
			ops, err = eng.PollCompleted(ops)
			if err != nil {
				t.Fatal(err)
			}
			if len(ops) >= want {
				break
			}
			if err = sys.WaitReadable(fd); err != nil {
				t.Fatal(err)
			}
			continue
		}
		ops, err = eng.Wait(ops, 1)
		if err != nil {
			t.Fatal(err)
		}
	}
	return ops
}

// verifyReads checks every surfaced read completed whole with the bytes the
// file holds at its offset.
func verifyReads(t *testing.T, ops []*aio.Operation, specs []readSpec, content []byte, bufs map[*aio.Operation][]byte) {
	t.Helper()
	sized := make(map[int64]int, len(specs))
	for _, spec := range specs {
		sized[spec.off] = spec.size
	}
	for _, op := range ops {
		if op.State() != aio.Completed {
			t.Fatal("operation not completed:", op.State())
		}
		if err := op.Err(); err != nil {
			t.Fatal(err)
		}
		size, known := sized[op.Offset()]
		if !known {
			t.Fatal("surfaced an unknown offset:", op.Offset())
		}
		if op.Result() != int64(size) {
			t.Error("short read:", op.Result(), "want", size)
		}
		if bufs != nil {
			b := bufs[op]
			if !bytes.Equal(b, content[op.Offset():op.Offset()+int64(len(b))]) {
				t.Error("read bytes differ at offset", op.Offset())
			}
		}
	}
}

func TestReadsSerial(t *testing.T) {
	path, content := dataFile(t, 1)
	withEngines(t, 1, func(t *testing.T, eng aio.Engine) {
		f := openRead(t, path)
		// one operation rides through every spec, reset between runs
		op := aio.NewOperation()
		for i, spec := range smallSpecs {
			b := make([]byte, spec.size)
			if err := op.Pread(int(f.Fd()), b, spec.off); err != nil {
				t.Fatal(err)
			}
			if err := eng.Submit(op); err != nil {
				t.Fatal(err)
			}
			if eng.TotalSubmits() != uint64(i+1) {
				t.Error("total submits mismatch:", eng.TotalSubmits())
			}
			if eng.Pending() != 1 {
				t.Error("pending must be one, got", eng.Pending())
			}
			ops := surfaceAll(t, eng, 1)
			if len(ops) != 1 || ops[0] != op {
				t.Fatal("surfaced a different operation")
			}
			if op.Result() != int64(spec.size) {
				t.Error("short read:", op.Result())
			}
			if !bytes.Equal(b, content[spec.off:spec.off+int64(spec.size)]) {
				t.Error("read bytes differ at offset", spec.off)
			}
			if eng.Pending() != 0 {
				t.Error("pending must drop to zero, got", eng.Pending())
			}
			if err := op.Reset(); err != nil {
				t.Fatal(err)
			}
		}
	})
}

func TestReadsParallel(t *testing.T) {
	path, content := dataFile(t, 2)
	withEngines(t, len(mixedSpecs), func(t *testing.T, eng aio.Engine) {
		f := openRead(t, path)
		bufs := make(map[*aio.Operation][]byte, len(mixedSpecs))
		ops := make([]*aio.Operation, 0, len(mixedSpecs))
		for _, spec := range mixedSpecs {
			b := make([]byte, spec.size)
			op := aio.NewOperation()
			if err := op.Pread(int(f.Fd()), b, spec.off); err != nil {
				t.Fatal(err)
			}
			bufs[op] = b
			ops = append(ops, op)
		}
		for _, op := range ops {
			if err := eng.Submit(op); err != nil {
				t.Fatal(err)
			}
		}
		if eng.TotalSubmits() != uint64(len(ops)) {
			t.Error("total submits mismatch:", eng.TotalSubmits())
		}
		surfaced := surfaceAll(t, eng, len(ops))
		if len(surfaced) != len(ops) {
			t.Fatal("surfaced", len(surfaced), "want", len(ops))
		}
		verifyReads(t, surfaced, mixedSpecs, content, bufs)
		if eng.Pending() != 0 {
			t.Error("pending must be zero, got", eng.Pending())
		}
	})
}

func TestReadsMultithreaded(t *testing.T) {
	path, content := dataFile(t, 3)
	specs := make([]readSpec, 64)
	for i := range specs {
		specs[i] = readSpec{off: int64(i) * 4096, size: 4096}
	}
	withEngines(t, len(specs), func(t *testing.T, eng aio.Engine) {
		f := openRead(t, path)
		bufs := make(map[*aio.Operation][]byte, len(specs))
		ops := make([]*aio.Operation, 0, len(specs))
		for _, spec := range specs {
			b := make([]byte, spec.size)
			op := aio.NewOperation()
			if err := op.Pread(int(f.Fd()), b, spec.off); err != nil {
				t.Fatal(err)
			}
			bufs[op] = b
			ops = append(ops, op)
		}

		wg := new(sync.WaitGroup)
		errs := make(chan error, len(ops))
		for _, op := range ops {
			wg.Add(1)
			go func(op *aio.Operation) {
				defer wg.Done()
				if err := eng.Submit(op); err != nil {
					errs <- err
				}
			}(op)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatal(err)
		}

		surfaced := surfaceAll(t, eng, len(ops))
		verifyReads(t, surfaced, specs, content, bufs)
		if eng.Pending() != 0 || eng.TotalSubmits() != uint64(len(ops)) {
			t.Error("counters off:", eng.Pending(), eng.TotalSubmits())
		}
	})
}

func TestManyReads(t *testing.T) {
	path, content := dataFile(t, 4)
	specs := make([]readSpec, 1000)
	for i := range specs {
		specs[i] = readSpec{off: int64(i) * 4096, size: 4096}
	}
	withEngines(t, len(specs), func(t *testing.T, eng aio.Engine) {
		f := openRead(t, path)
		bufs := make(map[*aio.Operation][]byte, len(specs))
		ops := make([]*aio.Operation, 0, len(specs))
		for _, spec := range specs {
			b := make([]byte, spec.size)
			op := aio.NewOperation()
			if err := op.Pread(int(f.Fd()), b, spec.off); err != nil {
				t.Fatal(err)
			}
			bufs[op] = b
			ops = append(ops, op)
		}
		for _, op := range ops {
			if err := eng.Submit(op); err != nil {
				t.Fatal(err)
			}
		}
		surfaced := surfaceAll(t, eng, len(ops))
		verifyReads(t, surfaced, specs, content, bufs)
	})
}

func TestNonBlockingWait(t *testing.T) {
	path, _ := dataFile(t, 5)
	withEngines(t, 1, func(t *testing.T, eng aio.Engine) {
		f := openRead(t, path)
		op := aio.NewOperation()
		if err := op.Pread(int(f.Fd()), make([]byte, 4096), 0); err != nil {
			t.Fatal(err)
		}
		if err := eng.Submit(op); err != nil {
			t.Fatal(err)
		}
		var ops []*aio.Operation
		for len(ops) == 0 {
			var err error
			ops, err = eng.Wait(ops, 0)
			if err != nil {
				t.Fatal(err)
			}
		}
		if ops[0] != op || op.Result() != 4096 {
			t.Error("spin wait surfaced a wrong completion")
		}
		if eng.Pending() != 0 {
			t.Error("pending must be zero, got", eng.Pending())
		}
	})
}

func TestWritesRoundtrip(t *testing.T) {
	withEngines(t, 4, func(t *testing.T, eng aio.Engine) {
		path := filepath.Join(t.TempDir(), "out.dat")
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			t.Fatal(err)
		}
		defer func() {
			_ = f.Close()
		}()

		want := make([]byte, 4*4096)
		rand.Fill(6, want)
		ops := make([]*aio.Operation, 4)
		for i := range ops {
			op := aio.NewOperation()
			chunk := want[i*4096 : (i+1)*4096]
			if err = op.Pwrite(int(f.Fd()), chunk, int64(i)*4096); err != nil {
				t.Fatal(err)
			}
			if err = eng.Submit(op); err != nil {
				t.Fatal(err)
			}
			ops[i] = op
		}
		surfaced := surfaceAll(t, eng, len(ops))
		for _, op := range surfaced {
			if op.Err() != nil {
				t.Fatal(op.Err())
			}
			if op.Result() != 4096 {
				t.Error("short write:", op.Result())
			}
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Error("file content differs after async writes")
		}
	})
}

func TestZeroSizeOps(t *testing.T) {
	path, _ := dataFile(t, 7)
	withEngines(t, 2, func(t *testing.T, eng aio.Engine) {
		f := openRead(t, path)
		op := aio.NewOperation()
		if err := op.Pread(int(f.Fd()), nil, 0); err != nil {
			t.Fatal(err)
		}
		if err := eng.Submit(op); err != nil {
			t.Fatal(err)
		}
		ops := surfaceAll(t, eng, 1)
		if ops[0].Result() != 0 {
			t.Error("zero read must complete with zero, got", ops[0].Result())
		}
		if ops[0].Err() != nil {
			t.Error(ops[0].Err())
		}
	})
}

func TestWaitOverrun(t *testing.T) {
	withEngines(t, 2, func(t *testing.T, eng aio.Engine) {
		if _, err := eng.Wait(nil, 1); !aio.IsWaitOverrun(err) {
			t.Error("wait above pending must fail, got", err)
		}
	})
}

func TestSubmitStateViolations(t *testing.T) {
	path, _ := dataFile(t, 8)
	withEngines(t, 1, func(t *testing.T, eng aio.Engine) {
		f := openRead(t, path)

		if err := eng.Submit(aio.NewOperation()); !aio.IsOperationState(err) {
			t.Error("unarmed submit must fail, got", err)
		}

		op := aio.NewOperation()
		if err := op.Pread(int(f.Fd()), make([]byte, 4096), 0); err != nil {
			t.Fatal(err)
		}
		if err := eng.Submit(op); err != nil {
			t.Fatal(err)
		}
		if err := eng.Submit(op); !aio.IsOperationState(err) {
			t.Error("double submit must fail, got", err)
		}

		other := aio.NewOperation()
		if err := other.Pread(int(f.Fd()), make([]byte, 4096), 0); err != nil {
			t.Fatal(err)
		}
		if err := eng.Submit(other); !aio.IsCapacity(err) {
			t.Error("over budget submit must fail, got", err)
		}

		surfaceAll(t, eng, 1)
		if err := eng.Submit(other); err != nil {
			t.Fatal("freed slot must accept a submit:", err)
		}
		surfaceAll(t, eng, 1)
	})
}

func TestCancel(t *testing.T) {
	path, _ := dataFile(t, 9)
	withEngines(t, 20, func(t *testing.T, eng aio.Engine) {
		f := openRead(t, path)
		fired := 0
		submit := func() {
			op := aio.NewOperation().WithHandler(func(op *aio.Operation) {
				fired++
			})
			if err := op.Pread(int(f.Fd()), make([]byte, 4096), 0); err != nil {
				t.Fatal(err)
			}
			if err := eng.Submit(op); err != nil {
				t.Fatal(err)
			}
		}
		for i := 0; i < 10; i++ {
			submit()
		}
		observed, err := eng.Wait(nil, 1)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 10; i++ {
			submit()
		}

		canceled, err := eng.Cancel(nil)
		if err != nil {
			t.Fatal(err)
		}
		if eng.Pending() != 0 {
			t.Error("pending must be zero after cancel, got", eng.Pending())
		}
		if len(observed)+len(canceled) != 20 {
			t.Error("partition broken:", len(observed), "+", len(canceled))
		}
		for _, op := range canceled {
			if op.State() != aio.Canceled {
				t.Error("canceled op in state", op.State())
			}
		}
		if fired != len(observed) {
			t.Error("handlers fired", fired, "want", len(observed))
		}
		if eng.TotalSubmits() != 20 {
			t.Error("total submits mismatch:", eng.TotalSubmits())
		}

		// the engine stays usable after a cancel sweep
		submit()
		after := surfaceAll(t, eng, 1)
		if after[0].Result() != 4096 {
			t.Error("post cancel read broken:", after[0].Result())
		}
	})
}

func TestCancelIdle(t *testing.T) {
	withEngines(t, 2, func(t *testing.T, eng aio.Engine) {
		canceled, err := eng.Cancel(nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(canceled) != 0 {
			t.Error("idle cancel surfaced", len(canceled))
		}
	})
}

func TestCloseBusyThenIdle(t *testing.T) {
	path, _ := dataFile(t, 10)
	withEngines(t, 1, func(t *testing.T, eng aio.Engine) {
		f := openRead(t, path)
		op := aio.NewOperation()
		if err := op.Pread(int(f.Fd()), make([]byte, 4096), 0); err != nil {
			t.Fatal(err)
		}
		if err := eng.Submit(op); err != nil {
			t.Fatal(err)
		}
		if err := eng.Close(); !aio.IsBusy(err) {
			t.Error("busy close must fail, got", err)
		}
		surfaceAll(t, eng, 1)
		if err := eng.Close(); err != nil {
			t.Fatal(err)
		}
		if err := eng.Submit(op); !aio.IsClosed(err) && !aio.IsOperationState(err) {
			t.Error("closed engine must refuse submits, got", err)
		}
		if _, err := eng.Wait(nil, 0); !aio.IsClosed(err) {
			t.Error("closed engine must refuse waits, got", err)
		}
	})
}

func TestPollFD(t *testing.T) {
	withEngines(t, 1, func(t *testing.T, eng aio.Engine) {
		fd, err := eng.PollFD()
		if err != nil {
			if !aio.IsNotPollable(err) {
				t.Error(err)
			}
			if _, perr := eng.PollCompleted(nil); !aio.IsNotPollable(perr) {
				t.Error("poll reap on a plain engine must fail, got", perr)
			}
			return
		}
		if fd < 0 {
			t.Error("pollable engine returned a bad fd:", fd)
		}
	})
}

func TestDirectReads(t *testing.T) {
	path, content := dataFile(t, 11)
	withEngines(t, 4, func(t *testing.T, eng aio.Engine) {
		fd, err := sys.OpenDirect(path, unix.O_RDONLY, 0)
		if err != nil {
			t.Skipf("direct I/O unsupported here: %v", err)
		}
		defer func() {
			_ = unix.Close(fd)
		}()

		specs := []readSpec{{0, 4096}, {4096, 8192}, {1 << 20, 4096}}
		bufs := make(map[*aio.Operation][]byte, len(specs))
		for _, spec := range specs {
			b, allocErr := mem.AllocAligned(spec.size)
			if allocErr != nil {
				t.Fatal(allocErr)
			}
			t.Cleanup(func() {
				_ = mem.Release(b)
			})
			if !mem.Aligned(b, mem.Alignment) {
				t.Fatal("allocator returned an unaligned buffer")
			}
			op := aio.NewOperation()
			if armErr := op.Pread(fd, b, spec.off); armErr != nil {
				t.Fatal(armErr)
			}
			bufs[op] = b
			if submitErr := eng.Submit(op); submitErr != nil {
				t.Fatal(submitErr)
			}
		}
		surfaced := surfaceAll(t, eng, len(specs))
		verifyReads(t, surfaced, specs, content, bufs)
	})
}
