package dio

import (
	"errors"
	"fmt"
	"github.com/brickingsoft/rxp"
	"runtime"
	"sync"
)

var (
	executors     rxp.Executors = nil
	executorsOnce sync.Once
)

// Startup
// installs customized executors for completion callbacks.
//
// Callbacks run on rxp.Executors. One shared set is created on demand,
// use Startup to tune it instead.
// Note: call it before anything else in the package, later calls have no effect.
func Startup(options ...rxp.Option) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case error:
				err = e
				break
			case string:
				err = errors.New(e)
				break
			default:
				err = errors.New(fmt.Sprintf("%+v", r))
				break
			}
		}
	}()
	executors = rxp.New(options...)
	return
}

// Shutdown
// closes the executors.
//
// Not graceful, running callbacks are abandoned.
//
// Use ShutdownGracefully to wait for them instead.
func Shutdown() error {
	runtime.SetFinalizer(executors, nil)
	return Executors().Close()
}

// ShutdownGracefully
// closes the executors after every callback has finished.
//
// Deadlines for the drain are set through Startup options.
func ShutdownGracefully() error {
	runtime.SetFinalizer(executors, nil)
	return Executors().CloseGracefully()
}

// Executors
// returns the shared executors.
func Executors() rxp.Executors {
	executorsOnce.Do(func() {
		if executors == nil {
			executors = rxp.New()
			runtime.SetFinalizer(executors, rxp.Executors.CloseGracefully)
		}
	})
	return executors
}
