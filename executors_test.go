package dio_test

import (
	"context"
	"sync"
	"testing"

	"github.com/brickingsoft/dio"
)

func TestStartup(t *testing.T) {
	ctx := context.Background()
	err := dio.Startup()
	if err != nil {
		t.Fatal(err)
	}
	wg := new(sync.WaitGroup)
	wg.Add(1)
	err = dio.Executors().Execute(ctx, func() {
		wg.Done()
	})
	if err != nil {
		t.Error(err)
		wg.Done()
	}
	wg.Wait()
	err = dio.Shutdown()
	if err != nil {
		t.Error(err)
	}
}
