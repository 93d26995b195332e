package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type flakyWorker struct {
	runs     atomic.Int32
	panicsOn int32
}

// Run panics the first panicsOn times, then finishes cleanly.
func (w *flakyWorker) Run(context.Context) error {
	run := w.runs.Add(1)
	if run <= w.panicsOn {
		panic("boom")
	}
	return nil
}

type blockingWorker struct {
	started chan struct{}
}

func (w *blockingWorker) Run(ctx context.Context) error {
	close(w.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestSupervisor_Restarts_Panicking_Worker(t *testing.T) {
	req := require.New(t)
	supervisor := NewSupervisor(logs.GetLoggerFromString("DEBUG"))

	worker := &flakyWorker{panicsOn: 2}
	supervisor.Add(worker)

	done := make(chan struct{})
	go func() {
		supervisor.Run(context.Background())
		close(done)
	}()

	// Then the worker was restarted past both panics and Run returned
	// once it finished cleanly
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		req.FailNow("supervisor did not finish")
	}
	req.Equal(int32(3), worker.runs.Load())
}

func TestSupervisor_Stop_Cancels_Workers(t *testing.T) {
	req := require.New(t)
	supervisor := NewSupervisor(logs.GetLoggerFromString("DEBUG"))

	worker := &blockingWorker{started: make(chan struct{})}
	supervisor.Add(worker)

	done := make(chan struct{})
	go func() {
		supervisor.Run(context.Background())
		close(done)
	}()

	select {
	case <-worker.started:
	case <-time.After(time.Second):
		req.FailNow("worker never started")
	}

	supervisor.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.FailNow("supervisor did not stop")
	}
}

func TestSupervisor_Start_Accepts_Workers_After_Run(t *testing.T) {
	req := require.New(t)
	supervisor := NewSupervisor(logs.GetLoggerFromString("DEBUG"))

	first := &blockingWorker{started: make(chan struct{})}
	supervisor.Add(first)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(done)
	}()

	select {
	case <-first.started:
	case <-time.After(time.Second):
		req.FailNow("initial worker never started")
	}

	// When a worker is registered dynamically, the way room workers are
	late := &blockingWorker{started: make(chan struct{})}
	supervisor.Start(ctx, late)

	select {
	case <-late.started:
	case <-time.After(time.Second):
		req.FailNow("late worker never started")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.FailNow("supervisor did not drain on cancellation")
	}
}
