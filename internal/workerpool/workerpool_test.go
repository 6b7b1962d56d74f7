package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
)

func TestWorkerPool_Run_boundsConcurrency(t *testing.T) {
	const workers = 3
	var inFlight, peak atomic.Int32
	jobs := make([]Job, 20)
	for i := range jobs {
		jobs[i] = func(context.Context) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		}
	}

	errs := New(workers, slog.Default()).Run(context.Background(), jobs)
	require.Len(t, errs, len(jobs))
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Positive(t, peak.Load())
}

func TestWorkerPool_Run_isolatesFailures(t *testing.T) {
	errJob := errors.New("job failed")
	var mu sync.Mutex
	ran := map[int]bool{}
	mark := func(i int) {
		mu.Lock()
		defer mu.Unlock()
		ran[i] = true
	}

	jobs := []Job{
		func(context.Context) error { mark(0); return nil },
		func(context.Context) error { mark(1); panic("boom") },
		func(context.Context) error { mark(2); return errJob },
		func(context.Context) error { mark(3); return nil },
	}

	errs := New(2, slog.Default()).Run(context.Background(), jobs)

	assert.NoError(t, errs[0])
	var panicErr *serviceerrs.PanicError
	require.ErrorAs(t, errs[1], &panicErr)
	assert.Equal(t, "boom", panicErr.Value)
	assert.ErrorIs(t, errs[2], errJob)
	assert.NoError(t, errs[3])
	assert.Len(t, ran, 4)
}

func TestWorkerPool_Run_cancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	job := func(context.Context) error {
		calls.Add(1)
		return nil
	}

	errs := New(1, slog.Default()).Run(ctx, []Job{job, job})
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Zero(t, calls.Load())
}
