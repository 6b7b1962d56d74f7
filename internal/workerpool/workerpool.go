package workerpool

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
	"github.com/talx-hub/payment-scheduler/internal/utils/semaphore"
)

type Job func(ctx context.Context) error

// WorkerPool runs a batch of independent jobs with bounded concurrency.
type WorkerPool struct {
	log         *slog.Logger
	workerCount int
}

func New(workerCount int, log *slog.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = model.DefaultWorkerCount
	}
	return &WorkerPool{
		log:         log,
		workerCount: workerCount,
	}
}

// Run blocks until every started job has returned. The error of job i is
// stored at index i; a panicking job yields a *serviceerrs.PanicError. Jobs
// that could not start because ctx was cancelled get the context error.
func (pool *WorkerPool) Run(ctx context.Context, jobs []Job) []error {
	errs := make([]error, len(jobs))
	sema := semaphore.New(pool.workerCount)
	wg := &sync.WaitGroup{}

	for i, job := range jobs {
		if err := sema.Acquire(ctx); err != nil {
			for j := i; j < len(jobs); j++ {
				errs[j] = err
			}
			break
		}

		pool.log.LogAttrs(ctx,
			slog.LevelDebug,
			"job started",
			slog.Int("job", i),
			slog.Int("busy", sema.InUse()),
			slog.Int("workers", sema.Size()),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sema.Release()
			errs[i] = pool.safeRun(ctx, job)
		}()
	}

	wg.Wait()
	return errs
}

func (pool *WorkerPool) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pool.log.LogAttrs(ctx,
				slog.LevelError,
				"job panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = &serviceerrs.PanicError{Value: r}
		}
	}()

	return job(ctx)
}
