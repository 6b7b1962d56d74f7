package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/payment-scheduler/internal/orchestrator"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
)

type runnerFunc func(ctx context.Context) (orchestrator.Report, error)

func (f runnerFunc) RunOnce(ctx context.Context) (orchestrator.Report, error) {
	return f(ctx)
}

func TestNew_invalidExpression(t *testing.T) {
	_, err := New(runnerFunc(nil), "every tuesday", time.UTC, slog.Default())
	assert.Error(t, err)
}

func TestTrigger_Next(t *testing.T) {
	tr, err := New(runnerFunc(nil), "0 0 6 * * *", time.UTC, slog.Default())
	require.NoError(t, err)

	now := time.Date(2022, time.November, 14, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2022, time.November, 15, 6, 0, 0, 0, time.UTC), tr.Next(now))

	minutes, err := New(runnerFunc(nil), "30 5 * * *", time.UTC, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, time.November, 15, 5, 30, 0, 0, time.UTC), minutes.Next(now))
}

func TestTrigger_Fire_doesNotOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := runnerFunc(func(context.Context) (orchestrator.Report, error) {
		close(started)
		<-release
		return orchestrator.Report{Due: 1}, nil
	})
	tr, err := New(runner, "@daily", time.UTC, slog.Default())
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		first orchestrator.Report
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = tr.Fire(context.Background())
	}()

	<-started
	_, err = tr.Fire(context.Background())
	assert.ErrorIs(t, err, serviceerrs.ErrRunInProgress)

	close(release)
	wg.Wait()
	assert.Equal(t, 1, first.Due)
}

func TestTrigger_Fire_wrapsRunError(t *testing.T) {
	errSource := errors.New("order source down")
	tr, err := New(runnerFunc(func(context.Context) (orchestrator.Report, error) {
		return orchestrator.Report{}, errSource
	}), "@daily", time.UTC, slog.Default())
	require.NoError(t, err)

	_, err = tr.Fire(context.Background())
	assert.ErrorIs(t, err, errSource)
}

func TestTrigger_Start(t *testing.T) {
	fired := make(chan struct{}, 8)
	tr, err := New(runnerFunc(func(context.Context) (orchestrator.Report, error) {
		fired <- struct{}{}
		return orchestrator.Report{}, nil
	}), "* * * * * *", time.UTC, slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Start(ctx)
	}()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("trigger did not fire")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("trigger did not stop")
	}
}
