package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/orchestrator"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
)

type Runner interface {
	RunOnce(ctx context.Context) (orchestrator.Report, error)
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Trigger fires runs on a cron schedule and makes sure that two runs never
// overlap, whether they come from the schedule or from Fire.
type Trigger struct {
	runner   Runner
	schedule cron.Schedule
	log      *slog.Logger
	loc      *time.Location
	mu       sync.Mutex
}

func New(runner Runner, expression string, loc *time.Location, log *slog.Logger) (*Trigger, error) {
	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Trigger{
		runner:   runner,
		schedule: schedule,
		log:      log.With(slog.String("service", "trigger")),
		loc:      loc,
	}, nil
}

// Fire runs immediately unless a run is already in flight, in which case it
// returns serviceerrs.ErrRunInProgress.
func (t *Trigger) Fire(ctx context.Context) (orchestrator.Report, error) {
	if !t.mu.TryLock() {
		return orchestrator.Report{}, serviceerrs.ErrRunInProgress
	}
	defer t.mu.Unlock()

	report, err := t.runner.RunOnce(ctx)
	if err != nil {
		return report, fmt.Errorf("scheduled payment run failed: %w", err)
	}
	return report, nil
}

// Next is the next scheduled fire time after now.
func (t *Trigger) Next(now time.Time) time.Time {
	return t.schedule.Next(now.In(t.loc))
}

// Start blocks until ctx is done, firing a run at every scheduled time. It
// waits for the run in flight before returning.
func (t *Trigger) Start(ctx context.Context) {
	c := cron.New(cron.WithLocation(t.loc), cron.WithParser(parser))
	c.Schedule(t.schedule, cron.FuncJob(func() {
		if _, err := t.Fire(ctx); err != nil {
			t.log.LogAttrs(ctx,
				slog.LevelError,
				"scheduled run did not complete",
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}))

	c.Start()
	t.log.LogAttrs(ctx,
		slog.LevelInfo,
		"trigger started",
		slog.Time("next_run", t.Next(time.Now())),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	t.log.LogAttrs(context.WithoutCancel(ctx), slog.LevelInfo, "trigger stopped")
}
