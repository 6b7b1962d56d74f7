package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talx-hub/payment-scheduler/internal/gateway"
	"github.com/talx-hub/payment-scheduler/internal/iterator"
	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/model/order"
	"github.com/talx-hub/payment-scheduler/internal/recurrence"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
	"github.com/talx-hub/payment-scheduler/internal/timex"
	"github.com/talx-hub/payment-scheduler/internal/workerpool"
)

type OrderUpdater interface {
	UpdatePaymentOrder(ctx context.Context, id string, u model.DTOOrderUpdate) error
}

type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, rec model.DTOTransactionRecord,
	) (model.DTOTransactionResponse, error)
}

type Submitter interface {
	Submit(ctx context.Context, req model.DTOSubmissionRequest) (gateway.Outcome, error)
}

type DateAdjuster interface {
	Adjust(ctx context.Context, candidate timex.Date, strategy order.Strategy,
	) (timex.Date, bool, error)
}

type LimitChecker interface {
	Check(ctx context.Context, o order.ScheduledOrder) error
}

// Dependencies are the collaborators of a run. Limits may be nil.
type Dependencies struct {
	Source   iterator.OrderSource
	Updater  OrderUpdater
	Recorder TransactionRecorder
	Gateway  Submitter
	Adjuster DateAdjuster
	Limits   LimitChecker
}

type Config struct {
	Location    *time.Location
	Filter      model.OrderFilter
	PageSize    int
	Concurrency int
}

// Report summarises one run. Failed counts both orders that could not be
// read and due orders whose processing stopped with an error.
type Report struct {
	Fetched   int `json:"fetched"`
	Due       int `json:"due"`
	Succeeded int `json:"succeeded"`
	Rejected  int `json:"rejected"`
	Ended     int `json:"ended"`
	Failed    int `json:"failed"`
}

type Orchestrator struct {
	deps Dependencies
	pool *workerpool.WorkerPool
	log  *slog.Logger
	now  func() time.Time
	cfg  Config
}

func New(deps Dependencies, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Orchestrator{
		deps: deps,
		pool: workerpool.New(cfg.Concurrency, log),
		log:  log.With(slog.String("service", "orchestrator")),
		now:  time.Now,
		cfg:  cfg,
	}
}

type result struct {
	outcome gateway.Outcome
	ended   bool
}

// RunOnce processes every order due today. Only a failure to fetch a page
// aborts the run; failures of single orders are counted in the report.
func (o *Orchestrator) RunOnce(ctx context.Context) (Report, error) {
	now := o.now()
	today := timex.Today(now, o.cfg.Location)
	log := o.log.With(slog.String("run_date", today.String()))
	log.LogAttrs(ctx, slog.LevelInfo, "scheduled payment run started")

	report := Report{}
	it := iterator.New(o.deps.Source, o.cfg.PageSize, o.cfg.Filter, log)
	for it.HasNext() {
		batch, err := it.Next(ctx)
		if err != nil {
			log.LogAttrs(ctx,
				slog.LevelError,
				"scheduled payment run aborted",
				slog.Any(model.KeyLoggerError, err),
			)
			return report, fmt.Errorf("failed to iterate scheduled payment orders: %w", err)
		}
		report.Fetched += len(batch)

		due := o.selectDue(ctx, batch, today, &report)
		if len(due) == 0 {
			continue
		}
		report.Due += len(due)

		results := make([]result, len(due))
		jobs := make([]workerpool.Job, len(due))
		for i, so := range due {
			jobs[i] = func(ctx context.Context) error {
				res, err := o.process(ctx, so, today, now)
				results[i] = res
				return err
			}
		}

		errs := o.pool.Run(ctx, jobs)
		for i, err := range errs {
			if err != nil {
				report.Failed++
				log.LogAttrs(ctx,
					slog.LevelError,
					"failed to process scheduled payment order",
					slog.String(model.KeyLoggerOrderID, due[i].ID),
					slog.Any(model.KeyLoggerError, err),
				)
				continue
			}
			if results[i].outcome.Rejected() {
				report.Rejected++
			} else {
				report.Succeeded++
			}
			if results[i].ended {
				report.Ended++
			}
		}
	}

	log.LogAttrs(ctx,
		slog.LevelInfo,
		"scheduled payment run finished",
		slog.Int("fetched", report.Fetched),
		slog.Int("due", report.Due),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("rejected", report.Rejected),
		slog.Int("ended", report.Ended),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

func (o *Orchestrator) selectDue(ctx context.Context,
	batch []model.DTOPaymentOrder, today timex.Date, report *Report,
) []order.ScheduledOrder {
	due := make([]order.ScheduledOrder, 0, len(batch))
	for _, dto := range batch {
		so, err := order.FromDTO(dto)
		if err != nil {
			report.Failed++
			o.log.LogAttrs(ctx,
				slog.LevelError,
				"skipping scheduled payment order",
				slog.String(model.KeyLoggerOrderID, dto.ID),
				slog.Any(model.KeyLoggerError, err),
			)
			continue
		}
		if !recurrence.IsDue(so, today) {
			o.log.LogAttrs(ctx,
				slog.LevelDebug,
				"scheduled payment order is not due",
				slog.String(model.KeyLoggerOrderID, so.ID),
			)
			continue
		}
		due = append(due, so)
	}
	return due
}

func (o *Orchestrator) process(ctx context.Context,
	so order.ScheduledOrder, today timex.Date, now time.Time,
) (result, error) {
	outcome, err := o.execute(ctx, so, today)
	if err != nil {
		return result{}, err
	}

	rec := model.DTOTransactionRecord{
		ScheduledPaymentOrderID: so.ID,
		BankReferenceID:         outcome.BankReferenceID,
		Status:                  outcome.BankStatus,
		Amount:                  so.AmountString(),
		ReasonCode:              outcome.ReasonCode,
		ReasonText:              outcome.ReasonText,
		ExecutionDate:           today,
	}
	if _, err = o.deps.Recorder.RecordTransaction(ctx, rec); err != nil {
		return result{outcome: outcome}, fmt.Errorf("failed to record transaction: %w", err)
	}

	ended, err := o.advance(ctx, so, outcome, today, now)
	if err != nil {
		return result{outcome: outcome}, err
	}
	return result{outcome: outcome, ended: ended}, nil
}

// execute runs the limit check and submits the order. A limit breach is an
// ordinary rejected outcome; nothing is submitted for it.
func (o *Orchestrator) execute(ctx context.Context, so order.ScheduledOrder, today timex.Date,
) (gateway.Outcome, error) {
	if o.deps.Limits != nil {
		err := o.deps.Limits.Check(ctx, so)
		var rejected *serviceerrs.LimitRejectedError
		switch {
		case errors.As(err, &rejected):
			return gateway.Outcome{
				BankStatus: order.BankStatusRejected,
				ReasonCode: rejected.ReasonCode,
				ReasonText: rejected.ReasonText,
			}, nil
		case err != nil:
			return gateway.Outcome{}, err
		}
	}

	outcome, err := o.deps.Gateway.Submit(ctx, so.SubmissionRequest(today))
	if err != nil {
		return gateway.Outcome{}, fmt.Errorf("failed to submit payment order: %w", err)
	}
	return outcome, nil
}

// advance writes the next execution date back to the order source. It
// reports whether the recurrence has ended.
func (o *Orchestrator) advance(ctx context.Context,
	so order.ScheduledOrder, outcome gateway.Outcome, today timex.Date, now time.Time,
) (bool, error) {
	count := so.ExecutionCount + 1
	update := model.DTOOrderUpdate{
		Status:     string(order.StatusReady),
		BankStatus: order.BankStatusReady,
		Audit: model.DTOAudit{
			Timestamp: now,
			User:      model.AuditUser,
		},
	}

	ended := false
	switch {
	case outcome.NextExecutionDate != nil:
		update.NextExecutionDate = outcome.NextExecutionDate
		update.Additions = order.UpdateAdditions(today, count, nil, false)
	default:
		candidate, err := recurrence.NextDate(so.Schedule, recurrence.BaseDate(so, today))
		if errors.Is(err, serviceerrs.ErrRecurrenceEnded) {
			ended = true
			update.EndRecurrence = true
			update.Additions = order.UpdateAdditions(today, count, nil, false)
			break
		}
		if err != nil {
			return false, fmt.Errorf("failed to calculate next execution date: %w", err)
		}

		final, adjusted, err := o.deps.Adjuster.Adjust(ctx, candidate,
			so.Schedule.NonWorkingDayExecutionStrategy)
		if err != nil {
			return false, fmt.Errorf("failed to adjust next execution date: %w", err)
		}
		update.NextExecutionDate = &final
		if adjusted {
			update.Additions = order.UpdateAdditions(today, count, &candidate, true)
		} else {
			update.Additions = order.UpdateAdditions(today, count, nil, true)
		}
	}

	if err := o.deps.Updater.UpdatePaymentOrder(ctx, so.ID, update); err != nil {
		return false, fmt.Errorf("failed to update payment order: %w", err)
	}

	attrs := []slog.Attr{
		slog.String(model.KeyLoggerOrderID, so.ID),
		slog.Int("execution_count", count),
		slog.Bool("ended", ended),
	}
	if update.NextExecutionDate != nil {
		attrs = append(attrs, slog.String("next_execution_date", update.NextExecutionDate.String()))
	}
	o.log.LogAttrs(ctx, slog.LevelInfo, "scheduled payment order advanced", attrs...)
	return ended, nil
}
