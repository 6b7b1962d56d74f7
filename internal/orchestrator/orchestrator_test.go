package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/payment-scheduler/internal/gateway"
	"github.com/talx-hub/payment-scheduler/internal/limits"
	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/model/order"
	"github.com/talx-hub/payment-scheduler/internal/recurrence"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

type env struct {
	store     *fakeStore
	submitter *fakeSubmitter
	validator *fakeValidator
	orch      *Orchestrator
}

func newEnv(t *testing.T, today timex.Date, source *fakeSource, submit submitFunc, lim LimitChecker) *env {
	t.Helper()

	log := slog.Default()
	e := &env{
		store:     newFakeStore(),
		submitter: newFakeSubmitter(submit),
		validator: &fakeValidator{},
	}
	gw := gateway.New(e.submitter, gateway.Config{
		RetryableReasonCodes: []string{"TEMP"},
		RetryableFaultKinds:  []string{serviceerrs.KindTimeout},
		MaxAttempts:          3,
		BackoffDelay:         time.Millisecond,
		BackoffMultiplier:    2,
		MaxBackoffDelay:      5 * time.Millisecond,
	}, log)

	e.orch = New(Dependencies{
		Source:   source,
		Updater:  e.store,
		Recorder: e.store,
		Gateway:  gw,
		Adjuster: recurrence.NewAdjuster(e.validator, log),
		Limits:   lim,
	}, Config{PageSize: 2, Concurrency: 2}, log)

	fixed := today.Add(9 * time.Hour)
	e.orch.now = func() time.Time { return fixed }
	return e
}

func monthlyOrder(id string, today timex.Date) model.DTOPaymentOrder {
	return model.DTOPaymentOrder{
		ID:          id,
		PaymentType: "INTERNAL_TRANSFER",
		TransferTransactionInformation: model.DTOTransferInformation{
			InstructedAmount: model.DTOAmount{Amount: "50.00", CurrencyCode: "EUR"},
		},
		Schedule: &model.DTOSchedule{
			TransferFrequency: "MONTHLY",
			Every:             "1",
			StartDate:         today.AddMonths(-1),
			NextExecutionDate: today.Ptr(),
		},
		Additions: map[string]string{order.AdditionExecutionCount: "1"},
	}
}

func countOf(t *testing.T, u model.DTOOrderUpdate) string {
	t.Helper()
	v := u.Additions[order.AdditionExecutionCount]
	require.NotNil(t, v)
	return *v
}

func TestOrchestrator_RunOnce_monthly(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	src := &fakeSource{pages: [][]model.DTOPaymentOrder{{monthlyOrder("po-1", today)}}}
	e := newEnv(t, today, src, accepted, nil)

	report, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Fetched: 1, Due: 1, Succeeded: 1}, report)

	rec := e.store.records["po-1"]
	assert.Equal(t, "ACCEPTED", rec.Status)
	assert.Equal(t, "50.00", rec.Amount)
	assert.Equal(t, today, rec.ExecutionDate)

	u := e.store.updates["po-1"]
	require.NotNil(t, u.NextExecutionDate)
	assert.Equal(t, "2022-12-14", u.NextExecutionDate.String())
	assert.Equal(t, string(order.StatusReady), u.Status)
	assert.Equal(t, order.BankStatusReady, u.BankStatus)
	assert.Equal(t, model.AuditUser, u.Audit.User)
	assert.Equal(t, "2", countOf(t, u))
	assert.False(t, u.EndRecurrence)
	last := u.Additions[order.AdditionLastExecutionDate]
	require.NotNil(t, last)
	assert.Equal(t, today.String(), *last)
	original, present := u.Additions[order.AdditionOriginalExecutionDate]
	assert.True(t, present)
	assert.Nil(t, original)
}

func TestOrchestrator_RunOnce_adjustedDateKeepsOriginal(t *testing.T) {
	today := timex.NewDateOf(2022, time.October, 12)
	dto := monthlyOrder("po-1", today)
	dto.Schedule.NonWorkingDayExecutionStrategy = "AFTER"
	src := &fakeSource{pages: [][]model.DTOPaymentOrder{{dto}}}
	e := newEnv(t, today, src, accepted, nil)

	_, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)

	u := e.store.updates["po-1"]
	require.NotNil(t, u.NextExecutionDate)
	assert.Equal(t, "2022-11-14", u.NextExecutionDate.String())
	original := u.Additions[order.AdditionOriginalExecutionDate]
	require.NotNil(t, original)
	assert.Equal(t, "2022-11-12", *original)
}

func TestOrchestrator_RunOnce_outboundNextDateIsUsedVerbatim(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	saturday := timex.NewDateOf(2022, time.December, 17)
	src := &fakeSource{pages: [][]model.DTOPaymentOrder{{monthlyOrder("po-1", today)}}}
	e := newEnv(t, today, src, func(model.DTOSubmissionRequest) (model.DTOSubmissionResponse, error) {
		return model.DTOSubmissionResponse{BankStatus: "ACCEPTED", NextExecutionDate: &saturday}, nil
	}, nil)

	_, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)

	u := e.store.updates["po-1"]
	require.NotNil(t, u.NextExecutionDate)
	assert.Equal(t, saturday, *u.NextExecutionDate)
	_, present := u.Additions[order.AdditionOriginalExecutionDate]
	assert.False(t, present)
	assert.Zero(t, e.validator.callCount())
}

func TestOrchestrator_RunOnce_recurrenceEnded(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	dto := monthlyOrder("po-1", today)
	dto.Schedule.EndDate = timex.NewDateOf(2022, time.December, 1).Ptr()
	src := &fakeSource{pages: [][]model.DTOPaymentOrder{{dto}}}
	e := newEnv(t, today, src, accepted, nil)

	report, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ended)
	assert.Equal(t, 1, report.Succeeded)

	u := e.store.updates["po-1"]
	assert.Nil(t, u.NextExecutionDate)
	assert.True(t, u.EndRecurrence)
	assert.Equal(t, "2", countOf(t, u))
	assert.Zero(t, e.validator.callCount())
}

func TestOrchestrator_RunOnce_endedOrderRunsOncePerDay(t *testing.T) {
	tests := []struct {
		name         string
		keepNextDate bool
	}{
		{name: "source clears next date", keepNextDate: false},
		{name: "source keeps next date", keepNextDate: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			today := timex.NewDateOf(2022, time.November, 14)
			dto := monthlyOrder("po-1", today)
			dto.Schedule.EndDate = timex.NewDateOf(2022, time.December, 1).Ptr()
			src := &fakeSource{pages: [][]model.DTOPaymentOrder{{dto}}}
			e := newEnv(t, today, src, accepted, nil)
			ctx := context.Background()

			first, err := e.orch.RunOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, first.Ended)

			src.writeBack(e.store.updates, tt.keepNextDate)
			delete(e.store.updates, "po-1")

			second, err := e.orch.RunOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, Report{Fetched: 1}, second)
			assert.Equal(t, 1, e.submitter.callsFor("po-1"))
			assert.Empty(t, e.store.updates)
		})
	}
}

func TestOrchestrator_RunOnce_rerunAfterFailedWriteBackResubmits(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	src := &fakeSource{pages: [][]model.DTOPaymentOrder{{monthlyOrder("po-1", today)}}}
	e := newEnv(t, today, src, accepted, nil)
	e.store.recordErrOn["po-1"] = true
	ctx := context.Background()

	_, err := e.orch.RunOnce(ctx)
	require.NoError(t, err)
	src.writeBack(e.store.updates, false)
	delete(e.store.recordErrOn, "po-1")

	report, err := e.orch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Fetched: 1, Due: 1, Succeeded: 1}, report)
	assert.Equal(t, 2, e.submitter.callsFor("po-1"))
}

func TestOrchestrator_RunOnce_firstExecution(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	dto := monthlyOrder("po-1", today)
	dto.Schedule.StartDate = today
	dto.Schedule.NextExecutionDate = nil
	dto.Additions = nil
	src := &fakeSource{pages: [][]model.DTOPaymentOrder{{dto}}}
	e := newEnv(t, today, src, accepted, nil)

	report, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Fetched: 1, Due: 1, Succeeded: 1}, report)

	u := e.store.updates["po-1"]
	assert.Equal(t, "1", countOf(t, u))
	require.NotNil(t, u.NextExecutionDate)
	assert.Equal(t, "2022-12-14", u.NextExecutionDate.String())
	assert.Equal(t, string(order.StatusReady), u.Status)
	assert.False(t, u.EndRecurrence)
}

func TestOrchestrator_RunOnce_exhaustedRetriesStillAdvance(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	src := &fakeSource{pages: [][]model.DTOPaymentOrder{{monthlyOrder("po-1", today)}}}
	e := newEnv(t, today, src, func(model.DTOSubmissionRequest) (model.DTOSubmissionResponse, error) {
		return model.DTOSubmissionResponse{}, serviceerrs.NewTransportError(context.DeadlineExceeded)
	}, nil)

	report, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 3, e.submitter.callsFor("po-1"))

	rec := e.store.records["po-1"]
	assert.Equal(t, order.BankStatusRejected, rec.Status)
	assert.Equal(t, gateway.ReasonTextFailure, rec.ReasonText)

	u := e.store.updates["po-1"]
	require.NotNil(t, u.NextExecutionDate)
	assert.Equal(t, "2022-12-14", u.NextExecutionDate.String())
}

func TestOrchestrator_RunOnce_recordFailureDoesNotAdvance(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	src := &fakeSource{pages: [][]model.DTOPaymentOrder{{
		monthlyOrder("po-1", today),
		monthlyOrder("po-2", today),
	}}}
	e := newEnv(t, today, src, accepted, nil)
	e.store.recordErrOn["po-1"] = true

	report, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Fetched: 2, Due: 2, Succeeded: 1, Failed: 1}, report)

	_, advanced := e.store.updates["po-1"]
	assert.False(t, advanced)
	_, advanced = e.store.updates["po-2"]
	assert.True(t, advanced)
}

func TestOrchestrator_RunOnce_panicIsIsolated(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	var page []model.DTOPaymentOrder
	for i := range 5 {
		page = append(page, monthlyOrder(fmt.Sprintf("po-%d", i), today))
	}
	src := &fakeSource{pages: [][]model.DTOPaymentOrder{page[:2], page[2:4], page[4:]}}
	e := newEnv(t, today, src, func(req model.DTOSubmissionRequest) (model.DTOSubmissionResponse, error) {
		if req.ID == "po-2" {
			panic("outbound client bug")
		}
		return accepted(req)
	}, nil)

	report, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Fetched: 5, Due: 5, Succeeded: 4, Failed: 1}, report)
	assert.Len(t, e.store.updates, 4)
	_, advanced := e.store.updates["po-2"]
	assert.False(t, advanced)
}

func TestOrchestrator_RunOnce_limitRejection(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	src := &fakeSource{pages: [][]model.DTOPaymentOrder{{monthlyOrder("po-1", today)}}}
	lim := &fakeLimits{
		rejectID: "po-1",
		err:      &serviceerrs.LimitRejectedError{ReasonCode: limits.ReasonCodeExceeded, ReasonText: "daily limit"},
	}
	e := newEnv(t, today, src, accepted, lim)

	report, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)
	assert.Zero(t, e.submitter.callsFor("po-1"))

	rec := e.store.records["po-1"]
	assert.Equal(t, order.BankStatusRejected, rec.Status)
	assert.Equal(t, limits.ReasonCodeExceeded, rec.ReasonCode)
	_, advanced := e.store.updates["po-1"]
	assert.True(t, advanced)
}

func TestOrchestrator_RunOnce_skipsNotDueAndMalformed(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	notDue := monthlyOrder("po-later", today)
	notDue.Schedule.NextExecutionDate = today.AddDays(3).Ptr()
	malformed := monthlyOrder("po-bad", today)
	malformed.Schedule.Every = "never"
	repeatMet := monthlyOrder("po-done", today)
	repeat := 1
	repeatMet.Schedule.Repeat = &repeat

	src := &fakeSource{pages: [][]model.DTOPaymentOrder{
		{notDue, malformed},
		{repeatMet, monthlyOrder("po-1", today)},
	}}
	e := newEnv(t, today, src, accepted, nil)

	report, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Fetched: 4, Due: 1, Succeeded: 1, Failed: 1}, report)
	assert.Len(t, e.store.updates, 1)
	assert.Zero(t, e.submitter.callsFor("po-done"))
}

func TestOrchestrator_RunOnce_sourceFailure(t *testing.T) {
	today := timex.NewDateOf(2022, time.November, 14)
	e := newEnv(t, today, &fakeSource{err: errUnexpected}, accepted, nil)

	_, err := e.orch.RunOnce(context.Background())
	assert.ErrorIs(t, err, errUnexpected)
}
