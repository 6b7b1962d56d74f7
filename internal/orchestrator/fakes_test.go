package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/model/order"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

var errUnexpected = errors.New("unexpected test error")

type fakeSource struct {
	err   error
	pages [][]model.DTOPaymentOrder
}

func (s *fakeSource) FetchDueOrders(_ context.Context, from, _ int, _ model.OrderFilter,
) (model.DTOFilterResponse, error) {
	if s.err != nil {
		return model.DTOFilterResponse{}, s.err
	}
	if from >= len(s.pages) {
		return model.DTOFilterResponse{}, nil
	}
	total := 0
	for _, p := range s.pages {
		total += len(p)
	}
	return model.DTOFilterResponse{PaymentOrders: s.pages[from], TotalElements: total}, nil
}

// writeBack applies updates to the stored candidates the way an order
// source does. keepNextDate models a source that ignores EndRecurrence.
func (s *fakeSource) writeBack(updates map[string]model.DTOOrderUpdate, keepNextDate bool) {
	for _, page := range s.pages {
		for i := range page {
			u, ok := updates[page[i].ID]
			if !ok {
				continue
			}
			additions := make(map[string]string, len(page[i].Additions)+len(u.Additions))
			for k, v := range page[i].Additions {
				additions[k] = v
			}
			for k, v := range u.Additions {
				if v == nil {
					delete(additions, k)
					continue
				}
				additions[k] = *v
			}
			page[i].Additions = additions

			schedule := *page[i].Schedule
			switch {
			case u.EndRecurrence && !keepNextDate:
				schedule.NextExecutionDate = nil
			case u.NextExecutionDate != nil:
				schedule.NextExecutionDate = u.NextExecutionDate
			}
			page[i].Schedule = &schedule
		}
	}
}

type fakeStore struct {
	updates     map[string]model.DTOOrderUpdate
	records     map[string]model.DTOTransactionRecord
	recordErrOn map[string]bool
	mu          sync.Mutex
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		updates:     map[string]model.DTOOrderUpdate{},
		records:     map[string]model.DTOTransactionRecord{},
		recordErrOn: map[string]bool{},
	}
}

func (s *fakeStore) UpdatePaymentOrder(_ context.Context, id string, u model.DTOOrderUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[id] = u
	return nil
}

func (s *fakeStore) RecordTransaction(_ context.Context, rec model.DTOTransactionRecord,
) (model.DTOTransactionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErrOn[rec.ScheduledPaymentOrderID] {
		return model.DTOTransactionResponse{}, errUnexpected
	}
	s.records[rec.ScheduledPaymentOrderID] = rec
	return model.DTOTransactionResponse{ID: "tx-" + rec.ScheduledPaymentOrderID}, nil
}

type submitFunc func(req model.DTOSubmissionRequest) (model.DTOSubmissionResponse, error)

type fakeSubmitter struct {
	fn    submitFunc
	calls map[string]int
	mu    sync.Mutex
}

func newFakeSubmitter(fn submitFunc) *fakeSubmitter {
	return &fakeSubmitter{fn: fn, calls: map[string]int{}}
}

func (s *fakeSubmitter) SubmitPaymentOrder(_ context.Context, req model.DTOSubmissionRequest,
) (model.DTOSubmissionResponse, error) {
	s.mu.Lock()
	s.calls[req.ID]++
	s.mu.Unlock()
	return s.fn(req)
}

func (s *fakeSubmitter) callsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func accepted(model.DTOSubmissionRequest) (model.DTOSubmissionResponse, error) {
	return model.DTOSubmissionResponse{BankStatus: "ACCEPTED", BankReferenceID: "ref"}, nil
}

// fakeValidator treats weekends as restricted and offers the surrounding
// Friday and Monday.
type fakeValidator struct {
	calls int
	mu    sync.Mutex
}

func (v *fakeValidator) ValidateExecutionDate(_ context.Context, d timex.Date,
) (model.DTODateValidation, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()

	if !d.IsWeekend() {
		return model.DTODateValidation{Status: model.ValidationStatusOK, OriginalExecutionDate: d}, nil
	}
	before, after := d.AddDays(-1), d.AddDays(1)
	for before.IsWeekend() {
		before = before.AddDays(-1)
	}
	for after.IsWeekend() {
		after = after.AddDays(1)
	}
	return model.DTODateValidation{
		Status:                           model.ValidationStatusRestricted,
		OriginalExecutionDate:            d,
		NextAvailableExecutionDateBefore: &before,
		NextAvailableExecutionDateAfter:  &after,
	}, nil
}

func (v *fakeValidator) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeLimits struct {
	rejectID string
	err      error
}

func (l *fakeLimits) Check(_ context.Context, o order.ScheduledOrder) error {
	if o.ID == l.rejectID {
		return l.err
	}
	return nil
}
