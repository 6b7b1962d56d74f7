package order

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

type Frequency string

const (
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyBiweekly  Frequency = "BIWEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

type Strategy string

const (
	StrategyNone   Strategy = "NONE"
	StrategyBefore Strategy = "BEFORE"
	StrategyAfter  Strategy = "AFTER"
)

type Status string

const (
	StatusReady    Status = "READY"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

const (
	BankStatusReady    = "READY"
	BankStatusRejected = "REJECTED"
)

// Keys of the engine-owned entries in the order additions.
const (
	AdditionExecutionCount        = "executionCount"
	AdditionOriginalExecutionDate = "originalExecutionDate"
	AdditionLastExecutionDate     = "lastExecutionDate"
)

var idempotencyNamespace = uuid.MustParse("6f0c7c1e-35b4-4c59-9a35-3d2f7c1b9a10")

type Schedule struct {
	EndDate                        *timex.Date
	NextExecutionDate              *timex.Date
	Repeat                         *int
	TransferFrequency              Frequency
	NonWorkingDayExecutionStrategy Strategy
	StartDate                      timex.Date
	Every                          int
}

type Account struct {
	ArrangementID  string
	Name           string
	Identification string
}

// ScheduledOrder is one recurring payment instruction.
type ScheduledOrder struct {
	OriginalExecutionDate *timex.Date
	// LastExecutionDate is the run date of the last write-back.
	LastExecutionDate *timex.Date
	// Additions holds every addition that is not owned by the engine.
	Additions             map[string]string
	ID                    string
	PaymentType           string
	ServiceAgreementID    string
	Originator            string
	Counterparty          string
	Currency              string
	RemittanceInformation string
	OriginatorAccount     Account
	CounterpartyAccount   Account
	Amount                decimal.Decimal
	Schedule              Schedule
	ExecutionCount        int
}

// FromDTO converts a raw candidate from the order source. A candidate that
// breaks the data contract is reported as an error.
func FromDTO(dto model.DTOPaymentOrder) (ScheduledOrder, error) {
	if dto.ID == "" {
		return ScheduledOrder{}, fmt.Errorf("%w: empty payment order id", serviceerrs.ErrMalformedResponse)
	}
	if dto.Schedule == nil {
		return ScheduledOrder{}, fmt.Errorf("%w: order %s has no schedule", serviceerrs.ErrInvalidSchedule, dto.ID)
	}

	schedule, err := scheduleFromDTO(dto.Schedule)
	if err != nil {
		return ScheduledOrder{}, fmt.Errorf("order %s: %w", dto.ID, err)
	}

	info := dto.TransferTransactionInformation
	amount, err := decimal.NewFromString(info.InstructedAmount.Amount)
	if err != nil {
		return ScheduledOrder{}, fmt.Errorf("%w: order %s has invalid amount %q",
			serviceerrs.ErrMalformedResponse, dto.ID, info.InstructedAmount.Amount)
	}

	o := ScheduledOrder{
		ID:                    dto.ID,
		PaymentType:           dto.PaymentType,
		ServiceAgreementID:    dto.ServiceAgreementID,
		Originator:            dto.Originator.Name,
		Counterparty:          info.Counterparty.Name,
		Currency:              info.InstructedAmount.CurrencyCode,
		RemittanceInformation: info.RemittanceInformation,
		OriginatorAccount:     accountFromDTO(dto.OriginatorAccount),
		CounterpartyAccount:   accountFromDTO(info.CounterpartyAccount),
		Amount:                amount,
		Schedule:              schedule,
		Additions:             make(map[string]string, len(dto.Additions)),
	}

	for k, v := range dto.Additions {
		switch k {
		case AdditionExecutionCount:
			count, err := strconv.Atoi(v)
			if err != nil || count < 0 {
				return ScheduledOrder{}, fmt.Errorf("%w: order %s has invalid %s %q",
					serviceerrs.ErrMalformedResponse, dto.ID, AdditionExecutionCount, v)
			}
			o.ExecutionCount = count
		case AdditionOriginalExecutionDate:
			if v == "" {
				continue
			}
			d, err := timex.ParseDate(v)
			if err != nil {
				return ScheduledOrder{}, fmt.Errorf("%w: order %s has invalid %s %q",
					serviceerrs.ErrMalformedResponse, dto.ID, AdditionOriginalExecutionDate, v)
			}
			o.OriginalExecutionDate = &d
		case AdditionLastExecutionDate:
			if v == "" {
				continue
			}
			d, err := timex.ParseDate(v)
			if err != nil {
				return ScheduledOrder{}, fmt.Errorf("%w: order %s has invalid %s %q",
					serviceerrs.ErrMalformedResponse, dto.ID, AdditionLastExecutionDate, v)
			}
			o.LastExecutionDate = &d
		default:
			o.Additions[k] = v
		}
	}

	return o, nil
}

func scheduleFromDTO(dto *model.DTOSchedule) (Schedule, error) {
	every, err := strconv.Atoi(strings.TrimSpace(dto.Every))
	if err != nil || every < 1 {
		return Schedule{}, fmt.Errorf("%w: every must be a positive integer, got %q",
			serviceerrs.ErrInvalidSchedule, dto.Every)
	}

	frequency := Frequency(strings.ToUpper(dto.TransferFrequency))
	if !frequency.Valid() {
		return Schedule{}, fmt.Errorf("%w: unknown transfer frequency %q",
			serviceerrs.ErrInvalidSchedule, dto.TransferFrequency)
	}

	strategy := Strategy(strings.ToUpper(dto.NonWorkingDayExecutionStrategy))
	switch strategy {
	case "":
		strategy = StrategyNone
	case StrategyNone, StrategyBefore, StrategyAfter:
	default:
		return Schedule{}, fmt.Errorf("%w: unknown non-working day strategy %q",
			serviceerrs.ErrInvalidSchedule, dto.NonWorkingDayExecutionStrategy)
	}

	if dto.StartDate.IsZero() {
		return Schedule{}, fmt.Errorf("%w: start date is required", serviceerrs.ErrInvalidSchedule)
	}

	return Schedule{
		TransferFrequency:              frequency,
		Every:                          every,
		StartDate:                      dto.StartDate,
		EndDate:                        dto.EndDate,
		Repeat:                         dto.Repeat,
		NonWorkingDayExecutionStrategy: strategy,
		NextExecutionDate:              dto.NextExecutionDate,
	}, nil
}

func accountFromDTO(dto model.DTOAccount) Account {
	return Account{
		ArrangementID:  dto.ArrangementID,
		Name:           dto.Name,
		Identification: dto.Identification.Identification,
	}
}

func (a Account) toDTO() model.DTOAccount {
	return model.DTOAccount{
		ArrangementID: a.ArrangementID,
		Name:          a.Name,
		Identification: model.DTOIdentification{
			Identification: a.Identification,
			SchemeName:     model.SchemeNameBBAN,
		},
	}
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly,
		FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// IdempotencyKey is stable for one order on one execution date, so a
// resubmission after a crash can be deduplicated downstream.
func (o ScheduledOrder) IdempotencyKey(executionDate timex.Date) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(o.ID+"/"+executionDate.String())).String()
}

// SubmissionRequest builds the outbound payload for executing the order on
// executionDate as a single payment.
func (o ScheduledOrder) SubmissionRequest(executionDate timex.Date) model.DTOSubmissionRequest {
	return model.DTOSubmissionRequest{
		ID:                o.ID,
		PaymentMode:       model.PaymentModeSingle,
		PaymentType:       o.PaymentType,
		IdempotencyKey:    o.IdempotencyKey(executionDate),
		Originator:        model.DTOInvolvedParty{Name: o.Originator},
		OriginatorAccount: o.OriginatorAccount.toDTO(),
		TransferTransactionInformation: model.DTOTransferInformation{
			Counterparty:          model.DTOInvolvedParty{Name: o.Counterparty},
			CounterpartyAccount:   o.CounterpartyAccount.toDTO(),
			RemittanceInformation: o.RemittanceInformation,
			InstructedAmount: model.DTOAmount{
				Amount:       o.AmountString(),
				CurrencyCode: o.Currency,
			},
		},
		RequestedExecutionDate: executionDate,
		Additions:              o.AllAdditions(),
	}
}

// AmountString renders the amount with the scale it was instructed with,
// so "50.00" stays "50.00".
func (o ScheduledOrder) AmountString() string {
	return o.Amount.StringFixed(max(0, -o.Amount.Exponent()))
}

func (o ScheduledOrder) LimitCheckRequest() model.DTOLimitCheckRequest {
	return model.DTOLimitCheckRequest{
		Amount:             o.AmountString(),
		Currency:           o.Currency,
		PaymentType:        o.PaymentType,
		ServiceAgreementID: o.ServiceAgreementID,
		ArrangementID:      o.OriginatorAccount.ArrangementID,
		State:              model.LimitStateNew,
	}
}

// AllAdditions renders the typed engine fields back into the wire map
// together with the pass-through entries.
func (o ScheduledOrder) AllAdditions() map[string]string {
	out := make(map[string]string, len(o.Additions)+3)
	for k, v := range o.Additions {
		out[k] = v
	}
	if o.ExecutionCount > 0 {
		out[AdditionExecutionCount] = strconv.Itoa(o.ExecutionCount)
	}
	if o.OriginalExecutionDate != nil {
		out[AdditionOriginalExecutionDate] = o.OriginalExecutionDate.String()
	}
	if o.LastExecutionDate != nil {
		out[AdditionLastExecutionDate] = o.LastExecutionDate.String()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// UpdateAdditions renders the engine-owned additions for an order update
// written back on runDate. A nil originalExecutionDate with clearOriginal set
// writes an explicit null.
func UpdateAdditions(runDate timex.Date, executionCount int,
	originalExecutionDate *timex.Date, clearOriginal bool,
) map[string]*string {
	count := strconv.Itoa(executionCount)
	last := runDate.String()
	additions := map[string]*string{
		AdditionExecutionCount:    &count,
		AdditionLastExecutionDate: &last,
	}
	switch {
	case originalExecutionDate != nil:
		s := originalExecutionDate.String()
		additions[AdditionOriginalExecutionDate] = &s
	case clearOriginal:
		additions[AdditionOriginalExecutionDate] = nil
	}
	return additions
}
