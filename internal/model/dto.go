package model

import (
	"time"

	"github.com/talx-hub/payment-scheduler/internal/timex"
)

const (
	PaymentModeRecurring = "RECURRING"
	PaymentModeSingle    = "SINGLE"

	SchemeNameBBAN = "BBAN"

	IDTypeInternal = "INTERNALID"

	ValidationStatusOK         = "OK"
	ValidationStatusRestricted = "RESTRICTED_DATE_DETECTED"

	LimitStateNew = "NEW"
)

// OrderFilter is the static selection sent to the order source on every page.
type OrderFilter struct {
	PaymentTypes []string `json:"paymentTypes,omitempty"`
	Statuses     []string `json:"statuses,omitempty"`
}

type DTOFilterResponse struct {
	PaymentOrders []DTOPaymentOrder `json:"paymentOrders"`
	TotalElements int               `json:"totalElements"`
}

type DTOIdentification struct {
	Identification string `json:"identification"`
	SchemeName     string `json:"schemeName,omitempty"`
}

type DTOAccount struct {
	ArrangementID  string            `json:"arrangementId,omitempty"`
	Name           string            `json:"name,omitempty"`
	Identification DTOIdentification `json:"identification"`
}

type DTOInvolvedParty struct {
	Name string `json:"name,omitempty"`
}

type DTOAmount struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type DTOTransferInformation struct {
	Counterparty          DTOInvolvedParty `json:"counterparty"`
	CounterpartyAccount   DTOAccount       `json:"counterpartyAccount"`
	InstructedAmount      DTOAmount        `json:"instructedAmount"`
	RemittanceInformation string           `json:"remittanceInformation,omitempty"`
}

type DTOSchedule struct {
	TransferFrequency              string      `json:"transferFrequency"`
	Every                          string      `json:"every"`
	NonWorkingDayExecutionStrategy string      `json:"nonWorkingDayExecutionStrategy,omitempty"`
	StartDate                      timex.Date  `json:"startDate"`
	EndDate                        *timex.Date `json:"endDate,omitempty"`
	NextExecutionDate              *timex.Date `json:"nextExecutionDate,omitempty"`
	Repeat                         *int        `json:"repeat,omitempty"`
}

// DTOPaymentOrder is a payment order as returned by the order source.
type DTOPaymentOrder struct {
	Additions                      map[string]string      `json:"additions,omitempty"`
	Schedule                       *DTOSchedule           `json:"schedule,omitempty"`
	ID                             string                 `json:"id"`
	PaymentType                    string                 `json:"paymentType"`
	PaymentMode                    string                 `json:"paymentMode,omitempty"`
	Status                         string                 `json:"status,omitempty"`
	ServiceAgreementID             string                 `json:"serviceAgreementId,omitempty"`
	Originator                     DTOInvolvedParty       `json:"originator"`
	OriginatorAccount              DTOAccount             `json:"originatorAccount"`
	TransferTransactionInformation DTOTransferInformation `json:"transferTransactionInformation"`
}

type DTOAudit struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
}

// DTOOrderUpdate is written back to the order source after an execution.
// A nil value in Additions clears that key. EndRecurrence clears the next
// execution date; otherwise a nil NextExecutionDate keeps the stored one.
type DTOOrderUpdate struct {
	Additions         map[string]*string `json:"additions"`
	NextExecutionDate *timex.Date        `json:"nextExecutionDate,omitempty"`
	Status            string             `json:"status"`
	BankStatus        string             `json:"bankStatus"`
	Audit             DTOAudit           `json:"audit"`
	EndRecurrence     bool               `json:"endRecurrence,omitempty"`
}

type DTODateValidation struct {
	NextAvailableExecutionDateBefore *timex.Date `json:"nextAvailableExecutionDateBefore,omitempty"`
	NextAvailableExecutionDateAfter  *timex.Date `json:"nextAvailableExecutionDateAfter,omitempty"`
	Status                           string      `json:"status"`
	OriginalExecutionDate            timex.Date  `json:"originalExecutionDate"`
}

// DTOSubmissionRequest is the payload sent to the outbound payment service.
type DTOSubmissionRequest struct {
	Additions                      map[string]string      `json:"additions,omitempty"`
	ID                             string                 `json:"id"`
	PaymentMode                    string                 `json:"paymentMode"`
	PaymentType                    string                 `json:"paymentType"`
	IdempotencyKey                 string                 `json:"-"`
	Originator                     DTOInvolvedParty       `json:"originator"`
	OriginatorAccount              DTOAccount             `json:"originatorAccount"`
	TransferTransactionInformation DTOTransferInformation `json:"transferTransactionInformation"`
	RequestedExecutionDate         timex.Date             `json:"requestedExecutionDate"`
}

type DTOSubmissionResponse struct {
	NextExecutionDate *timex.Date `json:"nextExecutionDate,omitempty"`
	BankReferenceID   string      `json:"bankReferenceId,omitempty"`
	BankStatus        string      `json:"bankStatus"`
	ReasonCode        string      `json:"reasonCode,omitempty"`
	ReasonText        string      `json:"reasonText,omitempty"`
	ErrorDescription  string      `json:"errorDescription,omitempty"`
}

type DTOTransactionRecord struct {
	ScheduledPaymentOrderID string     `json:"scheduledPaymentOrderId"`
	BankReferenceID         string     `json:"bankReferenceId,omitempty"`
	Status                  string     `json:"status"`
	Amount                  string     `json:"amount"`
	ReasonCode              string     `json:"reasonCode,omitempty"`
	ReasonText              string     `json:"reasonText,omitempty"`
	ExecutionDate           timex.Date `json:"executionDate"`
}

type DTOTransactionResponse struct {
	ID string `json:"id"`
}

type DTOLimitCheckRequest struct {
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	PaymentType        string `json:"paymentType"`
	ServiceAgreementID string `json:"serviceAgreementId,omitempty"`
	ArrangementID      string `json:"arrangementId,omitempty"`
	State              string `json:"state"`
}

type DTOLimitRejection struct {
	ReasonCode string `json:"reasonCode"`
	ReasonText string `json:"reasonText"`
}
