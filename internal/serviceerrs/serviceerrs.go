package serviceerrs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

var (
	ErrExhaustedIterator = errors.New("no more scheduled payment orders available")
	ErrRecurrenceEnded   = errors.New("recurrence ended")
	ErrInvalidSchedule   = errors.New("invalid schedule")
	ErrMalformedResponse = errors.New("malformed collaborator response")
	ErrMalformedRequest  = errors.New("malformed request")
	ErrRunInProgress     = errors.New("a run is already in progress")
	ErrTokenExpired      = errors.New("token expired")
)

const (
	KindTimeout    = "timeout"
	KindConnection = "connection"
	KindPanic      = "panic"
)

// StatusError is returned by HTTP collaborators for non-2xx responses.
type StatusError struct {
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d\nBody: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Kind() string {
	return "http_" + strconv.Itoa(e.StatusCode)
}

// TransportError is a request that never produced a response.
type TransportError struct {
	Err   error
	Class string
}

func NewTransportError(err error) *TransportError {
	kind := KindConnection
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &TransportError{Err: err, Class: kind}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Class, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Kind() string {
	return e.Class
}

type LimitRejectedError struct {
	ReasonCode string
	ReasonText string
}

func (e *LimitRejectedError) Error() string {
	return fmt.Sprintf("limit check rejected: %s %s", e.ReasonCode, e.ReasonText)
}

// PanicError carries a value recovered from a panicking unit of work.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("recovered from panic: %v", e.Value)
}

func (e *PanicError) Kind() string {
	return KindPanic
}

type kinded interface {
	Kind() string
}

// FaultKind names the class of a failure so it can be matched against a
// configured list of retryable kinds.
func FaultKind(err error) string {
	if err == nil {
		return ""
	}

	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
