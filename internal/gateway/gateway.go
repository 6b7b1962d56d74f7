package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/model/order"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

// ReasonTextFailure is reported on every terminal rejection produced by the
// gateway itself rather than by the outbound service.
const ReasonTextFailure = "Could not process scheduled payment"

type Submitter interface {
	SubmitPaymentOrder(ctx context.Context, req model.DTOSubmissionRequest,
	) (model.DTOSubmissionResponse, error)
}

type Config struct {
	RetryableReasonCodes []string
	RetryableFaultKinds  []string
	MaxAttempts          int
	BackoffDelay         time.Duration
	BackoffMultiplier    float64
	MaxBackoffDelay      time.Duration
}

// Outcome is the final result of submitting one order.
type Outcome struct {
	NextExecutionDate *timex.Date
	BankStatus        string
	ReasonCode        string
	ReasonText        string
	ErrorDescription  string
	BankReferenceID   string
	Attempts          int
}

func (o Outcome) Rejected() bool {
	return strings.EqualFold(o.BankStatus, order.BankStatusRejected)
}

type Gateway struct {
	submitter Submitter
	log       *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	cfg       Config
}

func New(submitter Submitter, cfg Config, log *slog.Logger) *Gateway {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	return &Gateway{
		submitter: submitter,
		log:       log,
		sleep:     sleepContext,
		cfg:       cfg,
	}
}

// Submit sends the request, retrying transient failures up to the configured
// number of attempts. Every failure ends in an Outcome; the only error
// returned is serviceerrs.ErrMalformedRequest.
func (g *Gateway) Submit(ctx context.Context, req model.DTOSubmissionRequest) (Outcome, error) {
	if err := validate(req); err != nil {
		return Outcome{}, err
	}

	log := g.log.With(slog.String(model.KeyLoggerOrderID, req.ID))
	var lastDetail string
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		resp, err := g.submitter.SubmitPaymentOrder(ctx, req)

		switch {
		case err == nil && !g.retryableResponse(resp):
			return fromResponse(resp, attempt), nil
		case err == nil:
			lastDetail = fmt.Sprintf("rejected with retryable reason %s: %s",
				resp.ReasonCode, resp.ReasonText)
		case g.retryableFault(err):
			lastDetail = err.Error()
		default:
			log.LogAttrs(ctx,
				slog.LevelError,
				"payment submission failed",
				slog.Int("attempt", attempt),
				slog.Any(model.KeyLoggerError, err),
			)
			return terminal(err.Error(), attempt), nil
		}

		if attempt == g.cfg.MaxAttempts {
			break
		}
		delay := g.backoff(attempt)
		log.LogAttrs(ctx,
			slog.LevelWarn,
			"retrying payment submission",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("detail", lastDetail),
		)
		if err := g.sleep(ctx, delay); err != nil {
			return terminal(fmt.Sprintf("%s; retry aborted: %v", lastDetail, err), attempt), nil
		}
	}

	log.LogAttrs(ctx,
		slog.LevelError,
		"payment submission retries exhausted",
		slog.Int("attempts", g.cfg.MaxAttempts),
		slog.String("detail", lastDetail),
	)
	return terminal(lastDetail, g.cfg.MaxAttempts), nil
}

func (g *Gateway) retryableResponse(resp model.DTOSubmissionResponse) bool {
	return strings.EqualFold(resp.BankStatus, order.BankStatusRejected) &&
		slices.Contains(g.cfg.RetryableReasonCodes, resp.ReasonCode)
}

func (g *Gateway) retryableFault(err error) bool {
	return slices.Contains(g.cfg.RetryableFaultKinds, serviceerrs.FaultKind(err))
}

// backoff returns the wait before the attempt following attempt.
func (g *Gateway) backoff(attempt int) time.Duration {
	d := float64(g.cfg.BackoffDelay) * math.Pow(g.cfg.BackoffMultiplier, float64(attempt-1))
	if g.cfg.MaxBackoffDelay > 0 && d > float64(g.cfg.MaxBackoffDelay) {
		return g.cfg.MaxBackoffDelay
	}
	return time.Duration(d)
}

func validate(req model.DTOSubmissionRequest) error {
	if req.ID == "" {
		return fmt.Errorf("%w: empty payment order id", serviceerrs.ErrMalformedRequest)
	}
	amount := req.TransferTransactionInformation.InstructedAmount
	if amount.CurrencyCode == "" {
		return fmt.Errorf("%w: order %s has no currency", serviceerrs.ErrMalformedRequest, req.ID)
	}
	d, err := decimal.NewFromString(amount.Amount)
	if err != nil || !d.IsPositive() {
		return fmt.Errorf("%w: order %s has non-positive amount %q",
			serviceerrs.ErrMalformedRequest, req.ID, amount.Amount)
	}
	return nil
}

func fromResponse(resp model.DTOSubmissionResponse, attempts int) Outcome {
	return Outcome{
		NextExecutionDate: resp.NextExecutionDate,
		BankStatus:        resp.BankStatus,
		ReasonCode:        resp.ReasonCode,
		ReasonText:        resp.ReasonText,
		ErrorDescription:  resp.ErrorDescription,
		BankReferenceID:   resp.BankReferenceID,
		Attempts:          attempts,
	}
}

func terminal(detail string, attempts int) Outcome {
	return Outcome{
		BankStatus:       order.BankStatusRejected,
		ReasonText:       ReasonTextFailure,
		ErrorDescription: detail,
		Attempts:         attempts,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
