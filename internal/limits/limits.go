package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/model/order"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
)

// ReasonCodeExceeded is used when the limits service rejects without a code.
const ReasonCodeExceeded = "LIMIT_EXCEEDED"

type Client interface {
	CheckLimits(ctx context.Context, req model.DTOLimitCheckRequest) error
}

// Checker asks the limits service whether an order may be executed. A
// disabled checker allows everything without calling the service.
type Checker struct {
	client  Client
	log     *slog.Logger
	enabled bool
}

func NewChecker(client Client, enabled bool, log *slog.Logger) *Checker {
	return &Checker{
		client:  client,
		log:     log,
		enabled: enabled,
	}
}

// Check returns a *serviceerrs.LimitRejectedError when the order breaches a
// limit and a wrapped error when the service could not be asked.
func (c *Checker) Check(ctx context.Context, o order.ScheduledOrder) error {
	if !c.enabled || c.client == nil {
		return nil
	}

	err := c.client.CheckLimits(ctx, o.LimitCheckRequest())
	if err == nil {
		return nil
	}

	var rejected *serviceerrs.LimitRejectedError
	if errors.As(err, &rejected) {
		if rejected.ReasonCode == "" {
			rejected.ReasonCode = ReasonCodeExceeded
		}
		c.log.LogAttrs(ctx,
			slog.LevelInfo,
			"payment order breaches a limit",
			slog.String(model.KeyLoggerOrderID, o.ID),
			slog.String("reason_code", rejected.ReasonCode),
		)
		return rejected
	}
	return fmt.Errorf("failed to check limits for order %s: %w", o.ID, err)
}
