package recurrence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/model/order"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

type DateValidator interface {
	ValidateExecutionDate(ctx context.Context, d timex.Date) (model.DTODateValidation, error)
}

// Adjuster moves candidate dates that land on non-working days.
type Adjuster struct {
	validator DateValidator
	log       *slog.Logger
}

func NewAdjuster(validator DateValidator, log *slog.Logger) *Adjuster {
	return &Adjuster{
		validator: validator,
		log:       log,
	}
}

// Adjust returns the date the order should actually run on and whether it
// differs from candidate. The validator is consulted for every strategy so
// that its canonical date is always used.
func (a *Adjuster) Adjust(ctx context.Context, candidate timex.Date, strategy order.Strategy,
) (timex.Date, bool, error) {
	v, err := a.validator.ValidateExecutionDate(ctx, candidate)
	if err != nil {
		return timex.Date{}, false,
			fmt.Errorf("failed to validate execution date %s: %w", candidate, err)
	}

	final, err := resolve(v, strategy)
	if err != nil {
		return timex.Date{}, false, fmt.Errorf("date %s: %w", candidate, err)
	}

	adjusted := !final.Equal(candidate)
	if adjusted {
		a.log.LogAttrs(ctx,
			slog.LevelDebug,
			"execution date moved off a non-working day",
			slog.String("candidate", candidate.String()),
			slog.String("adjusted", final.String()),
			slog.String("strategy", string(strategy)),
		)
	}
	return final, adjusted, nil
}

func resolve(v model.DTODateValidation, strategy order.Strategy) (timex.Date, error) {
	if strategy == order.StrategyNone || v.Status == model.ValidationStatusOK {
		if v.OriginalExecutionDate.IsZero() {
			return timex.Date{}, fmt.Errorf("%w: validation has no execution date",
				serviceerrs.ErrMalformedResponse)
		}
		return v.OriginalExecutionDate, nil
	}

	if strategy == order.StrategyBefore && v.NextAvailableExecutionDateBefore != nil {
		return *v.NextAvailableExecutionDateBefore, nil
	}
	if v.NextAvailableExecutionDateAfter != nil {
		return *v.NextAvailableExecutionDateAfter, nil
	}
	return timex.Date{}, fmt.Errorf("%w: restricted date without an available alternative",
		serviceerrs.ErrMalformedResponse)
}
