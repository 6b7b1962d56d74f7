package recurrence

import (
	"fmt"

	"github.com/talx-hub/payment-scheduler/internal/model/order"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

// NextDate returns the first execution date after base for the schedule.
// It returns serviceerrs.ErrRecurrenceEnded when the candidate lies past the
// schedule's end date.
func NextDate(s order.Schedule, base timex.Date) (timex.Date, error) {
	if s.Every < 1 {
		return timex.Date{}, fmt.Errorf("%w: every must be positive, got %d",
			serviceerrs.ErrInvalidSchedule, s.Every)
	}

	var next timex.Date
	switch s.TransferFrequency {
	case order.FrequencyDaily:
		next = base.AddDays(s.Every)
	case order.FrequencyWeekly:
		next = base.AddWeeks(s.Every)
	case order.FrequencyBiweekly:
		next = base.AddWeeks(2 * s.Every)
	case order.FrequencyMonthly:
		next = base.AddMonths(s.Every)
	case order.FrequencyQuarterly:
		next = base.AddMonths(3 * s.Every)
	case order.FrequencyYearly:
		next = base.AddYears(s.Every)
	default:
		return timex.Date{}, fmt.Errorf("%w: unknown transfer frequency %q",
			serviceerrs.ErrInvalidSchedule, s.TransferFrequency)
	}

	if s.EndDate != nil && s.EndDate.Before(next) {
		return timex.Date{}, serviceerrs.ErrRecurrenceEnded
	}
	return next, nil
}

// BaseDate is the date the next occurrence is counted from. An order that was
// moved off a non-working day keeps counting from its natural date.
func BaseDate(o order.ScheduledOrder, today timex.Date) timex.Date {
	if o.OriginalExecutionDate != nil {
		return *o.OriginalExecutionDate
	}
	return today
}
