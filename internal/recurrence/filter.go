package recurrence

import (
	"github.com/talx-hub/payment-scheduler/internal/model/order"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

func IsScheduledForToday(o order.ScheduledOrder, today timex.Date) bool {
	s := o.Schedule
	if s.NextExecutionDate != nil && s.NextExecutionDate.Equal(today) {
		return true
	}
	return s.StartDate.Equal(today)
}

func IsEndDateInThePast(o order.ScheduledOrder, today timex.Date) bool {
	return o.Schedule.EndDate != nil && o.Schedule.EndDate.Before(today)
}

// IsRepeatCountMet reports whether the order has already run the number of
// times its schedule allows.
func IsRepeatCountMet(o order.ScheduledOrder) bool {
	return o.Schedule.Repeat != nil && o.ExecutionCount >= *o.Schedule.Repeat
}

// IsExecutedToday reports whether a write-back for today already happened,
// which makes a second run on the same day skip the order.
func IsExecutedToday(o order.ScheduledOrder, today timex.Date) bool {
	return o.LastExecutionDate != nil && o.LastExecutionDate.Equal(today)
}

// IsDue combines the filters applied to every candidate in a run.
func IsDue(o order.ScheduledOrder, today timex.Date) bool {
	return IsScheduledForToday(o, today) &&
		!IsEndDateInThePast(o, today) &&
		!IsRepeatCountMet(o) &&
		!IsExecutedToday(o, today)
}
