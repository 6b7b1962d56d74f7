package repo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

// searchWindow bounds how far the calendar looks for a working day.
const searchWindow = 31

// CalendarRepository validates execution dates against weekends and the
// restricted_dates table.
type CalendarRepository struct {
	DB
}

func NewCalendarRepository(pool connectionPool, log *slog.Logger) *CalendarRepository {
	return &CalendarRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

func (r *CalendarRepository) ValidateExecutionDate(ctx context.Context, d timex.Date,
) (model.DTODateValidation, error) {
	load := func() (map[string]struct{}, error) {
		return r.restrictedBetween(ctx, d.AddDays(-searchWindow), d.AddDays(searchWindow))
	}
	restricted, err := WithRetry(ctx, r.log, load)
	if err != nil {
		return model.DTODateValidation{}, err
	}

	isRestricted := func(day timex.Date) bool {
		if day.IsWeekend() {
			return true
		}
		_, ok := restricted[day.String()]
		return ok
	}

	v := model.DTODateValidation{
		Status:                model.ValidationStatusOK,
		OriginalExecutionDate: d,
	}
	if !isRestricted(d) {
		return v, nil
	}

	v.Status = model.ValidationStatusRestricted
	for i := 1; i <= searchWindow; i++ {
		if v.NextAvailableExecutionDateBefore == nil && !isRestricted(d.AddDays(-i)) {
			v.NextAvailableExecutionDateBefore = d.AddDays(-i).Ptr()
		}
		if v.NextAvailableExecutionDateAfter == nil && !isRestricted(d.AddDays(i)) {
			v.NextAvailableExecutionDateAfter = d.AddDays(i).Ptr()
		}
	}
	return v, nil
}

func (r *CalendarRepository) restrictedBetween(ctx context.Context, from, to timex.Date,
) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT restricted_date FROM restricted_dates WHERE restricted_date BETWEEN $1 AND $2`,
		from.Time, to.Time,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query restricted dates: %w", err)
	}
	defer rows.Close()

	dates := make(map[string]struct{})
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan restricted date: %w", err)
		}
		dates[timex.NewDate(day).String()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read restricted dates: %w", err)
	}
	return dates, nil
}
