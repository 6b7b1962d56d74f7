package repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

func TestCalendarRepository_ValidateExecutionDate(t *testing.T) {
	repo, ctx, _ := setupRepo(t, NewCalendarRepository, "./fixtures/restricted_dates.sql")

	tests := []struct {
		before *string
		after  *string
		name   string
		date   timex.Date
		status string
	}{
		{
			name:   "working day",
			date:   timex.NewDateOf(2022, time.November, 16),
			status: model.ValidationStatusOK,
		},
		{
			name:   "saturday before a holiday monday",
			date:   timex.NewDateOf(2022, time.November, 12),
			status: model.ValidationStatusRestricted,
			before: ptr("2022-11-11"),
			after:  ptr("2022-11-15"),
		},
		{
			name:   "holiday monday",
			date:   timex.NewDateOf(2022, time.November, 14),
			status: model.ValidationStatusRestricted,
			before: ptr("2022-11-11"),
			after:  ptr("2022-11-15"),
		},
		{
			name:   "christmas weekend",
			date:   timex.NewDateOf(2022, time.December, 25),
			status: model.ValidationStatusRestricted,
			before: ptr("2022-12-23"),
			after:  ptr("2022-12-27"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := repo.ValidateExecutionDate(ctx, tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.status, v.Status)
			assert.True(t, v.OriginalExecutionDate.Equal(tt.date))
			assertDate(t, tt.before, v.NextAvailableExecutionDateBefore)
			assertDate(t, tt.after, v.NextAvailableExecutionDateAfter)
		})
	}
}

func ptr(s string) *string {
	return &s
}

func assertDate(t *testing.T, want *string, got *timex.Date) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.Equal(t, *want, got.String())
}
