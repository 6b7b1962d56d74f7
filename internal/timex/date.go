package timex

import (
	"encoding/json"
	"time"
)

const dateFormat = "2006-01-02"

// Date is a calendar day in UTC. The wall clock part is always midnight.
type Date struct {
	time.Time
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var dateStr string
	if err := json.Unmarshal(data, &dateStr); err != nil {
		return err
	}

	parsed, err := ParseDate(dateStr)
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}

func (d Date) String() string {
	return d.Time.Format(dateFormat)
}

// NewDate keeps the calendar day of t as seen in t's own location.
func NewDate(t time.Time) Date {
	return Date{
		Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
	}
}

// NewDateOf builds a date from its parts, normalizing overflowing values.
func NewDateOf(year int, month time.Month, day int) Date {
	return Date{
		Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
	}
}

// Today returns the current calendar day in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return NewDate(now.In(loc))
}

func ParseDate(s string) (Date, error) {
	parsed, err := time.Parse(dateFormat, s)
	if err != nil {
		return Date{}, err
	}

	return Date{Time: parsed.UTC()}, nil
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) AddWeeks(n int) Date {
	return d.AddDays(7 * n)
}

// AddMonths moves the date by n months. When the day does not exist in the
// target month the last day of that month is used.
func (d Date) AddMonths(n int) Date {
	year, month, day := d.Time.Date()
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}

	return Date{Time: time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) AddYears(n int) Date {
	return d.AddMonths(12 * n)
}

func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

func (d Date) IsWeekend() bool {
	wd := d.Time.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Ptr returns a pointer to a copy of d.
func (d Date) Ptr() *Date {
	return &d
}
