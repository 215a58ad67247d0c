// Package timeframe provides the time window primitives the reporting
// layer operates on: half-open [From, To) frames, relative period
// resolution, and calendar month helpers.
package timeframe

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod is returned when a relative period string is not one of
// the supported values.
var ErrInvalidPeriod = errors.New("invalid period")

// Supported relative periods.
const (
	PeriodDay     = "1d"
	PeriodWeek    = "7d"
	PeriodMonth   = "30d"
	PeriodQuarter = "90d"
)

// TimeFrame is a half-open window [From, To).
type TimeFrame struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// New creates a TimeFrame, normalizing both bounds to UTC.
func New(from, to time.Time) TimeFrame {
	return TimeFrame{From: from.UTC(), To: to.UTC()}
}

// Duration returns the window length.
func (tf TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// Previous returns the window of equal length immediately preceding this
// one; used for period-over-period comparisons.
func (tf TimeFrame) Previous() TimeFrame {
	length := tf.Duration()
	return TimeFrame{From: tf.From.Add(-length), To: tf.From}
}

// Contains reports whether t falls inside the window.
func (tf TimeFrame) Contains(t time.Time) bool {
	return !t.Before(tf.From) && t.Before(tf.To)
}

// Days returns the number of whole days the window spans, rounded up, with
// a minimum of one.
func (tf TimeFrame) Days() int {
	days := int(tf.Duration().Hours() / 24)
	if tf.Duration()%(24*time.Hour) != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// ResolvePeriod turns a relative period string into a frame ending at now.
func ResolvePeriod(period string, now time.Time) (TimeFrame, error) {
	now = now.UTC()
	switch period {
	case PeriodDay:
		return TimeFrame{From: now.AddDate(0, 0, -1), To: now}, nil
	case PeriodWeek:
		return TimeFrame{From: now.AddDate(0, 0, -7), To: now}, nil
	case PeriodMonth:
		return TimeFrame{From: now.AddDate(0, 0, -30), To: now}, nil
	case PeriodQuarter:
		return TimeFrame{From: now.AddDate(0, 0, -90), To: now}, nil
	default:
		return TimeFrame{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}

// MonthFrame returns the frame covering one calendar month in UTC.
func MonthFrame(year int, month time.Month) TimeFrame {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return TimeFrame{From: from, To: from.AddDate(0, 1, 0)}
}

// DaysInMonth returns the day count of a calendar month.
func DaysInMonth(year int, month time.Month) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
