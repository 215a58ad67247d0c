package reports

import (
	"context"
	"fmt"
	"time"

	"shoplytics/internal/timeframe"
)

// CalendarDay is one day-of-month cell in the calendar heatmap.
type CalendarDay struct {
	Day             int `json:"day"`
	Visitors        int `json:"visitors"`
	PageViews       int `json:"page_views"`
	AvgDwellSeconds int `json:"avg_dwell_seconds"`
}

// CalendarReport covers one calendar month, every day present and
// zero-filled when idle.
type CalendarReport struct {
	Year  int           `json:"year"`
	Month int           `json:"month"`
	Days  []CalendarDay `json:"days"`
}

// Calendar aggregates sessions per day of the requested month: visitor
// count, page views from session counters, and mean session dwell.
func (e *Engine) Calendar(ctx context.Context, year int, month time.Month) (*CalendarReport, error) {
	frame := timeframe.MonthFrame(year, month)
	sessions, err := e.store.SessionsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute calendar: %w", err)
	}

	dayCount := timeframe.DaysInMonth(year, month)
	days := make([]CalendarDay, dayCount)
	dwells := make([][]int, dayCount)
	for i := range days {
		days[i].Day = i + 1
	}

	for _, s := range sessions {
		idx := s.StartedAt.UTC().Day() - 1
		if idx < 0 || idx >= dayCount {
			continue
		}
		days[idx].Visitors++
		days[idx].PageViews += s.PageViewCount
		dwells[idx] = append(dwells[idx], sessionDwellSeconds(s))
	}
	for i := range days {
		days[i].AvgDwellSeconds = meanInt(dwells[i])
	}

	return &CalendarReport{Year: year, Month: int(month), Days: days}, nil
}
