package reports

import (
	"context"
	"fmt"

	"shoplytics/internal/timeframe"
)

// DailyStat is one calendar day's traffic. Page views come from the
// sessions' running counters, not from re-scanning raw page view rows.
type DailyStat struct {
	Date      string `json:"date"`
	Visitors  int    `json:"visitors"`
	PageViews int    `json:"page_views"`
}

// HourlyStat is one hour-of-day traffic bucket, aggregated across all days
// in the window.
type HourlyStat struct {
	Hour      int `json:"hour"`
	Visitors  int `json:"visitors"`
	PageViews int `json:"page_views"`
}

// DailyStats buckets sessions by calendar day of their start time. Every
// day in the window appears, zero-filled when idle.
func (e *Engine) DailyStats(ctx context.Context, frame timeframe.TimeFrame) ([]DailyStat, error) {
	sessions, err := e.store.SessionsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily stats: %w", err)
	}

	byDay := make(map[string]*DailyStat)
	var days []DailyStat
	for day := timeframe.DayStart(frame.From); day.Before(frame.To); day = day.AddDate(0, 0, 1) {
		days = append(days, DailyStat{Date: day.Format("2006-01-02")})
	}
	for i := range days {
		byDay[days[i].Date] = &days[i]
	}

	for _, s := range sessions {
		stat, ok := byDay[s.StartedAt.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		stat.Visitors++
		stat.PageViews += s.PageViewCount
	}
	return days, nil
}

// HourlyStats buckets sessions by hour of day (0-23) of their start time.
// All 24 buckets are always present.
func (e *Engine) HourlyStats(ctx context.Context, frame timeframe.TimeFrame) ([]HourlyStat, error) {
	sessions, err := e.store.SessionsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hourly stats: %w", err)
	}

	hours := make([]HourlyStat, 24)
	for h := range hours {
		hours[h].Hour = h
	}
	for _, s := range sessions {
		h := s.StartedAt.UTC().Hour()
		hours[h].Visitors++
		hours[h].PageViews += s.PageViewCount
	}
	return hours, nil
}
