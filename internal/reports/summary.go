package reports

import (
	"context"
	"fmt"

	"shoplytics/internal/timeframe"
)

// Summary is the headline view: window totals plus percentage change
// against the preceding window of equal length.
type Summary struct {
	Visitors          int `json:"visitors"`
	VisitorsChange    int `json:"visitors_change"`
	PageViews         int `json:"page_views"`
	PageViewsChange   int `json:"page_views_change"`
	AvgSessionSeconds int `json:"avg_session_seconds"`
	AvgSessionChange  int `json:"avg_session_change"`
	BounceRate        int `json:"bounce_rate"`
	BounceRateChange  int `json:"bounce_rate_change"`
}

// summaryTotals are the raw figures computed for one window.
type summaryTotals struct {
	visitors   int
	pageViews  int
	avgSession int
	bounceRate int
}

// Summary computes the headline view for the window and its comparison
// period.
func (e *Engine) Summary(ctx context.Context, frame timeframe.TimeFrame) (*Summary, error) {
	current, err := e.summaryTotals(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to compute summary: %w", err)
	}
	previous, err := e.summaryTotals(ctx, frame.Previous())
	if err != nil {
		return nil, fmt.Errorf("failed to compute comparison summary: %w", err)
	}

	return &Summary{
		Visitors:          current.visitors,
		VisitorsChange:    CalculateChange(current.visitors, previous.visitors),
		PageViews:         current.pageViews,
		PageViewsChange:   CalculateChange(current.pageViews, previous.pageViews),
		AvgSessionSeconds: current.avgSession,
		AvgSessionChange:  CalculateChange(current.avgSession, previous.avgSession),
		BounceRate:        current.bounceRate,
		BounceRateChange:  CalculateChange(current.bounceRate, previous.bounceRate),
	}, nil
}

func (e *Engine) summaryTotals(ctx context.Context, frame timeframe.TimeFrame) (summaryTotals, error) {
	sessions, err := e.store.SessionsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return summaryTotals{}, err
	}

	totals := summaryTotals{visitors: len(sessions)}
	bounces := 0
	dwells := make([]int, 0, len(sessions))
	for _, s := range sessions {
		totals.pageViews += s.PageViewCount
		if s.PageViewCount == 1 {
			bounces++
		}
		dwells = append(dwells, sessionDwellSeconds(s))
	}
	totals.avgSession = meanInt(dwells)
	totals.bounceRate = roundPercent(bounces, len(sessions))
	return totals, nil
}
