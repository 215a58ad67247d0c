package reports

import (
	"context"
	"fmt"

	"shoplytics/internal/pkg/async"
	"shoplytics/internal/timeframe"
)

// Dashboard bundles the views the default dashboard renders in one
// response, computed concurrently.
type Dashboard struct {
	Summary   *Summary        `json:"summary"`
	Daily     []DailyStat     `json:"daily"`
	TopPages  []PageStat      `json:"top_pages"`
	Referrers *ReferrerReport `json:"referrers"`
	Devices   *DeviceReport   `json:"devices"`
	Realtime  *RealtimeReport `json:"realtime"`
}

// Dashboard fans the component views out over a worker pool. The views are
// independent reads, so any one failing fails the bundle without affecting
// the others.
func (e *Engine) Dashboard(ctx context.Context, frame timeframe.TimeFrame) (*Dashboard, error) {
	tasks := []async.Task{
		{Name: "summary", Run: func() (interface{}, error) { return e.Summary(ctx, frame) }},
		{Name: "daily", Run: func() (interface{}, error) { return e.DailyStats(ctx, frame) }},
		{Name: "top_pages", Run: func() (interface{}, error) { return e.TopPages(ctx, frame) }},
		{Name: "referrers", Run: func() (interface{}, error) { return e.Referrers(ctx, frame) }},
		{Name: "devices", Run: func() (interface{}, error) { return e.Devices(ctx, frame) }},
		{Name: "realtime", Run: func() (interface{}, error) { return e.Realtime(ctx) }},
	}

	results := async.NewPool(len(tasks)).Execute(ctx, tasks)
	for _, task := range tasks {
		result, ok := results[task.Name]
		if !ok {
			return nil, fmt.Errorf("dashboard view %s was cancelled: %w", task.Name, ctx.Err())
		}
		if result.Err != nil {
			return nil, fmt.Errorf("dashboard view %s failed: %w", task.Name, result.Err)
		}
	}

	return &Dashboard{
		Summary:   results["summary"].Data.(*Summary),
		Daily:     results["daily"].Data.([]DailyStat),
		TopPages:  results["top_pages"].Data.([]PageStat),
		Referrers: results["referrers"].Data.(*ReferrerReport),
		Devices:   results["devices"].Data.(*DeviceReport),
		Realtime:  results["realtime"].Data.(*RealtimeReport),
	}, nil
}
