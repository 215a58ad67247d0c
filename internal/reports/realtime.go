package reports

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// realtimeTopPagesLimit caps the page list in the realtime view.
const realtimeTopPagesLimit = 5

// PageCount is one path's view count within the realtime window.
type PageCount struct {
	Path  string `json:"path"`
	Views int    `json:"views"`
}

// RealtimeReport is the live view: sessions active within the realtime
// window and the pages being viewed right now.
type RealtimeReport struct {
	ActiveVisitors int         `json:"active_visitors"`
	TopPages       []PageCount `json:"top_pages"`
}

// Realtime reports sessions whose last activity falls within the realtime
// window ending now, plus the top 5 pages viewed in that window.
func (e *Engine) Realtime(ctx context.Context) (*RealtimeReport, error) {
	now := e.now().UTC()
	since := now.Add(-e.realtimeWindow)

	sessions, err := e.store.SessionsActiveSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to compute realtime sessions: %w", err)
	}
	// The range read is half-open, so nudge the upper bound to include a
	// view stamped exactly at now.
	pageViews, err := e.store.PageViewsInRange(ctx, since, now.Add(time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("failed to compute realtime pages: %w", err)
	}

	counts := make(map[string]int)
	for _, pv := range pageViews {
		counts[pv.PagePath]++
	}
	pages := make([]PageCount, 0, len(counts))
	for path, views := range counts {
		pages = append(pages, PageCount{Path: path, Views: views})
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].Views != pages[j].Views {
			return pages[i].Views > pages[j].Views
		}
		return pages[i].Path < pages[j].Path
	})
	if len(pages) > realtimeTopPagesLimit {
		pages = pages[:realtimeTopPagesLimit]
	}

	return &RealtimeReport{
		ActiveVisitors: len(sessions),
		TopPages:       pages,
	}, nil
}
