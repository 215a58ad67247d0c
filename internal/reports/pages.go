package reports

import (
	"context"
	"fmt"
	"sort"

	"shoplytics/internal/timeframe"
)

// topPagesLimit and userFlowLimit cap the returned rows for their views.
const (
	topPagesLimit = 20
	userFlowLimit = 20
)

// PageStat is one path's traffic within the window.
type PageStat struct {
	Path           string `json:"path"`
	Views          int    `json:"views"`
	UniqueVisitors int    `json:"unique_visitors"`
}

// FlowEdge is one first-order page transition and its frequency.
type FlowEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// TopPages groups page views by path, counting total views and distinct
// owning sessions, and returns the top 20 by views descending. Ties break
// alphabetically so output is deterministic.
func (e *Engine) TopPages(ctx context.Context, frame timeframe.TimeFrame) ([]PageStat, error) {
	pageViews, err := e.store.PageViewsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute top pages: %w", err)
	}

	views := make(map[string]int)
	visitors := make(map[string]map[string]struct{})
	for _, pv := range pageViews {
		views[pv.PagePath]++
		if visitors[pv.PagePath] == nil {
			visitors[pv.PagePath] = make(map[string]struct{})
		}
		visitors[pv.PagePath][pv.SessionID] = struct{}{}
	}

	stats := make([]PageStat, 0, len(views))
	for path, count := range views {
		stats = append(stats, PageStat{
			Path:           path,
			Views:          count,
			UniqueVisitors: len(visitors[path]),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Views != stats[j].Views {
			return stats[i].Views > stats[j].Views
		}
		return stats[i].Path < stats[j].Path
	})
	if len(stats) > topPagesLimit {
		stats = stats[:topPagesLimit]
	}
	return stats, nil
}

// UserFlow counts (previous page, current page) pairs over page views that
// carry a recorded previous page and returns the top 20 transitions. This
// is a first-order edge list, not full path reconstruction.
func (e *Engine) UserFlow(ctx context.Context, frame timeframe.TimeFrame) ([]FlowEdge, error) {
	pageViews, err := e.store.PageViewsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute user flow: %w", err)
	}

	type pair struct{ from, to string }
	counts := make(map[pair]int)
	for _, pv := range pageViews {
		if pv.PreviousPage == nil || *pv.PreviousPage == "" {
			continue
		}
		counts[pair{from: *pv.PreviousPage, to: pv.PagePath}]++
	}

	edges := make([]FlowEdge, 0, len(counts))
	for p, count := range counts {
		edges = append(edges, FlowEdge{From: p.from, To: p.to, Count: count})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Count != edges[j].Count {
			return edges[i].Count > edges[j].Count
		}
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	if len(edges) > userFlowLimit {
		edges = edges[:userFlowLimit]
	}
	return edges, nil
}
