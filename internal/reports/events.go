package reports

import (
	"context"
	"fmt"

	"shoplytics/internal/timeframe"
)

// EventStat is one event name's occurrence count.
type EventStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Events builds the event-name frequency table, sorted descending by count.
func (e *Engine) Events(ctx context.Context, frame timeframe.TimeFrame) ([]EventStat, error) {
	events, err := e.store.EventsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute events: %w", err)
	}

	counts := make(map[string]int)
	for _, ev := range events {
		counts[ev.EventName]++
	}

	stats := toFrequencyStats(counts)
	result := make([]EventStat, len(stats))
	for i, s := range stats {
		result[i] = EventStat{Name: s.Name, Count: s.Count}
	}
	return result, nil
}
