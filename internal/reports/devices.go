package reports

import (
	"context"
	"fmt"
	"sort"

	"shoplytics/internal/pkg/useragent"
	"shoplytics/internal/timeframe"
)

// FrequencyStat is one name/count pair in a frequency table.
type FrequencyStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DeviceReport holds the three independent frequency tables over sessions
// in the window.
type DeviceReport struct {
	Devices          []FrequencyStat `json:"devices"`
	Browsers         []FrequencyStat `json:"browsers"`
	OperatingSystems []FrequencyStat `json:"operating_systems"`
}

// Devices builds device type, browser, and OS frequency tables.
func (e *Engine) Devices(ctx context.Context, frame timeframe.TimeFrame) (*DeviceReport, error) {
	sessions, err := e.store.SessionsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute devices: %w", err)
	}

	devices := make(map[string]int)
	browsers := make(map[string]int)
	oses := make(map[string]int)
	for _, s := range sessions {
		devices[orUnknown(s.DeviceType)]++
		browsers[orUnknown(s.Browser)]++
		oses[orUnknown(s.OS)]++
	}

	return &DeviceReport{
		Devices:          toFrequencyStats(devices),
		Browsers:         toFrequencyStats(browsers),
		OperatingSystems: toFrequencyStats(oses),
	}, nil
}

func orUnknown(v string) string {
	if v == "" {
		return useragent.Unknown
	}
	return v
}

func toFrequencyStats(counts map[string]int) []FrequencyStat {
	stats := make([]FrequencyStat, 0, len(counts))
	for name, count := range counts {
		stats = append(stats, FrequencyStat{Name: name, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Name < stats[j].Name
	})
	return stats
}
