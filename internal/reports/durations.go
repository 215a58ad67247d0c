package reports

import (
	"context"
	"fmt"
	"sort"

	"shoplytics/internal/timeframe"
	"shoplytics/internal/tracking"
)

// pageDwellLimit caps the per-path dwell ranking.
const pageDwellLimit = 10

// durationBucketLabels are the seven fixed dwell ranges, in order.
var durationBucketLabels = []string{
	"0-10s", "10-30s", "30s-1m", "1-3m", "3-5m", "5-10m", "10m+",
}

// DurationBucket is one fixed dwell range with its sample count and
// rounded share.
type DurationBucket struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// DeviceDwell is the mean session dwell for one device type.
type DeviceDwell struct {
	DeviceType  string `json:"device_type"`
	MeanSeconds int    `json:"mean_seconds"`
}

// PageDwell is the mean page-level dwell for one path.
type PageDwell struct {
	Path        string `json:"path"`
	MeanSeconds int    `json:"mean_seconds"`
}

// DailyDwell is one day's mean session dwell.
type DailyDwell struct {
	Date        string `json:"date"`
	MeanSeconds int    `json:"mean_seconds"`
}

// DurationReport is the dwell-time distribution view.
//
// Session-level dwell (start to last activity, clamped non-negative) feeds
// the mean/median/max figures, the device breakdown and the daily trend.
// The distribution buckets and the per-path ranking use page-level dwell
// samples, which is what places an individual 45s page read in "30s-1m"
// even when its session ran longer.
type DurationReport struct {
	MeanSeconds   int              `json:"mean_seconds"`
	MedianSeconds int              `json:"median_seconds"`
	MaxSeconds    int              `json:"max_seconds"`
	Buckets       []DurationBucket `json:"buckets"`
	ByDevice      []DeviceDwell    `json:"by_device"`
	TopPages      []PageDwell      `json:"top_pages"`
	DailyTrend    []DailyDwell     `json:"daily_trend"`
}

// DurationDetail computes the dwell-time distribution for the window.
func (e *Engine) DurationDetail(ctx context.Context, frame timeframe.TimeFrame) (*DurationReport, error) {
	sessions, err := e.store.SessionsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute duration detail: %w", err)
	}
	pageViews, err := e.store.PageViewsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute page dwell: %w", err)
	}

	sessionDwells := make([]int, 0, len(sessions))
	deviceDwells := make(map[string][]int)
	dailyDwells := make(map[string][]int)
	for _, s := range sessions {
		dwell := sessionDwellSeconds(s)
		sessionDwells = append(sessionDwells, dwell)
		device := orUnknown(s.DeviceType)
		deviceDwells[device] = append(deviceDwells[device], dwell)
		day := s.StartedAt.UTC().Format("2006-01-02")
		dailyDwells[day] = append(dailyDwells[day], dwell)
	}

	report := &DurationReport{
		MeanSeconds:   meanInt(sessionDwells),
		MedianSeconds: medianIndexPick(sessionDwells),
		MaxSeconds:    maxInt(sessionDwells),
		Buckets:       bucketPageDwells(pageViews),
		ByDevice:      deviceBreakdown(deviceDwells),
		TopPages:      topPageDwells(pageViews),
		DailyTrend:    dailyTrend(frame, dailyDwells),
	}
	return report, nil
}

// medianIndexPick returns the element at index len/2 of the sorted samples.
// For even-length input this picks the upper middle rather than averaging;
// that single-index behavior is deliberate and relied upon downstream.
func medianIndexPick(samples []int) int {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]int, len(samples))
	copy(sorted, samples)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}

func maxInt(samples []int) int {
	max := 0
	for _, v := range samples {
		if v > max {
			max = v
		}
	}
	return max
}

// bucketIndex maps a dwell sample in seconds to its fixed range.
func bucketIndex(seconds int) int {
	switch {
	case seconds < 10:
		return 0
	case seconds < 30:
		return 1
	case seconds < 60:
		return 2
	case seconds < 180:
		return 3
	case seconds < 300:
		return 4
	case seconds < 600:
		return 5
	default:
		return 6
	}
}

// bucketPageDwells distributes positive page-level dwell samples over the
// seven fixed ranges. All seven buckets are always present.
func bucketPageDwells(pageViews []tracking.PageView) []DurationBucket {
	buckets := make([]DurationBucket, len(durationBucketLabels))
	for i, label := range durationBucketLabels {
		buckets[i].Label = label
	}

	total := 0
	for _, pv := range pageViews {
		if pv.TimeOnPage == nil || *pv.TimeOnPage <= 0 {
			continue
		}
		buckets[bucketIndex(*pv.TimeOnPage)].Count++
		total++
	}
	for i := range buckets {
		buckets[i].Percent = roundPercent(buckets[i].Count, total)
	}
	return buckets
}

func deviceBreakdown(deviceDwells map[string][]int) []DeviceDwell {
	breakdown := make([]DeviceDwell, 0, len(deviceDwells))
	for device, samples := range deviceDwells {
		breakdown = append(breakdown, DeviceDwell{
			DeviceType:  device,
			MeanSeconds: meanInt(samples),
		})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].DeviceType < breakdown[j].DeviceType
	})
	return breakdown
}

// topPageDwells ranks paths by mean page-level dwell over positive samples.
func topPageDwells(pageViews []tracking.PageView) []PageDwell {
	byPath := make(map[string][]int)
	for _, pv := range pageViews {
		if pv.TimeOnPage == nil || *pv.TimeOnPage <= 0 {
			continue
		}
		byPath[pv.PagePath] = append(byPath[pv.PagePath], *pv.TimeOnPage)
	}

	pages := make([]PageDwell, 0, len(byPath))
	for path, samples := range byPath {
		pages = append(pages, PageDwell{Path: path, MeanSeconds: meanInt(samples)})
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].MeanSeconds != pages[j].MeanSeconds {
			return pages[i].MeanSeconds > pages[j].MeanSeconds
		}
		return pages[i].Path < pages[j].Path
	})
	if len(pages) > pageDwellLimit {
		pages = pages[:pageDwellLimit]
	}
	return pages
}

// dailyTrend emits mean session dwell per day across the window, zero-filled.
func dailyTrend(frame timeframe.TimeFrame, dailyDwells map[string][]int) []DailyDwell {
	var trend []DailyDwell
	for day := timeframe.DayStart(frame.From); day.Before(frame.To); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		trend = append(trend, DailyDwell{
			Date:        key,
			MeanSeconds: meanInt(dailyDwells[key]),
		})
	}
	return trend
}
