// Package reports is the aggregation engine. Every view is a pure function
// of the raw records fetched for one time window; the engine holds no state
// across calls, so any number of reports may run concurrently.
//
// Numeric policy shared by all views: percentages are rounded to the nearest
// integer, and an empty window is never an error; every view has a defined
// zero-valued output.
package reports

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"log/slog"

	"shoplytics/internal/timeframe"
	"shoplytics/internal/tracking"
)

// ErrUnknownReportType is returned for a type selector outside the closed
// set below; callers should treat it as a client error.
var ErrUnknownReportType = errors.New("unknown report type")

// ReportType selects one aggregation view.
type ReportType string

const (
	ReportSummary        ReportType = "summary"
	ReportDaily          ReportType = "daily"
	ReportHourly         ReportType = "hourly"
	ReportTopPages       ReportType = "top_pages"
	ReportReferrers      ReportType = "referrers"
	ReportDevices        ReportType = "devices"
	ReportEvents         ReportType = "events"
	ReportRealtime       ReportType = "realtime"
	ReportUserFlow       ReportType = "user_flow"
	ReportCalendar       ReportType = "calendar"
	ReportDurationDetail ReportType = "duration_detail"
)

// Query identifies one report request. Frame bounds every view except the
// calendar, which derives its own frame from Year and Month.
type Query struct {
	Type  ReportType
	Frame timeframe.TimeFrame
	Year  int
	Month time.Month
}

// Engine runs aggregations against a tracking.Reader.
type Engine struct {
	store          tracking.Reader
	logger         *slog.Logger
	realtimeWindow time.Duration
	now            func() time.Time

	runners map[ReportType]func(ctx context.Context, q Query) (interface{}, error)
}

// NewEngine creates an Engine. A non-positive realtime window defaults to
// five minutes and a nil clock to time.Now.
func NewEngine(store tracking.Reader, logger *slog.Logger, realtimeWindow time.Duration, now func() time.Time) *Engine {
	if realtimeWindow <= 0 {
		realtimeWindow = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		store:          store,
		logger:         logger,
		realtimeWindow: realtimeWindow,
		now:            now,
	}
	e.runners = map[ReportType]func(ctx context.Context, q Query) (interface{}, error){
		ReportSummary:        func(ctx context.Context, q Query) (interface{}, error) { return e.Summary(ctx, q.Frame) },
		ReportDaily:          func(ctx context.Context, q Query) (interface{}, error) { return e.DailyStats(ctx, q.Frame) },
		ReportHourly:         func(ctx context.Context, q Query) (interface{}, error) { return e.HourlyStats(ctx, q.Frame) },
		ReportTopPages:       func(ctx context.Context, q Query) (interface{}, error) { return e.TopPages(ctx, q.Frame) },
		ReportReferrers:      func(ctx context.Context, q Query) (interface{}, error) { return e.Referrers(ctx, q.Frame) },
		ReportDevices:        func(ctx context.Context, q Query) (interface{}, error) { return e.Devices(ctx, q.Frame) },
		ReportEvents:         func(ctx context.Context, q Query) (interface{}, error) { return e.Events(ctx, q.Frame) },
		ReportRealtime:       func(ctx context.Context, q Query) (interface{}, error) { return e.Realtime(ctx) },
		ReportUserFlow:       func(ctx context.Context, q Query) (interface{}, error) { return e.UserFlow(ctx, q.Frame) },
		ReportCalendar:       func(ctx context.Context, q Query) (interface{}, error) { return e.Calendar(ctx, q.Year, q.Month) },
		ReportDurationDetail: func(ctx context.Context, q Query) (interface{}, error) { return e.DurationDetail(ctx, q.Frame) },
	}
	return e
}

// Generate runs the view selected by the query.
func (e *Engine) Generate(ctx context.Context, q Query) (interface{}, error) {
	runner, ok := e.runners[q.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReportType, q.Type)
	}
	return runner(ctx, q)
}

// KnownReportTypes returns the closed set of valid type selectors.
func KnownReportTypes() []ReportType {
	return []ReportType{
		ReportSummary, ReportDaily, ReportHourly, ReportTopPages,
		ReportReferrers, ReportDevices, ReportEvents, ReportRealtime,
		ReportUserFlow, ReportCalendar, ReportDurationDetail,
	}
}

// CalculateChange returns the rounded percentage change between two counts.
// A zero previous value yields 100 when current grew and 0 otherwise, so
// fresh sites do not divide by zero.
func CalculateChange(current, previous int) int {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return int(math.Round(float64(current-previous) / float64(previous) * 100))
}

// roundPercent returns part/total as a rounded percentage; zero when total
// is zero.
func roundPercent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// sessionDwellSeconds is the session-level dwell sample: the span between
// start and last activity, clamped to non-negative.
func sessionDwellSeconds(s tracking.Session) int {
	dwell := int(s.LastActivityAt.Sub(s.StartedAt).Seconds())
	if dwell < 0 {
		return 0
	}
	return dwell
}

// meanInt returns the rounded mean of the samples; zero when empty.
func meanInt(samples []int) int {
	if len(samples) == 0 {
		return 0
	}
	sum := 0
	for _, v := range samples {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(samples))))
}
