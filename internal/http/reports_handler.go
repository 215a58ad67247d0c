// Package http contains the HTTP handlers for the reporting API.
package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"shoplytics/internal/config"
	"shoplytics/internal/reports"
	"shoplytics/internal/timeframe"
	"shoplytics/internal/tracking"
)

// defaultPeriod is used when a request names neither a period nor explicit
// bounds.
const defaultPeriod = timeframe.PeriodWeek

// newEngine builds a report engine from the request context. Engines are
// stateless, so per-request construction costs nothing beyond the struct.
func newEngine(ctx *cartridge.Context) *reports.Engine {
	cfg := config.GetConfig()
	store := tracking.NewStore(ctx.DBManager.GetConnection(), ctx.Logger, cfg.MaxQueryRows)
	window := time.Duration(cfg.GetRealtimeWindow()) * time.Second
	return reports.NewEngine(store, ctx.Logger, window, time.Now)
}

// reportContext derives a deadline-bound context for report generation.
func reportContext(ctx *cartridge.Context) (context.Context, context.CancelFunc) {
	cfg := config.GetConfig()
	timeout := time.Duration(cfg.ReportTimeoutSeconds) * time.Second
	return context.WithTimeout(ctx.Ctx.UserContext(), timeout)
}

// parseFrame resolves the request's time window: a named relative period
// when present, explicit RFC3339 from/to bounds otherwise, defaulting to
// the last seven days.
func parseFrame(ctx *cartridge.Context) (timeframe.TimeFrame, error) {
	if period := ctx.Query("period"); period != "" {
		return timeframe.ResolvePeriod(period, time.Now())
	}

	fromRaw, toRaw := ctx.Query("from"), ctx.Query("to")
	if fromRaw != "" || toRaw != "" {
		from, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return timeframe.TimeFrame{}, errors.New("invalid from timestamp, want RFC3339")
		}
		to, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return timeframe.TimeFrame{}, errors.New("invalid to timestamp, want RFC3339")
		}
		if !from.Before(to) {
			return timeframe.TimeFrame{}, errors.New("from must precede to")
		}
		return timeframe.New(from, to), nil
	}

	return timeframe.ResolvePeriod(defaultPeriod, time.Now())
}

// parseMonth resolves the calendar view's year/month, defaulting to the
// current month.
func parseMonth(ctx *cartridge.Context) (int, time.Month, error) {
	now := time.Now().UTC()
	year, month := now.Year(), now.Month()

	if raw := ctx.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 2200 {
			return 0, 0, errors.New("invalid year")
		}
		year = parsed
	}
	if raw := ctx.Query("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			return 0, 0, errors.New("invalid month")
		}
		month = time.Month(parsed)
	}
	return year, month, nil
}

// ReportsIndexAction serves GET /api/v1/reports. The type selector picks
// the aggregation view; invalid selectors and windows are client errors,
// storage failures are server faults.
func ReportsIndexAction(ctx *cartridge.Context) error {
	query := reports.Query{Type: reports.ReportType(ctx.Query("type"))}

	frame, err := parseFrame(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	query.Frame = frame

	if query.Type == reports.ReportCalendar {
		year, month, err := parseMonth(ctx)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		query.Year, query.Month = year, month
	}

	reportCtx, cancel := reportContext(ctx)
	defer cancel()

	result, err := newEngine(ctx).Generate(reportCtx, query)
	if err != nil {
		if errors.Is(err, reports.ErrUnknownReportType) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		ctx.Logger.Error("Report generation failed",
			slog.String("type", string(query.Type)),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to generate report"})
	}

	return ctx.JSON(fiber.Map{
		"type": query.Type,
		"from": query.Frame.From,
		"to":   query.Frame.To,
		"data": result,
	})
}
