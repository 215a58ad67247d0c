package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"shoplytics/internal/reports"
)

var titleCaser = cases.Title(language.English)

// LabeledStat is a frequency entry with a display-ready label.
type LabeledStat struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// DashboardResponse is the bundled dashboard payload with display labels
// applied to the device table.
type DashboardResponse struct {
	Summary   *reports.Summary        `json:"summary"`
	Daily     []reports.DailyStat     `json:"daily"`
	TopPages  []reports.PageStat      `json:"top_pages"`
	Referrers *reports.ReferrerReport `json:"referrers"`
	Devices   []LabeledStat           `json:"devices"`
	Browsers  []reports.FrequencyStat `json:"browsers"`
	Realtime  *reports.RealtimeReport `json:"realtime"`
}

// DashboardIndexAction serves GET /api/v1/dashboard: the default set of
// views for the requested window, computed concurrently.
func DashboardIndexAction(ctx *cartridge.Context) error {
	frame, err := parseFrame(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	reportCtx, cancel := reportContext(ctx)
	defer cancel()

	dashboard, err := newEngine(ctx).Dashboard(reportCtx, frame)
	if err != nil {
		ctx.Logger.Error("Dashboard generation failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to generate dashboard"})
	}

	devices := make([]LabeledStat, len(dashboard.Devices.Devices))
	for i, d := range dashboard.Devices.Devices {
		devices[i] = LabeledStat{
			Name:  d.Name,
			Label: titleCaser.String(d.Name),
			Count: d.Count,
		}
	}

	return ctx.JSON(DashboardResponse{
		Summary:   dashboard.Summary,
		Daily:     dashboard.Daily,
		TopPages:  dashboard.TopPages,
		Referrers: dashboard.Referrers,
		Devices:   devices,
		Browsers:  dashboard.Devices.Browsers,
		Realtime:  dashboard.Realtime,
	})
}
