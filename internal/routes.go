// Package internal contains core application functionality
package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"shoplytics/internal/config"
	"shoplytics/internal/http"
)

// reportingCORSConfig allows the dashboard frontend to query the reporting
// API from another origin.
var reportingCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Rate limiting would interfere with tests and local development.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Reports are read-heavy but each one scans up to MaxQueryRows rows;
	// 60 req/min per IP keeps a misbehaving dashboard from saturating the
	// store.
	reportRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(60),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	reportingAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{reportRateLimiter},
		CORSConfig:       reportingCORSConfig,
	}

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === REPORTING API ===
	srv.Get("/api/v1/reports", http.ReportsIndexAction, reportingAPIConfig)
	srv.Get("/api/v1/dashboard", http.DashboardIndexAction, reportingAPIConfig)
	srv.Options("/api/v1/reports", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, reportingAPIConfig)
	srv.Options("/api/v1/dashboard", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, reportingAPIConfig)
}
