package http

import (
	"errors"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
)

// HealthStatus is the health probe response. StoreStatus reflects whether
// the tracking store's database answers a ping; the overall status degrades
// when it does not, since every report read and collector write goes
// through it.
type HealthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	StoreStatus string    `json:"store_status"`
}

// HealthIndexAction serves GET /_health.
func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:      "ok",
		Timestamp:   time.Now(),
		StoreStatus: "ok",
	}

	if err := pingStore(ctx); err != nil {
		health.Status = "degraded"
		health.StoreStatus = "error"
		ctx.Logger.Error("Tracking store unreachable", slog.Any("error", err))
	}

	return ctx.JSON(health)
}

// pingStore checks that the store behind the reporting and collection
// paths is reachable.
func pingStore(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()
	if db == nil {
		return errors.New("no database connection")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
