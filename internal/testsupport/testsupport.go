// Package testsupport provides shared test fixtures: an in-memory sqlite
// database with the shoplytics schema migrated, a silent logger, and seed
// helpers for the raw analytics records.
package testsupport

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shoplytics/internal/models"
	"shoplytics/internal/tracking"
)

// testDBCache caches test databases by test name so multiple setup calls
// within the same test share one database.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with shoplytics' interface.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager.
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns every shoplytics model for migration.
func allModels() []any {
	return []any{
		&tracking.Session{},
		&tracking.PageView{},
		&tracking.Event{},
	}
}

// SetupTestDB creates an in-memory test database with the full schema
// migrated. Uses a named database with cache=shared so multiple connections
// within a test see the same data, and caches it by root test name.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// GetLogger returns a logger that discards everything.
func GetLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SetupTestDBManager creates a test DB manager backed by SetupTestDB.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	return NewTestDBManager(SetupTestDB(t)), GetLogger()
}

// CreateTestSession seeds a session. Zero StartedAt defaults to now; zero
// LastActivityAt defaults to StartedAt.
func CreateTestSession(t *testing.T, db *gorm.DB, session tracking.Session) tracking.Session {
	t.Helper()

	if session.SessionID == "" {
		session.SessionID = fmt.Sprintf("test-session-%d", time.Now().UnixNano())
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = session.StartedAt
	}
	if session.DeviceType == "" {
		session.DeviceType = "desktop"
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("testsupport: failed to seed session: %v", err)
	}
	return session
}

// CreateTestPageView seeds a page view for an existing session. Zero
// ViewedAt defaults to now.
func CreateTestPageView(t *testing.T, db *gorm.DB, pageView tracking.PageView) tracking.PageView {
	t.Helper()

	if pageView.ViewedAt.IsZero() {
		pageView.ViewedAt = time.Now().UTC()
	}
	if pageView.PagePath == "" {
		pageView.PagePath = "/"
	}
	if err := db.Create(&pageView).Error; err != nil {
		t.Fatalf("testsupport: failed to seed page view: %v", err)
	}
	return pageView
}

// CreateTestEvent seeds an event for an existing session. Zero CreatedAt
// defaults to now.
func CreateTestEvent(t *testing.T, db *gorm.DB, event tracking.Event) tracking.Event {
	t.Helper()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Payload == nil {
		event.Payload = models.JSON("{}")
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("testsupport: failed to seed event: %v", err)
	}
	return event
}

// IntPtr returns a pointer to v; convenience for seeding nullable columns.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }
