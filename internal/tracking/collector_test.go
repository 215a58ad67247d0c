package tracking_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoplytics/internal/sessionstore"
	"shoplytics/internal/tracking"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeBackend records every write and lets tests inject failures.
type fakeBackend struct {
	mu sync.Mutex

	sessions  []*tracking.Session
	pageViews []*tracking.PageView
	events    []*tracking.Event
	durations map[uint]int
	touches   []string
	userSets  []string

	nextPageViewID uint

	insertSessionErr  error
	insertPageViewErr []error // consumed in order, nil entries succeed
	constraintErrs    map[error]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		durations:      make(map[uint]int),
		constraintErrs: make(map[error]bool),
		nextPageViewID: 100,
	}
}

func (b *fakeBackend) InsertSession(_ context.Context, session *tracking.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.insertSessionErr != nil {
		return b.insertSessionErr
	}
	b.sessions = append(b.sessions, session)
	return nil
}

func (b *fakeBackend) InsertPageView(_ context.Context, pageView *tracking.PageView) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.insertPageViewErr) > 0 {
		err := b.insertPageViewErr[0]
		b.insertPageViewErr = b.insertPageViewErr[1:]
		if err != nil {
			return err
		}
	}
	b.nextPageViewID++
	pageView.ID = b.nextPageViewID
	b.pageViews = append(b.pageViews, pageView)
	return nil
}

func (b *fakeBackend) UpdatePageViewDuration(_ context.Context, pageViewID uint, seconds int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.durations[pageViewID] = seconds
	return nil
}

func (b *fakeBackend) InsertEvent(_ context.Context, event *tracking.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *fakeBackend) UpdateSessionUser(_ context.Context, sessionID, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userSets = append(b.userSets, sessionID+":"+userID)
	return nil
}

func (b *fakeBackend) TouchSession(_ context.Context, sessionID string, _ time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.touches = append(b.touches, sessionID)
	return nil
}

func (b *fakeBackend) IsConstraintViolation(err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.constraintErrs[err]
}

func (b *fakeBackend) sessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCollector(backend tracking.Backend, clock *fakeClock, visit tracking.VisitContext) *tracking.Collector {
	kv := sessionstore.NewMemoryKV(clock.Now)
	sessions := sessionstore.New(kv, 30*time.Minute, clock.Now)
	return tracking.NewCollector(backend, sessions, testLogger(), visit, clock.Now)
}

func chromeVisit() tracking.VisitContext {
	return tracking.VisitContext{
		UserAgent:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ReferrerURL: "https://www.google.com/search?q=widgets",
		PageURL:     "https://shop.example.com/home?utm_source=newsletter&utm_campaign=spring",
	}
}

func TestInitCreatesSessionOnce(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	collector.Init(context.Background())
	collector.Init(context.Background())

	require.Equal(t, 1, backend.sessionCount())

	session := backend.sessions[0]
	assert.Equal(t, "desktop", session.DeviceType)
	assert.Equal(t, "chrome", session.Browser)
	assert.Equal(t, "google.com", session.ReferrerDomain)
	assert.Equal(t, "newsletter", session.UTMSource)
	assert.Equal(t, "spring", session.UTMCampaign)
	assert.Equal(t, "/home", session.LandingPage)
}

func TestInitConcurrentCallersShareOneInsert(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.Init(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, backend.sessionCount())
}

func TestTrackPageViewAfterExpiryStartsNewSession(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	collector.TrackPageView(context.Background(), "/home", "Home")
	require.Equal(t, 1, backend.sessionCount())

	// Past the 30-minute inactivity window: the next navigation must open
	// a second session rather than stretching the expired one.
	clock.Advance(40 * time.Minute)
	collector.TrackPageView(context.Background(), "/return", "Return")

	require.Equal(t, 2, backend.sessionCount())
	first := backend.sessions[0].SessionID
	second := backend.sessions[1].SessionID
	assert.NotEqual(t, first, second)

	require.Len(t, backend.pageViews, 2)
	assert.Equal(t, first, backend.pageViews[0].SessionID)
	assert.Equal(t, second, backend.pageViews[1].SessionID)

	// The fresh session has no previous page and no dwell backfill.
	assert.Nil(t, backend.pageViews[1].PreviousPage)
	_, recorded := backend.durations[backend.pageViews[0].ID]
	assert.False(t, recorded)
}

func TestTrackEventAfterExpiryStartsNewSession(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	collector.TrackClick(context.Background(), "buy-button")
	require.Equal(t, 1, backend.sessionCount())

	clock.Advance(31 * time.Minute)
	collector.TrackClick(context.Background(), "buy-button")

	require.Equal(t, 2, backend.sessionCount())
	require.Len(t, backend.events, 2)
	assert.Equal(t, backend.sessions[0].SessionID, backend.events[0].SessionID)
	assert.Equal(t, backend.sessions[1].SessionID, backend.events[1].SessionID)
}

func TestTrackPageViewWithinWindowKeepsSession(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	// Each navigation renews the window, so three views 20 minutes apart
	// span one session of 40 minutes total.
	collector.TrackPageView(context.Background(), "/home", "Home")
	clock.Advance(20 * time.Minute)
	collector.TrackPageView(context.Background(), "/product", "Product")
	clock.Advance(20 * time.Minute)
	collector.TrackPageView(context.Background(), "/checkout", "Checkout")

	assert.Equal(t, 1, backend.sessionCount())
	require.Len(t, backend.pageViews, 3)
	for _, pv := range backend.pageViews {
		assert.Equal(t, backend.sessions[0].SessionID, pv.SessionID)
	}
}

func TestTrackPageViewBackfillsDwell(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	collector.TrackPageView(context.Background(), "/home", "Home")
	require.Len(t, backend.pageViews, 1)
	firstID := backend.pageViews[0].ID

	clock.Advance(45 * time.Second)
	collector.TrackPageView(context.Background(), "/product", "Product")

	require.Len(t, backend.pageViews, 2)
	assert.Equal(t, 45, backend.durations[firstID])

	second := backend.pageViews[1]
	require.NotNil(t, second.PreviousPage)
	assert.Equal(t, "/home", *second.PreviousPage)
}

func TestTrackPageViewSkipsImplausibleDwell(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	kv := sessionstore.NewMemoryKV(clock.Now)
	// Window longer than the dwell cap so the session survives the gap.
	sessions := sessionstore.New(kv, 3*time.Hour, clock.Now)
	collector := tracking.NewCollector(backend, sessions, testLogger(), chromeVisit(), clock.Now)

	collector.TrackPageView(context.Background(), "/home", "Home")
	firstID := backend.pageViews[0].ID

	clock.Advance(4000 * time.Second)
	collector.TrackPageView(context.Background(), "/product", "Product")

	_, recorded := backend.durations[firstID]
	assert.False(t, recorded, "dwell beyond the plausibility cap must not be stored")
}

func TestTrackPageViewSkipsNonPositiveDwell(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	collector.TrackPageView(context.Background(), "/home", "Home")
	firstID := backend.pageViews[0].ID

	// Same instant: zero dwell must be skipped.
	collector.TrackPageView(context.Background(), "/product", "Product")

	_, recorded := backend.durations[firstID]
	assert.False(t, recorded)
}

func TestTrackPageViewSelfHealsMissingSessionOnce(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	fkErr := errors.New("FOREIGN KEY constraint failed")
	backend.constraintErrs[fkErr] = true
	backend.insertPageViewErr = []error{fkErr}

	collector.TrackPageView(context.Background(), "/home", "Home")

	// Init created one session, the self-heal recreated it, and the retried
	// insert landed.
	assert.Equal(t, 2, backend.sessionCount())
	require.Len(t, backend.pageViews, 1)
	assert.Equal(t, "/home", backend.pageViews[0].PagePath)
	assert.Len(t, backend.touches, 1)
}

func TestTrackPageViewSelfHealRetriesExactlyOnce(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	fkErr := errors.New("FOREIGN KEY constraint failed")
	backend.constraintErrs[fkErr] = true
	backend.insertPageViewErr = []error{fkErr, fkErr}

	collector.TrackPageView(context.Background(), "/home", "Home")

	// The second constraint failure is dropped, not retried again.
	assert.Empty(t, backend.pageViews)
	assert.Empty(t, backend.touches)
}

func TestTrackPageViewUpdatesBookkeepingOnBackendFailure(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	backend.insertPageViewErr = []error{errors.New("disk full")}
	collector.TrackPageView(context.Background(), "/home", "Home")
	require.Empty(t, backend.pageViews)

	clock.Advance(10 * time.Second)
	collector.TrackPageView(context.Background(), "/product", "Product")

	// The failed view still became the previous page for the next one.
	require.Len(t, backend.pageViews, 1)
	require.NotNil(t, backend.pageViews[0].PreviousPage)
	assert.Equal(t, "/home", *backend.pageViews[0].PreviousPage)
}

func TestTrackEventCarriesSessionAndPage(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	collector.TrackPageView(context.Background(), "/product", "Product")
	collector.TrackPurchase(context.Background(), "ord-1", 49.99, 2)

	require.Len(t, backend.events, 1)
	event := backend.events[0]
	assert.Equal(t, "purchase", event.EventName)
	assert.Equal(t, "commerce", event.Category)
	assert.Equal(t, "/product", event.PagePath)
	assert.Equal(t, backend.sessions[0].SessionID, event.SessionID)
	assert.Contains(t, string(event.Payload), "ord-1")
}

func TestSetUserIDUpdatesActiveSession(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	collector.Init(context.Background())
	collector.SetUserID(context.Background(), "user-7")

	require.Len(t, backend.userSets, 1)
	assert.Equal(t, backend.sessions[0].SessionID+":user-7", backend.userSets[0])

	// Subsequent events carry the user id.
	collector.TrackClick(context.Background(), "buy-button")
	require.Len(t, backend.events, 1)
	require.NotNil(t, backend.events[0].UserID)
	assert.Equal(t, "user-7", *backend.events[0].UserID)
}

func TestSetUserIDBeforeInitIsLocalOnly(t *testing.T) {
	backend := newFakeBackend()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := newTestCollector(backend, clock, chromeVisit())

	collector.SetUserID(context.Background(), "user-7")
	assert.Empty(t, backend.userSets)

	collector.Init(context.Background())
	require.Equal(t, 1, backend.sessionCount())
	require.NotNil(t, backend.sessions[0].UserID)
	assert.Equal(t, "user-7", *backend.sessions[0].UserID)
}
