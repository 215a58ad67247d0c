package sessionstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoplytics/internal/sessionstore"
)

// fakeClock is a mutable clock shared by the KV and the store.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(window time.Duration) (*sessionstore.Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	kv := sessionstore.NewMemoryKV(clock.Now)
	return sessionstore.New(kv, window, clock.Now), clock
}

func TestGetOrCreateSessionIDStableWithinWindow(t *testing.T) {
	store, _ := newTestStore(30 * time.Minute)

	first, isNew := store.GetOrCreateSessionID()
	require.True(t, isNew)
	require.NotEmpty(t, first)

	second, isNew := store.GetOrCreateSessionID()
	assert.False(t, isNew)
	assert.Equal(t, first, second)
}

func TestGetOrCreateSessionIDRenewsAfterExpiry(t *testing.T) {
	store, clock := newTestStore(30 * time.Minute)

	first, _ := store.GetOrCreateSessionID()

	clock.Advance(31 * time.Minute)

	second, isNew := store.GetOrCreateSessionID()
	assert.True(t, isNew)
	assert.NotEqual(t, first, second)
}

func TestGetOrCreateSessionIDExtendsExpiryOnAccess(t *testing.T) {
	store, clock := newTestStore(30 * time.Minute)

	first, _ := store.GetOrCreateSessionID()

	// Two accesses 20 minutes apart keep the session alive for a total of
	// 40 minutes, past the original window, because each hit renews it.
	clock.Advance(20 * time.Minute)
	mid, isNew := store.GetOrCreateSessionID()
	require.False(t, isNew)
	require.Equal(t, first, mid)

	clock.Advance(20 * time.Minute)
	last, isNew := store.GetOrCreateSessionID()
	assert.False(t, isNew)
	assert.Equal(t, first, last)
}

func TestLastPageBookkeeping(t *testing.T) {
	store, clock := newTestStore(30 * time.Minute)

	_, ok := store.LastPage()
	require.False(t, ok)

	recorded := sessionstore.LastPage{
		Path:       "/product",
		ViewedAt:   clock.Now(),
		PageViewID: 42,
	}
	store.SetLastPage(recorded)

	page, ok := store.LastPage()
	require.True(t, ok)
	assert.Equal(t, "/product", page.Path)
	assert.Equal(t, uint(42), page.PageViewID)
	assert.True(t, page.ViewedAt.Equal(recorded.ViewedAt))
}

func TestNewSessionClearsLastPage(t *testing.T) {
	store, clock := newTestStore(30 * time.Minute)

	store.GetOrCreateSessionID()
	store.SetLastPage(sessionstore.LastPage{Path: "/old", ViewedAt: clock.Now(), PageViewID: 7})

	clock.Advance(time.Hour)

	_, isNew := store.GetOrCreateSessionID()
	require.True(t, isNew)

	_, ok := store.LastPage()
	assert.False(t, ok)
}

func TestMemoryKVExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	kv := sessionstore.NewMemoryKV(clock.Now)

	kv.Set("k", "v", time.Minute)
	value, ok := kv.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", value)

	clock.Advance(time.Minute)
	_, ok = kv.Get("k")
	assert.False(t, ok)
}
