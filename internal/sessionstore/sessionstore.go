// Package sessionstore manages the visitor-local session identifier and
// last-page bookkeeping. It is the client half of session lifecycle
// management: the identifier lives in an ephemeral key-value store with
// per-key expiry and is renewed on every access within the inactivity
// window.
//
// The store abstracts the underlying storage behind the KV interface so the
// collector can run in any host environment (server process, mobile app,
// test harness).
package sessionstore

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// DefaultWindow is the inactivity window after which a session expires.
const DefaultWindow = 30 * time.Minute

const (
	sessionIDKey = "analytics_session_id"
	lastPageKey  = "analytics_last_page"
)

// KV is an ephemeral key-value store with per-key expiry.
type KV interface {
	// Get returns the stored value and whether it exists and has not expired.
	Get(key string) (string, bool)
	// Set stores a value that expires after ttl.
	Set(key, value string, ttl time.Duration)
	// Clear removes a key.
	Clear(key string)
}

// memoryEntry is one stored value with its expiry.
type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryKV is an in-memory KV implementation with an injectable clock.
type MemoryKV struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryKV creates a MemoryKV. A nil clock defaults to time.Now.
func NewMemoryKV(now func() time.Time) *MemoryKV {
	if now == nil {
		now = time.Now
	}
	return &MemoryKV{
		now:     now,
		entries: make(map[string]memoryEntry),
	}
}

// Get implements KV.
func (kv *MemoryKV) Get(key string) (string, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	entry, ok := kv.entries[key]
	if !ok {
		return "", false
	}
	if !kv.now().Before(entry.expiresAt) {
		delete(kv.entries, key)
		return "", false
	}
	return entry.value, true
}

// Set implements KV.
func (kv *MemoryKV) Set(key, value string, ttl time.Duration) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.entries[key] = memoryEntry{value: value, expiresAt: kv.now().Add(ttl)}
}

// Clear implements KV.
func (kv *MemoryKV) Clear(key string) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.entries, key)
}

// LastPage records the most recent page view seen by the collector, kept
// locally so dwell time can be computed without querying the backend.
type LastPage struct {
	Path       string    `json:"path"`
	ViewedAt   time.Time `json:"viewed_at"`
	PageViewID uint      `json:"page_view_id"`
}

// Store manages the session identifier lifecycle over a KV.
//
// The calling client is a single logical actor, but every read-then-write
// sequence still runs under one mutex so concurrent invocations cannot
// interleave and mint duplicate sessions.
type Store struct {
	mu     sync.Mutex
	kv     KV
	window time.Duration
	now    func() time.Time
}

// New creates a session store. A zero window defaults to DefaultWindow and
// a nil clock to time.Now.
func New(kv KV, window time.Duration, now func() time.Time) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Store{kv: kv, window: window, now: now}
}

// GetOrCreateSessionID returns the active session id, extending its expiry
// by the full window, or mints a fresh one when none is active. The second
// return value reports whether the id is new.
func (s *Store) GetOrCreateSessionID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.kv.Get(sessionIDKey); ok {
		s.kv.Set(sessionIDKey, id, s.window)
		return id, false
	}

	id := s.mintSessionID()
	s.kv.Set(sessionIDKey, id, s.window)
	// A fresh session has no previous page.
	s.kv.Clear(lastPageKey)
	return id, true
}

// mintSessionID builds a timestamp-plus-random-suffix identifier. Collisions
// are immaterial at this traffic scale, so no cryptographic source is used.
func (s *Store) mintSessionID() string {
	return fmt.Sprintf("%d-%08x", s.now().UnixMilli(), rand.Uint32())
}

// LastPage returns the locally recorded previous page view, if any.
func (s *Store) LastPage() (LastPage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.kv.Get(lastPageKey)
	if !ok {
		return LastPage{}, false
	}

	var page LastPage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		return LastPage{}, false
	}
	return page, true
}

// SetLastPage records the page view just tracked. It shares the session
// window so the bookkeeping expires together with the session id.
func (s *Store) SetLastPage(page LastPage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	s.kv.Set(lastPageKey, string(raw), s.window)
}

// Reset clears the session id and bookkeeping; intended for tests and for
// hosts that want an explicit session boundary (e.g. logout).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv.Clear(sessionIDKey)
	s.kv.Clear(lastPageKey)
}
