// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/glefebvre/livetv/internal/config"
	"github.com/glefebvre/livetv/internal/database"
	"github.com/glefebvre/livetv/internal/kv"
)

// TestDB opens a migrated sqlite database in a temp dir
func TestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(config.SQLConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "kv.db")}, "error")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	return db
}

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SeedEnvelope writes payload under key in the current envelope format
func SeedEnvelope(t *testing.T, store kv.Store, key string, payload any, ttl time.Duration, writtenAt time.Time) {
	t.Helper()

	env, err := kv.NewEnvelope(payload, ttl, writtenAt)
	if err != nil {
		t.Fatalf("failed to build envelope for %s: %v", key, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("failed to marshal envelope for %s: %v", key, err)
	}
	if err := store.Set(context.Background(), key, data); err != nil {
		t.Fatalf("failed to seed %s: %v", key, err)
	}
}

// SeedLegacy writes payload under key in the older {timestamp, data} shape
func SeedLegacy(t *testing.T, store kv.Store, key string, payload any, writtenAt time.Time) {
	t.Helper()

	data, err := json.Marshal(map[string]any{"timestamp": writtenAt.UnixMilli(), "data": payload})
	if err != nil {
		t.Fatalf("failed to marshal legacy value for %s: %v", key, err)
	}
	if err := store.Set(context.Background(), key, data); err != nil {
		t.Fatalf("failed to seed %s: %v", key, err)
	}
}

// PlaylistServer serves an M3U body that tests can swap and counts hits
type PlaylistServer struct {
	*httptest.Server

	mu   sync.Mutex
	body string
	hits atomic.Int32
}

// NewPlaylistServer starts a server answering every path with body
func NewPlaylistServer(t *testing.T, body string) *PlaylistServer {
	t.Helper()

	ps := &PlaylistServer{body: body}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.hits.Add(1)
		ps.mu.Lock()
		defer ps.mu.Unlock()
		w.Header().Set("Content-Type", "audio/x-mpegurl")
		fmt.Fprint(w, ps.body)
	}))
	t.Cleanup(ps.Close)
	return ps
}

// SetBody replaces the served playlist
func (ps *PlaylistServer) SetBody(body string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.body = body
}

// Hits returns how many requests were served
func (ps *PlaylistServer) Hits() int {
	return int(ps.hits.Load())
}

// Playlist builds an M3U document from "name|group|url" lines
func Playlist(entries ...string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, e := range entries {
		parts := strings.SplitN(e, "|", 3)
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		fmt.Fprintf(&b, "#EXTINF:-1 tvg-name=%q group-title=%q,%s\n%s\n", parts[0], parts[1], parts[0], parts[2])
	}
	return b.String()
}

// TableTest represents a single table-driven test case
type TableTest[T any] struct {
	Name     string
	Input    T
	Expected interface{}
	WantErr  bool
}

// RunTableTests executes table-driven tests
func RunTableTests[T any](t *testing.T, tests []TableTest[T], testFn func(t *testing.T, tc TableTest[T])) {
	t.Helper()
	for _, tc := range tests {
		t.Run(tc.Name, func(t *testing.T) {
			testFn(t, tc)
		})
	}
}

// AssertCount verifies the count of records in a table
func AssertCount(t *testing.T, db *gorm.DB, model interface{}, expected int64, message string) {
	t.Helper()
	var count int64
	db.Model(model).Count(&count)
	if count != expected {
		t.Fatalf("%s: expected count %d, got %d", message, expected, count)
	}
}
