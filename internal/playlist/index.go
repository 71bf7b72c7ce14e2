package playlist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glefebvre/livetv/internal/fingerprint"
	"github.com/glefebvre/livetv/internal/kv"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/metrics"
)

// FingerprintKey stores the fingerprint of the last loaded playlist
const FingerprintKey = "playlist:fingerprint"

// Source fetches the raw playlist body
type Source interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// IndexConfig holds index settings
type IndexConfig struct {
	URL string

	// CheckInterval throttles Sync; zero checks upstream on every call
	CheckInterval time.Duration
}

// Index memoizes the channel table and swaps in a new one only when the
// upstream fingerprint moves or a reload is forced
type Index struct {
	cfg     IndexConfig
	source  Source
	store   *kv.Adapter
	logger  *logger.Logger
	metrics *metrics.Registry
	now     func() time.Time

	table atomic.Pointer[Table]

	// loadMu serializes upstream fetches; mu guards the fields below it
	loadMu     sync.Mutex
	mu         sync.Mutex
	lastCheck  time.Time
	refreshing bool
}

// NewIndex creates an index. store may be nil, in which case change
// detection only spans the process lifetime.
func NewIndex(cfg IndexConfig, source Source, store *kv.Adapter, log *logger.Logger, m *metrics.Registry) *Index {
	if log == nil {
		log = logger.AppLogger()
	}
	return &Index{
		cfg:     cfg,
		source:  source,
		store:   store,
		logger:  log,
		metrics: m,
		now:     time.Now,
	}
}

// Current returns the memoized table without touching upstream. It is
// empty until the first Load.
func (ix *Index) Current() *Table {
	if t := ix.table.Load(); t != nil {
		return t
	}
	return EmptyTable()
}

// Load fetches, parses and installs a fresh table. A fetch or parse
// failure installs and returns an empty table on a cold index; a warm
// index keeps serving its previous table.
func (ix *Index) Load(ctx context.Context) *Table {
	ix.loadMu.Lock()
	defer ix.loadMu.Unlock()
	return ix.loadLocked(ctx, true)
}

// Reload is Load under another name for callers that force freshness
func (ix *Index) Reload(ctx context.Context) *Table {
	return ix.Load(ctx)
}

// Sync checks upstream at most once per CheckInterval and rebuilds the
// table only when the playlist fingerprint changed. A warm index never
// waits on upstream: while one caller refreshes, the others get the
// current table.
func (ix *Index) Sync(ctx context.Context) *Table {
	if current := ix.table.Load(); current != nil {
		if !ix.claimRefresh() {
			return current
		}
		defer ix.releaseRefresh()
	}

	ix.loadMu.Lock()
	defer ix.loadMu.Unlock()

	// a cold caller may have queued behind the first load
	if t := ix.table.Load(); t != nil && !ix.due() {
		return t
	}
	return ix.loadLocked(ctx, false)
}

func (ix *Index) due() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.dueLocked()
}

func (ix *Index) dueLocked() bool {
	return ix.cfg.CheckInterval <= 0 || ix.now().Sub(ix.lastCheck) >= ix.cfg.CheckInterval
}

func (ix *Index) claimRefresh() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.refreshing || !ix.dueLocked() {
		return false
	}
	ix.refreshing = true
	return true
}

func (ix *Index) releaseRefresh() {
	ix.mu.Lock()
	ix.refreshing = false
	ix.mu.Unlock()
}

// loadLocked runs with loadMu held
func (ix *Index) loadLocked(ctx context.Context, force bool) *Table {
	ix.mu.Lock()
	ix.lastCheck = ix.now()
	ix.mu.Unlock()
	previous := ix.table.Load()
	log := ix.logger.WithFields(map[string]interface{}{"url": ix.cfg.URL})

	body, err := ix.source.Get(ctx, ix.cfg.URL)
	if err != nil {
		log.Error("playlist fetch failed", err)
		return ix.fail(previous)
	}

	fp := fingerprint.Of(body)
	if !force && previous != nil && previous.Fingerprint == fp {
		ix.metrics.PlaylistLoad("unchanged", previous.Len())
		return previous
	}

	entries, err := NewParser(ix.logger).Parse(body)
	if err != nil {
		log.WithFields(map[string]interface{}{"bytes": len(body)}).Error("playlist parse failed", err)
		return ix.fail(previous)
	}

	table := BuildTable(entries, fp)
	table.LoadedAt = ix.now()
	table.Changed = ix.fingerprintMoved(ctx, previous, fp)
	ix.table.Store(table)

	result := "unchanged"
	if table.Changed {
		result = "changed"
	}
	ix.metrics.PlaylistLoad(result, table.Len())
	log.WithFields(map[string]interface{}{
		"fingerprint": fingerprint.Short(fp),
		"entries":     len(entries),
		"channels":    table.Len(),
		"changed":     table.Changed,
	}).Info("playlist loaded")

	return table
}

// fingerprintMoved compares fp with the last known fingerprint, in memory
// first and then in the store, and records fp as the new one
func (ix *Index) fingerprintMoved(ctx context.Context, previous *Table, fp string) bool {
	known := ""
	if previous != nil {
		known = previous.Fingerprint
	}
	if known == "" && ix.store != nil {
		var stored string
		if ix.store.GetJSON(ctx, FingerprintKey, &stored) {
			known = stored
		}
	}

	if known != fp && ix.store != nil {
		_ = ix.store.SetJSON(ctx, FingerprintKey, fp)
	}
	return known != "" && known != fp
}

func (ix *Index) fail(previous *Table) *Table {
	ix.metrics.PlaylistLoad("failed", 0)
	if previous != nil && previous.Len() > 0 {
		return previous
	}
	empty := EmptyTable()
	ix.table.Store(empty)
	return empty
}
