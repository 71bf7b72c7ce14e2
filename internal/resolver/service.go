// Package resolver answers catalog, meta and stream queries from the
// channel index through a memory tier and a key/value tier.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/glefebvre/livetv/internal/epg"
	"github.com/glefebvre/livetv/internal/genre"
	"github.com/glefebvre/livetv/internal/kv"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/memcache"
	"github.com/glefebvre/livetv/internal/metrics"
	"github.com/glefebvre/livetv/internal/models"
	"github.com/glefebvre/livetv/internal/playlist"
)

// Resolver names as reported to metrics
const (
	resolverCatalog = "catalog"
	resolverMeta    = "meta"
	resolverStream  = "stream"
)

// Enricher finds extra stream candidates for a channel name
type Enricher interface {
	Enrich(ctx context.Context, name string, pages []string, force bool) []models.Candidate
}

// GuideSource provides the current programme guide
type GuideSource interface {
	Guide(ctx context.Context) *epg.Guide
}

// Config holds resolver settings
type Config struct {
	MemoryTTL     time.Duration
	KVTTL         time.Duration
	MetaFloor     time.Duration
	PageSize      int
	ScrapePages   []string
	GenreScope    string
	CatchAllLabel string
	Version       string
}

func (c *Config) applyDefaults() {
	if c.MemoryTTL <= 0 {
		c.MemoryTTL = 5 * time.Minute
	}
	if c.KVTTL <= 0 {
		c.KVTTL = 6 * time.Hour
	}
	if c.MetaFloor <= 0 {
		c.MetaFloor = 5 * time.Minute
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.GenreScope == "" {
		c.GenreScope = "default"
	}
	if c.CatchAllLabel == "" {
		c.CatchAllLabel = genre.DefaultCatchAll
	}
	if c.Version == "" {
		c.Version = "1.0.0"
	}
}

// Service owns the memory tier and wires the index, the store, genre
// extraction, scraping and the guide together. It is safe for concurrent
// use.
type Service struct {
	cfg      Config
	index    *playlist.Index
	store    *kv.Adapter
	genres   *genre.Extractor
	enricher Enricher
	guide    GuideSource
	logger   *logger.Logger
	metrics  *metrics.Registry
	now      func() time.Time

	catalogs *memcache.Cache[CatalogResponse]
	metas    *memcache.Cache[metaRecord]
	streams  *memcache.Cache[StreamResponse]

	mu      sync.Mutex
	genreFP string
	// trusted maps a channel name to the playlist fingerprint its scrape
	// result was last refreshed under
	trusted map[string]string
}

// Deps groups the collaborators of a Service. Enricher and Guide may be nil.
type Deps struct {
	Index    *playlist.Index
	Store    *kv.Adapter
	Genres   *genre.Extractor
	Enricher Enricher
	Guide    GuideSource
	Logger   *logger.Logger
	Metrics  *metrics.Registry
}

// New creates a Service
func New(cfg Config, deps Deps) *Service {
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = logger.AppLogger()
	}
	return &Service{
		cfg:      cfg,
		index:    deps.Index,
		store:    deps.Store,
		genres:   deps.Genres,
		enricher: deps.Enricher,
		guide:    deps.Guide,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		now:      time.Now,
		catalogs: memcache.New[CatalogResponse](cfg.MemoryTTL),
		metas:    memcache.New[metaRecord](cfg.MemoryTTL),
		streams:  memcache.New[StreamResponse](cfg.MemoryTTL),
		trusted:  make(map[string]string),
	}
}

// WithClock replaces time.Now for the service and its memory tier
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.catalogs.WithClock(now)
	s.metas.WithClock(now)
	s.streams.WithClock(now)
	return s
}

// table syncs the index and, when the playlist moved since the last
// extraction, refreshes the genre list
func (s *Service) table(ctx context.Context) *playlist.Table {
	t := s.index.Sync(ctx)
	if t.Fingerprint == "" || s.genres == nil {
		return t
	}

	s.mu.Lock()
	stale := s.genreFP != t.Fingerprint
	if stale {
		s.genreFP = t.Fingerprint
	}
	s.mu.Unlock()

	if stale {
		s.genres.ExtractIfChanged(ctx, t.Channels, s.cfg.GenreScope, genre.Options{})
	}
	return t
}

// PurgeExpired drops expired entries from the in-memory tier and
// returns how many were removed
func (s *Service) PurgeExpired() int {
	return s.catalogs.Purge() + s.metas.Purge() + s.streams.Purge()
}

// PurgeEvery purges expired in-memory entries on every tick until ctx is
// done. A non-positive interval uses the memory TTL.
func (s *Service) PurgeEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.cfg.MemoryTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.PurgeExpired(); n > 0 {
				s.logger.WithFields(map[string]interface{}{"removed": n}).Debug("memory cache purged")
			}
		}
	}
}

// RefreshGenres recomputes the genre list from the current playlist.
// force also refetches the playlist past the index throttle.
func (s *Service) RefreshGenres(ctx context.Context, force bool) genre.Result {
	var t *playlist.Table
	if force {
		t = s.index.Reload(ctx)
	} else {
		t = s.index.Sync(ctx)
	}
	res := s.genres.ExtractIfChanged(ctx, t.Channels, s.cfg.GenreScope, genre.Options{ForceRefresh: force})

	s.mu.Lock()
	s.genreFP = t.Fingerprint
	s.mu.Unlock()

	s.catalogs.Clear()
	return res
}

// Genres returns the stored genre list, deriving it when nothing is stored
func (s *Service) Genres(ctx context.Context) []string {
	t := s.table(ctx)
	if s.genres == nil {
		return nil
	}
	if stored := s.genres.Stored(ctx, s.cfg.GenreScope); len(stored) > 0 {
		return stored
	}
	return genre.Names(s.genres.Compute(t.Channels))
}

// channelGenres is the genre set a channel is filed under
func (s *Service) channelGenres(ch models.Channel) []string {
	groups := ch.Groups()
	if len(groups) == 0 {
		return []string{s.cfg.CatchAllLabel}
	}
	return groups
}

// lookup records a cache lookup outcome
func (s *Service) lookup(resolver, tier string, hit bool) {
	result := metrics.ResultMiss
	if hit {
		result = metrics.ResultHit
	}
	s.metrics.Lookup(resolver, tier, result)
}
