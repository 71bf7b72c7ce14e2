package main

import (
	"time"

	"github.com/glefebvre/livetv/internal/cleanup"
	"github.com/glefebvre/livetv/internal/config"
	"github.com/glefebvre/livetv/internal/epg"
	"github.com/glefebvre/livetv/internal/fetch"
	"github.com/glefebvre/livetv/internal/genre"
	"github.com/glefebvre/livetv/internal/kv"
	"github.com/glefebvre/livetv/internal/kv/backend"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/metrics"
	"github.com/glefebvre/livetv/internal/playlist"
	"github.com/glefebvre/livetv/internal/resolver"
	"github.com/glefebvre/livetv/internal/retry"
	"github.com/glefebvre/livetv/internal/scraper"
)

// app holds every service built from the configuration
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Registry
	store    *kv.Adapter
	index    *playlist.Index
	resolver *resolver.Service
	sweeper  *cleanup.Sweeper
	close    func() error
}

func newApp(cfg *config.Config) (*app, error) {
	log := logger.AppLogger()
	m := metrics.New()

	raw, closeStore, err := backend.Open(cfg.KV, cfg.GetStoreLogLevel())
	if err != nil {
		return nil, err
	}
	store := kv.NewAdapter(raw,
		kv.WithLogger(logger.StoreLogger()),
		kv.WithMetrics(m),
		kv.WithTimeout(config.Seconds(cfg.KV.TimeoutSeconds, kv.DefaultTimeout)),
	)

	playlistRetry := retry.DefaultConfig()
	if cfg.Playlist.RetryAttempts > 0 {
		playlistRetry.MaxAttempts = cfg.Playlist.RetryAttempts + 1
	}
	playlistFetcher := fetch.New(fetch.Config{
		Timeout:     config.Seconds(cfg.Playlist.TimeoutSeconds, 15*time.Second),
		UserAgent:   cfg.Playlist.UserAgent,
		RetryConfig: playlistRetry,
	}, log)

	index := playlist.NewIndex(playlist.IndexConfig{
		URL:           cfg.Playlist.URL,
		CheckInterval: config.Seconds(cfg.Playlist.CheckIntervalSeconds, time.Minute),
	}, playlistFetcher, store, log, m)

	genres := genre.NewExtractor(store, genre.Config{
		CatchAllLabel: cfg.Genres.CatchAllLabel,
		Locale:        cfg.Genres.Locale,
	}, log)

	aliases := scraper.DefaultAliasTable()
	if cfg.Scraper.AliasFile != "" {
		if aliases, err = scraper.LoadAliasTable(cfg.Scraper.AliasFile); err != nil {
			_ = closeStore()
			return nil, err
		}
	}
	scrapeFetcher := fetch.New(fetch.Config{
		Timeout:           config.Seconds(cfg.Scraper.TimeoutSeconds, 10*time.Second),
		UserAgent:         cfg.Scraper.UserAgent,
		MaxBytes:          8 << 20,
		RequestsPerSecond: cfg.Scraper.RequestsPerSec,
		RetryConfig:       retry.Config{MaxAttempts: 1},
	}, log)
	engine := scraper.NewEngine(store, scrapeFetcher, aliases, scraper.Config{
		TTL: config.Seconds(cfg.Scraper.TTLSeconds, scraper.DefaultTTL),
	}, log, m)

	deps := resolver.Deps{
		Index:    index,
		Store:    store,
		Genres:   genres,
		Enricher: engine,
		Logger:   log,
		Metrics:  m,
	}
	if cfg.EPG.URL != "" {
		guideFetcher := fetch.New(fetch.Config{
			Timeout:     config.Seconds(cfg.EPG.TimeoutSeconds, 15*time.Second),
			RetryConfig: retry.DefaultConfig(),
		}, log)
		deps.Guide = epg.NewService(cfg.EPG.URL, config.Seconds(cfg.EPG.RefreshSeconds, 30*time.Minute), guideFetcher, log)
	}

	svc := resolver.New(resolver.Config{
		MemoryTTL:     config.Seconds(cfg.Cache.MemoryTTLSeconds, 5*time.Minute),
		KVTTL:         config.Seconds(cfg.Cache.KVTTLSeconds, 6*time.Hour),
		MetaFloor:     config.Seconds(cfg.Cache.MetaFloorSeconds, 5*time.Minute),
		PageSize:      cfg.Cache.CatalogPageSize,
		ScrapePages:   cfg.Scraper.Pages,
		GenreScope:    cfg.Genres.Scope,
		CatchAllLabel: cfg.Genres.CatchAllLabel,
		Version:       manifestVersion(),
	}, deps)

	sweeper := cleanup.NewSweeper(store, cleanup.Config{
		MaxAge:    time.Duration(cfg.Cleanup.MaxAgeHours) * time.Hour,
		BatchSize: cfg.Cleanup.BatchSize,
		Excluded:  cfg.Cleanup.ExcludedKeys,
	}, log, m)

	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		store:    store,
		index:    index,
		resolver: svc,
		sweeper:  sweeper,
		close:    closeStore,
	}, nil
}

// manifestVersion is the build version, or empty for the resolver default
// when running an unversioned build
func manifestVersion() string {
	if version == "dev" {
		return ""
	}
	return version
}
