// Package scraper enriches a channel with stream candidates found on
// third-party pages.
package scraper

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/glefebvre/livetv/internal/errors"
	"github.com/glefebvre/livetv/internal/kv"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/metrics"
	"github.com/glefebvre/livetv/internal/models"
)

// DefaultTTL is how long a scrape result is trusted
const DefaultTTL = time.Hour

// maxParallelPages bounds concurrent page fetches within one Enrich call
const maxParallelPages = 4

// Page outcomes reported to metrics
const (
	OutcomeMatched  = "matched"
	OutcomeFallback = "fallback"
	OutcomeEmpty    = "empty"
	OutcomeFailed   = "failed"
)

// Source fetches a page body
type Source interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Config holds engine settings
type Config struct {
	TTL time.Duration
}

// Engine scrapes pages for a channel and caches the result per channel name
type Engine struct {
	store   *kv.Adapter
	source  Source
	aliases *AliasTable
	layouts []Layout
	ttl     time.Duration
	logger  *logger.Logger
	metrics *metrics.Registry
}

// NewEngine creates an engine. A nil alias table uses the defaults.
func NewEngine(store *kv.Adapter, source Source, aliases *AliasTable, cfg Config, log *logger.Logger, m *metrics.Registry) *Engine {
	if aliases == nil {
		aliases = DefaultAliasTable()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if log == nil {
		log = logger.AppLogger()
	}
	return &Engine{
		store:   store,
		source:  source,
		aliases: aliases,
		layouts: DefaultLayouts(),
		ttl:     cfg.TTL,
		logger:  log,
		metrics: m,
	}
}

// WithLayouts replaces the layout list
func (e *Engine) WithLayouts(layouts ...Layout) *Engine {
	e.layouts = layouts
	return e
}

// CacheKey is the store key for a channel's scrape result
func CacheKey(name string) string {
	return "scrape:" + strings.ToLower(strings.TrimSpace(name))
}

// Enrich returns the candidates for name found across pages. A cached
// result is returned unless force is set. The fresh result is cached even
// when empty.
func (e *Engine) Enrich(ctx context.Context, name string, pages []string, force bool) []models.Candidate {
	key := CacheKey(name)
	log := e.logger.WithFields(map[string]interface{}{
		"channel": name,
		"pages":   len(pages),
		"force":   force,
	})

	if !force {
		var cached []models.Candidate
		if e.store.GetTTL(ctx, key, &cached) {
			log.WithFields(map[string]interface{}{"candidates": len(cached)}).Debug("scrape cache hit")
			return cached
		}
	}

	terms := e.aliases.Terms(name)
	perPage := make([][]models.Candidate, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPages)
	for i, page := range pages {
		g.Go(func() error {
			cands, err := e.scrapePage(gctx, page, name, terms)
			if err != nil {
				e.metrics.ScrapePage(OutcomeFailed, 0)
				log.WithFields(map[string]interface{}{"page": page}).Error("scrape page failed, skipping", err)
				return nil
			}
			perPage[i] = cands
			return nil
		})
	}
	_ = g.Wait()

	all := make([]models.Candidate, 0)
	for _, cands := range perPage {
		all = append(all, cands...)
	}

	if _, err := e.store.SetTTLIfChanged(ctx, key, all, e.ttl); err != nil {
		log.Error("scrape result not cached", err)
	}
	log.WithFields(map[string]interface{}{"candidates": len(all)}).Info("channel enriched")
	return all
}

func (e *Engine) scrapePage(ctx context.Context, page, name string, terms []string) ([]models.Candidate, error) {
	body, err := e.source.Get(ctx, page)
	if err != nil {
		return nil, err
	}

	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}

	var matched, every, external []Entry
	for _, layout := range e.layouts {
		for _, entry := range layout.Extract(doc) {
			if Matches(entry.Label, terms) {
				matched = append(matched, entry)
			}
			if entry.Stream {
				every = append(every, entry)
			} else {
				external = append(external, entry)
			}
		}
	}
	// Pages without any stream link fall back to their external links.
	if len(every) == 0 {
		every = external
	}

	outcome := OutcomeMatched
	entries := matched
	if len(matched) == 0 {
		entries = every
		outcome = OutcomeFallback
		if len(every) == 0 {
			outcome = OutcomeEmpty
		}
	}
	e.metrics.ScrapePage(outcome, len(entries))

	e.logger.WithFields(map[string]interface{}{
		"page":    page,
		"outcome": outcome,
		"entries": len(every),
		"matched": len(matched),
	}).Debug("page scraped")

	out := make([]models.Candidate, 0, len(entries))
	for _, entry := range entries {
		out = append(out, models.Candidate{
			DisplayName: name,
			Title:       entry.Label,
			ExternalURL: entry.URL,
		})
	}
	return out, nil
}

// parseDocument tolerates malformed markup; only a reader failure is an error
func parseDocument(body []byte) (*goquery.Document, error) {
	node, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.ParseError("unparseable scrape page", err).WithContext("bytes", len(body))
	}
	return goquery.NewDocumentFromNode(node), nil
}
