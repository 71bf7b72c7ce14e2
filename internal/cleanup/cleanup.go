// Package cleanup reaps old entries from the key/value store.
//
// The sweep is a coarse safety net independent of each entry's own TTL:
// an entry is eligible once its recorded write time is older than MaxAge,
// whatever TTL it was written with.
package cleanup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glefebvre/livetv/internal/dryrun"
	"github.com/glefebvre/livetv/internal/kv"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/metrics"
	"github.com/glefebvre/livetv/internal/models"
	"github.com/glefebvre/livetv/internal/playlist"
)

// LastRunKey holds the summary of the last destructive sweep
const LastRunKey = "cleanup:last-run"

const (
	DefaultMaxAge    = 7 * 24 * time.Hour
	DefaultBatchSize = 50
)

// housekeepingKeys are never swept
var housekeepingKeys = []string{LastRunKey, playlist.FingerprintKey}

// Config holds sweep settings
type Config struct {
	MaxAge    time.Duration
	BatchSize int

	// Excluded keys are skipped in addition to the housekeeping keys
	Excluded []string
}

// Options tunes one sweep
type Options struct {
	DryRun bool
}

// Result is what a sweep found and did. Report is only set on dry runs.
type Result struct {
	Record   models.CleanupRecord `json:"record"`
	Eligible []string             `json:"-"`
	Report   *dryrun.Report       `json:"report,omitempty"`
}

// Sweeper deletes entries older than MaxAge
type Sweeper struct {
	store    *kv.Adapter
	cfg      Config
	excluded map[string]bool
	logger   *logger.Logger
	metrics  *metrics.Registry
	now      func() time.Time
}

// NewSweeper creates a sweeper over store
func NewSweeper(store *kv.Adapter, cfg Config, log *logger.Logger, m *metrics.Registry) *Sweeper {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.AppLogger()
	}

	excluded := make(map[string]bool, len(housekeepingKeys)+len(cfg.Excluded))
	for _, k := range housekeepingKeys {
		excluded[k] = true
	}
	for _, k := range cfg.Excluded {
		excluded[k] = true
	}

	return &Sweeper{
		store:    store,
		cfg:      cfg,
		excluded: excluded,
		logger:   log,
		metrics:  m,
		now:      store.Now,
	}
}

// Sweep lists the store, finds entries older than MaxAge and deletes them.
// Only the first page of keys the backend returns is considered. A listing
// failure fails the sweep; every other store failure is counted and logged.
func (s *Sweeper) Sweep(ctx context.Context, opts Options) (*Result, error) {
	now := s.now()
	log := s.logger.WithFields(map[string]interface{}{
		"dry_run":       opts.DryRun,
		"max_age_hours": s.cfg.MaxAge.Hours(),
	})

	keys, err := s.store.ListKeys(ctx, "")
	if err != nil {
		return nil, err
	}

	candidates := make([]string, 0, len(keys))
	for _, k := range keys {
		if !s.excluded[k] {
			candidates = append(candidates, k)
		}
	}

	eligible, err := s.findEligible(ctx, candidates, now)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Eligible: eligible,
		Record: models.CleanupRecord{
			Scanned:   len(candidates),
			Expired:   len(eligible),
			DryRun:    opts.DryRun,
			Timestamp: now,
		},
	}

	if opts.DryRun {
		res.Report = dryrun.NewReport(len(candidates), eligible, now)
		log.WithFields(map[string]interface{}{
			"scanned":   len(candidates),
			"to_delete": len(eligible),
		}).Info("cleanup dry run complete")
		return res, nil
	}

	s.delete(ctx, eligible, &res.Record)
	s.metrics.Cleanup(res.Record.Deleted, res.Record.FallbackDeleted, res.Record.FallbackFailed)

	if err := s.store.SetJSON(ctx, LastRunKey, res.Record); err != nil {
		log.Error("cleanup summary not persisted", err)
	}

	log.WithFields(map[string]interface{}{
		"scanned":          res.Record.Scanned,
		"expired":          res.Record.Expired,
		"deleted":          res.Record.Deleted,
		"fallback_deleted": res.Record.FallbackDeleted,
		"fallback_failed":  res.Record.FallbackFailed,
	}).Info("cleanup complete")

	return res, nil
}

// findEligible reads candidates BatchSize at a time, all reads of a batch
// in flight together, and keeps the keys written before now-MaxAge in
// listing order
func (s *Sweeper) findEligible(ctx context.Context, keys []string, now time.Time) ([]string, error) {
	old := make([]bool, len(keys))

	for start := 0; start < len(keys); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(keys))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				env, _, ok := s.store.ReadEnvelope(gctx, keys[i])
				old[i] = ok && env.OlderThan(s.cfg.MaxAge, now)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	eligible := make([]string, 0)
	for i, k := range keys {
		if old[i] {
			eligible = append(eligible, k)
		}
	}
	return eligible, nil
}

// delete removes keys with the backend's batch delete when it has one,
// chunked to its limit. Once a chunk fails, that chunk and every later key
// are deleted one by one.
func (s *Sweeper) delete(ctx context.Context, keys []string, rec *models.CleanupRecord) {
	if len(keys) == 0 {
		return
	}

	pending := keys
	if limit, ok := s.store.BatchLimit(); ok {
		for len(pending) > 0 {
			chunk := pending[:min(limit, len(pending))]
			if err := s.store.DeleteBatch(ctx, chunk); err != nil {
				s.logger.WithFields(map[string]interface{}{
					"chunk":   len(chunk),
					"pending": len(pending),
				}).Warn("batch delete failed, deleting keys one by one")
				break
			}
			rec.Deleted += len(chunk)
			pending = pending[len(chunk):]
		}
	}

	if len(pending) == 0 {
		return
	}

	var deleted, failed atomic.Int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.BatchSize)
	for _, k := range pending {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.store.Delete(ctx, k); err != nil {
				failed.Add(1)
				return
			}
			deleted.Add(1)
		}()
	}
	wg.Wait()

	rec.FallbackDeleted += int(deleted.Load())
	rec.FallbackFailed += int(failed.Load())
}

// LastRun returns the persisted summary of the last destructive sweep
func (s *Sweeper) LastRun(ctx context.Context) (models.CleanupRecord, bool) {
	var rec models.CleanupRecord
	ok := s.store.GetJSON(ctx, LastRunKey, &rec)
	return rec, ok
}
