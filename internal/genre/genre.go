// Package genre derives the catalog genre list from the channel table and
// persists it per scope only when the underlying groups changed.
package genre

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/glefebvre/livetv/internal/fingerprint"
	"github.com/glefebvre/livetv/internal/kv"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/models"
)

// DefaultCatchAll labels channels without any group
const DefaultCatchAll = "Other"

// UpdatedLayout formats the "last updated" display string
const UpdatedLayout = "2006-01-02 15:04 MST"

// Options tunes one extraction run
type Options struct {
	// ForceRefresh recomputes and persists even when the stored hash matches
	ForceRefresh bool
}

// Count is one genre with the number of channels carrying it
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Result describes what an extraction run saw and did
type Result struct {
	Scope        string
	Hash         string
	Genres       []string
	Counts       []Count
	HashChanged  bool
	Persisted    bool
	SkippedEmpty bool
	ForceRefresh bool
	LastUpdated  string
}

// Config holds extractor settings
type Config struct {
	CatchAllLabel string
	Locale        string
}

// Extractor computes and stores genre lists
type Extractor struct {
	store  *kv.Adapter
	cfg    Config
	tag    language.Tag
	logger *logger.Logger
	now    func() time.Time
}

// NewExtractor creates an extractor persisting through store
func NewExtractor(store *kv.Adapter, cfg Config, log *logger.Logger) *Extractor {
	if cfg.CatchAllLabel == "" {
		cfg.CatchAllLabel = DefaultCatchAll
	}
	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		tag = language.English
	}
	if log == nil {
		log = logger.AppLogger()
	}
	return &Extractor{store: store, cfg: cfg, tag: tag, logger: log, now: time.Now}
}

// HashKey, ListKey and UpdatedKey name the per-scope records
func HashKey(scope string) string    { return "genres:" + scope + ":hash" }
func ListKey(scope string) string    { return "genres:" + scope + ":list" }
func UpdatedKey(scope string) string { return "genres:" + scope + ":updated" }

// Composite renders the group fields of every channel into one text whose
// fingerprint changes whenever any channel's genre membership does
func Composite(channels []models.Channel) string {
	var b strings.Builder
	for _, ch := range channels {
		b.WriteString(ch.ID)
		b.WriteByte('\t')
		b.WriteString(strings.Join(ch.Groups(), "|"))
		b.WriteByte('\n')
	}
	return b.String()
}

// Compute counts genre membership. A channel counts once for every
// distinct group it carries; channels with none, or only the catch-all
// label, count towards the catch-all bucket which always sorts last.
// Groups differing only in case are one genre, named by the first
// spelling seen.
func Compute(channels []models.Channel, catchAll string, tag language.Tag) []Count {
	var out []Count
	index := make(map[string]int)
	uncategorized := 0

	for _, ch := range channels {
		counted := make(map[string]bool)
		for _, g := range ch.Groups() {
			if strings.EqualFold(g, catchAll) {
				continue
			}
			key := strings.ToLower(g)
			if counted[key] {
				continue
			}
			counted[key] = true
			i, ok := index[key]
			if !ok {
				i = len(out)
				index[key] = i
				out = append(out, Count{Name: g})
			}
			out[i].Count++
		}
		if len(counted) == 0 {
			uncategorized++
		}
	}

	col := collate.New(tag, collate.IgnoreCase)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if c := col.CompareString(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].Name < out[j].Name
	})

	if uncategorized > 0 {
		out = append(out, Count{Name: catchAll, Count: uncategorized})
	}
	return out
}

// Names flattens counts into the ordered genre list
func Names(counts []Count) []string {
	names := make([]string, len(counts))
	for i, c := range counts {
		names[i] = c.Name
	}
	return names
}

// Compute counts genres with the extractor's catch-all label and locale
func (e *Extractor) Compute(channels []models.Channel) []Count {
	return Compute(channels, e.cfg.CatchAllLabel, e.tag)
}

// Stored returns the persisted genre list for scope, or nil
func (e *Extractor) Stored(ctx context.Context, scope string) []string {
	var list []string
	if !e.store.GetJSON(ctx, ListKey(scope), &list) {
		return nil
	}
	return list
}

// LastUpdated returns the persisted display timestamp for scope
func (e *Extractor) LastUpdated(ctx context.Context, scope string) string {
	var s string
	e.store.GetJSON(ctx, UpdatedKey(scope), &s)
	return s
}

// ExtractIfChanged recomputes the genre list for channels and persists it
// under scope when the group content moved, when forced, or when the
// stored list disagrees with the fresh one. An empty list never replaces a
// non-empty stored list.
func (e *Extractor) ExtractIfChanged(ctx context.Context, channels []models.Channel, scope string, opts Options) Result {
	log := e.logger.WithFields(map[string]interface{}{
		"scope":         scope,
		"channels":      len(channels),
		"force_refresh": opts.ForceRefresh,
	})

	hash := fingerprint.OfString(Composite(channels))
	counts := e.Compute(channels)
	fresh := Names(counts)

	res := Result{
		Scope:        scope,
		Hash:         hash,
		Genres:       fresh,
		Counts:       counts,
		ForceRefresh: opts.ForceRefresh,
	}

	var storedHash string
	e.store.GetJSON(ctx, HashKey(scope), &storedHash)
	stored := e.Stored(ctx, scope)
	res.HashChanged = storedHash != hash

	if len(fresh) == 0 && len(stored) > 0 {
		log.WithFields(map[string]interface{}{"stored": len(stored)}).Warn("derived genre list is empty, keeping stored list")
		res.Genres = stored
		res.Counts = nil
		res.SkippedEmpty = true
		res.LastUpdated = e.LastUpdated(ctx, scope)
		return res
	}

	if !res.HashChanged && !opts.ForceRefresh {
		if !equal(stored, fresh) {
			log.Info("stored genre list differs from derived list, rewriting")
			res.Persisted = e.store.SetJSON(ctx, ListKey(scope), fresh) == nil
		}
		res.LastUpdated = e.LastUpdated(ctx, scope)
		return res
	}

	if err := e.store.SetJSON(ctx, ListKey(scope), fresh); err != nil {
		res.LastUpdated = e.LastUpdated(ctx, scope)
		return res
	}
	res.Persisted = true

	if err := e.store.SetJSON(ctx, HashKey(scope), hash); err != nil {
		log.Error("genre hash not persisted", err)
	}

	if res.HashChanged {
		res.LastUpdated = e.now().UTC().Format(UpdatedLayout)
		_ = e.store.SetJSON(ctx, UpdatedKey(scope), res.LastUpdated)
	} else {
		res.LastUpdated = e.LastUpdated(ctx, scope)
	}

	log.WithFields(map[string]interface{}{
		"genres":       len(fresh),
		"hash":         fingerprint.Short(hash),
		"hash_changed": res.HashChanged,
	}).Info("genre list persisted")

	return res
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
