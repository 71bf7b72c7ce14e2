package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glefebvre/livetv/internal/epg"
	"github.com/glefebvre/livetv/internal/fingerprint"
	"github.com/glefebvre/livetv/internal/genre"
	"github.com/glefebvre/livetv/internal/kv"
	"github.com/glefebvre/livetv/internal/kv/memkv"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/metrics"
	"github.com/glefebvre/livetv/internal/models"
	"github.com/glefebvre/livetv/internal/playlist"
)

const twoChannels = `#EXTM3U
#EXTINF:-1 tvg-id="dazn1" tvg-logo="http://logo/dazn1.png" group-title="Sports",DAZN 1
acestream://aaa
#EXTINF:-1 tvg-id="bbcnews" group-title="News",BBC News
http://cdn.example/bbc/index.m3u8
`

const fourChannels = `#EXTM3U
#EXTINF:-1 tvg-id="dazn1" group-title="Sports",DAZN 1
acestream://aaa
#EXTINF:-1 tvg-id="dazn2" group-title="Sports",DAZN 2
acestream://bbb
#EXTINF:-1 tvg-id="bbcnews" group-title="News",BBC News
http://cdn.example/bbc/index.m3u8
#EXTINF:-1,Mystery Channel
acestream://ccc
`

type playlistSource struct {
	mu   sync.Mutex
	body string
}

func (p *playlistSource) Get(context.Context, string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return []byte(p.body), nil
}

func (p *playlistSource) set(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = body
}

type enrichCall struct {
	name  string
	force bool
}

type stubEnricher struct {
	mu    sync.Mutex
	cands []models.Candidate
	calls []enrichCall
}

func (e *stubEnricher) Enrich(_ context.Context, name string, _ []string, force bool) []models.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, enrichCall{name: name, force: force})
	return e.cands
}

type stubGuide struct{ guide *epg.Guide }

func (g stubGuide) Guide(context.Context) *epg.Guide { return g.guide }

type downStore struct{}

var errDown = errors.New("store down")

func (downStore) Get(context.Context, string) ([]byte, bool, error)  { return nil, false, errDown }
func (downStore) Set(context.Context, string, []byte) error          { return errDown }
func (downStore) Delete(context.Context, string) error               { return errDown }
func (downStore) ListKeys(context.Context, string) ([]string, error) { return nil, errDown }

type harness struct {
	svc      *Service
	src      *playlistSource
	store    *kv.Adapter
	genres   *genre.Extractor
	enricher *stubEnricher
	metrics  *metrics.Registry
	now      *time.Time
}

type harnessOpts struct {
	body          string
	store         kv.Store
	guide         *epg.Guide
	cfg           Config
	checkInterval time.Duration
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	if o.store == nil {
		o.store = memkv.New()
	}
	store := kv.NewAdapter(o.store, kv.WithLogger(logger.Discard()), kv.WithClock(clock))
	src := &playlistSource{body: o.body}
	reg := metrics.New()
	index := playlist.NewIndex(playlist.IndexConfig{URL: "http://playlist.test/list.m3u", CheckInterval: o.checkInterval}, src, store, logger.Discard(), reg)
	genres := genre.NewExtractor(store, genre.Config{Locale: "en"}, logger.Discard())
	enricher := &stubEnricher{}

	deps := Deps{
		Index:    index,
		Store:    store,
		Genres:   genres,
		Enricher: enricher,
		Logger:   logger.Discard(),
		Metrics:  reg,
	}
	if o.guide != nil {
		deps.Guide = stubGuide{guide: o.guide}
	}
	if o.cfg.ScrapePages == nil {
		o.cfg.ScrapePages = []string{"http://scrape.test/page"}
	}

	svc := New(o.cfg, deps).WithClock(clock)
	return &harness{svc: svc, src: src, store: store, genres: genres, enricher: enricher, metrics: reg, now: &now}
}

func (h *harness) lookups(resolver, tier, result string) float64 {
	return testutil.ToFloat64(h.metrics.CacheLookups.WithLabelValues(resolver, tier, result))
}

func ids(metas []MetaPreview) []string {
	out := make([]string, len(metas))
	for i, m := range metas {
		out[i] = m.ID
	}
	return out
}

func TestCatalogColdReturnsEveryChannel(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})

	resp := h.svc.Catalog(context.Background(), "tv", CatalogID, Extra{})

	require.Len(t, resp.Metas, 2)
	for _, m := range resp.Metas {
		assert.NotEmpty(t, m.ID)
		assert.NotEmpty(t, m.Name)
		assert.Equal(t, "tv", m.Type)
	}
	assert.Equal(t, "http://logo/dazn1.png", resp.Metas[0].Poster)
}

func TestCatalogGenreFilter(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})

	resp := h.svc.Catalog(context.Background(), "tv", CatalogID, Extra{Genre: "Sports"})

	require.Len(t, resp.Metas, 1)
	assert.Equal(t, "livetv:dazn1", resp.Metas[0].ID)
	assert.Contains(t, resp.Metas[0].Genres, "Sports")
}

func TestCatalogCatchAllGenre(t *testing.T) {
	h := newHarness(t, harnessOpts{body: fourChannels})

	resp := h.svc.Catalog(context.Background(), "tv", CatalogID, Extra{Genre: "Other"})

	assert.Equal(t, []string{"livetv:mysterychannel"}, ids(resp.Metas))
}

func TestCatalogSearch(t *testing.T) {
	h := newHarness(t, harnessOpts{body: fourChannels})

	resp := h.svc.Catalog(context.Background(), "tv", CatalogID, Extra{Search: "dazn"})

	assert.Equal(t, []string{"livetv:dazn1", "livetv:dazn2"}, ids(resp.Metas))

	resp = h.svc.Catalog(context.Background(), "tv", CatalogID, Extra{Search: "zzz"})
	assert.Empty(t, resp.Metas)
	assert.NotNil(t, resp.Metas)
}

func TestCatalogSkipPaging(t *testing.T) {
	h := newHarness(t, harnessOpts{body: fourChannels, cfg: Config{PageSize: 2}})
	ctx := context.Background()

	first := h.svc.Catalog(ctx, "tv", CatalogID, Extra{})
	second := h.svc.Catalog(ctx, "tv", CatalogID, Extra{Skip: 2})
	third := h.svc.Catalog(ctx, "tv", CatalogID, Extra{Skip: 4})

	assert.Equal(t, []string{"livetv:dazn1", "livetv:dazn2"}, ids(first.Metas))
	assert.Equal(t, []string{"livetv:bbcnews", "livetv:mysterychannel"}, ids(second.Metas))
	assert.Empty(t, third.Metas)
}

func TestCatalogUnknownTypeOrID(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})
	ctx := context.Background()

	assert.Empty(t, h.svc.Catalog(ctx, "movie", CatalogID, Extra{}).Metas)
	assert.Empty(t, h.svc.Catalog(ctx, "tv", "other", Extra{}).Metas)
}

func TestCatalogEmptyPlaylist(t *testing.T) {
	h := newHarness(t, harnessOpts{body: "not a playlist"})

	resp := h.svc.Catalog(context.Background(), "tv", CatalogID, Extra{})

	assert.NotNil(t, resp.Metas)
	assert.Empty(t, resp.Metas)
}

func TestCatalogTwoTierCache(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})
	ctx := context.Background()

	h.svc.Catalog(ctx, "tv", CatalogID, Extra{})
	assert.Equal(t, 1.0, h.lookups("catalog", "memory", "miss"))
	assert.Equal(t, 1.0, h.lookups("catalog", "kv", "miss"))

	h.svc.Catalog(ctx, "tv", CatalogID, Extra{})
	assert.Equal(t, 1.0, h.lookups("catalog", "memory", "hit"))

	*h.now = h.now.Add(10 * time.Minute)
	resp := h.svc.Catalog(ctx, "tv", CatalogID, Extra{})
	assert.Equal(t, 1.0, h.lookups("catalog", "kv", "hit"))
	assert.Len(t, resp.Metas, 2)

	h.svc.Catalog(ctx, "tv", CatalogID, Extra{})
	assert.Equal(t, 2.0, h.lookups("catalog", "memory", "hit"), "kv hit backfills memory")
}

func TestCatalogKeysFollowPlaylistFingerprint(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})
	ctx := context.Background()

	assert.Len(t, h.svc.Catalog(ctx, "tv", CatalogID, Extra{}).Metas, 2)

	h.src.set(fourChannels)
	assert.Len(t, h.svc.Catalog(ctx, "tv", CatalogID, Extra{}).Metas, 4)

	keys, err := h.store.ListKeys(ctx, "catalog:")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys[0]+keys[1], fingerprint.Short(fingerprint.Of([]byte(fourChannels))))
}

func TestCatalogSurvivesStoreOutage(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels, store: downStore{}})
	ctx := context.Background()

	assert.Len(t, h.svc.Catalog(ctx, "tv", CatalogID, Extra{}).Metas, 2)
	assert.Len(t, h.svc.Catalog(ctx, "tv", CatalogID, Extra{Genre: "News"}).Metas, 1)
	assert.NotNil(t, h.svc.Meta(ctx, "tv", "livetv:dazn1").Meta)
	assert.Len(t, h.svc.Stream(ctx, "tv", "livetv:dazn1").Streams, 1)
}

func TestGenresExtractedOnFirstLoad(t *testing.T) {
	h := newHarness(t, harnessOpts{body: fourChannels})
	ctx := context.Background()

	h.svc.Catalog(ctx, "tv", CatalogID, Extra{})

	assert.Equal(t, []string{"Sports", "News", "Other"}, h.genres.Stored(ctx, "default"))
}

func TestRefreshGenresEchoesForce(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})

	res := h.svc.RefreshGenres(context.Background(), true)

	assert.True(t, res.ForceRefresh)
	assert.True(t, res.Persisted)
	assert.Equal(t, []string{"News", "Sports"}, res.Genres)
}

func TestRefreshGenresForceReloadsThrottledPlaylist(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels, checkInterval: time.Hour})
	ctx := context.Background()
	h.svc.RefreshGenres(ctx, false)

	h.src.set(fourChannels)
	res := h.svc.RefreshGenres(ctx, false)
	assert.Equal(t, []string{"News", "Sports"}, res.Genres)

	res = h.svc.RefreshGenres(ctx, true)
	assert.Equal(t, []string{"Sports", "News", "Other"}, res.Genres)
	assert.Len(t, h.svc.Catalog(ctx, "tv", CatalogID, Extra{}).Metas, 4)
}

func TestPurgeExpiredReleasesSearchEntries(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})
	ctx := context.Background()

	for i := 0; i < 300; i++ {
		h.svc.Catalog(ctx, "tv", CatalogID, Extra{Search: fmt.Sprintf("q%d", i)})
	}
	require.GreaterOrEqual(t, h.svc.catalogs.Len(), 300)

	*h.now = h.now.Add(24 * time.Hour)
	assert.GreaterOrEqual(t, h.svc.PurgeExpired(), 300)
	assert.Zero(t, h.svc.catalogs.Len())
}

func TestPurgeEveryStopsWithContext(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})
	h.svc.Catalog(context.Background(), "tv", CatalogID, Extra{Search: "dazn"})
	*h.now = h.now.Add(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.PurgeEvery(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return h.svc.catalogs.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PurgeEvery did not return after cancel")
	}
}

func TestManifestListsStoredGenres(t *testing.T) {
	h := newHarness(t, harnessOpts{body: fourChannels})

	m := h.svc.Manifest(context.Background())

	require.Len(t, m.Catalogs, 1)
	assert.Equal(t, []string{playlist.IDPrefix}, m.IDPrefixes)
	var genreExtra ManifestExtra
	for _, e := range m.Catalogs[0].Extra {
		if e.Name == "genre" {
			genreExtra = e
		}
	}
	assert.Equal(t, []string{"Sports", "News", "Other"}, genreExtra.Options)
}

func guideWith(t *testing.T, channel string, start, stop time.Time, title string) *epg.Guide {
	t.Helper()
	const layout = "20060102150405 -0700"
	doc := fmt.Sprintf(`<tv><programme start="%s" stop="%s" channel="%s"><title>%s</title></programme></tv>`,
		start.Format(layout), stop.Format(layout), channel, title)
	g, err := epg.Parse([]byte(doc))
	require.NoError(t, err)
	return g
}

func TestMetaUnknownIsNull(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})

	assert.Nil(t, h.svc.Meta(context.Background(), "tv", "livetv:nope").Meta)
	assert.Nil(t, h.svc.Meta(context.Background(), "movie", "livetv:dazn1").Meta)
}

func TestMetaDescribesNowPlaying(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := guideWith(t, "dazn1", now.Add(-20*time.Minute), now.Add(40*time.Minute), "El Clasico")
	h := newHarness(t, harnessOpts{body: twoChannels, guide: g})

	meta := h.svc.Meta(context.Background(), "tv", "livetv:dazn1").Meta

	require.NotNil(t, meta)
	assert.Equal(t, "DAZN 1", meta.Name)
	assert.Contains(t, meta.Description, "Now: El Clasico")
	assert.Equal(t, "11:40-12:40", meta.ReleaseInfo)
}

func TestMetaMemoryTTLFollowsProgrammeEnd(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := guideWith(t, "dazn1", now.Add(-20*time.Minute), now.Add(40*time.Minute), "El Clasico")
	h := newHarness(t, harnessOpts{body: twoChannels, guide: g})
	ctx := context.Background()

	h.svc.Meta(ctx, "tv", "livetv:dazn1")

	*h.now = now.Add(39 * time.Minute)
	h.svc.Meta(ctx, "tv", "livetv:dazn1")
	assert.Equal(t, 1.0, h.lookups("meta", "memory", "hit"), "past the 5 minute default, still airing")

	*h.now = now.Add(41 * time.Minute)
	meta := h.svc.Meta(ctx, "tv", "livetv:dazn1").Meta
	assert.Equal(t, 1.0, h.lookups("meta", "memory", "hit"))
	assert.Equal(t, 2.0, h.lookups("meta", "kv", "miss"), "kv entry expires with the programme too")
	assert.NotContains(t, meta.Description, "El Clasico")
}

func TestMetaMemoryTTLFloor(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := guideWith(t, "dazn1", now.Add(-59*time.Minute), now.Add(time.Minute), "Closing")
	h := newHarness(t, harnessOpts{body: twoChannels, guide: g, cfg: Config{MetaFloor: 5 * time.Minute}})
	ctx := context.Background()

	h.svc.Meta(ctx, "tv", "livetv:dazn1")
	*h.now = now.Add(4 * time.Minute)
	h.svc.Meta(ctx, "tv", "livetv:dazn1")

	assert.Equal(t, 1.0, h.lookups("meta", "memory", "hit"))
}

func TestStreamMergesScrapedCandidates(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})
	h.enricher.cands = []models.Candidate{
		{DisplayName: "DAZN 1", Title: "dup", ExternalURL: "acestream://aaa"},
		{DisplayName: "DAZN 1", Title: "DAZN 1 alt", ExternalURL: "acestream://zzz"},
	}

	resp := h.svc.Stream(context.Background(), "tv", "livetv:dazn1")

	assert.Equal(t, "DAZN 1", resp.DisplayName)
	require.Len(t, resp.Streams, 2)
	assert.Equal(t, "acestream://zzz", resp.Streams[0].Key())
	assert.Equal(t, "Scraped Acestream", resp.Streams[0].Name)
	assert.Equal(t, "acestream://aaa", resp.Streams[1].Key())
}

func TestStreamUnknownIsEmpty(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})

	resp := h.svc.Stream(context.Background(), "tv", "livetv:nope")

	assert.NotNil(t, resp.Streams)
	assert.Empty(t, resp.Streams)
	assert.Empty(t, h.enricher.calls)
}

func TestStreamMemoizesMergedResult(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})
	ctx := context.Background()

	h.svc.Stream(ctx, "tv", "livetv:bbcnews")
	resp := h.svc.Stream(ctx, "tv", "livetv:bbcnews")

	assert.Len(t, h.enricher.calls, 1)
	require.Len(t, resp.Streams, 1)
	assert.Equal(t, "HLS", resp.Streams[0].Name)
	assert.Equal(t, "http://cdn.example/bbc/index.m3u8", resp.Streams[0].URL)
}

func TestStreamForcesScrapeOncePerPlaylistChange(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})
	ctx := context.Background()
	require.NoError(t, h.store.SetJSON(ctx, playlist.FingerprintKey, "an-older-fingerprint"))

	h.svc.Stream(ctx, "tv", "livetv:dazn1")
	*h.now = h.now.Add(10 * time.Minute)
	h.svc.Stream(ctx, "tv", "livetv:dazn1")

	require.Len(t, h.enricher.calls, 2)
	assert.True(t, h.enricher.calls[0].force)
	assert.False(t, h.enricher.calls[1].force)
}

func TestStreamWithoutScrapePages(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels, cfg: Config{ScrapePages: []string{}}})

	resp := h.svc.Stream(context.Background(), "tv", "livetv:dazn1")

	assert.Len(t, resp.Streams, 1)
	assert.Empty(t, h.enricher.calls)
}

func TestEnrichDropsMemoizedStreams(t *testing.T) {
	h := newHarness(t, harnessOpts{body: twoChannels})
	ctx := context.Background()

	assert.Len(t, h.svc.Stream(ctx, "tv", "livetv:dazn1").Streams, 1)

	h.enricher.cands = []models.Candidate{{DisplayName: "DAZN 1", ExternalURL: "acestream://new"}}
	cands := h.svc.Enrich(ctx, "DAZN 1", true)
	assert.Len(t, cands, 1)

	assert.Len(t, h.svc.Stream(ctx, "tv", "livetv:dazn1").Streams, 2)
}

func TestMergeCandidates(t *testing.T) {
	x := Stream{Name: "Acestream", ExternalURL: "acestream://x"}
	y := Stream{Name: "Scraped", ExternalURL: "acestream://y"}
	z := Stream{Name: "HLS", URL: "http://cdn/z.m3u8"}

	merged := MergeCandidates([]Stream{x, z}, []Stream{x, y, y})

	assert.Equal(t, []Stream{y, x, z}, merged)
	assert.Equal(t, []Stream{x}, MergeCandidates([]Stream{x}, nil))
	assert.Equal(t, []Stream{y}, MergeCandidates(nil, []Stream{y, {Name: "no url"}}))
}

func TestParseExtra(t *testing.T) {
	assert.Equal(t, Extra{Genre: "Sports", Skip: 100}, ParseExtra("genre=Sports&skip=100"))
	assert.Equal(t, Extra{Search: "dazn 1"}, ParseExtra("search=dazn%201.json"))
	assert.Equal(t, Extra{}, ParseExtra("skip=-3"))
	assert.Equal(t, Extra{}, ParseExtra("%zz"))
}
