package playlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glefebvre/livetv/internal/fingerprint"
	"github.com/glefebvre/livetv/internal/kv"
	"github.com/glefebvre/livetv/internal/kv/memkv"
	"github.com/glefebvre/livetv/internal/logger"
)

type fakeSource struct {
	mu    sync.Mutex
	body  string
	err   error
	calls int
}

func (s *fakeSource) Get(context.Context, string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

func (s *fakeSource) set(body string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body, s.err = body, err
}

// gatedSource blocks every fetch after the first until release is closed
type gatedSource struct {
	fakeSource
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSource) Get(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	first := s.calls == 0
	s.mu.Unlock()
	if !first {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.fakeSource.Get(ctx, url)
}

const twoChannels = `#EXTM3U
#EXTINF:-1 tvg-id="one" group-title="Sports",One
acestream://1
#EXTINF:-1 tvg-id="two" group-title="News",Two
acestream://2
`

const threeChannels = twoChannels + `#EXTINF:-1 tvg-id="three" group-title="Movies",Three
acestream://3
`

func newTestIndex(src Source, store *kv.Adapter, interval time.Duration) (*Index, *time.Time) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ix := NewIndex(IndexConfig{URL: "http://playlist.test/list.m3u", CheckInterval: interval}, src, store, logger.Discard(), nil)
	ix.now = func() time.Time { return now }
	return ix, &now
}

func newAdapter() *kv.Adapter {
	return kv.NewAdapter(memkv.New(), kv.WithLogger(logger.Discard()))
}

func TestCurrentIsEmptyBeforeLoad(t *testing.T) {
	ix, _ := newTestIndex(&fakeSource{body: twoChannels}, nil, 0)
	assert.Equal(t, 0, ix.Current().Len())
}

func TestLoadBuildsTable(t *testing.T) {
	ix, _ := newTestIndex(&fakeSource{body: twoChannels}, nil, 0)

	table := ix.Load(context.Background())

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, fingerprint.Of([]byte(twoChannels)), table.Fingerprint)
	assert.False(t, table.Changed, "first load has nothing to compare against")
	assert.Same(t, table, ix.Current())
}

func TestLoadIsIdempotent(t *testing.T) {
	ix, _ := newTestIndex(&fakeSource{body: twoChannels}, nil, 0)

	first := ix.Load(context.Background())
	second := ix.Load(context.Background())

	assert.Equal(t, first.Channels, second.Channels)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.False(t, second.Changed)
}

func TestColdFailureInstallsEmptyTable(t *testing.T) {
	ix, _ := newTestIndex(&fakeSource{err: errors.New("connection refused")}, nil, 0)

	table := ix.Load(context.Background())

	require.NotNil(t, table)
	assert.Equal(t, 0, table.Len())
}

func TestColdParseFailureInstallsEmptyTable(t *testing.T) {
	ix, _ := newTestIndex(&fakeSource{body: "<html>maintenance</html>"}, nil, 0)

	assert.Equal(t, 0, ix.Load(context.Background()).Len())
}

func TestWarmFailureKeepsPreviousTable(t *testing.T) {
	src := &fakeSource{body: twoChannels}
	ix, _ := newTestIndex(src, nil, 0)
	previous := ix.Load(context.Background())

	src.set("", errors.New("timeout"))
	table := ix.Load(context.Background())

	assert.Same(t, previous, table)
	assert.Equal(t, 2, ix.Current().Len())
}

func TestSyncIsThrottled(t *testing.T) {
	src := &fakeSource{body: twoChannels}
	ix, now := newTestIndex(src, nil, time.Minute)

	ix.Sync(context.Background())
	src.set(threeChannels, nil)

	*now = now.Add(30 * time.Second)
	assert.Equal(t, 2, ix.Sync(context.Background()).Len())
	assert.Equal(t, 1, src.calls)

	*now = now.Add(31 * time.Second)
	table := ix.Sync(context.Background())
	assert.Equal(t, 3, table.Len())
	assert.True(t, table.Changed)
	assert.Equal(t, 2, src.calls)
}

func TestSyncKeepsTableWhenFingerprintUnchanged(t *testing.T) {
	src := &fakeSource{body: twoChannels}
	ix, _ := newTestIndex(src, nil, 0)

	first := ix.Sync(context.Background())
	second := ix.Sync(context.Background())

	assert.Same(t, first, second)
	assert.Equal(t, 2, src.calls)
}

func TestChangedFromStoredFingerprint(t *testing.T) {
	store := newAdapter()
	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, FingerprintKey, fingerprint.Of([]byte(twoChannels))))

	ix, _ := newTestIndex(&fakeSource{body: threeChannels}, store, 0)
	table := ix.Load(ctx)

	assert.True(t, table.Changed)

	var stored string
	require.True(t, store.GetJSON(ctx, FingerprintKey, &stored))
	assert.Equal(t, table.Fingerprint, stored)
}

func TestUnchangedFromStoredFingerprint(t *testing.T) {
	store := newAdapter()
	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, FingerprintKey, fingerprint.Of([]byte(twoChannels))))

	ix, _ := newTestIndex(&fakeSource{body: twoChannels}, store, 0)

	assert.False(t, ix.Load(ctx).Changed)
}

func TestReloadForcesRebuild(t *testing.T) {
	src := &fakeSource{body: twoChannels}
	ix, _ := newTestIndex(src, nil, time.Hour)

	first := ix.Sync(context.Background())
	second := ix.Reload(context.Background())

	assert.NotSame(t, first, second)
	assert.Equal(t, first.Channels, second.Channels)
	assert.Equal(t, 2, src.calls)
}

func TestSyncServesWarmTableDuringRefresh(t *testing.T) {
	src := &gatedSource{
		fakeSource: fakeSource{body: twoChannels},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	ix, now := newTestIndex(src, nil, time.Minute)
	warm := ix.Sync(context.Background())
	src.set(threeChannels, nil)
	*now = now.Add(2 * time.Minute)

	refreshed := make(chan *Table)
	go func() { refreshed <- ix.Sync(context.Background()) }()
	<-src.entered

	done := make(chan *Table)
	go func() { done <- ix.Sync(context.Background()) }()
	select {
	case table := <-done:
		assert.Same(t, warm, table)
	case <-time.After(2 * time.Second):
		t.Fatal("Sync blocked behind an in-flight refresh")
	}

	close(src.release)
	table := <-refreshed
	assert.Equal(t, 3, table.Len())
	assert.Same(t, table, ix.Current())
	assert.Equal(t, 2, src.calls)
}

func TestConcurrentColdSyncLoadsOnce(t *testing.T) {
	src := &fakeSource{body: twoChannels}
	ix, _ := newTestIndex(src, nil, time.Minute)

	var wg sync.WaitGroup
	tables := make([]*Table, 8)
	for i := range tables {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i] = ix.Sync(context.Background())
		}(i)
	}
	wg.Wait()

	for _, table := range tables {
		assert.Same(t, tables[0], table)
	}
	assert.Equal(t, 1, src.calls)
}
