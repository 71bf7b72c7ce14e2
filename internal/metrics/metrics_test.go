package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCounts(t *testing.T) {
	r := New()

	r.Lookup("catalog", TierMemory, ResultMiss)
	r.Lookup("catalog", TierKV, ResultHit)
	r.Lookup("catalog", TierKV, ResultHit)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.CacheLookups.WithLabelValues("catalog", TierKV, ResultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheLookups.WithLabelValues("catalog", TierMemory, ResultMiss)))
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.Lookup("meta", TierMemory, ResultHit)
		r.KVOp("get", ResultOK, 0.01)
		r.ScrapePage("matched", 3)
		r.PlaylistLoad("changed", 10)
		r.Cleanup(1, 2, 3)
	})
}

func TestPlaylistLoadKeepsGaugeOnFailure(t *testing.T) {
	r := New()
	r.PlaylistLoad("changed", 12)
	r.PlaylistLoad("failed", 0)

	assert.Equal(t, 12.0, testutil.ToFloat64(r.PlaylistChannels))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.Cleanup(5, 1, 0)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `livetv_cleanup_deleted_total{path="bulk"} 5`), body)
}
