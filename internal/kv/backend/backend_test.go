package backend

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glefebvre/livetv/internal/config"
	"github.com/glefebvre/livetv/internal/kv"
)

func TestOpenEachBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		name      string
		cfg       config.KVConfig
		wantBatch bool
	}{
		{"memory", config.KVConfig{Backend: "memory"}, false},
		{"cloudflare", config.KVConfig{Backend: "cloudflare", Cloudflare: config.CloudflareConfig{AccountID: "a", NamespaceID: "n", APIToken: "t"}}, true},
		{"redis", config.KVConfig{Backend: "redis", Redis: config.RedisConfig{URL: "redis://" + mr.Addr()}}, true},
		{"sql", config.KVConfig{Backend: "sql", SQL: config.SQLConfig{Driver: "sqlite", DSN: filepath.Join(dir, "kv.db")}}, true},
		{"bolt", config.KVConfig{Backend: "bolt", Bolt: config.BoltConfig{Path: filepath.Join(dir, "kv.bolt")}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, closeFn, err := Open(tt.cfg, "error")
			require.NoError(t, err)
			defer closeFn()

			_, ok := store.(kv.BatchDeleter)
			assert.Equal(t, tt.wantBatch, ok)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, _, err := Open(config.KVConfig{Backend: "etcd"}, "error")
	assert.ErrorContains(t, err, "unknown kv backend")
}
