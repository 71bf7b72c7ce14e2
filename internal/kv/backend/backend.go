// Package backend opens the key/value backend named in the configuration.
package backend

import (
	"fmt"

	"github.com/glefebvre/livetv/internal/config"
	"github.com/glefebvre/livetv/internal/database"
	"github.com/glefebvre/livetv/internal/kv"
	"github.com/glefebvre/livetv/internal/kv/boltkv"
	"github.com/glefebvre/livetv/internal/kv/cfkv"
	"github.com/glefebvre/livetv/internal/kv/memkv"
	"github.com/glefebvre/livetv/internal/kv/rediskv"
	"github.com/glefebvre/livetv/internal/kv/sqlkv"
)

var (
	_ kv.Store        = (*memkv.Store)(nil)
	_ kv.Store        = (*cfkv.Client)(nil)
	_ kv.BatchDeleter = (*cfkv.Client)(nil)
	_ kv.Store        = (*rediskv.Store)(nil)
	_ kv.BatchDeleter = (*rediskv.Store)(nil)
	_ kv.Pinger       = (*rediskv.Store)(nil)
	_ kv.Store        = (*sqlkv.Store)(nil)
	_ kv.BatchDeleter = (*sqlkv.Store)(nil)
	_ kv.Pinger       = (*sqlkv.Store)(nil)
	_ kv.Store        = (*boltkv.Store)(nil)
	_ kv.BatchDeleter = (*boltkv.Store)(nil)
)

// Open returns the configured store and a function releasing its resources
func Open(cfg config.KVConfig, storeLogLevel string) (kv.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "memory", "":
		return memkv.New(), noop, nil

	case "cloudflare":
		cf := cfg.Cloudflare
		return cfkv.New(cfkv.Config{
			BaseURL:         cf.BaseURL,
			AccountID:       cf.AccountID,
			NamespaceID:     cf.NamespaceID,
			APIToken:        cf.APIToken,
			Timeout:         config.Seconds(cfg.TimeoutSeconds, kv.DefaultTimeout),
			WritesPerSecond: cf.WritesPerSecond,
			PageLimit:       cf.ListPageLimit,
			MaxBatch:        cf.MaxDeleteBatch,
		}), noop, nil

	case "redis":
		s, err := rediskv.New(cfg.Redis.URL, cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "sql":
		db, err := database.Open(cfg.SQL, storeLogLevel)
		if err != nil {
			return nil, nil, err
		}
		return sqlkv.New(db), func() error { return database.Close(db) }, nil

	case "bolt":
		s, err := boltkv.Open(cfg.Bolt.Path, cfg.Bolt.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown kv backend %q", cfg.Backend)
	}
}
