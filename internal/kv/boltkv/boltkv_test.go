package boltkv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "kv.bolt"), "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "genres:default:hash", []byte("abc")))
	v, ok, err := s.Get(ctx, "genres:default:hash")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", string(v))

	require.NoError(t, s.Delete(ctx, "genres:default:hash"))
	_, ok, err = s.Get(ctx, "genres:default:hash")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListKeysAndDeleteBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, k := range []string{"catalog:1", "catalog:2", "meta:1", "scrape:x"} {
		require.NoError(t, s.Set(ctx, k, []byte("{}")))
	}

	keys, err := s.ListKeys(ctx, "catalog:")
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog:1", "catalog:2"}, keys)

	require.NoError(t, s.DeleteBatch(ctx, keys))
	all, err := s.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"meta:1", "scrape:x"}, all)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.bolt")

	s, err := Open(path, "kv")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = Open(path, "kv")
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))
}
