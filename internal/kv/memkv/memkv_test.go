package memkv

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, s.Delete(ctx, "a"))
	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "k", []byte("abc")))

	v, _, _ := s.Get(ctx, "k")
	v[0] = 'z'

	again, _, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestListKeysPrefixAndPageLimit(t *testing.T) {
	ctx := context.Background()
	s := New().WithPageLimit(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("scrape:%d", i), []byte("[]")))
	}
	require.NoError(t, s.Set(ctx, "meta:x", []byte("{}")))

	keys, err := s.ListKeys(ctx, "scrape:")
	require.NoError(t, err)
	assert.Equal(t, []string{"scrape:0", "scrape:1", "scrape:2"}, keys)
	assert.Equal(t, 6, s.Len())
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := New().Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
