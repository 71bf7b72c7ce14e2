package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glefebvre/livetv/internal/logger"
)

func TestShutdown_LIFOOrder(t *testing.T) {
	h := New(5*time.Second, logger.Discard())

	var order []string
	for _, name := range []string{"kv", "index", "http"} {
		h.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, h.Shutdown())
	assert.Equal(t, []string{"http", "index", "kv"}, order)
}

func TestShutdown_CollectsErrorsAndContinues(t *testing.T) {
	h := New(5*time.Second, logger.Discard())
	errClose := errors.New("close failed")

	ran := false
	h.Register("kv", func(ctx context.Context) error { ran = true; return nil })
	h.Register("http", func(ctx context.Context) error { return errClose })

	err := h.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, errClose)
	assert.Contains(t, err.Error(), "http")
	assert.True(t, ran, "a failing hook must not stop later hooks")
}

func TestShutdown_OnlyOnce(t *testing.T) {
	h := New(5*time.Second, logger.Discard())

	var counter int32
	h.Register("count", func(ctx context.Context) error {
		atomic.AddInt32(&counter, 1)
		return errors.New("first")
	})

	first := h.Shutdown()
	second := h.Shutdown()

	assert.Equal(t, int32(1), atomic.LoadInt32(&counter))
	assert.Equal(t, first, second)
}

func TestShutdown_TimeoutSkipsRemainingHooks(t *testing.T) {
	h := New(20*time.Millisecond, logger.Discard())

	skipped := true
	h.Register("kv", func(ctx context.Context) error { skipped = false; return nil })
	h.Register("http", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := h.Shutdown()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, skipped)
}

func TestIsShuttingDownAndChan(t *testing.T) {
	h := New(time.Second, logger.Discard())
	assert.False(t, h.IsShuttingDown())

	select {
	case <-h.ShutdownChan():
		t.Fatal("expected shutdown channel to be open")
	default:
	}

	_ = h.Shutdown()

	assert.True(t, h.IsShuttingDown())
	select {
	case <-h.ShutdownChan():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected shutdown channel to be closed")
	}
}

func TestTriggerShutdown(t *testing.T) {
	h := New(time.Second, logger.Discard())

	var called atomic.Bool
	h.Register("hook", func(ctx context.Context) error { called.Store(true); return nil })

	done := make(chan error)
	go func() { done <- h.Wait() }()

	time.Sleep(50 * time.Millisecond)
	h.TriggerShutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.True(t, called.Load())
	case <-time.After(time.Second):
		t.Fatal("expected Wait to return after TriggerShutdown")
	}
}
