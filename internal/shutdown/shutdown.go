// Package shutdown runs the serve command's teardown hooks on SIGINT/SIGTERM.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/glefebvre/livetv/internal/logger"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler manages graceful shutdown of the application
type Handler struct {
	mu             sync.Mutex
	hooks          []hook
	timeout        time.Duration
	signalChan     chan os.Signal
	shutdownChan   chan struct{}
	isShuttingDown bool
	err            error
	logger         *logger.Logger
}

// New creates a new shutdown handler
func New(timeout time.Duration, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.AppLogger()
	}
	return &Handler{
		hooks:        make([]hook, 0),
		timeout:      timeout,
		signalChan:   make(chan os.Signal, 1),
		shutdownChan: make(chan struct{}),
		logger:       log,
	}
}

// Register adds a named shutdown function. Functions run one at a time in
// reverse order of registration, so register the HTTP server after the
// stores it reads from.
func (h *Handler) Register(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Wait blocks until a shutdown signal is received, then shuts down
func (h *Handler) Wait() error {
	signal.Notify(h.signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(h.signalChan)

	select {
	case sig := <-h.signalChan:
		h.logger.WithFields(map[string]interface{}{"signal": sig.String()}).Info("shutdown signal received")
	case <-h.shutdownChan:
	}
	return h.Shutdown()
}

// Shutdown executes all registered shutdown functions within the timeout.
// Later calls return the first call's result without running anything.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if h.isShuttingDown {
		err := h.err
		h.mu.Unlock()
		return err
	}
	h.isShuttingDown = true
	hooks := append([]hook(nil), h.hooks...)
	close(h.shutdownChan)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		hk := hooks[i]
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: skipped: %w", hk.name, err))
			continue
		}

		start := time.Now()
		log := h.logger.WithFields(map[string]interface{}{"hook": hk.name})
		if err := hk.fn(ctx); err != nil {
			log.Error("shutdown hook failed", err)
			errs = append(errs, fmt.Errorf("%s: %w", hk.name, err))
			continue
		}
		log.WithFields(map[string]interface{}{"duration_ms": time.Since(start).Milliseconds()}).Debug("shutdown hook done")
	}

	err := errors.Join(errs...)
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	return err
}

// IsShuttingDown returns true if shutdown has been initiated
func (h *Handler) IsShuttingDown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isShuttingDown
}

// ShutdownChan returns a channel that is closed when shutdown is initiated
func (h *Handler) ShutdownChan() <-chan struct{} {
	return h.shutdownChan
}

// TriggerShutdown programmatically triggers a shutdown
func (h *Handler) TriggerShutdown() {
	select {
	case h.signalChan <- syscall.SIGTERM:
	default:
	}
}
