package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/glefebvre/livetv/internal/circuitbreaker"
	apperrors "github.com/glefebvre/livetv/internal/errors"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/metrics"
)

// DefaultTimeout bounds every store call
const DefaultTimeout = 5 * time.Second

// Adapter is the only way the rest of the addon talks to a Store
type Adapter struct {
	store   Store
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
	metrics *metrics.Registry
	timeout time.Duration
	now     func() time.Time
}

// Option configures an Adapter
type Option func(*Adapter)

// WithLogger overrides the store logger
func WithLogger(l *logger.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// WithMetrics records every store call
func WithMetrics(m *metrics.Registry) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithClock replaces time.Now, mostly for TTL tests
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// WithBreaker replaces the default circuit breaker
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(a *Adapter) { a.breaker = cb }
}

// NewAdapter wraps store with timeouts, a circuit breaker, logging and metrics
func NewAdapter(store Store, opts ...Option) *Adapter {
	a := &Adapter{
		store:   store,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.StoreLogger()
	}
	if a.breaker == nil {
		cfg := circuitbreaker.DefaultConfig()
		log := a.log
		cfg.OnStateChange = func(from, to circuitbreaker.State) {
			log.WithFields(map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("kv circuit breaker state changed")
		}
		a.breaker = circuitbreaker.New(cfg)
	}
	return a
}

// Now returns the adapter clock
func (a *Adapter) Now() time.Time {
	return a.now()
}

func (a *Adapter) call(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	err := a.breaker.Execute(func() error { return fn(ctx) })
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
	}
	a.metrics.KVOp(op, result, time.Since(start).Seconds())

	if err != nil {
		return apperrors.StoreUnavailable(op, key, err)
	}
	return nil
}

// Get returns the raw value for key. Any store failure is logged and
// reported as a miss.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool) {
	var (
		value []byte
		found bool
	)
	err := a.call(ctx, "get", key, func(ctx context.Context) error {
		var err error
		value, found, err = a.store.Get(ctx, key)
		return err
	})
	if err != nil {
		a.log.WithFields(map[string]interface{}{"key": key}).Error("kv get failed, treating as miss", err)
		return nil, false
	}
	return value, found
}

// Set writes a raw value. Failures are logged and returned as
// StoreUnavailable; callers may ignore them.
func (a *Adapter) Set(ctx context.Context, key string, value []byte) error {
	err := a.call(ctx, "set", key, func(ctx context.Context) error {
		return a.store.Set(ctx, key, value)
	})
	if err != nil {
		a.log.WithFields(map[string]interface{}{"key": key, "bytes": len(value)}).Error("kv set failed, write dropped", err)
	}
	return err
}

// Delete removes a key
func (a *Adapter) Delete(ctx context.Context, key string) error {
	err := a.call(ctx, "delete", key, func(ctx context.Context) error {
		return a.store.Delete(ctx, key)
	})
	if err != nil {
		a.log.WithFields(map[string]interface{}{"key": key}).Error("kv delete failed", err)
	}
	return err
}

// ListKeys returns up to one backend page of keys with the given prefix
func (a *Adapter) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := a.call(ctx, "list", prefix, func(ctx context.Context) error {
		var err error
		keys, err = a.store.ListKeys(ctx, prefix)
		return err
	})
	if err != nil {
		a.log.WithFields(map[string]interface{}{"prefix": prefix}).Error("kv list failed", err)
		return nil, err
	}
	return keys, nil
}

// GetJSON decodes the value under key into dst. A missing key, a store
// failure and a value that does not parse are all reported as false.
func (a *Adapter) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := a.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		a.log.WithFields(map[string]interface{}{"key": key}).Warn("kv value is not valid JSON, treating as miss")
		return false
	}
	return true
}

// SetJSON stores v as JSON without a TTL
func (a *Adapter) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "marshal kv value").WithContext("key", key)
	}
	return a.Set(ctx, key, data)
}

// ReadEnvelope returns the decoded envelope under key without checking
// expiry. Cleanup uses it to read the raw write time.
func (a *Adapter) ReadEnvelope(ctx context.Context, key string) (Envelope, Kind, bool) {
	raw, ok := a.Get(ctx, key)
	if !ok {
		return Envelope{}, KindBare, false
	}
	env, kind, err := DecodeEnvelope(raw)
	if err != nil {
		return Envelope{}, KindBare, false
	}
	return env, kind, true
}

// GetTTL decodes the payload under key into dst when the entry is a
// current envelope that has not expired. Legacy and bare values carry no
// TTL and read as a miss so the caller rewrites them.
func (a *Adapter) GetTTL(ctx context.Context, key string, dst any) bool {
	env, ok := a.validEnvelope(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		a.log.WithFields(map[string]interface{}{"key": key}).Warn("kv envelope payload does not decode, treating as miss")
		return false
	}
	return true
}

func (a *Adapter) validEnvelope(ctx context.Context, key string) (Envelope, bool) {
	env, kind, ok := a.ReadEnvelope(ctx, key)
	if !ok || kind != KindEnvelope || env.Expired(a.now()) {
		return Envelope{}, false
	}
	return env, true
}

// SetTTLIfChanged writes payload in a fresh envelope unless the current
// valid envelope already holds an equal payload. It reports whether a
// write happened.
func (a *Adapter) SetTTLIfChanged(ctx context.Context, key string, payload any, ttl time.Duration) (bool, error) {
	env, err := NewEnvelope(payload, ttl, a.now())
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeInternal, "marshal kv payload").WithContext("key", key)
	}

	if current, ok := a.validEnvelope(ctx, key); ok && samePayload(current.Payload, env.Payload) {
		a.metrics.KVOp("set", metrics.ResultSkip, 0)
		a.log.WithFields(map[string]interface{}{"key": key}).Debug("kv payload unchanged, write skipped")
		return false, nil
	}

	data, err := json.Marshal(env)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeInternal, "marshal kv envelope").WithContext("key", key)
	}
	if err := a.Set(ctx, key, data); err != nil {
		return false, err
	}
	return true, nil
}

// BatchLimit reports whether the backend supports native batch deletes and
// the largest chunk it accepts
func (a *Adapter) BatchLimit() (int, bool) {
	bd, ok := a.store.(BatchDeleter)
	if !ok {
		return 0, false
	}
	n := bd.MaxBatchSize()
	if n <= 0 {
		n = 1
	}
	return n, true
}

var errNoBatch = errors.New("backend has no batch delete")

// DeleteBatch deletes keys in one backend call. It fails when the backend
// has no batch capability; callers fall back to Delete per key.
func (a *Adapter) DeleteBatch(ctx context.Context, keys []string) error {
	bd, ok := a.store.(BatchDeleter)
	if !ok {
		return apperrors.StoreUnavailable("delete_batch", "", errNoBatch)
	}
	err := a.call(ctx, "delete_batch", "", func(ctx context.Context) error {
		return bd.DeleteBatch(ctx, keys)
	})
	if err != nil {
		a.log.WithFields(map[string]interface{}{"keys": len(keys)}).Error("kv batch delete failed", err)
	}
	return err
}

// Ping checks that the backend answers
func (a *Adapter) Ping(ctx context.Context) error {
	return a.call(ctx, "ping", "", func(ctx context.Context) error {
		if p, ok := a.store.(Pinger); ok {
			return p.Ping(ctx)
		}
		_, _, err := a.store.Get(ctx, "health:probe")
		return err
	})
}
