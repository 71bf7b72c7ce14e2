package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errStore = errors.New("kv unreachable")

func newTestBreaker(clock *time.Time) *CircuitBreaker {
	cb := New(Config{MaxFailures: 3, Cooldown: time.Minute, MaxHalfOpenRequests: 1})
	cb.now = func() time.Time { return *clock }
	return cb
}

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errStore })
	}
}

func TestClosedPassesCalls(t *testing.T) {
	now := time.Now()
	cb := newTestBreaker(&now)

	called := false
	err := cb.Execute(func() error { called = true; return nil })

	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, StateClosed, cb.State())
}

func TestOpensAfterMaxFailures(t *testing.T) {
	now := time.Now()
	cb := newTestBreaker(&now)

	failN(cb, 3)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpenState)
	assert.False(t, called, "open breaker must not reach the store")
}

func TestSuccessResetsFailureCount(t *testing.T) {
	now := time.Now()
	cb := newTestBreaker(&now)

	failN(cb, 2)
	_ = cb.Execute(func() error { return nil })
	failN(cb, 2)

	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	now := time.Now()
	cb := newTestBreaker(&now)
	failN(cb, 3)

	now = now.Add(2 * time.Minute)
	err := cb.Execute(func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	now := time.Now()
	cb := newTestBreaker(&now)
	failN(cb, 3)

	now = now.Add(2 * time.Minute)
	err := cb.Execute(func() error { return errStore })

	assert.ErrorIs(t, err, errStore)
	assert.Equal(t, StateOpen, cb.State())
}

func TestOnStateChange(t *testing.T) {
	var transitions []string
	cb := New(Config{
		MaxFailures: 1,
		Cooldown:    time.Hour,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(func() error { return errStore })
	cb.Reset()

	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}
