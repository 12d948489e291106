package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cb := New("store",
		WithFailureThreshold(2),
		WithSuccessThreshold(1),
		WithTimeout(10*time.Second),
		WithClock(func() time.Time { return now }),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	ctx := context.Background()
	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }

	assert.ErrorIs(t, cb.Execute(ctx, fail), boom)
	assert.ErrorIs(t, cb.Execute(ctx, fail), boom)
	assert.True(t, cb.IsOpen())
	assert.ErrorIs(t, cb.HealthError(), ErrCircuitOpen)
	assert.Contains(t, cb.HealthError().Error(), "store, 2 failures so far")
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
	assert.False(t, cb.Allow())

	now = now.Add(11 * time.Second)
	assert.True(t, cb.Allow())
	assert.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.HealthError())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	notFound := errors.New("not found")
	cb := StoreBreaker("store", 1, time.Second, func(err error) bool { return !errors.Is(err, notFound) }, nil)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return notFound }), notFound)
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 3, cb.Counts().TotalSuccesses)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("broker", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(func() time.Time { return now }))
	boom := errors.New("boom")

	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	now = now.Add(2 * time.Second)
	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	assert.True(t, cb.IsOpen())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}
