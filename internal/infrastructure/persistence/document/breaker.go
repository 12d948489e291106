package document

import (
	"context"
	"errors"

	"github.com/armstrong-haulage/community-hub/pkg/circuitbreaker"
	"github.com/armstrong-haulage/community-hub/pkg/pathtree"
)

// BreakerStore fails fast while the wrapped store keeps failing.
// Path validation errors and calls whose caller went away never count
// against the circuit.
type BreakerStore struct {
	inner   Store
	breaker *circuitbreaker.CircuitBreaker
}

// WithBreaker wraps store with cb.
func WithBreaker(store Store, cb *circuitbreaker.CircuitBreaker) *BreakerStore {
	return &BreakerStore{inner: store, breaker: cb}
}

// callerGoneError marks a failure that happened after the caller's context
// was cancelled or hit its deadline.
type callerGoneError struct{ err error }

func (e *callerGoneError) Error() string { return e.err.Error() }
func (e *callerGoneError) Unwrap() error { return e.err }

// IsStoreFailure classifies errors for the breaker: malformed paths are
// caller bugs, and cancellations say nothing about the store.
func IsStoreFailure(err error) bool {
	var gone *callerGoneError
	switch {
	case errors.As(err, &gone):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, pathtree.ErrInvalidPath), errors.Is(err, pathtree.ErrOverlappingPaths):
		return false
	}
	return true
}

func (s *BreakerStore) run(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			return &callerGoneError{err: err}
		}
		return err
	})
	var gone *callerGoneError
	if errors.As(err, &gone) {
		return gone.err
	}
	return err
}

// Get implements Store.
func (s *BreakerStore) Get(ctx context.Context, path string) (any, error) {
	var out any
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.Get(ctx, path)
		return err
	})
	return out, err
}

// Exists implements Store.
func (s *BreakerStore) Exists(ctx context.Context, path string) (bool, error) {
	var out bool
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.Exists(ctx, path)
		return err
	})
	return out, err
}

// Keys implements Store.
func (s *BreakerStore) Keys(ctx context.Context, path string) ([]string, error) {
	var out []string
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.Keys(ctx, path)
		return err
	})
	return out, err
}

// Update implements Store.
func (s *BreakerStore) Update(ctx context.Context, values map[string]any) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.inner.Update(ctx, values)
	})
}

// Ping implements Pinger when the wrapped store does.
func (s *BreakerStore) Ping(ctx context.Context) error {
	p, ok := s.inner.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
