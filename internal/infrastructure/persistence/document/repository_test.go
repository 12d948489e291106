package document_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/memory"
	"github.com/armstrong-haulage/community-hub/pkg/circuitbreaker"
)

func seeded() *memory.Store {
	return memory.NewStoreWithRoot(map[string]any{
		"users": map[string]any{
			"alice": map[string]any{
				"profile":   map[string]any{"name": "Alice"},
				"following": map[string]any{"bob": map[string]any{"followedAt": "2026-01-01T00:00:00.000Z"}},
				"stats":     map[string]any{"following": int64(1), "views": int64(4)},
			},
			"bob": map[string]any{
				"profile":   map[string]any{"name": "Bob"},
				"followers": map[string]any{"alice": map[string]any{"followedAt": "2026-01-01T00:00:00.000Z"}},
			},
		},
	})
}

func TestGraphRepositoryReads(t *testing.T) {
	ctx := context.Background()
	repo := document.NewGraphRepository(seeded())

	ok, err := repo.UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UserExists(ctx, "zoe")
	require.NoError(t, err)
	assert.False(t, ok)

	stats, found, err := repo.GetUserStats(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, social.Stats{Following: 1, Views: 4}, stats)

	stats, found, err = repo.GetUserStats(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, social.Stats{}, stats)

	ok, err = repo.EdgeExists(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.EdgeExists(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	followers, err := repo.ListFollowers(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []social.Edge{{UserID: "alice", FollowedAt: "2026-01-01T00:00:00.000Z"}}, followers)

	following, err := repo.ListFollowing(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, following)
}

func TestGraphRepositoryWrapsStoreFailures(t *testing.T) {
	store := seeded()
	boom := errors.New("connection reset")
	store.SetFault(func(string, string) error { return boom })
	repo := document.NewGraphRepository(store)

	_, err := repo.UserExists(context.Background(), "alice")
	assert.True(t, shared.IsStore(err))
	assert.ErrorIs(t, err, boom)

	err = repo.WriteMultiPath(context.Background(), social.MultiPathUpdate{"users/alice/stats/views": 5})
	assert.True(t, shared.IsStore(err))
}

func TestBreakerStoreFailsFast(t *testing.T) {
	store := seeded()
	calls := 0
	store.SetFault(func(string, string) error {
		calls++
		return errors.New("down")
	})
	cb := circuitbreaker.StoreBreaker("store", 2, time.Minute, document.IsStoreFailure, nil)
	repo := document.NewGraphRepository(document.WithBreaker(store, cb))

	for i := 0; i < 3; i++ {
		_, err := repo.UserExists(context.Background(), "alice")
		assert.True(t, shared.IsStore(err))
	}
	assert.Equal(t, 2, calls)
	assert.True(t, cb.IsOpen())

	_, err := repo.UserExists(context.Background(), "alice")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestBreakerStoreIgnoresAbandonedCalls(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()

	tests := []struct {
		name  string
		ctx   context.Context
		fault error
	}{
		{"cancelled caller", cancelled, context.Canceled},
		{"cancel surfaced by a live caller", context.Background(), context.Canceled},
		{"caller deadline passed", expired, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seeded()
			store.SetFault(func(string, string) error { return tt.fault })
			cb := circuitbreaker.StoreBreaker("store", 2, time.Minute, document.IsStoreFailure, nil)
			repo := document.NewGraphRepository(document.WithBreaker(store, cb))

			for i := 0; i < 5; i++ {
				_, err := repo.UserExists(tt.ctx, "alice")
				assert.ErrorIs(t, err, tt.fault)
				assert.True(t, shared.IsStore(err))
			}
			assert.Equal(t, circuitbreaker.StateClosed, cb.State())

			store.SetFault(nil)
			ok, err := repo.UserExists(context.Background(), "alice")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestBreakerStoreCountsStoreTimeouts(t *testing.T) {
	store := seeded()
	store.SetFault(func(string, string) error { return context.DeadlineExceeded })
	cb := circuitbreaker.StoreBreaker("store", 2, time.Minute, document.IsStoreFailure, nil)
	repo := document.NewGraphRepository(document.WithBreaker(store, cb))

	for i := 0; i < 2; i++ {
		_, err := repo.UserExists(context.Background(), "alice")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.True(t, cb.IsOpen())
}
