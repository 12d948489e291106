// Package documenttest holds the behavioural suite every document.Store
// implementation must pass.
package documenttest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document"
	"github.com/armstrong-haulage/community-hub/pkg/pathtree"
)

// RunStoreSuite runs the suite against stores created by newStore.
// Each subtest gets a fresh, empty store.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) document.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Get(context.Background(), "users/nobody/stats")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("UpdateAndGet", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Update(ctx, map[string]any{
			"users/alice/stats":                    map[string]any{"followers": 1, "following": 0, "views": 3},
			"users/alice/following/bob/followedAt": "2026-10-16T10:00:00.000Z",
		}))

		got, err := s.Get(ctx, "users/alice/stats")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"followers": int64(1), "following": int64(0), "views": int64(3)}, got)

		leaf, err := s.Get(ctx, "users/alice/following/bob/followedAt")
		require.NoError(t, err)
		assert.Equal(t, "2026-10-16T10:00:00.000Z", leaf)

		whole, err := s.Get(ctx, "/users/alice/")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"stats":     map[string]any{"followers": int64(1), "following": int64(0), "views": int64(3)},
			"following": map[string]any{"bob": map[string]any{"followedAt": "2026-10-16T10:00:00.000Z"}},
		}, whole)
	})

	t.Run("LeafWriteMerges", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Update(ctx, map[string]any{
			"users/alice/stats": map[string]any{"followers": 1, "views": 3},
		}))
		require.NoError(t, s.Update(ctx, map[string]any{"users/alice/stats/following": 2}))

		got, err := s.Get(ctx, "users/alice/stats")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"followers": int64(1), "following": int64(2), "views": int64(3)}, got)
	})

	t.Run("SubtreeWriteReplaces", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Update(ctx, map[string]any{
			"users/alice/stats": map[string]any{"followers": 1, "views": 3},
		}))
		require.NoError(t, s.Update(ctx, map[string]any{
			"users/alice/stats": map[string]any{"views": 9},
		}))

		got, err := s.Get(ctx, "users/alice/stats")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"views": int64(9)}, got)
	})

	t.Run("DeleteAndExists", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Update(ctx, map[string]any{
			"users/alice/following/bob/followedAt": "t1",
			"users/bob/followers/alice/followedAt": "t1",
			"users/alice/stats/views":              5,
		}))

		ok, err := s.Exists(ctx, "users/alice/following/bob")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.Update(ctx, map[string]any{
			"users/alice/following/bob": nil,
			"users/bob/followers/alice": nil,
		}))

		ok, err = s.Exists(ctx, "users/alice/following/bob")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.Exists(ctx, "users/alice/following")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.Exists(ctx, "users/alice")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Keys", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Update(ctx, map[string]any{
			"users/alice/following/bob/followedAt":   "t1",
			"users/alice/following/carol/followedAt": "t2",
			"users/alice/following-archive/x":        "t0",
			"users/alice/stats/views":                1,
		}))

		keys, err := s.Keys(ctx, "users/alice/following")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "carol"}, keys)

		keys, err = s.Keys(ctx, "users/alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"following", "following-archive", "stats"}, keys)

		keys, err = s.Keys(ctx, "users/nobody")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("PrefixIsolation", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Update(ctx, map[string]any{
			"users/bob/stats/views":   1,
			"users/bobby/stats/views": 2,
			"users/b_b/stats/views":   3,
			"users/bxb/stats/views":   4,
		}))

		require.NoError(t, s.Update(ctx, map[string]any{"users/bob": nil, "users/b_b": nil}))

		ok, err := s.Exists(ctx, "users/bobby")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.Exists(ctx, "users/bxb")
		require.NoError(t, err)
		assert.True(t, ok)

		keys, err := s.Keys(ctx, "users")
		require.NoError(t, err)
		assert.Equal(t, []string{"bobby", "bxb"}, keys)
	})

	t.Run("ReplacesAncestorLeaf", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Update(ctx, map[string]any{"users/alice/stats": "legacy"}))
		require.NoError(t, s.Update(ctx, map[string]any{"users/alice/stats/views": 1}))

		got, err := s.Get(ctx, "users/alice/stats")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"views": int64(1)}, got)
	})

	t.Run("RejectsBadUpdates", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		err := s.Update(ctx, map[string]any{
			"users/alice":       map[string]any{"x": 1},
			"users/alice/stats": nil,
		})
		assert.True(t, errors.Is(err, pathtree.ErrOverlappingPaths))

		err = s.Update(ctx, map[string]any{"users/a.b/stats/views": 1})
		assert.True(t, errors.Is(err, pathtree.ErrInvalidPath))

		_, err = s.Get(ctx, "")
		assert.True(t, errors.Is(err, pathtree.ErrInvalidPath))

		got, err := s.Get(ctx, "users/alice")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
