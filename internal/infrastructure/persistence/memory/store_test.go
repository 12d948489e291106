package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document/documenttest"
	"github.com/armstrong-haulage/community-hub/pkg/pathtree"
)

func TestStoreSuite(t *testing.T) {
	documenttest.RunStoreSuite(t, func(*testing.T) document.Store { return NewStore() })
}

func TestStoreUpdateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Update(ctx, map[string]any{
		"users/alice/stats":         map[string]any{"followers": 1, "views": 3},
		"users/alice/following/bob": map[string]any{"followedAt": "t1"},
	}))

	got, err := s.Get(ctx, "users/alice/stats")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"followers": int64(1), "views": int64(3)}, got)

	// Leaf writes merge into the stats node.
	require.NoError(t, s.Update(ctx, map[string]any{"users/alice/stats/following": 2}))
	got, err = s.Get(ctx, "users/alice/stats")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"followers": int64(1), "following": int64(2), "views": int64(3)}, got)

	ok, err := s.Exists(ctx, "users/alice/following/bob")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "users/nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreDeletePrunesEmptyParents(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Update(ctx, map[string]any{
		"users/alice/following/bob": map[string]any{"followedAt": "t1"},
		"users/alice/stats/views":   5,
	}))

	require.NoError(t, s.Update(ctx, map[string]any{"users/alice/following/bob": nil}))

	ok, err := s.Exists(ctx, "users/alice/following")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.Keys(ctx, "users/alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"stats"}, keys)
}

func TestStoreReplacesAncestorLeaf(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Update(ctx, map[string]any{"users/alice/stats": "legacy"}))
	require.NoError(t, s.Update(ctx, map[string]any{"users/alice/stats/views": 1}))

	got, err := s.Get(ctx, "users/alice/stats")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"views": int64(1)}, got)
}

func TestStoreRejectsOverlappingPaths(t *testing.T) {
	s := NewStore()
	err := s.Update(context.Background(), map[string]any{
		"users/alice":       map[string]any{"x": 1},
		"users/alice/stats": nil,
	})
	assert.True(t, errors.Is(err, pathtree.ErrOverlappingPaths))
}

func TestStoreFaultLeavesTreeUntouched(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	boom := errors.New("boom")
	s.SetFault(func(op, path string) error {
		if op == "update" && path == "users/bob/stats/followers" {
			return boom
		}
		return nil
	})

	err := s.Update(ctx, map[string]any{
		"users/alice/following/bob": map[string]any{"followedAt": "t"},
		"users/bob/stats/followers": 1,
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Snapshot())
}

func TestStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStoreWithRoot(map[string]any{
		"users": map[string]any{"alice": map[string]any{"stats": map[string]any{"views": int64(1)}}},
	})

	got, err := s.Get(ctx, "users/alice/stats")
	require.NoError(t, err)
	got.(map[string]any)["views"] = int64(99)

	again, err := s.Get(ctx, "users/alice/stats/views")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again)
}
