package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/internal/domain/social"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document/documenttest"
)

func openTemp(t *testing.T) *TreeStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTreeStoreSuite(t *testing.T) {
	documenttest.RunStoreSuite(t, func(t *testing.T) document.Store { return openTemp(t) })
}

func TestTreeStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, map[string]any{"users/alice/stats/views": 7}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "users/alice/stats/views")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
	assert.NoError(t, s.Ping(ctx))
}

func TestTreeStoreBacksGraphRepository(t *testing.T) {
	ctx := context.Background()
	repo := document.NewGraphRepository(openTemp(t))

	update, counts := social.PlanFollow("alice", "bob",
		social.StatsSnapshot{}, social.StatsSnapshot{}, "2026-10-16T10:00:00.000Z")
	require.NoError(t, repo.WriteMultiPath(ctx, update))
	assert.Equal(t, social.Counts{FollowerCount: 1, FollowingCount: 1}, counts)

	ok, err := repo.EdgeExists(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	stats, found, err := repo.GetUserStats(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, social.Stats{Followers: 1}, stats)

	followers, err := repo.ListFollowers(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "alice", followers[0].UserID.String())
}

func TestInClause(t *testing.T) {
	q, args := inClause("DELETE FROM t WHERE path IN ", []string{"a", "a/b"})
	assert.Equal(t, "DELETE FROM t WHERE path IN (?, ?)", q)
	assert.Equal(t, []any{"a", "a/b"}, args)
}
