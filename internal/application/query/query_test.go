package query_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/internal/application/query"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/memory"
)

func edge(at string) map[string]any {
	return map[string]any{"followedAt": at}
}

func newStore() *memory.Store {
	return memory.NewStoreWithRoot(map[string]any{
		"users": map[string]any{
			"alice": map[string]any{
				"following": map[string]any{
					"bob":   edge("2026-01-01T00:00:00.000Z"),
					"carol": edge("2026-03-01T00:00:00.000Z"),
				},
				"stats": map[string]any{"following": int64(2), "followers": int64(0), "views": int64(3)},
			},
			"bob": map[string]any{
				"followers": map[string]any{"alice": edge("2026-01-01T00:00:00.000Z")},
				"stats":     map[string]any{"followers": int64(1), "following": int64(0), "views": int64(0)},
			},
			"carol": map[string]any{
				"followers": map[string]any{
					"alice": edge("2026-03-01T00:00:00.000Z"),
					"dave":  edge("2026-02-01T00:00:00.000Z"),
				},
			},
			"dave": map[string]any{"profile": map[string]any{"name": "Dave"}},
		},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetUserStats(t *testing.T) {
	h := query.NewGetUserStatsHandler(document.NewGraphRepository(newStore()), nil)
	ctx := context.Background()

	dto, err := h.Handle(ctx, query.GetUserStatsQuery{UserID: "bob", ViewerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "bob", dto.UserID)
	assert.Equal(t, social.Stats{Followers: 1}, dto.Stats)
	assert.True(t, dto.IsFollowing)

	dto, err = h.Handle(ctx, query.GetUserStatsQuery{UserID: "alice", ViewerID: "bob"})
	require.NoError(t, err)
	assert.False(t, dto.IsFollowing)

	dto, err = h.Handle(ctx, query.GetUserStatsQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, social.Stats{Following: 2, Views: 3}, dto.Stats)
	assert.False(t, dto.IsFollowing)

	dto, err = h.Handle(ctx, query.GetUserStatsQuery{UserID: "alice", ViewerID: "  "})
	require.NoError(t, err)
	assert.False(t, dto.IsFollowing)
}

func TestGetUserStatsSelfViewerSkipsLookup(t *testing.T) {
	h := query.NewGetUserStatsHandler(document.NewGraphRepository(newStore()), nil)
	dto, err := h.Handle(context.Background(), query.GetUserStatsQuery{UserID: "alice", ViewerID: "alice"})
	require.NoError(t, err)
	assert.False(t, dto.IsFollowing)
}

func TestGetUserStatsNotFound(t *testing.T) {
	h := query.NewGetUserStatsHandler(document.NewGraphRepository(newStore()), nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, query.GetUserStatsQuery{UserID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	_, err = h.Handle(ctx, query.GetUserStatsQuery{UserID: "bob", ViewerID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
	assert.ErrorIs(t, err, shared.ErrViewerNotFound)

	_, err = h.Handle(ctx, query.GetUserStatsQuery{UserID: ""})
	assert.True(t, shared.IsValidation(err))
}

func TestGetUserStatsInitializesMissingStats(t *testing.T) {
	store := newStore()
	h := query.NewGetUserStatsHandler(document.NewGraphRepository(store), nil)

	dto, err := h.Handle(context.Background(), query.GetUserStatsQuery{UserID: "dave"})
	require.NoError(t, err)
	assert.Equal(t, social.Stats{}, dto.Stats)

	node, err := store.Get(context.Background(), "users/dave/stats")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"followers": int64(0), "following": int64(0), "views": int64(0)}, node)
}

func TestGetUserStatsUnknownViewerWritesNothing(t *testing.T) {
	store := newStore()
	var updates []string
	store.SetFault(func(op, path string) error {
		if op == "update" {
			updates = append(updates, path)
		}
		return nil
	})
	h := query.NewGetUserStatsHandler(document.NewGraphRepository(store), nil)

	_, err := h.Handle(context.Background(), query.GetUserStatsQuery{UserID: "dave", ViewerID: "ghost"})
	require.ErrorIs(t, err, shared.ErrViewerNotFound)
	assert.Empty(t, updates)

	ok, err := store.Exists(context.Background(), "users/dave/stats")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetUserStatsInitFailureIsNotSurfaced(t *testing.T) {
	store := newStore()
	store.SetFault(func(op, _ string) error {
		if op == "update" {
			return errors.New("read-only replica")
		}
		return nil
	})
	h := query.NewGetUserStatsHandler(document.NewGraphRepository(store), nil)

	dto, err := h.Handle(context.Background(), query.GetUserStatsQuery{UserID: "dave"})
	require.NoError(t, err)
	assert.Equal(t, social.Stats{}, dto.Stats)
}

func TestGetUserStatsStoreFailure(t *testing.T) {
	store := newStore()
	store.SetFault(func(string, string) error { return errors.New("unavailable") })
	h := query.NewGetUserStatsHandler(document.NewGraphRepository(store), nil)

	_, err := h.Handle(context.Background(), query.GetUserStatsQuery{UserID: "dave"})
	assert.True(t, shared.IsStore(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST EDGES
// ══════════════════════════════════════════════════════════════════════════════

func TestListEdges(t *testing.T) {
	h := query.NewListEdgesHandler(document.NewGraphRepository(newStore()))
	ctx := context.Background()

	page, err := h.Handle(ctx, query.ListEdgesQuery{UserID: "alice", Direction: query.DirectionFollowing})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, shared.DefaultPageSize, page.Limit)
	require.Len(t, page.Edges, 2)
	assert.Equal(t, social.UserID("carol"), page.Edges[0].UserID)

	page, err = h.Handle(ctx, query.ListEdgesQuery{UserID: "carol", Direction: query.DirectionFollowers, Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, []social.Edge{{UserID: "dave", FollowedAt: "2026-02-01T00:00:00.000Z"}}, page.Edges)

	page, err = h.Handle(ctx, query.ListEdgesQuery{UserID: "carol", Direction: query.DirectionFollowers, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Edges)

	page, err = h.Handle(ctx, query.ListEdgesQuery{UserID: "dave", Direction: query.DirectionFollowers})
	require.NoError(t, err)
	assert.Empty(t, page.Edges)

	_, err = h.Handle(ctx, query.ListEdgesQuery{UserID: "ghost", Direction: query.DirectionFollowers})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(ctx, query.ListEdgesQuery{UserID: "alice", Direction: "sideways"})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT
// ══════════════════════════════════════════════════════════════════════════════

func TestAuditReportsDriftAndAsymmetry(t *testing.T) {
	h := query.NewAuditUserHandler(document.NewGraphRepository(newStore()))
	ctx := context.Background()

	audit, err := h.Handle(ctx, query.AuditUserQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.True(t, audit.Consistent())
	assert.Equal(t, int64(2), audit.ActualFollowing)

	// dave appears in carol's followers but has no following entry; carol has no stats.
	audit, err = h.Handle(ctx, query.AuditUserQuery{UserID: "carol"})
	require.NoError(t, err)
	assert.False(t, audit.StatsPresent)
	assert.Equal(t, int64(2), audit.ActualFollowers)
	assert.Equal(t, int64(-2), audit.FollowersDrift)
	assert.Equal(t, []string{"users/carol/followers/dave"}, audit.Asymmetric)
	assert.False(t, audit.Consistent())

	_, err = h.Handle(ctx, query.AuditUserQuery{UserID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}
