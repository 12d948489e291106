package neo4j

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/internal/domain/social"
)

func TestTranslateFollow(t *testing.T) {
	update, _ := social.PlanFollow("alice", "bob",
		social.StatsSnapshot{Found: true, Stats: social.Stats{Following: 2}},
		social.StatsSnapshot{},
		"2026-10-16T10:00:00.000Z")

	stmts, err := Translate(update)
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	// Both directions collapse into one relationship.
	assert.Equal(t, mergeEdgeCypher, stmts[0].Cypher)
	assert.Equal(t, map[string]any{
		"from": "alice", "to": "bob", "followedAt": "2026-10-16T10:00:00.000Z",
	}, stmts[0].Params)

	assert.Equal(t, setPropsCypher, stmts[1].Cypher)
	assert.Equal(t, map[string]any{
		"id":    "alice",
		"props": map[string]any{social.FieldFollowing: int64(3)},
	}, stmts[1].Params)

	assert.Equal(t, setPropsCypher, stmts[2].Cypher)
	assert.Equal(t, map[string]any{
		"id": "bob",
		"props": map[string]any{
			social.FieldFollowers: int64(1),
			social.FieldFollowing: int64(0),
			social.FieldViews:     int64(0),
		},
	}, stmts[2].Params)
}

func TestTranslateUnfollow(t *testing.T) {
	update, _ := social.PlanUnfollow("alice", "bob",
		social.StatsSnapshot{Found: true, Stats: social.Stats{Following: 1}},
		social.StatsSnapshot{Found: true, Stats: social.Stats{Followers: 1}})

	stmts, err := Translate(update)
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	assert.Equal(t, deleteEdgeCypher, stmts[0].Cypher)
	assert.Equal(t, map[string]any{"from": "alice", "to": "bob"}, stmts[0].Params)
	assert.Equal(t, setPropsCypher, stmts[1].Cypher)
	assert.Equal(t, setPropsCypher, stmts[2].Cypher)
}

func TestTranslateStatsNode(t *testing.T) {
	stmts, err := Translate(social.MultiPathUpdate{
		"users/carol/stats": map[string]any{"views": 9},
	})
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, map[string]any{
		social.FieldFollowers: nil,
		social.FieldFollowing: nil,
		social.FieldViews:     int64(9),
	}, stmts[0].Params["props"])
}

func TestTranslateDeletes(t *testing.T) {
	stmts, err := Translate(social.MultiPathUpdate{
		"users/carol":             nil,
		"users/dave/followers":    nil,
		"users/erin/following":    nil,
		"users/frank/stats/views": nil,
	})
	require.NoError(t, err)
	require.Len(t, stmts, 4)

	assert.Equal(t, deleteUserCypher, stmts[0].Cypher)
	assert.Equal(t, deleteReverseEdgeSetCypher, stmts[1].Cypher)
	assert.Equal(t, deleteEdgeSetCypher, stmts[2].Cypher)
	assert.Equal(t, map[string]any{"id": "frank", "props": map[string]any{"views": nil}}, stmts[3].Params)
}

func TestTranslateLeafEdge(t *testing.T) {
	stmts, err := Translate(social.MultiPathUpdate{
		"users/bob/followers/alice/followedAt": "t1",
	})
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, map[string]any{"from": "alice", "to": "bob", "followedAt": "t1"}, stmts[0].Params)
}

func TestTranslateRejectsUnknownPaths(t *testing.T) {
	tests := map[string]social.MultiPathUpdate{
		"foreign root":     {"groups/x/stats/views": 1},
		"unknown section":  {"users/alice/badges/gold": true},
		"unknown stat":     {"users/alice/stats/karma": 1},
		"non-integer stat": {"users/alice/stats/views": "many"},
		"user overwrite":   {"users/alice": map[string]any{"x": 1}},
		"edge attribute":   {"users/alice/following/bob/note": "hi"},
		"bad followedAt":   {"users/alice/following/bob": map[string]any{"followedAt": 5}},
		"nested profile":   {"users/alice/profile/address/city": "Leeds"},
		"profile object":   {"users/alice/profile/truck": map[string]any{"make": "Scania"}},
	}
	for name, update := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Translate(update)
			assert.True(t, errors.Is(err, ErrUnsupportedPath), "got %v", err)
		})
	}
}

func TestTranslateProfile(t *testing.T) {
	stmts, err := Translate(social.PlanRegister("alice", "2026-10-16T10:00:00.000Z"))
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, setPropsCypher, stmts[0].Cypher)
	assert.Equal(t, map[string]any{
		"id":    "alice",
		"props": map[string]any{"profile_createdAt": "2026-10-16T10:00:00.000Z"},
	}, stmts[0].Params)
}

func TestTranslateEmpty(t *testing.T) {
	stmts, err := Translate(social.MultiPathUpdate{})
	require.NoError(t, err)
	assert.Empty(t, stmts)
}
