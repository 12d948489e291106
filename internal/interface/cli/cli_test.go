package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/config"
	"github.com/armstrong-haulage/community-hub/internal/application/command"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/backend"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/memory"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

type testCLI struct {
	t      *testing.T
	store  *memory.Store
	clock  *timeutil.FakeClock
	opened []backend.Options
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("APP_ENV", "development")
	return &testCLI{
		t:     t,
		store: memory.NewStore(),
		clock: timeutil.NewFakeClock(time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)),
	}
}

func (c *testCLI) open(_ context.Context, opts backend.Options, _ *slog.Logger) (*backend.Backend, error) {
	c.opened = append(c.opened, opts)
	return &backend.Backend{
		Name:       opts.Store.Backend,
		Repository: document.NewGraphRepository(c.store),
		Store:      c.store,
	}, nil
}

func (c *testCLI) exec(args ...string) (string, error) {
	root := NewRootCommand(Dependencies{Open: c.open, Clock: c.clock})
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func (c *testCLI) mustExec(args ...string) string {
	c.t.Helper()
	out, err := c.exec(args...)
	require.NoError(c.t, err, out)
	return out
}

func TestSeedFollowAndStats(t *testing.T) {
	c := newTestCLI(t)

	assert.Equal(t, "created alice at 2026-10-16T10:00:00.000Z\n", c.mustExec("seed-user", "alice"))
	c.mustExec("seed-user", "bob")

	out := c.mustExec("follow", "alice", "bob")
	assert.Equal(t, "alice now follows bob (followers of bob: 1, alice follows: 1)\n", out)

	out = c.mustExec("stats", "bob", "--viewer", "alice")
	assert.Equal(t, "bob: followers=1 following=0 views=0\nfollowed by alice: true\n", out)

	out = c.mustExec("stats", "alice")
	assert.Equal(t, "alice: followers=0 following=1 views=0\n", out)

	out = c.mustExec("unfollow", "alice", "bob")
	assert.Equal(t, "alice no longer follows bob (followers of bob: 0, alice follows: 0)\n", out)
}

func TestJSONOutput(t *testing.T) {
	c := newTestCLI(t)
	c.mustExec("seed-user", "alice")
	c.mustExec("seed-user", "bob")

	out := c.mustExec("follow", "alice", "bob", "--format", "json")

	var resp struct {
		Status string                     `json:"status"`
		Data   command.FollowUserResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.Data.FollowerCount)
	assert.Equal(t, int64(1), resp.Data.FollowingCount)
	assert.Equal(t, "2026-10-16T10:00:00.000Z", resp.Data.FollowedAt)

	out = c.mustExec("view", "bob", "--format", "json")
	assert.JSONEq(t, `{"status":"ok","data":{"views":1}}`, out)
}

func TestDomainErrors(t *testing.T) {
	c := newTestCLI(t)
	c.mustExec("seed-user", "alice")
	c.mustExec("seed-user", "bob")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"not following", []string{"unfollow", "alice", "bob"}, "error [not_following]: not following\n"},
		{"self follow", []string{"follow", "alice", "alice"}, "error [validation_error]: cannot follow yourself\n"},
		{"unknown user", []string{"follow", "alice", "carol"}, "error [not_found]: "},
		{"forbidden characters", []string{"view", "a.b"}, "error [validation_error]: userId: user id contains forbidden characters\n"},
		{"seed twice", []string{"seed-user", "alice"}, "error [user_exists]: user alice: user already exists\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.exec(tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.True(t, Reported(err))
			assert.Contains(t, out, tt.want)
		})
	}

	c.mustExec("follow", "alice", "bob")
	out, err := c.exec("follow", "alice", "bob", "--format", "json")
	require.Error(t, err)
	assert.JSONEq(t, `{"status":"error","error":{"code":"already_following","message":"follow alice -> bob: already following"}}`, out)
}

func TestViewCounts(t *testing.T) {
	c := newTestCLI(t)
	c.mustExec("seed-user", "alice")

	assert.Equal(t, "alice: views=1\n", c.mustExec("view", "alice"))
	assert.Equal(t, "alice: views=2\n", c.mustExec("view", "alice"))
}

func TestListEdges(t *testing.T) {
	c := newTestCLI(t)
	for _, id := range []string{"alice", "bob", "carol"} {
		c.mustExec("seed-user", id)
	}
	c.mustExec("follow", "alice", "bob")
	c.clock.Advance(90 * time.Minute)
	c.mustExec("follow", "carol", "bob")
	c.clock.Advance(30 * time.Minute)

	out := c.mustExec("followers", "bob")
	assert.Equal(t, "bob followers: 2 total, showing 2 from offset 0\n"+
		"  carol\t2026-10-16T11:30:00.000Z\t30m ago\n"+
		"  alice\t2026-10-16T10:00:00.000Z\t2h ago\n", out)

	out = c.mustExec("followers", "bob", "--offset", "1", "--limit", "5")
	assert.Equal(t, "bob followers: 2 total, showing 1 from offset 1\n"+
		"  alice\t2026-10-16T10:00:00.000Z\t2h ago\n", out)

	out = c.mustExec("following", "alice", "--format", "json")
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Direction string `json:"direction"`
			Total     int    `json:"total"`
			Limit     int    `json:"limit"`
			Edges     []struct {
				UserID string `json:"userId"`
			} `json:"edges"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "following", resp.Data.Direction)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 50, resp.Data.Limit)
	require.Len(t, resp.Data.Edges, 1)
	assert.Equal(t, "bob", resp.Data.Edges[0].UserID)

	out, err := c.exec("following", "nobody")
	require.Error(t, err)
	assert.Contains(t, out, "error [not_found]: ")
}

func TestAudit(t *testing.T) {
	c := newTestCLI(t)
	c.mustExec("seed-user", "alice")
	c.mustExec("seed-user", "bob")
	c.mustExec("follow", "alice", "bob")

	out := c.mustExec("audit", "bob")
	assert.Contains(t, out, "followers: stored=1 actual=1 drift=+0")
	assert.Contains(t, out, "consistent")

	require.NoError(t, c.store.Update(context.Background(), map[string]any{
		"users/bob/stats/followers": 5,
		"users/alice/following/bob": nil,
	}))

	out, err := c.exec("audit", "bob")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, Reported(err))
	assert.Contains(t, out, "followers: stored=5 actual=1 drift=+4")
	assert.Contains(t, out, "asymmetric edge: users/bob/followers/alice")
	assert.NotContains(t, out, "  consistent")
}

func TestFlagValidation(t *testing.T) {
	c := newTestCLI(t)

	_, err := c.exec("stats", "alice", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.False(t, Reported(err))

	_, err = c.exec("stats", "alice", "--backend", "mongo")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = c.exec("follow", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	assert.Empty(t, c.opened)
}

func TestOpenFailureIsCommandError(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	root := NewRootCommand(Dependencies{
		Open: func(context.Context, backend.Options, *slog.Logger) (*backend.Backend, error) {
			return nil, errors.New("connection refused")
		},
	})
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetArgs([]string{"stats", "alice"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "error [command_error]: open backend: connection refused\n", buf.String())
}

func TestBackendFlagsReachOpen(t *testing.T) {
	c := newTestCLI(t)
	path := t.TempDir() + "/graph.db"

	_, err := c.exec("stats", "alice", "--backend", "sqlite", "--dsn", path)
	require.Error(t, err) // alice does not exist in the injected store

	require.Len(t, c.opened, 1)
	opts := c.opened[0]
	assert.Equal(t, config.BackendSQLite, opts.Store.Backend)
	assert.Equal(t, path, opts.SQLite.Path)
	assert.Equal(t, 1, opts.Store.StartupAttempts)
	assert.Equal(t, config.BackendMemory, opts.Notifications.Backend)
}

func TestApplyOverrides(t *testing.T) {
	t.Run("postgres", func(t *testing.T) {
		cfg := config.LoadEnv()
		require.NoError(t, applyOverrides(cfg, "postgres", "postgres://hub@db:5432/hub"))
		assert.Equal(t, "postgres://hub@db:5432/hub", cfg.Database.URL)
	})

	t.Run("redis", func(t *testing.T) {
		cfg := config.LoadEnv()
		require.NoError(t, applyOverrides(cfg, "redis", "redis://:secret@cache:6380/2"))
		assert.Equal(t, "cache", cfg.Redis.Host)
		assert.Equal(t, 6380, cfg.Redis.Port)
		assert.Equal(t, "secret", cfg.Redis.Password)
		assert.Equal(t, 2, cfg.Redis.DB)
	})

	t.Run("neo4j", func(t *testing.T) {
		cfg := config.LoadEnv()
		require.NoError(t, applyOverrides(cfg, "NEO4J", "neo4j://graph:7687"))
		assert.Equal(t, config.BackendNeo4j, cfg.Store.Backend)
		assert.Equal(t, "neo4j://graph:7687", cfg.Neo4j.URI)
	})

	t.Run("memory rejects dsn", func(t *testing.T) {
		cfg := config.LoadEnv()
		assert.Error(t, applyOverrides(cfg, "memory", "anything"))
	})

	t.Run("bad redis url", func(t *testing.T) {
		cfg := config.LoadEnv()
		assert.Error(t, applyOverrides(cfg, "redis", "http://cache"))
	})

	t.Run("production guard is lifted", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		cfg := config.LoadEnv()
		require.NoError(t, applyOverrides(cfg, "memory", ""))
		assert.NoError(t, cfg.Validate())
	})
}
