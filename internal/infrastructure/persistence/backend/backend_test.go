package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/config"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/memory"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/postgres"
)

func TestOpenMemory(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, Options{
		Store:          config.StoreConfig{Backend: config.BackendMemory},
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true, FailureThreshold: 3, Timeout: time.Second, HalfOpenMax: 1},
	}, nil)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &document.BreakerStore{}, b.Store)
	assert.NotNil(t, b.Breaker)
	assert.IsType(t, &memory.NotificationStore{}, b.Notifications)
	assert.NoError(t, b.Ping(ctx))
	details, err := b.Health(ctx)
	assert.NoError(t, err)
	assert.Nil(t, details)

	require.NoError(t, b.Repository.WriteMultiPath(ctx, social.PlanRegister("alice", "2026-10-16T10:00:00.000Z")))
	ok, err := b.Repository.UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	opts := Options{
		Store:  config.StoreConfig{Backend: config.BackendSQLite},
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "graph.db")},
	}

	b, err := Open(ctx, opts, nil)
	require.NoError(t, err)
	assert.Nil(t, b.Breaker)
	require.NoError(t, b.Repository.WriteMultiPath(ctx, social.PlanRegister("alice", "2026-10-16T10:00:00.000Z")))
	require.NoError(t, b.Close())

	b, err = Open(ctx, opts, nil)
	require.NoError(t, err)
	defer b.Close()
	ok, err := b.Repository.UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, b.Ping(ctx))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Store: config.StoreConfig{Backend: "cassandra"}}, nil)
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		Store:         config.StoreConfig{Backend: config.BackendRedis},
		Redis:         config.RedisConfig{KeyPrefix: "test:"},
		Observability: config.ObservabilityConfig{TracingEnabled: true},
	}
	opts := FromConfig(cfg)
	assert.Equal(t, config.BackendRedis, opts.Store.Backend)
	assert.Equal(t, "test:", opts.Redis.KeyPrefix)
	assert.True(t, opts.Tracing)
}

func TestCloseRunsInReverseOrder(t *testing.T) {
	var order []int
	b := &Backend{}
	b.onClose(func() error { order = append(order, 1); return nil })
	b.onClose(func() error { order = append(order, 2); return errors.New("boom") })

	err := b.Close()
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, b.Close())
}

type reporterFunc func(ctx context.Context) (map[string]any, error)

func (f reporterFunc) HealthDetails(ctx context.Context) (map[string]any, error) { return f(ctx) }

func TestHealthUsesReporter(t *testing.T) {
	b := &Backend{reporter: reporterFunc(func(context.Context) (map[string]any, error) {
		return map[string]any{"total_conns": int32(2)}, errors.New("postgres: timeout")
	})}

	details, err := b.Health(context.Background())
	assert.EqualError(t, err, "postgres: timeout")
	assert.Equal(t, int32(2), details["total_conns"])

	details, err = (&Backend{}).Health(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, details)
}

func TestPoolOptionsOverlayDefaults(t *testing.T) {
	po := poolOptions(Options{
		Database: config.DatabaseConfig{MaxConns: 25, ConnMaxIdleTime: time.Minute},
		Tracing:  true,
	})
	def := postgres.DefaultPoolOptions()

	assert.Equal(t, int32(25), po.MaxConns)
	assert.Equal(t, def.MinConns, po.MinConns)
	assert.Equal(t, def.MaxConnLifetime, po.MaxConnLifetime)
	assert.Equal(t, time.Minute, po.MaxConnIdleTime)
	assert.Equal(t, def.HealthCheckPeriod, po.HealthCheckPeriod)
	assert.True(t, po.Tracing)

	assert.False(t, poolOptions(Options{}).Tracing)
}
