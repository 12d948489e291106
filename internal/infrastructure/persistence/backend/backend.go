// Package backend opens the configured graph store and the notification
// backing store. It is shared by the API server and graphctl.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/armstrong-haulage/community-hub/config"
	"github.com/armstrong-haulage/community-hub/internal/domain/notification"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/memory"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/neo4j"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/postgres"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/redis"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/sqlite"
	"github.com/armstrong-haulage/community-hub/pkg/circuitbreaker"
	"github.com/armstrong-haulage/community-hub/pkg/retry"
)

// ErrUnknownBackend is returned for a backend name Open does not know.
var ErrUnknownBackend = errors.New("unknown store backend")

// Options selects and configures the backends.
type Options struct {
	Store          config.StoreConfig
	Database       config.DatabaseConfig
	SQLite         config.SQLiteConfig
	Redis          config.RedisConfig
	Neo4j          config.Neo4jConfig
	Notifications  config.NotificationsConfig
	CircuitBreaker config.CircuitBreakerConfig
	Tracing        bool
}

// FromConfig extracts Options from the application config.
func FromConfig(cfg *config.Config) Options {
	return Options{
		Store:          cfg.Store,
		Database:       cfg.Database,
		SQLite:         cfg.SQLite,
		Redis:          cfg.Redis,
		Neo4j:          cfg.Neo4j,
		Notifications:  cfg.Notifications,
		CircuitBreaker: cfg.CircuitBreaker,
		Tracing:        cfg.Observability.TracingEnabled,
	}
}

// Backend holds the opened stores and whatever must be closed with them.
type Backend struct {
	Name config.StoreBackend

	// Repository serves the social graph operations.
	Repository social.Repository

	// Store is the document tree behind Repository; nil for neo4j.
	Store document.Store

	// Notifications backs the notification manager.
	Notifications notification.Store

	// Breaker guards Store when enabled.
	Breaker *circuitbreaker.CircuitBreaker

	pinger   document.Pinger
	reporter document.HealthReporter
	closers  []func() error
}

// Ping checks that the graph store answers.
func (b *Backend) Ping(ctx context.Context) error {
	if b.pinger == nil {
		return nil
	}
	return b.pinger.Ping(ctx)
}

// Health pings the graph store and returns whatever connection details it
// reports; stores without details return nil.
func (b *Backend) Health(ctx context.Context) (map[string]any, error) {
	if b.reporter != nil {
		return b.reporter.HealthDetails(ctx)
	}
	return nil, b.Ping(ctx)
}

// Close releases connections in reverse opening order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *Backend) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Open connects to the configured graph store, retrying network backends
// while they come up, then opens the notification store.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "backend", "backend", string(opts.Store.Backend))

	b := &Backend{Name: opts.Store.Backend}
	var redisClient *goredis.Client

	connect := func(what string, fn func(ctx context.Context) error) error {
		r := retry.StartupRetrier(opts.Store.StartupAttempts, opts.Store.StartupDelay,
			func(attempt int, err error, delay time.Duration) {
				log.Warn("backend not ready, retrying", "target", what, "attempt", attempt, "delay", delay, "error", err)
			})
		return r.Do(ctx, fn)
	}

	openRedis := func() (*goredis.Client, error) {
		if redisClient != nil {
			return redisClient, nil
		}
		rc := redis.Config{
			Host:         opts.Redis.Host,
			Port:         opts.Redis.Port,
			Password:     opts.Redis.Password,
			DB:           opts.Redis.DB,
			PoolSize:     opts.Redis.PoolSize,
			MinIdleConns: opts.Redis.MinIdleConns,
			DialTimeout:  opts.Redis.DialTimeout,
			ReadTimeout:  opts.Redis.ReadTimeout,
			WriteTimeout: opts.Redis.WriteTimeout,
			KeyPrefix:    opts.Redis.KeyPrefix,
			Tracing:      opts.Tracing,
		}
		err := connect("redis", func(ctx context.Context) error {
			var err error
			redisClient, err = redis.NewClient(ctx, rc)
			return err
		})
		if err != nil {
			return nil, err
		}
		b.onClose(redisClient.Close)
		return redisClient, nil
	}

	var store document.Store
	switch opts.Store.Backend {
	case config.BackendMemory, "":
		store = memory.NewStore()

	case config.BackendSQLite:
		s, err := sqlite.Open(opts.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", opts.SQLite.Path, err)
		}
		b.onClose(s.Close)
		store = s

	case config.BackendPostgres:
		var conn *postgres.Connection
		err := connect("postgres", func(ctx context.Context) error {
			var err error
			conn, err = postgres.NewConnection(ctx, opts.Database.URL, poolOptions(opts))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.onClose(func() error { conn.Close(); return nil })
		if opts.Database.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				_ = b.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		store = postgres.NewTreeStore(conn)

	case config.BackendRedis:
		client, err := openRedis()
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store = redis.NewTreeStore(client, opts.Redis.KeyPrefix)

	case config.BackendNeo4j:
		var repo *neo4j.GraphRepository
		err := connect("neo4j", func(ctx context.Context) error {
			driver, err := neo4j.Connect(ctx, neo4j.Config{
				URI:                   opts.Neo4j.URI,
				Username:              opts.Neo4j.Username,
				Password:              opts.Neo4j.Password,
				Database:              opts.Neo4j.Database,
				MaxConnectionPoolSize: opts.Neo4j.MaxConnectionPoolSize,
				ConnectionTimeout:     opts.Neo4j.ConnectionTimeout,
			})
			if err != nil {
				return err
			}
			b.onClose(func() error { return driver.Close(context.Background()) })
			repo = neo4j.NewGraphRepository(driver, opts.Neo4j.Database)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("connect neo4j: %w", err)
		}
		b.Repository = repo
		b.pinger = repo

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Store.Backend)
	}

	if store != nil {
		raw := store
		if opts.CircuitBreaker.Enabled {
			b.Breaker = circuitbreaker.StoreBreaker("store."+string(b.Name),
				opts.CircuitBreaker.FailureThreshold,
				opts.CircuitBreaker.Timeout,
				document.IsStoreFailure,
				func(name string, from, to circuitbreaker.State) {
					log.Warn("store circuit changed state", "breaker", name, "from", from.String(), "to", to.String())
				},
				circuitbreaker.WithMaxHalfOpenRequests(opts.CircuitBreaker.HalfOpenMax),
			)
			store = document.WithBreaker(store, b.Breaker)
		}
		b.Store = store
		b.Repository = document.NewGraphRepository(store)
		if p, ok := store.(document.Pinger); ok {
			b.pinger = p
		}
		if r, ok := raw.(document.HealthReporter); ok {
			b.reporter = r
		}
	}

	switch opts.Notifications.Backend {
	case config.BackendRedis:
		client, err := openRedis()
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("connect redis for notifications: %w", err)
		}
		b.Notifications = redis.NewNotificationStore(client, opts.Redis.KeyPrefix)
	default:
		b.Notifications = memory.NewNotificationStore(nil)
	}

	log.Info("backend ready", "notifications", string(opts.Notifications.Backend))
	return b, nil
}

// poolOptions overlays configured pool limits on the production defaults.
func poolOptions(opts Options) postgres.PoolOptions {
	po := postgres.DefaultPoolOptions()
	po.Tracing = opts.Tracing
	if opts.Database.MaxConns > 0 {
		po.MaxConns = int32(opts.Database.MaxConns)
	}
	if opts.Database.MinConns > 0 {
		po.MinConns = int32(opts.Database.MinConns)
	}
	if opts.Database.ConnMaxLifetime > 0 {
		po.MaxConnLifetime = opts.Database.ConnMaxLifetime
	}
	if opts.Database.ConnMaxIdleTime > 0 {
		po.MaxConnIdleTime = opts.Database.ConnMaxIdleTime
	}
	return po
}
