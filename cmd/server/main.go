// Package main is the entry point of the Armstrong Haulage community hub
// API: the social graph (follows, profile views, stats) plus follower
// notifications, served over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/armstrong-haulage/community-hub/config"
	"github.com/armstrong-haulage/community-hub/internal/application/command"
	"github.com/armstrong-haulage/community-hub/internal/application/eventhandler"
	"github.com/armstrong-haulage/community-hub/internal/application/query"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/messaging"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/backend"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/scheduler"
	schedjobs "github.com/armstrong-haulage/community-hub/internal/infrastructure/scheduler/jobs"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/service"
	httpserver "github.com/armstrong-haulage/community-hub/internal/interface/http"
	"github.com/armstrong-haulage/community-hub/internal/interface/http/handlers"
	"github.com/armstrong-haulage/community-hub/pkg/circuitbreaker"
	"github.com/armstrong-haulage/community-hub/pkg/logger"
	"github.com/armstrong-haulage/community-hub/pkg/retry"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING & TRACING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting community hub",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"backend", cfg.Store.Backend,
	)

	if cfg.Observability.TracingEnabled {
		shutdownTracer, err := initTracer(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to init tracer: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(flushCtx); err != nil {
				log.Warn("tracer shutdown failed", "error", err)
			}
		}()
		log.Info("tracing enabled", "endpoint", cfg.Observability.TracingEndpoint)
	}

	clock := timeutil.System()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("opening graph store...")
	store, err := backend.Open(ctx, backend.FromConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		log.Info("closing store connections...")
		if err := store.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()
	log.Info("graph store ready", "backend", store.Name)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{
		Bus:                 eventBus,
		Retrier:             retry.HandlerRetrier(),
		DeadLetterQueueSize: 500,
		Clock:               clock,
		Logger:              log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. NOTIFICATIONS
	// ─────────────────────────────────────────────────────────────────────────
	notifications := service.NewNotificationManager(
		store.Notifications,
		clock,
		nil,
		service.NotificationConfig{
			TTL:        cfg.Notifications.TTL,
			MaxPerUser: cfg.Notifications.MaxPerUser,
		},
		eventBus,
		log,
	)

	jobs := scheduler.New(scheduler.Config{Logger: log, Clock: clock})
	purge := schedjobs.NewPurgeNotificationsJob(notifications, time.Minute, log)
	if err := jobs.Register(purge, scheduler.Every(cfg.Notifications.PurgeInterval)); err != nil {
		return fmt.Errorf("failed to register purge job: %w", err)
	}
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	flags := cfg.Features
	onFollowed := eventhandler.NewOnUserFollowedHandler(notifications, func(recipientID string) bool {
		return flags.EnabledFor(config.FeatureNotifyNewFollower, recipientID)
	}, log)
	if err := dispatcher.Register(shared.EventUserFollowed, "notify_new_follower", onFollowed); err != nil {
		return fmt.Errorf("failed to register follower notifications: %w", err)
	}
	if flags.Enabled(config.FeatureNotifyViewMilestone) {
		onViewed := eventhandler.NewOnProfileViewedHandler(notifications, cfg.Notifications.ViewMilestones, log)
		if err := dispatcher.Register(shared.EventProfileViewed, "notify_view_milestone", onViewed); err != nil {
			return fmt.Errorf("failed to register milestone notifications: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. NATS FORWARDING (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		natsConn    *nats.Conn
		natsBreaker *circuitbreaker.CircuitBreaker
	)
	if cfg.NATS.Enabled() && flags.Enabled(config.FeatureNatsForwarding) {
		log.Info("connecting to NATS...", "url", cfg.NATS.URL)
		nc, js, err := messaging.ConnectJetStream(ctx, cfg.NATS.URL, cfg.NATS.ClientName)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		natsConn = nc
		defer func() {
			log.Info("draining NATS connection...")
			if err := nc.Drain(); err != nil {
				log.Warn("nats drain failed", "error", err)
			}
		}()

		natsBreaker = circuitbreaker.BrokerBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("broker circuit changed state", "breaker", name, "from", from.String(), "to", to.String())
		})
		forwarder := messaging.NewNatsForwarder(js, messaging.NatsForwarderConfig{
			PublishTimeout: cfg.NATS.PublishTimeout,
			Breaker:        natsBreaker,
			Logger:         log,
		})
		for _, event := range []shared.EventType{
			shared.EventUserFollowed,
			shared.EventUserUnfollowed,
			shared.EventProfileViewed,
		} {
			if err := dispatcher.Register(event, "nats_forward", forwarder); err != nil {
				return fmt.Errorf("failed to register nats forwarder: %w", err)
			}
		}
		log.Info("forwarding social events to JetStream", "stream", messaging.StreamName)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. COMMAND & QUERY HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	repo := store.Repository
	deps := httpserver.Dependencies{
		FollowHandler:     command.NewFollowUserHandler(repo, eventBus, clock, log),
		UnfollowHandler:   command.NewUnfollowUserHandler(repo, eventBus, clock, log),
		RecordViewHandler: command.NewRecordViewHandler(repo, eventBus, clock, log),
		GetStatsHandler:   query.NewGetUserStatsHandler(repo, log),
		AuditHandler:      query.NewAuditUserHandler(repo),
		Notifications:     notifications,
		Clock:             clock,
	}
	if flags.Enabled(config.FeatureEdgeListing) {
		deps.ListEdgesHandler = query.NewListEdgesHandler(repo)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version, clock)
	health.AddDetailedCheck("store", store.Health)
	if store.Breaker != nil {
		health.AddCheck("store_circuit", func(context.Context) error {
			return store.Breaker.HealthError()
		})
	}
	if natsConn != nil {
		health.AddCheck("nats", func(context.Context) error {
			if !natsConn.IsConnected() {
				return fmt.Errorf("nats status %s", natsConn.Status())
			}
			return natsBreaker.HealthError()
		})
	}
	deps.HealthChecker = health

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	deps.Logger = logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("service", cfg.Observability.ServiceName))

	httpServer := httpserver.NewServer(httpserver.Config{
		Host:               cfg.HTTP.Host,
		Port:               cfg.HTTP.Port,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
		AllowedOrigins:     cfg.HTTP.AllowedOrigins,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		JWTSecret:          cfg.Auth.JWTSecret,
		JWTIssuer:          cfg.Auth.JWTIssuer,
		EnableAudit:        flags.Enabled(config.FeatureAuditEndpoint),
		Tracing:            cfg.Observability.TracingEnabled,
		Version:            cfg.App.Version,
	}, deps)

	errCh := httpServer.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("community hub is running",
		"http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		"features", enabledFeatures(flags),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err, ok := <-errCh:
		if ok && err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			return err
		}
	case <-ctx.Done():
	}

	if httpServer.IsRunning() {
		log.Info("http server uptime", "uptime", timeutil.FormatDuration(httpServer.Uptime()))
	}
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
	}
	if err := jobs.Stop(); err != nil {
		log.Warn("failed to stop scheduler", "error", err)
	}

	if dead := dispatcher.DeadLetterQueue().Size(); dead > 0 {
		log.Warn("unprocessed events in dead letter queue", "count", dead)
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures the process-wide slog logger.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch strings.ToLower(cfg.Observability.LogLevel) {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("service", cfg.Observability.ServiceName)
	slog.SetDefault(log)
	return log
}

// initTracer installs an OTLP/gRPC tracer provider and returns its shutdown.
func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Observability.TracingEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.Observability.ServiceName),
			semconv.ServiceVersionKey.String(cfg.App.Version),
			semconv.DeploymentEnvironmentKey.String(string(cfg.App.Environment)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func enabledFeatures(flags *config.FeatureFlags) []string {
	var names []string
	for name := range flags.GetAllFeatures() {
		if flags.Enabled(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
