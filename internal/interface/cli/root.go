// Package cli implements graphctl, the admin command line for the social
// graph store. Every command opens the configured backend, runs one
// operation through the same handlers the HTTP API uses and closes it.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/armstrong-haulage/community-hub/config"
	"github.com/armstrong-haulage/community-hub/internal/application/query"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/backend"
	"github.com/armstrong-haulage/community-hub/pkg/logger"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{FormatText, FormatJSON}

// OpenFunc opens a backend. backend.Open in production.
type OpenFunc func(ctx context.Context, opts backend.Options, log *slog.Logger) (*backend.Backend, error)

// Dependencies are the injectable parts of the CLI.
type Dependencies struct {
	Open  OpenFunc
	Clock timeutil.Clock
}

// RootOptions holds the persistent flags.
type RootOptions struct {
	Backend string
	DSN     string
	Format  string
	Verbose bool

	deps Dependencies
}

// NewRootCommand creates the graphctl root command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	if deps.Open == nil {
		deps.Open = backend.Open
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.System()
	}
	opts := &RootOptions{deps: deps}

	cmd := &cobra.Command{
		Use:   "graphctl",
		Short: "Inspect and edit the community social graph",
		Long: `graphctl runs social graph operations directly against a store backend.

The backend and its connection come from the same environment variables as
the server (STORE_BACKEND, DATABASE_URL, SQLITE_PATH, REDIS_*, NEO4J_*);
--backend and --dsn override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Backend != "" && !slices.Contains(config.Backends, config.StoreBackend(opts.Backend)) {
				return fmt.Errorf("invalid backend %q: must be one of %v", opts.Backend, config.Backends)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "store backend (memory|postgres|sqlite|redis|neo4j); defaults to STORE_BACKEND")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "connection string for the backend: postgres URL, sqlite path, redis URL or neo4j URI")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log backend activity to stderr")

	cmd.AddCommand(
		NewStatsCommand(opts),
		NewListEdgesCommand(opts, query.DirectionFollowers),
		NewListEdgesCommand(opts, query.DirectionFollowing),
		NewFollowCommand(opts),
		NewUnfollowCommand(opts),
		NewViewCommand(opts),
		NewAuditCommand(opts),
		NewSeedUserCommand(opts),
	)
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// Backend session
// ─────────────────────────────────────────────────────────────────────────────

// session is one opened backend plus the command's output and logger.
type session struct {
	backend *backend.Backend
	out     *Output
	log     *logger.Logger
	slog    *slog.Logger
	clock   timeutil.Clock
}

// run opens the backend, calls fn and closes the backend. Errors returned
// by fn are written to the output before being returned.
func (o *RootOptions) run(cmd *cobra.Command, op string, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := &Output{Format: o.Format, Writer: cmd.OutOrStdout()}
	log, slogger := o.loggers(cmd.ErrOrStderr())
	log = log.With(logger.Operation(op))

	cfg, err := o.config()
	if err != nil {
		return out.Fail(&ExitError{Code: ExitCommandError, Message: "invalid configuration", Err: err})
	}

	log.Debug("opening backend", logger.String("backend", string(cfg.Store.Backend)))
	b, err := o.deps.Open(ctx, backend.FromConfig(cfg), slogger)
	if err != nil {
		return out.Fail(&ExitError{Code: ExitCommandError, Message: "open backend", Err: err})
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("close backend", logger.Err(err))
		}
	}()

	s := &session{backend: b, out: out, log: log, slog: slogger, clock: o.deps.Clock}
	if err := fn(ctx, s); err != nil {
		if Reported(err) {
			return err
		}
		log.Debug("command failed", logger.Err(err))
		return out.Fail(err)
	}
	return nil
}

// loggers builds the CLI logger and the slog logger handed to backends.
// Both stay quiet unless --verbose is set.
func (o *RootOptions) loggers(w io.Writer) (*logger.Logger, *slog.Logger) {
	level, slevel := logger.LevelWarn, slog.LevelWarn
	if o.Verbose {
		level, slevel = logger.LevelDebug, slog.LevelDebug
	}
	log := logger.New(logger.Options{Output: w, Level: level}).With(logger.Component("graphctl"))
	slogger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slevel}))
	return log, slogger
}

// config loads the environment and applies --backend and --dsn.
func (o *RootOptions) config() (*config.Config, error) {
	cfg := config.LoadEnv()
	if err := applyOverrides(cfg, o.Backend, o.DSN); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides points cfg at the requested backend. A one-shot command
// has no use for the notification store or for waiting on a cold backend.
func applyOverrides(cfg *config.Config, name, dsn string) error {
	if name != "" {
		cfg.Store.Backend = config.StoreBackend(strings.ToLower(name))
	}
	cfg.Store.StartupAttempts = 1
	cfg.Notifications.Backend = config.BackendMemory
	// Production guards are for long-running servers.
	cfg.App.Environment = config.EnvDevelopment

	if dsn == "" {
		return nil
	}
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		cfg.Database.URL = dsn
	case config.BackendSQLite:
		cfg.SQLite.Path = dsn
	case config.BackendNeo4j:
		cfg.Neo4j.URI = dsn
	case config.BackendRedis:
		ro, err := goredis.ParseURL(dsn)
		if err != nil {
			return fmt.Errorf("parse redis dsn: %w", err)
		}
		host, port, err := splitHostPort(ro.Addr)
		if err != nil {
			return err
		}
		cfg.Redis.Host, cfg.Redis.Port = host, port
		cfg.Redis.Password = ro.Password
		cfg.Redis.DB = ro.DB
	default:
		return fmt.Errorf("backend %q does not take a dsn", cfg.Store.Backend)
	}
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	i := strings.LastIndexByte(addr, ':')
	if i < 0 {
		return "", 0, fmt.Errorf("redis address %q has no port", addr)
	}
	var port int
	if _, err := fmt.Sscanf(addr[i+1:], "%d", &port); err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("redis address %q has an invalid port", addr)
	}
	return addr[:i], port, nil
}
