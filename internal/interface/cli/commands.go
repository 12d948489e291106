package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/armstrong-haulage/community-hub/internal/application/command"
	"github.com/armstrong-haulage/community-hub/internal/application/query"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
	"github.com/armstrong-haulage/community-hub/pkg/logger"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// READ COMMANDS
// ═══════════════════════════════════════════════════════════════════════════

// NewStatsCommand creates "graphctl stats <userId> [--viewer id]".
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var viewer string

	cmd := &cobra.Command{
		Use:   "stats <userId>",
		Short: "Show follower, following and view counts",
		Long: `Show a user's counters. With --viewer, also report whether the
viewer follows the user. Missing counters are initialised, as on the API.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "stats", func(ctx context.Context, s *session) error {
				h := query.NewGetUserStatsHandler(s.backend.Repository, s.slog)
				dto, err := h.Handle(ctx, query.GetUserStatsQuery{UserID: args[0], ViewerID: viewer})
				if err != nil {
					return err
				}
				return s.out.Success(dto, func(w io.Writer) {
					fmt.Fprintf(w, "%s: followers=%d following=%d views=%d\n",
						dto.UserID, dto.Stats.Followers, dto.Stats.Following, dto.Stats.Views)
					if viewer != "" {
						fmt.Fprintf(w, "followed by %s: %t\n", viewer, dto.IsFollowing)
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&viewer, "viewer", "", "report whether this user follows <userId>")
	return cmd
}

// NewListEdgesCommand creates "graphctl followers <userId>" or
// "graphctl following <userId>", newest edges first.
func NewListEdgesCommand(rootOpts *RootOptions, direction query.EdgeDirection) *cobra.Command {
	def := shared.DefaultPagination()
	var offset, limit int

	cmd := &cobra.Command{
		Use:   string(direction) + " <userId>",
		Short: "List a user's " + string(direction) + ", newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "list_"+string(direction), func(ctx context.Context, s *session) error {
				h := query.NewListEdgesHandler(s.backend.Repository)
				dto, err := h.Handle(ctx, query.ListEdgesQuery{
					UserID:    args[0],
					Direction: direction,
					Offset:    offset,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				return s.out.Success(dto, func(w io.Writer) {
					writeEdges(w, dto, s.clock.Now())
				})
			})
		},
	}

	cmd.Flags().IntVar(&offset, "offset", def.Offset, "skip this many edges")
	cmd.Flags().IntVar(&limit, "limit", def.Limit, "show at most this many edges")
	return cmd
}

func writeEdges(w io.Writer, dto *query.EdgeListDTO, now time.Time) {
	fmt.Fprintf(w, "%s %s: %d total, showing %d from offset %d\n",
		dto.UserID, dto.Direction, dto.Total, len(dto.Edges), dto.Offset)
	for _, e := range dto.Edges {
		when := "unknown"
		if t, err := timeutil.ParseISO(e.FollowedAt); err == nil {
			when = timeutil.TimeAgo(t, now)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", e.UserID, e.FollowedAt, when)
	}
}

// auditResult is the JSON form of an audit.
type auditResult struct {
	*social.Audit
	Consistent bool `json:"consistent"`
}

// NewAuditCommand creates "graphctl audit <userId>".
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <userId>",
		Short: "Compare a user's counters with the stored edges",
		Long: `Compare stats/followers and stats/following with the edges actually
stored, and list edges whose mirror direction is missing. Nothing is
repaired. Exits 1 when drift is found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "audit", func(ctx context.Context, s *session) error {
				audit, err := query.NewAuditUserHandler(s.backend.Repository).Handle(ctx, query.AuditUserQuery{UserID: args[0]})
				if err != nil {
					return err
				}
				consistent := audit.Consistent()
				err = s.out.Success(auditResult{Audit: audit, Consistent: consistent}, func(w io.Writer) {
					writeAudit(w, audit)
				})
				if err != nil {
					return err
				}
				if !consistent {
					return &ExitError{Code: ExitFailure, Message: "audit found drift", reported: true}
				}
				return nil
			})
		},
	}
}

func writeAudit(w io.Writer, a *social.Audit) {
	fmt.Fprintf(w, "user %s\n", a.UserID)
	if !a.StatsPresent {
		fmt.Fprintln(w, "  stats: missing")
	}
	fmt.Fprintf(w, "  followers: stored=%d actual=%d drift=%+d\n", a.Stats.Followers, a.ActualFollowers, a.FollowersDrift)
	fmt.Fprintf(w, "  following: stored=%d actual=%d drift=%+d\n", a.Stats.Following, a.ActualFollowing, a.FollowingDrift)
	for _, p := range a.Asymmetric {
		fmt.Fprintf(w, "  asymmetric edge: %s\n", p)
	}
	if a.Consistent() {
		fmt.Fprintln(w, "  consistent")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// WRITE COMMANDS
// ═══════════════════════════════════════════════════════════════════════════

// NewFollowCommand creates "graphctl follow <followerId> <followingId>".
func NewFollowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <followerId> <followingId>",
		Short: "Make one user follow another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "follow", func(ctx context.Context, s *session) error {
				h := command.NewFollowUserHandler(s.backend.Repository, nil, s.clock, s.slog)
				res, err := h.Handle(ctx, command.FollowUserCommand{FollowerID: args[0], FollowingID: args[1]})
				if err != nil {
					return err
				}
				s.log.Info("followed", logger.FollowerID(args[0]), logger.FollowingID(args[1]))
				return s.out.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "%s now follows %s (followers of %s: %d, %s follows: %d)\n",
						args[0], args[1], args[1], res.FollowerCount, args[0], res.FollowingCount)
				})
			})
		},
	}
}

// NewUnfollowCommand creates "graphctl unfollow <followerId> <followingId>".
func NewUnfollowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unfollow <followerId> <followingId>",
		Short: "Remove a follow edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "unfollow", func(ctx context.Context, s *session) error {
				h := command.NewUnfollowUserHandler(s.backend.Repository, nil, s.clock, s.slog)
				res, err := h.Handle(ctx, command.UnfollowUserCommand{FollowerID: args[0], FollowingID: args[1]})
				if err != nil {
					return err
				}
				s.log.Info("unfollowed", logger.FollowerID(args[0]), logger.FollowingID(args[1]))
				return s.out.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "%s no longer follows %s (followers of %s: %d, %s follows: %d)\n",
						args[0], args[1], args[1], res.FollowerCount, args[0], res.FollowingCount)
				})
			})
		},
	}
}

// NewViewCommand creates "graphctl view <userId>".
func NewViewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view <userId>",
		Short: "Record one profile view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "view", func(ctx context.Context, s *session) error {
				h := command.NewRecordViewHandler(s.backend.Repository, nil, s.clock, s.slog)
				res, err := h.Handle(ctx, command.RecordViewCommand{UserID: args[0]})
				if err != nil {
					return err
				}
				return s.out.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "%s: views=%d\n", args[0], res.Views)
				})
			})
		},
	}
}

// seedResult is printed by seed-user.
type seedResult struct {
	UserID    string `json:"userId"`
	CreatedAt string `json:"createdAt"`
}

// NewSeedUserCommand creates "graphctl seed-user <userId>".
func NewSeedUserCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-user <userId>",
		Short: "Create a user record for local testing",
		Long: `Create users/<userId>/profile/createdAt so the user exists for
follow and view. Counters are left to be initialised on first use.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "seed_user", func(ctx context.Context, s *session) error {
				res, err := seedUser(ctx, s.backend.Repository, s.clock, args[0])
				if err != nil {
					return err
				}
				s.log.Info("user seeded", logger.UserID(res.UserID))
				return s.out.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "created %s at %s\n", res.UserID, res.CreatedAt)
				})
			})
		},
	}
}

func seedUser(ctx context.Context, repo social.GraphRepository, clock timeutil.Clock, raw string) (*seedResult, error) {
	id, err := shared.NewUserID(raw)
	if err != nil {
		return nil, fmt.Errorf("userId: %w", err)
	}
	exists, err := repo.UserExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("user %s: %w", id, shared.ErrUserExists)
	}
	createdAt := timeutil.FormatISO(clock.Now())
	if err := repo.WriteMultiPath(ctx, social.PlanRegister(id, createdAt)); err != nil {
		return nil, err
	}
	return &seedResult{UserID: id.String(), CreatedAt: createdAt}, nil
}
