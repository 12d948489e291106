// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FOLLOW USER COMMAND
// Creates a directed follow edge and bumps both denormalized counters.
//
// The edge check, the stats reads and the write are separate store calls and
// no lock is held between them. Two concurrent follows of the same pair can
// both pass the edge check; each then writes old+1 from whatever stats it
// read, so the counters may end up incremented twice for one edge. The
// backing store may apply the write atomically, but the read-then-write
// window stays open.
// ══════════════════════════════════════════════════════════════════════════════

// FollowUserCommand contains the data to follow a user.
type FollowUserCommand struct {
	// FollowerID is the user who starts following.
	FollowerID string

	// FollowingID is the user being followed.
	FollowingID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate trims and validates both identifiers.
func (c FollowUserCommand) Validate() (follower, following social.UserID, err error) {
	return parsePair(c.FollowerID, c.FollowingID, true)
}

// FollowUserResult contains the counters after the follow.
type FollowUserResult struct {
	social.Counts

	// FollowedAt is the timestamp written on both edge directions.
	FollowedAt string `json:"followedAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// FollowUserHandler handles the FollowUserCommand.
type FollowUserHandler struct {
	repo           social.GraphRepository
	eventPublisher shared.EventPublisher
	clock          timeutil.Clock
	logger         *slog.Logger
}

// NewFollowUserHandler creates a new FollowUserHandler.
// eventPublisher may be nil.
func NewFollowUserHandler(
	repo social.GraphRepository,
	eventPublisher shared.EventPublisher,
	clock timeutil.Clock,
	logger *slog.Logger,
) *FollowUserHandler {
	if clock == nil {
		clock = timeutil.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FollowUserHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         logger.With("handler", "follow_user"),
	}
}

// Handle executes the follow command.
func (h *FollowUserHandler) Handle(ctx context.Context, cmd FollowUserCommand) (*FollowUserResult, error) {
	followerID, followingID, err := cmd.Validate()
	if err != nil {
		return nil, err
	}

	if err := requireUsers(ctx, h.repo, followerID, followingID); err != nil {
		return nil, err
	}

	exists, err := h.repo.EdgeExists(ctx, followerID, followingID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("follow %s -> %s: %w", followerID, followingID, shared.ErrAlreadyFollowing)
	}

	followerStats, followingStats, err := readPairStats(ctx, h.repo, followerID, followingID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	followedAt := timeutil.FormatISO(now)
	update, counts := social.PlanFollow(followerID, followingID, followerStats, followingStats, followedAt)

	if err := h.repo.WriteMultiPath(ctx, update); err != nil {
		return nil, err
	}

	h.logger.Debug("user followed",
		"follower_id", followerID,
		"following_id", followingID,
		"follower_count", counts.FollowerCount,
		"following_count", counts.FollowingCount,
	)

	event := shared.NewUserFollowedEvent(
		followerID.String(), followingID.String(), followedAt,
		counts.FollowerCount, counts.FollowingCount, now,
	)
	event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
	publish(h.logger, h.eventPublisher, event)

	return &FollowUserResult{Counts: counts, FollowedAt: followedAt}, nil
}
