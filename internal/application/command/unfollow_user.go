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
// UNFOLLOW USER COMMAND
// Removes both directions of a follow edge and decrements both counters,
// never below zero. Same read-then-write window as FollowUserHandler.
// ══════════════════════════════════════════════════════════════════════════════

// UnfollowUserCommand contains the data to unfollow a user.
type UnfollowUserCommand struct {
	FollowerID    string
	FollowingID   string
	CorrelationID string
}

// Validate trims and validates both identifiers. Self-unfollow is not
// rejected here: a self edge cannot exist, so it fails as "not following".
func (c UnfollowUserCommand) Validate() (follower, following social.UserID, err error) {
	return parsePair(c.FollowerID, c.FollowingID, false)
}

// UnfollowUserResult contains the counters after the unfollow.
type UnfollowUserResult struct {
	social.Counts
}

// UnfollowUserHandler handles the UnfollowUserCommand.
type UnfollowUserHandler struct {
	repo           social.GraphRepository
	eventPublisher shared.EventPublisher
	clock          timeutil.Clock
	logger         *slog.Logger
}

// NewUnfollowUserHandler creates a new UnfollowUserHandler.
func NewUnfollowUserHandler(
	repo social.GraphRepository,
	eventPublisher shared.EventPublisher,
	clock timeutil.Clock,
	logger *slog.Logger,
) *UnfollowUserHandler {
	if clock == nil {
		clock = timeutil.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UnfollowUserHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         logger.With("handler", "unfollow_user"),
	}
}

// Handle executes the unfollow command.
func (h *UnfollowUserHandler) Handle(ctx context.Context, cmd UnfollowUserCommand) (*UnfollowUserResult, error) {
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
	if !exists {
		return nil, fmt.Errorf("unfollow %s -> %s: %w", followerID, followingID, shared.ErrNotFollowing)
	}

	followerStats, followingStats, err := readPairStats(ctx, h.repo, followerID, followingID)
	if err != nil {
		return nil, err
	}

	update, counts := social.PlanUnfollow(followerID, followingID, followerStats, followingStats)
	if err := h.repo.WriteMultiPath(ctx, update); err != nil {
		return nil, err
	}

	h.logger.Debug("user unfollowed",
		"follower_id", followerID,
		"following_id", followingID,
		"follower_count", counts.FollowerCount,
		"following_count", counts.FollowingCount,
	)

	event := shared.NewUserUnfollowedEvent(
		followerID.String(), followingID.String(),
		counts.FollowerCount, counts.FollowingCount, h.clock.Now(),
	)
	event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
	publish(h.logger, h.eventPublisher, event)

	return &UnfollowUserResult{Counts: counts}, nil
}
