package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
)

// parsePair validates a follower/following pair.
func parsePair(rawFollower, rawFollowing string, forbidSelf bool) (social.UserID, social.UserID, error) {
	follower, err := shared.NewUserID(rawFollower)
	if err != nil {
		return "", "", fmt.Errorf("followerId: %w", err)
	}
	following, err := shared.NewUserID(rawFollowing)
	if err != nil {
		return "", "", fmt.Errorf("followingId: %w", err)
	}
	if forbidSelf && follower == following {
		return "", "", shared.ErrSelfFollow
	}
	return follower, following, nil
}

// requireUsers fails with a not-found error for the first absent user.
func requireUsers(ctx context.Context, repo social.GraphRepository, ids ...social.UserID) error {
	for _, id := range ids {
		ok, err := repo.UserExists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %s: %w", id, shared.ErrUserNotFound)
		}
	}
	return nil
}

// readPairStats reads both users' counters, in follower, following order.
func readPairStats(ctx context.Context, repo social.GraphRepository, followerID, followingID social.UserID) (social.StatsSnapshot, social.StatsSnapshot, error) {
	fs, found, err := repo.GetUserStats(ctx, followerID)
	if err != nil {
		return social.StatsSnapshot{}, social.StatsSnapshot{}, err
	}
	follower := social.StatsSnapshot{Stats: fs, Found: found}

	gs, found, err := repo.GetUserStats(ctx, followingID)
	if err != nil {
		return social.StatsSnapshot{}, social.StatsSnapshot{}, err
	}
	following := social.StatsSnapshot{Stats: gs, Found: found}

	return follower, following, nil
}

// publish sends an event after a committed write. Failures are logged only:
// the graph change has already happened.
func publish(logger *slog.Logger, publisher shared.EventPublisher, event shared.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(event); err != nil {
		logger.Warn("failed to publish event",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
	}
}
