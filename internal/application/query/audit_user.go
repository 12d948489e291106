package query

import (
	"context"
	"fmt"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT USER QUERY
// Сверяет счётчики с фактическими рёбрами и ищет несимметричные рёбра.
// Только чтение: расхождение фиксируется в отчёте, но не исправляется.
// ══════════════════════════════════════════════════════════════════════════════

// AuditUserQuery содержит параметры сверки.
type AuditUserQuery struct {
	UserID string
}

// AuditUserHandler обрабатывает AuditUserQuery.
type AuditUserHandler struct {
	repo social.Repository
}

// NewAuditUserHandler создаёт обработчик.
func NewAuditUserHandler(repo social.Repository) *AuditUserHandler {
	return &AuditUserHandler{repo: repo}
}

// Handle выполняет сверку.
func (h *AuditUserHandler) Handle(ctx context.Context, q AuditUserQuery) (*social.Audit, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, fmt.Errorf("userId: %w", err)
	}

	ok, err := h.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, shared.ErrUserNotFound)
	}

	stats, found, err := h.repo.GetUserStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	followers, err := h.repo.ListFollowers(ctx, userID)
	if err != nil {
		return nil, err
	}
	following, err := h.repo.ListFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}

	audit := &social.Audit{
		UserID:          userID,
		Stats:           stats,
		StatsPresent:    found,
		ActualFollowers: int64(len(followers)),
		ActualFollowing: int64(len(following)),
		FollowersDrift:  stats.Followers - int64(len(followers)),
		FollowingDrift:  stats.Following - int64(len(following)),
		Asymmetric:      []string{},
	}

	// Входящее ребро follower → user должно быть и в following подписчика.
	for _, e := range followers {
		ok, err := h.repo.EdgeExists(ctx, e.UserID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			audit.Asymmetric = append(audit.Asymmetric, social.FollowersPath(userID, e.UserID))
		}
	}

	// Исходящее ребро user → other должно быть и в followers другого.
	for _, e := range following {
		theirs, err := h.repo.ListFollowers(ctx, e.UserID)
		if err != nil {
			return nil, err
		}
		if !containsEdge(theirs, userID) {
			audit.Asymmetric = append(audit.Asymmetric, social.FollowingPath(userID, e.UserID))
		}
	}

	return audit, nil
}

func containsEdge(edges []social.Edge, id social.UserID) bool {
	for _, e := range edges {
		if e.UserID == id {
			return true
		}
	}
	return false
}
