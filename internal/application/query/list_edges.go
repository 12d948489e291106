package query

import (
	"context"
	"fmt"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST EDGES QUERY
// Список подписчиков или подписок пользователя: сначала новые.
// ══════════════════════════════════════════════════════════════════════════════

// EdgeDirection выбирает множество рёбер.
type EdgeDirection string

const (
	DirectionFollowers EdgeDirection = "followers"
	DirectionFollowing EdgeDirection = "following"
)

// ListEdgesQuery содержит параметры запроса.
type ListEdgesQuery struct {
	UserID    string
	Direction EdgeDirection
	Offset    int
	Limit     int
}

// EdgeListDTO - страница рёбер.
type EdgeListDTO struct {
	UserID    string        `json:"userId"`
	Direction EdgeDirection `json:"direction"`
	Total     int           `json:"total"`
	Offset    int           `json:"offset"`
	Limit     int           `json:"limit"`
	Edges     []social.Edge `json:"edges"`
}

// ListEdgesHandler обрабатывает ListEdgesQuery.
type ListEdgesHandler struct {
	repo social.Repository
}

// NewListEdgesHandler создаёт обработчик.
func NewListEdgesHandler(repo social.Repository) *ListEdgesHandler {
	return &ListEdgesHandler{repo: repo}
}

// Handle выполняет запрос.
func (h *ListEdgesHandler) Handle(ctx context.Context, q ListEdgesQuery) (*EdgeListDTO, error) {
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

	var edges []social.Edge
	switch q.Direction {
	case DirectionFollowers:
		edges, err = h.repo.ListFollowers(ctx, userID)
	case DirectionFollowing:
		edges, err = h.repo.ListFollowing(ctx, userID)
	default:
		return nil, shared.NewDomainError("social", "ListEdges", shared.ErrInvalidInput, "unknown edge direction")
	}
	if err != nil {
		return nil, err
	}

	page := shared.NewPagination(q.Offset, q.Limit)
	start, end := page.Window(len(edges))

	return &EdgeListDTO{
		UserID:    userID.String(),
		Direction: q.Direction,
		Total:     len(edges),
		Offset:    page.Offset,
		Limit:     page.Limit,
		Edges:     edges[start:end],
	}, nil
}
