// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS QUERY
// Возвращает счётчики профиля и признак "зритель подписан на пользователя".
// Если узла stats нет, он создаётся с нулями (best effort: ошибка записи
// только логируется).
// ══════════════════════════════════════════════════════════════════════════════

// GetUserStatsQuery содержит параметры запроса.
type GetUserStatsQuery struct {
	// UserID - чей профиль смотрят.
	UserID string

	// ViewerID - кто смотрит (опционально).
	ViewerID string
}

// Validate проверяет параметры. Пустой ViewerID означает анонимного зрителя.
func (q GetUserStatsQuery) Validate() (user, viewer social.UserID, err error) {
	user, err = shared.NewUserID(q.UserID)
	if err != nil {
		return "", "", fmt.Errorf("userId: %w", err)
	}
	// Пробельный currentUserId трактуется как отсутствующий.
	if strings.TrimSpace(q.ViewerID) == "" {
		return user, "", nil
	}
	viewer, err = shared.NewUserID(q.ViewerID)
	if err != nil {
		return "", "", fmt.Errorf("currentUserId: %w", err)
	}
	return user, viewer, nil
}

// UserStatsDTO - ответ запроса.
type UserStatsDTO struct {
	UserID      string       `json:"userId"`
	Stats       social.Stats `json:"stats"`
	IsFollowing bool         `json:"isFollowing"`
}

// GetUserStatsHandler обрабатывает GetUserStatsQuery.
type GetUserStatsHandler struct {
	repo   social.GraphRepository
	logger *slog.Logger
}

// NewGetUserStatsHandler создаёт обработчик.
func NewGetUserStatsHandler(repo social.GraphRepository, logger *slog.Logger) *GetUserStatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetUserStatsHandler{
		repo:   repo,
		logger: logger.With("handler", "get_user_stats"),
	}
}

// Handle выполняет запрос.
func (h *GetUserStatsHandler) Handle(ctx context.Context, q GetUserStatsQuery) (*UserStatsDTO, error) {
	userID, viewerID, err := q.Validate()
	if err != nil {
		return nil, err
	}

	ok, err := h.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, shared.ErrUserNotFound)
	}

	hasViewer := !viewerID.IsEmpty() && viewerID != userID
	if hasViewer {
		ok, err = h.repo.UserExists(ctx, viewerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("viewer %s: %w", viewerID, shared.ErrViewerNotFound)
		}
	}

	// Отсутствующие счётчики создаются только после проверки обоих участников.
	stats, found, err := h.repo.GetUserStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		h.initStats(ctx, userID)
	}

	dto := &UserStatsDTO{UserID: userID.String(), Stats: stats}
	if !hasViewer {
		return dto, nil
	}

	dto.IsFollowing, err = h.repo.EdgeExists(ctx, viewerID, userID)
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// initStats записывает нулевые счётчики при первом чтении.
func (h *GetUserStatsHandler) initStats(ctx context.Context, userID social.UserID) {
	if err := h.repo.WriteMultiPath(ctx, social.PlanStatsInit(userID)); err != nil {
		h.logger.Warn("failed to initialize stats", "user_id", userID, "error", err)
	}
}

