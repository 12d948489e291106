// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/armstrong-haulage/community-hub/internal/domain/notification"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON USER FOLLOWED HANDLER
// Создаёт уведомление "новый подписчик" для того, на кого подписались.
// Ошибка уведомления не откатывает подписку: событие публикуется уже
// после записи в граф.
// ═══════════════════════════════════════════════════════════════════════════

// Notifier: то, что умеет сохранить уведомление пользователю.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind notification.NotificationType, title, message string, data map[string]string) error
}

// OnUserFollowedHandler обрабатывает событие подписки.
type OnUserFollowedHandler struct {
	notifier Notifier
	enabled  func(recipientID string) bool
	logger   *slog.Logger
}

// NewOnUserFollowedHandler создаёт обработчик. enabled опрашивается на каждое
// событие с id получателя (feature flag с rollout по пользователям);
// nil означает "всегда включено".
func NewOnUserFollowedHandler(notifier Notifier, enabled func(recipientID string) bool, logger *slog.Logger) *OnUserFollowedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if enabled == nil {
		enabled = func(string) bool { return true }
	}
	return &OnUserFollowedHandler{
		notifier: notifier,
		enabled:  enabled,
		logger:   logger.With("handler", "on_user_followed"),
	}
}

// Handle обрабатывает событие подписки.
// Реализует интерфейс shared.EventHandler.
func (h *OnUserFollowedHandler) Handle(event shared.Event) error {
	followed, ok := event.(shared.UserFollowedEvent)
	if !ok {
		h.logger.Warn("received non-UserFollowedEvent", "event_type", event.EventType())
		return nil
	}
	if !h.enabled(followed.FollowingID) {
		return nil
	}

	err := h.notifier.Notify(context.Background(),
		followed.FollowingID,
		notification.TypeNewFollower,
		"New follower",
		fmt.Sprintf("%s started following you", followed.FollowerID),
		map[string]string{
			"followerId": followed.FollowerID,
			"followedAt": followed.FollowedAt,
		},
	)
	if err != nil {
		h.logger.Error("failed to create follower notification",
			"follower_id", followed.FollowerID,
			"following_id", followed.FollowingID,
			"error", err,
		)
		return err
	}
	return nil
}
