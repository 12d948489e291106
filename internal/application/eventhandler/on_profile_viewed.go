package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/armstrong-haulage/community-hub/internal/domain/notification"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROFILE VIEWED HANDLER
// Поздравляет пользователя, когда счётчик просмотров достигает вехи.
// Счётчик не транзакционный, поэтому при гонке веха может быть пропущена
// или отмечена дважды.
// ═══════════════════════════════════════════════════════════════════════════

// DefaultViewMilestones: вехи просмотров профиля.
var DefaultViewMilestones = []int64{100, 500, 1000, 5000, 10000}

// OnProfileViewedHandler обрабатывает событие просмотра профиля.
type OnProfileViewedHandler struct {
	notifier   Notifier
	milestones map[int64]struct{}
	logger     *slog.Logger
}

// NewOnProfileViewedHandler создаёт обработчик.
func NewOnProfileViewedHandler(notifier Notifier, milestones []int64, logger *slog.Logger) *OnProfileViewedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if milestones == nil {
		milestones = DefaultViewMilestones
	}
	set := make(map[int64]struct{}, len(milestones))
	for _, m := range milestones {
		set[m] = struct{}{}
	}
	return &OnProfileViewedHandler{
		notifier:   notifier,
		milestones: set,
		logger:     logger.With("handler", "on_profile_viewed"),
	}
}

// Handle реализует shared.EventHandler.
func (h *OnProfileViewedHandler) Handle(event shared.Event) error {
	viewed, ok := event.(shared.ProfileViewedEvent)
	if !ok {
		return nil
	}
	if _, hit := h.milestones[viewed.Views]; !hit {
		return nil
	}

	err := h.notifier.Notify(context.Background(),
		viewed.UserID,
		notification.TypeViewMilestone,
		"Profile milestone",
		fmt.Sprintf("Your profile reached %d views", viewed.Views),
		map[string]string{"views": fmt.Sprintf("%d", viewed.Views)},
	)
	if err != nil {
		h.logger.Error("failed to create milestone notification", "user_id", viewed.UserID, "error", err)
		return err
	}
	return nil
}
