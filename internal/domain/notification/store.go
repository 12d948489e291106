package notification

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE INTERFACE
// Хранилище уведомлений: ключом служит пользователь, значением его уведомления.
// Реализации: память процесса и Redis (infrastructure/persistence).
// Логика TTL и лимитов живёт в сервисе, хранилище её не знает.
// ══════════════════════════════════════════════════════════════════════════════

// Store определяет операции хранилища уведомлений.
type Store interface {
	// Save создаёт или заменяет уведомление.
	Save(ctx context.Context, n *Notification) error

	// List возвращает все уведомления пользователя, включая истёкшие.
	List(ctx context.Context, userID RecipientID) ([]*Notification, error)

	// Get возвращает уведомление или shared.ErrNotificationNotFound.
	Get(ctx context.Context, userID RecipientID, id NotificationID) (*Notification, error)

	// Delete удаляет уведомления. Возвращает число удалённых.
	Delete(ctx context.Context, userID RecipientID, ids ...NotificationID) (int, error)

	// Users возвращает пользователей, у которых есть уведомления.
	Users(ctx context.Context) ([]RecipientID, error)
}
