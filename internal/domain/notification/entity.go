// Package notification содержит доменную модель внутренних уведомлений
// сообщества: новые подписчики, вехи просмотров профиля, системные сообщения.
// Уведомления живут ограниченное время (TTL) и хранятся в подменяемом хранилище.
package notification

import (
	"strings"
	"time"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationID представляет уникальный идентификатор уведомления.
type NotificationID string

// IsValid проверяет, что ID не пустой.
func (id NotificationID) IsValid() bool {
	return len(id) > 0
}

// String возвращает строковое представление ID.
func (id NotificationID) String() string {
	return string(id)
}

// RecipientID: получатель уведомления (идентификатор пользователя).
type RecipientID = shared.UserID

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// NotificationType определяет тип уведомления.
type NotificationType string

const (
	// TypeNewFollower - на пользователя подписались.
	TypeNewFollower NotificationType = "new_follower"

	// TypeViewMilestone - профиль набрал круглое число просмотров.
	TypeViewMilestone NotificationType = "view_milestone"

	// TypeSystem - служебное сообщение.
	TypeSystem NotificationType = "system"
)

// IsValid проверяет, что тип известен.
func (t NotificationType) IsValid() bool {
	switch t {
	case TypeNewFollower, TypeViewMilestone, TypeSystem:
		return true
	}
	return false
}

// String возвращает строковое представление типа.
func (t NotificationType) String() string {
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Notification: уведомление пользователя.
type Notification struct {
	ID        NotificationID    `json:"id"`
	UserID    RecipientID       `json:"userId"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// IsExpired сообщает, истёк ли срок жизни уведомления к моменту now.
func (n *Notification) IsExpired(now time.Time) bool {
	return !n.ExpiresAt.IsZero() && !now.Before(n.ExpiresAt)
}

// MarkRead помечает уведомление прочитанным. Возвращает false, если оно уже прочитано.
func (n *Notification) MarkRead() bool {
	if n.Read {
		return false
	}
	n.Read = true
	return true
}

// Clone возвращает независимую копию.
func (n *Notification) Clone() *Notification {
	c := *n
	if n.Data != nil {
		c.Data = make(map[string]string, len(n.Data))
		for k, v := range n.Data {
			c.Data[k] = v
		}
	}
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewNotificationParams содержит параметры для создания уведомления.
type NewNotificationParams struct {
	ID      NotificationID
	UserID  string
	Type    NotificationType
	Title   string
	Message string
	Data    map[string]string
	Now     time.Time
	TTL     time.Duration
}

// NewNotification создаёт новое уведомление с валидацией.
func NewNotification(p NewNotificationParams) (*Notification, error) {
	if !p.ID.IsValid() {
		return nil, shared.WrapError("notification", "Create", shared.ErrInvalidInput, "notification id is required", nil)
	}
	userID, err := shared.NewUserID(p.UserID)
	if err != nil {
		return nil, err
	}
	if !p.Type.IsValid() {
		return nil, shared.NewDomainError("notification", "Create", shared.ErrInvalidInput, "unknown notification type")
	}
	if strings.TrimSpace(p.Message) == "" {
		return nil, shared.ErrInvalidNotification
	}

	n := &Notification{
		ID:        p.ID,
		UserID:    userID,
		Type:      p.Type,
		Title:     p.Title,
		Message:   p.Message,
		Data:      p.Data,
		CreatedAt: p.Now.UTC(),
	}
	if p.TTL > 0 {
		n.ExpiresAt = n.CreatedAt.Add(p.TTL)
	}
	return n, nil
}
