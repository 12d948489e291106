// Package service holds process-wide infrastructure services that are
// constructed once at startup and shared by the HTTP layer and event handlers.
package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/armstrong-haulage/community-hub/internal/domain/notification"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

// IDGenerator produces notification identifiers.
type IDGenerator interface {
	GenerateID() string
}

// UUIDGenerator implements IDGenerator with random UUIDs.
type UUIDGenerator struct{}

// NewIDGenerator returns the default generator.
func NewIDGenerator() UUIDGenerator {
	return UUIDGenerator{}
}

// GenerateID implements IDGenerator.
func (UUIDGenerator) GenerateID() string {
	return uuid.New().String()
}

// ═══════════════════════════════════════════════════════════════════════════
// Notification manager
// ═══════════════════════════════════════════════════════════════════════════

// NotificationConfig configures retention.
type NotificationConfig struct {
	// TTL is how long a notification stays visible.
	TTL time.Duration
	// MaxPerUser caps stored notifications; the oldest are evicted first.
	MaxPerUser int
}

// DefaultNotificationConfig returns the production defaults.
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		TTL:        7 * 24 * time.Hour,
		MaxPerUser: 100,
	}
}

// AddParams describes a notification to store.
type AddParams struct {
	UserID  string
	Type    notification.NotificationType
	Title   string
	Message string
	Data    map[string]string
}

// NotificationManager applies TTL, read state and per-user caps on top of a
// notification.Store. Time comes from the injected clock only.
type NotificationManager struct {
	store     notification.Store
	clock     timeutil.Clock
	ids       IDGenerator
	config    NotificationConfig
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewNotificationManager creates a manager. publisher may be nil.
func NewNotificationManager(
	store notification.Store,
	clock timeutil.Clock,
	ids IDGenerator,
	config NotificationConfig,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *NotificationManager {
	if clock == nil {
		clock = timeutil.System()
	}
	if ids == nil {
		ids = NewIDGenerator()
	}
	defaults := DefaultNotificationConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.MaxPerUser <= 0 {
		config.MaxPerUser = defaults.MaxPerUser
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationManager{
		store:     store,
		clock:     clock,
		ids:       ids,
		config:    config,
		publisher: publisher,
		logger:    logger.With("component", "notification_manager"),
	}
}

// Add stores a new notification and evicts the oldest ones above the cap.
func (m *NotificationManager) Add(ctx context.Context, p AddParams) (*notification.Notification, error) {
	n, err := notification.NewNotification(notification.NewNotificationParams{
		ID:      notification.NotificationID(m.ids.GenerateID()),
		UserID:  p.UserID,
		Type:    p.Type,
		Title:   p.Title,
		Message: p.Message,
		Data:    p.Data,
		Now:     m.clock.Now(),
		TTL:     m.config.TTL,
	})
	if err != nil {
		return nil, err
	}

	if err := m.store.Save(ctx, n); err != nil {
		return nil, shared.StoreFailure("notification", "Add", err)
	}

	if _, err := m.live(ctx, n.UserID); err != nil {
		m.logger.Warn("failed to enforce notification cap", "user_id", n.UserID, "error", err)
	}

	if m.publisher != nil {
		event := shared.NewNotificationCreatedEvent(n.ID.String(), n.UserID.String(), n.Type.String(), n.CreatedAt)
		if err := m.publisher.Publish(event); err != nil {
			m.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
		}
	}
	return n, nil
}

// Notify adapts Add for event handlers.
func (m *NotificationManager) Notify(ctx context.Context, userID string, kind notification.NotificationType, title, message string, data map[string]string) error {
	_, err := m.Add(ctx, AddParams{UserID: userID, Type: kind, Title: title, Message: message, Data: data})
	return err
}

// List returns the user's live notifications, newest first.
func (m *NotificationManager) List(ctx context.Context, rawUserID string, unreadOnly bool) ([]*notification.Notification, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return nil, err
	}
	live, err := m.live(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !unreadOnly {
		return live, nil
	}
	out := make([]*notification.Notification, 0, len(live))
	for _, n := range live {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkRead marks one notification as read.
func (m *NotificationManager) MarkRead(ctx context.Context, rawUserID, id string) error {
	n, err := m.getLive(ctx, rawUserID, id)
	if err != nil {
		return err
	}
	if !n.MarkRead() {
		return nil
	}
	if err := m.store.Save(ctx, n); err != nil {
		return shared.StoreFailure("notification", "MarkRead", err)
	}
	return nil
}

// MarkAllRead marks every live notification as read and returns how many changed.
func (m *NotificationManager) MarkAllRead(ctx context.Context, rawUserID string) (int, error) {
	live, err := m.List(ctx, rawUserID, true)
	if err != nil {
		return 0, err
	}
	for _, n := range live {
		n.MarkRead()
		if err := m.store.Save(ctx, n); err != nil {
			return 0, shared.StoreFailure("notification", "MarkAllRead", err)
		}
	}
	return len(live), nil
}

// Delete removes one notification.
func (m *NotificationManager) Delete(ctx context.Context, rawUserID, id string) error {
	n, err := m.getLive(ctx, rawUserID, id)
	if err != nil {
		return err
	}
	if _, err := m.store.Delete(ctx, n.UserID, n.ID); err != nil {
		return shared.StoreFailure("notification", "Delete", err)
	}
	return nil
}

// UnreadCount returns the number of live unread notifications.
func (m *NotificationManager) UnreadCount(ctx context.Context, rawUserID string) (int, error) {
	unread, err := m.List(ctx, rawUserID, true)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

// PurgeExpired removes expired notifications for every user.
func (m *NotificationManager) PurgeExpired(ctx context.Context) (int, error) {
	users, err := m.store.Users(ctx)
	if err != nil {
		return 0, shared.StoreFailure("notification", "PurgeExpired", err)
	}
	now := m.clock.Now()
	total := 0
	for _, userID := range users {
		all, err := m.store.List(ctx, userID)
		if err != nil {
			return total, shared.StoreFailure("notification", "PurgeExpired", err)
		}
		var expired []notification.NotificationID
		for _, n := range all {
			if n.IsExpired(now) {
				expired = append(expired, n.ID)
			}
		}
		if len(expired) == 0 {
			continue
		}
		removed, err := m.store.Delete(ctx, userID, expired...)
		if err != nil {
			return total, shared.StoreFailure("notification", "PurgeExpired", err)
		}
		total += removed
	}
	return total, nil
}

// live loads a user's notifications, drops expired ones and anything above
// the cap, and returns the rest newest first.
func (m *NotificationManager) live(ctx context.Context, userID notification.RecipientID) ([]*notification.Notification, error) {
	all, err := m.store.List(ctx, userID)
	if err != nil {
		return nil, shared.StoreFailure("notification", "List", err)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	now := m.clock.Now()
	live := make([]*notification.Notification, 0, len(all))
	var drop []notification.NotificationID
	for _, n := range all {
		switch {
		case n.IsExpired(now):
			drop = append(drop, n.ID)
		case len(live) >= m.config.MaxPerUser:
			drop = append(drop, n.ID)
		default:
			live = append(live, n)
		}
	}

	if len(drop) > 0 {
		if _, err := m.store.Delete(ctx, userID, drop...); err != nil {
			return nil, shared.StoreFailure("notification", "Evict", err)
		}
	}
	return live, nil
}

func (m *NotificationManager) getLive(ctx context.Context, rawUserID, id string) (*notification.Notification, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return nil, err
	}
	n, err := m.store.Get(ctx, userID, notification.NotificationID(id))
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, shared.StoreFailure("notification", "Get", err)
	}
	if n.IsExpired(m.clock.Now()) {
		return nil, shared.ErrNotificationNotFound
	}
	return n, nil
}
