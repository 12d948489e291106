package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/armstrong-haulage/community-hub/internal/domain/notification"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
)

// NotificationStore implements notification.Store with one hash per
// recipient: field is the notification ID, value its JSON.
type NotificationStore struct {
	client redis.UniversalClient
	prefix string
}

// Compile-time interface check.
var _ notification.Store = (*NotificationStore)(nil)

// NewNotificationStore creates a NotificationStore. keyPrefix namespaces all
// keys; empty means DefaultKeyPrefix.
func NewNotificationStore(client redis.UniversalClient, keyPrefix string) *NotificationStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &NotificationStore{client: client, prefix: keyPrefix + notificationKeyspace}
}

// Save implements notification.Store.
func (s *NotificationStore) Save(ctx context.Context, n *notification.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := s.client.HSet(ctx, s.key(n.UserID), n.ID.String(), data).Err(); err != nil {
		return fmt.Errorf("redis: save notification %s: %w", n.ID, err)
	}
	return nil
}

// List implements notification.Store.
func (s *NotificationStore) List(ctx context.Context, userID notification.RecipientID) ([]*notification.Notification, error) {
	raw, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list notifications for %s: %w", userID, err)
	}
	out := make([]*notification.Notification, 0, len(raw))
	for id, data := range raw {
		n, err := decodeNotification(data)
		if err != nil {
			return nil, fmt.Errorf("notification %s: %w", id, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Get implements notification.Store.
func (s *NotificationStore) Get(ctx context.Context, userID notification.RecipientID, id notification.NotificationID) (*notification.Notification, error) {
	data, err := s.client.HGet(ctx, s.key(userID), id.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get notification %s: %w", id, err)
	}
	return decodeNotification(data)
}

// Delete implements notification.Store.
func (s *NotificationStore) Delete(ctx context.Context, userID notification.RecipientID, ids ...notification.NotificationID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	fields := make([]string, len(ids))
	for i, id := range ids {
		fields[i] = id.String()
	}
	n, err := s.client.HDel(ctx, s.key(userID), fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: delete notifications for %s: %w", userID, err)
	}
	return int(n), nil
}

// Users implements notification.Store.
func (s *NotificationStore) Users(ctx context.Context) ([]notification.RecipientID, error) {
	var out []notification.RecipientID
	iter := s.client.Scan(ctx, 0, EscapeGlob(s.prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		out = append(out, notification.RecipientID(strings.TrimPrefix(iter.Val(), s.prefix)))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan notifications: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *NotificationStore) key(userID notification.RecipientID) string {
	return s.prefix + userID.String()
}

func decodeNotification(data string) (*notification.Notification, error) {
	var n notification.Notification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return &n, nil
}
