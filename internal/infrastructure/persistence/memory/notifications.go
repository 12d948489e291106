package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/armstrong-haulage/community-hub/internal/domain/notification"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
)

// NotificationBacking is the map a NotificationStore keeps its data in.
type NotificationBacking map[notification.RecipientID]map[notification.NotificationID]*notification.Notification

// NotificationStore keeps notifications in process memory.
type NotificationStore struct {
	mu   sync.RWMutex
	data NotificationBacking
}

// Compile-time interface check.
var _ notification.Store = (*NotificationStore)(nil)

// NewNotificationStore creates a store over backing; nil allocates a fresh map.
func NewNotificationStore(backing NotificationBacking) *NotificationStore {
	if backing == nil {
		backing = make(NotificationBacking)
	}
	return &NotificationStore{data: backing}
}

// Save implements notification.Store.
func (s *NotificationStore) Save(ctx context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.data[n.UserID]
	if !ok {
		byID = make(map[notification.NotificationID]*notification.Notification)
		s.data[n.UserID] = byID
	}
	byID[n.ID] = n.Clone()
	return nil
}

// List implements notification.Store.
func (s *NotificationStore) List(ctx context.Context, userID notification.RecipientID) ([]*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*notification.Notification, 0, len(s.data[userID]))
	for _, n := range s.data[userID] {
		out = append(out, n.Clone())
	}
	return out, nil
}

// Get implements notification.Store.
func (s *NotificationStore) Get(ctx context.Context, userID notification.RecipientID, id notification.NotificationID) (*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.data[userID][id]
	if !ok {
		return nil, shared.ErrNotificationNotFound
	}
	return n.Clone(), nil
}

// Delete implements notification.Store.
func (s *NotificationStore) Delete(ctx context.Context, userID notification.RecipientID, ids ...notification.NotificationID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.data[userID]
	removed := 0
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			delete(byID, id)
			removed++
		}
	}
	if len(byID) == 0 {
		delete(s.data, userID)
	}
	return removed, nil
}

// Users implements notification.Store.
func (s *NotificationStore) Users(ctx context.Context) ([]notification.RecipientID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]notification.RecipientID, 0, len(s.data))
	for id := range s.data {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
