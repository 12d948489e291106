package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents a committed change to the social graph.
const (
	// Social events
	EventUserFollowed   EventType = "social.user_followed"
	EventUserUnfollowed EventType = "social.user_unfollowed"
	EventProfileViewed  EventType = "social.profile_viewed"

	// Notification events
	EventNotificationCreated EventType = "notification.created"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at.UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Social Events
// ═══════════════════════════════════════════════════════════════════════════

// UserFollowedEvent is emitted after a follow edge was written.
type UserFollowedEvent struct {
	BaseEvent
	FollowerID     string `json:"follower_id"`
	FollowingID    string `json:"following_id"`
	FollowedAt     string `json:"followed_at"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
}

// Payload implements Event interface.
func (e UserFollowedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"follower_id":     e.FollowerID,
		"following_id":    e.FollowingID,
		"followed_at":     e.FollowedAt,
		"follower_count":  e.FollowerCount,
		"following_count": e.FollowingCount,
	}
}

// NewUserFollowedEvent creates a new UserFollowedEvent. The aggregate is the followed user.
func NewUserFollowedEvent(followerID, followingID, followedAt string, followerCount, followingCount int64, at time.Time) UserFollowedEvent {
	return UserFollowedEvent{
		BaseEvent:      NewBaseEvent(EventUserFollowed, followingID, at),
		FollowerID:     followerID,
		FollowingID:    followingID,
		FollowedAt:     followedAt,
		FollowerCount:  followerCount,
		FollowingCount: followingCount,
	}
}

// UserUnfollowedEvent is emitted after a follow edge was removed.
type UserUnfollowedEvent struct {
	BaseEvent
	FollowerID     string `json:"follower_id"`
	FollowingID    string `json:"following_id"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
}

// Payload implements Event interface.
func (e UserUnfollowedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"follower_id":     e.FollowerID,
		"following_id":    e.FollowingID,
		"follower_count":  e.FollowerCount,
		"following_count": e.FollowingCount,
	}
}

// NewUserUnfollowedEvent creates a new UserUnfollowedEvent.
func NewUserUnfollowedEvent(followerID, followingID string, followerCount, followingCount int64, at time.Time) UserUnfollowedEvent {
	return UserUnfollowedEvent{
		BaseEvent:      NewBaseEvent(EventUserUnfollowed, followingID, at),
		FollowerID:     followerID,
		FollowingID:    followingID,
		FollowerCount:  followerCount,
		FollowingCount: followingCount,
	}
}

// ProfileViewedEvent is emitted after a profile view was counted.
type ProfileViewedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Views  int64  `json:"views"`
}

// Payload implements Event interface.
func (e ProfileViewedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"views":   e.Views,
	}
}

// NewProfileViewedEvent creates a new ProfileViewedEvent.
func NewProfileViewedEvent(userID string, views int64, at time.Time) ProfileViewedEvent {
	return ProfileViewedEvent{
		BaseEvent: NewBaseEvent(EventProfileViewed, userID, at),
		UserID:    userID,
		Views:     views,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Notification Events
// ═══════════════════════════════════════════════════════════════════════════

// NotificationCreatedEvent is emitted when a notification is stored for a user.
type NotificationCreatedEvent struct {
	BaseEvent
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Kind           string `json:"kind"`
}

// Payload implements Event interface.
func (e NotificationCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"notification_id": e.NotificationID,
		"user_id":         e.UserID,
		"kind":            e.Kind,
	}
}

// NewNotificationCreatedEvent creates a new NotificationCreatedEvent.
func NewNotificationCreatedEvent(notificationID, userID, kind string, at time.Time) NotificationCreatedEvent {
	return NotificationCreatedEvent{
		BaseEvent:      NewBaseEvent(EventNotificationCreated, userID, at),
		NotificationID: notificationID,
		UserID:         userID,
		Kind:           kind,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes an event payload into a transport envelope.
func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}

	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ Base() BaseEvent }); ok {
		env.Version = b.Base().Version
		env.CorrelationID = b.Base().CorrelationID
	}
	return env, nil
}

// Base returns the embedded base event.
func (e BaseEvent) Base() BaseEvent {
	return e
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
