package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/internal/domain/notification"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/memory"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

type seqIDs struct{ n int }

func (s *seqIDs) GenerateID() string {
	s.n++
	return fmt.Sprintf("n%03d", s.n)
}

func newManager(t *testing.T, cfg NotificationConfig) (*NotificationManager, *timeutil.FakeClock, memory.NotificationBacking) {
	t.Helper()
	clock := timeutil.NewFakeClock(time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC))
	backing := memory.NotificationBacking{}
	m := NewNotificationManager(memory.NewNotificationStore(backing), clock, &seqIDs{}, cfg, nil, nil)
	return m, clock, backing
}

func add(t *testing.T, m *NotificationManager, user, msg string) *notification.Notification {
	t.Helper()
	n, err := m.Add(context.Background(), AddParams{
		UserID:  user,
		Type:    notification.TypeNewFollower,
		Title:   "New follower",
		Message: msg,
	})
	require.NoError(t, err)
	return n
}

func TestNotificationManagerAddAndList(t *testing.T) {
	m, clock, _ := newManager(t, NotificationConfig{TTL: time.Hour})
	ctx := context.Background()

	first := add(t, m, "bob", "alice followed you")
	clock.Advance(time.Minute)
	second := add(t, m, "bob", "carol followed you")

	assert.Equal(t, notification.NotificationID("n001"), first.ID)
	assert.Equal(t, clock.Now().Add(time.Hour), second.ExpiresAt)

	list, err := m.List(ctx, "bob", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	count, err := m.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNotificationManagerExpiry(t *testing.T) {
	m, clock, backing := newManager(t, NotificationConfig{TTL: 10 * time.Minute})
	ctx := context.Background()

	old := add(t, m, "bob", "old")
	clock.Advance(6 * time.Minute)
	add(t, m, "bob", "fresh")
	clock.Advance(5 * time.Minute)

	list, err := m.List(ctx, "bob", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].Message)
	assert.NotContains(t, backing["bob"], old.ID)

	err = m.MarkRead(ctx, "bob", old.ID.String())
	assert.True(t, shared.IsNotFound(err))
}

func TestNotificationManagerReadState(t *testing.T) {
	m, _, _ := newManager(t, NotificationConfig{})
	ctx := context.Background()

	a := add(t, m, "bob", "a")
	add(t, m, "bob", "b")
	add(t, m, "bob", "c")

	require.NoError(t, m.MarkRead(ctx, "bob", a.ID.String()))
	require.NoError(t, m.MarkRead(ctx, "bob", a.ID.String()))

	unread, err := m.List(ctx, "bob", true)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	changed, err := m.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	count, err := m.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, count)

	err = m.MarkRead(ctx, "bob", "missing")
	assert.ErrorIs(t, err, shared.ErrNotificationNotFound)
}

func TestNotificationManagerDelete(t *testing.T) {
	m, _, backing := newManager(t, NotificationConfig{})
	ctx := context.Background()

	n := add(t, m, "bob", "hello")
	require.NoError(t, m.Delete(ctx, "bob", n.ID.String()))
	assert.NotContains(t, backing, notification.RecipientID("bob"))

	err := m.Delete(ctx, "bob", n.ID.String())
	assert.True(t, shared.IsNotFound(err))
}

func TestNotificationManagerCapEvictsOldest(t *testing.T) {
	m, clock, _ := newManager(t, NotificationConfig{MaxPerUser: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		add(t, m, "bob", fmt.Sprintf("m%d", i))
		clock.Advance(time.Second)
	}

	list, err := m.List(ctx, "bob", false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "m4", list[0].Message)
	assert.Equal(t, "m2", list[2].Message)
}

func TestNotificationManagerPurgeExpired(t *testing.T) {
	m, clock, backing := newManager(t, NotificationConfig{TTL: time.Minute})
	ctx := context.Background()

	add(t, m, "alice", "x")
	add(t, m, "bob", "y")
	clock.Advance(30 * time.Second)
	add(t, m, "bob", "z")
	clock.Advance(45 * time.Second)

	removed, err := m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NotContains(t, backing, notification.RecipientID("alice"))
	assert.Len(t, backing["bob"], 1)
}

func TestNotificationManagerValidation(t *testing.T) {
	m, _, _ := newManager(t, NotificationConfig{})
	ctx := context.Background()

	_, err := m.Add(ctx, AddParams{UserID: "", Type: notification.TypeSystem, Message: "x"})
	assert.True(t, shared.IsValidation(err))

	_, err = m.Add(ctx, AddParams{UserID: "bob", Type: "bogus", Message: "x"})
	assert.True(t, shared.IsValidation(err))

	_, err = m.Add(ctx, AddParams{UserID: "bob", Type: notification.TypeSystem, Message: " "})
	assert.True(t, shared.IsValidation(err))

	_, err = m.List(ctx, "a/b", false)
	assert.True(t, shared.IsValidation(err))
}
