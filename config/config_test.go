package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("APP_ENV", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, BackendMemory, cfg.Notifications.Backend)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.Notifications.TTL)
	assert.Equal(t, []int64{10, 100, 1000}, cfg.Notifications.ViewMilestones)
	assert.False(t, cfg.NATS.Enabled())
	assert.False(t, cfg.UsesRedis())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://hub@localhost/hub")
	t.Setenv("NOTIFICATIONS_BACKEND", "redis")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("NOTIFICATIONS_VIEW_MILESTONES", "5,x,50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, []int64{5, 50}, cfg.Notifications.ViewMilestones)
	assert.True(t, cfg.NATS.Enabled())
	assert.True(t, cfg.UsesRedis())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("NOTIFICATIONS_BACKEND", "sqlite")
	t.Setenv("AUTH_JWT_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `STORE_BACKEND "mongo"`)
	assert.Contains(t, msg, `NOTIFICATIONS_BACKEND "sqlite"`)
	assert.Contains(t, msg, "AUTH_JWT_SECRET")
}

func TestValidateBackendRequirements(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")

	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "memory")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed in production")
}

func TestFeatureFlagDefaults(t *testing.T) {
	ff := NewFeatureFlags(nil)

	assert.True(t, ff.Enabled(FeatureNotifyNewFollower))
	assert.True(t, ff.Enabled(FeatureEdgeListing))
	assert.False(t, ff.Enabled(FeatureAuditEndpoint))
	assert.False(t, ff.Enabled("unknown.feature"))
}

func TestFeatureFlagsFromEnvironment(t *testing.T) {
	t.Setenv("FEATURE_ADMIN_AUDIT_ENDPOINT", "true")
	t.Setenv("FEATURE_NOTIFY_NEW_FOLLOWER", "false")

	ff := LoadFeatureFlags()
	assert.True(t, ff.Enabled(FeatureAuditEndpoint))
	assert.False(t, ff.Enabled(FeatureNotifyNewFollower))
}

func TestFeatureFlagWindowsAndOverridesFromEnvironment(t *testing.T) {
	t.Setenv("FEATURE_NOTIFY_VIEW_MILESTONE", "30")
	t.Setenv("FEATURE_NOTIFY_NEW_FOLLOWER_UNTIL", "2020-01-01T00:00:00Z")
	t.Setenv("FEATURE_SOCIAL_EDGE_LISTING_FROM", "not-a-time")
	t.Setenv("FEATURE_USER_OVERRIDES", "alice:admin.audit_endpoint=true, bob:notify.new_follower=yes,broken")

	ff := LoadFeatureFlags()
	all := ff.GetAllFeatures()

	assert.Equal(t, 30, all[FeatureNotifyViewMilestone].RolloutPercent)
	require.NotNil(t, all[FeatureNotifyNewFollower].EnabledUntil)
	assert.False(t, ff.Enabled(FeatureNotifyNewFollower))
	assert.Nil(t, all[FeatureEdgeListing].EnabledFrom)
	assert.True(t, ff.Enabled(FeatureEdgeListing))

	assert.True(t, ff.EnabledFor(FeatureAuditEndpoint, "alice"))
	assert.False(t, ff.EnabledFor(FeatureAuditEndpoint, "bob"))
}

func TestFeatureFlagRolloutIsStable(t *testing.T) {
	ff := NewFeatureFlags(nil)
	require.NoError(t, ff.SetRolloutPercent(FeatureNotifyViewMilestone, 50))

	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		first := ff.EnabledFor(FeatureNotifyViewMilestone, id)
		assert.Equal(t, first, ff.EnabledFor(FeatureNotifyViewMilestone, id))
		assert.Equal(t, isInRollout(id, FeatureNotifyViewMilestone, 50), first)
	}
	assert.True(t, ff.Enabled(FeatureNotifyViewMilestone))

	require.NoError(t, ff.DisableFeature(FeatureNotifyViewMilestone))
	assert.False(t, ff.EnabledFor(FeatureNotifyViewMilestone, "alice"))

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureNotifyViewMilestone, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.EnableFeature("nope"), ErrFeatureNotFound)
}

func TestFeatureFlagOverridesAndWindow(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC))
	ff := NewFeatureFlags(clock)

	ff.SetUserOverride("alice", FeatureAuditEndpoint, true)
	assert.True(t, ff.EnabledFor(FeatureAuditEndpoint, "alice"))
	assert.False(t, ff.EnabledFor(FeatureAuditEndpoint, "bob"))
	assert.False(t, ff.Enabled(FeatureAuditEndpoint))

	until := clock.Now().Add(time.Hour)
	require.NoError(t, ff.SetActiveWindow(FeatureNotifyNewFollower, nil, &until))
	assert.True(t, ff.Enabled(FeatureNotifyNewFollower))
	clock.Advance(2 * time.Hour)
	assert.False(t, ff.Enabled(FeatureNotifyNewFollower))

	all := ff.GetAllFeatures()
	all[FeatureEdgeListing].Enabled = false
	assert.True(t, ff.Enabled(FeatureEdgeListing))
}
