package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

// FeatureFlags manages feature toggles with gradual rollout and per-user
// overrides. Rollout buckets are stable per user id.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled

	clock timeutil.Clock
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID  string
	IsAdmin bool
}

// Predefined feature flag names.
const (
	// === Social graph ===
	FeatureEdgeListing = "social.edge_listing" // GET /user/followers|following

	// === Notifications ===
	FeatureNotifyNewFollower   = "notify.new_follower"   // "alice started following you"
	FeatureNotifyViewMilestone = "notify.view_milestone" // "your profile reached 100 views"

	// === Operations ===
	FeatureAuditEndpoint  = "admin.audit_endpoint"   // GET /user/audit/{userId}
	FeatureNatsForwarding = "events.nats_forwarding" // forward domain events to JetStream
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags(nil)

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// NewFeatureFlags returns the defaults without reading the environment.
// A nil clock uses system time.
func NewFeatureFlags(clock timeutil.Clock) *FeatureFlags {
	if clock == nil {
		clock = timeutil.System()
	}
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
		clock:         clock,
	}
	ff.initializeDefaults()
	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureEdgeListing] = &Feature{
		Name:           FeatureEdgeListing,
		Description:    "List followers and following of a user",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyNewFollower] = &Feature{
		Name:           FeatureNotifyNewFollower,
		Description:    "Notify a driver when someone follows them",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyViewMilestone] = &Feature{
		Name:           FeatureNotifyViewMilestone,
		Description:    "Notify when profile views cross a milestone",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Operations - disabled by default
	ff.features[FeatureAuditEndpoint] = &Feature{
		Name:           FeatureAuditEndpoint,
		Description:    "Expose the counter drift audit over HTTP",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureNatsForwarding] = &Feature{
		Name:           FeatureNatsForwarding,
		Description:    "Forward social events to NATS JetStream when NATS_URL is set",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_ADMIN_AUDIT_ENDPOINT=true
// Example: FEATURE_NOTIFY_NEW_FOLLOWER=50 (50% rollout)
// Windows: FEATURE_<NAME>_FROM / FEATURE_<NAME>_UNTIL as RFC 3339.
// Per-user: FEATURE_USER_OVERRIDES=alice:notify.new_follower=false,...
// Malformed values are ignored.
func (ff *FeatureFlags) loadFromEnvironment() {
	for _, name := range ff.names() {
		key := featureNameToEnvKey(name)
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				if b {
					_ = ff.EnableFeature(name)
				} else {
					_ = ff.DisableFeature(name)
				}
			} else if p, err := strconv.Atoi(val); err == nil {
				_ = ff.SetRolloutPercent(name, p)
			}
		}

		from, until := envTime(key+"_FROM"), envTime(key+"_UNTIL")
		if from != nil || until != nil {
			_ = ff.SetActiveWindow(name, from, until)
		}
	}
	ff.loadUserOverrides(os.Getenv("FEATURE_USER_OVERRIDES"))
}

// loadUserOverrides parses "user:feature=bool" entries separated by commas.
func (ff *FeatureFlags) loadUserOverrides(raw string) {
	for _, entry := range strings.Split(raw, ",") {
		user, rest, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || user == "" {
			continue
		}
		name, val, ok := strings.Cut(rest, "=")
		if !ok {
			continue
		}
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			continue
		}
		ff.SetUserOverride(user, name, enabled)
	}
}

func (ff *FeatureFlags) names() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	names := make([]string, 0, len(ff.features))
	for name := range ff.features {
		names = append(names, name)
	}
	return names
}

func envTime(key string) *time.Time {
	t, err := time.Parse(time.RFC3339, os.Getenv(key))
	if err != nil {
		return nil
	}
	return &t
}

// featureNameToEnvKey converts feature name to environment variable key.
// "notify.new_follower" -> "FEATURE_NOTIFY_NEW_FOLLOWER"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
// A nil context evaluates the global switch only.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.UserID != "" {
		if overrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	if ctx != nil && ctx.IsAdmin {
		return true
	}

	if !feature.Enabled {
		return false
	}

	now := ff.clock.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// Enabled is IsEnabled without user context.
func (ff *FeatureFlags) Enabled(featureName string) bool {
	return ff.IsEnabled(featureName, nil)
}

// EnabledFor is IsEnabled for a single user.
func (ff *FeatureFlags) EnabledFor(featureName, userID string) bool {
	return ff.IsEnabled(featureName, &FeatureContext{UserID: userID})
}

// isInRollout determines if a user is in the rollout percentage.
func isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride sets a feature override for a specific user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// SetActiveWindow limits a feature to [from, until]. Nil bounds are open.
func (ff *FeatureFlags) SetActiveWindow(featureName string, from, until *time.Time) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.EnabledFrom = from
	feature.EnabledUntil = until
	return nil
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
