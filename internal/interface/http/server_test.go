package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armstrong-haulage/community-hub/internal/application/command"
	"github.com/armstrong-haulage/community-hub/internal/application/query"
	"github.com/armstrong-haulage/community-hub/internal/domain/notification"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/memory"
	"github.com/armstrong-haulage/community-hub/internal/infrastructure/service"
	"github.com/armstrong-haulage/community-hub/internal/interface/http/handlers"
	"github.com/armstrong-haulage/community-hub/pkg/logger"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

type testEnv struct {
	server        *Server
	store         *memory.Store
	notifications *service.NotificationManager
	clock         *timeutil.FakeClock
}

func newTestEnv(t *testing.T, cfg Config, users ...string) *testEnv {
	t.Helper()
	clock := timeutil.NewFakeClock(time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC))
	store := memory.NewStore()
	for _, id := range users {
		require.NoError(t, store.Update(context.Background(), map[string]any{
			"users/" + id + "/profile/createdAt": "2026-01-01T00:00:00.000Z",
		}))
	}
	repo := document.NewGraphRepository(store)
	notifications := service.NewNotificationManager(
		memory.NewNotificationStore(nil), clock, nil, service.DefaultNotificationConfig(), nil, nil)

	deps := Dependencies{
		FollowHandler:     command.NewFollowUserHandler(repo, nil, clock, nil),
		UnfollowHandler:   command.NewUnfollowUserHandler(repo, nil, clock, nil),
		RecordViewHandler: command.NewRecordViewHandler(repo, nil, clock, nil),
		GetStatsHandler:   query.NewGetUserStatsHandler(repo, nil),
		ListEdgesHandler:  query.NewListEdgesHandler(repo),
		AuditHandler:      query.NewAuditUserHandler(repo),
		Notifications:     notifications,
		HealthChecker:     handlers.NewCompositeHealthChecker("test", clock),
		Logger:            logger.Discard(),
		Clock:             clock,
	}
	return &testEnv{
		server:        NewServer(cfg, deps),
		store:         store,
		notifications: notifications,
		clock:         clock,
	}
}

func (e *testEnv) do(t *testing.T, method, target, body string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

// ══════════════════════════════════════════════════════════════════════════════
// SOCIAL GRAPH
// ══════════════════════════════════════════════════════════════════════════════

func TestFollowUnfollowRoundTrip(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), "alice", "bob")

	rec, body := env.do(t, http.MethodPost, "/user/follow", `{"followerId":"alice","followingId":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["followerCount"])
	assert.Equal(t, float64(1), body["followingCount"])

	followedAt, err := env.store.Get(context.Background(), "users/alice/following/bob/followedAt")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-16T10:00:00.000Z", followedAt)

	rec, body = env.do(t, http.MethodGet, "/user/stats/bob?currentUserId=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", body["userId"])
	assert.Equal(t, true, body["isFollowing"])
	assert.Equal(t, map[string]any{"followers": float64(1), "following": float64(0), "views": float64(0)}, body["stats"])

	rec, body = env.do(t, http.MethodPost, "/user/unfollow", `{"followerId":"alice","followingId":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["followerCount"])
	assert.Equal(t, float64(0), body["followingCount"])

	ok, err := env.store.Exists(context.Background(), "users/alice/following/bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFollowErrors(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), "alice", "bob")
	_, _ = env.do(t, http.MethodPost, "/user/follow", `{"followerId":"alice","followingId":"bob"}`)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed json", "/user/follow", `{"followerId":`, http.StatusBadRequest, codeValidation},
		{"missing follower", "/user/follow", `{"followingId":"bob"}`, http.StatusBadRequest, codeValidation},
		{"self follow", "/user/follow", `{"followerId":"bob","followingId":"bob"}`, http.StatusBadRequest, codeValidation},
		{"unknown target", "/user/follow", `{"followerId":"alice","followingId":"ghost"}`, http.StatusNotFound, codeNotFound},
		{"already following", "/user/follow", `{"followerId":"alice","followingId":"bob"}`, http.StatusBadRequest, codeAlreadyFollowing},
		{"not following", "/user/unfollow", `{"followerId":"bob","followingId":"alice"}`, http.StatusBadRequest, codeNotFollowing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, errorCode(body))
		})
	}
}

func TestErrorMessagesHideDomainPrefix(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), "alice", "bob")
	_, _ = env.do(t, http.MethodPost, "/user/follow", `{"followerId":"alice","followingId":"bob"}`)

	_, body := env.do(t, http.MethodPost, "/user/follow", `{"followerId":"alice","followingId":"bob"}`)
	e := body["error"].(map[string]any)
	assert.Equal(t, "already following", e["message"])
}

func TestRecordView(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), "alice")

	for want := 1; want <= 3; want++ {
		rec, body := env.do(t, http.MethodPost, "/user/view/alice", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(want), body["views"])
	}

	rec, body := env.do(t, http.MethodPost, "/user/view/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, errorCode(body))
}

func TestGetStatsInitializesMissingStats(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), "alice")

	rec, body := env.do(t, http.MethodGet, "/user/stats/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["isFollowing"])
	assert.Equal(t, map[string]any{"followers": float64(0), "following": float64(0), "views": float64(0)}, body["stats"])

	rec, _ = env.do(t, http.MethodGet, "/user/stats/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEdges(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), "alice", "bob", "carol")
	_, _ = env.do(t, http.MethodPost, "/user/follow", `{"followerId":"alice","followingId":"carol"}`)
	env.clock.Advance(time.Minute)
	_, _ = env.do(t, http.MethodPost, "/user/follow", `{"followerId":"bob","followingId":"carol"}`)

	rec, body := env.do(t, http.MethodGet, "/user/followers/carol?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, body["edges"], 1)

	rec, body = env.do(t, http.MethodGet, "/user/following/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(0), body["offset"])
	assert.Equal(t, float64(shared.DefaultPagination().Limit), body["limit"])
}

func TestAuditRouteIsFeatureFlagged(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), "alice")
	rec, _ := env.do(t, http.MethodGet, "/user/audit/alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	cfg := DefaultConfig()
	cfg.EnableAudit = true
	env = newTestEnv(t, cfg, "alice", "bob")
	_, _ = env.do(t, http.MethodPost, "/user/follow", `{"followerId":"alice","followingId":"bob"}`)

	rec, body := env.do(t, http.MethodGet, "/user/audit/bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["consistent"])
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH & MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func TestFollowRequiresMatchingSubject(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"
	env := newTestEnv(t, cfg, "alice", "bob")
	auth := handlers.NewJWTAuth(cfg.JWTSecret, "", env.clock)

	body := `{"followerId":"alice","followingId":"bob"}`

	rec, resp := env.do(t, http.MethodPost, "/user/follow", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeUnauthorized, errorCode(resp))

	bobToken, err := auth.Issue("bob", time.Hour)
	require.NoError(t, err)
	rec, resp = env.do(t, http.MethodPost, "/user/follow", body, "Authorization", "Bearer "+bobToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codeForbidden, errorCode(resp))

	aliceToken, err := auth.Issue("alice", time.Hour)
	require.NoError(t, err)
	rec, _ = env.do(t, http.MethodPost, "/user/follow", body, "Authorization", "Bearer "+aliceToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.clock.Advance(2 * time.Hour)
	rec, _ = env.do(t, http.MethodPost, "/user/unfollow", body, "Authorization", "Bearer "+aliceToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 2
	env := newTestEnv(t, cfg)

	for i := 0; i < 2; i++ {
		rec, _ := env.do(t, http.MethodGet, "/live", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, body := env.do(t, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, codeRateLimited, errorCode(body))

	env.clock.Advance(time.Minute + time.Second)
	rec, _ = env.do(t, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	rec, _ := env.do(t, http.MethodGet, "/live", "", "X-Request-ID", "req-42")
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec, _ = env.do(t, http.MethodGet, "/live", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	rec, body := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["healthy"])

	rec, _ = env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestNotificationRoutes(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), "bob")
	ctx := context.Background()

	first, err := env.notifications.Add(ctx, service.AddParams{
		UserID: "bob", Type: notification.TypeNewFollower, Title: "New follower", Message: "alice followed you",
	})
	require.NoError(t, err)
	_, err = env.notifications.Add(ctx, service.AddParams{
		UserID: "bob", Type: notification.TypeSystem, Title: "Welcome", Message: "hello",
	})
	require.NoError(t, err)

	rec, body := env.do(t, http.MethodGet, "/user/notifications/bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["unread"])
	assert.Len(t, body["notifications"], 2)

	rec, _ = env.do(t, http.MethodPost, "/user/notifications/bob/"+first.ID.String()+"/read", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, body = env.do(t, http.MethodGet, "/user/notifications/bob?unread=true", "")
	assert.Equal(t, float64(1), body["unread"])
	assert.Len(t, body["notifications"], 1)

	rec, body = env.do(t, http.MethodPost, "/user/notifications/bob/read-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["updated"])

	rec, _ = env.do(t, http.MethodDelete, "/user/notifications/bob/"+first.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodDelete, "/user/notifications/bob/"+first.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, errorCode(body))
}

func TestNotificationRoutesRequireOwner(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"
	env := newTestEnv(t, cfg, "bob")
	token, err := handlers.NewJWTAuth(cfg.JWTSecret, "", env.clock).Issue("alice", time.Hour)
	require.NoError(t, err)

	rec, _ := env.do(t, http.MethodGet, "/user/notifications/bob", "", "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
