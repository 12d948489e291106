package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/armstrong-haulage/community-hub/internal/application/command"
	"github.com/armstrong-haulage/community-hub/internal/application/query"
	"github.com/armstrong-haulage/community-hub/internal/domain/notification"
	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
	"github.com/armstrong-haulage/community-hub/pkg/logger"
)

// Error codes returned in the error envelope.
const (
	codeValidation       = "validation_error"
	codeNotFound         = "not_found"
	codeAlreadyFollowing = "already_following"
	codeNotFollowing     = "not_following"
	codeUnauthorized     = "unauthorized"
	codeForbidden        = "forbidden"
	codeStore            = "store_error"
	codeInternal         = "internal_error"
	codeRateLimited      = "rate_limited"
	codeNotImplemented   = "not_implemented"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Armstrong Haulage Community Hub",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":   "/health",
			"follow":   "POST /user/follow",
			"unfollow": "POST /user/unfollow",
			"view":     "POST /user/view/{userId}",
			"stats":    "GET /user/stats/{userId}",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": s.config.Version,
	})
}

// handleReady handles GET /ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles GET /live.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SOCIAL GRAPH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// FollowRequest is the body of follow and unfollow.
type FollowRequest struct {
	FollowerID  string `json:"followerId"`
	FollowingID string `json:"followingId"`
}

// FollowResponse carries both counters after a follow or unfollow.
type FollowResponse struct {
	Success        bool  `json:"success"`
	FollowerCount  int64 `json:"followerCount"`
	FollowingCount int64 `json:"followingCount"`
}

// ViewResponse carries the view counter after a recorded view.
type ViewResponse struct {
	Success bool  `json:"success"`
	Views   int64 `json:"views"`
}

// handleFollow handles POST /user/follow.
func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeFollowRequest(w, r)
	if !ok {
		return
	}
	result, err := s.deps.FollowHandler.Handle(r.Context(), command.FollowUserCommand{
		FollowerID:    req.FollowerID,
		FollowingID:   req.FollowingID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, "follow", err)
		return
	}
	writeJSON(w, http.StatusOK, FollowResponse{
		Success:        true,
		FollowerCount:  result.FollowerCount,
		FollowingCount: result.FollowingCount,
	})
}

// handleUnfollow handles POST /user/unfollow.
func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeFollowRequest(w, r)
	if !ok {
		return
	}
	result, err := s.deps.UnfollowHandler.Handle(r.Context(), command.UnfollowUserCommand{
		FollowerID:    req.FollowerID,
		FollowingID:   req.FollowingID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, "unfollow", err)
		return
	}
	writeJSON(w, http.StatusOK, FollowResponse{
		Success:        true,
		FollowerCount:  result.FollowerCount,
		FollowingCount: result.FollowingCount,
	})
}

// decodeFollowRequest parses the body and, with auth on, checks that the
// token subject is the follower.
func (s *Server) decodeFollowRequest(w http.ResponseWriter, r *http.Request) (FollowRequest, bool) {
	var req FollowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, codeValidation, "malformed JSON body")
		return req, false
	}
	if s.auth != nil {
		if err := s.auth.Authorize(r, req.FollowerID); err != nil {
			s.writeError(w, r, "authorize", err)
			return req, false
		}
	}
	return req, true
}

// handleRecordView handles POST /user/view/{userId}.
func (s *Server) handleRecordView(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.RecordViewHandler.Handle(r.Context(), command.RecordViewCommand{
		UserID:        r.PathValue("userId"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, "record_view", err)
		return
	}
	writeJSON(w, http.StatusOK, ViewResponse{Success: true, Views: result.Views})
}

// handleGetStats handles GET /user/stats/{userId}?currentUserId=.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetStatsHandler.Handle(r.Context(), query.GetUserStatsQuery{
		UserID:   r.PathValue("userId"),
		ViewerID: r.URL.Query().Get("currentUserId"),
	})
	if err != nil {
		s.writeError(w, r, "get_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// handleListEdges handles GET /user/followers/{userId} and /user/following/{userId}.
func (s *Server) handleListEdges(direction query.EdgeDirection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.ListEdgesHandler == nil {
			writeJSONError(w, http.StatusNotImplemented, codeNotImplemented, "edge listing not configured")
			return
		}
		def := shared.DefaultPagination()
		dto, err := s.deps.ListEdgesHandler.Handle(r.Context(), query.ListEdgesQuery{
			UserID:    r.PathValue("userId"),
			Direction: direction,
			Offset:    getQueryParamInt(r, "offset", def.Offset),
			Limit:     getQueryParamInt(r, "limit", def.Limit),
		})
		if err != nil {
			s.writeError(w, r, "list_"+string(direction), err)
			return
		}
		writeJSON(w, http.StatusOK, dto)
	}
}

// AuditResponse is the drift report with its verdict.
type AuditResponse struct {
	*social.Audit
	Consistent bool `json:"consistent"`
}

// handleAudit handles GET /user/audit/{userId}.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.AuditHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, codeNotImplemented, "audit not configured")
		return
	}
	audit, err := s.deps.AuditHandler.Handle(r.Context(), query.AuditUserQuery{UserID: r.PathValue("userId")})
	if err != nil {
		s.writeError(w, r, "audit", err)
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{Audit: audit, Consistent: audit.Consistent()})
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationListResponse is the body of GET /user/notifications/{userId}.
type NotificationListResponse struct {
	UserID        string                       `json:"userId"`
	Unread        int                          `json:"unread"`
	Notifications []*notification.Notification `json:"notifications"`
}

// notificationUser resolves {userId} and enforces the token subject.
func (s *Server) notificationUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.deps.Notifications == nil {
		writeJSONError(w, http.StatusNotImplemented, codeNotImplemented, "notifications not configured")
		return "", false
	}
	userID := r.PathValue("userId")
	if s.auth != nil {
		if err := s.auth.Authorize(r, userID); err != nil {
			s.writeError(w, r, "authorize", err)
			return "", false
		}
	}
	return userID, true
}

// handleListNotifications handles GET /user/notifications/{userId}?unread=true.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.notificationUser(w, r)
	if !ok {
		return
	}
	list, err := s.deps.Notifications.List(r.Context(), userID, getQueryParamBool(r, "unread"))
	if err != nil {
		s.writeError(w, r, "list_notifications", err)
		return
	}
	unread, err := s.deps.Notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, "list_notifications", err)
		return
	}
	if list == nil {
		list = []*notification.Notification{}
	}
	writeJSON(w, http.StatusOK, NotificationListResponse{UserID: userID, Unread: unread, Notifications: list})
}

// handleMarkRead handles POST /user/notifications/{userId}/{id}/read.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.notificationUser(w, r)
	if !ok {
		return
	}
	if err := s.deps.Notifications.MarkRead(r.Context(), userID, r.PathValue("id")); err != nil {
		s.writeError(w, r, "mark_read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleMarkAllRead handles POST /user/notifications/{userId}/read-all.
func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.notificationUser(w, r)
	if !ok {
		return
	}
	n, err := s.deps.Notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, "mark_all_read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
}

// handleDeleteNotification handles DELETE /user/notifications/{userId}/{id}.
func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.notificationUser(w, r)
	if !ok {
		return
	}
	if err := s.deps.Notifications.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		s.writeError(w, r, "delete_notification", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// errorStatus maps a domain error to its status and code.
// Order matters: "not following" is a validation error with its own code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotFollowing):
		return http.StatusBadRequest, codeNotFollowing
	case shared.IsAlreadyExists(err):
		return http.StatusBadRequest, codeAlreadyFollowing
	case shared.IsValidation(err):
		return http.StatusBadRequest, codeValidation
	case shared.IsNotFound(err):
		return http.StatusNotFound, codeNotFound
	case shared.IsUnauthorized(err):
		return http.StatusUnauthorized, codeUnauthorized
	case shared.IsForbidden(err):
		return http.StatusForbidden, codeForbidden
	default:
		return http.StatusInternalServerError, codeStore
	}
}

// publicMessage strips domain/op prefixes from err while keeping any
// context added by callers, e.g. "followerId: user id is required".
func publicMessage(err error) string {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return err.Error()
	}
	full := err.Error()
	if prefix, ok := strings.CutSuffix(full, de.Error()); ok {
		return prefix + de.Message
	}
	return de.Message
}

// writeError logs and writes err. Server-side failures do not leak details.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := errorStatus(err)
	log := logger.FromContext(r.Context()).With(logger.Operation(op))

	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.Err(err))
		writeJSONError(w, status, code, "store call failed")
		return
	}
	log.Debug("request rejected", logger.Int("status", status), logger.Err(err))
	writeJSONError(w, status, code, publicMessage(err))
}
