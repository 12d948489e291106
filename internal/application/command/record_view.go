package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD VIEW COMMAND
// Counts one profile view. Every call increments; there is no per-viewer
// deduplication and no rate limiting here.
// ══════════════════════════════════════════════════════════════════════════════

// RecordViewCommand identifies the viewed profile.
type RecordViewCommand struct {
	UserID        string
	CorrelationID string
}

// Validate trims and validates the identifier.
func (c RecordViewCommand) Validate() (social.UserID, error) {
	id, err := shared.NewUserID(c.UserID)
	if err != nil {
		return "", fmt.Errorf("userId: %w", err)
	}
	return id, nil
}

// RecordViewResult contains the new view count.
type RecordViewResult struct {
	Views int64 `json:"views"`
}

// RecordViewHandler handles the RecordViewCommand.
type RecordViewHandler struct {
	repo           social.GraphRepository
	eventPublisher shared.EventPublisher
	clock          timeutil.Clock
	logger         *slog.Logger
}

// NewRecordViewHandler creates a new RecordViewHandler.
func NewRecordViewHandler(
	repo social.GraphRepository,
	eventPublisher shared.EventPublisher,
	clock timeutil.Clock,
	logger *slog.Logger,
) *RecordViewHandler {
	if clock == nil {
		clock = timeutil.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordViewHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         logger.With("handler", "record_view"),
	}
}

// Handle executes the record view command.
func (h *RecordViewHandler) Handle(ctx context.Context, cmd RecordViewCommand) (*RecordViewResult, error) {
	userID, err := cmd.Validate()
	if err != nil {
		return nil, err
	}

	if err := requireUsers(ctx, h.repo, userID); err != nil {
		return nil, err
	}

	stats, found, err := h.repo.GetUserStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	update, views := social.PlanView(userID, social.StatsSnapshot{Stats: stats, Found: found})
	if err := h.repo.WriteMultiPath(ctx, update); err != nil {
		return nil, err
	}

	event := shared.NewProfileViewedEvent(userID.String(), views, h.clock.Now())
	event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
	publish(h.logger, h.eventPublisher, event)

	return &RecordViewResult{Views: views}, nil
}
