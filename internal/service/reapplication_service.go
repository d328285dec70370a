package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/campusflow/nodues-api/internal/dto"
	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/internal/repository"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
)

type reapplyStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	ResetRejected(ctx context.Context, applicationID, studentMessage string, updatedFields map[string]string) (*repository.ReapplyOutcome, error)
}

// ReapplicationService handles student resubmission after a rejection.
// Only rejected decision rows revert to pending; approvals already granted
// by other departments are preserved.
type ReapplicationService struct {
	apps          reapplyStore
	audit         auditLogger
	notifications notifier
	metrics       *MetricsService
	logger        *zap.Logger
}

// NewReapplicationService constructs the service.
func NewReapplicationService(apps reapplyStore, audit auditLogger, notifications notifier, metrics *MetricsService, logger *zap.Logger) *ReapplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReapplicationService{
		apps:          apps,
		audit:         audit,
		notifications: notifications,
		metrics:       metrics,
		logger:        logger,
	}
}

// Reapply resets the rejected departments of the student's own application
// back to pending and records the reapplication event.
func (s *ReapplicationService) Reapply(ctx context.Context, claims *models.JWTClaims, applicationID string, req dto.ReapplyRequest) (*dto.ReapplyResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a message describing the resolution is required")
	}
	for field := range req.UpdatedFields {
		if !repository.IsReapplyEditable(field) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "field "+field+" cannot be updated on reapplication")
		}
	}

	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}

	outcome, err := s.apps.ResetRejected(ctx, applicationID, message, req.UpdatedFields)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrNotFound
		case errors.Is(err, repository.ErrNotRejected):
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "only rejected applications can be reapplied")
		case errors.Is(err, models.ErrNoDecisionRows):
			return nil, appErrors.Clone(appErrors.ErrIntegrity, "application has no department status rows")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reapply")
		}
	}

	s.metrics.RecordReapplication()
	s.emitAudit(ctx, claims, applicationID, outcome)
	if s.notifications != nil {
		s.notifications.ApplicationReapplied(ctx, &outcome.Application, outcome.ResetDepartments)
	}

	s.logger.Info("reapplication recorded",
		zap.String("application_id", applicationID),
		zap.Int("reapplication_number", outcome.ReapplicationNumber),
		zap.Strings("reset_departments", outcome.ResetDepartments))

	return &dto.ReapplyResult{
		ApplicationID:       applicationID,
		ReapplicationNumber: outcome.ReapplicationNumber,
		ResetDepartments:    outcome.ResetDepartments,
		Aggregate:           outcome.Aggregate,
	}, nil
}

func (s *ReapplicationService) emitAudit(ctx context.Context, claims *models.JWTClaims, applicationID string, outcome *repository.ReapplyOutcome) {
	if s.audit == nil {
		return
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"reapplication_number": outcome.ReapplicationNumber,
		"reset_departments":    outcome.ResetDepartments,
	})
	log := &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionReapply,
		Resource:   "application",
		ResourceID: &applicationID,
		NewValues:  raw,
		IPAddress:  "system",
		UserAgent:  "reapplication-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
