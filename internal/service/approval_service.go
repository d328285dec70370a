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

type decisionStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	DecideAndAggregate(ctx context.Context, params repository.DecideParams) (*repository.DecideOutcome, error)
}

// ApprovalService records department decisions and derives the aggregate
// application status. All authority checks resolve against the user record,
// never against token claims, so revoked assignments take effect immediately.
type ApprovalService struct {
	apps          decisionStore
	users         userDirectory
	registry      registryLoader
	certificates  certificateIssuer
	notifications notifier
	audit         auditLogger
	metrics       *MetricsService
	logger        *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(apps decisionStore, users userDirectory, registry registryLoader, certificates certificateIssuer, notifications notifier, audit auditLogger, metrics *MetricsService, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		apps:          apps,
		users:         users,
		registry:      registry,
		certificates:  certificates,
		notifications: notifications,
		audit:         audit,
		metrics:       metrics,
		logger:        logger,
	}
}

// RecordDecision persists one department's approve/reject decision and the
// recomputed aggregate in a single transaction. A decision that lands on an
// already-decided row is a state conflict, not a silent no-op, so double
// submits from two staff members surface to the second caller.
func (s *ApprovalService) RecordDecision(ctx context.Context, claims *models.JWTClaims, applicationID string, req dto.DecisionRequest) (*dto.DecisionResult, error) {
	if req.Decision != models.DecisionApproved && req.Decision != models.DecisionRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approved or rejected")
	}
	departmentName := strings.TrimSpace(req.DepartmentName)
	if departmentName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "department_name is required")
	}
	reason := strings.TrimSpace(req.Reason)
	if req.Decision == models.DecisionRejected && reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection requires a reason")
	}
	var rejectionReason *string
	if req.Decision == models.DecisionRejected {
		rejectionReason = &reason
	}

	registry, err := s.registry.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !registry.IsActive(departmentName) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown or inactive department "+departmentName)
	}

	actor, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	if actor.Role == models.RoleDepartment {
		if !actor.HasDepartment(departmentName) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not assigned to department "+departmentName)
		}
		app, err := s.apps.GetByID(ctx, applicationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrNotFound
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
		}
		if !ScopeAllows(actor.Scope(), app) {
			return nil, appErrors.ErrScopeDenied
		}
	}

	outcome, err := s.apps.DecideAndAggregate(ctx, repository.DecideParams{
		ApplicationID:   applicationID,
		DepartmentName:  departmentName,
		Decision:        req.Decision,
		ActingUserID:    actor.ID,
		RejectionReason: rejectionReason,
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrNotFound
		case errors.Is(err, repository.ErrAlreadyDecided):
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "a decision was already recorded for this department")
		case errors.Is(err, repository.ErrStatusRowMissing):
			s.logger.Error("department status row missing",
				zap.String("application_id", applicationID),
				zap.String("department", departmentName))
			return nil, appErrors.Clone(appErrors.ErrIntegrity, "department status row missing; an integrity repair is required")
		case errors.Is(err, models.ErrNoDecisionRows):
			return nil, appErrors.Clone(appErrors.ErrIntegrity, "application has no department status rows")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
		}
	}

	s.metrics.RecordDecision(departmentName, string(req.Decision))
	s.emitAudit(ctx, actor, applicationID, departmentName, req.Decision, rejectionReason, outcome.Aggregate)

	serial := outcome.Application.CertificateSerial
	if outcome.CompletedTransition {
		if s.certificates != nil {
			cert, certErr := s.certificates.Issue(ctx, &outcome.Application, outcome.Statuses)
			if certErr != nil {
				// The decision is committed; issuance can be retried via repair.
				s.logger.Error("certificate issuance failed",
					zap.String("application_id", applicationID), zap.Error(certErr))
			} else {
				serial = &cert.Serial
			}
		}
		if s.notifications != nil {
			s.notifications.ApplicationCompleted(ctx, &outcome.Application)
		}
	} else if req.Decision == models.DecisionRejected && s.notifications != nil {
		s.notifications.ApplicationRejected(ctx, &outcome.Application, departmentName, reason)
	}

	s.logger.Info("decision recorded",
		zap.String("application_id", applicationID),
		zap.String("department", departmentName),
		zap.String("decision", string(req.Decision)),
		zap.String("aggregate", string(outcome.Aggregate)))

	return &dto.DecisionResult{
		ApplicationID:     applicationID,
		DepartmentName:    departmentName,
		Decision:          req.Decision,
		Aggregate:         outcome.Aggregate,
		CertificateSerial: serial,
	}, nil
}

func (s *ApprovalService) emitAudit(ctx context.Context, actor *models.User, applicationID, department string, decision models.DecisionStatus, reason *string, aggregate models.ApplicationStatus) {
	if s.audit == nil {
		return
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"department": department,
		"decision":   decision,
		"reason":     reason,
		"aggregate":  aggregate,
	})
	log := &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionDecisionRecord,
		Resource:   "application",
		ResourceID: &applicationID,
		NewValues:  raw,
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
