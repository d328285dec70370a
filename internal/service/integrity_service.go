package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/campusflow/nodues-api/internal/dto"
	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/internal/repository"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
)

type integrityStore interface {
	FindMissingStatuses(ctx context.Context) ([]repository.IntegrityIssue, error)
	InsertMissingStatuses(ctx context.Context, applicationID string, departments []string) (int, error)
	RecomputeAggregate(ctx context.Context, applicationID string) (*repository.DecideOutcome, error)
}

// IntegrityService detects and repairs applications violating the
// one-status-row-per-active-department invariant. Detection is read-only;
// healing happens only through the explicit Repair operation, never inline
// in request handling.
type IntegrityService struct {
	apps         integrityStore
	certificates certificateIssuer
	audit        auditLogger
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewIntegrityService constructs the service.
func NewIntegrityService(apps integrityStore, certificates certificateIssuer, audit auditLogger, metrics *MetricsService, logger *zap.Logger) *IntegrityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrityService{
		apps:         apps,
		certificates: certificates,
		audit:        audit,
		metrics:      metrics,
		logger:       logger,
	}
}

// ScanOrphans reports applications missing status rows for active
// departments, grouped per application.
func (s *IntegrityService) ScanOrphans(ctx context.Context) ([]dto.OrphanReport, error) {
	issues, err := s.apps.FindMissingStatuses(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan for orphaned applications")
	}
	return groupIssues(issues), nil
}

// Repair inserts the missing pending rows and recomputes aggregates. With an
// application id it repairs that one application, re-deriving its aggregate
// even when no rows were missing; without one it repairs every orphan found
// by a fresh scan.
func (s *IntegrityService) Repair(ctx context.Context, claims *models.JWTClaims, applicationID string) (*dto.RepairResult, error) {
	issues, err := s.apps.FindMissingStatuses(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan for orphaned applications")
	}
	reports := groupIssues(issues)

	result := &dto.RepairResult{}
	if applicationID != "" {
		missing := []string{}
		for _, report := range reports {
			if report.ApplicationID == applicationID {
				missing = report.MissingDepartments
				break
			}
		}
		if err := s.repairOne(ctx, applicationID, missing, result); err != nil {
			return nil, err
		}
	} else {
		for _, report := range reports {
			if err := s.repairOne(ctx, report.ApplicationID, report.MissingDepartments, result); err != nil {
				return nil, err
			}
		}
	}

	s.metrics.RecordRepair(result.RowsInserted)
	s.emitAudit(ctx, claims, applicationID, result)
	s.logger.Info("integrity repair finished",
		zap.Int("repaired", result.Repaired),
		zap.Int("rows_inserted", result.RowsInserted))
	return result, nil
}

func (s *IntegrityService) repairOne(ctx context.Context, applicationID string, missing []string, result *dto.RepairResult) error {
	if len(missing) > 0 {
		inserted, err := s.apps.InsertMissingStatuses(ctx, applicationID, missing)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to insert missing status rows")
		}
		result.RowsInserted += inserted
	}

	outcome, err := s.apps.RecomputeAggregate(ctx, applicationID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.ErrNotFound
		case errors.Is(err, models.ErrNoDecisionRows):
			return appErrors.Clone(appErrors.ErrIntegrity, "application "+applicationID+" still has no department status rows")
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute aggregate")
		}
	}
	result.Repaired++

	// A completed application may have missed its certificate if issuance
	// failed after the original transition; Issue is idempotent.
	if outcome.Aggregate == models.ApplicationCompleted && s.certificates != nil {
		if _, certErr := s.certificates.Issue(ctx, &outcome.Application, outcome.Statuses); certErr != nil {
			s.logger.Error("certificate issuance during repair failed",
				zap.String("application_id", applicationID), zap.Error(certErr))
		}
	}
	return nil
}

func groupIssues(issues []repository.IntegrityIssue) []dto.OrphanReport {
	reports := make([]dto.OrphanReport, 0)
	index := make(map[string]int)
	for _, issue := range issues {
		i, ok := index[issue.ApplicationID]
		if !ok {
			i = len(reports)
			index[issue.ApplicationID] = i
			reports = append(reports, dto.OrphanReport{
				ApplicationID:  issue.ApplicationID,
				RegistrationNo: issue.RegistrationNo,
			})
		}
		reports[i].MissingDepartments = append(reports[i].MissingDepartments, issue.DepartmentName)
	}
	return reports
}

func (s *IntegrityService) emitAudit(ctx context.Context, claims *models.JWTClaims, applicationID string, result *dto.RepairResult) {
	if s.audit == nil {
		return
	}
	raw, _ := json.Marshal(result)
	log := &models.AuditLog{
		Action:    models.AuditActionIntegrityRepair,
		Resource:  "application",
		NewValues: raw,
		IPAddress: "system",
		UserAgent: "integrity-service",
	}
	if claims != nil {
		log.UserID = &claims.UserID
	}
	if applicationID != "" {
		log.ResourceID = &applicationID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
