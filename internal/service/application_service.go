package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusflow/nodues-api/internal/dto"
	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/internal/repository"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application, departments []string) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	GetByUserID(ctx context.Context, userID string) (*models.Application, error)
	GetStatuses(ctx context.Context, applicationID string) ([]models.DepartmentStatus, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
}

// ApplicationService handles submission and read access for clearance
// applications.
type ApplicationService struct {
	repo          applicationStore
	users         userDirectory
	registry      registryLoader
	audit         auditLogger
	notifications notifier
	metrics       *MetricsService
	validate      *validator.Validate
	logger        *zap.Logger
}

// NewApplicationService constructs the service.
func NewApplicationService(repo applicationStore, users userDirectory, registry registryLoader, audit auditLogger, notifications notifier, metrics *MetricsService, logger *zap.Logger) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		repo:          repo,
		users:         users,
		registry:      registry,
		audit:         audit,
		notifications: notifications,
		metrics:       metrics,
		validate:      validator.New(),
		logger:        logger,
	}
}

// Submit creates a new application together with one pending decision row per
// active department. Registration numbers are normalised to upper case so the
// uniqueness constraint is case-insensitive in practice.
func (s *ApplicationService) Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitApplicationRequest) (*dto.ApplicationView, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	registry, err := s.registry.Load(ctx)
	if err != nil {
		return nil, err
	}
	departments := registry.ActiveNames()
	if len(departments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInternal, "no active departments configured")
	}

	app := &models.Application{
		UserID:         claims.UserID,
		StudentName:    strings.TrimSpace(req.StudentName),
		RegistrationNo: strings.ToUpper(strings.TrimSpace(req.RegistrationNo)),
		ParentName:     req.ParentName,
		SchoolID:       strings.TrimSpace(req.SchoolID),
		CourseID:       req.CourseID,
		BranchID:       req.BranchID,
		ContactNo:      req.ContactNo,
		SessionFrom:    req.SessionFrom,
		SessionTo:      req.SessionTo,
	}
	if app.StudentName == "" || app.RegistrationNo == "" || app.SchoolID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_name, registration_no and school_id are required")
	}

	if err := s.repo.Create(ctx, app, departments); err != nil {
		if errors.Is(err, repository.ErrDuplicateRegistration) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an application already exists for this registration number")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	s.metrics.RecordSubmission()
	s.emitAudit(ctx, claims, models.AuditActionApplicationSubmit, app.ID, map[string]string{
		"registration_no": app.RegistrationNo,
		"school_id":       app.SchoolID,
	})
	if s.notifications != nil {
		s.notifications.ApplicationSubmitted(ctx, app, departments)
	}

	s.logger.Info("application submitted",
		zap.String("application_id", app.ID),
		zap.String("registration_no", app.RegistrationNo))

	return s.buildView(ctx, registry, app)
}

// MyApplication returns the student's own application with its full
// per-department breakdown.
func (s *ApplicationService) MyApplication(ctx context.Context, claims *models.JWTClaims) (*dto.ApplicationView, error) {
	app, err := s.repo.GetByUserID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no application submitted yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	registry, err := s.registry.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, registry, app)
}

// Get returns a single application, enforcing per-role access: students see
// only their own form, department staff only applications inside their scope.
func (s *ApplicationService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*dto.ApplicationView, error) {
	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	switch claims.Role {
	case models.RoleStudent:
		if app.UserID != claims.UserID {
			return nil, appErrors.ErrForbidden
		}
	case models.RoleDepartment:
		actor, err := s.users.FindByID(ctx, claims.UserID)
		if err != nil {
			return nil, appErrors.ErrUnauthorized
		}
		if !ScopeAllows(actor.Scope(), app) {
			return nil, appErrors.ErrScopeDenied
		}
	case models.RoleAdmin, models.RoleSuperAdmin:
		// full visibility
	default:
		return nil, appErrors.ErrForbidden
	}

	registry, err := s.registry.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, registry, app)
}

// List returns applications for staff dashboards. Department actors are
// transparently restricted to their scope; the same predicate that guards
// single-record access narrows the query here.
func (s *ApplicationService) List(ctx context.Context, claims *models.JWTClaims, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error) {
	filter := models.ApplicationFilter{
		Status:         query.Status,
		PendingFor:     strings.TrimSpace(query.PendingFor),
		RegistrationNo: strings.TrimSpace(query.RegistrationNo),
		Page:           query.Page,
		PageSize:       query.PageSize,
	}

	if claims.Role == models.RoleDepartment {
		actor, err := s.users.FindByID(ctx, claims.UserID)
		if err != nil {
			return nil, nil, appErrors.ErrUnauthorized
		}
		if !actor.Active {
			return nil, nil, appErrors.ErrInactiveAccount
		}
		if filter.PendingFor != "" && !actor.HasDepartment(filter.PendingFor) {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not assigned to department "+filter.PendingFor)
		}
		applyScope(actor.Scope(), &filter)
	}

	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return apps, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// buildView assembles the application with its decision rows in registry
// display order. Zero rows is an integrity violation and surfaces as one.
func (s *ApplicationService) buildView(ctx context.Context, registry *models.Registry, app *models.Application) (*dto.ApplicationView, error) {
	statuses, err := s.repo.GetStatuses(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load decision rows")
	}
	if len(statuses) == 0 {
		s.logger.Error("application has no department status rows",
			zap.String("application_id", app.ID))
		return nil, appErrors.Clone(appErrors.ErrIntegrity, "application has no department status rows")
	}

	sort.SliceStable(statuses, func(i, j int) bool {
		a, aOK := registry.Lookup(statuses[i].DepartmentName)
		b, bOK := registry.Lookup(statuses[j].DepartmentName)
		if aOK && bOK && a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return statuses[i].DepartmentName < statuses[j].DepartmentName
	})

	views := make([]dto.DepartmentStatusView, 0, len(statuses))
	for _, row := range statuses {
		display := row.DepartmentName
		if dept, ok := registry.Lookup(row.DepartmentName); ok {
			display = dept.DisplayName
		}
		views = append(views, dto.DepartmentStatusView{
			DepartmentName:  row.DepartmentName,
			DisplayName:     display,
			Status:          row.Status,
			ActionAt:        row.ActionAt,
			RejectionReason: row.RejectionReason,
		})
	}

	return &dto.ApplicationView{Application: *app, Departments: views}, nil
}

func (s *ApplicationService) emitAudit(ctx context.Context, claims *models.JWTClaims, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	log := &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     action,
		Resource:   "application",
		ResourceID: &resourceID,
		NewValues:  raw,
		IPAddress:  "system",
		UserAgent:  "application-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
