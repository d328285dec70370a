package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campusflow/nodues-api/internal/dto"
	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/internal/repository"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
)

const registryCacheKey = "nodues:registry:v1"

type departmentStore interface {
	Create(ctx context.Context, dept *models.Department) error
	GetByID(ctx context.Context, id string) (*models.Department, error)
	List(ctx context.Context) ([]models.Department, error)
	Update(ctx context.Context, dept *models.Department) error
}

// RegistryService loads immutable department registry snapshots. The
// snapshot is cached in Redis with a short TTL and invalidated on admin
// edits; request handling code receives a snapshot and never queries the
// department table ad hoc.
type RegistryService struct {
	repo     departmentStore
	redis    *redis.Client
	audit    auditLogger
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewRegistryService constructs the service. The redis client is optional;
// without it every load hits the database.
func NewRegistryService(repo departmentStore, redisClient *redis.Client, audit auditLogger, cacheTTL time.Duration, logger *zap.Logger) *RegistryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &RegistryService{repo: repo, redis: redisClient, audit: audit, cacheTTL: cacheTTL, logger: logger}
}

// Load returns a registry snapshot, preferring the cache.
func (s *RegistryService) Load(ctx context.Context) (*models.Registry, error) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, registryCacheKey).Bytes()
		if err == nil {
			var departments []models.Department
			if jsonErr := json.Unmarshal(raw, &departments); jsonErr == nil {
				return models.NewRegistry(departments), nil
			}
			s.logger.Warn("registry cache payload corrupt, reloading", zap.Error(err))
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("registry cache read failed", zap.Error(err))
		}
	}

	departments, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department registry")
	}

	if s.redis != nil {
		if raw, jsonErr := json.Marshal(departments); jsonErr == nil {
			if setErr := s.redis.Set(ctx, registryCacheKey, raw, s.cacheTTL).Err(); setErr != nil {
				s.logger.Warn("registry cache write failed", zap.Error(setErr))
			}
		}
	}

	return models.NewRegistry(departments), nil
}

// List returns all departments for admin screens, bypassing the cache.
func (s *RegistryService) List(ctx context.Context) ([]models.Department, error) {
	departments, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// Create registers a department and invalidates the cached snapshot.
func (s *RegistryService) Create(ctx context.Context, req dto.CreateDepartmentRequest, actor *models.JWTClaims) (*models.Department, error) {
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" || strings.TrimSpace(req.DisplayName) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name and display_name are required")
	}

	dept := &models.Department{
		Name:             name,
		DisplayName:      strings.TrimSpace(req.DisplayName),
		Email:            req.Email,
		IsActive:         true,
		IsSchoolSpecific: req.IsSchoolSpecific,
		DisplayOrder:     req.DisplayOrder,
	}
	if err := s.repo.Create(ctx, dept); err != nil {
		if errors.Is(err, repository.ErrDuplicateDepartment) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "department name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}

	s.invalidate(ctx)
	s.emitAudit(ctx, actor, models.AuditActionDepartmentCreate, dept.ID, dept)
	return dept, nil
}

// Update edits department reference data and invalidates the cache.
// Departments referenced by status rows are deactivated, never deleted.
func (s *RegistryService) Update(ctx context.Context, id string, req dto.UpdateDepartmentRequest, actor *models.JWTClaims) (*models.Department, error) {
	dept, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	if req.DisplayName != nil {
		if strings.TrimSpace(*req.DisplayName) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "display_name must not be empty")
		}
		dept.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Email != nil {
		dept.Email = req.Email
	}
	if req.IsActive != nil {
		dept.IsActive = *req.IsActive
	}
	if req.DisplayOrder != nil {
		dept.DisplayOrder = *req.DisplayOrder
	}

	if err := s.repo.Update(ctx, dept); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}

	s.invalidate(ctx)
	s.emitAudit(ctx, actor, models.AuditActionDepartmentUpdate, dept.ID, dept)
	return dept, nil
}

func (s *RegistryService) invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, registryCacheKey).Err(); err != nil {
		s.logger.Warn("registry cache invalidation failed", zap.Error(err))
	}
}

func (s *RegistryService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	log := &models.AuditLog{
		Action:     action,
		Resource:   "department",
		ResourceID: &resourceID,
		NewValues:  raw,
		IPAddress:  "system",
		UserAgent:  "registry-service",
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
