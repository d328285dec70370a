package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusflow/nodues-api/internal/dto"
	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/internal/repository"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
)

type departmentStoreStub struct {
	departments []models.Department
	createErr   error
	created     *models.Department
	updated     *models.Department
}

func (s *departmentStoreStub) Create(_ context.Context, dept *models.Department) error {
	if s.createErr != nil {
		return s.createErr
	}
	dept.ID = "dept-new"
	s.created = dept
	return nil
}

func (s *departmentStoreStub) GetByID(_ context.Context, id string) (*models.Department, error) {
	for i := range s.departments {
		if s.departments[i].ID == id {
			return &s.departments[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *departmentStoreStub) List(context.Context) ([]models.Department, error) {
	return s.departments, nil
}

func (s *departmentStoreStub) Update(_ context.Context, dept *models.Department) error {
	s.updated = dept
	return nil
}

func TestRegistryLoadWithoutCache(t *testing.T) {
	store := &departmentStoreStub{departments: []models.Department{
		{ID: "d1", Name: "library", DisplayName: "Library", IsActive: true, DisplayOrder: 1},
		{ID: "d2", Name: "hostel", DisplayName: "Hostel", IsActive: false, DisplayOrder: 2},
	}}
	svc := NewRegistryService(store, nil, nil, time.Minute, zap.NewNop())

	registry, err := svc.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"library"}, registry.ActiveNames())
	assert.True(t, registry.IsActive("library"))
	assert.False(t, registry.IsActive("hostel"))
	assert.False(t, registry.IsActive("cafeteria"))
}

func TestRegistryCreateNormalisesName(t *testing.T) {
	store := &departmentStoreStub{}
	audit := &stubAudit{}
	svc := NewRegistryService(store, nil, audit, time.Minute, zap.NewNop())

	dept, err := svc.Create(context.Background(), dto.CreateDepartmentRequest{
		Name:        "  Sports_Department ",
		DisplayName: "Sports Department",
	}, &models.JWTClaims{UserID: "admin-1"})

	require.NoError(t, err)
	assert.Equal(t, "sports_department", dept.Name)
	assert.True(t, dept.IsActive)
	assert.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionDepartmentCreate, audit.logs[0].Action)
}

func TestRegistryCreateDuplicate(t *testing.T) {
	store := &departmentStoreStub{createErr: repository.ErrDuplicateDepartment}
	svc := NewRegistryService(store, nil, nil, time.Minute, zap.NewNop())

	_, err := svc.Create(context.Background(), dto.CreateDepartmentRequest{
		Name:        "library",
		DisplayName: "Library",
	}, nil)

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRegistryUpdateDeactivates(t *testing.T) {
	store := &departmentStoreStub{departments: []models.Department{
		{ID: "d1", Name: "library", DisplayName: "Library", IsActive: true},
	}}
	svc := NewRegistryService(store, nil, nil, time.Minute, zap.NewNop())

	inactive := false
	dept, err := svc.Update(context.Background(), "d1", dto.UpdateDepartmentRequest{IsActive: &inactive}, nil)

	require.NoError(t, err)
	assert.False(t, dept.IsActive)
	require.NotNil(t, store.updated)
	assert.False(t, store.updated.IsActive)
}

func TestRegistryUpdateNotFound(t *testing.T) {
	svc := NewRegistryService(&departmentStoreStub{}, nil, nil, time.Minute, zap.NewNop())

	_, err := svc.Update(context.Background(), "missing", dto.UpdateDepartmentRequest{}, nil)

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
