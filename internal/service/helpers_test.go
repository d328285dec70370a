package service

import (
	"context"
	"database/sql"

	"github.com/campusflow/nodues-api/internal/models"
)

// Shared stubs for the service tests. Each store stub lives next to the
// service it exercises; the cross-cutting collaborators are defined here.

type stubRegistry struct {
	registry *models.Registry
	err      error
}

func (s *stubRegistry) Load(context.Context) (*models.Registry, error) {
	return s.registry, s.err
}

type stubAudit struct {
	logs []*models.AuditLog
}

func (s *stubAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type stubNotifier struct {
	submitted int
	rejected  int
	completed int
	reapplied int
	lastReset []string
}

func (s *stubNotifier) ApplicationSubmitted(context.Context, *models.Application, []string) {
	s.submitted++
}

func (s *stubNotifier) ApplicationRejected(_ context.Context, _ *models.Application, _, _ string) {
	s.rejected++
}

func (s *stubNotifier) ApplicationCompleted(context.Context, *models.Application) {
	s.completed++
}

func (s *stubNotifier) ApplicationReapplied(_ context.Context, _ *models.Application, reset []string) {
	s.reapplied++
	s.lastReset = reset
}

type stubUsers struct {
	users map[string]*models.User
}

func (s *stubUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type stubCertIssuer struct {
	cert   *models.Certificate
	err    error
	issued int
}

func (s *stubCertIssuer) Issue(_ context.Context, _ *models.Application, _ []models.DepartmentStatus) (*models.Certificate, error) {
	s.issued++
	return s.cert, s.err
}

func testRegistry(names ...string) *models.Registry {
	departments := make([]models.Department, 0, len(names))
	for i, name := range names {
		departments = append(departments, models.Department{
			ID:           name + "-id",
			Name:         name,
			DisplayName:  name,
			IsActive:     true,
			DisplayOrder: i + 1,
		})
	}
	return models.NewRegistry(departments)
}

func strPtr(v string) *string {
	return &v
}
