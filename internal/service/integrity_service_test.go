package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/internal/repository"
)

type integrityStoreStub struct {
	issues     []repository.IntegrityIssue
	inserted   map[string][]string
	recomputed []string
	outcomes   map[string]*repository.DecideOutcome
}

func (s *integrityStoreStub) FindMissingStatuses(context.Context) ([]repository.IntegrityIssue, error) {
	return s.issues, nil
}

func (s *integrityStoreStub) InsertMissingStatuses(_ context.Context, applicationID string, departments []string) (int, error) {
	if s.inserted == nil {
		s.inserted = map[string][]string{}
	}
	s.inserted[applicationID] = departments
	return len(departments), nil
}

func (s *integrityStoreStub) RecomputeAggregate(_ context.Context, applicationID string) (*repository.DecideOutcome, error) {
	s.recomputed = append(s.recomputed, applicationID)
	if outcome, ok := s.outcomes[applicationID]; ok {
		return outcome, nil
	}
	return &repository.DecideOutcome{
		Application: models.Application{ID: applicationID, Status: models.ApplicationPending},
		Aggregate:   models.ApplicationPending,
	}, nil
}

func TestScanOrphansGroupsPerApplication(t *testing.T) {
	store := &integrityStoreStub{issues: []repository.IntegrityIssue{
		{ApplicationID: "app-1", RegistrationNo: "JU2021CSE042", DepartmentName: "library"},
		{ApplicationID: "app-1", RegistrationNo: "JU2021CSE042", DepartmentName: "hostel"},
		{ApplicationID: "app-2", RegistrationNo: "JU2020LAW007", DepartmentName: "accounts"},
	}}
	svc := NewIntegrityService(store, nil, nil, nil, zap.NewNop())

	reports, err := svc.ScanOrphans(context.Background())

	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "app-1", reports[0].ApplicationID)
	assert.Equal(t, []string{"library", "hostel"}, reports[0].MissingDepartments)
	assert.Equal(t, "app-2", reports[1].ApplicationID)
	assert.Equal(t, []string{"accounts"}, reports[1].MissingDepartments)
}

func TestRepairAllOrphans(t *testing.T) {
	store := &integrityStoreStub{issues: []repository.IntegrityIssue{
		{ApplicationID: "app-1", RegistrationNo: "JU2021CSE042", DepartmentName: "library"},
		{ApplicationID: "app-2", RegistrationNo: "JU2020LAW007", DepartmentName: "accounts"},
		{ApplicationID: "app-2", RegistrationNo: "JU2020LAW007", DepartmentName: "hostel"},
	}}
	audit := &stubAudit{}
	svc := NewIntegrityService(store, nil, audit, nil, zap.NewNop())

	result, err := svc.Repair(context.Background(), &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, "")

	require.NoError(t, err)
	assert.Equal(t, 2, result.Repaired)
	assert.Equal(t, 3, result.RowsInserted)
	assert.Equal(t, []string{"library"}, store.inserted["app-1"])
	assert.Equal(t, []string{"accounts", "hostel"}, store.inserted["app-2"])
	assert.ElementsMatch(t, []string{"app-1", "app-2"}, store.recomputed)
	assert.Len(t, audit.logs, 1)
}

func TestRepairSingleApplicationRecomputesEvenWithoutMissingRows(t *testing.T) {
	store := &integrityStoreStub{}
	svc := NewIntegrityService(store, nil, nil, nil, zap.NewNop())

	result, err := svc.Repair(context.Background(), &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, "app-9")

	require.NoError(t, err)
	assert.Equal(t, 1, result.Repaired)
	assert.Zero(t, result.RowsInserted)
	assert.Equal(t, []string{"app-9"}, store.recomputed)
	assert.Empty(t, store.inserted)
}

func TestRepairIssuesCertificateForCompletedApplication(t *testing.T) {
	store := &integrityStoreStub{outcomes: map[string]*repository.DecideOutcome{
		"app-1": {
			Application: models.Application{ID: "app-1", Status: models.ApplicationCompleted, CertificateIssued: true},
			Aggregate:   models.ApplicationCompleted,
		},
	}}
	issuer := &stubCertIssuer{cert: &models.Certificate{Serial: "NDC-2026-000001"}}
	svc := NewIntegrityService(store, issuer, nil, nil, zap.NewNop())

	_, err := svc.Repair(context.Background(), &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, "app-1")

	require.NoError(t, err)
	assert.Equal(t, 1, issuer.issued)
}
