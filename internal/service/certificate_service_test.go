package service

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/pkg/config"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
	"github.com/campusflow/nodues-api/pkg/export"
	"github.com/campusflow/nodues-api/pkg/storage"
)

type certStoreStub struct {
	byApp      map[string]*models.Certificate
	bySerial   map[string]*models.Certificate
	nextSeq    int64
	created    *models.Certificate
	increments []string
}

func (s *certStoreStub) Create(_ context.Context, cert *models.Certificate) error {
	s.created = cert
	if s.byApp == nil {
		s.byApp = map[string]*models.Certificate{}
	}
	s.byApp[cert.ApplicationID] = cert
	return nil
}

func (s *certStoreStub) GetByApplicationID(_ context.Context, applicationID string) (*models.Certificate, error) {
	cert, ok := s.byApp[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cert, nil
}

func (s *certStoreStub) GetBySerial(_ context.Context, serial string) (*models.Certificate, error) {
	cert, ok := s.bySerial[serial]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cert, nil
}

func (s *certStoreStub) IncrementVerificationCount(_ context.Context, serial string) error {
	s.increments = append(s.increments, serial)
	return nil
}

func (s *certStoreStub) NextSerialSequence(context.Context) (int64, error) {
	s.nextSeq++
	return s.nextSeq, nil
}

type certAppStoreStub struct {
	apps    map[string]*models.Application
	serials map[string]string
}

func (s *certAppStoreStub) GetByID(_ context.Context, id string) (*models.Application, error) {
	app, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return app, nil
}

func (s *certAppStoreStub) SetCertificateSerial(_ context.Context, applicationID, serial string) error {
	if s.serials == nil {
		s.serials = map[string]string{}
	}
	s.serials[applicationID] = serial
	return nil
}

type memFileStore struct {
	saved map[string][]byte
}

func (s *memFileStore) Save(filename string, data []byte) (string, error) {
	if s.saved == nil {
		s.saved = map[string][]byte{}
	}
	s.saved[filename] = data
	return filename, nil
}

func (s *memFileStore) Open(string) (*os.File, error) {
	return nil, os.ErrNotExist
}

type stubRenderer struct{}

func (stubRenderer) Render(export.CertificateData) ([]byte, error) {
	return []byte("%PDF-1.4 stub"), nil
}

func newCertificateService(certs *certStoreStub, apps *certAppStoreStub, files *memFileStore) *CertificateService {
	cfg := config.CertificatesConfig{
		SignedURLSecret: "test-secret",
		SignedURLTTL:    time.Hour,
		VerifyBaseURL:   "http://localhost/verify",
		UniversityName:  "Test University",
	}
	signer := storage.NewSignedURLSigner(cfg.SignedURLSecret, cfg.SignedURLTTL)
	return NewCertificateService(certs, apps, &stubRegistry{registry: testRegistry("library")},
		files, stubRenderer{}, signer, cfg, &stubAudit{}, nil, zap.NewNop())
}

func TestIssueCreatesCertificateOnce(t *testing.T) {
	certs := &certStoreStub{}
	apps := &certAppStoreStub{}
	files := &memFileStore{}
	svc := newCertificateService(certs, apps, files)

	app := &models.Application{ID: "app-1", StudentName: "Asha Verma", RegistrationNo: "JU2021CSE042", SchoolID: "school-eng"}
	statuses := []models.DepartmentStatus{
		{DepartmentName: "library", Status: models.DecisionApproved},
	}

	cert, err := svc.Issue(context.Background(), app, statuses)
	require.NoError(t, err)
	assert.Regexp(t, `^NDC-\d{4}-000001$`, cert.Serial)
	assert.NotEmpty(t, cert.SHA256)
	assert.Contains(t, files.saved, cert.FilePath)
	assert.Equal(t, cert.Serial, apps.serials["app-1"])

	// Second call converges on the stored record without re-rendering.
	again, err := svc.Issue(context.Background(), app, statuses)
	require.NoError(t, err)
	assert.Equal(t, cert.Serial, again.Serial)
	assert.Equal(t, int64(1), certs.nextSeq)
}

func TestDownloadTokenOwnershipAndRoundTrip(t *testing.T) {
	cert := &models.Certificate{ApplicationID: "app-1", Serial: "NDC-2026-000007", FilePath: "2026/NDC-2026-000007.pdf"}
	certs := &certStoreStub{
		byApp:    map[string]*models.Certificate{"app-1": cert},
		bySerial: map[string]*models.Certificate{cert.Serial: cert},
	}
	apps := &certAppStoreStub{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", UserID: "student-1"},
	}}
	svc := newCertificateService(certs, apps, &memFileStore{})

	_, err := svc.DownloadToken(context.Background(), &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent}, "app-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	download, err := svc.DownloadToken(context.Background(), &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}, "app-1")
	require.NoError(t, err)
	assert.NotEmpty(t, download.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), download.ExpiresAt, time.Minute)
}

func TestDownloadTokenMissingCertificate(t *testing.T) {
	svc := newCertificateService(&certStoreStub{}, &certAppStoreStub{}, &memFileStore{})

	_, err := svc.DownloadToken(context.Background(), &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, "app-1")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestOpenRejectsTamperedToken(t *testing.T) {
	svc := newCertificateService(&certStoreStub{}, &certAppStoreStub{}, &memFileStore{})

	_, _, err := svc.Open(context.Background(), "not-a-valid.token.at.all")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestVerifyIncrementsCounter(t *testing.T) {
	cert := &models.Certificate{
		ApplicationID:     "app-1",
		Serial:            "NDC-2026-000007",
		SHA256:            "abc123",
		IssuedAt:          time.Now().UTC(),
		VerificationCount: 4,
	}
	certs := &certStoreStub{bySerial: map[string]*models.Certificate{cert.Serial: cert}}
	apps := &certAppStoreStub{apps: map[string]*models.Application{
		"app-1": {ID: "app-1", StudentName: "Asha Verma", RegistrationNo: "JU2021CSE042"},
	}}
	svc := newCertificateService(certs, apps, &memFileStore{})

	result, err := svc.Verify(context.Background(), cert.Serial)

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "Asha Verma", result.StudentName)
	assert.Equal(t, 5, result.VerificationCount)
	assert.Equal(t, []string{cert.Serial}, certs.increments)
}

func TestVerifyUnknownSerial(t *testing.T) {
	svc := newCertificateService(&certStoreStub{}, &certAppStoreStub{}, &memFileStore{})

	_, err := svc.Verify(context.Background(), "NDC-2026-999999")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
