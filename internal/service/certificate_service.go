package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/nodues-api/internal/dto"
	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/internal/repository"
	"github.com/campusflow/nodues-api/pkg/config"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
	"github.com/campusflow/nodues-api/pkg/export"
	"github.com/campusflow/nodues-api/pkg/storage"
)

type certificateStore interface {
	Create(ctx context.Context, cert *models.Certificate) error
	GetByApplicationID(ctx context.Context, applicationID string) (*models.Certificate, error)
	GetBySerial(ctx context.Context, serial string) (*models.Certificate, error)
	IncrementVerificationCount(ctx context.Context, serial string) error
	NextSerialSequence(ctx context.Context) (int64, error)
}

type certificateAppStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	SetCertificateSerial(ctx context.Context, applicationID, serial string) error
}

type fileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type certificateRenderer interface {
	Render(data export.CertificateData) ([]byte, error)
}

// CertificateService issues, serves and verifies clearance certificates.
// Issue is idempotent: the completed trigger fires once, and retries after a
// partial failure converge on the already-persisted record.
type CertificateService struct {
	certs    certificateStore
	apps     certificateAppStore
	registry registryLoader
	files    fileStore
	renderer certificateRenderer
	signer   *storage.SignedURLSigner
	cfg      config.CertificatesConfig
	audit    auditLogger
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewCertificateService constructs the service.
func NewCertificateService(certs certificateStore, apps certificateAppStore, registry registryLoader, files fileStore, renderer certificateRenderer, signer *storage.SignedURLSigner, cfg config.CertificatesConfig, audit auditLogger, metrics *MetricsService, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		certs:    certs,
		apps:     apps,
		registry: registry,
		files:    files,
		renderer: renderer,
		signer:   signer,
		cfg:      cfg,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
	}
}

// Issue renders and persists the certificate for a completed application.
// Calling it again for the same application returns the existing record.
func (s *CertificateService) Issue(ctx context.Context, app *models.Application, statuses []models.DepartmentStatus) (*models.Certificate, error) {
	existing, err := s.certs.GetByApplicationID(ctx, app.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing certificate")
	}

	seq, err := s.certs.NextSerialSequence(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate certificate serial")
	}
	issuedAt := time.Now().UTC()
	serial := fmt.Sprintf("NDC-%d-%06d", issuedAt.Year(), seq)

	pdf, err := s.renderer.Render(export.CertificateData{
		UniversityName: s.cfg.UniversityName,
		StudentName:    app.StudentName,
		RegistrationNo: app.RegistrationNo,
		School:         app.SchoolID,
		Course:         derefOrEmpty(app.CourseID),
		Branch:         derefOrEmpty(app.BranchID),
		Serial:         serial,
		IssuedAt:       issuedAt,
		Departments:    s.departmentDisplayNames(ctx, statuses),
		SignatoryName:  s.cfg.SignatoryName,
		SignatoryTitle: s.cfg.SignatoryTitle,
		VerifyURL:      fmt.Sprintf("%s/%s", s.cfg.VerifyBaseURL, serial),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}

	digest := sha256.Sum256(pdf)
	relPath := fmt.Sprintf("%d/%s.pdf", issuedAt.Year(), serial)
	if _, err := s.files.Save(relPath, pdf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}

	cert := &models.Certificate{
		ApplicationID: app.ID,
		Serial:        serial,
		FilePath:      relPath,
		SHA256:        hex.EncodeToString(digest[:]),
		IssuedAt:      issuedAt,
	}
	if err := s.certs.Create(ctx, cert); err != nil {
		if errors.Is(err, repository.ErrCertificateExists) {
			// Lost a race with a concurrent issuance; the stored record wins.
			return s.certs.GetByApplicationID(ctx, app.ID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist certificate")
	}

	if err := s.apps.SetCertificateSerial(ctx, app.ID, serial); err != nil {
		s.logger.Warn("failed to store certificate serial on application",
			zap.String("application_id", app.ID), zap.Error(err))
	}

	s.metrics.RecordCertificateIssued()
	s.emitAudit(ctx, app, cert)
	s.logger.Info("certificate issued",
		zap.String("application_id", app.ID),
		zap.String("serial", serial))
	return cert, nil
}

// DownloadToken returns a signed, time-limited token for the application's
// certificate. Students may fetch only their own certificate.
func (s *CertificateService) DownloadToken(ctx context.Context, claims *models.JWTClaims, applicationID string) (*dto.CertificateDownload, error) {
	cert, err := s.certs.GetByApplicationID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not issued for this application")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}

	switch claims.Role {
	case models.RoleStudent:
		app, err := s.apps.GetByID(ctx, applicationID)
		if err != nil {
			return nil, appErrors.ErrNotFound
		}
		if app.UserID != claims.UserID {
			return nil, appErrors.ErrForbidden
		}
	case models.RoleAdmin, models.RoleSuperAdmin:
		// full access
	default:
		return nil, appErrors.ErrForbidden
	}

	token, expiresAt, err := s.signer.Generate(cert.Serial, cert.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return &dto.CertificateDownload{Token: token, ExpiresAt: expiresAt}, nil
}

// Open validates a download token and returns the certificate file handle.
func (s *CertificateService) Open(ctx context.Context, token string) (*os.File, *models.Certificate, error) {
	serial, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	cert, err := s.certs.GetBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if cert.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}

	file, err := s.files.Open(cert.FilePath)
	if err != nil {
		s.logger.Error("certificate file missing from storage",
			zap.String("serial", serial), zap.String("path", cert.FilePath), zap.Error(err))
		return nil, nil, appErrors.Clone(appErrors.ErrIntegrity, "certificate artifact missing")
	}
	return file, cert, nil
}

// Verify is the public verification lookup by serial. Every successful lookup
// increments the verification counter.
func (s *CertificateService) Verify(ctx context.Context, serial string) (*dto.CertificateVerification, error) {
	cert, err := s.certs.GetBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}

	app, err := s.apps.GetByID(ctx, cert.ApplicationID)
	if err != nil {
		s.logger.Error("certificate references missing application",
			zap.String("serial", serial), zap.String("application_id", cert.ApplicationID))
		return nil, appErrors.Clone(appErrors.ErrIntegrity, "certificate references a missing application")
	}

	if err := s.certs.IncrementVerificationCount(ctx, serial); err != nil {
		s.logger.Warn("failed to increment verification count",
			zap.String("serial", serial), zap.Error(err))
	}
	s.metrics.RecordCertificateVerification()

	return &dto.CertificateVerification{
		Serial:            cert.Serial,
		StudentName:       app.StudentName,
		RegistrationNo:    app.RegistrationNo,
		IssuedAt:          cert.IssuedAt,
		SHA256:            cert.SHA256,
		VerificationCount: cert.VerificationCount + 1,
		Valid:             true,
	}, nil
}

func (s *CertificateService) departmentDisplayNames(ctx context.Context, statuses []models.DepartmentStatus) []string {
	registry, err := s.registry.Load(ctx)
	names := make([]string, 0, len(statuses))
	for _, row := range statuses {
		if row.Status != models.DecisionApproved {
			continue
		}
		display := row.DepartmentName
		if err == nil {
			if dept, ok := registry.Lookup(row.DepartmentName); ok {
				display = dept.DisplayName
			}
		}
		names = append(names, display)
	}
	return names
}

func (s *CertificateService) emitAudit(ctx context.Context, app *models.Application, cert *models.Certificate) {
	if s.audit == nil {
		return
	}
	raw, _ := json.Marshal(map[string]string{"serial": cert.Serial, "sha256": cert.SHA256})
	log := &models.AuditLog{
		Action:     models.AuditActionCertificateIssue,
		Resource:   "certificate",
		ResourceID: &cert.ID,
		NewValues:  raw,
		IPAddress:  "system",
		UserAgent:  "certificate-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func derefOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
