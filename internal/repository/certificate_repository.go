package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/nodues-api/internal/models"
)

const certificateColumns = `id, application_id, serial, file_path, sha256, issued_at, verification_count`

// CertificateRepository persists issued certificate records.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create inserts a certificate record.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO certificates (id, application_id, serial, file_path, sha256, issued_at, verification_count)
	VALUES (:id, :application_id, :serial, :file_path, :sha256, :issued_at, 0)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		if isUniqueViolation(err) {
			return ErrCertificateExists
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// GetByApplicationID returns the certificate for an application, if issued.
func (r *CertificateRepository) GetByApplicationID(ctx context.Context, applicationID string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE application_id = $1 LIMIT 1`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, applicationID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// GetBySerial returns a certificate by its public serial number.
func (r *CertificateRepository) GetBySerial(ctx context.Context, serial string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE serial = $1 LIMIT 1`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, serial); err != nil {
		return nil, err
	}
	return &cert, nil
}

// IncrementVerificationCount bumps the public verification counter.
func (r *CertificateRepository) IncrementVerificationCount(ctx context.Context, serial string) error {
	const query = `UPDATE certificates SET verification_count = verification_count + 1 WHERE serial = $1`
	if _, err := r.db.ExecContext(ctx, query, serial); err != nil {
		return fmt.Errorf("increment verification count: %w", err)
	}
	return nil
}

// NextSerialSequence returns the next value of the certificate serial sequence.
func (r *CertificateRepository) NextSerialSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.GetContext(ctx, &seq, `SELECT nextval('certificate_serial_seq')`); err != nil {
		return 0, fmt.Errorf("next certificate sequence: %w", err)
	}
	return seq, nil
}
