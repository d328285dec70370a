package models

import "time"

// Certificate records an issued clearance certificate artifact. One per
// application at most; issuance is guarded by the application's
// certificate_issued flag.
type Certificate struct {
	ID                string    `db:"id" json:"id"`
	ApplicationID     string    `db:"application_id" json:"application_id"`
	Serial            string    `db:"serial" json:"serial"`
	FilePath          string    `db:"file_path" json:"file_path"`
	SHA256            string    `db:"sha256" json:"sha256"`
	IssuedAt          time.Time `db:"issued_at" json:"issued_at"`
	VerificationCount int       `db:"verification_count" json:"verification_count"`
}
