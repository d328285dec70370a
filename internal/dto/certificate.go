package dto

import "time"

// CertificateDownload carries a signed, time-limited download token.
type CertificateDownload struct {
	Token     string    `json:"token"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CertificateVerification is the public verification result for a serial.
type CertificateVerification struct {
	Serial            string    `json:"serial"`
	StudentName       string    `json:"student_name"`
	RegistrationNo    string    `json:"registration_no"`
	IssuedAt          time.Time `json:"issued_at"`
	SHA256            string    `json:"sha256"`
	VerificationCount int       `json:"verification_count"`
	Valid             bool      `json:"valid"`
}
