package mail

import (
	"crypto/tls"
	"fmt"

	gomail "github.com/go-mail/mail/v2"

	"github.com/campusflow/nodues-api/pkg/config"
)

// Mailer sends transactional email over SMTP with mandatory STARTTLS.
type Mailer struct {
	cfg config.SMTPConfig
}

// NewMailer constructs a mailer from SMTP configuration.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Configured reports whether the mailer has enough configuration to send.
func (m *Mailer) Configured() bool {
	return m.cfg.Host != "" && m.cfg.From != ""
}

// Send delivers a single HTML email to the given recipients.
func (m *Mailer) Send(to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return nil
	}
	if !m.Configured() {
		return fmt.Errorf("smtp not configured (SMTP_HOST/SMTP_FROM)")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Password)
	dialer.StartTLSPolicy = gomail.MandatoryStartTLS
	dialer.TLSConfig = &tls.Config{
		ServerName:         m.cfg.Host,
		InsecureSkipVerify: m.cfg.SkipTLSVerify,
	}

	return dialer.DialAndSend(msg)
}
