package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/pkg/config"
	"github.com/campusflow/nodues-api/pkg/jobs"
)

// Notification event types, used as job types and metric labels.
const (
	EventApplicationSubmitted = "application_submitted"
	EventApplicationRejected  = "application_rejected"
	EventApplicationCompleted = "application_completed"
	EventApplicationReapplied = "application_reapplied"
)

type emailSender interface {
	Configured() bool
	Send(to []string, subject, htmlBody string) error
}

type recipientDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindStaffByDepartments(ctx context.Context, departments []string) ([]models.User, error)
}

type emailPayload struct {
	Recipients []string
	Subject    string
	HTMLBody   string
}

// NotificationService emails students and department staff about application
// lifecycle events. Delivery runs on a background worker queue; failures are
// retried and then logged, never propagated into the request path.
type NotificationService struct {
	cfg     config.NotificationsConfig
	mailer  emailSender
	users   recipientDirectory
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs the service and its delivery queue.
func NewNotificationService(cfg config.NotificationsConfig, mailer emailSender, users recipientDirectory, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		cfg:     cfg,
		mailer:  mailer,
		users:   users,
		metrics: metrics,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

func (s *NotificationService) deliver(_ context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(emailPayload)
	if !ok {
		s.logger.Error("notification job carries unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	err := s.mailer.Send(payload.Recipients, payload.Subject, payload.HTMLBody)
	s.metrics.RecordNotification(job.Type, err == nil)
	if err != nil {
		return fmt.Errorf("send %s notification: %w", job.Type, err)
	}
	return nil
}

func (s *NotificationService) enabled() bool {
	return s != nil && s.cfg.Enabled && s.mailer != nil && s.mailer.Configured()
}

func (s *NotificationService) enqueue(event string, recipients []string, subject, body string) {
	if len(recipients) == 0 {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    event,
		Payload: emailPayload{Recipients: recipients, Subject: subject, HTMLBody: body},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("event", event), zap.Error(err))
	}
}

// staffRecipients resolves the email addresses of active department staff whose
// scope admits the application.
func (s *NotificationService) staffRecipients(ctx context.Context, app *models.Application, departments []string) []string {
	staff, err := s.users.FindStaffByDepartments(ctx, departments)
	if err != nil {
		s.logger.Warn("failed to resolve staff recipients", zap.Error(err))
		return nil
	}
	recipients := make([]string, 0, len(staff))
	for i := range staff {
		if !ScopeAllows(staff[i].Scope(), app) {
			continue
		}
		recipients = append(recipients, staff[i].Email)
	}
	return recipients
}

func (s *NotificationService) studentRecipient(ctx context.Context, app *models.Application) []string {
	student, err := s.users.FindByID(ctx, app.UserID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to resolve student recipient", zap.Error(err))
		}
		return nil
	}
	return []string{student.Email}
}

// ApplicationSubmitted notifies staff of the departments that now hold a
// pending decision for the new application.
func (s *NotificationService) ApplicationSubmitted(ctx context.Context, app *models.Application, departments []string) {
	if !s.enabled() {
		return
	}
	recipients := s.staffRecipients(ctx, app, departments)
	subject := fmt.Sprintf("New no dues application: %s", app.RegistrationNo)
	body := fmt.Sprintf(
		`<p>%s (%s) submitted a no dues clearance application.</p>
<p>A decision from your department is pending.</p>
<p><a href="%s">Open the clearance dashboard</a></p>`,
		html.EscapeString(app.StudentName), html.EscapeString(app.RegistrationNo), s.cfg.DashboardURL)
	s.enqueue(EventApplicationSubmitted, recipients, subject, body)
}

// ApplicationRejected notifies the student which department rejected and why.
func (s *NotificationService) ApplicationRejected(ctx context.Context, app *models.Application, departmentName, reason string) {
	if !s.enabled() {
		return
	}
	subject := "Your no dues application was rejected"
	body := fmt.Sprintf(
		`<p>Dear %s,</p>
<p>Your no dues application (%s) was rejected by <strong>%s</strong>.</p>
<p>Reason: %s</p>
<p>Please resolve the issue and reapply from your student portal.</p>`,
		html.EscapeString(app.StudentName), html.EscapeString(app.RegistrationNo),
		html.EscapeString(departmentName), html.EscapeString(reason))
	s.enqueue(EventApplicationRejected, s.studentRecipient(ctx, app), subject, body)
}

// ApplicationCompleted notifies the student that every department approved
// and the certificate is ready.
func (s *NotificationService) ApplicationCompleted(ctx context.Context, app *models.Application) {
	if !s.enabled() {
		return
	}
	subject := "No dues clearance completed"
	body := fmt.Sprintf(
		`<p>Dear %s,</p>
<p>All departments have approved your no dues application (%s).</p>
<p>Your clearance certificate is ready for download from your student portal.</p>`,
		html.EscapeString(app.StudentName), html.EscapeString(app.RegistrationNo))
	s.enqueue(EventApplicationCompleted, s.studentRecipient(ctx, app), subject, body)
}

// ApplicationReapplied notifies staff of the departments whose rejection was
// reset back to pending.
func (s *NotificationService) ApplicationReapplied(ctx context.Context, app *models.Application, resetDepartments []string) {
	if !s.enabled() {
		return
	}
	recipients := s.staffRecipients(ctx, app, resetDepartments)
	subject := fmt.Sprintf("Reapplication pending review: %s", app.RegistrationNo)
	body := fmt.Sprintf(
		`<p>%s (%s) reapplied after rejection.</p>
<p>Departments awaiting a fresh decision: %s.</p>
<p><a href="%s">Open the clearance dashboard</a></p>`,
		html.EscapeString(app.StudentName), html.EscapeString(app.RegistrationNo),
		html.EscapeString(strings.Join(resetDepartments, ", ")), s.cfg.DashboardURL)
	s.enqueue(EventApplicationReapplied, recipients, subject, body)
}
