package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campusflow/nodues-api/internal/models"
)

// Sentinel errors surfaced by the transactional application operations.
var (
	ErrDuplicateRegistration = errors.New("registration number already exists")
	ErrAlreadyDecided        = errors.New("department decision already recorded")
	ErrStatusRowMissing      = errors.New("department status row missing")
	ErrNotRejected           = errors.New("application is not in rejected state")
	ErrCertificateExists     = errors.New("certificate already issued for application")
)

const applicationColumns = `id, user_id, student_name, registration_no, parent_name, school_id, course_id, branch_id,
       contact_no, session_from, session_to, status, certificate_serial, certificate_issued,
       reapplication_count, last_reapplied_at, created_at, updated_at`

const statusColumns = `id, application_id, department_name, status, action_by_user_id, action_at, rejection_reason, updated_at`

// ApplicationRepository persists applications, their per-department status
// rows and the reapplication trail. All multi-row writes run in a single
// transaction so readers never observe a decision without a consistent
// aggregate.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts the application together with one pending status row per
// active department. The pair is atomic: a form can never exist without its
// full status set.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application, departments []string) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	app.Status = models.ApplicationPending

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create application: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertApp = `INSERT INTO applications
	(id, user_id, student_name, registration_no, parent_name, school_id, course_id, branch_id,
	 contact_no, session_from, session_to, status, certificate_issued, reapplication_count, created_at, updated_at)
	VALUES (:id, :user_id, :student_name, :registration_no, :parent_name, :school_id, :course_id, :branch_id,
	 :contact_no, :session_from, :session_to, :status, false, 0, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertApp, app); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateRegistration
			return err
		}
		err = fmt.Errorf("insert application: %w", err)
		return err
	}

	const insertStatus = `INSERT INTO department_statuses
	(id, application_id, department_name, status, updated_at)
	VALUES ($1, $2, $3, $4, $5)`
	for _, dept := range departments {
		if _, err = tx.ExecContext(ctx, insertStatus, uuid.NewString(), app.ID, dept, models.DecisionPending, now); err != nil {
			err = fmt.Errorf("insert status row for %s: %w", dept, err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("commit create application: %w", err)
		return err
	}
	return nil
}

// GetByID fetches an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// GetByUserID fetches the most recent application owned by a student.
func (r *ApplicationRepository) GetByUserID(ctx context.Context, userID string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, userID); err != nil {
		return nil, err
	}
	return &app, nil
}

// GetStatuses returns all department status rows for an application in
// registry display order as persisted.
func (r *ApplicationRepository) GetStatuses(ctx context.Context, applicationID string) ([]models.DepartmentStatus, error) {
	query := fmt.Sprintf(`SELECT %s FROM department_statuses WHERE application_id = $1 ORDER BY department_name`, statusColumns)
	var statuses []models.DepartmentStatus
	if err := r.db.SelectContext(ctx, &statuses, query, applicationID); err != nil {
		return nil, fmt.Errorf("list status rows: %w", err)
	}
	return statuses, nil
}

// List returns applications matching the filter plus a total count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("a.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.PendingFor != "" {
		args = append(args, filter.PendingFor)
		conditions = append(conditions, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM department_statuses s WHERE s.application_id = a.id AND s.department_name = $%d AND s.status = 'pending')`,
			len(args)))
	}
	if len(filter.SchoolIDs) > 0 {
		args = append(args, pq.Array(filter.SchoolIDs))
		conditions = append(conditions, fmt.Sprintf("a.school_id = ANY($%d)", len(args)))
	}
	if len(filter.CourseIDs) > 0 {
		args = append(args, pq.Array(filter.CourseIDs))
		conditions = append(conditions, fmt.Sprintf("a.course_id = ANY($%d)", len(args)))
	}
	if len(filter.BranchIDs) > 0 {
		args = append(args, pq.Array(filter.BranchIDs))
		conditions = append(conditions, fmt.Sprintf("a.branch_id = ANY($%d)", len(args)))
	}
	if filter.RegistrationNo != "" {
		args = append(args, "%"+strings.ToUpper(filter.RegistrationNo)+"%")
		conditions = append(conditions, fmt.Sprintf("a.registration_no LIKE $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM applications a` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM applications a%s ORDER BY a.created_at DESC LIMIT %d OFFSET %d`,
		applicationColumns, where, pageSize, (page-1)*pageSize)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	return apps, total, nil
}

// DecideParams carries a department decision into the aggregate transaction.
type DecideParams struct {
	ApplicationID   string
	DepartmentName  string
	Decision        models.DecisionStatus
	ActingUserID    string
	RejectionReason *string
}

// DecideOutcome reports the post-transaction state.
type DecideOutcome struct {
	Application         models.Application
	Statuses            []models.DepartmentStatus
	Aggregate           models.ApplicationStatus
	CompletedTransition bool // first transition into completed; certificate trigger fires
}

// DecideAndAggregate records one department decision and recomputes the
// aggregate status inside a single transaction. The application row is locked
// FOR UPDATE first, serialising concurrent decisions per application; the
// certificate flag is checked-and-set under the same lock so the completed
// trigger fires exactly once.
func (r *ApplicationRepository) DecideAndAggregate(ctx context.Context, params DecideParams) (outcome *DecideOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin decision: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lockQuery := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 FOR UPDATE`, applicationColumns)
	var app models.Application
	if err = tx.GetContext(ctx, &app, lockQuery, params.ApplicationID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	const updateStatus = `UPDATE department_statuses
	SET status = $1, action_by_user_id = $2, action_at = $3, rejection_reason = $4, updated_at = $3
	WHERE application_id = $5 AND department_name = $6 AND status = 'pending'`
	result, err := tx.ExecContext(ctx, updateStatus,
		params.Decision, params.ActingUserID, now, params.RejectionReason,
		params.ApplicationID, params.DepartmentName)
	if err != nil {
		return nil, fmt.Errorf("update status row: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check status update: %w", err)
	}
	if rows == 0 {
		var existing int
		const probe = `SELECT COUNT(*) FROM department_statuses WHERE application_id = $1 AND department_name = $2`
		if err = tx.GetContext(ctx, &existing, probe, params.ApplicationID, params.DepartmentName); err != nil {
			return nil, fmt.Errorf("probe status row: %w", err)
		}
		if existing == 0 {
			err = ErrStatusRowMissing
		} else {
			err = ErrAlreadyDecided
		}
		return nil, err
	}

	statusQuery := fmt.Sprintf(`SELECT %s FROM department_statuses WHERE application_id = $1 ORDER BY department_name`, statusColumns)
	var statuses []models.DepartmentStatus
	if err = tx.SelectContext(ctx, &statuses, statusQuery, params.ApplicationID); err != nil {
		return nil, fmt.Errorf("reload status rows: %w", err)
	}

	aggregate, err := models.ComputeAggregate(statuses)
	if err != nil {
		return nil, err
	}

	completedTransition := aggregate == models.ApplicationCompleted && !app.CertificateIssued

	const updateApp = `UPDATE applications SET status = $1, certificate_issued = $2, updated_at = $3 WHERE id = $4`
	certIssued := app.CertificateIssued || completedTransition
	if _, err = tx.ExecContext(ctx, updateApp, aggregate, certIssued, now, params.ApplicationID); err != nil {
		return nil, fmt.Errorf("update aggregate status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit decision: %w", err)
	}

	app.Status = aggregate
	app.CertificateIssued = certIssued
	app.UpdatedAt = now
	return &DecideOutcome{
		Application:         app,
		Statuses:            statuses,
		Aggregate:           aggregate,
		CompletedTransition: completedTransition,
	}, nil
}

// RecomputeAggregate re-derives and persists the aggregate status with no
// status-row change. Safe to call repeatedly; the certificate flag guard
// keeps the completed trigger single-shot.
func (r *ApplicationRepository) RecomputeAggregate(ctx context.Context, applicationID string) (outcome *DecideOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin recompute: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lockQuery := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 FOR UPDATE`, applicationColumns)
	var app models.Application
	if err = tx.GetContext(ctx, &app, lockQuery, applicationID); err != nil {
		return nil, err
	}

	statusQuery := fmt.Sprintf(`SELECT %s FROM department_statuses WHERE application_id = $1 ORDER BY department_name`, statusColumns)
	var statuses []models.DepartmentStatus
	if err = tx.SelectContext(ctx, &statuses, statusQuery, applicationID); err != nil {
		return nil, fmt.Errorf("reload status rows: %w", err)
	}

	aggregate, err := models.ComputeAggregate(statuses)
	if err != nil {
		return nil, err
	}

	completedTransition := aggregate == models.ApplicationCompleted && !app.CertificateIssued
	certIssued := app.CertificateIssued || completedTransition

	now := time.Now().UTC()
	const updateApp = `UPDATE applications SET status = $1, certificate_issued = $2, updated_at = $3 WHERE id = $4`
	if _, err = tx.ExecContext(ctx, updateApp, aggregate, certIssued, now, applicationID); err != nil {
		return nil, fmt.Errorf("update aggregate status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit recompute: %w", err)
	}

	app.Status = aggregate
	app.CertificateIssued = certIssued
	app.UpdatedAt = now
	return &DecideOutcome{
		Application:         app,
		Statuses:            statuses,
		Aggregate:           aggregate,
		CompletedTransition: completedTransition,
	}, nil
}

// ReapplyOutcome reports the effect of a reapplication transaction.
type ReapplyOutcome struct {
	Application         models.Application
	ResetDepartments    []string
	ReapplicationNumber int
	Aggregate           models.ApplicationStatus
}

// Editable student fields a reapplication may update. Protected columns
// (status, counters, identifiers) are deliberately not listed.
var reapplyEditableColumns = map[string]string{
	"parent_name":  "parent_name",
	"contact_no":   "contact_no",
	"session_from": "session_from",
	"session_to":   "session_to",
}

// IsReapplyEditable reports whether the named student field may be updated
// during reapplication.
func IsReapplyEditable(field string) bool {
	_, ok := reapplyEditableColumns[field]
	return ok
}

// ResetRejected implements the reapplication transaction: only rows currently
// rejected revert to pending; approved rows keep their decision. Edited
// student fields, the reapplication event row and the recomputed aggregate
// commit atomically with the reset.
func (r *ApplicationRepository) ResetRejected(ctx context.Context, applicationID, studentMessage string, updatedFields map[string]string) (outcome *ReapplyOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reapply: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lockQuery := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 FOR UPDATE`, applicationColumns)
	var app models.Application
	if err = tx.GetContext(ctx, &app, lockQuery, applicationID); err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationRejected {
		err = ErrNotRejected
		return nil, err
	}

	var resetNames []string
	const rejectedQuery = `SELECT department_name FROM department_statuses WHERE application_id = $1 AND status = 'rejected' ORDER BY department_name`
	if err = tx.SelectContext(ctx, &resetNames, rejectedQuery, applicationID); err != nil {
		return nil, fmt.Errorf("list rejected rows: %w", err)
	}

	now := time.Now().UTC()
	const resetQuery = `UPDATE department_statuses
	SET status = 'pending', rejection_reason = NULL, action_at = NULL, action_by_user_id = NULL, updated_at = $1
	WHERE application_id = $2 AND status = 'rejected'`
	if _, err = tx.ExecContext(ctx, resetQuery, now, applicationID); err != nil {
		return nil, fmt.Errorf("reset rejected rows: %w", err)
	}

	statusQuery := fmt.Sprintf(`SELECT %s FROM department_statuses WHERE application_id = $1 ORDER BY department_name`, statusColumns)
	var statuses []models.DepartmentStatus
	if err = tx.SelectContext(ctx, &statuses, statusQuery, applicationID); err != nil {
		return nil, fmt.Errorf("reload status rows: %w", err)
	}

	aggregate, err := models.ComputeAggregate(statuses)
	if err != nil {
		return nil, err
	}

	number := app.ReapplicationCount + 1
	setParts := []string{"status = $1", "reapplication_count = $2", "last_reapplied_at = $3", "updated_at = $3"}
	updateArgs := []interface{}{aggregate, number, now}
	for field, value := range updatedFields {
		column, ok := reapplyEditableColumns[field]
		if !ok {
			continue
		}
		updateArgs = append(updateArgs, value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(updateArgs)))
	}
	updateArgs = append(updateArgs, applicationID)
	updateApp := fmt.Sprintf(`UPDATE applications SET %s WHERE id = $%d`, strings.Join(setParts, ", "), len(updateArgs))
	if _, err = tx.ExecContext(ctx, updateApp, updateArgs...); err != nil {
		return nil, fmt.Errorf("update application on reapply: %w", err)
	}

	resetJSON, err := json.Marshal(resetNames)
	if err != nil {
		return nil, fmt.Errorf("marshal reset departments: %w", err)
	}
	const insertEvent = `INSERT INTO reapplication_events
	(id, application_id, reapplication_number, student_message, previous_status, reset_departments, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, insertEvent,
		uuid.NewString(), applicationID, number, studentMessage, models.ApplicationRejected, resetJSON, now); err != nil {
		return nil, fmt.Errorf("insert reapplication event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reapply: %w", err)
	}

	app.Status = aggregate
	app.ReapplicationCount = number
	app.LastReappliedAt = &now
	app.UpdatedAt = now
	return &ReapplyOutcome{
		Application:         app,
		ResetDepartments:    resetNames,
		ReapplicationNumber: number,
		Aggregate:           aggregate,
	}, nil
}

// IntegrityIssue is one application missing a required status row.
type IntegrityIssue struct {
	ApplicationID  string `db:"application_id"`
	RegistrationNo string `db:"registration_no"`
	DepartmentName string `db:"department_name"`
}

// FindMissingStatuses reports (application, active department) pairs with no
// status row. Read-only: healing is the explicit repair operation below.
func (r *ApplicationRepository) FindMissingStatuses(ctx context.Context) ([]IntegrityIssue, error) {
	const query = `SELECT a.id AS application_id, a.registration_no, d.name AS department_name
	FROM applications a
	CROSS JOIN departments d
	LEFT JOIN department_statuses s ON s.application_id = a.id AND s.department_name = d.name
	WHERE d.is_active = true AND s.id IS NULL
	ORDER BY a.created_at, d.display_order`
	var issues []IntegrityIssue
	if err := r.db.SelectContext(ctx, &issues, query); err != nil {
		return nil, fmt.Errorf("scan missing status rows: %w", err)
	}
	return issues, nil
}

// InsertMissingStatuses creates pending rows for the named departments and
// recomputes the aggregate, all in one transaction. Invoked only by the
// explicit admin repair operation.
func (r *ApplicationRepository) InsertMissingStatuses(ctx context.Context, applicationID string, departments []string) (inserted int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin repair: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lockQuery := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 FOR UPDATE`, applicationColumns)
	var app models.Application
	if err = tx.GetContext(ctx, &app, lockQuery, applicationID); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	const insertStatus = `INSERT INTO department_statuses (id, application_id, department_name, status, updated_at)
	VALUES ($1, $2, $3, 'pending', $4)
	ON CONFLICT (application_id, department_name) DO NOTHING`
	for _, dept := range departments {
		var result sql.Result
		result, err = tx.ExecContext(ctx, insertStatus, uuid.NewString(), applicationID, dept, now)
		if err != nil {
			return 0, fmt.Errorf("insert missing row for %s: %w", dept, err)
		}
		rows, raErr := result.RowsAffected()
		if raErr == nil {
			inserted += int(rows)
		}
	}

	statusQuery := fmt.Sprintf(`SELECT %s FROM department_statuses WHERE application_id = $1 ORDER BY department_name`, statusColumns)
	var statuses []models.DepartmentStatus
	if err = tx.SelectContext(ctx, &statuses, statusQuery, applicationID); err != nil {
		return 0, fmt.Errorf("reload status rows: %w", err)
	}
	aggregate, err := models.ComputeAggregate(statuses)
	if err != nil {
		return 0, err
	}
	const updateApp = `UPDATE applications SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err = tx.ExecContext(ctx, updateApp, aggregate, now, applicationID); err != nil {
		return 0, fmt.Errorf("update aggregate after repair: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit repair: %w", err)
	}
	return inserted, nil
}

// SetCertificateSerial stores the issued certificate reference.
func (r *ApplicationRepository) SetCertificateSerial(ctx context.Context, applicationID, serial string) error {
	const query = `UPDATE applications SET certificate_serial = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, serial, time.Now().UTC(), applicationID); err != nil {
		return fmt.Errorf("set certificate serial: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
