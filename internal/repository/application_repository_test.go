package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/nodues-api/internal/models"
)

func newApplicationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func applicationColumnList() []string {
	return []string{
		"id", "user_id", "student_name", "registration_no", "parent_name", "school_id", "course_id", "branch_id",
		"contact_no", "session_from", "session_to", "status", "certificate_serial", "certificate_issued",
		"reapplication_count", "last_reapplied_at", "created_at", "updated_at",
	}
}

func statusColumnList() []string {
	return []string{"id", "application_id", "department_name", "status", "action_by_user_id", "action_at", "rejection_reason", "updated_at"}
}

func addApplicationRow(rows *sqlmock.Rows, id string, status models.ApplicationStatus, certIssued bool) {
	now := time.Now()
	rows.AddRow(id, "student-1", "Asha Verma", "JU2021CSE042", nil, "school-eng", nil, nil,
		nil, nil, nil, status, nil, certIssued, 0, nil, now, now)
}

func TestApplicationRepositoryCreateInsertsStatusRows(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO department_statuses")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO department_statuses")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app := &models.Application{
		UserID:         "student-1",
		StudentName:    "Asha Verma",
		RegistrationNo: "JU2021CSE042",
		SchoolID:       "school-eng",
	}
	require.NoError(t, repo.Create(context.Background(), app, []string{"library", "hostel"}))
	require.Equal(t, models.ApplicationPending, app.Status)
	require.NotEmpty(t, app.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryCreateDuplicateRegistration(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Application{
		UserID:         "student-1",
		StudentName:    "Asha Verma",
		RegistrationNo: "JU2021CSE042",
		SchoolID:       "school-eng",
	}, []string{"library"})
	require.ErrorIs(t, err, ErrDuplicateRegistration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideAndAggregateApproval(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)

	appRows := sqlmock.NewRows(applicationColumnList())
	addApplicationRow(appRows, "app-1", models.ApplicationPending, false)

	statusRows := sqlmock.NewRows(statusColumnList()).
		AddRow("s1", "app-1", "hostel", "pending", nil, nil, nil, time.Now()).
		AddRow("s2", "app-1", "library", "approved", "staff-1", time.Now(), nil, time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("app-1").WillReturnRows(appRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE department_statuses")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM department_statuses")).WithArgs("app-1").WillReturnRows(statusRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.DecideAndAggregate(context.Background(), DecideParams{
		ApplicationID:  "app-1",
		DepartmentName: "library",
		Decision:       models.DecisionApproved,
		ActingUserID:   "staff-1",
	})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationInProgress, outcome.Aggregate)
	require.False(t, outcome.CompletedTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideAndAggregateCompletedTransition(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)

	appRows := sqlmock.NewRows(applicationColumnList())
	addApplicationRow(appRows, "app-1", models.ApplicationInProgress, false)

	statusRows := sqlmock.NewRows(statusColumnList()).
		AddRow("s1", "app-1", "hostel", "approved", "staff-2", time.Now(), nil, time.Now()).
		AddRow("s2", "app-1", "library", "approved", "staff-1", time.Now(), nil, time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("app-1").WillReturnRows(appRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE department_statuses")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM department_statuses")).WithArgs("app-1").WillReturnRows(statusRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.DecideAndAggregate(context.Background(), DecideParams{
		ApplicationID:  "app-1",
		DepartmentName: "library",
		Decision:       models.DecisionApproved,
		ActingUserID:   "staff-1",
	})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationCompleted, outcome.Aggregate)
	require.True(t, outcome.CompletedTransition)
	require.True(t, outcome.Application.CertificateIssued)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideAndAggregateAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)

	appRows := sqlmock.NewRows(applicationColumnList())
	addApplicationRow(appRows, "app-1", models.ApplicationInProgress, false)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("app-1").WillReturnRows(appRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE department_statuses")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT")).
		WithArgs("app-1", "library").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.DecideAndAggregate(context.Background(), DecideParams{
		ApplicationID:  "app-1",
		DepartmentName: "library",
		Decision:       models.DecisionApproved,
		ActingUserID:   "staff-1",
	})
	require.ErrorIs(t, err, ErrAlreadyDecided)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideAndAggregateMissingStatusRow(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)

	appRows := sqlmock.NewRows(applicationColumnList())
	addApplicationRow(appRows, "app-1", models.ApplicationPending, false)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("app-1").WillReturnRows(appRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE department_statuses")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT")).
		WithArgs("app-1", "library").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	_, err := repo.DecideAndAggregate(context.Background(), DecideParams{
		ApplicationID:  "app-1",
		DepartmentName: "library",
		Decision:       models.DecisionApproved,
		ActingUserID:   "staff-1",
	})
	require.ErrorIs(t, err, ErrStatusRowMissing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetRejectedOnlyRevertsRejectedRows(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)

	appRows := sqlmock.NewRows(applicationColumnList())
	addApplicationRow(appRows, "app-1", models.ApplicationRejected, false)

	rejectedNames := sqlmock.NewRows([]string{"department_name"}).AddRow("hostel")

	statusRows := sqlmock.NewRows(statusColumnList()).
		AddRow("s1", "app-1", "hostel", "pending", nil, nil, nil, time.Now()).
		AddRow("s2", "app-1", "library", "approved", "staff-1", time.Now(), nil, time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("app-1").WillReturnRows(appRows)
	mock.ExpectQuery(regexp.QuoteMeta("status = 'rejected'")).WithArgs("app-1").WillReturnRows(rejectedNames)
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'pending'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM department_statuses")).WithArgs("app-1").WillReturnRows(statusRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reapplication_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	outcome, err := repo.ResetRejected(context.Background(), "app-1", "hostel dues cleared", map[string]string{"contact_no": "9876543210"})
	require.NoError(t, err)
	require.Equal(t, []string{"hostel"}, outcome.ResetDepartments)
	require.Equal(t, 1, outcome.ReapplicationNumber)
	require.Equal(t, models.ApplicationInProgress, outcome.Aggregate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetRejectedRequiresRejectedState(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)

	appRows := sqlmock.NewRows(applicationColumnList())
	addApplicationRow(appRows, "app-1", models.ApplicationInProgress, false)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("app-1").WillReturnRows(appRows)
	mock.ExpectRollback()

	_, err := repo.ResetRejected(context.Background(), "app-1", "please re-check", nil)
	require.ErrorIs(t, err, ErrNotRejected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMissingStatuses(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"application_id", "registration_no", "department_name"}).
		AddRow("app-1", "JU2021CSE042", "library").
		AddRow("app-1", "JU2021CSE042", "hostel")
	mock.ExpectQuery(regexp.QuoteMeta("CROSS JOIN departments")).WillReturnRows(rows)

	issues, err := repo.FindMissingStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 2)
	require.Equal(t, "library", issues[0].DepartmentName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBuildsScopeFilter(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications a")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	listRows := sqlmock.NewRows(applicationColumnList())
	addApplicationRow(listRows, "app-1", models.ApplicationPending, false)
	mock.ExpectQuery(regexp.QuoteMeta("FROM applications a")).WillReturnRows(listRows)

	apps, total, err := repo.List(context.Background(), models.ApplicationFilter{
		Status:    []models.ApplicationStatus{models.ApplicationPending},
		SchoolIDs: []string{"school-eng"},
		Page:      1,
		PageSize:  20,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, apps, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
