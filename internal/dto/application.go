package dto

import (
	"time"

	"github.com/campusflow/nodues-api/internal/models"
)

// SubmitApplicationRequest is the student clearance submission payload.
type SubmitApplicationRequest struct {
	StudentName    string  `json:"student_name" validate:"required"`
	RegistrationNo string  `json:"registration_no" validate:"required"`
	ParentName     *string `json:"parent_name,omitempty"`
	SchoolID       string  `json:"school_id" validate:"required"`
	CourseID       *string `json:"course_id,omitempty"`
	BranchID       *string `json:"branch_id,omitempty"`
	ContactNo      *string `json:"contact_no,omitempty"`
	SessionFrom    *string `json:"session_from,omitempty"`
	SessionTo      *string `json:"session_to,omitempty"`
}

// DecisionRequest records a department actor's approve/reject decision.
type DecisionRequest struct {
	DepartmentName string                `json:"department_name" validate:"required"`
	Decision       models.DecisionStatus `json:"decision" validate:"required"`
	Reason         string                `json:"reason,omitempty"`
}

// ReapplyRequest is the student's resubmission after a rejection.
type ReapplyRequest struct {
	Message       string            `json:"message" validate:"required"`
	UpdatedFields map[string]string `json:"updated_fields,omitempty"`
}

// ApplicationQuery mirrors supported listing filters for staff dashboards.
type ApplicationQuery struct {
	Status         []models.ApplicationStatus
	PendingFor     string // department name whose decision is still pending
	RegistrationNo string
	Page           int
	PageSize       int
}

// DepartmentStatusView is one department row in the student-facing view.
type DepartmentStatusView struct {
	DepartmentName  string                `json:"department_name"`
	DisplayName     string                `json:"display_name"`
	Status          models.DecisionStatus `json:"status"`
	ActionAt        *time.Time            `json:"action_at,omitempty"`
	RejectionReason *string               `json:"rejection_reason,omitempty"`
}

// ApplicationView assembles an application with its per-department rows.
type ApplicationView struct {
	Application models.Application     `json:"application"`
	Departments []DepartmentStatusView `json:"departments"`
}

// DecisionResult reports the persisted decision and the resulting aggregate.
type DecisionResult struct {
	ApplicationID     string                   `json:"application_id"`
	DepartmentName    string                   `json:"department_name"`
	Decision          models.DecisionStatus    `json:"decision"`
	Aggregate         models.ApplicationStatus `json:"aggregate"`
	CertificateSerial *string                  `json:"certificate_serial,omitempty"`
}

// ReapplyResult reports the outcome of a reapplication.
type ReapplyResult struct {
	ApplicationID       string                   `json:"application_id"`
	ReapplicationNumber int                      `json:"reapplication_number"`
	ResetDepartments    []string                 `json:"reset_departments"`
	Aggregate           models.ApplicationStatus `json:"aggregate"`
}

// OrphanReport describes applications violating the one-row-per-department
// invariant, for the admin integrity endpoints.
type OrphanReport struct {
	ApplicationID      string   `json:"application_id"`
	RegistrationNo     string   `json:"registration_no"`
	MissingDepartments []string `json:"missing_departments"`
}

// RepairResult summarises an explicit integrity repair run.
type RepairResult struct {
	Repaired     int `json:"repaired"`
	RowsInserted int `json:"rows_inserted"`
}
