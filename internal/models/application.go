package models

import (
	"errors"
	"fmt"
	"time"
)

// ApplicationStatus is the aggregate state of a clearance application,
// derived from the set of per-department decisions.
type ApplicationStatus string

const (
	ApplicationPending    ApplicationStatus = "pending"
	ApplicationInProgress ApplicationStatus = "in_progress"
	ApplicationCompleted  ApplicationStatus = "completed"
	ApplicationRejected   ApplicationStatus = "rejected"
)

// DecisionStatus is a single department's decision on an application.
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "pending"
	DecisionApproved DecisionStatus = "approved"
	DecisionRejected DecisionStatus = "rejected"
)

// Application represents one student clearance submission.
type Application struct {
	ID                 string            `db:"id" json:"id"`
	UserID             string            `db:"user_id" json:"user_id"`
	StudentName        string            `db:"student_name" json:"student_name"`
	RegistrationNo     string            `db:"registration_no" json:"registration_no"`
	ParentName         *string           `db:"parent_name" json:"parent_name,omitempty"`
	SchoolID           string            `db:"school_id" json:"school_id"`
	CourseID           *string           `db:"course_id" json:"course_id,omitempty"`
	BranchID           *string           `db:"branch_id" json:"branch_id,omitempty"`
	ContactNo          *string           `db:"contact_no" json:"contact_no,omitempty"`
	SessionFrom        *string           `db:"session_from" json:"session_from,omitempty"`
	SessionTo          *string           `db:"session_to" json:"session_to,omitempty"`
	Status             ApplicationStatus `db:"status" json:"status"`
	CertificateSerial  *string           `db:"certificate_serial" json:"certificate_serial,omitempty"`
	CertificateIssued  bool              `db:"certificate_issued" json:"certificate_issued"`
	ReapplicationCount int               `db:"reapplication_count" json:"reapplication_count"`
	LastReappliedAt    *time.Time        `db:"last_reapplied_at" json:"last_reapplied_at,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// DepartmentStatus is one department's decision row for an application.
// Exactly one row exists per (application, active department) pair.
type DepartmentStatus struct {
	ID              string         `db:"id" json:"id"`
	ApplicationID   string         `db:"application_id" json:"application_id"`
	DepartmentName  string         `db:"department_name" json:"department_name"`
	Status          DecisionStatus `db:"status" json:"status"`
	ActionByUserID  *string        `db:"action_by_user_id" json:"action_by_user_id,omitempty"`
	ActionAt        *time.Time     `db:"action_at" json:"action_at,omitempty"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ReapplicationEvent is an append-only audit record of a student reapplying
// after rejection.
type ReapplicationEvent struct {
	ID                  string            `db:"id" json:"id"`
	ApplicationID       string            `db:"application_id" json:"application_id"`
	ReapplicationNumber int               `db:"reapplication_number" json:"reapplication_number"`
	StudentMessage      string            `db:"student_message" json:"student_message"`
	PreviousStatus      ApplicationStatus `db:"previous_status" json:"previous_status"`
	ResetDepartments    []byte            `db:"reset_departments" json:"reset_departments"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
}

// ApplicationFilter constrains staff/admin listing queries.
type ApplicationFilter struct {
	Status         []ApplicationStatus
	PendingFor     string // department name whose decision is still pending
	SchoolIDs      []string
	CourseIDs      []string
	BranchIDs      []string
	RegistrationNo string
	Page           int
	PageSize       int
}

// ErrNoDecisionRows marks an application with zero department status rows.
// Callers must surface this as an integrity error, never as a normal state.
var ErrNoDecisionRows = errors.New("application has no department status rows")

// ComputeAggregate derives the aggregate application status from the full set
// of per-department decisions. This is the single authoritative implementation;
// every caller that needs the aggregate imports it from here.
//
// Priority order, first match wins:
//  1. any rejected        -> rejected
//  2. all pending         -> pending
//  3. all approved        -> completed
//  4. mixed               -> in_progress
func ComputeAggregate(rows []DepartmentStatus) (ApplicationStatus, error) {
	if len(rows) == 0 {
		return "", ErrNoDecisionRows
	}

	pending, approved := 0, 0
	for _, row := range rows {
		switch row.Status {
		case DecisionRejected:
			return ApplicationRejected, nil
		case DecisionPending:
			pending++
		case DecisionApproved:
			approved++
		default:
			return "", fmt.Errorf("unknown decision status %q for department %s", row.Status, row.DepartmentName)
		}
	}

	switch {
	case approved == 0:
		return ApplicationPending, nil
	case pending == 0:
		return ApplicationCompleted, nil
	default:
		return ApplicationInProgress, nil
	}
}
