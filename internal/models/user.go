package models

import (
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleDepartment UserRole = "DEPARTMENT"
	RoleStudent    UserRole = "STUDENT"
)

// User represents an application user stored in the users table. Department
// staff carry their assigned department names plus optional scope restriction
// lists; students carry their registration number.
type User struct {
	ID                  string         `db:"id" json:"id"`
	Email               string         `db:"email" json:"email"`
	PasswordHash        string         `db:"password_hash" json:"-"`
	FullName            string         `db:"full_name" json:"full_name"`
	Role                UserRole       `db:"role" json:"role"`
	Active              bool           `db:"active" json:"active"`
	RegistrationNo      *string        `db:"registration_no" json:"registration_no,omitempty"`
	AssignedDepartments pq.StringArray `db:"assigned_departments" json:"assigned_departments,omitempty"`
	SchoolIDs           pq.StringArray `db:"school_ids" json:"school_ids,omitempty"`
	CourseIDs           pq.StringArray `db:"course_ids" json:"course_ids,omitempty"`
	BranchIDs           pq.StringArray `db:"branch_ids" json:"branch_ids,omitempty"`
	LastLogin           *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// StaffScope is the resolved authority of a department actor: which
// departments they act for and, when non-empty, which school/course/branch
// identifiers they are restricted to.
type StaffScope struct {
	Departments []string
	SchoolIDs   []string
	CourseIDs   []string
	BranchIDs   []string
}

// Scope extracts the staff scope from a user record.
func (u *User) Scope() StaffScope {
	return StaffScope{
		Departments: u.AssignedDepartments,
		SchoolIDs:   u.SchoolIDs,
		CourseIDs:   u.CourseIDs,
		BranchIDs:   u.BranchIDs,
	}
}

// HasDepartment reports whether the user is assigned to the given department.
func (u *User) HasDepartment(name string) bool {
	for _, dept := range u.AssignedDepartments {
		if dept == name {
			return true
		}
	}
	return false
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
