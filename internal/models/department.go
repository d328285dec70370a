package models

import "time"

// Department is reference data: one row per clearing department. Rows are
// never deleted while status records reference them; deactivation is the
// supported retirement path.
type Department struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	DisplayName      string    `db:"display_name" json:"display_name"`
	Email            *string   `db:"email" json:"email,omitempty"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	IsSchoolSpecific bool      `db:"is_school_specific" json:"is_school_specific"`
	DisplayOrder     int       `db:"display_order" json:"display_order"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Registry is an immutable snapshot of the active department list, loaded
// once per request and injected where needed instead of queried ad hoc.
type Registry struct {
	departments []Department
	byName      map[string]Department
}

// NewRegistry builds a registry snapshot from department rows.
func NewRegistry(departments []Department) *Registry {
	byName := make(map[string]Department, len(departments))
	for _, dept := range departments {
		byName[dept.Name] = dept
	}
	return &Registry{departments: departments, byName: byName}
}

// Departments returns all departments in display order.
func (r *Registry) Departments() []Department {
	return r.departments
}

// ActiveNames returns the names of all active departments.
func (r *Registry) ActiveNames() []string {
	names := make([]string, 0, len(r.departments))
	for _, dept := range r.departments {
		if dept.IsActive {
			names = append(names, dept.Name)
		}
	}
	return names
}

// Lookup returns the department with the given name code.
func (r *Registry) Lookup(name string) (Department, bool) {
	dept, ok := r.byName[name]
	return dept, ok
}

// IsActive reports whether the named department exists and is active.
func (r *Registry) IsActive(name string) bool {
	dept, ok := r.byName[name]
	return ok && dept.IsActive
}
