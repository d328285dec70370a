package dto

// CreateDepartmentRequest registers a new clearing department.
type CreateDepartmentRequest struct {
	Name             string  `json:"name" validate:"required"`
	DisplayName      string  `json:"display_name" validate:"required"`
	Email            *string `json:"email,omitempty" validate:"omitempty,email"`
	IsSchoolSpecific bool    `json:"is_school_specific"`
	DisplayOrder     int     `json:"display_order"`
}

// UpdateDepartmentRequest edits department reference data. Departments are
// deactivated, never deleted, while status rows reference them.
type UpdateDepartmentRequest struct {
	DisplayName  *string `json:"display_name,omitempty"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	IsActive     *bool   `json:"is_active,omitempty"`
	DisplayOrder *int    `json:"display_order,omitempty"`
}
