package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/nodues-api/internal/models"
)

// ErrDuplicateDepartment marks a name collision in the registry.
var ErrDuplicateDepartment = errors.New("department name already exists")

const departmentColumns = `id, name, display_name, email, is_active, is_school_specific, display_order, created_at, updated_at`

// DepartmentRepository manages the department registry reference data.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository constructs the repository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// Create registers a new department.
func (r *DepartmentRepository) Create(ctx context.Context, dept *models.Department) error {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	dept.CreatedAt = now
	dept.UpdatedAt = now
	const query = `INSERT INTO departments
	(id, name, display_name, email, is_active, is_school_specific, display_order, created_at, updated_at)
	VALUES (:id, :name, :display_name, :email, :is_active, :is_school_specific, :display_order, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dept); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateDepartment
		}
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// GetByID fetches one department.
func (r *DepartmentRepository) GetByID(ctx context.Context, id string) (*models.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM departments WHERE id = $1`, departmentColumns)
	var dept models.Department
	if err := r.db.GetContext(ctx, &dept, query, id); err != nil {
		return nil, err
	}
	return &dept, nil
}

// List returns all departments in display order, including inactive ones.
func (r *DepartmentRepository) List(ctx context.Context) ([]models.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM departments ORDER BY display_order, name`, departmentColumns)
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// Update edits mutable department fields.
func (r *DepartmentRepository) Update(ctx context.Context, dept *models.Department) error {
	dept.UpdatedAt = time.Now().UTC()
	const query = `UPDATE departments
	SET display_name = :display_name, email = :email, is_active = :is_active,
	    display_order = :display_order, updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, dept)
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check department update: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("department %s not found", dept.ID)
	}
	return nil
}
