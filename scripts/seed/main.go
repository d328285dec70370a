// Command seed provisions a development database with the default department
// registry and one account per role. Idempotent: existing rows are left alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusflow/nodues-api/pkg/config"
	"github.com/campusflow/nodues-api/pkg/database"
)

type seedDepartment struct {
	Name           string
	DisplayName    string
	SchoolSpecific bool
}

type seedUser struct {
	Email       string
	FullName    string
	Role        string
	Departments []string
}

var departments = []seedDepartment{
	{Name: "library", DisplayName: "Library"},
	{Name: "hostel", DisplayName: "Hostel"},
	{Name: "accounts", DisplayName: "Accounts Office"},
	{Name: "sports", DisplayName: "Sports Department"},
	{Name: "laboratory", DisplayName: "Laboratory", SchoolSpecific: true},
	{Name: "training_placement", DisplayName: "Training & Placement"},
}

var users = []seedUser{
	{Email: "superadmin@example.edu", FullName: "Super Admin", Role: "SUPERADMIN"},
	{Email: "admin@example.edu", FullName: "Registry Admin", Role: "ADMIN"},
	{Email: "librarian@example.edu", FullName: "Head Librarian", Role: "DEPARTMENT", Departments: []string{"library"}},
	{Email: "warden@example.edu", FullName: "Hostel Warden", Role: "DEPARTMENT", Departments: []string{"hostel"}},
	{Email: "student@example.edu", FullName: "Asha Verma", Role: "STUDENT"},
}

func main() {
	var password string
	flag.StringVar(&password, "password", "changeme123", "Password assigned to every seeded account")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inserted, err := seedDepartments(ctx, db)
	if err != nil {
		log.Fatalf("failed to seed departments: %v", err)
	}
	fmt.Printf("departments: %d inserted, %d skipped\n", inserted, len(departments)-inserted)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	inserted, err = seedUsers(ctx, db, string(hash))
	if err != nil {
		log.Fatalf("failed to seed users: %v", err)
	}
	fmt.Printf("users: %d inserted, %d skipped\n", inserted, len(users)-inserted)
}

func seedDepartments(ctx context.Context, db *sqlx.DB) (int, error) {
	const query = `INSERT INTO departments (id, name, display_name, is_active, is_school_specific, display_order, created_at, updated_at)
	VALUES ($1, $2, $3, true, $4, $5, $6, $6)
	ON CONFLICT (name) DO NOTHING`

	now := time.Now().UTC()
	inserted := 0
	for i, dept := range departments {
		result, err := db.ExecContext(ctx, query, uuid.NewString(), dept.Name, dept.DisplayName, dept.SchoolSpecific, i+1, now)
		if err != nil {
			return inserted, fmt.Errorf("insert %s: %w", dept.Name, err)
		}
		if rows, err := result.RowsAffected(); err == nil {
			inserted += int(rows)
		}
	}
	return inserted, nil
}

func seedUsers(ctx context.Context, db *sqlx.DB, passwordHash string) (int, error) {
	const query = `INSERT INTO users (id, email, password_hash, full_name, role, assigned_departments, active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, true, $7, $7)
	ON CONFLICT (email) DO NOTHING`

	now := time.Now().UTC()
	inserted := 0
	for _, u := range users {
		result, err := db.ExecContext(ctx, query, uuid.NewString(), u.Email, passwordHash, u.FullName, u.Role, pq.Array(u.Departments), now)
		if err != nil {
			return inserted, fmt.Errorf("insert %s: %w", u.Email, err)
		}
		if rows, err := result.RowsAffected(); err == nil {
			inserted += int(rows)
		}
	}
	return inserted, nil
}
