package service

import (
	"context"

	"github.com/campusflow/nodues-api/internal/models"
)

// Store interfaces are declared on the consumer side and satisfied by the
// repository package. Only the methods each service actually uses appear
// here, which keeps test stubs small.

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type registryLoader interface {
	Load(ctx context.Context) (*models.Registry, error)
}

type certificateIssuer interface {
	Issue(ctx context.Context, app *models.Application, statuses []models.DepartmentStatus) (*models.Certificate, error)
}

// notifier fans application lifecycle events out to email recipients.
// Implementations must never block request handling on delivery.
type notifier interface {
	ApplicationSubmitted(ctx context.Context, app *models.Application, departments []string)
	ApplicationRejected(ctx context.Context, app *models.Application, departmentName, reason string)
	ApplicationCompleted(ctx context.Context, app *models.Application)
	ApplicationReapplied(ctx context.Context, app *models.Application, resetDepartments []string)
}
