package employee

import (
	"context"
)

// EmployeeRepository defines data access methods for employee rows.
type EmployeeRepository interface {
	// ListIdentities returns the badge-code → employee projection used to
	// (re)build the identity cache, including shift thresholds.
	ListIdentities(ctx context.Context) ([]Identity, error)

	// ListActive returns all employees with ACTIVE status.
	ListActive(ctx context.Context) ([]Employee, error)

	// Create inserts a new employee row. Returns ErrDuplicateBadgeCode when
	// another row already holds the same badge code.
	Create(ctx context.Context, emp Employee) (Employee, error)

	// UpdateName replaces the display name of an existing employee.
	UpdateName(ctx context.Context, id string, name string) error
}
