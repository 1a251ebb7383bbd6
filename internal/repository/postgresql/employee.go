package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/employee"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/database"
)

type employeeRepositoryImpl struct {
	db *database.DB
}

func NewEmployeeRepository(db *database.DB) employee.EmployeeRepository {
	return &employeeRepositoryImpl{db: db}
}

// ListIdentities implements employee.EmployeeRepository.
func (e *employeeRepositoryImpl) ListIdentities(ctx context.Context) ([]employee.Identity, error) {
	query := `
		SELECT e.id, e.badge_code, e.name, s.late_after_hour
		FROM employees e
		LEFT JOIN branch_shifts s ON s.branch_id = e.branch_id
	`

	rows, err := e.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list employee identities: %w", err)
	}
	defer rows.Close()

	var identities []employee.Identity
	for rows.Next() {
		var id employee.Identity
		if err := rows.Scan(&id.EmployeeID, &id.BadgeCode, &id.Name, &id.LateAfterHour); err != nil {
			return nil, fmt.Errorf("failed to scan employee identity: %w", err)
		}
		identities = append(identities, id)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return identities, nil
}

// ListActive implements employee.EmployeeRepository.
func (e *employeeRepositoryImpl) ListActive(ctx context.Context) ([]employee.Employee, error) {
	query := `
		SELECT id, name, badge_code, position, status, joined_date, branch_id, avatar_url, created_at, updated_at
		FROM employees
		WHERE status = $1
	`

	rows, err := e.db.Query(ctx, query, employee.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active employees: %w", err)
	}
	defer rows.Close()

	var employees []employee.Employee
	for rows.Next() {
		var emp employee.Employee
		err := rows.Scan(
			&emp.ID, &emp.Name, &emp.BadgeCode, &emp.Position, &emp.Status,
			&emp.JoinedDate, &emp.BranchID, &emp.AvatarURL, &emp.CreatedAt, &emp.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, emp)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return employees, nil
}

// Create implements employee.EmployeeRepository.
func (e *employeeRepositoryImpl) Create(ctx context.Context, newEmployee employee.Employee) (employee.Employee, error) {
	query := `
		INSERT INTO employees (
			id, name, badge_code, position, status, joined_date, branch_id, avatar_url
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		) RETURNING created_at, updated_at
	`

	err := e.db.QueryRow(ctx, query,
		newEmployee.ID,
		newEmployee.Name,
		newEmployee.BadgeCode,
		newEmployee.Position,
		newEmployee.Status,
		newEmployee.JoinedDate,
		newEmployee.BranchID,
		newEmployee.AvatarURL,
	).Scan(&newEmployee.CreatedAt, &newEmployee.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return employee.Employee{}, employee.ErrDuplicateBadgeCode
		}
		return employee.Employee{}, fmt.Errorf("failed to create employee: %w", err)
	}

	return newEmployee, nil
}

// UpdateName implements employee.EmployeeRepository.
func (e *employeeRepositoryImpl) UpdateName(ctx context.Context, id string, name string) error {
	query := `
		UPDATE employees
		SET name = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id
	`

	var updatedID string
	err := e.db.QueryRow(ctx, query, name, id).Scan(&updatedID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return employee.ErrEmployeeNotFound
		}
		return fmt.Errorf("failed to update name for employee %s: %w", id, err)
	}

	return nil
}
