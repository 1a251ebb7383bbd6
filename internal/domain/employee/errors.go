package employee

import "errors"

var (
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrDuplicateBadgeCode = errors.New("an employee with this badge code already exists")
)
