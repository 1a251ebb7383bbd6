package employee

import (
	"time"
)

type Employee struct {
	ID         string
	Name       string
	BadgeCode  string
	Position   string
	Status     Status
	JoinedDate time.Time
	BranchID   *string
	AvatarURL  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Identity is the projection of an employee the reconciliation path needs:
// one row of the badge-code lookup, joined to the optional per-branch
// lateness threshold.
type Identity struct {
	EmployeeID    string
	BadgeCode     string
	Name          string
	LateAfterHour *int
}
