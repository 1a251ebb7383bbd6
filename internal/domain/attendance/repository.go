package attendance

import (
	"context"
	"time"
)

// AttendanceRepository defines data access methods for the daily ledger.
// The datastore enforces UNIQUE (employee_id, date); callers rely on
// ErrDuplicateRecord instead of re-deriving uniqueness with a read.
type AttendanceRepository interface {
	// GetByEmployeeAndDate retrieves the record for one employee on one
	// calendar day. Returns (nil, nil) when no record exists.
	GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*Attendance, error)

	// Create inserts a new daily record. Returns ErrDuplicateRecord when a
	// record for (employee, day) already exists.
	Create(ctx context.Context, att Attendance) (Attendance, error)

	// FillSlot writes one timestamp slot of an existing record, appending to
	// notes when note is non-nil. The write is conditional on the slot still
	// being null so a filled slot is never overwritten.
	FillSlot(ctx context.Context, id string, slot Slot, ts time.Time, note *string) error

	// ListEmployeeIDsWithRecordOn returns the employee keys holding a record
	// for the given day. Used by the absence sweep.
	ListEmployeeIDsWithRecordOn(ctx context.Context, date time.Time) ([]string, error)
}
