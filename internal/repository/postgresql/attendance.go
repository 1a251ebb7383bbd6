package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/attendance"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/database"
)

type attendanceRepository struct {
	db *database.DB
}

func NewAttendanceRepository(db *database.DB) attendance.AttendanceRepository {
	return &attendanceRepository{db: db}
}

// GetByEmployeeAndDate implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*attendance.Attendance, error) {
	query := `
		SELECT id, employee_id, date, clock_in, clock_out, overtime_in, overtime_out,
			   status, notes, device_id, created_at, updated_at
		FROM attendance
		WHERE employee_id = $1
		  AND date = $2
		LIMIT 1
	`

	var att attendance.Attendance
	err := a.db.QueryRow(ctx, query, employeeID, date.Format("2006-01-02")).Scan(
		&att.ID, &att.EmployeeID, &att.Date, &att.ClockIn, &att.ClockOut,
		&att.OvertimeIn, &att.OvertimeOut, &att.Status, &att.Notes, &att.DeviceID,
		&att.CreatedAt, &att.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // No record for this employee and day yet
		}
		return nil, fmt.Errorf("failed to get attendance by employee and date: %w", err)
	}

	return &att, nil
}

// Create implements attendance.AttendanceRepository. The attendance table
// carries UNIQUE (employee_id, date); a violation surfaces as
// attendance.ErrDuplicateRecord so callers can fall through to the update
// path instead of re-checking with a read.
func (a *attendanceRepository) Create(ctx context.Context, newAttendance attendance.Attendance) (attendance.Attendance, error) {
	query := `
		INSERT INTO attendance (
			id, employee_id, date, clock_in, clock_out, overtime_in, overtime_out,
			status, notes, device_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		) RETURNING created_at, updated_at
	`

	err := a.db.QueryRow(ctx, query,
		newAttendance.ID,
		newAttendance.EmployeeID,
		newAttendance.Date.Format("2006-01-02"),
		newAttendance.ClockIn,
		newAttendance.ClockOut,
		newAttendance.OvertimeIn,
		newAttendance.OvertimeOut,
		newAttendance.Status,
		newAttendance.Notes,
		newAttendance.DeviceID,
	).Scan(&newAttendance.CreatedAt, &newAttendance.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return attendance.Attendance{}, attendance.ErrDuplicateRecord
		}
		return attendance.Attendance{}, fmt.Errorf("failed to create attendance: %w", err)
	}

	return newAttendance, nil
}

// FillSlot implements attendance.AttendanceRepository. The update is
// conditional on the target column still being null, so a slot can never be
// overwritten even if two writers race past the in-process serialization.
func (a *attendanceRepository) FillSlot(ctx context.Context, id string, slot attendance.Slot, ts time.Time, note *string) error {
	var column string
	switch slot {
	case attendance.SlotClockIn:
		column = "clock_in"
	case attendance.SlotClockOut:
		column = "clock_out"
	case attendance.SlotOvertimeIn:
		column = "overtime_in"
	case attendance.SlotOvertimeOut:
		column = "overtime_out"
	default:
		return fmt.Errorf("unknown attendance slot %d", slot)
	}

	query := fmt.Sprintf(`
		UPDATE attendance
		SET %s = $1,
			notes = CASE WHEN $2::text IS NULL THEN notes
						 ELSE COALESCE(notes || ' | ', '') || $2 END,
			updated_at = NOW()
		WHERE id = $3
		  AND %s IS NULL
		RETURNING id
	`, column, column)

	var updatedID string
	err := a.db.QueryRow(ctx, query, ts, note, id).Scan(&updatedID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return attendance.ErrSlotAlreadyFilled
		}
		return fmt.Errorf("failed to fill %s on attendance %s: %w", column, id, err)
	}

	return nil
}

// ListEmployeeIDsWithRecordOn implements attendance.AttendanceRepository.
func (a *attendanceRepository) ListEmployeeIDsWithRecordOn(ctx context.Context, date time.Time) ([]string, error) {
	query := `
		SELECT employee_id
		FROM attendance
		WHERE date = $1
	`

	rows, err := a.db.Query(ctx, query, date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance for date: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan employee id: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
