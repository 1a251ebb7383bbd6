package attendance

import "errors"

var (
	ErrDuplicateRecord    = errors.New("attendance record already exists for this employee and day")
	ErrAttendanceNotFound = errors.New("attendance record not found")
	ErrSlotAlreadyFilled  = errors.New("attendance slot is already filled")
)
