package attendance

import (
	"time"
)

type Attendance struct {
	ID          string
	EmployeeID  string
	Date        time.Time
	ClockIn     *time.Time
	ClockOut    *time.Time
	OvertimeIn  *time.Time
	OvertimeOut *time.Time
	Status      string
	Notes       *string
	DeviceID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	StatusPresent = "PRESENT"
	StatusLate    = "LATE"
	StatusAbsent  = "ABSENT"
)

// Slot identifies one of the four timestamp columns of a daily record.
// Slots are filled strictly in this order and never overwritten.
type Slot int

const (
	SlotClockIn Slot = iota
	SlotClockOut
	SlotOvertimeIn
	SlotOvertimeOut
)

func (s Slot) String() string {
	switch s {
	case SlotClockIn:
		return "clock_in"
	case SlotClockOut:
		return "clock_out"
	case SlotOvertimeIn:
		return "overtime_in"
	case SlotOvertimeOut:
		return "overtime_out"
	}
	return "unknown"
}

// LastAction returns the most recent filled timestamp slot, checked from the
// end of the day cycle backwards. Nil for an absence placeholder that has no
// clock-in yet.
func (a *Attendance) LastAction() *time.Time {
	for _, t := range []*time.Time{a.OvertimeOut, a.OvertimeIn, a.ClockOut, a.ClockIn} {
		if t != nil {
			return t
		}
	}
	return nil
}

// NextSlot returns the first empty slot in fill order, or false when the full
// in/out/overtime cycle has been recorded.
func (a *Attendance) NextSlot() (Slot, bool) {
	switch {
	case a.ClockIn == nil:
		return SlotClockIn, true
	case a.ClockOut == nil:
		return SlotClockOut, true
	case a.OvertimeIn == nil:
		return SlotOvertimeIn, true
	case a.OvertimeOut == nil:
		return SlotOvertimeOut, true
	}
	return 0, false
}
