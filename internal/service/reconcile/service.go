// Package reconcile advances each employee's daily attendance record
// through the check-in / check-out / overtime cycle.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/attendance"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/employee"
)

// Policy carries the configurable parts of the reconciliation rules.
type Policy struct {
	// OnTimeEndHour is the first local clock hour that counts as late.
	OnTimeEndHour int
	// LateCutoffHour is the first local clock hour of the past-cutoff band.
	LateCutoffHour int
	// CutoffStatus is the status label of the past-cutoff band: LATE or
	// ABSENT. With ABSENT the first scan creates an absence placeholder
	// whose clock-in is corrected by the next scan.
	CutoffStatus string
	// Debounce suppresses a scan arriving this soon after the record's most
	// recent action.
	Debounce time.Duration
}

type Service struct {
	attendanceRepo attendance.AttendanceRepository
	policy         Policy
	loc            *time.Location

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(attendanceRepo attendance.AttendanceRepository, policy Policy, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		attendanceRepo: attendanceRepo,
		policy:         policy,
		loc:            loc,
		locks:          make(map[string]*sync.Mutex),
	}
}

// Reconcile implements attendance.Reconciler.
//
// Calls for the same employee are serialized on an in-process keyed mutex;
// dispatch stays concurrent across employees. The datastore's unique
// (employee, day) constraint backstops the first-scan race across
// processes.
func (s *Service) Reconcile(ctx context.Context, ref employee.Identity, ts time.Time, deviceLabel string) (attendance.Outcome, error) {
	unlock := s.lockEmployee(ref.EmployeeID)
	defer unlock()

	local := ts.In(s.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)

	record, err := s.attendanceRepo.GetByEmployeeAndDate(ctx, ref.EmployeeID, day)
	if err != nil {
		return attendance.OutcomeFailed, fmt.Errorf("fetch daily record: %w", err)
	}

	if record == nil {
		outcome, err := s.insertFirstScan(ctx, ref, local, day, deviceLabel)
		if !errors.Is(err, attendance.ErrDuplicateRecord) {
			return outcome, err
		}
		// Another writer created today's record between our read and
		// insert; re-fetch and continue on the update path.
		record, err = s.attendanceRepo.GetByEmployeeAndDate(ctx, ref.EmployeeID, day)
		if err != nil {
			return attendance.OutcomeFailed, fmt.Errorf("re-fetch after duplicate insert: %w", err)
		}
		if record == nil {
			return attendance.OutcomeFailed, fmt.Errorf("record vanished after duplicate insert for employee %s", ref.EmployeeID)
		}
	}

	return s.advance(ctx, ref, record, local)
}

func (s *Service) insertFirstScan(ctx context.Context, ref employee.Identity, local, day time.Time, deviceLabel string) (attendance.Outcome, error) {
	status, notes := s.classify(local.Hour(), ref.LateAfterHour)

	record := attendance.Attendance{
		ID:         uuid.NewString(),
		EmployeeID: ref.EmployeeID,
		Date:       day,
		ClockIn:    &local,
		Status:     status,
		Notes:      &notes,
		DeviceID:   &deviceLabel,
	}

	if _, err := s.attendanceRepo.Create(ctx, record); err != nil {
		if errors.Is(err, attendance.ErrDuplicateRecord) {
			return attendance.OutcomeFailed, err
		}
		return attendance.OutcomeFailed, fmt.Errorf("insert daily record: %w", err)
	}

	slog.Info("CLOCK IN", "employee", ref.Name, "badge_code", ref.BadgeCode,
		"time", local.Format("15:04"), "status", status)
	return attendance.OutcomeInserted, nil
}

func (s *Service) advance(ctx context.Context, ref employee.Identity, record *attendance.Attendance, local time.Time) (attendance.Outcome, error) {
	if last := record.LastAction(); last != nil {
		// Events at or before the last recorded action are catch-up
		// duplicates; a small positive gap is a double scan. Both suppress.
		if local.Sub(last.In(s.loc)) < s.policy.Debounce {
			return attendance.OutcomeSuppressed, nil
		}
	}

	slot, ok := record.NextSlot()
	if !ok {
		// Full day cycle already recorded; nothing left to write.
		return attendance.OutcomeSuppressed, nil
	}

	var note *string
	if slot == attendance.SlotClockIn {
		// Absence placeholder: the employee arrived after the sweep. The
		// assigned status stays; only the arrival is recorded.
		n := "Late arrival after absence mark"
		note = &n
	}

	if err := s.attendanceRepo.FillSlot(ctx, record.ID, slot, local, note); err != nil {
		if errors.Is(err, attendance.ErrSlotAlreadyFilled) {
			return attendance.OutcomeSuppressed, nil
		}
		return attendance.OutcomeFailed, fmt.Errorf("fill %s: %w", slot, err)
	}

	slog.Info("Attendance updated", "employee", ref.Name, "slot", slot.String(),
		"time", local.Format("15:04"))
	return attendance.OutcomeUpdated, nil
}

// classify maps the local clock hour of a first scan onto the three
// punctuality bands. A per-employee shift threshold overrides the start of
// the late band.
func (s *Service) classify(hour int, lateAfter *int) (string, string) {
	onTimeEnd := s.policy.OnTimeEndHour
	if lateAfter != nil {
		onTimeEnd = *lateAfter
	}

	switch {
	case hour < onTimeEnd:
		return attendance.StatusPresent, "On Time"
	case hour < s.policy.LateCutoffHour:
		return attendance.StatusLate, "Late Arrival"
	default:
		return s.policy.CutoffStatus, "Very Late"
	}
}

func (s *Service) lockEmployee(id string) func() {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
