// Package sweep marks employees with no attendance record as absent once
// per business day.
package sweep

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

type Service struct {
	attendanceRepo attendance.AttendanceRepository
	employeeRepo   employee.EmployeeRepository

	sweepTime string // "15:04"
	offDay    time.Weekday
	loc       *time.Location
	now       func() time.Time

	mu        sync.Mutex
	lastSwept string // day the scheduled sweep last ran, "2006-01-02"
}

func NewService(
	attendanceRepo attendance.AttendanceRepository,
	employeeRepo employee.EmployeeRepository,
	sweepTime string,
	offDay time.Weekday,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		attendanceRepo: attendanceRepo,
		employeeRepo:   employeeRepo,
		sweepTime:      sweepTime,
		offDay:         offDay,
		loc:            loc,
		now:            time.Now,
	}
}

// RunScheduled is the cron gate: it fires Run once per day when the local
// clock has passed the configured sweep time. Safe to call every minute.
func (s *Service) RunScheduled(ctx context.Context) error {
	now := s.now().In(s.loc)
	today := now.Format("2006-01-02")

	cutoff, err := time.Parse("15:04", s.sweepTime)
	if err != nil {
		return fmt.Errorf("invalid sweep time %q: %w", s.sweepTime, err)
	}
	if now.Hour() < cutoff.Hour() || (now.Hour() == cutoff.Hour() && now.Minute() < cutoff.Minute()) {
		return nil
	}

	s.mu.Lock()
	if s.lastSwept == today {
		s.mu.Unlock()
		return nil
	}
	s.lastSwept = today
	s.mu.Unlock()

	_, err = s.Run(ctx)
	return err
}

// Run marks every active employee with no record today as absent and
// returns the number of rows inserted. Insert-only: an employee who clocked
// in between the listing and the insert just produces a skipped duplicate,
// so re-invocation (manual trigger) never overwrites anything.
func (s *Service) Run(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)

	if now.Weekday() == s.offDay {
		slog.Info("Absence sweep skipped, weekly off day", "day", now.Weekday().String())
		return 0, nil
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	actives, err := s.employeeRepo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active employees: %w", err)
	}
	if len(actives) == 0 {
		return 0, nil
	}

	recorded, err := s.attendanceRepo.ListEmployeeIDsWithRecordOn(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list today's records: %w", err)
	}
	present := make(map[string]struct{}, len(recorded))
	for _, id := range recorded {
		present[id] = struct{}{}
	}

	note := "Auto-marked absent at " + s.sweepTime
	deviceID := "SYSTEM-AUTO"
	inserted := 0
	for _, emp := range actives {
		if _, ok := present[emp.ID]; ok {
			continue
		}

		record := attendance.Attendance{
			ID:         uuid.NewString(),
			EmployeeID: emp.ID,
			Date:       today,
			Status:     attendance.StatusAbsent,
			Notes:      &note,
			DeviceID:   &deviceID,
		}
		if _, err := s.attendanceRepo.Create(ctx, record); err != nil {
			if errors.Is(err, attendance.ErrDuplicateRecord) {
				// Clocked in while the sweep was running.
				continue
			}
			return inserted, fmt.Errorf("insert absence for %s: %w", emp.ID, err)
		}
		inserted++
	}

	slog.Info("Absence sweep completed", "active", len(actives), "marked_absent", inserted)
	return inserted, nil
}
