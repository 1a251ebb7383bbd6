package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartstock-pro/zkbridge-go/internal/domain/attendance"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/employee"
)

type memAttendanceRepo struct {
	mu      sync.Mutex
	records map[string]attendance.Attendance // key: employeeID + "|" + day
}

func newMemAttendanceRepo() *memAttendanceRepo {
	return &memAttendanceRepo{records: make(map[string]attendance.Attendance)}
}

func recordKey(employeeID string, date time.Time) string {
	return employeeID + "|" + date.Format("2006-01-02")
}

func (r *memAttendanceRepo) GetByEmployeeAndDate(_ context.Context, employeeID string, date time.Time) (*attendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordKey(employeeID, date)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memAttendanceRepo) Create(_ context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recordKey(att.EmployeeID, att.Date)
	if _, exists := r.records[key]; exists {
		return attendance.Attendance{}, attendance.ErrDuplicateRecord
	}
	r.records[key] = att
	return att, nil
}

func (r *memAttendanceRepo) FillSlot(_ context.Context, id string, slot attendance.Slot, ts time.Time, note *string) error {
	return nil
}

func (r *memAttendanceRepo) ListEmployeeIDsWithRecordOn(_ context.Context, date time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := date.Format("2006-01-02")
	var ids []string
	for _, rec := range r.records {
		if rec.Date.Format("2006-01-02") == day {
			ids = append(ids, rec.EmployeeID)
		}
	}
	return ids, nil
}

type stubEmployeeRepo struct {
	actives []employee.Employee
}

func (r *stubEmployeeRepo) ListIdentities(_ context.Context) ([]employee.Identity, error) {
	return nil, nil
}

func (r *stubEmployeeRepo) ListActive(_ context.Context) ([]employee.Employee, error) {
	return r.actives, nil
}

func (r *stubEmployeeRepo) Create(_ context.Context, emp employee.Employee) (employee.Employee, error) {
	return emp, nil
}

func (r *stubEmployeeRepo) UpdateName(_ context.Context, id string, name string) error {
	return nil
}

func activeEmployees(n int) []employee.Employee {
	emps := make([]employee.Employee, n)
	for i := range emps {
		emps[i] = employee.Employee{
			ID:        string(rune('a' + i)),
			BadgeCode: string(rune('A' + i)),
			Status:    employee.StatusActive,
		}
	}
	return emps
}

func fixedClock(t *testing.T, stamp string) func() time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", stamp, time.UTC)
	require.NoError(t, err)
	return func() time.Time { return ts }
}

func TestSweep_MarksUnrecordedEmployeesAbsent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	attRepo := newMemAttendanceRepo()
	empRepo := &stubEmployeeRepo{actives: activeEmployees(10)}

	// Monday; three employees already clocked in.
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c"} {
		_, err := attRepo.Create(ctx, attendance.Attendance{
			ID: "att-" + id, EmployeeID: id, Date: day, Status: attendance.StatusPresent,
		})
		require.NoError(t, err)
	}

	svc := NewService(attRepo, empRepo, "09:00", time.Friday, time.UTC)
	svc.now = fixedClock(t, "2026-03-02 09:05:00")

	inserted, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, inserted)

	rec, err := attRepo.GetByEmployeeAndDate(ctx, "d", day)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
	assert.Nil(t, rec.ClockIn)
	require.NotNil(t, rec.Notes)
	assert.Equal(t, "Auto-marked absent at 09:00", *rec.Notes)
	require.NotNil(t, rec.DeviceID)
	assert.Equal(t, "SYSTEM-AUTO", *rec.DeviceID)

	// Re-running inserts nothing; existing rows are never touched.
	inserted, err = svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestSweep_SkipsWeeklyOffDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	attRepo := newMemAttendanceRepo()
	empRepo := &stubEmployeeRepo{actives: activeEmployees(5)}

	svc := NewService(attRepo, empRepo, "09:00", time.Friday, time.UTC)
	svc.now = fixedClock(t, "2026-03-06 10:00:00") // a Friday

	inserted, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.Empty(t, attRepo.records)
}

func TestSweep_RunScheduledGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	attRepo := newMemAttendanceRepo()
	empRepo := &stubEmployeeRepo{actives: activeEmployees(3)}

	svc := NewService(attRepo, empRepo, "09:00", time.Friday, time.UTC)

	// Before the cutoff: nothing happens.
	svc.now = fixedClock(t, "2026-03-02 08:59:00")
	require.NoError(t, svc.RunScheduled(ctx))
	assert.Empty(t, attRepo.records)

	// Past the cutoff: the sweep fires.
	svc.now = fixedClock(t, "2026-03-02 09:00:00")
	require.NoError(t, svc.RunScheduled(ctx))
	assert.Len(t, attRepo.records, 3)

	// Same day, later tick: already swept.
	attRepo.records = make(map[string]attendance.Attendance)
	svc.now = fixedClock(t, "2026-03-02 11:00:00")
	require.NoError(t, svc.RunScheduled(ctx))
	assert.Empty(t, attRepo.records)

	// Next day: fires again.
	svc.now = fixedClock(t, "2026-03-03 09:01:00")
	require.NoError(t, svc.RunScheduled(ctx))
	assert.Len(t, attRepo.records, 3)
}

func TestSweep_NoActiveEmployees(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := NewService(newMemAttendanceRepo(), &stubEmployeeRepo{}, "09:00", time.Friday, time.UTC)
	svc.now = fixedClock(t, "2026-03-02 10:00:00")

	inserted, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}
