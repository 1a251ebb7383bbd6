package reconcile

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

// memAttendanceRepo is an in-memory AttendanceRepository with the same
// uniqueness and null-slot guarantees the datastore enforces.
type memAttendanceRepo struct {
	mu      sync.Mutex
	records map[string]*attendance.Attendance // key: employeeID + "|" + date
	byID    map[string]*attendance.Attendance
}

func newMemAttendanceRepo() *memAttendanceRepo {
	return &memAttendanceRepo{
		records: make(map[string]*attendance.Attendance),
		byID:    make(map[string]*attendance.Attendance),
	}
}

func dayKey(employeeID string, date time.Time) string {
	return employeeID + "|" + date.Format("2006-01-02")
}

func (r *memAttendanceRepo) GetByEmployeeAndDate(_ context.Context, employeeID string, date time.Time) (*attendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[dayKey(employeeID, date)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *memAttendanceRepo) Create(_ context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := dayKey(att.EmployeeID, att.Date)
	if _, exists := r.records[key]; exists {
		return attendance.Attendance{}, attendance.ErrDuplicateRecord
	}
	cp := att
	r.records[key] = &cp
	r.byID[att.ID] = &cp
	return att, nil
}

func (r *memAttendanceRepo) FillSlot(_ context.Context, id string, slot attendance.Slot, ts time.Time, note *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return attendance.ErrAttendanceNotFound
	}

	var target **time.Time
	switch slot {
	case attendance.SlotClockIn:
		target = &rec.ClockIn
	case attendance.SlotClockOut:
		target = &rec.ClockOut
	case attendance.SlotOvertimeIn:
		target = &rec.OvertimeIn
	case attendance.SlotOvertimeOut:
		target = &rec.OvertimeOut
	}
	if *target != nil {
		return attendance.ErrSlotAlreadyFilled
	}
	*target = &ts

	if note != nil {
		if rec.Notes == nil {
			rec.Notes = note
		} else {
			joined := *rec.Notes + " | " + *note
			rec.Notes = &joined
		}
	}
	return nil
}

func (r *memAttendanceRepo) ListEmployeeIDsWithRecordOn(_ context.Context, date time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	day := date.Format("2006-01-02")
	for _, rec := range r.byID {
		if rec.Date.Format("2006-01-02") == day {
			ids = append(ids, rec.EmployeeID)
		}
	}
	return ids, nil
}

func defaultPolicy() Policy {
	return Policy{
		OnTimeEndHour:  8,
		LateCutoffHour: 9,
		CutoffStatus:   attendance.StatusLate,
		Debounce:       120 * time.Second,
	}
}

func testIdentity() employee.Identity {
	return employee.Identity{
		EmployeeID: "emp-1",
		BadgeCode:  "1001",
		Name:       "Test Employee",
	}
}

func scanAt(t *testing.T, clock string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", "2026-03-02 "+clock, time.UTC)
	require.NoError(t, err)
	return ts
}

func TestReconcile_FullDayCycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemAttendanceRepo()
	svc := NewService(repo, defaultPolicy(), time.UTC)
	ref := testIdentity()

	outcome, err := svc.Reconcile(ctx, ref, scanAt(t, "07:45:00"), "Front Gate (10.0.0.2)")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeInserted, outcome)

	outcome, err = svc.Reconcile(ctx, ref, scanAt(t, "12:30:00"), "Front Gate (10.0.0.2)")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeUpdated, outcome)

	outcome, err = svc.Reconcile(ctx, ref, scanAt(t, "13:00:00"), "Front Gate (10.0.0.2)")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeUpdated, outcome)

	outcome, err = svc.Reconcile(ctx, ref, scanAt(t, "18:00:00"), "Front Gate (10.0.0.2)")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeUpdated, outcome)

	// A fifth scan has nowhere to go.
	outcome, err = svc.Reconcile(ctx, ref, scanAt(t, "19:00:00"), "Front Gate (10.0.0.2)")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeSuppressed, outcome)

	rec, err := repo.GetByEmployeeAndDate(ctx, ref.EmployeeID, scanAt(t, "00:00:00"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
	require.NotNil(t, rec.ClockIn)
	require.NotNil(t, rec.ClockOut)
	require.NotNil(t, rec.OvertimeIn)
	require.NotNil(t, rec.OvertimeOut)
	assert.Equal(t, "12:30", rec.ClockOut.Format("15:04"))
	assert.Equal(t, "18:00", rec.OvertimeOut.Format("15:04"))
}

func TestReconcile_DebounceSuppressesRapidRescans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemAttendanceRepo()
	svc := NewService(repo, defaultPolicy(), time.UTC)
	ref := testIdentity()

	_, err := svc.Reconcile(ctx, ref, scanAt(t, "07:45:00"), "dev")
	require.NoError(t, err)

	// 30s and 119s after clock-in: both inside the window.
	outcome, err := svc.Reconcile(ctx, ref, scanAt(t, "07:45:30"), "dev")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeSuppressed, outcome)

	outcome, err = svc.Reconcile(ctx, ref, scanAt(t, "07:46:59"), "dev")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeSuppressed, outcome)

	// Exactly 120s later is outside the window and records the clock-out.
	outcome, err = svc.Reconcile(ctx, ref, scanAt(t, "07:47:00"), "dev")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeUpdated, outcome)

	rec, err := repo.GetByEmployeeAndDate(ctx, ref.EmployeeID, scanAt(t, "00:00:00"))
	require.NoError(t, err)
	require.NotNil(t, rec.ClockOut)
	assert.Nil(t, rec.OvertimeIn)
}

func TestReconcile_OutOfOrderReplayIsSuppressed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemAttendanceRepo()
	svc := NewService(repo, defaultPolicy(), time.UTC)
	ref := testIdentity()

	_, err := svc.Reconcile(ctx, ref, scanAt(t, "07:45:00"), "dev")
	require.NoError(t, err)
	_, err = svc.Reconcile(ctx, ref, scanAt(t, "12:30:00"), "dev")
	require.NoError(t, err)

	// A stored-log replay re-delivers the morning scan after the afternoon
	// one has been applied. It must not consume the overtime slot.
	outcome, err := svc.Reconcile(ctx, ref, scanAt(t, "07:45:00"), "dev")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeSuppressed, outcome)

	rec, err := repo.GetByEmployeeAndDate(ctx, ref.EmployeeID, scanAt(t, "00:00:00"))
	require.NoError(t, err)
	assert.Nil(t, rec.OvertimeIn)
}

func TestReconcile_PunctualityBands(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name       string
		clock      string
		lateAfter  *int
		wantStatus string
		wantNote   string
	}{
		{name: "before on-time end", clock: "07:59:59", wantStatus: attendance.StatusPresent, wantNote: "On Time"},
		{name: "inside late band", clock: "08:00:00", wantStatus: attendance.StatusLate, wantNote: "Late Arrival"},
		{name: "last minute of late band", clock: "08:59:00", wantStatus: attendance.StatusLate, wantNote: "Late Arrival"},
		{name: "past cutoff", clock: "09:00:00", wantStatus: attendance.StatusLate, wantNote: "Very Late"},
		{name: "shift threshold overrides band start", clock: "08:30:00", lateAfter: intPtr(10), wantStatus: attendance.StatusPresent, wantNote: "On Time"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemAttendanceRepo()
			svc := NewService(repo, defaultPolicy(), time.UTC)
			ref := testIdentity()
			ref.LateAfterHour = tc.lateAfter

			outcome, err := svc.Reconcile(ctx, ref, scanAt(t, tc.clock), "dev")
			require.NoError(t, err)
			assert.Equal(t, attendance.OutcomeInserted, outcome)

			rec, err := repo.GetByEmployeeAndDate(ctx, ref.EmployeeID, scanAt(t, "00:00:00"))
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, tc.wantStatus, rec.Status)
			require.NotNil(t, rec.Notes)
			assert.Equal(t, tc.wantNote, *rec.Notes)
		})
	}
}

func TestReconcile_AbsentCutoffStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemAttendanceRepo()
	policy := defaultPolicy()
	policy.CutoffStatus = attendance.StatusAbsent
	svc := NewService(repo, policy, time.UTC)
	ref := testIdentity()

	outcome, err := svc.Reconcile(ctx, ref, scanAt(t, "11:00:00"), "dev")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeInserted, outcome)

	rec, err := repo.GetByEmployeeAndDate(ctx, ref.EmployeeID, scanAt(t, "00:00:00"))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
}

func TestReconcile_FillsAbsencePlaceholderKeepingStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemAttendanceRepo()
	svc := NewService(repo, defaultPolicy(), time.UTC)
	ref := testIdentity()

	// Absence sweep ran first; the record exists with no clock-in.
	sweepNote := "Auto-marked absent at 09:00"
	_, err := repo.Create(ctx, attendance.Attendance{
		ID:         "att-1",
		EmployeeID: ref.EmployeeID,
		Date:       scanAt(t, "00:00:00"),
		Status:     attendance.StatusAbsent,
		Notes:      &sweepNote,
	})
	require.NoError(t, err)

	outcome, err := svc.Reconcile(ctx, ref, scanAt(t, "10:15:00"), "dev")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeUpdated, outcome)

	rec, err := repo.GetByEmployeeAndDate(ctx, ref.EmployeeID, scanAt(t, "00:00:00"))
	require.NoError(t, err)
	require.NotNil(t, rec.ClockIn)
	assert.Equal(t, "10:15", rec.ClockIn.Format("15:04"))
	// The sweep's verdict stands; the arrival is only annotated.
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
	require.NotNil(t, rec.Notes)
	assert.Contains(t, *rec.Notes, "Auto-marked absent at 09:00")
	assert.Contains(t, *rec.Notes, "Late arrival after absence mark")
}

func TestReconcile_DuplicateInsertFallsThroughToUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemAttendanceRepo()
	svc := NewService(repo, defaultPolicy(), time.UTC)
	ref := testIdentity()

	// Simulate another process winning the first-scan insert between our
	// read and write by pre-creating the row behind the service's back.
	_, err := repo.Create(ctx, attendance.Attendance{
		ID:         "att-race",
		EmployeeID: ref.EmployeeID,
		Date:       scanAt(t, "00:00:00"),
		ClockIn:    timePtr(scanAt(t, "07:30:00")),
		Status:     attendance.StatusPresent,
	})
	require.NoError(t, err)

	outcome, err := svc.Reconcile(ctx, ref, scanAt(t, "12:00:00"), "dev")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeUpdated, outcome)

	rec, err := repo.GetByEmployeeAndDate(ctx, ref.EmployeeID, scanAt(t, "00:00:00"))
	require.NoError(t, err)
	require.NotNil(t, rec.ClockOut)
	assert.Equal(t, "12:00", rec.ClockOut.Format("15:04"))
}

func TestReconcile_ConcurrentScansYieldOneRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemAttendanceRepo()
	svc := NewService(repo, defaultPolicy(), time.UTC)
	ref := testIdentity()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reconcile(ctx, ref, scanAt(t, "07:45:00"), "dev")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := repo.GetByEmployeeAndDate(ctx, ref.EmployeeID, scanAt(t, "00:00:00"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.ClockIn)
	// Identical timestamps land inside the debounce window; only the first
	// writer's clock-in survives.
	assert.Nil(t, rec.ClockOut)
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }
