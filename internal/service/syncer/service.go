// Package syncer runs operator-triggered exclusive bulk imports against a
// single terminal, pausing that terminal's live monitor for the duration.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartstock-pro/zkbridge-go/internal/domain/attendance"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/device"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/employee"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/devlock"
)

// ErrDeviceBusy is returned when another exclusive operation already owns
// the device.
var ErrDeviceBusy = errors.New("device is busy with another exclusive operation")

// BadgeResolver is the slice of the identity cache the sync paths need.
type BadgeResolver interface {
	Resolve(ctx context.Context, badgeCode string) (employee.Identity, error)
	SyncEnrolled(ctx context.Context, users []device.EnrolledUser) (int, int, error)
}

type Service struct {
	dialer        device.Dialer
	locks         *devlock.Manager
	resolver      BadgeResolver
	reconciler    attendance.Reconciler
	catchupWindow time.Duration
	now           func() time.Time
}

func NewService(
	dialer device.Dialer,
	locks *devlock.Manager,
	resolver BadgeResolver,
	reconciler attendance.Reconciler,
	catchupWindow time.Duration,
) *Service {
	return &Service{
		dialer:        dialer,
		locks:         locks,
		resolver:      resolver,
		reconciler:    reconciler,
		catchupWindow: catchupWindow,
		now:           time.Now,
	}
}

type UserSyncResult struct {
	Enrolled int `json:"enrolled"`
	Created  int `json:"created"`
	Renamed  int `json:"renamed"`
}

type LogSyncResult struct {
	Downloaded int `json:"downloaded"`
	Replayed   int `json:"replayed"`
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Suppressed int `json:"suppressed"`
	Failed     int `json:"failed"`
}

// SyncUsers pulls the terminal's enrollment list and reconciles it against
// the employee table.
func (s *Service) SyncUsers(ctx context.Context, addr string, port int) (UserSyncResult, error) {
	var result UserSyncResult
	err := s.withExclusiveSession(ctx, addr, port, func(sess device.Session) error {
		users, err := sess.EnrolledUsers(ctx)
		if err != nil {
			return fmt.Errorf("read enrolled users: %w", err)
		}
		result.Enrolled = len(users)

		created, renamed, err := s.resolver.SyncEnrolled(ctx, users)
		result.Created = created
		result.Renamed = renamed
		return err
	})
	if err != nil {
		return UserSyncResult{}, err
	}

	slog.Info("Manual user sync completed", "addr", addr,
		"enrolled", result.Enrolled, "created", result.Created, "renamed", result.Renamed)
	return result, nil
}

// SyncLogs downloads the terminal's stored attendance log and replays it
// through the reconciliation path. A nil cutoff falls back to the
// configured catch-up window; replaying the same log twice is harmless
// because reconciliation suppresses already-applied events.
func (s *Service) SyncLogs(ctx context.Context, addr string, port int, cutoff *time.Time) (LogSyncResult, error) {
	start := s.now().Add(-s.catchupWindow)
	if cutoff != nil {
		start = *cutoff
	}

	var result LogSyncResult
	err := s.withExclusiveSession(ctx, addr, port, func(sess device.Session) error {
		events, err := sess.StoredLog(ctx)
		if err != nil {
			return fmt.Errorf("read stored log: %w", err)
		}
		result.Downloaded = len(events)

		deviceLabel := "Manual Sync (" + addr + ")"
		for _, ev := range events {
			if ev.BadgeCode == "" || ev.Timestamp.Before(start) {
				continue
			}
			result.Replayed++

			ref, err := s.resolver.Resolve(ctx, ev.BadgeCode)
			if err != nil {
				slog.Error("Could not resolve badge during log sync", "badge_code", ev.BadgeCode, "error", err)
				result.Failed++
				continue
			}

			outcome, err := s.reconciler.Reconcile(ctx, ref, ev.Timestamp, deviceLabel)
			if err != nil {
				slog.Error("Reconcile failed during log sync", "badge_code", ev.BadgeCode, "error", err)
			}
			switch outcome {
			case attendance.OutcomeInserted:
				result.Inserted++
			case attendance.OutcomeUpdated:
				result.Updated++
			case attendance.OutcomeSuppressed:
				result.Suppressed++
			default:
				result.Failed++
			}
		}
		return nil
	})
	if err != nil {
		return LogSyncResult{}, err
	}

	slog.Info("Manual log sync completed", "addr", addr, "downloaded", result.Downloaded,
		"replayed", result.Replayed, "inserted", result.Inserted, "updated", result.Updated)
	return result, nil
}

// withExclusiveSession claims the device lock, opens a session with the
// terminal's scanner disabled, runs fn, and restores everything in reverse
// order no matter how fn fares.
func (s *Service) withExclusiveSession(ctx context.Context, addr string, port int, fn func(device.Session) error) error {
	if !s.locks.Acquire(addr) {
		return ErrDeviceBusy
	}
	defer s.locks.Release(addr)

	sess, err := s.dialer.Dial(ctx, addr, port)
	if err != nil {
		return fmt.Errorf("connect to %s:%d: %w", addr, port, err)
	}
	defer sess.Close()

	if err := sess.DisableScanning(ctx); err != nil {
		return fmt.Errorf("disable scanning: %w", err)
	}
	defer func() {
		if err := sess.EnableScanning(ctx); err != nil {
			slog.Error("Failed to re-enable scanning", "addr", addr, "error", err)
		}
	}()

	return fn(sess)
}
