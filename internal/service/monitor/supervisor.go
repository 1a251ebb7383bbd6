// Package monitor owns the long-lived connection to each terminal: it
// supervises the session lifecycle, replays the terminal's stored log on
// (re)connect, and forwards live scan events into reconciliation.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/smartstock-pro/zkbridge-go/internal/domain/attendance"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/device"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/employee"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/devlock"
)

// BadgeResolver is the slice of the identity cache the monitor needs.
type BadgeResolver interface {
	Resolve(ctx context.Context, badgeCode string) (employee.Identity, error)
	SyncEnrolled(ctx context.Context, users []device.EnrolledUser) (int, int, error)
}

// Config tunes the supervision loop.
type Config struct {
	ReconnectDelay time.Duration
	CatchupRetry   time.Duration
	LockPoll       time.Duration
	CycleDelay     time.Duration
	CatchupWindow  time.Duration
	Dispatch       int64
	// Fallback is monitored when the devices table is empty, so a fresh
	// install works before any terminal has been provisioned.
	Fallback *device.Device
}

// Supervisor runs one worker per active device, forever. A poll job
// re-derives the active device set and spawns workers for newly activated
// devices; a worker whose device leaves the active set drains on its next
// reconnect.
type Supervisor struct {
	deviceRepo device.DeviceRepository
	dialer     device.Dialer
	resolver   BadgeResolver
	reconciler attendance.Reconciler
	locks      *devlock.Manager
	cfg        Config
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	running  map[string]bool           // supervised device addresses
	sessions map[string]device.Session // live session handles, for /status
}

func NewSupervisor(
	deviceRepo device.DeviceRepository,
	dialer device.Dialer,
	resolver BadgeResolver,
	reconciler attendance.Reconciler,
	locks *devlock.Manager,
	cfg Config,
) *Supervisor {
	if cfg.LockPoll <= 0 {
		cfg.LockPoll = 2 * time.Second
	}
	if cfg.CycleDelay <= 0 {
		cfg.CycleDelay = 5 * time.Second
	}
	if cfg.Dispatch <= 0 {
		cfg.Dispatch = 8
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		deviceRepo: deviceRepo,
		dialer:     dialer,
		resolver:   resolver,
		reconciler: reconciler,
		locks:      locks,
		cfg:        cfg,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		running:    make(map[string]bool),
		sessions:   make(map[string]device.Session),
	}
}

// Rescan lists the active device set and starts a supervision worker for
// every device not already supervised. Registered as a cron job; also
// called once at startup.
func (s *Supervisor) Rescan(ctx context.Context) error {
	devices, err := s.deviceRepo.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 && s.cfg.Fallback != nil {
		devices = []device.Device{*s.cfg.Fallback}
	}

	for _, dev := range devices {
		s.mu.Lock()
		already := s.running[dev.IPAddress]
		if !already {
			s.running[dev.IPAddress] = true
		}
		s.mu.Unlock()

		if already {
			continue
		}

		s.wg.Add(1)
		go func(dev device.Device) {
			defer s.wg.Done()
			s.supervise(dev)
		}(dev)
	}

	return nil
}

// Stop drains all workers. In-flight blocking calls finish on their own
// timeouts.
func (s *Supervisor) Stop() {
	s.cancel()
	s.wg.Wait()
}

// ActiveSessions returns the addresses with an open terminal session.
func (s *Supervisor) ActiveSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]string, 0, len(s.sessions))
	for addr := range s.sessions {
		addrs = append(addrs, addr)
	}
	return addrs
}

// supervise is the per-device worker loop: Idle → Connecting → Active →
// (Draining | Disconnected) → Connecting, forever.
func (s *Supervisor) supervise(dev device.Device) {
	log := slog.With("device", dev.Name, "addr", dev.IPAddress)

	for {
		if s.ctx.Err() != nil {
			return
		}

		// A locked device belongs to an exclusive manual operation; wait
		// without treating it as a failure.
		if s.locks.IsLocked(dev.IPAddress) {
			if !s.sleep(s.cfg.LockPoll) {
				return
			}
			continue
		}

		if err := s.runSession(dev, log); err != nil {
			if s.locks.IsLocked(dev.IPAddress) {
				// Expected: the exclusive operation tore the session down.
			} else {
				log.Error("Device link lost", "error", err)
				if !s.sleep(s.cfg.ReconnectDelay) {
					return
				}
			}
		}

		if !s.sleep(s.cfg.CycleDelay) {
			return
		}
	}
}

// runSession performs one connect → enrollment sync → catch-up → live
// capture cycle. Any returned error sends the worker through the backoff
// path.
func (s *Supervisor) runSession(dev device.Device, log *slog.Logger) error {
	log.Info("Connecting to terminal")

	sess, err := s.dialer.Dial(s.ctx, dev.IPAddress, dev.Port)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[dev.IPAddress] = sess
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, dev.IPAddress)
		s.mu.Unlock()
		_ = sess.Close()
	}()

	// Enrollment sync is best effort; a failure must not cost us the live
	// feed.
	if users, err := sess.EnrolledUsers(s.ctx); err != nil {
		log.Error("Enrollment read failed", "error", err)
	} else if _, _, err := s.resolver.SyncEnrolled(s.ctx, users); err != nil {
		log.Error("Enrollment sync failed", "error", err)
	}

	if err := s.replayStoredLog(sess, dev, log); err != nil {
		// Historical reads are the heaviest call; back off longer than a
		// plain reconnect before trying again.
		log.Error("Catch-up import failed", "error", err)
		s.sleep(s.cfg.CatchupRetry)
		return nil
	}

	log.Info("Monitor active, listening for scans")
	return s.consumeLive(sess, dev, log)
}

// replayStoredLog is the catch-up importer: the terminal's stored log,
// bounded by the recency window, replayed through the identical
// reconciliation path used for live events.
func (s *Supervisor) replayStoredLog(sess device.Session, dev device.Device, log *slog.Logger) error {
	events, err := sess.StoredLog(s.ctx)
	if err != nil {
		return err
	}

	cutoff := s.now().Add(-s.cfg.CatchupWindow)
	replayed := 0
	for _, ev := range events {
		if ev.BadgeCode == "" || ev.Timestamp.Before(cutoff) {
			continue
		}
		// Sequential on purpose: device order is assumed chronological and
		// replay must preserve it.
		s.handleEvent(ev, dev, log)
		replayed++
	}

	if replayed > 0 {
		log.Info("Catch-up import finished", "events", replayed, "window_start", cutoff.Format("2006-01-02"))
	}
	return nil
}

// consumeLive drains the live feed until the device is locked, the session
// errors, or the supervisor stops. Dispatch is handed to a bounded pool so
// a slow datastore call never stalls receipt of the next event.
func (s *Supervisor) consumeLive(sess device.Session, dev device.Device, log *slog.Logger) error {
	events, err := sess.LiveEvents(s.ctx)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(s.cfg.Dispatch)
	ticker := time.NewTicker(s.cfg.LockPoll)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return nil

		case <-ticker.C:
			if s.locks.IsLocked(dev.IPAddress) {
				log.Info("Device claimed by exclusive operation, draining")
				return nil
			}

		case ev, ok := <-events:
			if !ok {
				return sess.Err()
			}
			if ev.BadgeCode == "" {
				continue // keep-alive
			}
			if s.locks.IsLocked(dev.IPAddress) {
				log.Info("Device claimed by exclusive operation, draining")
				return nil
			}

			if err := sem.Acquire(s.ctx, 1); err != nil {
				return nil
			}
			go func(ev device.ScanEvent) {
				defer sem.Release(1)
				s.handleEvent(ev, dev, log)
			}(ev)
		}
	}
}

// handleEvent resolves and reconciles one scan event. Failures are logged
// and dropped; the retry story for a failed reconcile is the next catch-up
// import.
func (s *Supervisor) handleEvent(ev device.ScanEvent, dev device.Device, log *slog.Logger) {
	ref, err := s.resolver.Resolve(s.ctx, ev.BadgeCode)
	if err != nil {
		log.Error("Could not resolve badge", "badge_code", ev.BadgeCode, "error", err)
		return
	}

	outcome, err := s.reconciler.Reconcile(s.ctx, ref, ev.Timestamp, dev.Label())
	if err != nil {
		log.Error("Reconcile failed", "badge_code", ev.BadgeCode, "error", err)
		return
	}
	if outcome == attendance.OutcomeSuppressed {
		return
	}
	log.Debug("Scan reconciled", "badge_code", ev.BadgeCode, "outcome", outcome.String())
}

// sleep waits d or until the supervisor stops; false means stop.
func (s *Supervisor) sleep(d time.Duration) bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
