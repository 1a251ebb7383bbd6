// Package devlock tracks per-device exclusivity so a manual bulk sync and
// the live monitor never touch the same terminal at the same time.
package devlock

import (
	"sync"
)

// Manager is the process-wide registry of device locks, keyed by device
// address. It is injected into every component that opens sessions; there is
// no global instance.
type Manager struct {
	mu    sync.Mutex
	locks map[string]bool
}

func NewManager() *Manager {
	return &Manager{locks: make(map[string]bool)}
}

// Acquire claims exclusive access to a device address. Returns false when
// the device is already claimed; a second exclusive operation is rejected
// rather than queued.
func (m *Manager) Acquire(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[addr] {
		return false
	}
	m.locks[addr] = true
	return true
}

// Release clears the claim on a device address. Safe to call on an
// unclaimed address.
func (m *Manager) Release(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, addr)
}

// IsLocked reports whether an exclusive operation currently owns the device.
func (m *Manager) IsLocked(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[addr]
}
