package device

import (
	"context"
	"time"
)

// ScanEvent is one raw terminal event. A zero BadgeCode marks a keep-alive
// and must be ignored by consumers.
type ScanEvent struct {
	BadgeCode string
	Timestamp time.Time
}

// EnrolledUser is one fingerprint/card enrollment stored on the terminal.
type EnrolledUser struct {
	BadgeCode string
	Name      string
}

// Session is one open connection to a terminal.
//
// LiveEvents starts the terminal's realtime feed and returns a channel that
// is closed when the feed ends; Err reports why. The feed is unbounded and
// not restartable on the same session.
type Session interface {
	DisableScanning(ctx context.Context) error
	EnableScanning(ctx context.Context) error
	EnrolledUsers(ctx context.Context) ([]EnrolledUser, error)
	StoredLog(ctx context.Context) ([]ScanEvent, error)
	LiveEvents(ctx context.Context) (<-chan ScanEvent, error)
	Err() error
	Close() error
}

// Dialer opens terminal sessions. The production implementation speaks the
// ZKTeco wire protocol; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, addr string, port int) (Session, error)
}
