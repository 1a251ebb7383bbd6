package device

import "errors"

var (
	ErrSessionClosed = errors.New("device session closed")
	ErrDeviceLocked  = errors.New("device is locked by an exclusive operation")
)
