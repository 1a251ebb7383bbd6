package device

import "context"

// DeviceRepository reads the provisioned terminal set. Devices are managed
// by the administrative UI; the bridge only consumes the active set.
type DeviceRepository interface {
	ListActive(ctx context.Context) ([]Device, error)
}
