package postgresql

import (
	"context"
	"fmt"

	"github.com/smartstock-pro/zkbridge-go/internal/domain/device"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/database"
)

type deviceRepository struct {
	db *database.DB
}

func NewDeviceRepository(db *database.DB) device.DeviceRepository {
	return &deviceRepository{db: db}
}

// ListActive implements device.DeviceRepository.
func (d *deviceRepository) ListActive(ctx context.Context) ([]device.Device, error) {
	query := `
		SELECT id, name, ip_address, port, is_active, branch_id
		FROM devices
		WHERE is_active = TRUE
	`

	rows, err := d.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active devices: %w", err)
	}
	defer rows.Close()

	var devices []device.Device
	for rows.Next() {
		var dev device.Device
		if err := rows.Scan(&dev.ID, &dev.Name, &dev.IPAddress, &dev.Port, &dev.IsActive, &dev.BranchID); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, dev)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return devices, nil
}
