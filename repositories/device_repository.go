package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/lmslocal/lms-server/models"
)

type DeviceRepository interface {
	Register(ctx context.Context, device *models.Device) error
	ListByUsers(ctx context.Context, userIDs []int) ([]*models.Device, error)
	Delete(ctx context.Context, id int) error
}

type postgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) DeviceRepository {
	return &postgresDeviceRepository{db: db}
}

// Register stores a device; registering the same token twice is a no-op.
func (r *postgresDeviceRepository) Register(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO devices (user_id, platform, token)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, device.UserID, device.Platform, device.Token).
		Scan(&device.ID, &device.CreatedAt)
	if err != nil {
		if _, ok := pqConstraint(err, pqForeignKeyViolation); ok {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (r *postgresDeviceRepository) ListByUsers(ctx context.Context, userIDs []int) ([]*models.Device, error) {
	devices := make([]*models.Device, 0)
	if len(userIDs) == 0 {
		return devices, nil
	}
	ids := make([]int64, len(userIDs))
	for i, id := range userIDs {
		ids[i] = int64(id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, platform, token, created_at FROM devices WHERE user_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.Platform, &d.Token, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		devices = append(devices, &d)
	}
	return devices, rows.Err()
}

// Delete drops a device whose token the push provider rejected.
func (r *postgresDeviceRepository) Delete(ctx context.Context, id int) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete device %d: %w", id, err)
	}
	return nil
}
