package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/config"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/database"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/logging"
)

// Store persists device records in SQLite.
type Store struct {
	db     *database.DB
	logger *logging.Logger
}

// NewStore builds a device store. A nil logger selects the process
// default.
func NewStore(db *database.DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, logger: logger}
}

// Seed upserts configured devices. Configuration owns the identity and
// driver binding columns; session counters and cached metadata survive
// reconfiguration untouched.
func (s *Store) Seed(ctx context.Context, devices []config.DeviceConfig) error {
	const query = `
		INSERT INTO devices (id, name, node_id, profile, endpoint, supervised, report_stopped, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			node_id = excluded.node_id,
			profile = excluded.profile,
			endpoint = excluded.endpoint,
			supervised = excluded.supervised,
			report_stopped = excluded.report_stopped,
			updated_at = excluded.updated_at`

	for _, d := range devices {
		_, err := s.db.ExecContext(ctx, query,
			d.ID, d.Name, d.NodeID, d.Profile, d.Endpoint, d.Supervised, d.ReportStopped,
			time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("seeding device %s: %w", d.ID, err)
		}
	}
	s.logger.Info("device records seeded", "count", len(devices))
	return nil
}

const deviceColumns = `id, name, node_id, profile, endpoint, supervised, report_stopped,
	COALESCE(manufacturer_id, 0), COALESCE(product_type_id, 0), COALESCE(product_id, 0),
	COALESCE(firmware_version, ''), last_session_id, created_at, updated_at`

// Get returns one device record by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	return scanDevice(row)
}

// GetByNode returns the device record at a node and endpoint address.
// Inbound frames carry node addresses, not configured identifiers.
func (s *Store) GetByNode(ctx context.Context, nodeID, endpoint byte) (*Device, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE node_id = ? AND endpoint = ?`,
		nodeID, endpoint,
	)
	return scanDevice(row)
}

// List returns all device records ordered by identifier.
func (s *Store) List(ctx context.Context) ([]*Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// LastSessionID returns the persisted supervision counter for a
// device. Implements the supervision counter store.
func (s *Store) LastSessionID(ctx context.Context, deviceID string) (byte, error) {
	var id byte
	err := s.db.QueryRowContext(ctx,
		`SELECT last_session_id FROM devices WHERE id = ?`, deviceID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	if err != nil {
		return 0, fmt.Errorf("reading session counter for %s: %w", deviceID, err)
	}
	return id, nil
}

// SaveSessionID persists a freshly allocated supervision session ID.
func (s *Store) SaveSessionID(ctx context.Context, deviceID string, id byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET last_session_id = ?, updated_at = ? WHERE id = ?`,
		id, time.Now().UTC(), deviceID,
	)
	if err != nil {
		return fmt.Errorf("saving session counter for %s: %w", deviceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	return nil
}

// SaveMetadata caches device identification from a manufacturer
// report. Existing metadata is not overwritten; the identifiers of a
// paired device never change.
func (s *Store) SaveMetadata(ctx context.Context, deviceID string, manufacturerID, productTypeID, productID uint16) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE devices
		SET manufacturer_id = ?, product_type_id = ?, product_id = ?, updated_at = ?
		WHERE id = ? AND manufacturer_id IS NULL`,
		manufacturerID, productTypeID, productID, time.Now().UTC(), deviceID,
	)
	if err != nil {
		return fmt.Errorf("saving metadata for %s: %w", deviceID, err)
	}
	return nil
}

// SaveFirmwareVersion caches the firmware version from a version
// report.
func (s *Store) SaveFirmwareVersion(ctx context.Context, deviceID, version string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE devices
		SET firmware_version = ?, updated_at = ?
		WHERE id = ? AND (firmware_version IS NULL OR firmware_version = '')`,
		version, time.Now().UTC(), deviceID,
	)
	if err != nil {
		return fmt.Errorf("saving firmware version for %s: %w", deviceID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*Device, error) {
	var d Device
	err := row.Scan(
		&d.ID, &d.Name, &d.NodeID, &d.Profile, &d.Endpoint, &d.Supervised, &d.ReportStopped,
		&d.ManufacturerID, &d.ProductTypeID, &d.ProductID,
		&d.FirmwareVersion, &d.LastSessionID, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning device record: %w", err)
	}
	return &d, nil
}
