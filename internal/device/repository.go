package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the persistence contract the messaging core consumes.
// Device CRUD lives elsewhere; this core only reads devices, mutates a
// subset of fields, and saves them back.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// FindOne retrieves the first device matching the filter.
	// Returns ErrDeviceNotFound if no device matches.
	FindOne(ctx context.Context, filter Filter) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByRoom retrieves all devices in a specific room.
	ListByRoom(ctx context.Context, roomID string) ([]Device, error)

	// Save persists the mutable fields of an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Save(ctx context.Context, device *Device) error

	// SaveMany persists the mutable fields of several devices in one
	// transaction. Used by room-wide broadcast and config operations.
	SaveMany(ctx context.Context, devices []*Device) error
}

// Filter selects devices in FindOne. Zero-valued fields are ignored.
type Filter struct {
	ID         string
	RoomID     string
	MACAddress string
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, room_id, name, status, value, unit,
	brightness, speed, temperature,
	is_online, is_connected,
	ip_address, mac_address, firmware_version,
	last_error, last_error_at, last_seen_at,
	config, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// FindOne retrieves the first device matching the filter.
func (r *SQLiteRepository) FindOne(ctx context.Context, filter Filter) (*Device, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ID != "" {
		conds = append(conds, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.RoomID != "" {
		conds = append(conds, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.MACAddress != "" {
		conds = append(conds, "mac_address = ?")
		args = append(args, filter.MACAddress)
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("%w: empty filter", ErrDeviceNotFound)
	}

	query := `SELECT ` + deviceColumns + ` FROM devices WHERE ` +
		strings.Join(conds, " AND ") + ` LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, args...)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`
	return r.queryDevices(ctx, query)
}

// ListByRoom retrieves all devices in a specific room.
func (r *SQLiteRepository) ListByRoom(ctx context.Context, roomID string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE room_id = ? ORDER BY name`
	return r.queryDevices(ctx, query, roomID)
}

// Save persists the mutable fields of an existing device.
func (r *SQLiteRepository) Save(ctx context.Context, d *Device) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDevice)
	}

	configJSON, err := marshalConfig(d.Config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	d.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, saveQuery,
		d.Status, d.Value, d.Unit,
		d.Brightness, d.Speed, d.Temperature,
		d.IsOnline, d.IsConnected,
		d.IPAddress, d.MACAddress, d.FirmwareVersion,
		d.LastError, nullableTime(d.LastErrorAt), nullableTime(d.LastSeenAt),
		configJSON, d.UpdatedAt.Format(time.RFC3339Nano),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("saving device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking save result: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// SaveMany persists several devices atomically.
func (r *SQLiteRepository) SaveMany(ctx context.Context, devices []*Device) error {
	if len(devices) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after successful commit

	now := time.Now().UTC()
	for _, d := range devices {
		if d == nil || d.ID == "" {
			return fmt.Errorf("%w: missing id", ErrInvalidDevice)
		}

		configJSON, err := marshalConfig(d.Config)
		if err != nil {
			return fmt.Errorf("marshalling config for %s: %w", d.ID, err)
		}

		d.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, saveQuery,
			d.Status, d.Value, d.Unit,
			d.Brightness, d.Speed, d.Temperature,
			d.IsOnline, d.IsConnected,
			d.IPAddress, d.MACAddress, d.FirmwareVersion,
			d.LastError, nullableTime(d.LastErrorAt), nullableTime(d.LastSeenAt),
			configJSON, d.UpdatedAt.Format(time.RFC3339Nano),
			d.ID,
		); err != nil {
			return fmt.Errorf("saving device %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing save: %w", err)
	}
	return nil
}

const saveQuery = `
	UPDATE devices SET
		status = ?, value = ?, unit = ?,
		brightness = ?, speed = ?, temperature = ?,
		is_online = ?, is_connected = ?,
		ip_address = ?, mac_address = ?, firmware_version = ?,
		last_error = ?, last_error_at = ?, last_seen_at = ?,
		config = ?, updated_at = ?
	WHERE id = ?`

// queryDevices runs a multi-row device query.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice reads one device row in deviceColumns order.
func scanDevice(row scanner) (*Device, error) {
	var (
		d           Device
		lastErrorAt sql.NullString
		lastSeenAt  sql.NullString
		configJSON  sql.NullString
		createdAt   string
		updatedAt   string
	)

	err := row.Scan(
		&d.ID, &d.RoomID, &d.Name, &d.Status, &d.Value, &d.Unit,
		&d.Brightness, &d.Speed, &d.Temperature,
		&d.IsOnline, &d.IsConnected,
		&d.IPAddress, &d.MACAddress, &d.FirmwareVersion,
		&d.LastError, &lastErrorAt, &lastSeenAt,
		&configJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if d.LastErrorAt, err = parseNullableTime(lastErrorAt); err != nil {
		return nil, fmt.Errorf("parsing last_error_at: %w", err)
	}
	if d.LastSeenAt, err = parseNullableTime(lastSeenAt); err != nil {
		return nil, fmt.Errorf("parsing last_seen_at: %w", err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &d.Config); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	return &d, nil
}

// marshalConfig serialises a config map for storage, nil-safe.
func marshalConfig(cfg Config) (sql.NullString, error) {
	if cfg == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
