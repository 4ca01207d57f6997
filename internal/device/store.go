package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store persists device identity across restarts.
//
// Only identity and addressing survive: live datapoint values and
// availability are runtime-only and rebuilt by the reconciliation loop.
type Store struct {
	db *sql.DB
}

// NewStore creates a device store backed by db. The devices table must
// already exist; migrations run at startup before any store is built.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts or updates the persisted record for dev. The updated_at
// column always moves forward; created_at is preserved on update.
func (s *Store) Upsert(ctx context.Context, dev Device) error {
	dpIDs, err := json.Marshal(dev.DatapointIDs)
	if err != nil {
		return fmt.Errorf("marshaling datapoint ids: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO devices (id, product_id, type_code, model_name, icon, datapoint_ids,
			software_version, host, port, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_id = excluded.product_id,
			type_code = excluded.type_code,
			model_name = excluded.model_name,
			icon = excluded.icon,
			datapoint_ids = excluded.datapoint_ids,
			software_version = excluded.software_version,
			host = excluded.host,
			port = excluded.port,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		dev.ID, dev.ProductID, dev.TypeCode, dev.ModelName, dev.Icon, string(dpIDs),
		dev.SoftwareVersion, dev.Host, dev.Port, dev.LastSeen.UTC(), now, now)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", dev.ID, err)
	}
	return nil
}

// Get returns the persisted record for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Device, error) {
	query := `
		SELECT id, product_id, type_code, model_name, icon, datapoint_ids,
			software_version, host, port, last_seen
		FROM devices WHERE id = ?
	`

	dev, err := scanDevice(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	if err != nil {
		return Device{}, fmt.Errorf("getting device %s: %w", id, err)
	}
	return dev, nil
}

// List returns every persisted device, ordered by id.
func (s *Store) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT id, product_id, type_code, model_name, icon, datapoint_ids,
			software_version, host, port, last_seen
		FROM devices ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// KnownHosts returns the distinct last-seen hosts of every persisted
// device. Fed into discovery as static addresses so a restart reconnects
// without waiting for a broadcast reply.
func (s *Store) KnownHosts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT host FROM devices WHERE host != '' ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("listing known hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("scanning host row: %w", err)
		}
		hosts = append(hosts, host)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating host rows: %w", err)
	}
	return hosts, nil
}

// Delete removes the persisted record for id. Deleting an unknown id
// returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (Device, error) {
	var dev Device
	var dpIDs string
	var lastSeen time.Time

	err := row.Scan(&dev.ID, &dev.ProductID, &dev.TypeCode, &dev.ModelName, &dev.Icon,
		&dpIDs, &dev.SoftwareVersion, &dev.Host, &dev.Port, &lastSeen)
	if err != nil {
		return Device{}, err
	}

	if dpIDs != "" {
		if err := json.Unmarshal([]byte(dpIDs), &dev.DatapointIDs); err != nil {
			return Device{}, fmt.Errorf("unmarshaling datapoint ids: %w", err)
		}
	}
	dev.LastSeen = lastSeen
	return dev, nil
}
