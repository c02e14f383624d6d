/*
 * Copyright 2026 Solar Hub Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	dberrors "github.com/kunwarf/solar-hub-sub002/pkg/db"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

const (
	insertDeviceSQL = `INSERT INTO device_registry
		(device_id, site_id, organization_id, device_type, serial_number, protocol,
		 connection_config, polling_interval_seconds, metadata, connection_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'unknown')
		ON CONFLICT (device_id) DO NOTHING`

	selectDeviceColumnsSQL = `SELECT device_id, site_id, organization_id, device_type, serial_number,
		auth_token_hash, token_expires_at, connection_status, last_connected_at, last_disconnected_at,
		reconnect_count, protocol, connection_config, polling_interval_seconds, last_polled_at,
		next_poll_at, metadata, created_at, updated_at, synced_at
		FROM device_registry`

	getDeviceByIDSQL     = selectDeviceColumnsSQL + ` WHERE device_id = $1`
	getDeviceBySerialSQL = selectDeviceColumnsSQL + ` WHERE serial_number = $1`
	listBySiteSQL        = selectDeviceColumnsSQL + ` WHERE site_id = $1 ORDER BY created_at`
	listByOrgSQL         = selectDeviceColumnsSQL + ` WHERE organization_id = $1 ORDER BY created_at`
	listConnectedSQL     = selectDeviceColumnsSQL + ` WHERE connection_status = 'connected' ORDER BY last_connected_at DESC`
	listDueForPollingSQL = selectDeviceColumnsSQL + ` WHERE next_poll_at IS NULL OR next_poll_at <= now() ORDER BY next_poll_at NULLS FIRST`
	listUnsyncedSQL      = selectDeviceColumnsSQL + ` WHERE synced_at IS NULL OR synced_at < updated_at ORDER BY updated_at`

	updateDeviceSQL = `UPDATE device_registry SET
		site_id = $2, organization_id = $3, device_type = $4, protocol = $5,
		connection_config = $6, polling_interval_seconds = $7, metadata = $8, updated_at = now()
		WHERE device_id = $1`

	deleteDeviceSQL = `UPDATE device_registry SET connection_status = 'decommissioned', updated_at = now()
		WHERE device_id = $1`

	updateConnectionStatusSQL = `UPDATE device_registry SET connection_status = $2,
		last_connected_at = CASE WHEN $2 = 'connected' THEN now() ELSE last_connected_at END,
		last_disconnected_at = CASE WHEN $2 = 'disconnected' THEN now() ELSE last_disconnected_at END,
		reconnect_count = CASE WHEN $2 = 'connected' THEN reconnect_count + 1 ELSE reconnect_count END,
		updated_at = now()
		WHERE device_id = $1`

	updatePollTimeSQL = `UPDATE device_registry SET last_polled_at = now(),
		next_poll_at = now() + (polling_interval_seconds * interval '1 second'), updated_at = now()
		WHERE device_id = $1`

	markSyncedSQL = `UPDATE device_registry SET synced_at = now() WHERE device_id = ANY($1)`

	setAuthTokenSQL   = `UPDATE device_registry SET auth_token_hash = $2, token_expires_at = $3, updated_at = now() WHERE device_id = $1`
	clearAuthTokenSQL = `UPDATE device_registry SET auth_token_hash = NULL, token_expires_at = NULL, updated_at = now() WHERE device_id = $1`

	connectionStatsByStatusSQL = `SELECT connection_status, count(*) FROM device_registry GROUP BY connection_status`
	connectionStatsByTypeSQL   = `SELECT device_type, count(*) FROM device_registry GROUP BY device_type`
)

// CNPGRepository is the pgx-backed Repository implementation.
type CNPGRepository struct {
	pool *pgxpool.Pool
}

func NewCNPGRepository(pool *pgxpool.Pool) *CNPGRepository {
	return &CNPGRepository{pool: pool}
}

func (r *CNPGRepository) Create(ctx context.Context, d *models.Device) error {
	if d == nil || d.DeviceID == "" {
		return dberrors.ErrDeviceIDMissing
	}

	connCfg, err := marshalJSON(d.ConnectionConfig)
	if err != nil {
		return err
	}

	meta, err := marshalJSON(d.Metadata)
	if err != nil {
		return err
	}

	if d.PollingIntervalSec == 0 {
		d.PollingIntervalSec = 60
	}

	_, err = r.pool.Exec(ctx, insertDeviceSQL, d.DeviceID, d.SiteID, d.OrganizationID,
		d.DeviceType, d.SerialNumber, d.Protocol, connCfg, d.PollingIntervalSec, meta)
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToInsert, err)
	}

	return nil
}

func (r *CNPGRepository) GetByID(ctx context.Context, deviceID string) (*models.Device, error) {
	return r.queryOne(ctx, getDeviceByIDSQL, deviceID)
}

func (r *CNPGRepository) GetBySerial(ctx context.Context, serial string) (*models.Device, error) {
	return r.queryOne(ctx, getDeviceBySerialSQL, serial)
}

func (r *CNPGRepository) queryOne(ctx context.Context, sql string, arg interface{}) (*models.Device, error) {
	row := r.pool.QueryRow(ctx, sql, arg)

	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return d, nil
}

func (r *CNPGRepository) ListBySite(ctx context.Context, siteID string) ([]models.Device, error) {
	return r.queryMany(ctx, listBySiteSQL, siteID)
}

func (r *CNPGRepository) ListByOrganization(ctx context.Context, orgID string) ([]models.Device, error) {
	return r.queryMany(ctx, listByOrgSQL, orgID)
}

func (r *CNPGRepository) ListConnected(ctx context.Context) ([]models.Device, error) {
	return r.queryMany(ctx, listConnectedSQL)
}

func (r *CNPGRepository) ListDueForPolling(ctx context.Context) ([]models.Device, error) {
	return r.queryMany(ctx, listDueForPollingSQL)
}

func (r *CNPGRepository) ListUnsynced(ctx context.Context) ([]models.Device, error) {
	return r.queryMany(ctx, listUnsyncedSQL)
}

func (r *CNPGRepository) queryMany(ctx context.Context, sql string, args ...interface{}) ([]models.Device, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	var devices []models.Device

	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		devices = append(devices, *d)
	}

	return devices, rows.Err()
}

func (r *CNPGRepository) Update(ctx context.Context, d *models.Device) error {
	connCfg, err := marshalJSON(d.ConnectionConfig)
	if err != nil {
		return err
	}

	meta, err := marshalJSON(d.Metadata)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, updateDeviceSQL, d.DeviceID, d.SiteID, d.OrganizationID,
		d.DeviceType, d.Protocol, connCfg, d.PollingIntervalSec, meta)
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return nil
}

func (r *CNPGRepository) Delete(ctx context.Context, deviceID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, deleteDeviceSQL, deviceID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *CNPGRepository) UpdateConnectionStatus(ctx context.Context, deviceID string, status models.ConnectionStatus) error {
	_, err := r.pool.Exec(ctx, updateConnectionStatusSQL, deviceID, string(status))
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return nil
}

func (r *CNPGRepository) UpdatePollTime(ctx context.Context, deviceID string) error {
	_, err := r.pool.Exec(ctx, updatePollTimeSQL, deviceID)
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return nil
}

func (r *CNPGRepository) MarkSynced(ctx context.Context, deviceIDs []string) (int, error) {
	if len(deviceIDs) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, markSyncedSQL, deviceIDs)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return int(tag.RowsAffected()), nil
}

func (r *CNPGRepository) SetAuthToken(ctx context.Context, deviceID, tokenHash string, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx, setAuthTokenSQL, deviceID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return nil
}

func (r *CNPGRepository) ClearAuthToken(ctx context.Context, deviceID string) error {
	_, err := r.pool.Exec(ctx, clearAuthTokenSQL, deviceID)
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return nil
}

func (r *CNPGRepository) ConnectionStats(ctx context.Context) (models.ConnectionStats, error) {
	stats := models.ConnectionStats{
		ByStatus: make(map[models.ConnectionStatus]int64),
		ByType:   make(map[string]int64),
	}

	rows, err := r.pool.Query(ctx, connectionStatsByStatusSQL)
	if err != nil {
		return stats, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	for rows.Next() {
		var status string

		var count int64

		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		stats.ByStatus[models.ConnectionStatus(status)] = count
	}

	rows.Close()

	rows, err = r.pool.Query(ctx, connectionStatsByTypeSQL)
	if err != nil {
		return stats, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	for rows.Next() {
		var deviceType string

		var count int64

		if err := rows.Scan(&deviceType, &count); err != nil {
			return stats, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		stats.ByType[deviceType] = count
	}

	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device

	var connCfgRaw, metaRaw []byte

	err := row.Scan(&d.DeviceID, &d.SiteID, &d.OrganizationID, &d.DeviceType, &d.SerialNumber,
		&d.AuthTokenHash, &d.TokenExpiresAt, &d.ConnectionStatus, &d.LastConnectedAt, &d.LastDisconnectedAt,
		&d.ReconnectCount, &d.Protocol, &connCfgRaw, &d.PollingIntervalSec, &d.LastPolledAt,
		&d.NextPollAt, &metaRaw, &d.CreatedAt, &d.UpdatedAt, &d.SyncedAt)
	if err != nil {
		return nil, err
	}

	if d.ConnectionConfig, err = unmarshalJSON(connCfgRaw); err != nil {
		return nil, err
	}

	if d.Metadata, err = unmarshalJSON(metaRaw); err != nil {
		return nil, err
	}

	return &d, nil
}

func marshalJSON(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to marshal json: %w", err)
	}

	return b, nil
}

func unmarshalJSON(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("registry: failed to unmarshal json: %w", err)
	}

	return m, nil
}
