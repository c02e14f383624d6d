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

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	dberrors "github.com/kunwarf/solar-hub-sub002/pkg/db"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// CNPGRepository is the pgx-backed Repository implementation for the journal.
type CNPGRepository struct {
	pool *pgxpool.Pool
}

func NewCNPGRepository(pool *pgxpool.Pool) *CNPGRepository {
	return &CNPGRepository{pool: pool}
}

func (r *CNPGRepository) Append(ctx context.Context, evts []models.DeviceEvent) error {
	if len(evts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	const sql = `INSERT INTO device_events (time, device_id, event_type, event_code, severity, message, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (time, device_id, event_type) DO NOTHING`

	for _, e := range evts {
		details, err := marshalDetails(e.Details)
		if err != nil {
			return err
		}

		batch.Queue(sql, e.Time, e.DeviceID, e.EventType, e.EventCode, string(e.Severity), e.Message, details)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range evts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%w: %w", dberrors.ErrFailedToInsert, err)
		}
	}

	return nil
}

const selectEventColumnsSQL = `SELECT time, device_id, event_type, event_code, severity, message, details,
	acknowledged, acknowledged_at, acknowledged_by FROM device_events`

func (r *CNPGRepository) List(ctx context.Context, f Filter) ([]models.DeviceEvent, error) {
	sql := selectEventColumnsSQL
	where := []string{}
	args := []interface{}{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.DeviceID != "" {
		add("device_id = $%d", f.DeviceID)
	}

	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}

	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}

	if !f.Since.IsZero() {
		add("time >= $%d", f.Since)
	}

	if !f.Until.IsZero() {
		add("time <= $%d", f.Until)
	}

	if f.Unacknowledged {
		where = append(where, "acknowledged = false")
	}

	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	sql += " ORDER BY time DESC"

	if f.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (r *CNPGRepository) RecentErrors(ctx context.Context, since time.Time, limit int) ([]models.DeviceEvent, error) {
	return r.List(ctx, Filter{Severity: models.SeverityError, Since: since, Limit: limit})
}

func scanEvents(rows pgx.Rows) ([]models.DeviceEvent, error) {
	var out []models.DeviceEvent

	for rows.Next() {
		var e models.DeviceEvent

		var detailsRaw []byte

		if err := rows.Scan(&e.Time, &e.DeviceID, &e.EventType, &e.EventCode, &e.Severity, &e.Message,
			&detailsRaw, &e.Acknowledged, &e.AcknowledgedAt, &e.AcknowledgedBy); err != nil {
			return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		if details, err := unmarshalDetails(detailsRaw); err == nil {
			e.Details = details
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

// Acknowledge is a set-if-null update: acknowledging an already-acknowledged
// event is a no-op that still reports success, making the operation
// idempotent under retries.
func (r *CNPGRepository) Acknowledge(ctx context.Context, deviceID string, t time.Time, eventType, ackBy string) (bool, error) {
	const sql = `UPDATE device_events SET acknowledged = true, acknowledged_at = now(), acknowledged_by = $4
		WHERE device_id = $1 AND time = $2 AND event_type = $3 AND acknowledged = false`

	tag, err := r.pool.Exec(ctx, sql, deviceID, t, eventType, ackBy)
	if err != nil {
		return false, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	if tag.RowsAffected() > 0 {
		return true, nil
	}

	const existsSQL = `SELECT acknowledged FROM device_events WHERE device_id = $1 AND time = $2 AND event_type = $3`

	var already bool
	if err := r.pool.QueryRow(ctx, existsSQL, deviceID, t, eventType).Scan(&already); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}

		return false, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return already, nil
}

func (r *CNPGRepository) AcknowledgeBulk(ctx context.Context, deviceID, ackBy string) (int, error) {
	const sql = `UPDATE device_events SET acknowledged = true, acknowledged_at = now(), acknowledged_by = $2
		WHERE device_id = $1 AND acknowledged = false`

	tag, err := r.pool.Exec(ctx, sql, deviceID, ackBy)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return int(tag.RowsAffected()), nil
}

func (r *CNPGRepository) CountsBy(ctx context.Context, since time.Time) ([]models.EventCounts, error) {
	const sql = `SELECT event_type, severity, count(*) FROM device_events WHERE time >= $1
		GROUP BY event_type, severity ORDER BY event_type, severity`

	rows, err := r.pool.Query(ctx, sql, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	var out []models.EventCounts

	for rows.Next() {
		var c models.EventCounts
		if err := rows.Scan(&c.EventType, &c.Severity, &c.Count); err != nil {
			return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

func (r *CNPGRepository) HourlyTimeline(ctx context.Context, since time.Time) (map[time.Time]int64, error) {
	const sql = `SELECT time_bucket('1 hour', time) AS bucket, count(*) FROM device_events
		WHERE time >= $1 GROUP BY bucket ORDER BY bucket`

	rows, err := r.pool.Query(ctx, sql, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	out := make(map[time.Time]int64)

	for rows.Next() {
		var bucket time.Time

		var count int64

		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		out[bucket] = count
	}

	return out, rows.Err()
}

func (r *CNPGRepository) TopErrorDevices(ctx context.Context, since time.Time, limit int) (map[string]int64, error) {
	const sql = `SELECT device_id, count(*) FROM device_events
		WHERE time >= $1 AND severity IN ('error', 'critical')
		GROUP BY device_id ORDER BY count(*) DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, sql, since, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	out := make(map[string]int64)

	for rows.Next() {
		var deviceID string

		var count int64

		if err := rows.Scan(&deviceID, &count); err != nil {
			return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		out[deviceID] = count
	}

	return out, rows.Err()
}

func (r *CNPGRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, keepUnacknowledged bool) (int64, error) {
	sql := `DELETE FROM device_events WHERE time < $1`
	if keepUnacknowledged {
		sql += ` AND acknowledged = true`
	}

	tag, err := r.pool.Exec(ctx, sql, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return tag.RowsAffected(), nil
}

func marshalDetails(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("events: failed to marshal details: %w", err)
	}

	return b, nil
}

func unmarshalDetails(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	return m, nil
}
