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

package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	dberrors "github.com/kunwarf/solar-hub-sub002/pkg/db"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

const selectCommandColumnsSQL = `SELECT id, device_id, site_id, command_type, command_params, status,
	created_at, scheduled_at, sent_at, acknowledged_at, completed_at, expires_at, result, error_code, error_message,
	retry_count, max_retries, created_by, priority FROM device_commands`

// claimPendingSQL is the single-statement atomic claim: FOR UPDATE SKIP
// LOCKED makes it race-free against any other transaction claiming for the
// same device concurrently, and the UPDATE...RETURNING shape guarantees
// exactly one of them observes the row.
const claimPendingSQL = `WITH candidate AS (
		SELECT id FROM device_commands
		WHERE device_id = $1 AND status = 'pending'
			AND (scheduled_at IS NULL OR scheduled_at <= now())
			AND (expires_at IS NULL OR expires_at > now())
		ORDER BY priority ASC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE device_commands SET status = 'claimed', sent_at = now()
	WHERE id = (SELECT id FROM candidate)
	RETURNING ` + commandColumnList

const commandColumnList = `id, device_id, site_id, command_type, command_params, status,
	created_at, scheduled_at, sent_at, acknowledged_at, completed_at, expires_at, result, error_code, error_message,
	retry_count, max_retries, created_by, priority`

// CNPGRepository is the pgx-backed Repository implementation for commands.
type CNPGRepository struct {
	pool *pgxpool.Pool
}

func NewCNPGRepository(pool *pgxpool.Pool) *CNPGRepository {
	return &CNPGRepository{pool: pool}
}

func (r *CNPGRepository) Create(ctx context.Context, c *models.DeviceCommand) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	if c.Status == "" {
		c.Status = models.CommandPending
	}

	if c.Priority == 0 {
		c.Priority = models.DefaultPriority()
	}

	if c.MaxRetries == 0 {
		c.MaxRetries = models.DefaultMaxRetries()
	}

	params, err := marshalParams(c.CommandParams)
	if err != nil {
		return err
	}

	const sql = `INSERT INTO device_commands
		(id, device_id, site_id, command_type, command_params, status, scheduled_at, expires_at, created_by, priority, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.pool.Exec(ctx, sql, c.ID, c.DeviceID, c.SiteID, c.CommandType, params, string(c.Status),
		c.ScheduledAt, c.ExpiresAt, c.CreatedBy, c.Priority, c.MaxRetries)
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToInsert, err)
	}

	return nil
}

func (r *CNPGRepository) GetByID(ctx context.Context, id string) (*models.DeviceCommand, error) {
	row := r.pool.QueryRow(ctx, selectCommandColumnsSQL+` WHERE id = $1`, id)

	c, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return c, nil
}

func (r *CNPGRepository) ClaimPending(ctx context.Context, deviceID string) (*models.DeviceCommand, error) {
	row := r.pool.QueryRow(ctx, claimPendingSQL, deviceID)

	c, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return c, nil
}

func (r *CNPGRepository) MarkSent(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE device_commands SET status = 'sent', sent_at = now() WHERE id = $1`, id)
	return wrapExec(err)
}

func (r *CNPGRepository) MarkAcknowledged(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE device_commands SET status = 'acknowledged', acknowledged_at = now() WHERE id = $1`, id)
	return wrapExec(err)
}

func (r *CNPGRepository) MarkCompleted(ctx context.Context, id string, result map[string]interface{}) error {
	resultJSON, err := marshalParams(result)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE device_commands SET status = 'completed', completed_at = now(), result = $2 WHERE id = $1`,
		id, resultJSON)

	return wrapExec(err)
}

func (r *CNPGRepository) MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE device_commands SET status = 'failed', completed_at = now(), error_code = $2, error_message = $3 WHERE id = $1`,
		id, nullableString(errorCode), errorMessage)

	return wrapExec(err)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}

	return s
}

func (r *CNPGRepository) Cancel(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE device_commands SET status = 'cancelled', completed_at = now()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled', 'expired')`, id)
	if err != nil {
		return false, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *CNPGRepository) CancelAllForDevice(ctx context.Context, deviceID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE device_commands SET status = 'cancelled', completed_at = now()
		 WHERE device_id = $1 AND status NOT IN ('completed', 'failed', 'cancelled', 'expired')`, deviceID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return int(tag.RowsAffected()), nil
}

func (r *CNPGRepository) GetRetryable(ctx context.Context) ([]models.DeviceCommand, error) {
	sql := selectCommandColumnsSQL + ` WHERE status = 'failed' AND retry_count < max_retries`

	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	var out []models.DeviceCommand

	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		out = append(out, *c)
	}

	return out, rows.Err()
}

func (r *CNPGRepository) RequeueForRetry(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE device_commands SET status = 'pending', retry_count = retry_count + 1,
		 sent_at = NULL, acknowledged_at = NULL, completed_at = NULL, error_message = NULL
		 WHERE id = $1`, id)

	return wrapExec(err)
}

func (r *CNPGRepository) ExpireOverdue(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE device_commands SET status = 'expired', completed_at = now()
		 WHERE status IN ('pending', 'claimed', 'sent', 'acknowledged') AND expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return int(tag.RowsAffected()), nil
}

func (r *CNPGRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	tag, err := r.pool.Exec(ctx, `DELETE FROM device_commands WHERE created_at < $1
		AND status IN ('completed', 'failed', 'cancelled', 'expired')`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return tag.RowsAffected(), nil
}

func (r *CNPGRepository) Stats(ctx context.Context) (models.CommandStats, error) {
	var stats models.CommandStats

	const sql = `SELECT
		count(*) AS total,
		count(*) FILTER (WHERE status = 'pending') AS pending,
		count(*) FILTER (WHERE status = 'completed') AS completed,
		count(*) FILTER (WHERE status = 'failed') AS failed
		FROM device_commands`

	if err := r.pool.QueryRow(ctx, sql).Scan(&stats.TotalCommands, &stats.PendingCommands,
		&stats.CompletedCommands, &stats.FailedCommands); err != nil {
		return stats, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	finished := stats.CompletedCommands + stats.FailedCommands
	if finished > 0 {
		stats.SuccessRate = 100.0 * float64(stats.CompletedCommands) / float64(finished)
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCommand(row rowScanner) (*models.DeviceCommand, error) {
	var c models.DeviceCommand

	var paramsRaw, resultRaw []byte

	var errorCode *string

	err := row.Scan(&c.ID, &c.DeviceID, &c.SiteID, &c.CommandType, &paramsRaw, &c.Status,
		&c.CreatedAt, &c.ScheduledAt, &c.SentAt, &c.AcknowledgedAt, &c.CompletedAt, &c.ExpiresAt,
		&resultRaw, &errorCode, &c.ErrorMessage, &c.RetryCount, &c.MaxRetries, &c.CreatedBy, &c.Priority)
	if err != nil {
		return nil, err
	}

	if errorCode != nil {
		c.ErrorCode = *errorCode
	}

	if c.CommandParams, err = unmarshalParams(paramsRaw); err != nil {
		return nil, err
	}

	if c.Result, err = unmarshalParams(resultRaw); err != nil {
		return nil, err
	}

	return &c, nil
}

func marshalParams(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("command: failed to marshal params: %w", err)
	}

	return b, nil
}

func unmarshalParams(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	return m, nil
}

func wrapExec(err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return nil
}
