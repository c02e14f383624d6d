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

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	dberrors "github.com/kunwarf/solar-hub-sub002/pkg/db"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// upsertPointSQL's ON CONFLICT clause is the quality-monotonicity guard: a
// later write at the same (time, device_id, metric_name) only replaces the
// stored row when its quality is at least as good as what is already there,
// expressed with the same good/uncertain-or-missing/bad ranking as
// models.Quality.Improves.
const upsertPointSQL = `INSERT INTO telemetry_raw
	(time, device_id, site_id, metric_name, metric_value, metric_value_str, quality, unit, source, tags, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (time, device_id, metric_name) DO UPDATE SET
		metric_value = EXCLUDED.metric_value,
		metric_value_str = EXCLUDED.metric_value_str,
		quality = EXCLUDED.quality,
		unit = EXCLUDED.unit,
		source = EXCLUDED.source,
		tags = EXCLUDED.tags,
		received_at = EXCLUDED.received_at
	WHERE
		CASE telemetry_raw.quality
			WHEN 'good' THEN 2 WHEN 'uncertain' THEN 1 WHEN 'missing' THEN 1 ELSE 0
		END
		<=
		CASE EXCLUDED.quality
			WHEN 'good' THEN 2 WHEN 'uncertain' THEN 1 WHEN 'missing' THEN 1 ELSE 0
		END
	RETURNING (xmax = 0) AS first_write`

const selectPointColumnsSQL = `SELECT time, device_id, site_id, metric_name, metric_value, metric_value_str,
	quality, unit, source, tags, received_at, processed FROM telemetry_raw`

// CNPGRepository is the pgx-backed Repository implementation for telemetry.
type CNPGRepository struct {
	pool *pgxpool.Pool
}

func NewCNPGRepository(pool *pgxpool.Pool) *CNPGRepository {
	return &CNPGRepository{pool: pool}
}

func (r *CNPGRepository) UpsertPoints(ctx context.Context, points []models.TelemetryPoint) (int, int, error) {
	if len(points) == 0 {
		return 0, 0, nil
	}

	batch := &pgx.Batch{}

	for _, p := range points {
		tagsJSON, err := marshalTags(p.Tags)
		if err != nil {
			return 0, len(points), err
		}

		batch.Queue(upsertPointSQL, p.Time, p.DeviceID, nullableString(p.SiteID), p.MetricName,
			p.MetricValue, p.MetricValueStr, string(p.Quality), p.Unit, p.Source, tagsJSON, p.ReceivedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	// inserted only counts first-write effects: a point that lands on an
	// existing (time, device_id, metric_name) key, whether it updates the
	// row under the quality-monotonicity guard or is silently skipped by
	// it, is not a new record and must not be double-counted on replay.
	inserted, failed := 0, 0

	for range points {
		rows, err := results.Query()
		if err != nil {
			failed++
			continue
		}

		firstWrite := false
		if rows.Next() {
			_ = rows.Scan(&firstWrite)
		}

		err = rows.Err()
		rows.Close()

		if err != nil {
			failed++
			continue
		}

		if firstWrite {
			inserted++
		}
	}

	return inserted, failed, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}

	return s
}

func marshalTags(tags map[string]string) ([]byte, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	b, err := jsonMarshalTags(tags)
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to marshal tags: %w", err)
	}

	return b, nil
}

func (r *CNPGRepository) scanPoints(rows pgx.Rows) ([]models.TelemetryPoint, error) {
	var points []models.TelemetryPoint

	for rows.Next() {
		var p models.TelemetryPoint

		var tagsRaw []byte

		var siteID *string

		if err := rows.Scan(&p.Time, &p.DeviceID, &siteID, &p.MetricName, &p.MetricValue,
			&p.MetricValueStr, &p.Quality, &p.Unit, &p.Source, &tagsRaw, &p.ReceivedAt, &p.Processed); err != nil {
			return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		if siteID != nil {
			p.SiteID = *siteID
		}

		if tags, err := unmarshalTags(tagsRaw); err == nil {
			p.Tags = tags
		}

		points = append(points, p)
	}

	return points, rows.Err()
}

func (r *CNPGRepository) GetLatest(ctx context.Context, deviceID string, metricNames []string) ([]models.TelemetryPoint, error) {
	sql := `SELECT DISTINCT ON (metric_name) time, device_id, site_id, metric_name, metric_value,
		metric_value_str, quality, unit, source, tags, received_at, processed
		FROM telemetry_raw WHERE device_id = $1`

	args := []interface{}{deviceID}

	if len(metricNames) > 0 {
		sql += ` AND metric_name = ANY($2)`
		args = append(args, metricNames)
	}

	sql += ` ORDER BY metric_name, time DESC`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	return r.scanPoints(rows)
}

func (r *CNPGRepository) GetDeviceRange(ctx context.Context, deviceID string, start, end time.Time) ([]models.TelemetryPoint, error) {
	sql := selectPointColumnsSQL + ` WHERE device_id = $1 AND time BETWEEN $2 AND $3 ORDER BY time`

	rows, err := r.pool.Query(ctx, sql, deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	return r.scanPoints(rows)
}

func (r *CNPGRepository) GetSiteRange(ctx context.Context, siteID string, start, end time.Time) ([]models.TelemetryPoint, error) {
	sql := selectPointColumnsSQL + ` WHERE site_id = $1 AND time BETWEEN $2 AND $3 ORDER BY time`

	rows, err := r.pool.Query(ctx, sql, siteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	return r.scanPoints(rows)
}

func (r *CNPGRepository) GetAggregates(ctx context.Context, bucketTable, deviceID, metricName string, start, end time.Time) ([]models.RollupBucket, error) {
	sql := fmt.Sprintf(`SELECT bucket, device_id, site_id, metric_name, avg_value, min_value, max_value,
		first_value, last_value, delta_value, sample_count, data_quality_percent
		FROM %s WHERE device_id = $1 AND metric_name = $2 AND bucket BETWEEN $3 AND $4 ORDER BY bucket`, bucketTable)

	rows, err := r.pool.Query(ctx, sql, deviceID, metricName, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	var buckets []models.RollupBucket

	for rows.Next() {
		var b models.RollupBucket

		var siteID *string

		if err := rows.Scan(&b.Bucket, &b.DeviceID, &siteID, &b.MetricName, &b.AvgValue, &b.MinValue, &b.MaxValue,
			&b.FirstValue, &b.LastValue, &b.DeltaValue, &b.SampleCount, &b.DataQualityPercent); err != nil {
			return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		if siteID != nil {
			b.SiteID = *siteID
		}

		buckets = append(buckets, b)
	}

	return buckets, rows.Err()
}

func (r *CNPGRepository) StartBatch(ctx context.Context, batch *models.TelemetryBatchRecord) error {
	if batch.BatchID == "" {
		batch.BatchID = uuid.New().String()
	}

	sql := `INSERT INTO ingestion_batches (id, source_type, source_identifier, record_count, started_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, sql, batch.BatchID, batch.SourceType, batch.SourceIdentifier,
		batch.RecordCount, batch.StartedAt, batch.Status)
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToInsert, err)
	}

	return nil
}

func (r *CNPGRepository) FinishBatch(ctx context.Context, batch *models.TelemetryBatchRecord) error {
	errsJSON, err := marshalErrors(batch.Errors)
	if err != nil {
		return err
	}

	sql := `UPDATE ingestion_batches SET completed_at = $2, status = $3, records_inserted = $4,
		records_failed = $5, errors = $6, processing_time_ms = $7 WHERE id = $1`

	_, err = r.pool.Exec(ctx, sql, batch.BatchID, batch.CompletedAt, batch.Status,
		batch.RecordsInserted, batch.RecordsFailed, errsJSON, batch.ProcessingTimeMS)
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return nil
}

func (r *CNPGRepository) DeviceStats(ctx context.Context, deviceID string) (int64, *time.Time, error) {
	var count int64

	var last *time.Time

	sql := `SELECT count(*), max(time) FROM telemetry_raw WHERE device_id = $1`
	if err := r.pool.QueryRow(ctx, sql, deviceID).Scan(&count, &last); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return count, last, nil
}

func (r *CNPGRepository) IngestionStats(ctx context.Context, since time.Time) (int64, int64, int64, error) {
	var batches, inserted, failed int64

	sql := `SELECT count(*), coalesce(sum(records_inserted), 0), coalesce(sum(records_failed), 0)
		FROM ingestion_batches WHERE started_at >= $1`

	if err := r.pool.QueryRow(ctx, sql, since).Scan(&batches, &inserted, &failed); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return batches, inserted, failed, nil
}

func (r *CNPGRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM telemetry_raw WHERE time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return tag.RowsAffected(), nil
}
