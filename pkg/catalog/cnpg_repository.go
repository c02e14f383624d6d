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

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	dberrors "github.com/kunwarf/solar-hub-sub002/pkg/db"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

const selectMetricColumnsSQL = `SELECT metric_name, display_name, description, unit, data_type, device_types,
	min_value, max_value, aggregation_method, is_cumulative, created_at FROM metric_definitions`

// CNPGRepository is the pgx-backed Repository implementation for the metric catalog.
type CNPGRepository struct {
	pool *pgxpool.Pool
}

func NewCNPGRepository(pool *pgxpool.Pool) *CNPGRepository {
	return &CNPGRepository{pool: pool}
}

func (r *CNPGRepository) Get(ctx context.Context, metricName string) (*models.MetricDefinition, error) {
	row := r.pool.QueryRow(ctx, selectMetricColumnsSQL+` WHERE metric_name = $1`, metricName)

	def, err := scanMetric(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}

	return def, nil
}

func (r *CNPGRepository) ListForDeviceType(ctx context.Context, deviceType string) ([]models.MetricDefinition, error) {
	rows, err := r.pool.Query(ctx, selectMetricColumnsSQL+` WHERE $1 = ANY(device_types) ORDER BY metric_name`, deviceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	return scanMetrics(rows)
}

func (r *CNPGRepository) List(ctx context.Context) ([]models.MetricDefinition, error) {
	rows, err := r.pool.Query(ctx, selectMetricColumnsSQL+` ORDER BY metric_name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToQuery, err)
	}
	defer rows.Close()

	return scanMetrics(rows)
}

// Upsert writes def via ON CONFLICT DO NOTHING, so a catalog Bootstrap never
// clobbers an operator's own customization of an existing metric.
func (r *CNPGRepository) Upsert(ctx context.Context, def *models.MetricDefinition) error {
	const sql = `INSERT INTO metric_definitions
		(metric_name, display_name, description, unit, data_type, device_types, min_value, max_value, aggregation_method, is_cumulative)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (metric_name) DO NOTHING`

	_, err := r.pool.Exec(ctx, sql, def.MetricName, def.DisplayName, def.Description, def.Unit, def.DataType,
		def.DeviceTypes, def.MinValue, def.MaxValue, string(def.AggregationMethod), def.IsCumulative)
	if err != nil {
		return fmt.Errorf("%w: %w", dberrors.ErrFailedToInsert, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMetric(row rowScanner) (*models.MetricDefinition, error) {
	var def models.MetricDefinition

	var aggMethod string

	err := row.Scan(&def.MetricName, &def.DisplayName, &def.Description, &def.Unit, &def.DataType,
		&def.DeviceTypes, &def.MinValue, &def.MaxValue, &aggMethod, &def.IsCumulative, &def.CreatedAt)
	if err != nil {
		return nil, err
	}

	def.AggregationMethod = models.AggregationMethod(aggMethod)

	return &def, nil
}

func scanMetrics(rows pgx.Rows) ([]models.MetricDefinition, error) {
	var out []models.MetricDefinition

	for rows.Next() {
		def, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", dberrors.ErrFailedToScan, err)
		}

		out = append(out, *def)
	}

	return out, rows.Err()
}
