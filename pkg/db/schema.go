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

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements is the ordered set of DDL statements that bring a bare
// TimescaleDB instance up to the shape every repository in this module
// assumes. It is declarative, not a migration framework: rerunning it is
// safe because every statement is IF NOT EXISTS / ON CONFLICT guarded.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS timescaledb`,

	`CREATE TABLE IF NOT EXISTS device_registry (
		device_id UUID PRIMARY KEY,
		site_id UUID NOT NULL,
		organization_id UUID NOT NULL,
		device_type VARCHAR(64) NOT NULL,
		serial_number VARCHAR(128) UNIQUE NOT NULL,
		auth_token_hash VARCHAR(128),
		token_expires_at TIMESTAMPTZ,
		connection_status VARCHAR(32) NOT NULL DEFAULT 'unknown',
		last_connected_at TIMESTAMPTZ,
		last_disconnected_at TIMESTAMPTZ,
		reconnect_count INTEGER NOT NULL DEFAULT 0,
		protocol VARCHAR(32),
		connection_config JSONB,
		polling_interval_seconds INTEGER NOT NULL DEFAULT 60,
		last_polled_at TIMESTAMPTZ,
		next_poll_at TIMESTAMPTZ,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		synced_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_device_registry_connection_status ON device_registry (connection_status)`,
	`CREATE INDEX IF NOT EXISTS idx_device_registry_next_poll_at ON device_registry (next_poll_at)`,

	`CREATE TABLE IF NOT EXISTS telemetry_raw (
		time TIMESTAMPTZ NOT NULL,
		device_id UUID NOT NULL,
		site_id UUID,
		metric_name VARCHAR(128) NOT NULL,
		metric_value DOUBLE PRECISION,
		metric_value_str VARCHAR(256),
		quality VARCHAR(16) NOT NULL DEFAULT 'good',
		unit VARCHAR(32),
		source VARCHAR(64),
		tags JSONB,
		raw_value BYTEA,
		received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (time, device_id, metric_name)
	)`,
	`SELECT create_hypertable('telemetry_raw', 'time', chunk_time_interval => INTERVAL '1 day', if_not_exists => TRUE)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_raw_device_time ON telemetry_raw (device_id, time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_raw_site_time ON telemetry_raw (site_id, time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_raw_metric_time ON telemetry_raw (metric_name, time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_raw_device_metric_time ON telemetry_raw (device_id, metric_name, time DESC)`,

	`CREATE TABLE IF NOT EXISTS device_events (
		time TIMESTAMPTZ NOT NULL,
		device_id UUID NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		event_code VARCHAR(64),
		severity VARCHAR(16) NOT NULL DEFAULT 'info',
		message TEXT,
		details JSONB,
		acknowledged BOOLEAN NOT NULL DEFAULT false,
		acknowledged_at TIMESTAMPTZ,
		acknowledged_by VARCHAR(128),
		PRIMARY KEY (time, device_id, event_type)
	)`,
	`SELECT create_hypertable('device_events', 'time', chunk_time_interval => INTERVAL '1 day', if_not_exists => TRUE)`,
	`CREATE INDEX IF NOT EXISTS idx_device_events_device_time ON device_events (device_id, time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_device_events_severity_time ON device_events (severity, time DESC)`,

	`CREATE TABLE IF NOT EXISTS device_commands (
		id UUID PRIMARY KEY,
		device_id UUID NOT NULL,
		site_id UUID,
		command_type VARCHAR(64) NOT NULL,
		command_params JSONB,
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		scheduled_at TIMESTAMPTZ,
		sent_at TIMESTAMPTZ,
		acknowledged_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		result JSONB,
		error_code VARCHAR(64),
		error_message TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		created_by VARCHAR(128),
		priority INTEGER NOT NULL DEFAULT 5
	)`,
	`CREATE INDEX IF NOT EXISTS idx_device_commands_status ON device_commands (status)`,
	`CREATE INDEX IF NOT EXISTS idx_device_commands_device_priority ON device_commands (device_id, priority ASC, created_at ASC)`,

	`CREATE TABLE IF NOT EXISTS metric_definitions (
		metric_name VARCHAR(128) PRIMARY KEY,
		display_name VARCHAR(128),
		description TEXT,
		unit VARCHAR(32),
		data_type VARCHAR(16) NOT NULL DEFAULT 'float',
		device_types VARCHAR(64)[],
		min_value DOUBLE PRECISION,
		max_value DOUBLE PRECISION,
		aggregation_method VARCHAR(16) NOT NULL DEFAULT 'avg',
		is_cumulative BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS ingestion_batches (
		id UUID PRIMARY KEY,
		source_type VARCHAR(32),
		source_identifier VARCHAR(128),
		device_count INTEGER NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ,
		status VARCHAR(16) NOT NULL DEFAULT 'processing',
		records_inserted INTEGER NOT NULL DEFAULT 0,
		records_failed INTEGER NOT NULL DEFAULT 0,
		errors JSONB,
		processing_time_ms BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ingestion_batches_status_started ON ingestion_batches (status, started_at)`,
}

// continuousAggregateStatements declares the 5-minute/hourly/daily rollups
// and their refresh, retention, and compression policies. These are
// configuration, not an implementation of continuous aggregation itself.
var continuousAggregateStatements = []string{
	`CREATE MATERIALIZED VIEW IF NOT EXISTS telemetry_5min
	 WITH (timescaledb.continuous) AS
	 SELECT
		time_bucket('5 minutes', time) AS bucket,
		device_id,
		site_id,
		metric_name,
		avg(metric_value) AS avg_value,
		min(metric_value) AS min_value,
		max(metric_value) AS max_value,
		first(metric_value, time) AS first_value,
		last(metric_value, time) AS last_value,
		last(metric_value, time) - first(metric_value, time) AS delta_value,
		count(*) AS sample_count,
		100.0 * count(*) FILTER (WHERE quality = 'good') / count(*) AS data_quality_percent
	 FROM telemetry_raw
	 GROUP BY bucket, device_id, site_id, metric_name
	 WITH NO DATA`,
	`SELECT add_continuous_aggregate_policy('telemetry_5min',
		start_offset => INTERVAL '1 hour', end_offset => INTERVAL '10 minutes',
		schedule_interval => INTERVAL '5 minutes', if_not_exists => TRUE)`,

	`CREATE MATERIALIZED VIEW IF NOT EXISTS telemetry_hourly
	 WITH (timescaledb.continuous) AS
	 SELECT
		time_bucket('1 hour', time) AS bucket,
		device_id,
		site_id,
		metric_name,
		avg(metric_value) AS avg_value,
		min(metric_value) AS min_value,
		max(metric_value) AS max_value,
		first(metric_value, time) AS first_value,
		last(metric_value, time) AS last_value,
		last(metric_value, time) - first(metric_value, time) AS delta_value,
		count(*) AS sample_count,
		100.0 * count(*) FILTER (WHERE quality = 'good') / count(*) AS data_quality_percent
	 FROM telemetry_raw
	 GROUP BY bucket, device_id, site_id, metric_name
	 WITH NO DATA`,
	`SELECT add_continuous_aggregate_policy('telemetry_hourly',
		start_offset => INTERVAL '3 hours', end_offset => INTERVAL '1 hour',
		schedule_interval => INTERVAL '1 hour', if_not_exists => TRUE)`,

	`CREATE MATERIALIZED VIEW IF NOT EXISTS telemetry_daily
	 WITH (timescaledb.continuous) AS
	 SELECT
		time_bucket('1 day', time) AS bucket,
		device_id,
		site_id,
		metric_name,
		avg(metric_value) AS avg_value,
		min(metric_value) AS min_value,
		max(metric_value) AS max_value,
		first(metric_value, time) AS first_value,
		last(metric_value, time) AS last_value,
		last(metric_value, time) - first(metric_value, time) AS delta_value,
		count(*) AS sample_count,
		100.0 * count(*) FILTER (WHERE quality = 'good') / count(*) AS data_quality_percent
	 FROM telemetry_raw
	 GROUP BY bucket, device_id, site_id, metric_name
	 WITH NO DATA`,
	`SELECT add_continuous_aggregate_policy('telemetry_daily',
		start_offset => INTERVAL '3 days', end_offset => INTERVAL '1 day',
		schedule_interval => INTERVAL '1 day', if_not_exists => TRUE)`,

	// Site-level rollups answer "how is this site doing" without forcing the
	// caller to fan out over every device in it.
	`CREATE MATERIALIZED VIEW IF NOT EXISTS telemetry_site_hourly
	 WITH (timescaledb.continuous) AS
	 SELECT
		time_bucket('1 hour', time) AS bucket,
		site_id,
		metric_name,
		avg(metric_value) AS avg_value,
		min(metric_value) AS min_value,
		max(metric_value) AS max_value,
		sum(metric_value) AS sum_value,
		count(*) AS sample_count,
		100.0 * count(*) FILTER (WHERE quality = 'good') / count(*) AS data_quality_percent
	 FROM telemetry_raw
	 WHERE site_id IS NOT NULL
	 GROUP BY bucket, site_id, metric_name
	 WITH NO DATA`,
	`SELECT add_continuous_aggregate_policy('telemetry_site_hourly',
		start_offset => INTERVAL '3 hours', end_offset => INTERVAL '1 hour',
		schedule_interval => INTERVAL '1 hour', if_not_exists => TRUE)`,

	`CREATE MATERIALIZED VIEW IF NOT EXISTS telemetry_site_daily
	 WITH (timescaledb.continuous) AS
	 SELECT
		time_bucket('1 day', time) AS bucket,
		site_id,
		metric_name,
		avg(metric_value) AS avg_value,
		min(metric_value) AS min_value,
		max(metric_value) AS max_value,
		sum(metric_value) AS sum_value,
		count(*) AS sample_count,
		100.0 * count(*) FILTER (WHERE quality = 'good') / count(*) AS data_quality_percent
	 FROM telemetry_raw
	 WHERE site_id IS NOT NULL
	 GROUP BY bucket, site_id, metric_name
	 WITH NO DATA`,
	`SELECT add_continuous_aggregate_policy('telemetry_site_daily',
		start_offset => INTERVAL '3 days', end_offset => INTERVAL '1 day',
		schedule_interval => INTERVAL '1 day', if_not_exists => TRUE)`,

	`CREATE MATERIALIZED VIEW IF NOT EXISTS event_counts_hourly
	 WITH (timescaledb.continuous) AS
	 SELECT
		time_bucket('1 hour', time) AS bucket,
		device_id,
		event_type,
		severity,
		count(*) AS event_count
	 FROM device_events
	 GROUP BY bucket, device_id, event_type, severity
	 WITH NO DATA`,
	`SELECT add_continuous_aggregate_policy('event_counts_hourly',
		start_offset => INTERVAL '3 hours', end_offset => INTERVAL '1 hour',
		schedule_interval => INTERVAL '1 hour', if_not_exists => TRUE)`,

	`SELECT add_retention_policy('telemetry_raw', INTERVAL '7 days', if_not_exists => TRUE)`,
	`SELECT add_retention_policy('device_events', INTERVAL '90 days', if_not_exists => TRUE)`,
	`SELECT add_retention_policy('telemetry_5min', INTERVAL '30 days', if_not_exists => TRUE)`,
	`SELECT add_retention_policy('telemetry_hourly', INTERVAL '365 days', if_not_exists => TRUE)`,
	`SELECT add_retention_policy('telemetry_site_hourly', INTERVAL '365 days', if_not_exists => TRUE)`,
	`SELECT add_retention_policy('event_counts_hourly', INTERVAL '365 days', if_not_exists => TRUE)`,

	`ALTER TABLE telemetry_raw SET (timescaledb.compress, timescaledb.compress_segmentby = 'device_id, metric_name')`,
	`SELECT add_compression_policy('telemetry_raw', INTERVAL '2 days', if_not_exists => TRUE)`,
}

// Bootstrap runs the schema and continuous-aggregate statements in order.
// It is intended for local development and integration tests; production
// deployments are expected to apply the same statements through whatever
// migration tooling the surrounding platform already uses.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToInit, err)
		}
	}

	for _, stmt := range continuousAggregateStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToInit, err)
		}
	}

	return nil
}
