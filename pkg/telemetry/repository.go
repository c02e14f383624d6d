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

// Package telemetry is the ingestion engine: validation, idempotent
// persistence, batch accounting, and rollup/aggregate reads over the
// time-series store.
package telemetry

import (
	"context"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// Repository is the persistence boundary for telemetry_raw, the rollup
// continuous aggregates, and ingestion_batches.
//
//go:generate mockgen -destination=mock_repository.go -package=telemetry github.com/kunwarf/solar-hub-sub002/pkg/telemetry Repository
type Repository interface {
	UpsertPoints(ctx context.Context, points []models.TelemetryPoint) (inserted, failed int, err error)
	GetLatest(ctx context.Context, deviceID string, metricNames []string) ([]models.TelemetryPoint, error)
	GetDeviceRange(ctx context.Context, deviceID string, start, end time.Time) ([]models.TelemetryPoint, error)
	GetSiteRange(ctx context.Context, siteID string, start, end time.Time) ([]models.TelemetryPoint, error)
	GetAggregates(ctx context.Context, bucketTable, deviceID, metricName string, start, end time.Time) ([]models.RollupBucket, error)
	StartBatch(ctx context.Context, batch *models.TelemetryBatchRecord) error
	FinishBatch(ctx context.Context, batch *models.TelemetryBatchRecord) error
	DeviceStats(ctx context.Context, deviceID string) (pointCount int64, lastReceived *time.Time, err error)
	IngestionStats(ctx context.Context, since time.Time) (batches, inserted, failed int64, err error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
