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
	"time"

	"github.com/google/uuid"
	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/metrics"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
	"golang.org/x/sync/errgroup"
)

// CatalogLookup is the narrow slice of catalog.Service this package needs,
// kept as an interface so tests can fake it without a database.
type CatalogLookup interface {
	GetByName(ctx context.Context, metricName string) (*models.MetricDefinition, error)
}

// Service is the ingestion engine.
type Service struct {
	repo    Repository
	catalog CatalogLookup
	log     logger.Logger

	// writeConcurrency bounds how many chunks of one batch
	// persistConcurrently writes at once, so one slow chunk write cannot
	// serialize the rest of the batch.
	writeConcurrency int
	clockSkew        time.Duration
}

func NewService(repo Repository, catalogLookup CatalogLookup, log logger.Logger) *Service {
	return &Service{repo: repo, catalog: catalogLookup, log: log, writeConcurrency: 8, clockSkew: defaultClockSkew}
}

// IngestTelemetry validates and stores a single device's metric readings
// for one instant, returning the count of points actually persisted. Nil
// metric values are skipped rather than stored, matching the original
// ingest-dict contract.
func (s *Service) IngestTelemetry(ctx context.Context, deviceID, siteID string, metricValues map[string]interface{}, timestamp time.Time) (int, error) {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	points := make([]models.TelemetryPoint, 0, len(metricValues))

	for name, raw := range metricValues {
		if raw == nil {
			continue
		}

		point, ok := s.buildPoint(ctx, deviceID, siteID, name, raw, timestamp)
		if !ok {
			continue
		}

		points = append(points, point)
	}

	if len(points) == 0 {
		return 0, nil
	}

	inserted, _, err := s.repo.UpsertPoints(ctx, points)
	if err != nil {
		return 0, err
	}

	for _, p := range points {
		metrics.IngestionPointsTotal.WithLabelValues(string(p.Quality)).Inc()
	}

	return inserted, nil
}

func (s *Service) buildPoint(ctx context.Context, deviceID, siteID, metricName string, raw interface{}, timestamp time.Time) (models.TelemetryPoint, bool) {
	point := models.TelemetryPoint{
		Time:       timestamp,
		DeviceID:   deviceID,
		SiteID:     siteID,
		MetricName: metricName,
		ReceivedAt: time.Now().UTC(),
	}

	if !validateTimestamp(timestamp, time.Now().UTC(), s.clockSkew) {
		return point, false
	}

	switch v := raw.(type) {
	case float64:
		def, _ := s.catalog.GetByName(ctx, metricName)
		value, quality := validateValue(v, def)
		point.MetricValue = &value
		point.Quality = quality

		if def != nil {
			point.Unit = def.Unit
		}
	case int:
		return s.buildPoint(ctx, deviceID, siteID, metricName, float64(v), timestamp)
	case string:
		str := truncateString(v)
		point.MetricValueStr = &str
		point.Quality = models.QualityGood
	default:
		return point, false
	}

	return point, true
}

// IngestBatch persists a pre-assembled batch, auto-assigning a batch id if
// the caller did not set one, and returns (inserted, failed) counts.
func (s *Service) IngestBatch(ctx context.Context, batch *models.TelemetryBatch) (int, int, error) {
	if batch.BatchID == "" {
		batch.BatchID = uuid.New().String()
	}

	record := &models.TelemetryBatchRecord{
		BatchID:          batch.BatchID,
		SourceType:       batch.SourceType,
		SourceIdentifier: batch.SourceIdentifier,
		RecordCount:      len(batch.Points),
		StartedAt:        time.Now().UTC(),
		Status:           "processing",
	}

	if err := s.repo.StartBatch(ctx, record); err != nil {
		return 0, 0, err
	}

	start := time.Now()

	defer func() {
		r := recover()
		if r != nil {
			record.Status = "failed"
		}

		record.ProcessingTimeMS = time.Since(start).Milliseconds()
		_ = s.repo.FinishBatch(ctx, record)

		if r != nil {
			panic(r)
		}
	}()

	inserted, failed, err := s.persistConcurrently(ctx, batch.Points)

	record.RecordsInserted = inserted
	record.RecordsFailed = failed

	if err != nil {
		record.Status = "failed"
		record.Errors = append(record.Errors, err.Error())

		return inserted, failed, err
	}

	switch {
	case failed == 0:
		record.Status = "succeeded"
	case inserted > 0:
		record.Status = "partial"
	default:
		record.Status = "failed"
	}

	now := time.Now().UTC()
	record.CompletedAt = &now

	metrics.IngestionBatchDuration.Observe(time.Since(start).Seconds())
	metrics.IngestionBatchRecordsFailed.Add(float64(failed))

	return inserted, failed, nil
}

// persistConcurrently shards points into chunks and writes them through a
// bounded worker pool so one device's slow write cannot hold up the rest
// of the batch.
func (s *Service) persistConcurrently(ctx context.Context, points []models.TelemetryPoint) (int, int, error) {
	const chunkSize = 500

	if len(points) <= chunkSize {
		return s.repo.UpsertPoints(ctx, points)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.writeConcurrency)

	var totalInserted, totalFailed int

	resultsCh := make(chan [2]int, (len(points)/chunkSize)+1)

	for i := 0; i < len(points); i += chunkSize {
		end := i + chunkSize
		if end > len(points) {
			end = len(points)
		}

		chunk := points[i:end]

		g.Go(func() error {
			ins, fail, err := s.repo.UpsertPoints(gctx, chunk)
			if err != nil {
				return err
			}

			resultsCh <- [2]int{ins, fail}

			return nil
		})
	}

	err := g.Wait()
	close(resultsCh)

	for r := range resultsCh {
		totalInserted += r[0]
		totalFailed += r[1]
	}

	return totalInserted, totalFailed, err
}

// GetLatestTelemetry returns the most recent reading for each requested
// metric (or every known metric if metricNames is empty), shaped as a
// name -> {value, quality, unit} map.
func (s *Service) GetLatestTelemetry(ctx context.Context, deviceID string, metricNames []string) (map[string]map[string]interface{}, error) {
	points, err := s.repo.GetLatest(ctx, deviceID, metricNames)
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]interface{}, len(points))

	for _, p := range points {
		entry := map[string]interface{}{
			"quality": string(p.Quality),
			"unit":    p.Unit,
		}

		if p.MetricValue != nil {
			entry["value"] = *p.MetricValue
		} else if p.MetricValueStr != nil {
			entry["value"] = *p.MetricValueStr
		}

		out[p.MetricName] = entry
	}

	return out, nil
}

func (s *Service) GetDeviceTelemetry(ctx context.Context, deviceID string, start, end time.Time) ([]models.TelemetryPoint, error) {
	return s.repo.GetDeviceRange(ctx, deviceID, start, end)
}

func (s *Service) GetSiteTelemetry(ctx context.Context, siteID string, start, end time.Time) ([]models.TelemetryPoint, error) {
	return s.repo.GetSiteRange(ctx, siteID, start, end)
}

// bucketTableFor maps a rollup resolution name to its continuous aggregate.
func bucketTableFor(resolution string) string {
	switch resolution {
	case "hourly":
		return "telemetry_hourly"
	case "daily":
		return "telemetry_daily"
	default:
		return "telemetry_5min"
	}
}

func (s *Service) GetAggregatedTelemetry(ctx context.Context, resolution, deviceID, metricName string, start, end time.Time) ([]models.RollupBucket, error) {
	return s.repo.GetAggregates(ctx, bucketTableFor(resolution), deviceID, metricName, start, end)
}

// CheckDataGaps reports timestamps at which an expected-interval metric did
// not arrive, returning an empty slice when there is insufficient history
// to judge a gap from a cold start.
func (s *Service) CheckDataGaps(ctx context.Context, deviceID, metricName string, expectedIntervalSeconds int) ([]time.Time, error) {
	now := time.Now().UTC()
	points, err := s.repo.GetDeviceRange(ctx, deviceID, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.TelemetryPoint, 0, len(points))

	for _, p := range points {
		if p.MetricName == metricName {
			filtered = append(filtered, p)
		}
	}

	if len(filtered) < 2 {
		return nil, nil
	}

	var gaps []time.Time

	expected := time.Duration(expectedIntervalSeconds) * time.Second

	for i := 1; i < len(filtered); i++ {
		if filtered[i].Time.Sub(filtered[i-1].Time) > expected*2 {
			gaps = append(gaps, filtered[i-1].Time)
		}
	}

	return gaps, nil
}

func (s *Service) GetDeviceStats(ctx context.Context, deviceID string) (int64, *time.Time, error) {
	return s.repo.DeviceStats(ctx, deviceID)
}

func (s *Service) GetIngestionStats(ctx context.Context, hours int) (batches, inserted, failed int64, err error) {
	if hours <= 0 {
		hours = 24
	}

	return s.repo.IngestionStats(ctx, time.Now().Add(-time.Duration(hours)*time.Hour))
}

// CleanupOldData deletes raw telemetry older than retentionDays, returning
// the number of rows removed. In production this is superseded by the
// declarative TimescaleDB retention policy; it exists for backends or
// deployments where automatic retention is not available.
func (s *Service) CleanupOldData(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 90
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	return s.repo.DeleteOlderThan(ctx, cutoff)
}
