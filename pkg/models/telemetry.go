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

package models

import "time"

// Quality is the confidence annotation carried on every stored telemetry point.
type Quality string

const (
	QualityGood      Quality = "good"
	QualityUncertain Quality = "uncertain"
	QualityBad       Quality = "bad"
	QualityMissing   Quality = "missing"
)

// qualityRank orders Quality so a monotonicity check can be expressed as a comparison.
var qualityRank = map[Quality]int{
	QualityBad:       0,
	QualityUncertain: 1,
	QualityMissing:   1,
	QualityGood:      2,
}

// Improves reports whether candidate is at least as trustworthy as current,
// the guard that keeps a late-arriving low-quality duplicate from clobbering
// an already-good reading for the same (time, device, metric) key.
func (q Quality) Improves(current Quality) bool {
	return qualityRank[q] >= qualityRank[current]
}

// AggregationMethod is how a metric's raw samples are rolled up over a window.
type AggregationMethod string

const (
	AggAvg  AggregationMethod = "avg"
	AggSum  AggregationMethod = "sum"
	AggLast AggregationMethod = "last"
	AggMax  AggregationMethod = "max"
	AggMin  AggregationMethod = "min"
)

// MetricDefinition is the catalog entry that governs how a metric is validated and rolled up.
type MetricDefinition struct {
	MetricName         string            `json:"metric_name"`
	DisplayName        string            `json:"display_name"`
	Description        string            `json:"description"`
	Unit               string            `json:"unit"`
	DataType           string            `json:"data_type"`
	DeviceTypes        []string          `json:"device_types"`
	MinValue           *float64          `json:"min_value,omitempty"`
	MaxValue           *float64          `json:"max_value,omitempty"`
	AggregationMethod  AggregationMethod `json:"aggregation_method"`
	IsCumulative       bool              `json:"is_cumulative"`
	CreatedAt          time.Time         `json:"created_at"`
}

// TelemetryPoint is a single validated (time, device, metric) measurement.
type TelemetryPoint struct {
	Time          time.Time              `json:"time"`
	DeviceID      string                 `json:"device_id"`
	SiteID        string                 `json:"site_id,omitempty"`
	MetricName    string                 `json:"metric_name"`
	MetricValue   *float64               `json:"metric_value,omitempty"`
	MetricValueStr *string               `json:"metric_value_str,omitempty"`
	Quality       Quality                `json:"quality"`
	Unit          string                 `json:"unit,omitempty"`
	Source        string                 `json:"source,omitempty"`
	Tags          map[string]string      `json:"tags,omitempty"`
	ReceivedAt    time.Time              `json:"received_at"`
	Processed     bool                   `json:"processed"`
}

// TelemetryBatch is a set of points ingested together under one batch accounting row.
type TelemetryBatch struct {
	BatchID          string
	SourceType       string
	SourceIdentifier string
	Points           []TelemetryPoint
}

// TelemetryBatchRecord is the persisted accounting row for one ingestion batch.
type TelemetryBatchRecord struct {
	BatchID          string     `json:"batch_id"`
	SourceType       string     `json:"source_type"`
	SourceIdentifier string     `json:"source_identifier"`
	DeviceCount      int        `json:"device_count"`
	RecordCount      int        `json:"record_count"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Status           string     `json:"status"`
	RecordsInserted  int        `json:"records_inserted"`
	RecordsFailed    int        `json:"records_failed"`
	Errors           []string   `json:"errors,omitempty"`
	ProcessingTimeMS int64      `json:"processing_time_ms"`
}

// RollupBucket is one row of a continuous-aggregate read (5-minute, hourly, or daily).
type RollupBucket struct {
	Bucket            time.Time `json:"bucket"`
	DeviceID          string    `json:"device_id"`
	SiteID            string    `json:"site_id,omitempty"`
	MetricName        string    `json:"metric_name"`
	AvgValue          float64   `json:"avg_value"`
	MinValue          float64   `json:"min_value"`
	MaxValue          float64   `json:"max_value"`
	FirstValue        float64   `json:"first_value"`
	LastValue         float64   `json:"last_value"`
	DeltaValue        float64   `json:"delta_value"`
	SampleCount       int64     `json:"sample_count"`
	DataQualityPercent float64  `json:"data_quality_percent"`
}
