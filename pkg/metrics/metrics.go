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

// Package metrics registers the Prometheus collectors exported by the
// telemetry plane. Collectors are package-level so any package can record
// against them without threading a registry through every call.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UnknownMetricTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_unknown_metric_total",
		Help: "Telemetry points accepted for a metric absent from the catalog.",
	}, []string{"metric_name"})

	IngestionPointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_points_total",
		Help: "Telemetry points ingested, by resulting quality.",
	}, []string{"quality"})

	IngestionBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingestion_batch_duration_seconds",
		Help:    "Wall-clock time to persist one ingestion batch.",
		Buckets: prometheus.DefBuckets,
	})

	IngestionBatchRecordsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_batch_records_failed_total",
		Help: "Telemetry points that failed validation or persistence during batch ingestion.",
	})

	CommandsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commands_dispatched_total",
		Help: "Commands that finished dispatch, by terminal status.",
	}, []string{"status"})

	AuthLockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Times a device or serial crossed the failed-attempt lockout threshold.",
	})

	AuthAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_attempts_total",
		Help: "Device authentication attempts, by result.",
	}, []string{"result"})
)
