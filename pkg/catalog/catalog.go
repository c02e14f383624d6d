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

// Package catalog holds the metric definitions that govern how telemetry
// values are validated, rolled up, and labeled across the fleet.
package catalog

import (
	"context"
	"sync"

	"github.com/kunwarf/solar-hub-sub002/pkg/metrics"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// Repository is the persistence boundary for metric definitions.
//
//go:generate mockgen -destination=mock_repository.go -package=catalog github.com/kunwarf/solar-hub-sub002/pkg/catalog Repository
type Repository interface {
	Get(ctx context.Context, metricName string) (*models.MetricDefinition, error)
	ListForDeviceType(ctx context.Context, deviceType string) ([]models.MetricDefinition, error)
	Upsert(ctx context.Context, def *models.MetricDefinition) error
	List(ctx context.Context) ([]models.MetricDefinition, error)
}

// Service is a read-through cache over Repository.
type Service struct {
	repo Repository

	mu    sync.RWMutex
	cache map[string]models.MetricDefinition
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, cache: make(map[string]models.MetricDefinition)}
}

// GetByName returns a metric definition, consulting the repository on a cache miss.
func (s *Service) GetByName(ctx context.Context, metricName string) (*models.MetricDefinition, error) {
	s.mu.RLock()
	if def, ok := s.cache[metricName]; ok {
		s.mu.RUnlock()
		return &def, nil
	}
	s.mu.RUnlock()

	def, err := s.repo.Get(ctx, metricName)
	if err != nil {
		return nil, err
	}

	if def == nil {
		metrics.UnknownMetricTotal.WithLabelValues(metricName).Inc()
		return nil, nil
	}

	s.mu.Lock()
	s.cache[metricName] = *def
	s.mu.Unlock()

	return def, nil
}

// ListForDeviceKind returns every metric definition applicable to a device type.
func (s *Service) ListForDeviceKind(ctx context.Context, deviceType string) ([]models.MetricDefinition, error) {
	return s.repo.ListForDeviceType(ctx, deviceType)
}

// UpsertDefinition writes a definition and refreshes the local cache entry.
func (s *Service) UpsertDefinition(ctx context.Context, def *models.MetricDefinition) error {
	if err := s.repo.Upsert(ctx, def); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[def.MetricName] = *def
	s.mu.Unlock()

	return nil
}

// Bootstrap seeds the baseline fleet-wide metric catalog. It is idempotent:
// repositories implement Upsert as ON CONFLICT DO NOTHING for a bootstrap
// call, and the cache is then loaded from what the repository holds, so an
// operator's own customizations are never clobbered by a restart.
func (s *Service) Bootstrap(ctx context.Context) error {
	for i := range defaultMetrics {
		if err := s.repo.Upsert(ctx, &defaultMetrics[i]); err != nil {
			return err
		}
	}

	defs, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, def := range defs {
		s.cache[def.MetricName] = def
	}
	s.mu.Unlock()

	return nil
}

func floatPtr(v float64) *float64 { return &v }

// defaultMetrics is the baseline catalog every fleet deployment starts with.
var defaultMetrics = []models.MetricDefinition{
	{MetricName: "power_ac", Unit: "W", DataType: "float", DeviceTypes: []string{"inverter"}, AggregationMethod: models.AggAvg},
	{MetricName: "power_dc", Unit: "W", DataType: "float", DeviceTypes: []string{"inverter"}, AggregationMethod: models.AggAvg},
	{MetricName: "voltage_ac", Unit: "V", DataType: "float", DeviceTypes: []string{"inverter"}, AggregationMethod: models.AggAvg},
	{MetricName: "voltage_dc", Unit: "V", DataType: "float", DeviceTypes: []string{"inverter"}, AggregationMethod: models.AggAvg},
	{MetricName: "current_ac", Unit: "A", DataType: "float", DeviceTypes: []string{"inverter"}, AggregationMethod: models.AggAvg},
	{MetricName: "current_dc", Unit: "A", DataType: "float", DeviceTypes: []string{"inverter"}, AggregationMethod: models.AggAvg},
	{MetricName: "frequency", Unit: "Hz", DataType: "float", DeviceTypes: []string{"inverter"}, MinValue: floatPtr(45), MaxValue: floatPtr(65), AggregationMethod: models.AggAvg},
	{MetricName: "power_factor", Unit: "", DataType: "float", DeviceTypes: []string{"inverter"}, MinValue: floatPtr(-1), MaxValue: floatPtr(1), AggregationMethod: models.AggAvg},
	{MetricName: "energy_total", Unit: "kWh", DataType: "float", DeviceTypes: []string{"inverter"}, IsCumulative: true, AggregationMethod: models.AggLast},
	{MetricName: "energy_today", Unit: "kWh", DataType: "float", DeviceTypes: []string{"inverter"}, AggregationMethod: models.AggLast},
	{MetricName: "battery_soc", Unit: "%", DataType: "float", DeviceTypes: []string{"battery"}, MinValue: floatPtr(0), MaxValue: floatPtr(100), AggregationMethod: models.AggAvg},
	{MetricName: "battery_power", Unit: "W", DataType: "float", DeviceTypes: []string{"battery"}, AggregationMethod: models.AggAvg},
	{MetricName: "battery_voltage", Unit: "V", DataType: "float", DeviceTypes: []string{"battery"}, AggregationMethod: models.AggAvg},
	{MetricName: "battery_current", Unit: "A", DataType: "float", DeviceTypes: []string{"battery"}, AggregationMethod: models.AggAvg},
	{MetricName: "battery_temperature", Unit: "C", DataType: "float", DeviceTypes: []string{"battery"}, AggregationMethod: models.AggAvg},
	{MetricName: "grid_power", Unit: "W", DataType: "float", DeviceTypes: []string{"meter"}, AggregationMethod: models.AggAvg},
	{MetricName: "load_power", Unit: "W", DataType: "float", DeviceTypes: []string{"meter"}, AggregationMethod: models.AggAvg},
	{MetricName: "pv_power", Unit: "W", DataType: "float", DeviceTypes: []string{"inverter"}, AggregationMethod: models.AggAvg},
	{MetricName: "temperature", Unit: "C", DataType: "float", DeviceTypes: []string{"inverter", "battery"}, AggregationMethod: models.AggAvg},
	{MetricName: "irradiance", Unit: "W/m2", DataType: "float", DeviceTypes: []string{"weather"}, MinValue: floatPtr(0), AggregationMethod: models.AggAvg},
}
