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
	"testing"

	"github.com/kunwarf/solar-hub-sub002/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepository struct {
	defs       map[string]models.MetricDefinition
	getCalls   int
	upsertCalls int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{defs: make(map[string]models.MetricDefinition)}
}

func (f *fakeRepository) Get(_ context.Context, metricName string) (*models.MetricDefinition, error) {
	f.getCalls++

	def, ok := f.defs[metricName]
	if !ok {
		return nil, nil
	}

	return &def, nil
}

func (f *fakeRepository) ListForDeviceType(_ context.Context, deviceType string) ([]models.MetricDefinition, error) {
	var out []models.MetricDefinition

	for _, def := range f.defs {
		for _, dt := range def.DeviceTypes {
			if dt == deviceType {
				out = append(out, def)
				break
			}
		}
	}

	return out, nil
}

func (f *fakeRepository) Upsert(_ context.Context, def *models.MetricDefinition) error {
	f.upsertCalls++

	if _, exists := f.defs[def.MetricName]; exists {
		return nil
	}

	f.defs[def.MetricName] = *def

	return nil
}

func (f *fakeRepository) List(_ context.Context) ([]models.MetricDefinition, error) {
	var out []models.MetricDefinition
	for _, def := range f.defs {
		out = append(out, def)
	}

	return out, nil
}

func TestGetByNameCachesAfterFirstLookup(t *testing.T) {
	repo := newFakeRepository()
	repo.defs["power_ac"] = models.MetricDefinition{MetricName: "power_ac", Unit: "W"}

	svc := NewService(repo)
	ctx := context.Background()

	def, err := svc.GetByName(ctx, "power_ac")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "W", def.Unit)
	assert.Equal(t, 1, repo.getCalls)

	_, err = svc.GetByName(ctx, "power_ac")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.getCalls, "second lookup should be served from cache")
}

func TestGetByNameUnknownMetricReturnsNilNotError(t *testing.T) {
	svc := NewService(newFakeRepository())

	def, err := svc.GetByName(context.Background(), "does_not_exist")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Bootstrap(ctx))
	firstCount := len(repo.defs)
	require.NoError(t, svc.Bootstrap(ctx))

	assert.Equal(t, firstCount, len(repo.defs), "re-running bootstrap must not change the definition count")
	assert.Equal(t, len(defaultMetrics), firstCount)
}

func TestUpsertDefinitionRefreshesCache(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	def := &models.MetricDefinition{MetricName: "custom_metric", Unit: "kW"}
	require.NoError(t, svc.UpsertDefinition(ctx, def))

	got, err := svc.GetByName(ctx, "custom_metric")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "kW", got.Unit)
	assert.Equal(t, 0, repo.getCalls, "cache should have been warmed by the upsert, not a repo read")
}
