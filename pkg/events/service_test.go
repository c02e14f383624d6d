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

package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepository struct {
	mu     sync.Mutex
	events []models.DeviceEvent
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{}
}

func (f *fakeRepository) Append(_ context.Context, evts []models.DeviceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, evts...)

	return nil
}

func (f *fakeRepository) List(_ context.Context, filter Filter) ([]models.DeviceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.DeviceEvent

	for _, e := range f.events {
		if filter.DeviceID != "" && e.DeviceID != filter.DeviceID {
			continue
		}

		out = append(out, e)
	}

	return out, nil
}

func (f *fakeRepository) RecentErrors(_ context.Context, since time.Time, limit int) ([]models.DeviceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.DeviceEvent

	for _, e := range f.events {
		if (e.Severity == models.SeverityError || e.Severity == models.SeverityCritical) && e.Time.After(since) {
			out = append(out, e)
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (f *fakeRepository) Acknowledge(_ context.Context, deviceID string, t time.Time, eventType, ackBy string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.events {
		e := &f.events[i]
		if e.DeviceID == deviceID && e.EventType == eventType && e.Time.Equal(t) {
			e.Acknowledged = true
			e.AcknowledgedBy = ackBy
			return true, nil
		}
	}

	return false, nil
}

func (f *fakeRepository) AcknowledgeBulk(_ context.Context, deviceID, ackBy string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0

	for i := range f.events {
		e := &f.events[i]
		if e.DeviceID == deviceID && !e.Acknowledged {
			e.Acknowledged = true
			e.AcknowledgedBy = ackBy
			count++
		}
	}

	return count, nil
}

func (f *fakeRepository) CountsBy(context.Context, time.Time) ([]models.EventCounts, error) {
	return nil, nil
}

func (f *fakeRepository) HourlyTimeline(context.Context, time.Time) (map[time.Time]int64, error) {
	return nil, nil
}

func (f *fakeRepository) TopErrorDevices(context.Context, time.Time, int) (map[string]int64, error) {
	return nil, nil
}

func (f *fakeRepository) DeleteOlderThan(_ context.Context, cutoff time.Time, keepUnacknowledged bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var kept []models.DeviceEvent

	var removed int64

	for _, e := range f.events {
		if e.Time.Before(cutoff) && (!keepUnacknowledged || e.Acknowledged) {
			removed++
			continue
		}

		kept = append(kept, e)
	}

	f.events = kept

	return removed, nil
}

func TestAppendDefaultsMissingSeverityToInfo(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())

	require.NoError(t, svc.Append(context.Background(), models.DeviceEvent{DeviceID: "dev-1", EventType: "boot"}))

	require.Len(t, repo.events, 1)
	assert.Equal(t, models.SeverityInfo, repo.events[0].Severity)
}

func TestAppendBatchWithNilPublisherIsNoop(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())

	err := svc.AppendBatch(context.Background(), []models.DeviceEvent{
		{DeviceID: "dev-1", EventType: "fault", Severity: models.SeverityCritical},
	})

	require.NoError(t, err)
	assert.Len(t, repo.events, 1)
}

func TestAcknowledgeBulkMarksOnlyUnacknowledged(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())

	require.NoError(t, svc.AppendBatch(context.Background(), []models.DeviceEvent{
		{DeviceID: "dev-1", EventType: "fault", Severity: models.SeverityError},
		{DeviceID: "dev-1", EventType: "boot", Severity: models.SeverityInfo, Acknowledged: true},
	}))

	n, err := svc.AcknowledgeBulk(context.Background(), "dev-1", "operator-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCleanupDefaultsRetentionWhenNonPositive(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())

	require.NoError(t, svc.AppendBatch(context.Background(), []models.DeviceEvent{
		{DeviceID: "dev-1", EventType: "boot", Time: time.Now().AddDate(0, 0, -200), Severity: models.SeverityInfo},
	}))

	removed, err := svc.Cleanup(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestCleanupPreservesUnacknowledgedWhenRequested(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())

	require.NoError(t, svc.AppendBatch(context.Background(), []models.DeviceEvent{
		{DeviceID: "dev-1", EventType: "fault", Time: time.Now().AddDate(0, 0, -200), Severity: models.SeverityError},
	}))

	removed, err := svc.Cleanup(context.Background(), 90, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
	assert.Len(t, repo.events, 1)
}
