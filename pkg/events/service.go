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
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/eventbus"
	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// Service is the event journal's business logic: persistence plus
// publishing severity >= error events onto the shared event bus.
type Service struct {
	repo   Repository
	events *eventbus.Publisher
	log    logger.Logger
}

func NewService(repo Repository, events *eventbus.Publisher, log logger.Logger) *Service {
	return &Service{repo: repo, events: events, log: log}
}

func (s *Service) Append(ctx context.Context, e models.DeviceEvent) error {
	return s.AppendBatch(ctx, []models.DeviceEvent{e})
}

func (s *Service) AppendBatch(ctx context.Context, evts []models.DeviceEvent) error {
	for i := range evts {
		if evts[i].Severity == "" {
			evts[i].Severity = models.SeverityInfo
		}
	}

	if err := s.repo.Append(ctx, evts); err != nil {
		return err
	}

	if s.events != nil {
		for _, e := range evts {
			if e.Severity == models.SeverityError || e.Severity == models.SeverityCritical {
				_ = s.events.Publish(ctx, "events.device."+e.DeviceID, "com.solarhub.telemetry.device.error", e)
			}
		}
	}

	return nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.DeviceEvent, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) RecentErrors(ctx context.Context, since time.Time, limit int) ([]models.DeviceEvent, error) {
	return s.repo.RecentErrors(ctx, since, limit)
}

func (s *Service) Acknowledge(ctx context.Context, deviceID string, t time.Time, eventType, ackBy string) (bool, error) {
	return s.repo.Acknowledge(ctx, deviceID, t, eventType, ackBy)
}

func (s *Service) AcknowledgeBulk(ctx context.Context, deviceID, ackBy string) (int, error) {
	return s.repo.AcknowledgeBulk(ctx, deviceID, ackBy)
}

func (s *Service) CountsBy(ctx context.Context, since time.Time) ([]models.EventCounts, error) {
	return s.repo.CountsBy(ctx, since)
}

func (s *Service) HourlyTimeline(ctx context.Context, since time.Time) (map[time.Time]int64, error) {
	return s.repo.HourlyTimeline(ctx, since)
}

func (s *Service) TopErrorDevices(ctx context.Context, since time.Time, limit int) (map[string]int64, error) {
	return s.repo.TopErrorDevices(ctx, since, limit)
}

// Cleanup removes journal rows older than retentionDays, optionally
// preserving unacknowledged rows regardless of age so nothing is silently
// lost before an operator has seen it.
func (s *Service) Cleanup(ctx context.Context, retentionDays int, keepUnacknowledged bool) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 90
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	return s.repo.DeleteOlderThan(ctx, cutoff, keepUnacknowledged)
}
