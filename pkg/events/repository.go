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

// Package events is the append-only device event journal.
package events

import (
	"context"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// Filter narrows a journal listing.
type Filter struct {
	DeviceID      string
	EventType     string
	Severity      models.Severity
	Since         time.Time
	Until         time.Time
	Unacknowledged bool
	Limit         int
}

// Repository is the persistence boundary for device_events.
//
//go:generate mockgen -destination=mock_repository.go -package=events github.com/kunwarf/solar-hub-sub002/pkg/events Repository
type Repository interface {
	Append(ctx context.Context, events []models.DeviceEvent) error
	List(ctx context.Context, f Filter) ([]models.DeviceEvent, error)
	RecentErrors(ctx context.Context, since time.Time, limit int) ([]models.DeviceEvent, error)
	Acknowledge(ctx context.Context, deviceID string, t time.Time, eventType, ackBy string) (bool, error)
	AcknowledgeBulk(ctx context.Context, deviceID string, ackBy string) (int, error)
	CountsBy(ctx context.Context, since time.Time) ([]models.EventCounts, error)
	HourlyTimeline(ctx context.Context, since time.Time) (map[time.Time]int64, error)
	TopErrorDevices(ctx context.Context, since time.Time, limit int) (map[string]int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, keepUnacknowledged bool) (int64, error)
}
