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

// Package registry is the device registry and session authenticator: the
// authoritative record of every device in the fleet and the tracker for
// which of them currently hold a live adapter session.
package registry

import (
	"context"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// Repository is the persistence boundary for device_registry.
//
//go:generate mockgen -destination=mock_repository.go -package=registry github.com/kunwarf/solar-hub-sub002/pkg/registry Repository
type Repository interface {
	// Device CRUD.
	Create(ctx context.Context, d *models.Device) error
	GetByID(ctx context.Context, deviceID string) (*models.Device, error)
	GetBySerial(ctx context.Context, serial string) (*models.Device, error)
	ListBySite(ctx context.Context, siteID string) ([]models.Device, error)
	ListByOrganization(ctx context.Context, orgID string) ([]models.Device, error)
	Update(ctx context.Context, d *models.Device) error
	Delete(ctx context.Context, deviceID string) (bool, error)

	// Connection and polling state.
	ListConnected(ctx context.Context) ([]models.Device, error)
	ListDueForPolling(ctx context.Context) ([]models.Device, error)
	UpdateConnectionStatus(ctx context.Context, deviceID string, status models.ConnectionStatus) error
	UpdatePollTime(ctx context.Context, deviceID string) error
	ConnectionStats(ctx context.Context) (models.ConnectionStats, error)

	// Control-plane sync bookkeeping.
	MarkSynced(ctx context.Context, deviceIDs []string) (int, error)
	ListUnsynced(ctx context.Context) ([]models.Device, error)

	// Token management.
	SetAuthToken(ctx context.Context, deviceID, tokenHash string, expiresAt *time.Time) error
	ClearAuthToken(ctx context.Context, deviceID string) error
}
