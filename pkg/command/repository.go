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

// Package command is the command dispatcher: create, atomically claim,
// execute, acknowledge, retry, and expire device-bound commands.
package command

import (
	"context"

	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// Repository is the persistence boundary for device_commands.
//
//go:generate mockgen -destination=mock_repository.go -package=command github.com/kunwarf/solar-hub-sub002/pkg/command Repository
type Repository interface {
	Create(ctx context.Context, c *models.DeviceCommand) error
	GetByID(ctx context.Context, id string) (*models.DeviceCommand, error)
	// ClaimPending atomically claims the highest-priority, earliest-created
	// pending command for deviceID that is due and not expired, in a single
	// statement so concurrent claimers on the same device never double-claim.
	ClaimPending(ctx context.Context, deviceID string) (*models.DeviceCommand, error)
	MarkSent(ctx context.Context, id string) error
	MarkAcknowledged(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, result map[string]interface{}) error
	MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error
	Cancel(ctx context.Context, id string) (bool, error)
	CancelAllForDevice(ctx context.Context, deviceID string) (int, error)
	GetRetryable(ctx context.Context) ([]models.DeviceCommand, error)
	RequeueForRetry(ctx context.Context, id string) error
	ExpireOverdue(ctx context.Context) (int, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
	Stats(ctx context.Context) (models.CommandStats, error)
}
