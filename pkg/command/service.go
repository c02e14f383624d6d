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

package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/metrics"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// Executor performs the side effect a claimed command represents (typically
// forwarding to an adapter.Adapter.HandleCommand) and reports the outcome.
type Executor func(ctx context.Context, cmd *models.DeviceCommand) models.CommandResult

// Service is the command dispatcher's business logic.
type Service struct {
	repo Repository
	log  logger.Logger

	mu        sync.RWMutex
	executors map[string]Executor
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{repo: repo, log: log, executors: make(map[string]Executor)}
}

// RegisterExecutor associates commandType with the function that carries it out.
func (s *Service) RegisterExecutor(commandType string, exec Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executors[commandType] = exec
}

func (s *Service) CreateCommand(ctx context.Context, deviceID, siteID, commandType string, params map[string]interface{}, expiresInMinutes int) (*models.DeviceCommand, error) {
	return s.createCommand(ctx, deviceID, siteID, commandType, params, expiresInMinutes, 0)
}

// CreateImmediateCommand creates a priority-1 command intended for
// near-instant dispatch. Waiting for completion is left to the caller: this
// layer only sets priority, it does not itself block on completion.
func (s *Service) CreateImmediateCommand(ctx context.Context, deviceID, siteID, commandType string, params map[string]interface{}) (*models.DeviceCommand, error) {
	return s.createCommand(ctx, deviceID, siteID, commandType, params, 0, models.ImmediateCommandPriority())
}

func (s *Service) createCommand(ctx context.Context, deviceID, siteID, commandType string, params map[string]interface{}, expiresInMinutes, priority int) (*models.DeviceCommand, error) {
	c := &models.DeviceCommand{
		DeviceID:      deviceID,
		SiteID:        siteID,
		CommandType:   commandType,
		CommandParams: params,
		Priority:      priority,
	}

	if expiresInMinutes > 0 {
		expires := time.Now().Add(time.Duration(expiresInMinutes) * time.Minute)
		c.ExpiresAt = &expires
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, c.ID)
}

// ClaimAndExecute claims deviceID's next pending command, if any, and runs
// it through ExecuteCommand. It returns (nil, nil) when the queue is empty.
func (s *Service) ClaimAndExecute(ctx context.Context, deviceID string) (*models.CommandResult, error) {
	c, err := s.repo.ClaimPending(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if c == nil {
		return nil, nil
	}

	result := s.ExecuteCommand(ctx, c)

	return &result, nil
}

// ExecuteCommand runs the registered executor for cmd.CommandType. A
// missing executor or a panicking/erroring executor both resolve to a
// failed command rather than propagating a Go error, since "this command
// type cannot run right now" is the caller's expected branch, not ours.
func (s *Service) ExecuteCommand(ctx context.Context, cmd *models.DeviceCommand) (result models.CommandResult) {
	s.mu.RLock()
	exec, ok := s.executors[cmd.CommandType]
	s.mu.RUnlock()

	if !ok {
		result = models.CommandResult{CommandID: cmd.ID, DeviceID: cmd.DeviceID, Success: false, ErrorCode: string(models.ErrCodeNoExecutor)}
		_ = s.repo.MarkFailed(ctx, cmd.ID, result.ErrorCode, "no executor registered for command type")
		metrics.CommandsDispatchedTotal.WithLabelValues("failed").Inc()

		return result
	}

	defer func() {
		if r := recover(); r != nil {
			result = models.CommandResult{CommandID: cmd.ID, DeviceID: cmd.DeviceID, Success: false,
				ErrorCode: string(models.ErrCodeException), ErrorMessage: fmt.Sprintf("%v", r)}
			_ = s.repo.MarkFailed(ctx, cmd.ID, result.ErrorCode, result.ErrorMessage)
			metrics.CommandsDispatchedTotal.WithLabelValues("failed").Inc()
		}
	}()

	result = exec(ctx, cmd)

	if result.Success {
		_ = s.repo.MarkCompleted(ctx, cmd.ID, result.Data)
		metrics.CommandsDispatchedTotal.WithLabelValues("completed").Inc()
	} else {
		_ = s.repo.MarkFailed(ctx, cmd.ID, result.ErrorCode, result.ErrorMessage)
		metrics.CommandsDispatchedTotal.WithLabelValues("failed").Inc()
	}

	return result
}

// ReportResult is the device-initiated completion path: a device (or its
// adapter) calls this directly instead of going through an executor.
func (s *Service) ReportResult(ctx context.Context, commandID string, success bool, data map[string]interface{}, errorMessage string) error {
	if success {
		return s.repo.MarkCompleted(ctx, commandID, data)
	}

	return s.repo.MarkFailed(ctx, commandID, "", errorMessage)
}

func (s *Service) CancelCommand(ctx context.Context, id string) (bool, error) {
	return s.repo.Cancel(ctx, id)
}

func (s *Service) CancelDeviceCommands(ctx context.Context, deviceID string) (int, error) {
	return s.repo.CancelAllForDevice(ctx, deviceID)
}

func (s *Service) RetryCommand(ctx context.Context, id string) error {
	return s.repo.RequeueForRetry(ctx, id)
}

// RetryFailedCommands requeues every retryable command and returns how many
// were requeued.
func (s *Service) RetryFailedCommands(ctx context.Context) (int, error) {
	retryable, err := s.repo.GetRetryable(ctx)
	if err != nil {
		return 0, err
	}

	count := 0

	for _, c := range retryable {
		if err := s.repo.RequeueForRetry(ctx, c.ID); err != nil {
			return count, err
		}

		count++
	}

	return count, nil
}

func (s *Service) ExpireCommands(ctx context.Context) (int, error) {
	n, err := s.repo.ExpireOverdue(ctx)
	if err == nil && n > 0 {
		metrics.CommandsDispatchedTotal.WithLabelValues("expired").Add(float64(n))
	}

	return n, err
}

func (s *Service) CleanupOldCommands(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = 30
	}

	return s.repo.DeleteOlderThan(ctx, days)
}

func (s *Service) GetCommandStats(ctx context.Context) (models.CommandStats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.DeviceCommand, error) {
	return s.repo.GetByID(ctx, id)
}
