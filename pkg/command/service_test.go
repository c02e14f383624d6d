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
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepository struct {
	mu       sync.Mutex
	commands map[string]*models.DeviceCommand
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{commands: make(map[string]*models.DeviceCommand)}
}

func (f *fakeRepository) Create(_ context.Context, c *models.DeviceCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	if c.Status == "" {
		c.Status = models.CommandPending
	}

	if c.Priority == 0 {
		c.Priority = models.DefaultPriority()
	}

	if c.MaxRetries == 0 {
		c.MaxRetries = models.DefaultMaxRetries()
	}

	c.CreatedAt = time.Now()
	cp := *c
	f.commands[c.ID] = &cp

	return nil
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (*models.DeviceCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.commands[id]
	if !ok {
		return nil, nil
	}

	cp := *c

	return &cp, nil
}

func (f *fakeRepository) ClaimPending(_ context.Context, deviceID string) (*models.DeviceCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var best *models.DeviceCommand

	for _, c := range f.commands {
		if c.DeviceID != deviceID || c.Status != models.CommandPending {
			continue
		}

		if c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now()) {
			continue
		}

		if best == nil || c.Priority < best.Priority || (c.Priority == best.Priority && c.CreatedAt.Before(best.CreatedAt)) {
			best = c
		}
	}

	if best == nil {
		return nil, nil
	}

	best.Status = models.CommandClaimed
	cp := *best

	return &cp, nil
}

func (f *fakeRepository) MarkSent(_ context.Context, id string) error {
	return f.setStatus(id, models.CommandSent)
}

func (f *fakeRepository) MarkAcknowledged(_ context.Context, id string) error {
	return f.setStatus(id, models.CommandAcknowledged)
}

func (f *fakeRepository) MarkCompleted(_ context.Context, id string, result map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.commands[id]
	if !ok {
		return nil
	}

	c.Status = models.CommandCompleted
	c.Result = result

	return nil
}

func (f *fakeRepository) MarkFailed(_ context.Context, id, errorCode, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.commands[id]
	if !ok {
		return nil
	}

	c.Status = models.CommandFailed
	c.ErrorCode = errorCode
	c.ErrorMessage = errorMessage

	return nil
}

func (f *fakeRepository) setStatus(id string, status models.CommandStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.commands[id]; ok {
		c.Status = status
	}

	return nil
}

func (f *fakeRepository) Cancel(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.commands[id]
	if !ok || c.Status.IsTerminal() {
		return false, nil
	}

	c.Status = models.CommandCancelled

	return true, nil
}

func (f *fakeRepository) CancelAllForDevice(_ context.Context, deviceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0

	for _, c := range f.commands {
		if c.DeviceID == deviceID && !c.Status.IsTerminal() {
			c.Status = models.CommandCancelled
			count++
		}
	}

	return count, nil
}

func (f *fakeRepository) GetRetryable(context.Context) ([]models.DeviceCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.DeviceCommand

	for _, c := range f.commands {
		if c.Status == models.CommandFailed && c.RetryCount < c.MaxRetries {
			out = append(out, *c)
		}
	}

	return out, nil
}

func (f *fakeRepository) RequeueForRetry(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.commands[id]
	if !ok {
		return nil
	}

	c.Status = models.CommandPending
	c.RetryCount++

	return nil
}

func (f *fakeRepository) ExpireOverdue(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0

	for _, c := range f.commands {
		if !c.Status.IsTerminal() && c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now()) {
			c.Status = models.CommandExpired
			count++
		}
	}

	return count, nil
}

func (f *fakeRepository) DeleteOlderThan(context.Context, int) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) Stats(_ context.Context) (models.CommandStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var stats models.CommandStats

	for _, c := range f.commands {
		stats.TotalCommands++

		switch c.Status {
		case models.CommandPending:
			stats.PendingCommands++
		case models.CommandCompleted:
			stats.CompletedCommands++
		case models.CommandFailed:
			stats.FailedCommands++
		}
	}

	finished := stats.CompletedCommands + stats.FailedCommands
	if finished > 0 {
		stats.SuccessRate = 100.0 * float64(stats.CompletedCommands) / float64(finished)
	}

	return stats, nil
}

func TestClaimAndExecuteRunsRegisteredExecutor(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, logger.NewTest())

	svc.RegisterExecutor("reboot", func(_ context.Context, cmd *models.DeviceCommand) models.CommandResult {
		return models.CommandResult{CommandID: cmd.ID, DeviceID: cmd.DeviceID, Success: true}
	})

	c, err := svc.CreateCommand(context.Background(), "dev-1", "site-1", "reboot", nil, 0)
	require.NoError(t, err)

	result, err := svc.ClaimAndExecute(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)

	stored, err := svc.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandCompleted, stored.Status)
}

func TestClaimAndExecuteReturnsNilWhenQueueEmpty(t *testing.T) {
	svc := NewService(newFakeRepository(), logger.NewTest())

	result, err := svc.ClaimAndExecute(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestExecuteCommandWithNoExecutorFails(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, logger.NewTest())

	c, err := svc.CreateCommand(context.Background(), "dev-1", "site-1", "unregistered_type", nil, 0)
	require.NoError(t, err)

	result, err := svc.ClaimAndExecute(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, string(models.ErrCodeNoExecutor), result.ErrorCode)

	stored, err := svc.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandFailed, stored.Status)
}

func TestExecuteCommandRecoversFromPanic(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, logger.NewTest())

	svc.RegisterExecutor("boom", func(context.Context, *models.DeviceCommand) models.CommandResult {
		panic("adapter exploded")
	})

	c, err := svc.CreateCommand(context.Background(), "dev-1", "site-1", "boom", nil, 0)
	require.NoError(t, err)

	result, err := svc.ClaimAndExecute(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, string(models.ErrCodeException), result.ErrorCode)

	stored, err := svc.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandFailed, stored.Status)
}

func TestImmediateCommandGetsTopPriority(t *testing.T) {
	svc := NewService(newFakeRepository(), logger.NewTest())

	c, err := svc.CreateImmediateCommand(context.Background(), "dev-1", "site-1", "reboot", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ImmediateCommandPriority(), c.Priority)
}

func TestRetryFailedCommandsRequeuesEligibleOnes(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, logger.NewTest())

	c, err := svc.CreateCommand(context.Background(), "dev-1", "site-1", "reboot", nil, 0)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(context.Background(), c.ID, "EXCEPTION", "boom"))

	n, err := svc.RetryFailedCommands(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := svc.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestCancelCommandOnTerminalStateIsNoop(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, logger.NewTest())

	c, err := svc.CreateCommand(context.Background(), "dev-1", "site-1", "reboot", nil, 0)
	require.NoError(t, err)
	require.NoError(t, repo.MarkCompleted(context.Background(), c.ID, nil))

	ok, err := svc.CancelCommand(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetCommandStatsComputesSuccessRate(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, logger.NewTest())

	for i := 0; i < 10; i++ {
		c, err := svc.CreateCommand(context.Background(), "dev-1", "site-1", "reboot", nil, 0)
		require.NoError(t, err)

		if i < 9 {
			require.NoError(t, repo.MarkCompleted(context.Background(), c.ID, nil))
		} else {
			require.NoError(t, repo.MarkFailed(context.Background(), c.ID, "EXCEPTION", "boom"))
		}
	}

	stats, err := svc.GetCommandStats(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 90.0, stats.SuccessRate, 0.01)
}
