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

package registry

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
	mu      sync.Mutex
	devices map[string]*models.Device
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{devices: make(map[string]*models.Device)}
}

func (f *fakeRepository) Create(_ context.Context, d *models.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *d
	f.devices[d.DeviceID] = &cp

	return nil
}

func (f *fakeRepository) GetByID(_ context.Context, deviceID string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[deviceID]
	if !ok {
		return nil, nil
	}

	cp := *d

	return &cp, nil
}

func (f *fakeRepository) GetBySerial(_ context.Context, serial string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range f.devices {
		if d.SerialNumber == serial {
			cp := *d
			return &cp, nil
		}
	}

	return nil, nil
}

func (f *fakeRepository) ListBySite(_ context.Context, siteID string) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Device

	for _, d := range f.devices {
		if d.SiteID == siteID {
			out = append(out, *d)
		}
	}

	return out, nil
}

func (f *fakeRepository) ListByOrganization(_ context.Context, orgID string) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Device

	for _, d := range f.devices {
		if d.OrganizationID == orgID {
			out = append(out, *d)
		}
	}

	return out, nil
}

func (f *fakeRepository) Update(_ context.Context, d *models.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *d
	f.devices[d.DeviceID] = &cp

	return nil
}

func (f *fakeRepository) Delete(_ context.Context, deviceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.devices[deviceID]; !ok {
		return false, nil
	}

	delete(f.devices, deviceID)

	return true, nil
}

func (f *fakeRepository) ListConnected(_ context.Context) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Device

	for _, d := range f.devices {
		if d.ConnectionStatus == models.ConnectionConnected {
			out = append(out, *d)
		}
	}

	return out, nil
}

func (f *fakeRepository) ListDueForPolling(context.Context) ([]models.Device, error) {
	return nil, nil
}

func (f *fakeRepository) UpdateConnectionStatus(_ context.Context, deviceID string, status models.ConnectionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d, ok := f.devices[deviceID]; ok {
		d.ConnectionStatus = status
	}

	return nil
}

func (f *fakeRepository) UpdatePollTime(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d, ok := f.devices[deviceID]; ok {
		now := time.Now()
		d.LastPolledAt = &now
	}

	return nil
}

func (f *fakeRepository) ConnectionStats(_ context.Context) (models.ConnectionStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := models.ConnectionStats{ByStatus: make(map[models.ConnectionStatus]int64)}
	for _, d := range f.devices {
		stats.ByStatus[d.ConnectionStatus]++
	}

	return stats, nil
}

func (f *fakeRepository) MarkSynced(_ context.Context, deviceIDs []string) (int, error) {
	return len(deviceIDs), nil
}

func (f *fakeRepository) ListUnsynced(context.Context) ([]models.Device, error) {
	return nil, nil
}

func (f *fakeRepository) SetAuthToken(_ context.Context, deviceID, tokenHash string, expiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d, ok := f.devices[deviceID]; ok {
		d.AuthTokenHash = tokenHash
		d.TokenExpiresAt = expiresAt
	}

	return nil
}

func (f *fakeRepository) ClearAuthToken(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d, ok := f.devices[deviceID]; ok {
		d.AuthTokenHash = ""
		d.TokenExpiresAt = nil
	}

	return nil
}

func TestSyncDeviceFromControlPlaneCreatesUnknownDevice(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())

	err := svc.SyncDeviceFromControlPlane(context.Background(), map[string]interface{}{
		"device_id": "dev-1", "site_id": "site-1", "device_type": "inverter", "serial_number": "SN-1",
	})
	require.NoError(t, err)

	d, err := svc.GetByID(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "site-1", d.SiteID)
	assert.Equal(t, "SN-1", d.SerialNumber)
	assert.Equal(t, models.ConnectionUnknown, d.ConnectionStatus)
}

func TestSyncDeviceFromControlPlaneUpdatesExistingDevice(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())

	require.NoError(t, repo.Create(context.Background(), &models.Device{DeviceID: "dev-1", SiteID: "old-site"}))

	err := svc.SyncDeviceFromControlPlane(context.Background(), map[string]interface{}{
		"device_id": "dev-1", "site_id": "new-site",
	})
	require.NoError(t, err)

	d, err := svc.GetByID(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "new-site", d.SiteID)
}

func TestSyncDeviceFromControlPlaneRejectsMissingDeviceID(t *testing.T) {
	svc := NewService(newFakeRepository(), nil, logger.NewTest())

	err := svc.SyncDeviceFromControlPlane(context.Background(), map[string]interface{}{"site_id": "site-1"})
	assert.Error(t, err)
}

func TestHandleConnectRejectsUnknownDevice(t *testing.T) {
	svc := NewService(newFakeRepository(), nil, logger.NewTest())

	session, err := svc.HandleConnect(context.Background(), "ghost", "sess-1", "10.0.0.1")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestHandleConnectOpensSessionForKnownDevice(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())
	require.NoError(t, repo.Create(context.Background(), &models.Device{DeviceID: "dev-1"}))

	session, err := svc.HandleConnect(context.Background(), "dev-1", "sess-1", "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, session)

	d, err := svc.GetByID(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionConnected, d.ConnectionStatus)
	assert.NotNil(t, svc.GetActiveSession("dev-1"))
}

func TestHandleDisconnectClosesSessionAndMarksDevice(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())
	require.NoError(t, repo.Create(context.Background(), &models.Device{DeviceID: "dev-1"}))

	_, err := svc.HandleConnect(context.Background(), "dev-1", "sess-1", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, svc.HandleDisconnect(context.Background(), "dev-1", "client closed"))

	assert.Nil(t, svc.GetActiveSession("dev-1"))

	d, err := svc.GetByID(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionDisconnected, d.ConnectionStatus)
}

func TestCleanupStaleSessionsEvictsIdleSessions(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())
	require.NoError(t, repo.Create(context.Background(), &models.Device{DeviceID: "dev-1"}))

	_, err := svc.HandleConnect(context.Background(), "dev-1", "sess-1", "10.0.0.1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	removed := svc.CleanupStaleSessions(context.Background(), 10*time.Millisecond)
	assert.Equal(t, 1, removed)

	d, err := svc.GetByID(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionDisconnected, d.ConnectionStatus)
}

func TestGenerateAndValidateTokenRoundTrip(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())
	require.NoError(t, repo.Create(context.Background(), &models.Device{DeviceID: "dev-1"}))

	token, err := svc.GenerateToken(context.Background(), "dev-1", 30)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := svc.ValidateToken(context.Background(), "dev-1", token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.ValidateToken(context.Background(), "dev-1", "wrong-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())
	require.NoError(t, repo.Create(context.Background(), &models.Device{DeviceID: "dev-1"}))

	token, err := svc.GenerateToken(context.Background(), "dev-1", 30)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	d, err := repo.GetByID(context.Background(), "dev-1")
	require.NoError(t, err)
	d.TokenExpiresAt = &past
	require.NoError(t, repo.Update(context.Background(), d))

	ok, err := svc.ValidateToken(context.Background(), "dev-1", token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeTokenClearsHash(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())
	require.NoError(t, repo.Create(context.Background(), &models.Device{DeviceID: "dev-1"}))

	token, err := svc.GenerateToken(context.Background(), "dev-1", 30)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeToken(context.Background(), "dev-1"))

	ok, err := svc.ValidateToken(context.Background(), "dev-1", token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthenticateBySerialReturnsDeviceOnMatch(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())
	require.NoError(t, repo.Create(context.Background(), &models.Device{DeviceID: "dev-1", SerialNumber: "SN-1"}))

	token, err := svc.GenerateToken(context.Background(), "dev-1", 30)
	require.NoError(t, err)

	d, ok, err := svc.AuthenticateBySerial(context.Background(), "SN-1", token)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, d)
	assert.Equal(t, "dev-1", d.DeviceID)
}

func TestAuthenticateBySerialUnknownSerial(t *testing.T) {
	svc := NewService(newFakeRepository(), nil, logger.NewTest())

	d, ok, err := svc.AuthenticateBySerial(context.Background(), "unknown", "token")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, d)
}

func TestSetMaintenanceModeTogglesStatus(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, logger.NewTest())

	_, err := svc.Create(context.Background(), "dev-1", "site-1", "org-1", "inverter", "SN-1")
	require.NoError(t, err)

	require.NoError(t, svc.SetMaintenanceMode(context.Background(), "dev-1", true))

	d, err := svc.GetByID(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionMaintenance, d.ConnectionStatus)

	require.NoError(t, svc.SetMaintenanceMode(context.Background(), "dev-1", false))

	d, err = svc.GetByID(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionDisconnected, d.ConnectionStatus)
}
