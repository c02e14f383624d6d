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
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kunwarf/solar-hub-sub002/pkg/eventbus"
	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

const defaultTokenExpiryDays = 365

// Service is the device registry's business logic: CRUD over Repository
// plus the in-memory session lifecycle, layered with lifecycle event
// publication.
type Service struct {
	repo     Repository
	sessions *SessionTracker
	events   *eventbus.Publisher
	log      logger.Logger
}

func NewService(repo Repository, events *eventbus.Publisher, log logger.Logger) *Service {
	return &Service{repo: repo, sessions: NewSessionTracker(), events: events, log: log}
}

// Create registers a new device.
func (s *Service) Create(ctx context.Context, deviceID, siteID, orgID, deviceType, serial string) (*models.Device, error) {
	d := &models.Device{
		DeviceID:         deviceID,
		SiteID:           siteID,
		OrganizationID:   orgID,
		DeviceType:       deviceType,
		SerialNumber:     serial,
		ConnectionStatus: models.ConnectionUnknown,
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, deviceID)
}

func (s *Service) GetByID(ctx context.Context, deviceID string) (*models.Device, error) {
	return s.repo.GetByID(ctx, deviceID)
}

func (s *Service) GetBySerial(ctx context.Context, serial string) (*models.Device, error) {
	return s.repo.GetBySerial(ctx, serial)
}

func (s *Service) ListBySite(ctx context.Context, siteID string) ([]models.Device, error) {
	return s.repo.ListBySite(ctx, siteID)
}

func (s *Service) ListByOrganization(ctx context.Context, orgID string) ([]models.Device, error) {
	return s.repo.ListByOrganization(ctx, orgID)
}

// Update applies a partial set of field changes to an existing device.
// It returns (nil, nil) if the device does not exist, matching the
// original "not found is not an error" contract.
func (s *Service) Update(ctx context.Context, deviceID string, apply func(*models.Device)) (*models.Device, error) {
	d, err := s.repo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if d == nil {
		return nil, nil
	}

	apply(d)

	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}

	return d, nil
}

func (s *Service) Delete(ctx context.Context, deviceID string) (bool, error) {
	return s.repo.Delete(ctx, deviceID)
}

// SyncDeviceFromControlPlane upserts a device record driven by a Tier A
// sync payload, matching serial numbers loosely typed as strings.
func (s *Service) SyncDeviceFromControlPlane(ctx context.Context, record map[string]interface{}) error {
	deviceID, _ := record["device_id"].(string)
	if deviceID == "" {
		return fmt.Errorf("registry: sync record missing device_id")
	}

	existing, err := s.repo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}

	d := existing
	if d == nil {
		d = &models.Device{DeviceID: deviceID, ConnectionStatus: models.ConnectionUnknown}
	}

	if v, ok := record["site_id"].(string); ok {
		d.SiteID = v
	}

	if v, ok := record["organization_id"].(string); ok {
		d.OrganizationID = v
	}

	if v, ok := record["device_type"].(string); ok {
		d.DeviceType = v
	}

	if v, ok := record["serial_number"].(string); ok {
		d.SerialNumber = v
	}

	if existing == nil {
		err = s.repo.Create(ctx, d)
	} else {
		err = s.repo.Update(ctx, d)
	}

	if err != nil {
		return err
	}

	s.publish(ctx, "device.synced", deviceID)

	return nil
}

func (s *Service) MarkDevicesSynced(ctx context.Context, deviceIDs []string) (int, error) {
	return s.repo.MarkSynced(ctx, deviceIDs)
}

func (s *Service) ListUnsynced(ctx context.Context) ([]models.Device, error) {
	return s.repo.ListUnsynced(ctx)
}

// HandleConnect opens a session for a known device; it is a no-op returning
// nil for an unrecognized device id, since a spoofed session should never
// be able to create registry state.
func (s *Service) HandleConnect(ctx context.Context, deviceID, sessionID, clientAddress string) (*models.DeviceSession, error) {
	d, err := s.repo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if d == nil {
		return nil, nil
	}

	session := s.sessions.Open(deviceID, sessionID, clientAddress)

	if err := s.repo.UpdateConnectionStatus(ctx, deviceID, models.ConnectionConnected); err != nil {
		return nil, err
	}

	s.publish(ctx, "device.connected", deviceID)

	return session, nil
}

func (s *Service) HandleDisconnect(ctx context.Context, deviceID, reason string) error {
	s.sessions.Close(deviceID)

	if err := s.repo.UpdateConnectionStatus(ctx, deviceID, models.ConnectionDisconnected); err != nil {
		return err
	}

	s.publish(ctx, "device.disconnected", deviceID)

	return nil
}

func (s *Service) HandleError(ctx context.Context, deviceID, errorCode, errorMessage string) error {
	if err := s.repo.UpdateConnectionStatus(ctx, deviceID, models.ConnectionError); err != nil {
		return err
	}

	s.publish(ctx, "device.error", deviceID)

	return nil
}

// SetMaintenanceMode moves a device into or out of maintenance, used by
// operators ahead of scheduled device downtime so the sweep loop does not
// treat a deliberately offline device as a connectivity fault.
func (s *Service) SetMaintenanceMode(ctx context.Context, deviceID string, enabled bool) error {
	status := models.ConnectionDisconnected
	if enabled {
		status = models.ConnectionMaintenance
	}

	if err := s.repo.UpdateConnectionStatus(ctx, deviceID, status); err != nil {
		return err
	}

	s.publish(ctx, "device.maintenance_mode_changed", deviceID)

	return nil
}

func (s *Service) GetActiveSession(deviceID string) *models.DeviceSession {
	return s.sessions.Get(deviceID)
}

func (s *Service) ListConnected(ctx context.Context) ([]models.Device, error) {
	return s.repo.ListConnected(ctx)
}

// CleanupStaleSessions evicts in-memory sessions idle past timeout and
// marks the underlying devices disconnected.
func (s *Service) CleanupStaleSessions(ctx context.Context, timeout time.Duration) int {
	stale := s.sessions.ListConnected()
	removed := s.sessions.CleanupStale(timeout)

	stillConnected := make(map[string]bool, len(s.sessions.ListConnected()))
	for _, id := range s.sessions.ListConnected() {
		stillConnected[id] = true
	}

	for _, id := range stale {
		if !stillConnected[id] {
			_ = s.repo.UpdateConnectionStatus(ctx, id, models.ConnectionDisconnected)
		}
	}

	return removed
}

func (s *Service) GetDevicesForPolling(ctx context.Context) ([]models.Device, error) {
	return s.repo.ListDueForPolling(ctx)
}

func (s *Service) MarkDevicePolled(ctx context.Context, deviceID string) error {
	return s.repo.UpdatePollTime(ctx, deviceID)
}

func (s *Service) ConnectionStats(ctx context.Context) (models.ConnectionStats, error) {
	return s.repo.ConnectionStats(ctx)
}

// GenerateToken issues a new opaque token for deviceID, storing only its
// hash. The plaintext token is returned exactly once to the caller.
func (s *Service) GenerateToken(ctx context.Context, deviceID string, expiresInDays int) (string, error) {
	if expiresInDays <= 0 {
		expiresInDays = defaultTokenExpiryDays
	}

	token := uuid.New().String() + uuid.New().String()
	hash := hashToken(token)
	expiresAt := time.Now().AddDate(0, 0, expiresInDays)

	if err := s.repo.SetAuthToken(ctx, deviceID, hash, &expiresAt); err != nil {
		return "", err
	}

	return token, nil
}

// ValidateToken reports whether token matches deviceID's stored token hash
// and has not expired.
func (s *Service) ValidateToken(ctx context.Context, deviceID, token string) (bool, error) {
	d, err := s.repo.GetByID(ctx, deviceID)
	if err != nil || d == nil {
		return false, err
	}

	if d.AuthTokenHash == "" {
		return false, nil
	}

	if d.TokenExpiresAt != nil && time.Now().After(*d.TokenExpiresAt) {
		return false, nil
	}

	expected := hashToken(token)

	return subtle.ConstantTimeCompare([]byte(expected), []byte(d.AuthTokenHash)) == 1, nil
}

func (s *Service) RevokeToken(ctx context.Context, deviceID string) error {
	return s.repo.ClearAuthToken(ctx, deviceID)
}

// AuthenticateBySerial validates token against the device identified by
// serial, returning the device on success.
func (s *Service) AuthenticateBySerial(ctx context.Context, serial, token string) (*models.Device, bool, error) {
	d, err := s.repo.GetBySerial(ctx, serial)
	if err != nil || d == nil {
		return nil, false, err
	}

	ok, err := s.ValidateToken(ctx, d.DeviceID, token)
	if err != nil || !ok {
		return nil, false, err
	}

	return d, true, nil
}

func (s *Service) publish(ctx context.Context, eventType, deviceID string) {
	if s.events == nil {
		return
	}

	_ = s.events.Publish(ctx, "events.device."+deviceID, "com.solarhub.telemetry."+eventType,
		map[string]string{"device_id": deviceID})
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
