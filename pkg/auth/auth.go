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

// Package auth is the device authentication service: token validation,
// challenge-response, HMAC request signing, and sliding-window lockout.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/metrics"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// DeviceAuthenticator is the subset of registry.Service auth needs.
type DeviceAuthenticator interface {
	GetByID(ctx context.Context, deviceID string) (*models.Device, error)
	GetBySerial(ctx context.Context, serial string) (*models.Device, error)
	GenerateToken(ctx context.Context, deviceID string, expiresInDays int) (string, error)
	ValidateToken(ctx context.Context, deviceID, token string) (bool, error)
	RevokeToken(ctx context.Context, deviceID string) error
	AuthenticateBySerial(ctx context.Context, serial, token string) (*models.Device, bool, error)
}

// Policy is the set of tunables governing lockout and signing behavior.
type Policy struct {
	MaxFailedAttempts int
	LockoutWindow     time.Duration
	SigningSkew       time.Duration
	TokenExpiryDays   int
}

func DefaultPolicy() Policy {
	return Policy{
		MaxFailedAttempts: 5,
		LockoutWindow:     30 * time.Minute,
		SigningSkew:       5 * time.Minute,
		TokenExpiryDays:   365,
	}
}

// Service is the authentication and authorization layer in front of the
// device registry.
type Service struct {
	devices DeviceAuthenticator
	lockout LockoutStore
	policy  Policy
	log     logger.Logger

	mu         sync.RWMutex
	challenges map[string]challengeRecord
	apiKeys    map[string]models.APIKey // keyID -> key
}

type challengeRecord struct {
	nonce     string
	deviceID  string
	expiresAt time.Time
}

func NewService(devices DeviceAuthenticator, lockout LockoutStore, policy Policy, log logger.Logger) *Service {
	return &Service{
		devices:    devices,
		lockout:    lockout,
		policy:     policy,
		log:        log,
		challenges: make(map[string]challengeRecord),
		apiKeys:    make(map[string]models.APIKey),
	}
}

// AuthenticateBySerial authenticates a device by serial number and opaque
// token, enforcing the sliding-window lockout before touching the token.
func (s *Service) AuthenticateBySerial(ctx context.Context, serial, token string) models.AuthResult {
	count, _, err := s.lockout.Status(ctx, serial, s.policy.LockoutWindow)
	if err == nil && count >= s.policy.MaxFailedAttempts {
		metrics.AuthLockoutsTotal.Inc()
		return models.AuthResult{Success: false, ErrorCode: models.ErrCodeLockedOut}
	}

	device, ok, err := s.devices.AuthenticateBySerial(ctx, serial, token)

	metrics.AuthAttemptsTotal.WithLabelValues(boolLabel(ok && err == nil)).Inc()

	if err != nil {
		return models.AuthResult{Success: false, ErrorCode: models.ErrCodeInvalidCredentials}
	}

	if !ok {
		_, _ = s.lockout.RecordFailure(ctx, serial, s.policy.LockoutWindow)
		return models.AuthResult{Success: false, ErrorCode: models.ErrCodeInvalidCredentials}
	}

	_ = s.lockout.Reset(ctx, serial)

	return models.AuthResult{Success: true, Device: device}
}

// AuthenticateByToken validates a bearer token against a known device id.
func (s *Service) AuthenticateByToken(ctx context.Context, deviceID, token string) models.AuthResult {
	count, _, err := s.lockout.Status(ctx, deviceID, s.policy.LockoutWindow)
	if err == nil && count >= s.policy.MaxFailedAttempts {
		metrics.AuthLockoutsTotal.Inc()
		return models.AuthResult{Success: false, ErrorCode: models.ErrCodeLockedOut}
	}

	ok, err := s.devices.ValidateToken(ctx, deviceID, token)

	metrics.AuthAttemptsTotal.WithLabelValues(boolLabel(ok && err == nil)).Inc()

	if err != nil || !ok {
		_, _ = s.lockout.RecordFailure(ctx, deviceID, s.policy.LockoutWindow)
		return models.AuthResult{Success: false, ErrorCode: models.ErrCodeInvalidToken}
	}

	_ = s.lockout.Reset(ctx, deviceID)

	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return models.AuthResult{Success: false, ErrorCode: models.ErrCodeInvalidToken}
	}

	return models.AuthResult{Success: true, Device: device}
}

func (s *Service) IssueToken(ctx context.Context, deviceID string) (string, error) {
	return s.devices.GenerateToken(ctx, deviceID, s.policy.TokenExpiryDays)
}

func (s *Service) RevokeToken(ctx context.Context, deviceID string) error {
	return s.devices.RevokeToken(ctx, deviceID)
}

// GenerateChallenge issues a one-time 256-bit hex nonce bound to deviceID,
// valid for two minutes.
func (s *Service) GenerateChallenge(deviceID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: failed to generate challenge: %w", err)
	}

	nonce := hex.EncodeToString(buf)

	s.mu.Lock()
	s.challenges[nonce] = challengeRecord{nonce: nonce, deviceID: deviceID, expiresAt: time.Now().Add(2 * time.Minute)}
	s.mu.Unlock()

	return nonce, nil
}

// ValidateChallengeResponse checks that response is HMAC-SHA-256(secret,
// nonce) for a still-live, device-matching challenge. The challenge is
// consumed on first use whether or not it validates.
func (s *Service) ValidateChallengeResponse(deviceID, nonce, response, secret string) bool {
	s.mu.Lock()
	rec, ok := s.challenges[nonce]
	delete(s.challenges, nonce)
	s.mu.Unlock()

	if !ok || rec.deviceID != deviceID || time.Now().After(rec.expiresAt) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(response)) == 1
}

// GenerateAPIKey mints a device-scoped HMAC signing credential.
func (s *Service) GenerateAPIKey(deviceID string) (models.APIKey, error) {
	idBuf := make([]byte, 8)
	secretBuf := make([]byte, 32)

	if _, err := rand.Read(idBuf); err != nil {
		return models.APIKey{}, fmt.Errorf("auth: failed to generate key id: %w", err)
	}

	if _, err := rand.Read(secretBuf); err != nil {
		return models.APIKey{}, fmt.Errorf("auth: failed to generate key secret: %w", err)
	}

	key := models.APIKey{
		KeyID:     hex.EncodeToString(idBuf),
		KeySecret: hex.EncodeToString(secretBuf),
		DeviceID:  deviceID,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.apiKeys[key.KeyID] = key
	s.mu.Unlock()

	return key, nil
}

// ValidateAPIKeySignature verifies an HMAC-SHA-256 request signature over
// "<timestamp>:<body>" keyed on keyID's secret, rejecting requests whose
// timestamp falls outside the configured skew window (replay protection).
func (s *Service) ValidateAPIKeySignature(keyID, timestamp, body, signature string) bool {
	s.mu.RLock()
	key, ok := s.apiKeys[keyID]
	s.mu.RUnlock()

	if !ok {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	skew := time.Since(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}

	if skew > s.policy.SigningSkew {
		return false
	}

	mac := hmac.New(sha256.New, []byte(key.KeySecret))
	mac.Write([]byte(timestamp + ":" + body))
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func (s *Service) GetLockoutStatus(ctx context.Context, key string) (models.LockoutStatus, error) {
	count, unlocksAt, err := s.lockout.Status(ctx, key, s.policy.LockoutWindow)
	if err != nil {
		return models.LockoutStatus{}, err
	}

	status := models.LockoutStatus{
		FailedAttempts:    count,
		RemainingAttempts: s.policy.MaxFailedAttempts - count,
		IsLocked:          count >= s.policy.MaxFailedAttempts,
	}

	if status.RemainingAttempts < 0 {
		status.RemainingAttempts = 0
	}

	if status.IsLocked {
		status.UnlocksAt = &unlocksAt
	}

	return status, nil
}

func (s *Service) GetTokenStatus(ctx context.Context, deviceID string) (models.TokenStatus, error) {
	d, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return models.TokenStatus{}, err
	}

	if d == nil {
		return models.TokenStatus{DeviceFound: false}, nil
	}

	status := models.TokenStatus{DeviceFound: true, HasToken: d.AuthTokenHash != ""}
	if d.TokenExpiresAt != nil && time.Now().After(*d.TokenExpiresAt) {
		status.IsExpired = true
	}

	return status, nil
}

func (s *Service) CleanupExpiredLockouts(ctx context.Context) (int, error) {
	return s.lockout.Cleanup(ctx, s.policy.LockoutWindow)
}

func boolLabel(b bool) string {
	if b {
		return "success"
	}

	return "failure"
}
