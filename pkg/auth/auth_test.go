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

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevices struct {
	devices map[string]*models.Device
	tokens  map[string]string // deviceID -> valid token
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{devices: make(map[string]*models.Device), tokens: make(map[string]string)}
}

func (f *fakeDevices) GetByID(_ context.Context, deviceID string) (*models.Device, error) {
	return f.devices[deviceID], nil
}

func (f *fakeDevices) GetBySerial(_ context.Context, serial string) (*models.Device, error) {
	for _, d := range f.devices {
		if d.SerialNumber == serial {
			return d, nil
		}
	}

	return nil, nil
}

func (f *fakeDevices) GenerateToken(_ context.Context, deviceID string, _ int) (string, error) {
	token := "token-" + deviceID
	f.tokens[deviceID] = token

	return token, nil
}

func (f *fakeDevices) ValidateToken(_ context.Context, deviceID, token string) (bool, error) {
	return f.tokens[deviceID] != "" && f.tokens[deviceID] == token, nil
}

func (f *fakeDevices) RevokeToken(_ context.Context, deviceID string) error {
	delete(f.tokens, deviceID)
	return nil
}

func (f *fakeDevices) AuthenticateBySerial(_ context.Context, serial, token string) (*models.Device, bool, error) {
	d, err := f.GetBySerial(context.Background(), serial)
	if err != nil || d == nil {
		return nil, false, nil
	}

	return d, f.tokens[d.DeviceID] == token, nil
}

func testPolicy() Policy {
	return Policy{MaxFailedAttempts: 3, LockoutWindow: time.Minute, SigningSkew: 5 * time.Minute, TokenExpiryDays: 365}
}

func TestAuthenticateBySerialLocksOutAfterThreshold(t *testing.T) {
	devices := newFakeDevices()
	devices.devices["dev-1"] = &models.Device{DeviceID: "dev-1", SerialNumber: "SN-1"}
	devices.tokens["dev-1"] = "correct-token"

	svc := NewService(devices, NewMemoryLockoutStore(), testPolicy(), logger.NewTest())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := svc.AuthenticateBySerial(ctx, "SN-1", "wrong-token")
		assert.False(t, result.Success)
		assert.Equal(t, models.ErrCodeInvalidCredentials, result.ErrorCode)
	}

	result := svc.AuthenticateBySerial(ctx, "SN-1", "correct-token")
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrCodeLockedOut, result.ErrorCode)
}

func TestAuthenticateBySerialResetsLockoutOnSuccess(t *testing.T) {
	devices := newFakeDevices()
	devices.devices["dev-1"] = &models.Device{DeviceID: "dev-1", SerialNumber: "SN-1"}
	devices.tokens["dev-1"] = "correct-token"

	svc := NewService(devices, NewMemoryLockoutStore(), testPolicy(), logger.NewTest())
	ctx := context.Background()

	result := svc.AuthenticateBySerial(ctx, "SN-1", "wrong-token")
	require.False(t, result.Success)

	result = svc.AuthenticateBySerial(ctx, "SN-1", "correct-token")
	require.True(t, result.Success)
	require.NotNil(t, result.Device)
	assert.Equal(t, "dev-1", result.Device.DeviceID)

	status, err := svc.GetLockoutStatus(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.FailedAttempts)
	assert.False(t, status.IsLocked)
}

func TestAuthenticateByTokenRejectsWrongToken(t *testing.T) {
	devices := newFakeDevices()
	devices.devices["dev-1"] = &models.Device{DeviceID: "dev-1"}
	devices.tokens["dev-1"] = "good-token"

	svc := NewService(devices, NewMemoryLockoutStore(), testPolicy(), logger.NewTest())

	result := svc.AuthenticateByToken(context.Background(), "dev-1", "bad-token")
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrCodeInvalidToken, result.ErrorCode)
}

func TestChallengeResponseRoundTrip(t *testing.T) {
	svc := NewService(newFakeDevices(), NewMemoryLockoutStore(), testPolicy(), logger.NewTest())

	nonce, err := svc.GenerateChallenge("dev-1")
	require.NoError(t, err)

	secret := "device-shared-secret"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	response := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, svc.ValidateChallengeResponse("dev-1", nonce, response, secret))
}

func TestChallengeIsConsumedOnFirstUse(t *testing.T) {
	svc := NewService(newFakeDevices(), NewMemoryLockoutStore(), testPolicy(), logger.NewTest())

	nonce, err := svc.GenerateChallenge("dev-1")
	require.NoError(t, err)

	secret := "device-shared-secret"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	response := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, svc.ValidateChallengeResponse("dev-1", nonce, response, secret))
	assert.False(t, svc.ValidateChallengeResponse("dev-1", nonce, response, secret), "a consumed challenge must not validate twice")
}

func TestChallengeResponseRejectsWrongDevice(t *testing.T) {
	svc := NewService(newFakeDevices(), NewMemoryLockoutStore(), testPolicy(), logger.NewTest())

	nonce, err := svc.GenerateChallenge("dev-1")
	require.NoError(t, err)

	assert.False(t, svc.ValidateChallengeResponse("dev-2", nonce, "irrelevant", "secret"))
}

func TestAPIKeySignatureValidatesHMAC(t *testing.T) {
	svc := NewService(newFakeDevices(), NewMemoryLockoutStore(), testPolicy(), logger.NewTest())

	key, err := svc.GenerateAPIKey("dev-1")
	require.NoError(t, err)

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	body := `{"metric":"power_ac","value":100}`

	mac := hmac.New(sha256.New, []byte(key.KeySecret))
	mac.Write([]byte(timestamp + ":" + body))
	signature := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, svc.ValidateAPIKeySignature(key.KeyID, timestamp, body, signature))
}

func TestAPIKeySignatureRejectsSkewedTimestamp(t *testing.T) {
	svc := NewService(newFakeDevices(), NewMemoryLockoutStore(), testPolicy(), logger.NewTest())

	key, err := svc.GenerateAPIKey("dev-1")
	require.NoError(t, err)

	stale := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	body := "payload"

	mac := hmac.New(sha256.New, []byte(key.KeySecret))
	mac.Write([]byte(stale + ":" + body))
	signature := hex.EncodeToString(mac.Sum(nil))

	assert.False(t, svc.ValidateAPIKeySignature(key.KeyID, stale, body, signature))
}

func TestAPIKeySignatureRejectsUnknownKeyID(t *testing.T) {
	svc := NewService(newFakeDevices(), NewMemoryLockoutStore(), testPolicy(), logger.NewTest())

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	assert.False(t, svc.ValidateAPIKeySignature("unknown-key", timestamp, "body", "signature"))
}

func TestMemoryLockoutStoreSlidesWindow(t *testing.T) {
	store := NewMemoryLockoutStore()
	ctx := context.Background()

	count, err := store.RecordFailure(ctx, "SN-1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	time.Sleep(75 * time.Millisecond)

	count, unlocksAt, err := store.Status(ctx, "SN-1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.True(t, unlocksAt.IsZero())
}

func TestMemoryLockoutStoreResetClearsFailures(t *testing.T) {
	store := NewMemoryLockoutStore()
	ctx := context.Background()

	_, err := store.RecordFailure(ctx, "SN-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "SN-1"))

	count, _, err := store.Status(ctx, "SN-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestGetTokenStatusReportsExpiry(t *testing.T) {
	devices := newFakeDevices()
	past := time.Now().Add(-time.Hour)
	devices.devices["dev-1"] = &models.Device{DeviceID: "dev-1", AuthTokenHash: "hash", TokenExpiresAt: &past}

	svc := NewService(devices, NewMemoryLockoutStore(), testPolicy(), logger.NewTest())

	status, err := svc.GetTokenStatus(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, status.DeviceFound)
	assert.True(t, status.HasToken)
	assert.True(t, status.IsExpired)
}

func TestGetTokenStatusUnknownDevice(t *testing.T) {
	svc := NewService(newFakeDevices(), NewMemoryLockoutStore(), testPolicy(), logger.NewTest())

	status, err := svc.GetTokenStatus(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, status.DeviceFound)
}
