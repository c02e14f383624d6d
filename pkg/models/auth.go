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

package models

import "time"

// ErrorCode is a stable, machine-readable auth failure reason. It is payload
// carried on a result struct, never a Go error, since callers branch on it.
type ErrorCode string

const (
	ErrCodeNone               ErrorCode = ""
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeLockedOut          ErrorCode = "LOCKED_OUT"
	ErrCodeNoExecutor         ErrorCode = "NO_EXECUTOR"
	ErrCodeException          ErrorCode = "EXCEPTION"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeUnsupportedAction  ErrorCode = "UNSUPPORTED_ACTION"
	ErrCodeExpiredCommand     ErrorCode = "EXPIRED"
)

// AuthResult is the outcome of a device authentication attempt.
type AuthResult struct {
	Success   bool
	Device    *Device
	ErrorCode ErrorCode
}

// LockoutStatus reports a device or serial's current sliding-window lockout state.
type LockoutStatus struct {
	IsLocked         bool
	FailedAttempts   int
	RemainingAttempts int
	UnlocksAt        *time.Time
}

// TokenStatus summarizes a device's current auth token state.
type TokenStatus struct {
	DeviceFound bool
	HasToken    bool
	IsExpired   bool
}

// APIKey is a device-scoped signing credential used for HMAC request authentication.
type APIKey struct {
	KeyID     string
	KeySecret string
	DeviceID  string
	CreatedAt time.Time
}
