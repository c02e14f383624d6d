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
	"sync"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

const defaultStaleSessionTimeout = 300 * time.Second

// SessionTracker holds the live, in-memory set of connected device
// sessions. It is deliberately not persisted: a process restart drops every
// session, which is correct since the adapter connections themselves also
// drop on restart.
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[string]*models.DeviceSession
}

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sessions: make(map[string]*models.DeviceSession)}
}

// Open records a new session for deviceID, replacing any prior session.
func (t *SessionTracker) Open(deviceID, sessionID, clientAddress string) *models.DeviceSession {
	now := time.Now()

	session := &models.DeviceSession{
		DeviceID:       deviceID,
		SessionID:      sessionID,
		ClientAddress:  clientAddress,
		ConnectedAt:    now,
		LastActivityAt: now,
	}

	t.mu.Lock()
	t.sessions[deviceID] = session
	t.mu.Unlock()

	return session
}

// Close removes deviceID's session, if any.
func (t *SessionTracker) Close(deviceID string) {
	t.mu.Lock()
	delete(t.sessions, deviceID)
	t.mu.Unlock()
}

// Touch bumps a session's last-activity timestamp, used whenever telemetry
// or a command response arrives for deviceID.
func (t *SessionTracker) Touch(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[deviceID]; ok {
		s.LastActivityAt = time.Now()
	}
}

// Get returns deviceID's active session, or nil if it is not connected.
func (t *SessionTracker) Get(deviceID string) *models.DeviceSession {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.sessions[deviceID]
}

// ListConnected returns every device id with an active session.
func (t *SessionTracker) ListConnected() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}

	return ids
}

// CleanupStale evicts sessions whose last activity is older than timeout
// (defaultStaleSessionTimeout if timeout is zero) and returns how many were
// removed.
func (t *SessionTracker) CleanupStale(timeout time.Duration) int {
	if timeout <= 0 {
		timeout = defaultStaleSessionTimeout
	}

	cutoff := time.Now().Add(-timeout)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0

	for id, s := range t.sessions {
		if s.LastActivityAt.Before(cutoff) {
			delete(t.sessions, id)
			removed++
		}
	}

	return removed
}
