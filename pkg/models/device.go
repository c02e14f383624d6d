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

// ConnectionStatus is the wire enumeration of a device's connection state.
type ConnectionStatus string

const (
	ConnectionUnknown      ConnectionStatus = "unknown"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionError        ConnectionStatus = "error"
	ConnectionMaintenance  ConnectionStatus = "maintenance"
)

// Device is the authoritative record for one physical unit in the fleet.
type Device struct {
	DeviceID           string                 `json:"device_id"`
	SiteID             string                 `json:"site_id"`
	OrganizationID     string                 `json:"organization_id"`
	DeviceType         string                 `json:"device_type"`
	SerialNumber       string                 `json:"serial_number"`
	AuthTokenHash      string                 `json:"-"`
	TokenExpiresAt     *time.Time             `json:"token_expires_at,omitempty"`
	ConnectionStatus   ConnectionStatus       `json:"connection_status"`
	LastConnectedAt    *time.Time             `json:"last_connected_at,omitempty"`
	LastDisconnectedAt *time.Time             `json:"last_disconnected_at,omitempty"`
	ReconnectCount     int                    `json:"reconnect_count"`
	Protocol           string                 `json:"protocol"`
	ConnectionConfig   map[string]interface{} `json:"connection_config,omitempty"`
	PollingIntervalSec int                    `json:"polling_interval_seconds"`
	LastPolledAt       *time.Time             `json:"last_polled_at,omitempty"`
	NextPollAt         *time.Time             `json:"next_poll_at,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
	SyncedAt           *time.Time             `json:"synced_at,omitempty"`
}

// DeviceSession is the in-memory record of a live adapter connection.
type DeviceSession struct {
	DeviceID       string
	SessionID      string
	ClientAddress  string
	ConnectedAt    time.Time
	LastActivityAt time.Time
}

// ConnectionStats summarizes the registry's fleet-wide connection state.
type ConnectionStats struct {
	ByStatus map[ConnectionStatus]int64
	ByType   map[string]int64
}
