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

// CommandStatus is the dispatcher's state machine for one command's lifecycle.
type CommandStatus string

const (
	CommandPending      CommandStatus = "pending"
	CommandClaimed      CommandStatus = "claimed"
	CommandSent         CommandStatus = "sent"
	CommandAcknowledged CommandStatus = "acknowledged"
	CommandCompleted    CommandStatus = "completed"
	CommandFailed       CommandStatus = "failed"
	CommandCancelled    CommandStatus = "cancelled"
	CommandExpired      CommandStatus = "expired"
)

// terminal lists the states that never transition further.
var terminal = map[CommandStatus]bool{
	CommandCompleted: true,
	CommandFailed:    true,
	CommandCancelled: true,
	CommandExpired:   true,
}

// IsTerminal reports whether a command in this status can no longer transition.
func (s CommandStatus) IsTerminal() bool { return terminal[s] }

const (
	defaultPriority          = 5
	immediateCommandPriority = 1
	defaultMaxRetries        = 3
)

// DefaultPriority is the priority assigned to a command unless the caller overrides it.
func DefaultPriority() int { return defaultPriority }

// ImmediateCommandPriority is the priority given to commands created for immediate dispatch.
func ImmediateCommandPriority() int { return immediateCommandPriority }

// DefaultMaxRetries is the retry budget assigned to a command unless the caller overrides it.
func DefaultMaxRetries() int { return defaultMaxRetries }

// DeviceCommand is a unit of work queued for a device, claimed and executed by the dispatcher.
type DeviceCommand struct {
	ID              string                 `json:"id"`
	DeviceID        string                 `json:"device_id"`
	SiteID          string                 `json:"site_id"`
	CommandType     string                 `json:"command_type"`
	CommandParams   map[string]interface{} `json:"command_params,omitempty"`
	Status          CommandStatus          `json:"status"`
	CreatedAt       time.Time              `json:"created_at"`
	ScheduledAt     *time.Time             `json:"scheduled_at,omitempty"`
	SentAt          *time.Time             `json:"sent_at,omitempty"`
	AcknowledgedAt  *time.Time             `json:"acknowledged_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	ExpiresAt       *time.Time             `json:"expires_at,omitempty"`
	Result          map[string]interface{} `json:"result,omitempty"`
	ErrorCode       string                 `json:"error_code,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	RetryCount      int                    `json:"retry_count"`
	MaxRetries      int                    `json:"max_retries"`
	CreatedBy       string                 `json:"created_by,omitempty"`
	Priority        int                    `json:"priority"`
}

// CommandResult is what an executor (or a device's report-result call) hands back.
type CommandResult struct {
	CommandID    string
	DeviceID     string
	Success      bool
	Data         map[string]interface{}
	ErrorCode    string
	ErrorMessage string
}

// CommandStats summarizes the dispatcher's queue for operational dashboards.
type CommandStats struct {
	TotalCommands     int64
	PendingCommands   int64
	CompletedCommands int64
	FailedCommands    int64
	SuccessRate       float64
}
