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

// Package mqtt is the reference concrete adapter.Adapter implementation: a
// push-based, session-oriented adapter speaking MQTT v5 with a last-will
// retained status topic and a correlation-id command/response pattern.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/kunwarf/solar-hub-sub002/pkg/adapter"
	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
)

// Config describes how to reach the broker and address one device's topic set.
type Config struct {
	BrokerHost  string
	BrokerPort  int
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
	DeviceID    string
	Keepalive   time.Duration
	QoS         byte
	UseTLS      bool

	// PollingInterval is how often the poll loop calls Poll. It is used only
	// to judge staleness of the cached telemetry snapshot; it does not
	// drive a timer here since this adapter is push-based.
	PollingInterval time.Duration
}

func (c Config) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", c.TopicPrefix, c.DeviceID, suffix)
}

const defaultCommandTimeout = 10 * time.Second
const staleAfter = 120 * time.Second
const defaultPollingInterval = 30 * time.Second

// telemetryAliases maps a canonical metric name to the wire key aliases the
// original field mapping accepted, broadest-match-first.
var telemetryAliases = map[string][]string{
	"pv_power":        {"pv_power_w", "pv_power", "solar_power", "dc_power"},
	"grid_power":      {"grid_power_w", "grid_power", "ac_power"},
	"load_power":      {"load_power_w", "load_power", "consumption"},
	"battery_voltage": {"batt_voltage", "battery_voltage", "batt_v"},
	"battery_current": {"batt_current", "battery_current", "batt_i"},
	"battery_power":   {"batt_power", "battery_power", "batt_power_w"},
	"battery_soc":     {"batt_soc", "battery_soc", "soc"},
	"inverter_temp":   {"inverter_temp_c", "temperature", "temp"},
}

var serialKeys = []string{"serial_number", "sn", "device_serial", "serial"}

// Adapter is the MQTT implementation of adapter.Adapter.
type Adapter struct {
	cfg Config
	log logger.Logger

	cm *autopaho.ConnectionManager

	mu            sync.RWMutex
	lastTelemetry adapter.Telemetry
	lastSeenAt    time.Time

	pendingMu sync.Mutex
	pending   map[string]chan adapter.Response
}

// New constructs an Adapter; Connect must be called before Poll/HandleCommand.
func New(cfg Config, log logger.Logger) *Adapter {
	return &Adapter{cfg: cfg, log: log, pending: make(map[string]chan adapter.Response)}
}

func (a *Adapter) statusPayload(status string) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"status": status,
		"ts":     time.Now().UTC().Format(time.RFC3339),
	})

	return payload
}

// Connect opens the MQTT session, registers the last-will offline status,
// subscribes to telemetry/status/command-response, and publishes a
// retained online status.
func (a *Adapter) Connect(ctx context.Context) error {
	scheme := "mqtt"
	if a.cfg.UseTLS {
		scheme = "mqtts"
	}

	serverURL := fmt.Sprintf("%s://%s:%d", scheme, a.cfg.BrokerHost, a.cfg.BrokerPort)

	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("mqtt: invalid broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:        []*url.URL{u},
		KeepAlive:         uint16(a.cfg.Keepalive / time.Second),
		ConnectUsername:   a.cfg.Username,
		ConnectPassword:   []byte(a.cfg.Password),
		OnConnectionUp:    a.onConnectionUp,
		OnConnectError:    func(err error) { a.log.WithError(err).Warn("mqtt connect error") },
		ClientConfig: paho.ClientConfig{
			ClientID: a.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				a.onPublishReceived,
			},
		},
	}

	pahoCfg.WillMessage = &paho.WillMessage{
		Topic:   a.cfg.topic("status"),
		Payload: a.statusPayload("offline"),
		QOS:     a.cfg.QoS,
		Retain:  true,
	}

	if a.cfg.UseTLS {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt: failed to start connection: %w", err)
	}

	if err := cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("mqtt: failed to await connection: %w", err)
	}

	a.cm = cm

	return nil
}

func (a *Adapter) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	subs := []paho.SubscribeOptions{
		{Topic: a.cfg.topic("telemetry"), QoS: a.cfg.QoS},
		{Topic: a.cfg.topic("command/response"), QoS: a.cfg.QoS},
		{Topic: a.cfg.topic("status"), QoS: a.cfg.QoS},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		a.log.WithError(err).Warn("mqtt failed to subscribe")
		return
	}

	_, _ = cm.Publish(ctx, &paho.Publish{
		Topic:   a.cfg.topic("status"),
		Payload: a.statusPayload("online"),
		QoS:     a.cfg.QoS,
		Retain:  true,
	})
}

func (a *Adapter) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error(fmt.Sprintf("mqtt publish handler panic: %v", r))
		}
	}()

	topic := pr.Packet.Topic

	switch {
	case strings.HasSuffix(topic, "/telemetry"):
		a.handleTelemetry(pr.Packet.Payload)
	case strings.HasSuffix(topic, "/command/response"):
		a.handleCommandResponse(pr.Packet.Payload)
	}

	return true, nil
}

func (a *Adapter) handleTelemetry(payload []byte) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		a.log.WithError(err).Warn("mqtt: failed to decode telemetry payload")
		return
	}

	values := mapTelemetry(raw)

	ts := time.Now().UTC()
	if v, ok := raw["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			ts = parsed
		}
	} else if v, ok := raw["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			ts = parsed
		}
	}

	snapshot := adapter.Telemetry{
		DeviceID:  a.cfg.DeviceID,
		Timestamp: ts,
		Values:    values,
		Extra:     raw,
	}

	a.mu.Lock()
	a.lastTelemetry = snapshot
	a.lastSeenAt = time.Now()
	a.mu.Unlock()
}

// mapTelemetry applies the liberal key-alias mapping while preserving any
// unmapped key verbatim, so adapters stay forward compatible with firmware
// that reports metrics the alias table has not caught up with yet.
func mapTelemetry(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))

	for canonical, aliases := range telemetryAliases {
		for _, alias := range aliases {
			if v, ok := raw[alias]; ok {
				out[canonical] = v
				break
			}
		}
	}

	for k, v := range raw {
		if _, already := out[k]; already {
			continue
		}

		aliased := false

		for _, aliases := range telemetryAliases {
			for _, alias := range aliases {
				if alias == k {
					aliased = true
					break
				}
			}
		}

		if !aliased && k != "ts" && k != "timestamp" {
			out[k] = v
		}
	}

	return out
}

func (a *Adapter) handleCommandResponse(payload []byte) {
	var resp struct {
		CommandID string                 `json:"command_id"`
		OK        bool                   `json:"ok"`
		Reason    string                 `json:"reason"`
		Data      map[string]interface{} `json:"data"`
	}

	if err := json.Unmarshal(payload, &resp); err != nil {
		a.log.WithError(err).Warn("mqtt: failed to decode command response")
		return
	}

	a.pendingMu.Lock()
	ch, ok := a.pending[resp.CommandID]
	a.pendingMu.Unlock()

	if !ok {
		return
	}

	ch <- adapter.Response{OK: resp.OK, Reason: resp.Reason, CommandID: resp.CommandID, Data: resp.Data}
}

// Close publishes a retained offline status and disconnects.
func (a *Adapter) Close(ctx context.Context) error {
	if a.cm == nil {
		return nil
	}

	_, _ = a.cm.Publish(ctx, &paho.Publish{
		Topic:   a.cfg.topic("status"),
		Payload: a.statusPayload("offline"),
		QoS:     a.cfg.QoS,
		Retain:  true,
	})

	return a.cm.Disconnect(ctx)
}

// Poll returns the last cached telemetry snapshot; MQTT is push-based so no
// network round trip happens here. A snapshot older than twice the
// configured polling interval is logged as stale, since by then the poll
// loop has called Poll enough times without fresh data to suspect the
// device (or its broker session) has gone quiet.
func (a *Adapter) Poll(_ context.Context) (adapter.Telemetry, error) {
	a.mu.RLock()
	snapshot, lastSeenAt := a.lastTelemetry, a.lastSeenAt
	a.mu.RUnlock()

	interval := a.cfg.PollingInterval
	if interval <= 0 {
		interval = defaultPollingInterval
	}

	if !lastSeenAt.IsZero() {
		if age := time.Since(lastSeenAt); age > 2*interval {
			a.log.WithFields(map[string]interface{}{
				"device_id": a.cfg.DeviceID,
				"age":       age.String(),
			}).Warn("mqtt: cached telemetry is stale")
		}
	}

	return snapshot, nil
}

// HandleCommand publishes a command and waits for the matching correlated
// response, returning a timeout value (never a Go error) if none arrives.
func (a *Adapter) HandleCommand(ctx context.Context, cmd adapter.Command) (adapter.Response, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = uuid.New().String()[:8]
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	payload := map[string]interface{}{
		"command_id": cmd.CommandID,
		"action":     cmd.Action,
		"ts":         time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range cmd.Params {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return adapter.Response{}, fmt.Errorf("mqtt: failed to encode command: %w", err)
	}

	ch := make(chan adapter.Response, 1)

	a.pendingMu.Lock()
	a.pending[cmd.CommandID] = ch
	a.pendingMu.Unlock()

	defer func() {
		a.pendingMu.Lock()
		delete(a.pending, cmd.CommandID)
		a.pendingMu.Unlock()
	}()

	if _, err := a.cm.Publish(ctx, &paho.Publish{
		Topic:   a.cfg.topic("command"),
		Payload: body,
		QoS:     a.cfg.QoS,
	}); err != nil {
		return adapter.Response{}, fmt.Errorf("mqtt: failed to publish command: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		return adapter.TimeoutResponse(cmd.CommandID), nil
	case <-ctx.Done():
		return adapter.TimeoutResponse(cmd.CommandID), nil
	}
}

// ReadSerialNumber checks the cached telemetry snapshot first, falling back
// to an explicit read command.
func (a *Adapter) ReadSerialNumber(ctx context.Context) (string, bool, error) {
	a.mu.RLock()
	values := a.lastTelemetry.Values
	a.mu.RUnlock()

	for _, key := range serialKeys {
		if v, ok := values[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true, nil
			}
		}
	}

	resp, err := a.HandleCommand(ctx, adapter.Command{
		Action:  "read",
		Params:  map[string]interface{}{"id": "serial_number"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return "", false, err
	}

	if !resp.OK {
		return "", false, nil
	}

	if serial, ok := resp.Data["serial_number"].(string); ok && serial != "" {
		return serial, true, nil
	}

	return "", false, nil
}

// CheckConnectivity reports true if telemetry has arrived recently, or
// falls back to a live ping command.
func (a *Adapter) CheckConnectivity(ctx context.Context) (bool, error) {
	a.mu.RLock()
	age := time.Since(a.lastSeenAt)
	a.mu.RUnlock()

	if age < staleAfter {
		return true, nil
	}

	resp, err := a.HandleCommand(ctx, adapter.Command{Action: "ping", Timeout: 5 * time.Second})
	if err != nil {
		return false, err
	}

	return resp.OK, nil
}

// TOUCapability returns the generic default; the MQTT wire protocol carries
// no capability-discovery command, so this is intentionally not adapter-specific.
func (a *Adapter) TOUCapability() adapter.TOUCapability {
	return adapter.DefaultTOUCapability()
}
