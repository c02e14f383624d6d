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

// Package snmpmeter is a pull-based, stateless adapter.Adapter for meters and
// inverters reachable over SNMP. Unlike the push-based MQTT adapter, Poll
// performs a live round trip on every call and HandleCommand supports only
// the read-only subset of the command vocabulary, demonstrating that the
// adapter interface must not assume every device accepts writes.
package snmpmeter

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/kunwarf/solar-hub-sub002/pkg/adapter"
	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
)

// OID names one metric's location in the device's MIB.
type OID struct {
	MetricName string
	OID        string
}

// Config addresses one SNMP-reachable device and the OIDs to poll.
type Config struct {
	Host      string
	Port      uint16
	Community string
	Timeout   time.Duration
	Retries   int
	OIDs      []OID
}

// Adapter is the SNMP implementation of adapter.Adapter.
type Adapter struct {
	cfg    Config
	log    logger.Logger
	client *gosnmp.GoSNMP
}

func New(cfg Config, log logger.Logger) *Adapter {
	return &Adapter{cfg: cfg, log: log}
}

func (a *Adapter) Connect(_ context.Context) error {
	a.client = &gosnmp.GoSNMP{
		Target:    a.cfg.Host,
		Port:      a.cfg.Port,
		Community: a.cfg.Community,
		Version:   gosnmp.Version2c,
		Timeout:   a.cfg.Timeout,
		Retries:   a.cfg.Retries,
	}

	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("snmpmeter: failed to connect: %w", err)
	}

	return nil
}

func (a *Adapter) Close(_ context.Context) error {
	if a.client == nil {
		return nil
	}

	return a.client.Conn.Close()
}

// Poll walks the configured OID table into a fresh snapshot on every call.
func (a *Adapter) Poll(_ context.Context) (adapter.Telemetry, error) {
	oids := make([]string, 0, len(a.cfg.OIDs))
	for _, o := range a.cfg.OIDs {
		oids = append(oids, o.OID)
	}

	result, err := a.client.Get(oids)
	if err != nil {
		return adapter.Telemetry{}, fmt.Errorf("snmpmeter: get failed: %w", err)
	}

	values := make(map[string]interface{}, len(result.Variables))

	for i, pdu := range result.Variables {
		metricName := a.cfg.OIDs[i].MetricName

		switch pdu.Type {
		case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.Counter64:
			values[metricName] = gosnmp.ToBigInt(pdu.Value).Int64()
		case gosnmp.OctetString:
			if b, ok := pdu.Value.([]byte); ok {
				values[metricName] = string(b)
			}
		default:
			values[metricName] = pdu.Value
		}
	}

	return adapter.Telemetry{
		DeviceID:  a.cfg.Host,
		Timestamp: time.Now().UTC(),
		Values:    values,
	}, nil
}

// HandleCommand supports only "read" (a single SNMP GET) and "ping"; every
// other action returns the canonical unsupported-action result rather than
// a Go error, since "this device cannot do that" is an expected outcome.
func (a *Adapter) HandleCommand(ctx context.Context, cmd adapter.Command) (adapter.Response, error) {
	switch cmd.Action {
	case "ping":
		ok, err := a.CheckConnectivity(ctx)
		return adapter.Response{OK: ok, CommandID: cmd.CommandID}, err
	case "read":
		oid, _ := cmd.Params["oid"].(string)
		if oid == "" {
			return adapter.UnsupportedResponse(cmd.CommandID, cmd.Action), nil
		}

		result, err := a.client.Get([]string{oid})
		if err != nil {
			return adapter.Response{OK: false, Reason: err.Error(), CommandID: cmd.CommandID}, nil
		}

		return adapter.Response{
			OK:        true,
			CommandID: cmd.CommandID,
			Data:      map[string]interface{}{"value": result.Variables[0].Value},
		}, nil
	default:
		return adapter.UnsupportedResponse(cmd.CommandID, cmd.Action), nil
	}
}

// ReadSerialNumber has no generic SNMP MIB location in this reference
// adapter; device-specific deployments are expected to add an OID entry
// named "serial_number" to Config.OIDs and read it from the polled snapshot.
func (a *Adapter) ReadSerialNumber(_ context.Context) (string, bool, error) {
	return "", false, nil
}

func (a *Adapter) CheckConnectivity(_ context.Context) (bool, error) {
	_, err := a.client.Get([]string{"1.3.6.1.2.1.1.1.0"})
	return err == nil, nil
}

func (a *Adapter) TOUCapability() adapter.TOUCapability {
	return adapter.TOUCapability{}
}
