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

// Package config loads the telemetry plane's configuration from a YAML file
// with an environment-variable overlay, mirroring the layered file-then-env
// approach used elsewhere in this stack.
package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/kunwarf/solar-hub-sub002/pkg/db"
	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
	"gopkg.in/yaml.v3"
)

// AuthPolicy governs lockout and token defaults enforced by pkg/auth.
type AuthPolicy struct {
	TokenExpiryDays  int             `yaml:"token_expiry_days"`
	MaxFailedAttempts int            `yaml:"max_failed_attempts"`
	LockoutWindow    models.Duration `yaml:"lockout_window"`
	SigningSkew      models.Duration `yaml:"signing_skew"`
}

// MQTTConfig configures the reference MQTT adapter.
type MQTTConfig struct {
	BrokerHost      string          `yaml:"broker_host"`
	BrokerPort      int             `yaml:"broker_port"`
	Username        string          `yaml:"username"`
	Password        string          `yaml:"password" sensitive:"true"`
	ClientID        string          `yaml:"client_id"`
	TopicPrefix     string          `yaml:"topic_prefix"`
	Keepalive       models.Duration `yaml:"keepalive"`
	QoS             byte            `yaml:"qos"`
	UseTLS          bool            `yaml:"use_tls"`
	PollingInterval models.Duration `yaml:"polling_interval"`
}

// SNMPMetricOID maps a canonical metric name to its OID location in a
// device's MIB, for the reference SNMP pull adapter.
type SNMPMetricOID struct {
	MetricName string `yaml:"metric_name"`
	OID        string `yaml:"oid"`
}

// SNMPConfig configures the reference SNMP pull adapter, used for meters
// and inverters that do not speak MQTT.
type SNMPConfig struct {
	DeviceID  string          `yaml:"device_id"`
	Host      string          `yaml:"host"`
	Port      uint16          `yaml:"port"`
	Community string          `yaml:"community" sensitive:"true"`
	Timeout   models.Duration `yaml:"timeout"`
	Retries   int             `yaml:"retries"`
	OIDs      []SNMPMetricOID `yaml:"oids"`
	Enabled   bool            `yaml:"enabled"`
}

// NATSConfig configures the JetStream event bus.
type NATSConfig struct {
	URL         string `yaml:"url"`
	StreamName  string `yaml:"stream_name"`
	Enabled     bool   `yaml:"enabled"`
}

// RedisConfig configures the shared auth lockout backend. It is optional:
// a single telemetryd instance is fine with the in-memory lockout store,
// but a horizontally-scaled deployment needs failure counts shared across
// processes, which is what redislockout.Store provides.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password" sensitive:"true"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// Config is the telemetry plane's full runtime configuration.
type Config struct {
	Logger       logger.Config `yaml:"logger"`
	Database     db.Config     `yaml:"database"`
	NATS         NATSConfig    `yaml:"nats"`
	MQTT         MQTTConfig    `yaml:"mqtt"`
	SNMP         SNMPConfig    `yaml:"snmp"`
	Auth         AuthPolicy    `yaml:"auth"`
	Redis        RedisConfig   `yaml:"redis"`
	MetricsAddr  string        `yaml:"metrics_addr"`
}

// defaultAuthPolicy matches the defaults observed in the original auth service.
func defaultAuthPolicy() AuthPolicy {
	return AuthPolicy{
		TokenExpiryDays:   365,
		MaxFailedAttempts: 5,
		LockoutWindow:     models.Duration(1800e9), // 30 minutes
		SigningSkew:       models.Duration(300e9),  // 5 minutes
	}
}

// Load reads path as YAML, applies environment overrides, and fills
// unset fields with their documented defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{Auth: defaultAuthPolicy(), MetricsAddr: ":9090"}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides walks the well-known environment variables this service
// honors. Kept explicit (rather than reflection-driven struct-tag scanning)
// so the override surface stays a short, auditable list.
func applyEnvOverrides(cfg *Config) {
	setIfPresent("SOLARHUB_DB_HOST", &cfg.Database.Host)
	setIfPresent("SOLARHUB_DB_PASSWORD", &cfg.Database.Password)
	setIfPresent("SOLARHUB_NATS_URL", &cfg.NATS.URL)
	setIfPresent("SOLARHUB_MQTT_BROKER_HOST", &cfg.MQTT.BrokerHost)
	setIfPresent("SOLARHUB_MQTT_PASSWORD", &cfg.MQTT.Password)
	setIfPresent("SOLARHUB_METRICS_ADDR", &cfg.MetricsAddr)
	setIfPresent("SOLARHUB_REDIS_ADDR", &cfg.Redis.Addr)
	setIfPresent("SOLARHUB_REDIS_PASSWORD", &cfg.Redis.Password)
}

func setIfPresent(envVar string, dst *string) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		*dst = v
	}
}

// sensitiveFields returns the names of v's top-level struct fields tagged
// `sensitive:"true"`. Nothing in this module calls it; log output does not
// consult it.
func sensitiveFields(v interface{}) []string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	var names []string

	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("sensitive") == "true" {
			names = append(names, t.Field(i).Name)
		}
	}

	return names
}
