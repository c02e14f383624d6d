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

// Command telemetryd is the telemetry plane's entrypoint: it wires the
// registry, catalog, ingestion, journal, dispatcher, and auth services to
// their storage and transport, then serves device traffic until signaled.
package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/adapter"
	"github.com/kunwarf/solar-hub-sub002/pkg/adapter/mqtt"
	"github.com/kunwarf/solar-hub-sub002/pkg/adapter/resilience"
	"github.com/kunwarf/solar-hub-sub002/pkg/adapter/snmpmeter"
	"github.com/kunwarf/solar-hub-sub002/pkg/auth"
	"github.com/kunwarf/solar-hub-sub002/pkg/auth/redislockout"
	"github.com/kunwarf/solar-hub-sub002/pkg/catalog"
	"github.com/kunwarf/solar-hub-sub002/pkg/command"
	"github.com/kunwarf/solar-hub-sub002/pkg/config"
	"github.com/kunwarf/solar-hub-sub002/pkg/db"
	"github.com/kunwarf/solar-hub-sub002/pkg/eventbus"
	"github.com/kunwarf/solar-hub-sub002/pkg/events"
	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
	"github.com/kunwarf/solar-hub-sub002/pkg/registry"
	"github.com/kunwarf/solar-hub-sub002/pkg/telemetry"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "/etc/solarhub/telemetryd.yaml", "path to the telemetryd config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, &cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	if err := db.Bootstrap(ctx, pool); err != nil {
		log.WithError(err).Fatal("failed to bootstrap schema")
	}

	var publisher *eventbus.Publisher

	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to nats")
		}
		defer nc.Close()

		js, err := jetstream.New(nc)
		if err != nil {
			log.WithError(err).Fatal("failed to open jetstream context")
		}

		publisher = eventbus.NewPublisher(js, "solarhub-telemetryd", log)
	}

	catalogSvc := catalog.NewService(catalog.NewCNPGRepository(pool))
	if err := catalogSvc.Bootstrap(ctx); err != nil {
		log.WithError(err).Fatal("failed to bootstrap metric catalog")
	}

	registrySvc := registry.NewService(registry.NewCNPGRepository(pool), publisher, log)
	telemetrySvc := telemetry.NewService(telemetry.NewCNPGRepository(pool), catalogSvc, log)
	eventsSvc := events.NewService(events.NewCNPGRepository(pool), publisher, log)
	commandSvc := command.NewService(command.NewCNPGRepository(pool), log)

	lockoutStore := lockoutStoreFor(cfg, log)

	authSvc := auth.NewService(registrySvc, lockoutStore, auth.Policy{
		MaxFailedAttempts: cfg.Auth.MaxFailedAttempts,
		LockoutWindow:     cfg.Auth.LockoutWindow.Duration(),
		SigningSkew:       cfg.Auth.SigningSkew.Duration(),
		TokenExpiryDays:   cfg.Auth.TokenExpiryDays,
	}, log)

	adapters := connectAdapters(ctx, cfg, log)

	commandSvc.RegisterExecutor("device_command", forwardToAdapter(adapters, log))

	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	go runPollLoop(ctx, registrySvc, telemetrySvc, adapters, log)
	go runSweepLoop(ctx, registrySvc, commandSvc, eventsSvc, log)
	go authCleanupLoop(ctx, authSvc, log)

	log.WithFields(map[string]interface{}{"metrics_addr": cfg.MetricsAddr}).Info("telemetryd started")

	<-ctx.Done()

	log.Info("telemetryd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	for deviceID, a := range adapters {
		if err := a.Close(shutdownCtx); err != nil {
			log.WithError(err).WithFields(map[string]interface{}{"device_id": deviceID}).Warn("failed to close adapter cleanly")
		}
	}
}

// lockoutStoreFor picks the auth lockout backend: Redis when configured, so
// lockout state is shared across horizontally-scaled instances, otherwise
// the in-memory store that is adequate for a single instance.
func lockoutStoreFor(cfg *config.Config, log logger.Logger) auth.LockoutStore {
	if !cfg.Redis.Enabled {
		return auth.NewMemoryLockoutStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.WithError(err).Warn("failed to reach redis, falling back to in-memory lockout store")
		return auth.NewMemoryLockoutStore()
	}

	return redislockout.New(client)
}

// connectAdapters builds and connects one adapter per configured device
// transport (MQTT, SNMP), wrapped in a circuit breaker so a single wedged
// device cannot starve the command dispatch path. Only HandleCommand goes
// through the breaker; Poll calls reach the adapter directly.
func connectAdapters(ctx context.Context, cfg *config.Config, log logger.Logger) map[string]adapter.Adapter {
	adapters := make(map[string]adapter.Adapter)

	if cfg.MQTT.BrokerHost != "" {
		mqttAdapter := mqtt.New(mqtt.Config{
			BrokerHost:      cfg.MQTT.BrokerHost,
			BrokerPort:      cfg.MQTT.BrokerPort,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			ClientID:        cfg.MQTT.ClientID,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
			DeviceID:        cfg.MQTT.ClientID,
			Keepalive:       cfg.MQTT.Keepalive.Duration(),
			QoS:             cfg.MQTT.QoS,
			UseTLS:          cfg.MQTT.UseTLS,
			PollingInterval: 30 * time.Second,
		}, log)

		if err := mqttAdapter.Connect(ctx); err != nil {
			log.WithError(err).Warn("failed to connect mqtt adapter at startup, will not poll until reconnected")
		} else {
			adapters[cfg.MQTT.ClientID] = resilience.Wrap(mqttAdapter, cfg.MQTT.ClientID, 5, 30*time.Second)
		}
	}

	if cfg.SNMP.Enabled && cfg.SNMP.Host != "" {
		oids := make([]snmpmeter.OID, 0, len(cfg.SNMP.OIDs))
		for _, o := range cfg.SNMP.OIDs {
			oids = append(oids, snmpmeter.OID{MetricName: o.MetricName, OID: o.OID})
		}

		snmpAdapter := snmpmeter.New(snmpmeter.Config{
			Host:      cfg.SNMP.Host,
			Port:      cfg.SNMP.Port,
			Community: cfg.SNMP.Community,
			Timeout:   cfg.SNMP.Timeout.Duration(),
			Retries:   cfg.SNMP.Retries,
			OIDs:      oids,
		}, log)

		if err := snmpAdapter.Connect(ctx); err != nil {
			log.WithError(err).Warn("failed to connect snmp adapter at startup, will not poll until reconnected")
		} else {
			adapters[cfg.SNMP.DeviceID] = resilience.Wrap(snmpAdapter, cfg.SNMP.DeviceID, 5, 30*time.Second)
		}
	}

	return adapters
}

func forwardToAdapter(adapters map[string]adapter.Adapter, log logger.Logger) command.Executor {
	return func(ctx context.Context, cmd *models.DeviceCommand) models.CommandResult {
		a, ok := adapters[cmd.DeviceID]
		if !ok {
			return models.CommandResult{CommandID: cmd.ID, DeviceID: cmd.DeviceID, Success: false,
				ErrorCode: string(models.ErrCodeNoExecutor), ErrorMessage: "no connected adapter for device"}
		}

		action, _ := cmd.CommandParams["action"].(string)

		resp, err := a.HandleCommand(ctx, adapter.Command{
			CommandID: cmd.ID,
			Action:    action,
			Params:    cmd.CommandParams,
			Timeout:   30 * time.Second,
		})
		if err != nil {
			log.WithError(err).WithFields(map[string]interface{}{"device_id": cmd.DeviceID}).Warn("adapter command failed")
			return models.CommandResult{CommandID: cmd.ID, DeviceID: cmd.DeviceID, Success: false, ErrorCode: string(models.ErrCodeException), ErrorMessage: err.Error()}
		}

		if !resp.OK {
			code := string(models.ErrCodeTimeout)
			if resp.Reason != "timeout" {
				code = string(models.ErrCodeUnsupportedAction)
			}

			return models.CommandResult{CommandID: cmd.ID, DeviceID: cmd.DeviceID, Success: false, ErrorCode: code, ErrorMessage: resp.Reason}
		}

		return models.CommandResult{CommandID: cmd.ID, DeviceID: cmd.DeviceID, Success: true, Data: resp.Data}
	}
}

// runPollLoop periodically ingests telemetry from every connected adapter
// and marks the corresponding device as polled.
func runPollLoop(ctx context.Context, registrySvc *registry.Service, telemetrySvc *telemetry.Service, adapters map[string]adapter.Adapter, log logger.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for deviceID, a := range adapters {
				snap, err := a.Poll(ctx)
				if err != nil {
					log.WithError(err).WithFields(map[string]interface{}{"device_id": deviceID}).Warn("poll failed")
					continue
				}

				if len(snap.Values) == 0 {
					continue
				}

				if _, err := telemetrySvc.IngestTelemetry(ctx, deviceID, "", snap.Values, snap.Timestamp); err != nil {
					log.WithError(err).WithFields(map[string]interface{}{"device_id": deviceID}).Warn("ingestion failed")
				}

				_ = registrySvc.MarkDevicePolled(ctx, deviceID)
			}
		}
	}
}

// runSweepLoop runs the periodic housekeeping that keeps session state,
// the command queue, and the event journal bounded.
func runSweepLoop(ctx context.Context, registrySvc *registry.Service, commandSvc *command.Service, eventsSvc *events.Service, log logger.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := registrySvc.CleanupStaleSessions(ctx, 5*time.Minute)
			if removed > 0 {
				log.WithFields(map[string]interface{}{"removed": removed}).Info("cleaned up stale sessions")
			}

			if expired, err := commandSvc.ExpireCommands(ctx); err != nil {
				log.WithError(err).Warn("failed to expire overdue commands")
			} else if expired > 0 {
				log.WithFields(map[string]interface{}{"expired": expired}).Info("expired overdue commands")
			}

			if _, err := commandSvc.RetryFailedCommands(ctx); err != nil {
				log.WithError(err).Warn("failed to requeue retryable commands")
			}

			if _, err := eventsSvc.Cleanup(ctx, 90, true); err != nil {
				log.WithError(err).Warn("failed to clean up old events")
			}
		}
	}
}

func authCleanupLoop(ctx context.Context, authSvc *auth.Service, log logger.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := authSvc.CleanupExpiredLockouts(ctx); err != nil {
				log.WithError(err).Warn("failed to clean up expired lockouts")
			}
		}
	}
}
