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

// Package db bootstraps the TimescaleDB/PostgreSQL connection pool and holds
// the schema and continuous-aggregate definitions shared by every repository.
package db

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

// Config describes how to reach the TimescaleDB/PostgreSQL instance backing
// the telemetry plane.
type Config struct {
	Host               string            `json:"host" yaml:"host"`
	Port               int               `json:"port" yaml:"port"`
	Database           string            `json:"database" yaml:"database"`
	Username           string            `json:"username" yaml:"username"`
	Password           string            `json:"password" yaml:"password" sensitive:"true"`
	ApplicationName    string            `json:"application_name" yaml:"application_name"`
	SSLMode            string            `json:"ssl_mode" yaml:"ssl_mode"`
	MaxConnections     int32             `json:"max_connections" yaml:"max_connections"`
	MinConnections     int32             `json:"min_connections" yaml:"min_connections"`
	MaxConnLifetime    models.Duration   `json:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	HealthCheckPeriod  models.Duration   `json:"health_check_period" yaml:"health_check_period"`
	StatementTimeout   models.Duration   `json:"statement_timeout" yaml:"statement_timeout"`
	ExtraRuntimeParams map[string]string `json:"extra_runtime_params" yaml:"extra_runtime_params"`
}

// NewPool builds a pgx connection pool tuned per Config.
func NewPool(ctx context.Context, cfg *Config, log logger.Logger) (*pgxpool.Pool, error) {
	connURL := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}

	q := connURL.Query()

	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	} else {
		q.Set("sslmode", "prefer")
	}

	if cfg.ApplicationName != "" {
		q.Set("application_name", cfg.ApplicationName)
	}

	for k, v := range cfg.ExtraRuntimeParams {
		q.Set(k, v)
	}

	connURL.RawQuery = q.Encode()

	poolCfg, err := pgxpool.ParseConfig(connURL.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}

	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}

	if cfg.MaxConnLifetime.Duration() > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime.Duration()
	}

	if cfg.HealthCheckPeriod.Duration() > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod.Duration()
	}

	if cfg.StatementTimeout.Duration() > 0 {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = map[string]string{}
		}

		ms := cfg.StatementTimeout.Duration().Milliseconds()
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(ms, 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		log.WithError(err).Error("failed to ping database pool")

		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	return pool, nil
}
