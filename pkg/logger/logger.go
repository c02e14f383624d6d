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

// Package logger provides JSON structured logging for the telemetry plane, built on zerolog.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how a Logger is constructed.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Debug  bool   `json:"debug" yaml:"debug"`
	Output string `json:"output" yaml:"output"`
}

// Logger is the interface every package in this module takes instead of a global.
type Logger interface {
	WithComponent(name string) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
	Trace(msg string)
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	Raw() zerolog.Logger
}

type fieldLogger struct {
	zl zerolog.Logger
}

// New builds a Logger from Config. An empty Config produces an info-level stdout logger.
func New(config Config) Logger {
	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		if parsed, err := zerolog.ParseLevel(config.Level); err == nil {
			level = parsed
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339

	zl := zerolog.New(output).Level(level).With().Timestamp().Logger()

	return &fieldLogger{zl: zl}
}

// NewTest returns a Logger that discards everything, for use in unit tests.
func NewTest() Logger {
	return &fieldLogger{zl: zerolog.Nop()}
}

func (f *fieldLogger) WithComponent(name string) Logger {
	return &fieldLogger{zl: f.zl.With().Str("component", name).Logger()}
}

func (f *fieldLogger) WithFields(fields map[string]interface{}) Logger {
	ctx := f.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}

	return &fieldLogger{zl: ctx.Logger()}
}

func (f *fieldLogger) WithError(err error) Logger {
	return &fieldLogger{zl: f.zl.With().Err(err).Logger()}
}

func (f *fieldLogger) Trace(msg string) { f.zl.Trace().Msg(msg) }
func (f *fieldLogger) Debug(msg string) { f.zl.Debug().Msg(msg) }
func (f *fieldLogger) Info(msg string)  { f.zl.Info().Msg(msg) }
func (f *fieldLogger) Warn(msg string)  { f.zl.Warn().Msg(msg) }
func (f *fieldLogger) Error(msg string) { f.zl.Error().Msg(msg) }
func (f *fieldLogger) Fatal(msg string) { f.zl.Fatal().Msg(msg) }

func (f *fieldLogger) Raw() zerolog.Logger { return f.zl }
