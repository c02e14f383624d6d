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

// Package eventbus publishes device lifecycle and journal events as
// CloudEvents on NATS JetStream, so Tier A and other telemetry-plane
// consumers can subscribe instead of polling the registry or the journal.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kunwarf/solar-hub-sub002/pkg/logger"
	"github.com/nats-io/nats.go/jetstream"
)

// CloudEvent is the minimal CloudEvents 1.0 envelope this module publishes.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject"`
	Time            time.Time   `json:"time"`
	Data            interface{} `json:"data"`
}

// Publisher publishes CloudEvents onto a JetStream stream. A nil Publisher
// is valid and every publish call becomes a no-op, so the event bus can be
// left unconfigured in development without branching at every call site.
type Publisher struct {
	js     jetstream.JetStream
	source string
	log    logger.Logger
}

func NewPublisher(js jetstream.JetStream, source string, log logger.Logger) *Publisher {
	return &Publisher{js: js, source: source, log: log}
}

// Publish emits one CloudEvent of eventType on subject, wrapping data.
func (p *Publisher) Publish(ctx context.Context, subject, eventType string, data interface{}) error {
	if p == nil || p.js == nil {
		return nil
	}

	event := CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          p.source,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            time.Now().UTC(),
		Data:            data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		if p.log != nil {
			p.log.WithError(err).Warn("failed to publish event")
		}

		return fmt.Errorf("eventbus: failed to publish: %w", err)
	}

	return nil
}

const (
	defaultMaxPullMessages = 10
	defaultPullExpiry      = 30 * time.Second
	defaultMaxRetries      = 3
)

// Handler processes one delivered message; a non-nil error causes a Nak
// (redelivery) unless the message has already exhausted defaultMaxRetries.
type Handler func(ctx context.Context, subject string, payload []byte) error

// Consumer pulls messages off a durable JetStream consumer and dispatches
// them to a Handler, force-acking poison messages after defaultMaxRetries
// rather than redelivering them forever.
type Consumer struct {
	consumer jetstream.Consumer
	log      logger.Logger
}

func NewConsumer(ctx context.Context, js jetstream.JetStream, streamName, consumerName, filterSubject string, log logger.Logger) (*Consumer, error) {
	consumer, err := js.Consumer(ctx, streamName, consumerName)
	if err != nil {
		cfg := jetstream.ConsumerConfig{
			Durable:       consumerName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    defaultMaxRetries,
			MaxAckPending: 1000,
		}

		if filterSubject != "" {
			cfg.FilterSubject = filterSubject
		}

		consumer, err = js.CreateConsumer(ctx, streamName, cfg)
		if err != nil {
			return nil, fmt.Errorf("eventbus: failed to create consumer: %w", err)
		}
	}

	return &Consumer{consumer: consumer, log: log}, nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg, handle Handler) {
	metadata, _ := msg.Metadata()

	if err := handle(ctx, msg.Subject(), msg.Data()); err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("failed to process event message")
		}

		if metadata != nil && metadata.NumDelivered >= defaultMaxRetries {
			_ = msg.Ack()
			return
		}

		_ = msg.Nak()

		return
	}

	_ = msg.Ack()
}

// Run pulls and dispatches messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(defaultMaxPullMessages, jetstream.FetchMaxWait(defaultPullExpiry))
		if err != nil {
			if c.log != nil {
				c.log.WithError(err).Warn("failed to fetch events")
			}

			time.Sleep(time.Second)

			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg, handle)
		}
	}
}
