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

// Package resilience wraps an adapter.Adapter's command path in a circuit
// breaker so a wedged device cannot starve the dispatcher's shared worker
// pool with slow, repeatedly-failing calls.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/adapter"
	"github.com/sony/gobreaker"
)

// BreakingAdapter decorates an adapter.Adapter, tripping a per-device
// circuit breaker after a run of HandleCommand failures.
type BreakingAdapter struct {
	adapter.Adapter
	breaker *gobreaker.CircuitBreaker
}

// Wrap returns cb with its HandleCommand routed through a circuit breaker
// named for deviceID, open for openDuration once consecutiveFailures is hit.
func Wrap(cb adapter.Adapter, deviceID string, consecutiveFailures uint32, openDuration time.Duration) *BreakingAdapter {
	settings := gobreaker.Settings{
		Name:    fmt.Sprintf("adapter-command:%s", deviceID),
		Timeout: openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
	}

	return &BreakingAdapter{Adapter: cb, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// HandleCommand routes through the breaker. A device-level timeout result
// (Response.OK == false, Reason == "timeout") counts as a breaker failure;
// an adapter-level Go error also counts. Breaker failures never surface as
// a Go error: a timeout comes back as the adapter's own timeout Response,
// and an open breaker (or an adapter error with no Response of its own)
// comes back as a Response with OK false and the error text as Reason.
func (b *BreakingAdapter) HandleCommand(ctx context.Context, cmd adapter.Command) (adapter.Response, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		resp, innerErr := b.Adapter.HandleCommand(ctx, cmd)
		if innerErr != nil {
			return resp, innerErr
		}

		if !resp.OK && resp.Reason == "timeout" {
			return resp, fmt.Errorf("adapter command timed out")
		}

		return resp, nil
	})

	resp, _ := result.(adapter.Response)

	if err != nil {
		if resp.CommandID == "" {
			resp = adapter.Response{OK: false, Reason: err.Error(), CommandID: cmd.CommandID}
		}

		return resp, nil
	}

	return resp, nil
}
