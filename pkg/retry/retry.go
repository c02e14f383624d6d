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

// Package retry wraps cenkalti/backoff with the bounded exponential policy
// this module uses for transient DB and transport errors.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do runs fn with exponential backoff, retrying while fn returns a non-nil
// error, up to maxElapsed total wall-clock time. A context cancellation
// aborts retries immediately.
func Do(ctx context.Context, maxElapsed time.Duration, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	return backoff.Retry(fn, backoff.WithContext(bo, ctx))
}

// Permanent marks err as non-retryable, short-circuiting Do.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
