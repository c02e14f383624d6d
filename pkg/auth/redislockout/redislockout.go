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

// Package redislockout is a Redis-backed auth.LockoutStore for deployments
// running more than one telemetry-plane instance, where lockout state must
// be shared rather than kept in each process's memory.
package redislockout

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "solarhub:lockout:"

// Store is a Redis sorted-set backed sliding window: each failure is added
// as a member scored by its own timestamp, and entries older than the
// window are trimmed on every access.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	rkey := keyPrefix + key
	now := time.Now()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond())

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "-inf", fmt.Sprintf("%d", now.Add(-window).UnixNano()))
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, rkey, window)
	card := pipe.ZCard(ctx, rkey)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redislockout: record failure: %w", err)
	}

	return int(card.Val()), nil
}

func (s *Store) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redislockout: reset: %w", err)
	}

	return nil
}

func (s *Store) Status(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	rkey := keyPrefix + key
	now := time.Now()

	if err := s.client.ZRemRangeByScore(ctx, rkey, "-inf",
		fmt.Sprintf("%d", now.Add(-window).UnixNano())).Err(); err != nil {
		return 0, time.Time{}, fmt.Errorf("redislockout: status: %w", err)
	}

	count, err := s.client.ZCard(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redislockout: status: %w", err)
	}

	if count == 0 {
		return 0, time.Time{}, nil
	}

	oldest, err := s.client.ZRangeWithScores(ctx, rkey, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return int(count), time.Time{}, nil
	}

	unlocksAt := time.Unix(0, int64(oldest[0].Score)).Add(window)

	return int(count), unlocksAt, nil
}

// Cleanup is a no-op: per-key TTLs set in RecordFailure already expire
// stale lockout keys, so there is nothing to sweep.
func (s *Store) Cleanup(ctx context.Context, window time.Duration) (int, error) {
	return 0, nil
}
