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

package db

import "errors"

var (
	ErrNotFound        = errors.New("db: record not found")
	ErrFailedToQuery   = errors.New("db: failed to query")
	ErrFailedToInsert  = errors.New("db: failed to insert")
	ErrFailedToScan    = errors.New("db: failed to scan row")
	ErrFailedToInit    = errors.New("db: failed to initialize schema")
	ErrFailedOpenDB    = errors.New("db: failed to open connection pool")
	ErrDeviceIDMissing = errors.New("db: device id is required")
	ErrNilArgument     = errors.New("db: required argument is nil")
)
