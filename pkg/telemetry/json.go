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

package telemetry

import (
	"encoding/json"
	"fmt"
)

func jsonMarshalTags(tags map[string]string) ([]byte, error) {
	return json.Marshal(tags)
}

func unmarshalTags(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var tags map[string]string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, err
	}

	return tags, nil
}

func marshalErrors(errs []string) ([]byte, error) {
	if len(errs) == 0 {
		return nil, nil
	}

	b, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to marshal batch errors: %w", err)
	}

	return b, nil
}
