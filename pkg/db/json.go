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

import "encoding/json"

// MarshalMapToJSON converts a map (possibly nil) into a JSONB-ready byte
// slice, emitting SQL NULL for an empty map instead of the literal "null".
func MarshalMapToJSON(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}

	return json.Marshal(m)
}

// UnmarshalJSONToMap is the inverse of MarshalMapToJSON, tolerant of a NULL column.
func UnmarshalJSONToMap(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	return m, nil
}

// MarshalStringsToJSON is MarshalMapToJSON's counterpart for a string slice,
// emitting SQL NULL for an empty slice. Nothing in this module calls it;
// ingestion batch error lists are marshalled by pkg/telemetry itself.
func MarshalStringsToJSON(s []string) ([]byte, error) {
	if len(s) == 0 {
		return nil, nil
	}

	return json.Marshal(s)
}
