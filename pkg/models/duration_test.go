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

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalJSONNumeric(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`30000000000`), &d))
	assert.Equal(t, 30*time.Second, d.Duration())
}

func TestDurationUnmarshalJSONString(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"45s"`), &d))
	assert.Equal(t, 45*time.Second, d.Duration())
}

func TestDurationUnmarshalJSONInvalid(t *testing.T) {
	var d Duration

	assert.Error(t, json.Unmarshal([]byte(`"not-a-duration"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDurationMarshalJSON(t *testing.T) {
	d := Duration(90 * time.Second)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}
