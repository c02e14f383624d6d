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
	"math"
	"strings"
	"testing"
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/models"
	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestValidateValueNaNAndInfAreMissing(t *testing.T) {
	v, q := validateValue(math.NaN(), nil)
	assert.Equal(t, models.QualityMissing, q)
	assert.Zero(t, v)

	_, q = validateValue(math.Inf(1), nil)
	assert.Equal(t, models.QualityMissing, q)
}

func TestValidateValueNoDefinitionIsGood(t *testing.T) {
	v, q := validateValue(42.0, nil)
	assert.Equal(t, models.QualityGood, q)
	assert.Equal(t, 42.0, v)
}

func TestValidateValueOutOfBoundsIsUncertain(t *testing.T) {
	def := &models.MetricDefinition{MinValue: floatPtr(0), MaxValue: floatPtr(100)}

	_, q := validateValue(-5, def)
	assert.Equal(t, models.QualityUncertain, q)

	_, q = validateValue(150, def)
	assert.Equal(t, models.QualityUncertain, q)

	_, q = validateValue(50, def)
	assert.Equal(t, models.QualityGood, q)
}

func TestValidateTimestampWithinSkew(t *testing.T) {
	now := time.Now()

	assert.True(t, validateTimestamp(now.Add(-2*time.Minute), now, 5*time.Minute))
	assert.True(t, validateTimestamp(now.Add(2*time.Minute), now, 5*time.Minute))
	assert.False(t, validateTimestamp(now.Add(-10*time.Minute), now, 5*time.Minute))
}

func TestValidateTimestampDefaultsSkewWhenZero(t *testing.T) {
	now := time.Now()

	assert.True(t, validateTimestamp(now.Add(-4*time.Minute), now, 0))
	assert.False(t, validateTimestamp(now.Add(-10*time.Minute), now, 0))
}

func TestTruncateTagsLeavesShortValuesUntouched(t *testing.T) {
	tags := map[string]string{"phase": "A"}
	out := truncateTags(tags)
	assert.Equal(t, "A", out["phase"])
}

func TestTruncateTagTruncatesLongValues(t *testing.T) {
	long := strings.Repeat("x", maxTagValueLength+50)
	assert.Len(t, truncateTag(long), maxTagValueLength)
}

func TestTruncateTagsNilIsNil(t *testing.T) {
	assert.Nil(t, truncateTags(nil))
}
