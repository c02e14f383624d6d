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
	"time"

	"github.com/kunwarf/solar-hub-sub002/pkg/models"
)

const (
	maxTagValueLength    = 256
	maxStringValueLength = 256
	defaultClockSkew     = 5 * time.Minute
)

// validateValue classifies a raw numeric reading against its catalog
// definition, applying the bounds-to-uncertain and NaN/Inf-to-missing rules.
// A nil definition (the metric is not in the catalog) validates the value
// as-is at "good" quality; the caller is responsible for bumping the
// catalog_unknown_metric_total counter.
func validateValue(value float64, def *models.MetricDefinition) (float64, models.Quality) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, models.QualityMissing
	}

	if def == nil {
		return value, models.QualityGood
	}

	if def.MinValue != nil && value < *def.MinValue {
		return value, models.QualityUncertain
	}

	if def.MaxValue != nil && value > *def.MaxValue {
		return value, models.QualityUncertain
	}

	return value, models.QualityGood
}

// validateTimestamp reports whether ts lies within skew of now in either
// direction (defaultClockSkew when skew is not positive); a reading for
// which it returns false is rejected.
func validateTimestamp(ts time.Time, now time.Time, skew time.Duration) bool {
	if skew <= 0 {
		skew = defaultClockSkew
	}

	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}

	return diff <= skew
}

func truncateTag(v string) string {
	if len(v) > maxTagValueLength {
		return v[:maxTagValueLength]
	}

	return v
}

func truncateString(v string) string {
	if len(v) > maxStringValueLength {
		return v[:maxStringValueLength]
	}

	return v
}

// truncateTags applies truncateTag to every tag value.
func truncateTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}

	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = truncateTag(v)
	}

	return out
}
