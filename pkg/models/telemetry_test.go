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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualityImproves(t *testing.T) {
	assert.True(t, QualityGood.Improves(QualityBad))
	assert.True(t, QualityGood.Improves(QualityUncertain))
	assert.True(t, QualityGood.Improves(QualityGood))
	assert.False(t, QualityBad.Improves(QualityGood))
	assert.False(t, QualityUncertain.Improves(QualityGood))
	assert.True(t, QualityUncertain.Improves(QualityMissing))
	assert.True(t, QualityMissing.Improves(QualityUncertain))
}

func TestCommandStatusIsTerminal(t *testing.T) {
	assert.False(t, CommandPending.IsTerminal())
	assert.False(t, CommandClaimed.IsTerminal())
	assert.False(t, CommandSent.IsTerminal())
	assert.True(t, CommandCompleted.IsTerminal())
	assert.True(t, CommandFailed.IsTerminal())
	assert.True(t, CommandCancelled.IsTerminal())
	assert.True(t, CommandExpired.IsTerminal())
}

func TestDefaultsAccessors(t *testing.T) {
	assert.Equal(t, 5, DefaultPriority())
	assert.Equal(t, 1, ImmediateCommandPriority())
	assert.Equal(t, 3, DefaultMaxRetries())
}
