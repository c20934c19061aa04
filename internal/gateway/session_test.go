// Copyright 2026 The Kubernetes Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendResultUnboundedWhenMaxHistoryZero(t *testing.T) {
	s := &Session{}
	for i := 0; i < 5; i++ {
		s.appendResult(StepResult{Name: "step"})
	}
	assert.Len(t, s.historySnapshot(), 5)
}

func TestAppendResultEvictsOldestFirst(t *testing.T) {
	s := &Session{maxHistory: 3}
	s.appendResult(StepResult{Name: "one"})
	s.appendResult(StepResult{Name: "two"})
	s.appendResult(StepResult{Name: "three"})
	s.appendResult(StepResult{Name: "four"})

	history := s.historySnapshot()
	require.Len(t, history, 3)
	assert.Equal(t, "two", history[0].Name)
	assert.Equal(t, "three", history[1].Name)
	assert.Equal(t, "four", history[2].Name)
}

func TestAppendResultNeverEvictsSnapshotBearingSteps(t *testing.T) {
	s := &Session{maxHistory: 2}
	s.appendResult(StepResult{Name: "keep-1", SnapshotID: "snap-1"})
	s.appendResult(StepResult{Name: "keep-2", SnapshotID: "snap-2"})
	s.appendResult(StepResult{Name: "extra"})

	history := s.historySnapshot()
	require.Len(t, history, 3, "snapshot-bearing steps push history past the cap rather than being evicted")
	assert.Equal(t, "keep-1", history[0].Name)
	assert.Equal(t, "keep-2", history[1].Name)
	assert.Equal(t, "extra", history[2].Name)
}
