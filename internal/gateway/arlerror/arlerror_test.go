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

package arlerror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeByKind(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, New(KindNotFound, "x").StatusCode())
	assert.Equal(t, http.StatusConflict, New(KindAlreadyExists, "x").StatusCode())
	assert.Equal(t, http.StatusBadRequest, New(KindSnapshotMissing, "x").StatusCode())
	assert.Equal(t, http.StatusInternalServerError, New(KindInternal, "x").StatusCode())
}

func TestStatusCodeUnwrappedErrorIsInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom")))
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindTimeout, "waited too long", cause)
	assert.ErrorIs(t, err, cause)
}

func TestToResponseHidesUnknownErrors(t *testing.T) {
	resp := ToResponse(errors.New("leaky internal detail"))
	assert.Equal(t, KindInternal, resp.Kind)
	assert.NotContains(t, resp.Error, "leaky internal detail")
}

func TestWithConditionsAttaches(t *testing.T) {
	err := New(KindPoolNotReady, "pool not ready").WithConditions([]string{"Ready=False (ImagePullBackOff)"})
	assert.Equal(t, []string{"Ready=False (ImagePullBackOff)"}, err.Conditions)
}
