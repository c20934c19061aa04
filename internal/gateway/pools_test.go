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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
	"github.com/agent-runtime/arl/internal/gateway/arlerror"
)

func TestGetPoolNotFound(t *testing.T) {
	gw, _ := newTestGateway()
	_, err := gw.getPool(context.Background(), "default", "nope")
	require.Error(t, err)
	assert.True(t, k8serrors.IsNotFound(err))
}

func TestToPoolInfoMapsStatus(t *testing.T) {
	pool := testPool("p1")
	pool.Status = arlv1alpha1.WarmPoolStatus{ReadyReplicas: 3, AllocatedReplicas: 1, PendingPulls: 2}
	info := toPoolInfo(pool)
	assert.Equal(t, int32(3), info.ReadyReplicas)
	assert.Equal(t, int32(1), info.AllocatedReplicas)
	assert.Equal(t, int32(2), info.PendingPulls)
}

func TestToCRDToolsMapsFields(t *testing.T) {
	tools := toCRDTools([]InlineTool{{
		Name:       "grep-files",
		Runtime:    "bash",
		Entrypoint: "run.sh",
		Files:      map[string]string{"run.sh": "#!/bin/bash\necho hi"},
	}})
	require.Len(t, tools, 1)
	assert.Equal(t, arlv1alpha1.ToolRuntimeBash, tools[0].Runtime)
	assert.Equal(t, "run.sh", tools[0].Entrypoint)
}

func validTool() InlineTool {
	return InlineTool{
		Name:       "grep-files",
		Runtime:    "bash",
		Entrypoint: "run.sh",
		Files:      map[string]string{"run.sh": "#!/bin/bash\necho hi"},
	}
}

func TestValidatePoolAdmissionAcceptsValidTools(t *testing.T) {
	assert.NoError(t, validatePoolAdmission([]InlineTool{validTool()}, map[string]string{"cpu": "500m"}))
}

func TestValidatePoolAdmissionRejectsInvalidQuantity(t *testing.T) {
	err := validatePoolAdmission(nil, map[string]string{"cpu": "not-a-quantity"})
	require.Error(t, err)
	assert.Equal(t, arlerror.KindInvalidArgument, err.(*arlerror.Error).Kind)
}

func TestValidatePoolAdmissionRejectsDuplicateToolNames(t *testing.T) {
	dup := validTool()
	err := validatePoolAdmission([]InlineTool{validTool(), dup}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}

func TestValidatePoolAdmissionRejectsEntrypointNotInFiles(t *testing.T) {
	bad := validTool()
	bad.Entrypoint = "missing.sh"
	err := validatePoolAdmission([]InlineTool{bad}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a key of files")
}

func TestValidatePoolAdmissionRejectsBadToolName(t *testing.T) {
	bad := validTool()
	bad.Name = "../etc/passwd"
	err := validatePoolAdmission([]InlineTool{bad}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool name")
}
