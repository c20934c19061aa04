// Copyright 2025 The Kubernetes Authors.
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

package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
)

func basicPool() *arlv1alpha1.WarmPool {
	return &arlv1alpha1.WarmPool{
		ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "default"},
		Spec: arlv1alpha1.WarmPoolSpec{
			Replicas: 2,
			Image:    "busybox:1.35",
		},
	}
}

func TestBuildPodSetsLabelsAndContainers(t *testing.T) {
	pod, err := BuildPod(basicPool(), PodTemplateConfig{}, nil, "")
	require.NoError(t, err)

	assert.Equal(t, "p1", pod.Labels[PoolLabel])
	assert.Equal(t, StatusIdle, pod.Labels[StatusLabel])
	require.Len(t, pod.Spec.Containers, 2)
	assert.Equal(t, "executor", pod.Spec.Containers[0].Name)
	assert.Equal(t, "busybox:1.35", pod.Spec.Containers[0].Image)
	assert.Equal(t, "sidecar", pod.Spec.Containers[1].Name)
	assert.Equal(t, DefaultSidecarImage, pod.Spec.Containers[1].Image)
	assert.Nil(t, pod.Spec.Affinity)
}

func TestBuildPodDefaultsWorkspaceDir(t *testing.T) {
	pod, err := BuildPod(basicPool(), PodTemplateConfig{}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, defaultWorkspaceDir, pod.Spec.Containers[0].VolumeMounts[0].MountPath)
}

func TestBuildPodRejectsInvalidQuantity(t *testing.T) {
	pool := basicPool()
	pool.Spec.Resources = arlv1alpha1.ResourceRequirements{
		Requests: map[string]string{"cpu": "not-a-quantity"},
	}
	_, err := BuildPod(pool, PodTemplateConfig{}, nil, "")
	require.Error(t, err)
}

func TestBuildPodWithToolManifestAddsInitContainer(t *testing.T) {
	pod, err := BuildPod(basicPool(), PodTemplateConfig{}, nil, "p1-tools")
	require.NoError(t, err)
	require.Len(t, pod.Spec.InitContainers, 1)
	assert.Equal(t, "tool-init", pod.Spec.InitContainers[0].Name)
}

func TestBuildPodImageLocalityAffinity(t *testing.T) {
	pool := basicPool()
	weight := int32(50)
	pool.Spec.ImageLocality.Weight = weight
	pod, err := BuildPod(pool, PodTemplateConfig{}, []string{"node-a", "node-b"}, "")
	require.NoError(t, err)
	require.NotNil(t, pod.Spec.Affinity)
	require.NotNil(t, pod.Spec.Affinity.NodeAffinity)
	terms := pod.Spec.Affinity.NodeAffinity.PreferredDuringSchedulingIgnoredDuringExecution
	require.Len(t, terms, 1)
	assert.Equal(t, weight, terms[0].Weight)
	assert.Equal(t, []string{"node-a", "node-b"}, terms[0].Preference.MatchExpressions[0].Values)
}

func TestBuildPodImageLocalityDisabled(t *testing.T) {
	pool := basicPool()
	disabled := false
	pool.Spec.ImageLocality.Enabled = &disabled
	pod, err := BuildPod(pool, PodTemplateConfig{}, []string{"node-a"}, "")
	require.NoError(t, err)
	assert.Nil(t, pod.Spec.Affinity)
}

func TestBuildToolManifestConfigMapEmptyWhenNoTools(t *testing.T) {
	cm, err := BuildToolManifestConfigMap(basicPool(), "p1-tools")
	require.NoError(t, err)
	assert.Nil(t, cm)
}

func TestBuildToolManifestConfigMap(t *testing.T) {
	pool := basicPool()
	pool.Spec.Tools = []arlv1alpha1.InlineTool{
		{Name: "greet", Runtime: arlv1alpha1.ToolRuntimeBash, Entrypoint: "run.sh", Files: map[string]string{"run.sh": "echo hi"}},
	}
	cm, err := BuildToolManifestConfigMap(pool, "p1-tools")
	require.NoError(t, err)
	require.NotNil(t, cm)
	assert.Equal(t, "p1-tools", cm.Name)
	assert.Contains(t, cm.Data["tools.json"], "greet")
}
