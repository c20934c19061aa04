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
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/rand"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
)

const (
	// PoolLabel names the WarmPool a pod belongs to.
	PoolLabel = "arl.infra.io/pool"
	// StatusLabel tracks whether a pod is idle, allocated, or terminating.
	StatusLabel = "arl.infra.io/status"
	// SessionLabel is set to the owning Sandbox's name once a pod is claimed.
	SessionLabel = "arl.infra.io/session"

	StatusIdle        = "idle"
	StatusAllocated   = "allocated"
	StatusTerminating = "terminating"

	// WorkspaceVolumeName names the shared workspace volume between executor and sidecar.
	WorkspaceVolumeName = "workspace"
	// ToolsVolumeName names the shared tools volume between the init container, executor, and sidecar.
	ToolsVolumeName = "tools"

	toolsMountPath     = "/opt/arl/tools"
	toolManifestName   = "tools.json"
	toolManifestMount  = "/opt/arl/tool-manifest"
	defaultWorkspaceDir = "/workspace"

	sidecarPortName = "sidecar-rpc"
	// SidecarPort is the well-known TCP port the sidecar's RPC surface listens on.
	SidecarPort = 7719

	// DefaultSidecarImage is used when a WarmPool does not override it.
	DefaultSidecarImage = "ghcr.io/agent-runtime/arl-sidecar:latest"
	// DefaultToolInitImage runs the tool-materialisation init container.
	DefaultToolInitImage = "ghcr.io/agent-runtime/arl-toolinit:latest"
)

// PodTemplateConfig carries the cluster-wide defaults the pod template
// builder needs beyond what is declared on the WarmPool itself.
type PodTemplateConfig struct {
	ToolInitImage string
}

func (c PodTemplateConfig) toolInitImage() string {
	if c.ToolInitImage != "" {
		return c.ToolInitImage
	}
	return DefaultToolInitImage
}

// toolManifestEntry is the JSON shape written into the tools ConfigMap and
// read back by the tool-init binary (cmd/arl-toolinit).
type toolManifestEntry struct {
	Name        string            `json:"name"`
	Runtime     string            `json:"runtime"`
	Entrypoint  string            `json:"entrypoint"`
	Description string            `json:"description,omitempty"`
	Timeout     string            `json:"timeout,omitempty"`
	Files       map[string]string `json:"files"`
}

// BuildToolManifestConfigMap renders the pool's inline tools into a ConfigMap
// consumed by the tool-init container. Returns nil if the pool declares no
// tools.
func BuildToolManifestConfigMap(pool *arlv1alpha1.WarmPool, name string) (*corev1.ConfigMap, error) {
	if len(pool.Spec.Tools) == 0 {
		return nil, nil
	}

	entries := make([]toolManifestEntry, 0, len(pool.Spec.Tools))
	for _, t := range pool.Spec.Tools {
		entries = append(entries, toolManifestEntry{
			Name:        t.Name,
			Runtime:     string(t.Runtime),
			Entrypoint:  t.Entrypoint,
			Description: t.Description,
			Timeout:     t.Timeout,
			Files:       t.Files,
		})
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal tool manifest: %w", err)
	}

	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: pool.Namespace,
			Labels: map[string]string{
				PoolLabel: pool.Name,
			},
		},
		Data: map[string]string{
			toolManifestName: string(raw),
		},
	}, nil
}

// BuildPod renders a pod spec for one idle replica of the given WarmPool.
// preferredNodes is the ordered top-k node list from the image-locality hint
// (4.B); it may be nil/empty when locality is disabled or no nodes are
// schedulable yet.
func BuildPod(pool *arlv1alpha1.WarmPool, cfg PodTemplateConfig, preferredNodes []string, toolManifestCM string) (*corev1.Pod, error) {
	workspaceDir := pool.Spec.WorkspaceDir
	if workspaceDir == "" {
		workspaceDir = defaultWorkspaceDir
	}

	resources, err := buildResourceRequirements(pool.Spec.Resources)
	if err != nil {
		return nil, fmt.Errorf("pool %s/%s: %w", pool.Namespace, pool.Name, err)
	}

	podName := fmt.Sprintf("%s-%s", pool.Name, rand.String(5))

	executor := corev1.Container{
		Name:      "executor",
		Image:     pool.Spec.Image,
		Resources: resources,
		VolumeMounts: []corev1.VolumeMount{
			{Name: WorkspaceVolumeName, MountPath: workspaceDir},
			{Name: ToolsVolumeName, MountPath: toolsMountPath, ReadOnly: true},
		},
		// Executor stays alive so the sidecar can exec/attach into its namespace;
		// the actual user commands are run by the sidecar via Execute RPC.
		Command: []string{"sleep", "infinity"},
	}

	sidecarImage := pool.Spec.SidecarImage
	if sidecarImage == "" {
		sidecarImage = DefaultSidecarImage
	}
	sidecar := corev1.Container{
		Name:  "sidecar",
		Image: sidecarImage,
		Ports: []corev1.ContainerPort{
			{Name: sidecarPortName, ContainerPort: SidecarPort},
		},
		Env: []corev1.EnvVar{
			{Name: "ARL_WORKSPACE_DIR", Value: workspaceDir},
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: WorkspaceVolumeName, MountPath: workspaceDir},
			{Name: ToolsVolumeName, MountPath: toolsMountPath},
		},
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromInt(SidecarPort)},
			},
			InitialDelaySeconds: 1,
			PeriodSeconds:       2,
		},
	}

	volumes := []corev1.Volume{
		{
			Name:         WorkspaceVolumeName,
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		},
		{
			Name:         ToolsVolumeName,
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		},
	}

	var initContainers []corev1.Container
	if toolManifestCM != "" {
		volumes = append(volumes, corev1.Volume{
			Name: "tool-manifest",
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: toolManifestCM},
				},
			},
		})
		initContainers = append(initContainers, corev1.Container{
			Name:  "tool-init",
			Image: cfg.toolInitImage(),
			Args:  []string{"-manifest", toolManifestMount + "/" + toolManifestName, "-out", toolsMountPath},
			VolumeMounts: []corev1.VolumeMount{
				{Name: "tool-manifest", MountPath: toolManifestMount, ReadOnly: true},
				{Name: ToolsVolumeName, MountPath: toolsMountPath},
			},
		})
	}

	affinity := buildImageLocalityAffinity(pool, preferredNodes)

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: pool.Namespace,
			Labels: map[string]string{
				PoolLabel:   pool.Name,
				StatusLabel: StatusIdle,
			},
		},
		Spec: corev1.PodSpec{
			InitContainers: initContainers,
			Containers:     []corev1.Container{executor, sidecar},
			Volumes:        volumes,
			Affinity:       affinity,
			RestartPolicy:  corev1.RestartPolicyNever,
		},
	}
	return pod, nil
}

func buildResourceRequirements(r arlv1alpha1.ResourceRequirements) (corev1.ResourceRequirements, error) {
	out := corev1.ResourceRequirements{}
	if len(r.Requests) > 0 {
		out.Requests = corev1.ResourceList{}
		for k, v := range r.Requests {
			q, err := resource.ParseQuantity(v)
			if err != nil {
				return out, fmt.Errorf("invalid request quantity %q=%q: %w", k, v, err)
			}
			out.Requests[corev1.ResourceName(k)] = q
		}
	}
	if len(r.Limits) > 0 {
		out.Limits = corev1.ResourceList{}
		for k, v := range r.Limits {
			q, err := resource.ParseQuantity(v)
			if err != nil {
				return out, fmt.Errorf("invalid limit quantity %q=%q: %w", k, v, err)
			}
			out.Limits[corev1.ResourceName(k)] = q
		}
	}
	return out, nil
}

func buildImageLocalityAffinity(pool *arlv1alpha1.WarmPool, preferredNodes []string) *corev1.Affinity {
	enabled := pool.Spec.ImageLocality.Enabled == nil || *pool.Spec.ImageLocality.Enabled
	if !enabled || len(preferredNodes) == 0 {
		return nil
	}

	weight := pool.Spec.ImageLocality.Weight
	if weight <= 0 {
		weight = 80
	}

	return &corev1.Affinity{
		NodeAffinity: &corev1.NodeAffinity{
			PreferredDuringSchedulingIgnoredDuringExecution: []corev1.PreferredSchedulingTerm{
				{
					Weight: weight,
					Preference: corev1.NodeSelectorTerm{
						MatchExpressions: []corev1.NodeSelectorRequirement{
							{
								Key:      corev1.LabelHostname,
								Operator: corev1.NodeSelectorOpIn,
								Values:   preferredNodes,
							},
						},
					},
				},
			},
		},
	}
}
