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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NOTE: json tags are required. Any new fields you add must have json tags for the fields to be serialized.

// ToolRuntime is the interpreter used to run an InlineTool's entrypoint.
type ToolRuntime string

const (
	ToolRuntimeBash   ToolRuntime = "bash"
	ToolRuntimePython ToolRuntime = "python"
	ToolRuntimeBinary ToolRuntime = "binary"
)

// InlineTool declares a tool materialised on pod initialisation under
// /opt/arl/tools/<name>/ and listed in the pool's registry.json.
type InlineTool struct {
	// Name must match [A-Za-z0-9][A-Za-z0-9_.-]{0,62}.
	Name string `json:"name"`

	// Runtime selects the interpreter used to run Entrypoint.
	// +kubebuilder:validation:Enum=bash;python;binary
	Runtime ToolRuntime `json:"runtime"`

	// Entrypoint must be a key of Files.
	Entrypoint string `json:"entrypoint"`

	// Description is a human-readable summary surfaced in the tool registry.
	// +optional
	Description string `json:"description,omitempty"`

	// Timeout bounds a single invocation of this tool (Go duration string).
	// +optional
	Timeout string `json:"timeout,omitempty"`

	// Parameters is a JSON Schema object describing the tool's call parameters.
	// +optional
	Parameters *RawJSON `json:"parameters,omitempty"`

	// Files maps filename to file content; all files are written under
	// /opt/arl/tools/<name>/ by the pool's init container.
	Files map[string]string `json:"files,omitempty"`
}

// RawJSON holds an arbitrary JSON document (tool parameter schemas, step env
// payloads, …) without forcing a Go struct shape on API consumers.
// +kubebuilder:pruning:PreserveUnknownFields
// +kubebuilder:validation:Type=object
type RawJSON struct {
	Raw []byte `json:"-"`
}

// ImageLocality configures HRW-based soft node affinity for pods created from
// this pool's template.
type ImageLocality struct {
	// Enabled turns on the preferred-node-affinity hint. Defaults to true.
	// +optional
	Enabled *bool `json:"enabled,omitempty"`

	// SpreadFactor trades locality for spread; k = max(1, ceil(replicas*SpreadFactor)).
	// +optional
	// +kubebuilder:default=1
	SpreadFactor float64 `json:"spreadFactor,omitempty"`

	// Weight is the soft-affinity term's weight (1-100).
	// +optional
	// +kubebuilder:default=80
	Weight int32 `json:"weight,omitempty"`
}

// ResourceRequirements mirrors a subset of corev1.ResourceRequirements using
// plain quantity strings for requests/limits.
type ResourceRequirements struct {
	// +optional
	Requests map[string]string `json:"requests,omitempty"`
	// +optional
	Limits map[string]string `json:"limits,omitempty"`
}

// WarmPoolSpec defines the desired state of a WarmPool.
type WarmPoolSpec struct {
	// Replicas is the desired number of idle pods in the pool.
	// +kubebuilder:validation:Minimum=0
	Replicas int32 `json:"replicas"`

	// Image is the executor container image.
	Image string `json:"image"`

	// WorkspaceDir is the mount path of the workspace volume. Defaults to /workspace.
	// +optional
	WorkspaceDir string `json:"workspaceDir,omitempty"`

	// Resources are the executor container's resource requests/limits.
	// +optional
	Resources ResourceRequirements `json:"resources,omitempty"`

	// ImageLocality configures scheduling-hint behavior for this pool.
	// +optional
	ImageLocality ImageLocality `json:"imageLocality,omitempty"`

	// Tools are inline tool definitions materialised into every pod of this pool.
	// +optional
	Tools []InlineTool `json:"tools,omitempty"`

	// MaxSurge is stored on the pool but the WarmPool controller does not
	// read it; scale-up and scale-down are not bounded by it.
	// +optional
	// +kubebuilder:default=0
	MaxSurge int32 `json:"maxSurge,omitempty"`

	// SidecarImage overrides the default sidecar image. Optional, defaults to
	// a cluster-wide configured image.
	// +optional
	SidecarImage string `json:"sidecarImage,omitempty"`
}

// PoolConditionType enumerates WarmPool condition types.
type PoolConditionType string

const (
	PoolConditionReady       PoolConditionType = "Ready"
	PoolConditionPodsReady   PoolConditionType = "PodsReady"
	PoolConditionPodsFailing PoolConditionType = "PodsFailing"
	PoolConditionImagePull   PoolConditionType = "ImagePull"
)

// WarmPoolStatus is the observed state of a WarmPool.
type WarmPoolStatus struct {
	// +optional
	Replicas int32 `json:"replicas,omitempty"`
	// +optional
	ReadyReplicas int32 `json:"readyReplicas,omitempty"`
	// +optional
	AllocatedReplicas int32 `json:"allocatedReplicas,omitempty"`
	// PendingPulls counts pods currently stuck pulling their image.
	// +optional
	PendingPulls int32 `json:"pendingPulls,omitempty"`
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=wp
// +kubebuilder:printcolumn:name="Desired",type=integer,JSONPath=`.spec.replicas`
// +kubebuilder:printcolumn:name="Ready",type=integer,JSONPath=`.status.readyReplicas`
// +kubebuilder:printcolumn:name="Allocated",type=integer,JSONPath=`.status.allocatedReplicas`
// WarmPool is the Schema for the warmpools API.
type WarmPool struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   WarmPoolSpec   `json:"spec"`
	Status WarmPoolStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// WarmPoolList contains a list of WarmPool.
type WarmPoolList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []WarmPool `json:"items"`
}

func init() {
	SchemeBuilder.Register(&WarmPool{}, &WarmPoolList{})
}
