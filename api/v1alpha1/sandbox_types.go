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

// SandboxSpec defines the desired state of a Sandbox.
type SandboxSpec struct {
	// PoolRef names the WarmPool this sandbox is adopted from.
	PoolRef string `json:"poolRef"`

	// KeepAlive, when true, exempts this sandbox from idle reaping; it is
	// still subject to MaxLifetimeSeconds.
	// +optional
	KeepAlive bool `json:"keepAlive,omitempty"`

	// IdleTimeoutSeconds is how long the sandbox may go without activity
	// (measured from Status.LastActivityAt) before the Sandbox controller
	// deletes it. Zero disables idle reaping; the gateway fills in its
	// configured default when a session request leaves it unset.
	// +optional
	IdleTimeoutSeconds int32 `json:"idleTimeoutSeconds,omitempty"`

	// MaxLifetimeSeconds bounds the sandbox's total lifetime regardless of
	// activity. Zero means unbounded.
	// +optional
	MaxLifetimeSeconds int32 `json:"maxLifetimeSeconds,omitempty"`
}

// SandboxPhase enumerates the Sandbox state machine.
type SandboxPhase string

const (
	SandboxPhasePending    SandboxPhase = "Pending"
	SandboxPhaseReady      SandboxPhase = "Ready"
	SandboxPhaseFailed     SandboxPhase = "Failed"
	SandboxPhaseTerminated SandboxPhase = "Terminated"
)

// SandboxConditionType enumerates Sandbox condition types.
type SandboxConditionType string

const (
	SandboxConditionReady SandboxConditionType = "Ready"
)

// SandboxStatus is the observed state of a Sandbox.
type SandboxStatus struct {
	// Phase is the current lifecycle phase of the sandbox.
	// +optional
	Phase SandboxPhase `json:"phase,omitempty"`

	// PodName is the name of the pod adopted for this sandbox, once claimed.
	// +optional
	PodName string `json:"podName,omitempty"`

	// PodIP is the adopted pod's IP, populated once the pod is Running.
	// +optional
	PodIP string `json:"podIP,omitempty"`

	// AdoptedAt records when the pod was claimed for this sandbox.
	// +optional
	AdoptedAt *metav1.Time `json:"adoptedAt,omitempty"`

	// LastActivityAt records the last time a step/execute request touched
	// this sandbox; it drives idle-timeout reaping.
	// +optional
	LastActivityAt *metav1.Time `json:"lastActivityAt,omitempty"`

	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=sbx
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Pool",type=string,JSONPath=`.spec.poolRef`
// +kubebuilder:printcolumn:name="PodIP",type=string,JSONPath=`.status.podIP`
// Sandbox is the Schema for the sandboxes API.
type Sandbox struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SandboxSpec   `json:"spec"`
	Status SandboxStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// SandboxList contains a list of Sandbox.
type SandboxList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Sandbox `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Sandbox{}, &SandboxList{})
}
