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
//
// Task is the CRD-submitted counterpart of the gateway's HTTP Execute
// endpoint, kept for historic clients that drive sandboxes purely through
// the Kubernetes API instead of the gateway's REST surface.
// The Sandbox controller does not execute Task steps itself; the gateway
// watches Task objects addressed at sandboxes it owns and relays their
// steps through the same sidecar RPC path used for HTTP-submitted sessions.

// StepRequest describes a single command to run inside a sandbox.
type StepRequest struct {
	// Name labels the step for display and trajectory export.
	Name string `json:"name"`

	// Command is the argv to execute.
	Command []string `json:"command"`

	// Env is merged over the sandbox's base environment for this step only.
	// +optional
	Env map[string]string `json:"env,omitempty"`

	// WorkDir overrides the sandbox's default working directory for this step.
	// +optional
	WorkDir string `json:"workDir,omitempty"`

	// TimeoutSeconds bounds the step's execution; must be greater than zero
	// when set.
	// +optional
	TimeoutSeconds int32 `json:"timeoutSeconds,omitempty"`
}

// StepOutput carries a step's captured stdio and exit status.
type StepOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int32  `json:"exitCode"`
}

// StepResult is the outcome of one executed StepRequest.
type StepResult struct {
	// Index is the zero-based position of this step within the task/session.
	Index int32 `json:"index"`

	Name   string     `json:"name"`
	Output StepOutput `json:"output"`

	// SnapshotID identifies the filesystem snapshot taken after this step,
	// if any.
	// +optional
	SnapshotID string `json:"snapshotId,omitempty"`

	// DurationMS is the wall-clock time the step took to execute.
	DurationMS int64 `json:"durationMs"`

	Timestamp metav1.Time `json:"timestamp"`
}

// TaskSpec defines the desired execution for a Task.
type TaskSpec struct {
	// SandboxRef names the Sandbox this task's steps run against.
	SandboxRef string `json:"sandboxRef"`

	// Steps are executed in order; execution stops at the first failing
	// step unless ContinueOnError is set.
	Steps []StepRequest `json:"steps"`

	// TraceID records a caller-supplied trace identifier on the Task. The
	// gateway's TaskReconciler does not read it and starts no span for it.
	// +optional
	TraceID string `json:"traceID,omitempty"`

	// ContinueOnError runs all steps regardless of earlier failures.
	// +optional
	ContinueOnError bool `json:"continueOnError,omitempty"`
}

// TaskPhase enumerates the Task execution lifecycle.
type TaskPhase string

const (
	TaskPhasePending   TaskPhase = "Pending"
	TaskPhaseRunning   TaskPhase = "Running"
	TaskPhaseSucceeded TaskPhase = "Succeeded"
	TaskPhaseFailed    TaskPhase = "Failed"
)

// TaskStatus is the observed state of a Task.
type TaskStatus struct {
	// +optional
	Phase TaskPhase `json:"phase,omitempty"`

	// +optional
	Results []StepResult `json:"results,omitempty"`

	// +optional
	StartedAt *metav1.Time `json:"startedAt,omitempty"`

	// +optional
	CompletedAt *metav1.Time `json:"completedAt,omitempty"`

	// Error holds the terminal failure message, if Phase is Failed.
	// +optional
	Error string `json:"error,omitempty"`

	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Sandbox",type=string,JSONPath=`.spec.sandboxRef`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// Task is the Schema for the tasks API.
type Task struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   TaskSpec   `json:"spec"`
	Status TaskStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// TaskList contains a list of Task.
type TaskList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Task `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Task{}, &TaskList{})
}
