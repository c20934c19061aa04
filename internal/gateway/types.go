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

import "time"

// SessionInfo is the client-facing view of a Session.
type SessionInfo struct {
	ID        string    `json:"id"`
	PoolRef   string    `json:"poolRef"`
	Namespace string    `json:"namespace"`
	PodName   string    `json:"podName"`
	PodIP     string    `json:"podIP"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateSessionRequest is the POST /v1/sessions body. Namespace defaults to
// the gateway's configured default namespace when omitted.
type CreateSessionRequest struct {
	PoolRef            string `json:"poolRef" validate:"required"`
	Namespace          string `json:"namespace,omitempty"`
	IdleTimeoutSeconds int32  `json:"idleTimeoutSeconds,omitempty"`
}

// StepRequest is one argv command in an ExecuteRequest.
type StepRequest struct {
	Name           string            `json:"name,omitempty"`
	Command        []string          `json:"command" validate:"required,min=1"`
	Env            map[string]string `json:"env,omitempty"`
	WorkDir        string            `json:"workDir,omitempty"`
	TimeoutSeconds int32             `json:"timeoutSeconds,omitempty"`
}

// ExecuteRequest is the POST /v1/sessions/{id}/execute body.
type ExecuteRequest struct {
	Steps   []StepRequest `json:"steps" validate:"required,min=1,dive"`
	TraceID string        `json:"traceID,omitempty"`
}

// StepOutput is the observed result of running one step.
type StepOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// StepResult is one entry in a session's history.
type StepResult struct {
	Index      int32       `json:"index"`
	Name       string      `json:"name,omitempty"`
	Request    StepRequest `json:"-"`
	Output     StepOutput  `json:"output"`
	SnapshotID string      `json:"snapshotId,omitempty"`
	DurationMS int64       `json:"durationMs"`
	Timestamp  time.Time   `json:"timestamp"`
}

// ExecuteResponse is the POST /v1/sessions/{id}/execute response.
type ExecuteResponse struct {
	SessionID       string       `json:"sessionID"`
	Results         []StepResult `json:"results"`
	TotalDurationMS int64        `json:"totalDurationMs"`
}

// RestoreRequest is the POST /v1/sessions/{id}/restore body.
type RestoreRequest struct {
	SnapshotID string `json:"snapshotID" validate:"required"`
}

// trajectoryLine is one JSONL record from GET /v1/sessions/{id}/trajectory.
type trajectoryLine struct {
	SessionID  string             `json:"session_id"`
	Step       int32              `json:"step"`
	Action     trajectoryAction   `json:"action"`
	Observation trajectoryObserve `json:"observation"`
	SnapshotID string             `json:"snapshot_id,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

type trajectoryAction struct {
	Command []string          `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
	WorkDir string            `json:"work_dir,omitempty"`
}

type trajectoryObserve struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// PoolInfo is the client-facing view of a WarmPool.
type PoolInfo struct {
	Name              string            `json:"name"`
	Namespace         string            `json:"namespace"`
	Image             string            `json:"image"`
	Replicas          int32             `json:"replicas"`
	ReadyReplicas     int32             `json:"readyReplicas"`
	AllocatedReplicas int32             `json:"allocatedReplicas"`
	PendingPulls      int32             `json:"pendingPulls"`
	WorkspaceDir      string            `json:"workspaceDir,omitempty"`
	Resources         map[string]string `json:"resources,omitempty"`
}

// CreatePoolRequest is the POST /v1/pools body. Namespace defaults to the
// gateway's configured default namespace when omitted.
type CreatePoolRequest struct {
	Name         string            `json:"name" validate:"required"`
	Namespace    string            `json:"namespace,omitempty"`
	Image        string            `json:"image" validate:"required"`
	Replicas     int32             `json:"replicas" validate:"min=0"`
	WorkspaceDir string            `json:"workspaceDir,omitempty"`
	Resources    map[string]string `json:"resources,omitempty"`
	Tools        []InlineTool      `json:"tools,omitempty"`
}

// InlineTool mirrors api/v1alpha1.InlineTool at the HTTP boundary.
type InlineTool struct {
	Name       string            `json:"name" validate:"required"`
	Runtime    string            `json:"runtime" validate:"required,oneof=bash python binary"`
	Entrypoint string            `json:"entrypoint" validate:"required"`
	Files      map[string]string `json:"files" validate:"required"`
}

// PatchPoolRequest is the PATCH /v1/pools/{name} body.
type PatchPoolRequest struct {
	Replicas  *int32            `json:"replicas,omitempty"`
	Resources map[string]string `json:"resources,omitempty"`
	Namespace string            `json:"namespace,omitempty"`
}

// ToolsRegistry mirrors the registry.json the toolinit container writes.
type ToolsRegistry struct {
	Tools []RegistryTool `json:"tools"`
}

// RegistryTool is one entry in ToolsRegistry.
type RegistryTool struct {
	Name        string `json:"name"`
	Runtime     string `json:"runtime"`
	Entrypoint  string `json:"entrypoint"`
	Description string `json:"description,omitempty"`
	ContentHash string `json:"contentHash"`
}

// CallToolRequest is the POST /v1/sessions/{id}/tools/{name} body.
type CallToolRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
}

// CallToolResponse is returned by a tool invocation.
type CallToolResponse struct {
	Raw      string                 `json:"raw"`
	Parsed   map[string]interface{} `json:"parsed,omitempty"`
	ExitCode int                    `json:"exitCode"`
	Stderr   string                 `json:"stderr"`
}
