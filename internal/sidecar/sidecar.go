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

// Package sidecar defines the RPC contract the gateway speaks to the
// sidecar container running alongside every sandbox pod, plus an HTTP/JSON
// client implementation and an in-memory fake for gateway unit tests.
package sidecar

import "context"

// ExecChunk is one chunk of an Execute RPC's output stream. The final chunk
// for a command has Done set and carries the exit code.
type ExecChunk struct {
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Done     bool   `json:"done"`
	ExitCode int    `json:"exitCode,omitempty"`
}

// ExecuteRequest describes one command invocation against the sidecar.
type ExecuteRequest struct {
	Command        []string          `json:"command"`
	Env            map[string]string `json:"env,omitempty"`
	WorkingDir     string            `json:"workingDir,omitempty"`
	TimeoutSeconds int32             `json:"timeoutSeconds,omitempty"`
	// Stdin is piped to the command's standard input once the process
	// starts, rather than appended as an argv token. Tool invocations use
	// this to pass their JSON parameters.
	Stdin string `json:"stdin,omitempty"`
}

// UpdateFilesResult is returned by UpdateFiles.
type UpdateFilesResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ShellMessage mirrors the tagged WebSocket protocol used by the gateway's
// interactive shell bridge, re-used verbatim on the sidecar side of the
// bidirectional stream.
type ShellMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`

	Signal   string `json:"signal,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

// ShellStream is a single bidirectional interactive-shell connection to a
// sidecar. Closing it terminates the remote shell process.
type ShellStream interface {
	Send(ctx context.Context, msg ShellMessage) error
	Recv(ctx context.Context) (ShellMessage, error)
	Close() error
}

// Client is the sidecar RPC contract consumed by the gateway. Every method
// targets one already-running sandbox pod.
type Client interface {
	// UpdateFiles writes (or patches) files under basePath in the sandbox
	// workspace.
	UpdateFiles(ctx context.Context, basePath string, files map[string]string, patch bool) (UpdateFilesResult, error)

	// Execute runs command to completion and returns the collected chunks
	// in order; the caller reduces them to a single stdout/stderr/exitCode.
	Execute(ctx context.Context, req ExecuteRequest) ([]ExecChunk, error)

	// Snapshot captures workspaceDir's current state and returns an opaque,
	// stable, collision-resistant identifier.
	Snapshot(ctx context.Context, workspaceDir string) (string, error)

	// Restore is present for a future native-snapshot mode; the gateway's
	// replay-based restore does not call it today.
	Restore(ctx context.Context, snapshotID string) error

	// SignalProcess delivers signal to pid inside the sandbox.
	SignalProcess(ctx context.Context, pid int, signal string) error

	// Reset clears the workspace, optionally preserving the given paths.
	Reset(ctx context.Context, preserveFiles []string) error

	// InteractiveShell opens a bidirectional PTY stream.
	InteractiveShell(ctx context.Context) (ShellStream, error)
}

// Dialer constructs a Client bound to one pod's sidecar address. Separated
// from Client so the gateway can hold one long-lived Dialer and mint a
// fresh Client per claimed pod.
type Dialer interface {
	Dial(podIP string, port int) Client
}
