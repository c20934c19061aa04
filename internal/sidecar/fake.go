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

package sidecar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var (
	writeRedirectRe = regexp.MustCompile(`^echo\s+(.*?)\s*>\s*(\S+)$`)
	catRe           = regexp.MustCompile(`^cat\s+(\S+)$`)
)

// Fake is an in-memory sidecar implementation for gateway unit tests. It
// understands just enough shell syntax to exercise the gateway's step,
// snapshot and restore paths without a real pod: `echo ...`, `echo X > path`,
// `cat path`, and reading the tool registry written by arl-toolinit.
type Fake struct {
	mu             sync.Mutex
	workspace      map[string]string
	registry       string // pre-seeded registry.json content, if any
	snapshotErr    bool   // when true, Snapshot always fails (for testing S4)
	lastExecuteReq ExecuteRequest
}

// NewFake returns an empty in-memory workspace.
func NewFake() *Fake {
	return &Fake{workspace: map[string]string{}}
}

// Workspace returns a copy of the fake's in-memory files keyed by their
// resolved path, for tests that need to assert on what was written and where.
func (f *Fake) Workspace() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.workspace))
	for k, v := range f.workspace {
		out[k] = v
	}
	return out
}

// LastExecuteRequest returns the most recent ExecuteRequest this fake saw,
// for tests asserting on fields (WorkingDir, Stdin, Env) the command/output
// emulation doesn't otherwise surface.
func (f *Fake) LastExecuteRequest() ExecuteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastExecuteReq
}

// SeedRegistry installs the content a `cat /opt/arl/tools/registry.json`
// step should observe.
func (f *Fake) SeedRegistry(json string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry = json
}

// FailNextSnapshots makes every subsequent Snapshot call fail, simulating a
// sidecar that cannot capture workspace state.
func (f *Fake) FailNextSnapshots(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotErr = fail
}

type fakeDialer struct {
	client *Fake
}

// NewFakeDialer always returns the same *Fake client regardless of pod
// address, matching a single-sandbox test fixture.
func NewFakeDialer(f *Fake) Dialer {
	return &fakeDialer{client: f}
}

func (d *fakeDialer) Dial(_ string, _ int) Client { return d.client }

func (f *Fake) UpdateFiles(_ context.Context, basePath string, files map[string]string, _ bool) (UpdateFilesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, content := range files {
		f.workspace[joinPath(basePath, name)] = content
	}
	return UpdateFilesResult{Success: true}, nil
}

func (f *Fake) Execute(_ context.Context, req ExecuteRequest) ([]ExecChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastExecuteReq = req

	if len(req.Command) == 0 {
		return []ExecChunk{{Done: true, ExitCode: 1, Stderr: "empty command"}}, nil
	}

	script := req.Command[0]
	if len(req.Command) >= 3 && req.Command[0] == "sh" && req.Command[1] == "-c" {
		script = req.Command[2]
	} else {
		script = strings.Join(req.Command, " ")
	}
	script = strings.TrimSpace(script)

	if req.Command[0] == "cat" && len(req.Command) == 2 {
		return []ExecChunk{f.catChunk(resolvePath(req.WorkingDir, req.Command[1]))}, nil
	}
	if m := catRe.FindStringSubmatch(script); m != nil {
		return []ExecChunk{f.catChunk(resolvePath(req.WorkingDir, m[1]))}, nil
	}
	if m := writeRedirectRe.FindStringSubmatch(script); m != nil {
		text := strings.Trim(m[1], `"'`)
		f.workspace[resolvePath(req.WorkingDir, m[2])] = text + "\n"
		return []ExecChunk{{Done: true, ExitCode: 0}}, nil
	}
	if req.Command[0] == "echo" {
		out := strings.Join(req.Command[1:], " ") + "\n"
		return []ExecChunk{{Done: true, ExitCode: 0, Stdout: out}}, nil
	}

	return []ExecChunk{{Done: true, ExitCode: 127, Stderr: fmt.Sprintf("fake sidecar: unsupported command %q", script)}}, nil
}

func (f *Fake) catChunk(path string) ExecChunk {
	if path == "/opt/arl/tools/registry.json" && f.registry != "" {
		return ExecChunk{Done: true, ExitCode: 0, Stdout: f.registry}
	}
	content, ok := f.workspace[path]
	if !ok {
		return ExecChunk{Done: true, ExitCode: 1, Stderr: fmt.Sprintf("cat: %s: No such file or directory", path)}
	}
	return ExecChunk{Done: true, ExitCode: 0, Stdout: content}
}

// Snapshot content-hashes the sorted workspace for deterministic,
// collision-resistant IDs (P2).
func (f *Fake) Snapshot(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr {
		return "", fmt.Errorf("fake sidecar: snapshot unavailable")
	}

	keys := make([]string, 0, len(f.workspace))
	for k := range f.workspace {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(f.workspace[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (f *Fake) Restore(_ context.Context, _ string) error { return nil }

func (f *Fake) SignalProcess(_ context.Context, _ int, _ string) error { return nil }

func (f *Fake) Reset(_ context.Context, preserveFiles []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	keep := map[string]bool{}
	for _, p := range preserveFiles {
		keep[p] = true
	}
	for k := range f.workspace {
		if !keep[k] {
			delete(f.workspace, k)
		}
	}
	return nil
}

func (f *Fake) InteractiveShell(_ context.Context) (ShellStream, error) {
	return nil, fmt.Errorf("fake sidecar: interactive shell not supported")
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(name, "/")
}

// resolvePath anchors a relative script path (the argument to `echo >` or
// `cat`) under the request's working directory, the same way a real shell
// would resolve it. Absolute paths pass through unchanged.
func resolvePath(workingDir, path string) string {
	if strings.HasPrefix(path, "/") || workingDir == "" {
		return path
	}
	return joinPath(workingDir, path)
}
