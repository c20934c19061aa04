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
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/agent-runtime/arl/internal/gateway/arlerror"
	"github.com/agent-runtime/arl/internal/sidecar"
)

const toolsRegistryPath = "/opt/arl/tools/registry.json"

var toolNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

func (g *Gateway) handleListTools(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, arlerror.New(arlerror.KindNotFound, "session not found"))
		return
	}

	registry, err := g.readToolsRegistry(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registry)
}

func (g *Gateway) readToolsRegistry(ctx context.Context, sess *Session) (ToolsRegistry, error) {
	chunks, err := sess.sidecarClient.Execute(ctx, sidecar.ExecuteRequest{Command: []string{"cat", toolsRegistryPath}})
	if err != nil {
		return ToolsRegistry{}, arlerror.Wrap(arlerror.KindExecutionFailed, "read tool registry", err)
	}
	out := reduceChunks(chunks)
	if out.ExitCode != 0 {
		// No tools were ever provisioned for this pool; an empty registry
		// rather than an error keeps List idempotent for tool-less pools.
		return ToolsRegistry{}, nil
	}
	var registry ToolsRegistry
	if err := json.Unmarshal([]byte(out.Stdout), &registry); err != nil {
		return ToolsRegistry{}, arlerror.Wrap(arlerror.KindInternal, "parse tool registry", err)
	}
	return registry, nil
}

func (g *Gateway) handleCallTool(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, arlerror.New(arlerror.KindNotFound, "session not found"))
		return
	}
	toolName := chi.URLParam(r, "name")
	if !toolNameRe.MatchString(toolName) {
		writeError(w, arlerror.Newf(arlerror.KindInvalidArgument, "invalid tool name %q", toolName))
		return
	}

	var req CallToolRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := g.callTool(r.Context(), sess, toolName, req.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// callTool invokes a registered tool's entrypoint with its parameters piped
// as JSON over standard input, matching how the tool authoring side expects
// to receive them (a `read` off stdin, not an argv token). Passing untrusted
// parameters as an argv token would also leak them into any process listing
// on the pod.
func (g *Gateway) callTool(ctx context.Context, sess *Session, toolName string, parameters map[string]interface{}) (CallToolResponse, error) {
	registry, err := g.readToolsRegistry(ctx, sess)
	if err != nil {
		return CallToolResponse{}, err
	}
	var tool *RegistryTool
	for i := range registry.Tools {
		if registry.Tools[i].Name == toolName {
			tool = &registry.Tools[i]
			break
		}
	}
	if tool == nil {
		return CallToolResponse{}, arlerror.Newf(arlerror.KindNotFound, "tool %q is not registered for this pool", toolName)
	}

	paramsJSON, err := json.Marshal(parameters)
	if err != nil {
		return CallToolResponse{}, arlerror.Wrap(arlerror.KindInvalidArgument, "marshal tool parameters", err)
	}

	toolDir := fmt.Sprintf("/opt/arl/tools/%s", toolName)
	var interpreter string
	switch tool.Runtime {
	case "bash":
		interpreter = "bash"
	case "python":
		interpreter = "python3"
	default:
		interpreter = "" // binary: entrypoint is directly executable
	}

	var command []string
	if interpreter != "" {
		command = []string{interpreter, toolDir + "/" + tool.Entrypoint}
	} else {
		command = []string{toolDir + "/" + tool.Entrypoint}
	}

	sess.executionMutex.Lock()
	chunks, err := sess.sidecarClient.Execute(ctx, sidecar.ExecuteRequest{
		Command:    command,
		WorkingDir: toolDir,
		Stdin:      string(paramsJSON),
	})
	sess.executionMutex.Unlock()
	if err != nil {
		return CallToolResponse{}, arlerror.Wrap(arlerror.KindExecutionFailed, fmt.Sprintf("invoke tool %q", toolName), err)
	}
	out := reduceChunks(chunks)

	resp := CallToolResponse{Raw: out.Stdout, ExitCode: out.ExitCode, Stderr: out.Stderr}
	var parsed map[string]interface{}
	if json.Unmarshal([]byte(out.Stdout), &parsed) == nil {
		resp.Parsed = parsed
	}
	return resp, nil
}
