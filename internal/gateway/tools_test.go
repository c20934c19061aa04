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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadToolsRegistryEmptyWhenUnprovisioned(t *testing.T) {
	gw, _ := newTestGateway(testPool("p1"))
	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default"})
	require.NoError(t, err)

	registry, err := gw.readToolsRegistry(context.Background(), sess)
	require.NoError(t, err)
	assert.Empty(t, registry.Tools)
}

func TestReadToolsRegistryParsesSeededJSON(t *testing.T) {
	gw, f := newTestGateway(testPool("p1"))
	f.SeedRegistry(`{"tools":[{"name":"echo-tool","runtime":"bash","entrypoint":"run.sh","contentHash":"abc"}]}`)

	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default"})
	require.NoError(t, err)

	registry, err := gw.readToolsRegistry(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, registry.Tools, 1)
	assert.Equal(t, "echo-tool", registry.Tools[0].Name)
}

func TestToolNameRegexRejectsPathTraversal(t *testing.T) {
	assert.False(t, toolNameRe.MatchString("../etc/passwd"))
	assert.False(t, toolNameRe.MatchString(""))
	assert.True(t, toolNameRe.MatchString("grep-files_v2.1"))
}

func TestCallToolPassesParametersOverStdinNotArgv(t *testing.T) {
	gw, f := newTestGateway(testPool("p1"))
	f.SeedRegistry(`{"tools":[{"name":"grep-files","runtime":"bash","entrypoint":"run.sh","contentHash":"abc"}]}`)

	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default"})
	require.NoError(t, err)

	params := map[string]interface{}{"pattern": "TODO", "path": "/workspace"}
	_, err = gw.callTool(context.Background(), sess, "grep-files", params)
	require.NoError(t, err)

	last := f.LastExecuteRequest()
	assert.Equal(t, []string{"bash", "/opt/arl/tools/grep-files/run.sh"}, last.Command)
	assert.Equal(t, "/opt/arl/tools/grep-files", last.WorkingDir)

	var gotParams map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(last.Stdin), &gotParams))
	assert.Equal(t, "TODO", gotParams["pattern"])
	assert.Equal(t, "/workspace", gotParams["path"])

	for _, arg := range last.Command {
		assert.NotContains(t, arg, "TODO", "tool parameters must not be passed as an argv token")
	}
}

func TestCallToolUnknownToolNotFound(t *testing.T) {
	gw, _ := newTestGateway(testPool("p1"))
	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default"})
	require.NoError(t, err)

	_, err = gw.callTool(context.Background(), sess, "missing-tool", nil)
	require.Error(t, err)
}
