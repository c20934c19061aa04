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

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunMaterialisesToolsAndRegistry(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "tools.json")
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	manifest := []toolManifestEntry{
		{
			Name:       "greet",
			Runtime:    "bash",
			Entrypoint: "run.sh",
			Files: map[string]string{
				"run.sh": "#!/bin/sh\necho hi\n",
			},
		},
	}
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifestPath, raw, 0o644))

	log := zap.NewNop().Sugar()
	require.NoError(t, run(manifestPath, outDir, log))

	entrypoint := filepath.Join(outDir, "greet", "run.sh")
	info, err := os.Stat(entrypoint)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o111, "entrypoint must be executable")

	regRaw, err := os.ReadFile(filepath.Join(outDir, "registry.json"))
	require.NoError(t, err)
	var reg registry
	require.NoError(t, json.Unmarshal(regRaw, &reg))
	require.Len(t, reg.Tools, 1)
	require.Equal(t, "greet", reg.Tools[0].Name)
	require.NotEmpty(t, reg.Tools[0].ContentHash)
}

func TestRunRejectsEntrypointNotInFiles(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "tools.json")
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	manifest := []toolManifestEntry{
		{
			Name:       "broken",
			Runtime:    "bash",
			Entrypoint: "missing.sh",
			Files:      map[string]string{"other.sh": "echo no\n"},
		},
	}
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifestPath, raw, 0o644))

	log := zap.NewNop().Sugar()
	err = run(manifestPath, outDir, log)
	require.Error(t, err)
}

func TestRunRejectsDuplicateToolNames(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "tools.json")
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	manifest := []toolManifestEntry{
		{Name: "dup", Runtime: "bash", Entrypoint: "a.sh", Files: map[string]string{"a.sh": "1"}},
		{Name: "dup", Runtime: "bash", Entrypoint: "a.sh", Files: map[string]string{"a.sh": "2"}},
	}
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifestPath, raw, 0o644))

	log := zap.NewNop().Sugar()
	err = run(manifestPath, outDir, log)
	require.Error(t, err)
}
