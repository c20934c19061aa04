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

// Command arl-toolinit is the init container entrypoint that materialises a
// WarmPool's inline tools onto the shared tools volume before the executor
// and sidecar containers start.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

type toolManifestEntry struct {
	Name        string            `json:"name"`
	Runtime     string            `json:"runtime"`
	Entrypoint  string            `json:"entrypoint"`
	Description string            `json:"description,omitempty"`
	Timeout     string            `json:"timeout,omitempty"`
	Files       map[string]string `json:"files"`
}

type registryTool struct {
	Name        string `json:"name"`
	Runtime     string `json:"runtime"`
	Entrypoint  string `json:"entrypoint"`
	Description string `json:"description,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
	ContentHash string `json:"contentHash"`
}

type registry struct {
	Tools []registryTool `json:"tools"`
}

func main() {
	manifestPath := flag.String("manifest", "", "path to the tools.json manifest mounted from the pool's ConfigMap")
	outDir := flag.String("out", "/opt/arl/tools", "directory to materialise tools into")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	if *manifestPath == "" {
		log.Fatal("-manifest is required")
	}

	if err := run(*manifestPath, *outDir, log); err != nil {
		log.Fatalw("tool-init failed", "error", err)
	}
}

func run(manifestPath, outDir string, log *zap.SugaredLogger) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var tools []toolManifestEntry
	if err := json.Unmarshal(raw, &tools); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	seen := make(map[string]bool, len(tools))
	reg := registry{Tools: make([]registryTool, 0, len(tools))}

	for _, t := range tools {
		if seen[t.Name] {
			return fmt.Errorf("duplicate tool name %q", t.Name)
		}
		seen[t.Name] = true

		if _, ok := t.Files[t.Entrypoint]; !ok {
			return fmt.Errorf("tool %q: entrypoint %q is not a key of files", t.Name, t.Entrypoint)
		}

		toolDir := filepath.Join(outDir, t.Name)
		if err := os.MkdirAll(toolDir, 0o755); err != nil {
			return fmt.Errorf("tool %q: mkdir: %w", t.Name, err)
		}

		hash, err := writeToolFiles(toolDir, t)
		if err != nil {
			return fmt.Errorf("tool %q: %w", t.Name, err)
		}

		log.Infow("materialised tool", "tool", t.Name, "files", len(t.Files), "contentHash", hash)
		reg.Tools = append(reg.Tools, registryTool{
			Name:        t.Name,
			Runtime:     t.Runtime,
			Entrypoint:  t.Entrypoint,
			Description: t.Description,
			Timeout:     t.Timeout,
			ContentHash: hash,
		})
	}

	return writeRegistryAtomic(outDir, reg)
}

// writeToolFiles writes every file of a tool, marks its entrypoint
// executable, and returns a SHA-256 content hash over the tool's files
// (sorted by filename, so the hash is independent of map iteration order).
// Clients use this hash to detect tool-definition drift between pool
// generations.
func writeToolFiles(toolDir string, t toolManifestEntry) (string, error) {
	names := make([]string, 0, len(t.Files))
	for name := range t.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		content := t.Files[name]
		path := filepath.Join(toolDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("mkdir for %q: %w", name, err)
		}

		mode := os.FileMode(0o644)
		if name == t.Entrypoint {
			mode = 0o755
		}
		if err := os.WriteFile(path, []byte(content), mode); err != nil {
			return "", fmt.Errorf("write %q: %w", name, err)
		}

		fmt.Fprintf(h, "%s\x00%s\x00", name, content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeRegistryAtomic writes registry.json to a temp file in outDir and
// renames it into place, so concurrent readers never observe a partial file.
func writeRegistryAtomic(outDir string, reg registry) error {
	raw, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	tmp, err := os.CreateTemp(outDir, ".registry.json.tmp-*")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry file: %w", err)
	}

	return os.Rename(tmpPath, filepath.Join(outDir, "registry.json"))
}
