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

// Package config loads the gateway's YAML configuration file and overlays
// command-line flags on top of it, following the layered
// file-then-flags convention used across the example repos' CLIs.
package config

import (
	"os"
	"time"

	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"
)

// Gateway holds every knob the arl-gateway binary reads at startup.
type Gateway struct {
	ListenAddress        string        `json:"listenAddress"`
	KubeconfigPath       string        `json:"kubeconfigPath"`
	DefaultNamespace     string        `json:"defaultNamespace"`
	DefaultIdleTimeout   time.Duration `json:"defaultIdleTimeout"`
	SandboxReadyTimeout  time.Duration `json:"sandboxReadyTimeout"`
	MaxSessionCount      int           `json:"maxSessionCount"`
	SidecarPort          int           `json:"sidecarPort"`
	MaxHistoryPerSession int           `json:"maxHistoryPerSession"`
	EnableOTelTracing    bool          `json:"enableOTelTracing"`
}

// DefaultGateway mirrors gateway.DefaultConfig for the standalone binary's
// zero-config path.
func DefaultGateway() Gateway {
	return Gateway{
		ListenAddress:        ":8090",
		DefaultNamespace:     "default",
		DefaultIdleTimeout:   30 * time.Minute,
		SandboxReadyTimeout:  5 * time.Minute,
		MaxSessionCount:      0,
		SidecarPort:          7719,
		MaxHistoryPerSession: 1000,
	}
}

// LoadGateway reads path (if non-empty and present) as YAML over the
// defaults, then lets flags (already parsed into fs) win over both.
func LoadGateway(path string, fs *pflag.FlagSet) (Gateway, error) {
	cfg := DefaultGateway()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if fs == nil {
		return cfg, nil
	}
	if fs.Changed("listen-address") {
		cfg.ListenAddress, _ = fs.GetString("listen-address")
	}
	if fs.Changed("kubeconfig") {
		cfg.KubeconfigPath, _ = fs.GetString("kubeconfig")
	}
	if fs.Changed("default-namespace") {
		cfg.DefaultNamespace, _ = fs.GetString("default-namespace")
	}
	if fs.Changed("sidecar-port") {
		cfg.SidecarPort, _ = fs.GetInt("sidecar-port")
	}
	if fs.Changed("otel-tracing") {
		cfg.EnableOTelTracing, _ = fs.GetBool("otel-tracing")
	}
	return cfg, nil
}
