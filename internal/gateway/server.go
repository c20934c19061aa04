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

// Package gateway implements the session engine and HTTP/WebSocket surface
// described for the Gateway & Session Engine component: session creation
// over Sandbox adoption, ordered step execution against the sidecar RPC
// contract, restore-by-replay, tool provisioning, and an interactive shell
// bridge.
package gateway

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"sigs.k8s.io/controller-runtime/pkg/client"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
	"github.com/agent-runtime/arl/internal/metrics"
	"github.com/agent-runtime/arl/internal/sidecar"
)

// Config holds the gateway's runtime-tunable knobs (see internal/config).
type Config struct {
	DefaultNamespace       string
	DefaultIdleTimeout     time.Duration
	SandboxReadyTimeout    time.Duration
	MaxSessionCount        int
	SidecarPort            int
	MaxHistoryPerSession   int
}

// DefaultConfig returns sane zero-config defaults for local development.
func DefaultConfig() Config {
	return Config{
		DefaultNamespace:     "default",
		DefaultIdleTimeout:   30 * time.Minute,
		SandboxReadyTimeout:  5 * time.Minute,
		MaxSessionCount:      0, // 0 = unbounded
		SidecarPort:          7719,
		MaxHistoryPerSession: 1000,
	}
}

// Gateway owns the session table and serves the HTTP/WebSocket API.
type Gateway struct {
	Client      client.Client
	Sessions    *SessionStore
	Dialer      sidecar.Dialer
	Config      Config
	Instrument  metrics.Instrumenter
	Log         *zap.SugaredLogger
	validate    *validator.Validate
	idleWatcher *idleWatcher
}

// New wires a Gateway; c is a controller-runtime client configured against
// the target cluster (same Scheme as the controller-manager).
func New(c client.Client, dialer sidecar.Dialer, cfg Config, instrument metrics.Instrumenter, log *zap.SugaredLogger) *Gateway {
	if instrument == nil {
		instrument = metrics.NewNoOp()
	}
	gw := &Gateway{
		Client:     c,
		Sessions:   NewSessionStore(),
		Dialer:     dialer,
		Config:     cfg,
		Instrument: instrument,
		Log:        log,
		validate:   validator.New(),
	}
	gw.idleWatcher = newIdleWatcher(gw)
	return gw
}

// Start launches background loops (idle reaping). Stop with ctx cancellation.
func (g *Gateway) Start(ctx context.Context) {
	g.idleWatcher.start(ctx)
}

func (g *Gateway) namespaceOrDefault(ns string) string {
	if ns != "" {
		return ns
	}
	return g.Config.DefaultNamespace
}

func (g *Gateway) getPool(ctx context.Context, namespace, name string) (*arlv1alpha1.WarmPool, error) {
	pool := &arlv1alpha1.WarmPool{}
	if err := g.Client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, pool); err != nil {
		return nil, err
	}
	return pool, nil
}
