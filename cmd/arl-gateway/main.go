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

// Command arl-gateway serves the session, execute, restore, tools, and
// interactive-shell HTTP/WebSocket API described for the Gateway & Session
// Engine component, backed by a controller-runtime client against the same
// cluster the agent-sandbox-controller manages.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/agent-runtime/arl/controllers"
	"github.com/agent-runtime/arl/internal/config"
	"github.com/agent-runtime/arl/internal/gateway"
	"github.com/agent-runtime/arl/internal/metrics"
	"github.com/agent-runtime/arl/internal/sidecar"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "arl-gateway",
		Short: "HTTP/WebSocket gateway for creating sessions, executing steps, and restoring snapshots",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "Path to a gateway config YAML file")
	root.Flags().String("listen-address", "", "Address to serve the HTTP API on (overrides config file)")
	root.Flags().String("kubeconfig", "", "Path to kubeconfig; empty uses in-cluster config")
	root.Flags().String("default-namespace", "", "Namespace used when a request omits one")
	root.Flags().Int("sidecar-port", 0, "Port the sandbox sidecar listens on")
	root.Flags().Bool("otel-tracing", false, "Export request spans via OTLP gRPC")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.LoadGateway(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	restCfg, err := clientcmd.BuildConfigFromFlags("", cfg.KubeconfigPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The gateway serves its own HTTP API and Prometheus registry, so the
	// manager's built-in metrics/health servers are disabled; it exists only
	// to host the Task watch (the CRD-submitted counterpart of Execute).
	mgr, err := ctrl.NewManager(restCfg, ctrl.Options{
		Scheme:                 controllers.Scheme,
		Metrics:                metricsserver.Options{BindAddress: "0"},
		HealthProbeBindAddress: "0",
	})
	if err != nil {
		return err
	}
	k8sClient := mgr.GetClient()

	dialer := sidecar.NewDialer()
	if err := (&gateway.TaskReconciler{
		Client:      k8sClient,
		Dialer:      dialer,
		SidecarPort: cfg.SidecarPort,
	}).SetupWithManager(mgr); err != nil {
		return err
	}
	go func() {
		if err := mgr.Start(ctx); err != nil {
			sugar.Errorw("task watcher manager exited", "error", err)
		}
	}()

	var instrument metrics.Instrumenter
	if cfg.EnableOTelTracing {
		inst, shutdown, err := metrics.SetupOTel(ctx, "arl-gateway")
		if err != nil {
			return err
		}
		defer shutdown()
		instrument = inst
	} else {
		instrument = metrics.NewNoOp()
	}

	gw := gateway.New(k8sClient, dialer, gateway.Config{
		DefaultNamespace:     cfg.DefaultNamespace,
		DefaultIdleTimeout:   cfg.DefaultIdleTimeout,
		SandboxReadyTimeout:  cfg.SandboxReadyTimeout,
		MaxSessionCount:      cfg.MaxSessionCount,
		SidecarPort:          cfg.SidecarPort,
		MaxHistoryPerSession: cfg.MaxHistoryPerSession,
	}, instrument, sugar)

	go gw.Start(ctx)

	srv := &http.Server{Addr: cfg.ListenAddress, Handler: gw.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SandboxReadyTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	sugar.Infow("starting gateway", "address", cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
