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
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the gateway's full HTTP surface.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(g.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Traceparent"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Get("/", g.handleListSessions)
		r.Post("/", g.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", g.handleGetSession)
			r.Delete("/", g.handleDeleteSession)
			r.Post("/execute", g.handleExecute)
			r.Post("/restore", g.handleRestore)
			r.Get("/history", g.handleHistory)
			r.Get("/trajectory", g.handleTrajectory)
			r.Get("/shell", g.handleShell)
			r.Get("/tools", g.handleListTools)
			r.Post("/tools/{name}", g.handleCallTool)
		})
	})

	r.Route("/v1/pools", func(r chi.Router) {
		r.Post("/", g.handleCreatePool)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", g.handleGetPool)
			r.Patch("/", g.handlePatchPool)
			r.Delete("/", g.handleDeletePool)
		})
	})

	return r
}

func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		g.Log.Debugw("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "reqID", middleware.GetReqID(r.Context()))
	})
}
