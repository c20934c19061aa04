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
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
	"github.com/agent-runtime/arl/internal/gateway/arlerror"
)

// validatePoolAdmission refuses pool admission for the same mistakes
// arl-toolinit would otherwise only catch at pod-creation time: invalid
// resource quantities, duplicate tool names, and an entrypoint that isn't a
// key of the tool's own files.
func validatePoolAdmission(tools []InlineTool, resources map[string]string) error {
	for k, v := range resources {
		if _, err := resource.ParseQuantity(v); err != nil {
			return arlerror.Newf(arlerror.KindInvalidArgument, "invalid resource quantity %q=%q: %v", k, v, err)
		}
	}

	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if !toolNameRe.MatchString(t.Name) || len(t.Name) > 63 {
			return arlerror.Newf(arlerror.KindInvalidArgument, "tool name %q must match %s and be at most 63 characters", t.Name, toolNameRe.String())
		}
		if seen[t.Name] {
			return arlerror.Newf(arlerror.KindInvalidArgument, "duplicate tool name %q", t.Name)
		}
		seen[t.Name] = true

		if _, ok := t.Files[t.Entrypoint]; !ok {
			return arlerror.Newf(arlerror.KindInvalidArgument, "tool %q: entrypoint %q is not a key of files", t.Name, t.Entrypoint)
		}
	}
	return nil
}

func (g *Gateway) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}
	req.Namespace = g.namespaceOrDefault(req.Namespace)

	if err := validatePoolAdmission(req.Tools, req.Resources); err != nil {
		writeError(w, err)
		return
	}

	pool := &arlv1alpha1.WarmPool{
		ObjectMeta: metav1.ObjectMeta{Name: req.Name, Namespace: req.Namespace},
		Spec: arlv1alpha1.WarmPoolSpec{
			Replicas:     req.Replicas,
			Image:        req.Image,
			WorkspaceDir: req.WorkspaceDir,
			Tools:        toCRDTools(req.Tools),
		},
	}
	if req.Resources != nil {
		pool.Spec.Resources = arlv1alpha1.ResourceRequirements{Requests: req.Resources}
	}

	if err := g.Client.Create(r.Context(), pool); err != nil {
		if k8serrors.IsAlreadyExists(err) {
			writeError(w, arlerror.Newf(arlerror.KindAlreadyExists, "pool %q already exists", req.Name))
			return
		}
		writeError(w, arlerror.Wrap(arlerror.KindInternal, "create pool", err))
		return
	}
	writeJSON(w, http.StatusCreated, toPoolInfo(pool))
}

func (g *Gateway) handleGetPool(w http.ResponseWriter, r *http.Request) {
	ns := g.namespaceOrDefault(r.URL.Query().Get("namespace"))
	pool, err := g.getPool(r.Context(), ns, chi.URLParam(r, "name"))
	if err != nil {
		if k8serrors.IsNotFound(err) {
			writeError(w, arlerror.New(arlerror.KindNotFound, "pool not found"))
			return
		}
		writeError(w, arlerror.Wrap(arlerror.KindInternal, "get pool", err))
		return
	}
	writeJSON(w, http.StatusOK, toPoolInfo(pool))
}

func (g *Gateway) handlePatchPool(w http.ResponseWriter, r *http.Request) {
	var req PatchPoolRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}
	if err := validatePoolAdmission(nil, req.Resources); err != nil {
		writeError(w, err)
		return
	}
	ns := g.namespaceOrDefault(req.Namespace)
	name := chi.URLParam(r, "name")

	pool, err := g.getPool(r.Context(), ns, name)
	if err != nil {
		if k8serrors.IsNotFound(err) {
			writeError(w, arlerror.New(arlerror.KindNotFound, "pool not found"))
			return
		}
		writeError(w, arlerror.Wrap(arlerror.KindInternal, "get pool", err))
		return
	}

	if req.Replicas != nil {
		pool.Spec.Replicas = *req.Replicas
	}
	if req.Resources != nil {
		pool.Spec.Resources.Requests = req.Resources
	}

	if err := g.Client.Update(r.Context(), pool); err != nil {
		if k8serrors.IsConflict(err) {
			writeError(w, arlerror.Wrap(arlerror.KindConflict, "pool was modified concurrently, retry", err))
			return
		}
		writeError(w, arlerror.Wrap(arlerror.KindInternal, "update pool", err))
		return
	}
	writeJSON(w, http.StatusOK, toPoolInfo(pool))
}

func (g *Gateway) handleDeletePool(w http.ResponseWriter, r *http.Request) {
	ns := g.namespaceOrDefault(r.URL.Query().Get("namespace"))
	name := chi.URLParam(r, "name")
	pool := &arlv1alpha1.WarmPool{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns}}
	if err := g.Client.Delete(r.Context(), pool); err != nil {
		if k8serrors.IsNotFound(err) {
			writeError(w, arlerror.New(arlerror.KindNotFound, "pool not found"))
			return
		}
		writeError(w, arlerror.Wrap(arlerror.KindInternal, "delete pool", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toCRDTools(tools []InlineTool) []arlv1alpha1.InlineTool {
	out := make([]arlv1alpha1.InlineTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, arlv1alpha1.InlineTool{
			Name:       t.Name,
			Runtime:    arlv1alpha1.ToolRuntime(t.Runtime),
			Entrypoint: t.Entrypoint,
			Files:      t.Files,
		})
	}
	return out
}

func toPoolInfo(pool *arlv1alpha1.WarmPool) PoolInfo {
	return PoolInfo{
		Name:              pool.Name,
		Namespace:         pool.Namespace,
		Image:             pool.Spec.Image,
		Replicas:          pool.Spec.Replicas,
		ReadyReplicas:     pool.Status.ReadyReplicas,
		AllocatedReplicas: pool.Status.AllocatedReplicas,
		PendingPulls:      pool.Status.PendingPulls,
		WorkspaceDir:      pool.Spec.WorkspaceDir,
		Resources:         pool.Spec.Resources.Requests,
	}
}
