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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
	"github.com/agent-runtime/arl/internal/gateway/arlerror"
	"github.com/agent-runtime/arl/internal/metrics"
	"github.com/agent-runtime/arl/internal/sidecar"
)

func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}
	req.Namespace = g.namespaceOrDefault(req.Namespace)
	if req.IdleTimeoutSeconds == 0 {
		req.IdleTimeoutSeconds = int32(g.Config.DefaultIdleTimeout.Seconds())
	}

	ctx, span := g.Instrument.StartSpanFromHTTP(r.Context(), r.Header, "gateway.CreateSession")
	defer span()

	start := time.Now()
	sess, err := g.createSession(ctx, req)
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusFailure
		writeError(w, err)
	}
	RecordSessionCreateLatency(start, req.PoolRef, status)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusCreated, sess.info())
}

// defaultWorkspaceDir mirrors WarmPoolSpec.WorkspaceDir's documented default,
// used whenever a pool leaves the field unset.
const defaultWorkspaceDir = "/workspace"

func (g *Gateway) createSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	pool, err := g.getPool(ctx, req.Namespace, req.PoolRef)
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return nil, arlerror.Newf(arlerror.KindNotFound, "pool %q not found", req.PoolRef)
		}
		return nil, arlerror.Wrap(arlerror.KindInternal, "look up pool", err)
	}

	sandboxName := "sess-" + uuid.New().String()[:12]
	sbx := &arlv1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{Name: sandboxName, Namespace: req.Namespace},
		Spec: arlv1alpha1.SandboxSpec{
			PoolRef:            req.PoolRef,
			IdleTimeoutSeconds: req.IdleTimeoutSeconds,
		},
	}
	if err := g.Client.Create(ctx, sbx); err != nil {
		return nil, arlerror.Wrap(arlerror.KindInternal, "create sandbox", err)
	}

	ready, err := g.awaitSandboxReady(ctx, req.Namespace, sandboxName)
	if err != nil {
		return nil, err
	}

	workspaceDir := pool.Spec.WorkspaceDir
	if workspaceDir == "" {
		workspaceDir = defaultWorkspaceDir
	}

	sess := &Session{
		id:                 uuid.New().String(),
		poolRef:            req.PoolRef,
		namespace:          req.Namespace,
		workspaceDir:       workspaceDir,
		sandboxName:        sandboxName,
		podName:            ready.Status.PodName,
		podIP:              ready.Status.PodIP,
		createdAt:          time.Now(),
		lastActivityAt:     time.Now(),
		idleTimeoutSeconds: req.IdleTimeoutSeconds,
		maxHistory:         g.Config.MaxHistoryPerSession,
		sidecarClient:      g.Dialer.Dial(ready.Status.PodIP, g.Config.SidecarPort),
	}
	g.Sessions.Insert(sess)
	return sess, nil
}

// awaitSandboxReady polls the Sandbox until Ready/Failed or the configured
// deadline, per 4.E.1 step 2.
func (g *Gateway) awaitSandboxReady(ctx context.Context, namespace, name string) (*arlv1alpha1.Sandbox, error) {
	deadline := time.Now().Add(g.Config.SandboxReadyTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		sbx := &arlv1alpha1.Sandbox{}
		if err := g.Client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, sbx); err != nil {
			return nil, arlerror.Wrap(arlerror.KindInternal, "poll sandbox", err)
		}
		switch sbx.Status.Phase {
		case arlv1alpha1.SandboxPhaseReady:
			return sbx, nil
		case arlv1alpha1.SandboxPhaseFailed:
			var conditions []string
			for _, c := range sbx.Status.Conditions {
				conditions = append(conditions, fmt.Sprintf("%s=%s (%s)", c.Type, c.Status, c.Reason))
			}
			return nil, arlerror.New(arlerror.KindSandboxNotReady, "sandbox failed to become ready").WithConditions(conditions)
		}
		if time.Now().After(deadline) {
			return nil, arlerror.New(arlerror.KindTimeout, "timed out waiting for sandbox to become ready")
		}
		select {
		case <-ctx.Done():
			return nil, arlerror.Wrap(arlerror.KindTimeout, "context cancelled awaiting sandbox", ctx.Err())
		case <-ticker.C:
		}
	}
}

// handleListSessions is an operational-visibility addition beyond the core
// session endpoints: list (optionally by pool) every session currently held
// in the gateway's table.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	poolRef := r.URL.Query().Get("poolRef")
	var infos []SessionInfo
	for _, sess := range g.Sessions.All() {
		info := sess.info()
		if poolRef != "" && info.PoolRef != poolRef {
			continue
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, arlerror.New(arlerror.KindNotFound, "session not found"))
		return
	}
	writeJSON(w, http.StatusOK, sess.info())
}

func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := g.Sessions.Get(id)
	if !ok {
		writeError(w, arlerror.New(arlerror.KindNotFound, "session not found"))
		return
	}
	g.deleteSession(r.Context(), sess)
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) deleteSession(ctx context.Context, sess *Session) {
	g.Sessions.Delete(sess.id)
	info := sess.info()
	sbx := &arlv1alpha1.Sandbox{ObjectMeta: metav1.ObjectMeta{Name: sess.sandboxName, Namespace: info.Namespace}}
	if err := g.Client.Delete(ctx, sbx); err != nil && !k8serrors.IsNotFound(err) {
		g.Log.Warnw("failed to delete sandbox for terminated session", "session", sess.id, "sandbox", sess.sandboxName, "error", err)
	}
}

func (g *Gateway) handleExecute(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, arlerror.New(arlerror.KindNotFound, "session not found"))
		return
	}
	var req ExecuteRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, span := g.Instrument.StartSpanFromHTTP(r.Context(), r.Header, "gateway.Execute")
	defer span()

	sess.executionMutex.Lock()
	defer sess.executionMutex.Unlock()

	start := time.Now()
	results, execErr := g.runSteps(ctx, sess, req.Steps)
	sess.touch(time.Now())

	// Record the activity on the Sandbox too, since the Sandbox controller's
	// idle reaping measures from Status.LastActivityAt.
	sbx := &arlv1alpha1.Sandbox{}
	if err := g.Client.Get(ctx, client.ObjectKey{Namespace: sess.info().Namespace, Name: sess.currentSandboxName()}, sbx); err != nil {
		g.Log.Debugw("could not read sandbox to record activity", "session", sess.id, "error", err)
	} else {
		now := metav1.Now()
		sbx.Status.LastActivityAt = &now
		if err := g.Client.Status().Update(ctx, sbx); err != nil {
			g.Log.Debugw("could not record sandbox activity", "session", sess.id, "error", err)
		}
	}

	resp := ExecuteResponse{
		SessionID:       sess.id,
		Results:         results,
		TotalDurationMS: time.Since(start).Milliseconds(),
	}
	if execErr != nil {
		// Partial results are still useful to the caller (4.E.2).
		b, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(arlerror.StatusCode(execErr))
		w.Write(b)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// runSteps executes each step in order, appending to history as it goes so
// a mid-batch sidecar failure still leaves completed steps recorded (P1).
func (g *Gateway) runSteps(ctx context.Context, sess *Session, steps []StepRequest) ([]StepResult, error) {
	var results []StepResult
	baseIndex := int32(len(sess.historySnapshot()))

	workspaceDir := sess.currentWorkspaceDir()
	for i, step := range steps {
		stepStart := time.Now()
		workDir := step.WorkDir
		if workDir == "" {
			workDir = workspaceDir
		}

		chunks, err := sess.sidecarClient.Execute(ctx, sidecar.ExecuteRequest{
			Command:        step.Command,
			Env:            step.Env,
			WorkingDir:     workDir,
			TimeoutSeconds: step.TimeoutSeconds,
		})
		if err != nil {
			return results, arlerror.Wrap(arlerror.KindExecutionFailed, fmt.Sprintf("step %d (%s) RPC failed", i, step.Name), err)
		}
		out := reduceChunks(chunks)

		snapshotID, snapErr := sess.sidecarClient.Snapshot(ctx, workspaceDir)
		if snapErr != nil {
			g.Log.Infow("snapshot failed after step, continuing", "session", sess.id, "step", i, "error", snapErr)
			snapshotID = ""
		}

		result := StepResult{
			Index:      baseIndex + int32(i),
			Name:       step.Name,
			Request:    step,
			Output:     out,
			SnapshotID: snapshotID,
			DurationMS: time.Since(stepStart).Milliseconds(),
			Timestamp:  time.Now(),
		}
		sess.appendResult(result)
		results = append(results, result)
		RecordStepDuration(result.DurationMS)
	}
	return results, nil
}

func (g *Gateway) handleRestore(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, arlerror.New(arlerror.KindNotFound, "session not found"))
		return
	}
	var req RestoreRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}

	sess.executionMutex.Lock()
	defer sess.executionMutex.Unlock()

	if err := g.restore(r.Context(), sess, req.SnapshotID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, arlerror.New(arlerror.KindNotFound, "session not found"))
		return
	}
	writeJSON(w, http.StatusOK, sess.historySnapshot())
}

func (g *Gateway) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, arlerror.New(arlerror.KindNotFound, "session not found"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	enc := json.NewEncoder(w)
	for _, res := range sess.historySnapshot() {
		line := trajectoryLine{
			SessionID: sess.id,
			Step:      res.Index,
			Action: trajectoryAction{
				Command: res.Request.Command,
				Env:     res.Request.Env,
				WorkDir: res.Request.WorkDir,
			},
			Observation: trajectoryObserve{
				Stdout:   res.Output.Stdout,
				Stderr:   res.Output.Stderr,
				ExitCode: res.Output.ExitCode,
			},
			SnapshotID: res.SnapshotID,
			Timestamp:  res.Timestamp,
		}
		_ = enc.Encode(line)
	}
}

func reduceChunks(chunks []sidecar.ExecChunk) StepOutput {
	var out StepOutput
	for _, c := range chunks {
		out.Stdout += c.Stdout
		out.Stderr += c.Stderr
		if c.Done {
			out.ExitCode = c.ExitCode
		}
	}
	return out
}
