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

	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
	"github.com/agent-runtime/arl/internal/gateway/arlerror"
	"github.com/agent-runtime/arl/internal/sidecar"
)

// restore is NOT a snapshot checkout: the gateway holds no filesystem
// content of its own, so restoring to a snapshot means allocating a fresh
// Sandbox and replaying every step recorded up to and including the one
// that produced snapshotID. Steps after that point are dropped from
// history. The caller must hold sess.executionMutex.
func (g *Gateway) restore(ctx context.Context, sess *Session, snapshotID string) error {
	history := sess.historySnapshot()

	targetIdx := -1
	for i, r := range history {
		if r.SnapshotID == snapshotID {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		return arlerror.New(arlerror.KindSnapshotMissing, "no step in this session's history produced that snapshot id")
	}

	info := sess.info()
	oldSandboxName := sess.currentSandboxName()

	newSandboxName := "sess-" + sess.id[:8] + "-r" + snapshotID[:min(8, len(snapshotID))]
	sbx := &arlv1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{Name: newSandboxName, Namespace: info.Namespace},
		Spec: arlv1alpha1.SandboxSpec{
			PoolRef:            sess.poolRef,
			IdleTimeoutSeconds: sess.idleTimeoutSeconds,
		},
	}
	if err := g.Client.Create(ctx, sbx); err != nil && !k8serrors.IsAlreadyExists(err) {
		return arlerror.Wrap(arlerror.KindInternal, "create replacement sandbox", err)
	}

	ready, err := g.awaitSandboxReady(ctx, info.Namespace, newSandboxName)
	if err != nil {
		return err
	}
	newClient := g.Dialer.Dial(ready.Status.PodIP, g.Config.SidecarPort)

	replayed, err := g.replaySteps(ctx, newClient, history[:targetIdx+1], sess.currentWorkspaceDir())
	if err != nil {
		return arlerror.Wrap(arlerror.KindExecutionFailed, "replay steps onto restored sandbox", err)
	}

	sess.swapSandbox(newSandboxName, ready.Status.PodName, ready.Status.PodIP, newClient, replayed)

	if oldSandboxName != "" && oldSandboxName != newSandboxName {
		oldSbx := &arlv1alpha1.Sandbox{ObjectMeta: metav1.ObjectMeta{Name: oldSandboxName, Namespace: info.Namespace}}
		if err := g.Client.Delete(ctx, oldSbx); err != nil && !k8serrors.IsNotFound(err) {
			g.Log.Warnw("failed to delete superseded sandbox after restore", "session", sess.id, "sandbox", oldSandboxName, "error", err)
		}
	}

	return nil
}

// replaySteps re-issues each historical step's original request against a
// freshly adopted sandbox, in order, producing a new history with fresh
// snapshot ids (the old snapshot ids belonged to the sandbox that is gone).
func (g *Gateway) replaySteps(ctx context.Context, c sidecar.Client, steps []StepResult, workspaceDir string) ([]StepResult, error) {
	out := make([]StepResult, 0, len(steps))
	for _, prior := range steps {
		workDir := prior.Request.WorkDir
		if workDir == "" {
			workDir = workspaceDir
		}
		chunks, err := c.Execute(ctx, sidecar.ExecuteRequest{
			Command:        prior.Request.Command,
			Env:            prior.Request.Env,
			WorkingDir:     workDir,
			TimeoutSeconds: prior.Request.TimeoutSeconds,
		})
		if err != nil {
			return out, err
		}
		snapshotID, _ := c.Snapshot(ctx, workspaceDir)
		out = append(out, StepResult{
			Index:      prior.Index,
			Name:       prior.Name,
			Request:    prior.Request,
			Output:     reduceChunks(chunks),
			SnapshotID: snapshotID,
			Timestamp:  prior.Timestamp,
		})
	}
	return out, nil
}
