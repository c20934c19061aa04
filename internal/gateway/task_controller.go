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
	"time"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
	"github.com/agent-runtime/arl/internal/sidecar"
)

// TaskReconciler is the CRD-submitted counterpart of handleExecute: it
// watches Task objects, relays their Steps through the sidecar RPC path
// against the Sandbox they name, and records StepResults on Task.Status for
// historic clients that drive sandboxes purely through the Kubernetes API.
// The Sandbox controller itself never looks at Tasks; only the gateway does.
type TaskReconciler struct {
	client.Client
	Dialer      sidecar.Dialer
	SidecarPort int
}

const taskConditionComplete = "Complete"

// +kubebuilder:rbac:groups=arl.infra.io,resources=tasks,verbs=get;list;watch
// +kubebuilder:rbac:groups=arl.infra.io,resources=tasks/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=arl.infra.io,resources=sandboxes,verbs=get;list;watch
func (r *TaskReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	task := &arlv1alpha1.Task{}
	if err := r.Get(ctx, req.NamespacedName, task); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	if task.Status.Phase == arlv1alpha1.TaskPhaseSucceeded || task.Status.Phase == arlv1alpha1.TaskPhaseFailed {
		return ctrl.Result{}, nil
	}

	sbx := &arlv1alpha1.Sandbox{}
	if err := r.Get(ctx, client.ObjectKey{Namespace: task.Namespace, Name: task.Spec.SandboxRef}, sbx); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}
	if sbx.Status.Phase != arlv1alpha1.SandboxPhaseReady {
		// Wait for the Sandbox controller to finish adopting a pod before
		// this task can run. Only Tasks are watched, so re-check after a
		// short requeue.
		return ctrl.Result{RequeueAfter: 2 * time.Second}, nil
	}

	pool := &arlv1alpha1.WarmPool{}
	if err := r.Get(ctx, client.ObjectKey{Namespace: task.Namespace, Name: sbx.Spec.PoolRef}, pool); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}
	workspaceDir := pool.Spec.WorkspaceDir
	if workspaceDir == "" {
		workspaceDir = defaultWorkspaceDir
	}

	now := metav1.Now()
	if task.Status.Phase == "" || task.Status.Phase == arlv1alpha1.TaskPhasePending {
		task.Status.Phase = arlv1alpha1.TaskPhaseRunning
		task.Status.StartedAt = &now
		if err := r.Status().Update(ctx, task); err != nil {
			return ctrl.Result{}, err
		}
	}

	sidecarClient := r.Dialer.Dial(sbx.Status.PodIP, r.SidecarPort)

	var results []arlv1alpha1.StepResult
	var failed bool
	for i, step := range task.Spec.Steps {
		if failed && !task.Spec.ContinueOnError {
			break
		}
		stepStart := time.Now()
		workDir := step.WorkDir
		if workDir == "" {
			workDir = workspaceDir
		}
		chunks, err := sidecarClient.Execute(ctx, sidecar.ExecuteRequest{
			Command:        step.Command,
			Env:            step.Env,
			WorkingDir:     workDir,
			TimeoutSeconds: step.TimeoutSeconds,
		})
		out := reduceChunks(chunks)
		if err != nil {
			failed = true
			logger.Error(err, "task step RPC failed", "task", task.Name, "step", i)
			out.ExitCode = -1
		} else if out.ExitCode != 0 {
			failed = true
		}
		snapshotID, _ := sidecarClient.Snapshot(ctx, workspaceDir)
		durationMS := time.Since(stepStart).Milliseconds()
		RecordStepDuration(durationMS)

		results = append(results, arlv1alpha1.StepResult{
			Index:      int32(i),
			Name:       step.Name,
			Output:     arlv1alpha1.StepOutput{Stdout: out.Stdout, Stderr: out.Stderr, ExitCode: int32(out.ExitCode)},
			SnapshotID: snapshotID,
			DurationMS: durationMS,
			Timestamp:  metav1.Now(),
		})
	}

	task.Status.Results = results
	completed := metav1.Now()
	task.Status.CompletedAt = &completed
	if failed {
		task.Status.Phase = arlv1alpha1.TaskPhaseFailed
		task.Status.Error = "one or more steps failed"
	} else {
		task.Status.Phase = arlv1alpha1.TaskPhaseSucceeded
	}
	meta.SetStatusCondition(&task.Status.Conditions, metav1.Condition{
		Type:    taskConditionComplete,
		Status:  metav1.ConditionTrue,
		Reason:  string(task.Status.Phase),
		Message: "task finished executing its steps",
	})

	return ctrl.Result{}, r.Status().Update(ctx, task)
}

func (r *TaskReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&arlv1alpha1.Task{}).
		Complete(r)
}
