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

package controllers

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
	"github.com/agent-runtime/arl/internal/metrics"
)

// MaxAdoptionRetries bounds the compare-and-set retry loop when claiming an
// idle pod under concurrent Sandbox reconciles.
const MaxAdoptionRetries = 5

// sandboxFinalizer ensures the adopted pod is torn down before the Sandbox
// object itself is removed from the API server.
const sandboxFinalizer = "arl.infra.io/sandbox-pod-cleanup"

// SandboxReconciler reconciles Sandbox objects: adopts an idle pod from the
// referenced WarmPool, tracks phase, and enforces idle/max-lifetime reaping.
type SandboxReconciler struct {
	client.Client
	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func (r *SandboxReconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// +kubebuilder:rbac:groups=arl.infra.io,resources=sandboxes,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=arl.infra.io,resources=sandboxes/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=arl.infra.io,resources=warmpools,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;update;patch;delete

func (r *SandboxReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	sbx := &arlv1alpha1.Sandbox{}
	if err := r.Get(ctx, req.NamespacedName, sbx); err != nil {
		if k8serrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !sbx.DeletionTimestamp.IsZero() {
		return r.reconcileDeletion(ctx, sbx)
	}

	if !controllerutil.ContainsFinalizer(sbx, sandboxFinalizer) {
		controllerutil.AddFinalizer(sbx, sandboxFinalizer)
		if err := r.Update(ctx, sbx); err != nil {
			return ctrl.Result{}, err
		}
	}

	switch sbx.Status.Phase {
	case "":
		return r.reconcileAdoption(ctx, sbx)
	case arlv1alpha1.SandboxPhasePending:
		return r.reconcilePending(ctx, sbx)
	case arlv1alpha1.SandboxPhaseReady:
		return r.reconcileReady(ctx, sbx)
	default:
		logger.V(1).Info("sandbox in terminal phase, nothing to do", "phase", sbx.Status.Phase)
		return ctrl.Result{}, nil
	}
}

// reconcileAdoption validates the referenced pool exists, then falls into
// the same claim path as a re-queued Pending sandbox.
func (r *SandboxReconciler) reconcileAdoption(ctx context.Context, sbx *arlv1alpha1.Sandbox) (ctrl.Result, error) {
	pool := &arlv1alpha1.WarmPool{}
	if err := r.Get(ctx, client.ObjectKey{Namespace: sbx.Namespace, Name: sbx.Spec.PoolRef}, pool); err != nil {
		if k8serrors.IsNotFound(err) {
			return r.failSandbox(ctx, sbx, "PoolNotFound", fmt.Sprintf("warmpool %q not found", sbx.Spec.PoolRef))
		}
		return ctrl.Result{}, err
	}

	sbx.Status.Phase = arlv1alpha1.SandboxPhasePending
	if err := r.Status().Update(ctx, sbx); err != nil {
		return ctrl.Result{}, err
	}
	return r.reconcilePending(ctx, sbx)
}

// reconcilePending attempts to claim an idle pod via compare-and-set label
// update. On success it records the pod name; on no idle pod it requeues.
func (r *SandboxReconciler) reconcilePending(ctx context.Context, sbx *arlv1alpha1.Sandbox) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	if sbx.Status.PodName != "" {
		return r.checkAdoptedPodReady(ctx, sbx)
	}

	for attempt := 0; attempt < MaxAdoptionRetries; attempt++ {
		podList := &corev1.PodList{}
		if err := r.List(ctx, podList, client.InNamespace(sbx.Namespace), client.MatchingLabelsSelector{
			Selector: labels.SelectorFromSet(labels.Set{PoolLabel: sbx.Spec.PoolRef}),
		}); err != nil {
			return ctrl.Result{}, fmt.Errorf("list pods for pool %s: %w", sbx.Spec.PoolRef, err)
		}

		var candidate *corev1.Pod
		for i := range podList.Items {
			if isPodIdle(podList.Items[i]) {
				candidate = &podList.Items[i]
				break
			}
		}
		if candidate == nil {
			logger.V(1).Info("no idle pod available, requeuing", "pool", sbx.Spec.PoolRef)
			return ctrl.Result{RequeueAfter: 2 * time.Second}, nil
		}

		candidate.Labels[StatusLabel] = StatusAllocated
		candidate.Labels[SessionLabel] = sbx.Name
		if err := r.Update(ctx, candidate); err != nil {
			if k8serrors.IsConflict(err) {
				logger.V(1).Info("pod claim conflict, retrying with fresh list", "pod", candidate.Name)
				continue
			}
			return ctrl.Result{}, fmt.Errorf("claim pod %s: %w", candidate.Name, err)
		}

		sbx.Status.PodName = candidate.Name
		if err := r.Status().Update(ctx, sbx); err != nil {
			return ctrl.Result{}, err
		}
		logger.Info("claimed idle pod", "pod", candidate.Name, "sandbox", sbx.Name)
		return r.checkAdoptedPodReady(ctx, sbx)
	}

	return ctrl.Result{RequeueAfter: time.Second}, fmt.Errorf("exhausted %d adoption retries for sandbox %s", MaxAdoptionRetries, sbx.Name)
}

func (r *SandboxReconciler) checkAdoptedPodReady(ctx context.Context, sbx *arlv1alpha1.Sandbox) (ctrl.Result, error) {
	pod := &corev1.Pod{}
	if err := r.Get(ctx, client.ObjectKey{Namespace: sbx.Namespace, Name: sbx.Status.PodName}, pod); err != nil {
		if k8serrors.IsNotFound(err) {
			return r.failSandbox(ctx, sbx, "PodDisappeared", fmt.Sprintf("adopted pod %q no longer exists", sbx.Status.PodName))
		}
		return ctrl.Result{}, err
	}

	if pod.Status.Phase != corev1.PodRunning {
		return ctrl.Result{RequeueAfter: time.Second}, nil
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return ctrl.Result{RequeueAfter: time.Second}, nil
		}
	}

	now := metav1.NewTime(r.now())
	sbx.Status.Phase = arlv1alpha1.SandboxPhaseReady
	sbx.Status.PodIP = pod.Status.PodIP
	sbx.Status.AdoptedAt = &now
	sbx.Status.LastActivityAt = &now
	meta.SetStatusCondition(&sbx.Status.Conditions, metav1.Condition{
		Type: string(arlv1alpha1.SandboxConditionReady), Status: metav1.ConditionTrue,
		ObservedGeneration: sbx.Generation, Reason: "PodReady", Message: "adopted pod is running and ready",
	})
	if err := r.Status().Update(ctx, sbx); err != nil {
		return ctrl.Result{}, err
	}
	metrics.RecordSandboxAdoptionLatency(sbx.CreationTimestamp.Time, sbx.Spec.PoolRef, metrics.StatusSuccess)
	return ctrl.Result{}, nil
}

// reconcileReady enforces idle-timeout and max-lifetime deadlines.
func (r *SandboxReconciler) reconcileReady(ctx context.Context, sbx *arlv1alpha1.Sandbox) (ctrl.Result, error) {
	now := r.now()

	if sbx.Spec.MaxLifetimeSeconds > 0 && sbx.Status.AdoptedAt != nil {
		deadline := sbx.Status.AdoptedAt.Add(time.Duration(sbx.Spec.MaxLifetimeSeconds) * time.Second)
		if now.After(deadline) {
			return ctrl.Result{}, r.Delete(ctx, sbx)
		}
	}

	if !sbx.Spec.KeepAlive && sbx.Spec.IdleTimeoutSeconds > 0 && sbx.Status.LastActivityAt != nil {
		deadline := sbx.Status.LastActivityAt.Add(time.Duration(sbx.Spec.IdleTimeoutSeconds) * time.Second)
		if now.After(deadline) {
			return ctrl.Result{}, r.Delete(ctx, sbx)
		}
		return ctrl.Result{RequeueAfter: deadline.Sub(now)}, nil
	}

	return ctrl.Result{}, nil
}

// reconcileDeletion tears down the adopted pod (single-use: it is deleted,
// never returned to idle) and lets the WarmPool controller replace it.
func (r *SandboxReconciler) reconcileDeletion(ctx context.Context, sbx *arlv1alpha1.Sandbox) (ctrl.Result, error) {
	if sbx.Status.PodName != "" {
		pod := &corev1.Pod{}
		err := r.Get(ctx, client.ObjectKey{Namespace: sbx.Namespace, Name: sbx.Status.PodName}, pod)
		switch {
		case k8serrors.IsNotFound(err):
			// already gone
		case err != nil:
			return ctrl.Result{}, err
		default:
			if pod.Labels == nil {
				pod.Labels = map[string]string{}
			}
			pod.Labels[StatusLabel] = StatusTerminating
			_ = r.Update(ctx, pod)
			if err := r.Delete(ctx, pod); err != nil && !k8serrors.IsNotFound(err) {
				return ctrl.Result{}, err
			}
		}
	}

	sbx.Status.Phase = arlv1alpha1.SandboxPhaseTerminated
	if err := r.Status().Update(ctx, sbx); err != nil {
		return ctrl.Result{}, err
	}

	if controllerutil.ContainsFinalizer(sbx, sandboxFinalizer) {
		controllerutil.RemoveFinalizer(sbx, sandboxFinalizer)
		if err := r.Update(ctx, sbx); err != nil {
			return ctrl.Result{}, err
		}
	}
	return ctrl.Result{}, nil
}

func (r *SandboxReconciler) failSandbox(ctx context.Context, sbx *arlv1alpha1.Sandbox, reason, message string) (ctrl.Result, error) {
	sbx.Status.Phase = arlv1alpha1.SandboxPhaseFailed
	meta.SetStatusCondition(&sbx.Status.Conditions, metav1.Condition{
		Type: string(arlv1alpha1.SandboxConditionReady), Status: metav1.ConditionFalse,
		ObservedGeneration: sbx.Generation, Reason: reason, Message: message,
	})
	if err := r.Status().Update(ctx, sbx); err != nil {
		return ctrl.Result{}, err
	}
	metrics.RecordSandboxAdoptionLatency(sbx.CreationTimestamp.Time, sbx.Spec.PoolRef, metrics.StatusFailure)
	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *SandboxReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&arlv1alpha1.Sandbox{}).
		Complete(r)
}
