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
	"errors"
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
	"github.com/agent-runtime/arl/controllers/controllererror"
	"github.com/agent-runtime/arl/internal/metrics"
)

// FailingRestartThreshold is the restart count at or above which a pod is
// classified as failing, absent a more specific container waiting reason.
const FailingRestartThreshold = 3

// transientFailureSubstrings are message fragments that indicate registry
// throttling rather than a genuine pool problem; pools reporting only these
// must not flip PodsFailing=True.
var transientFailureSubstrings = []string{
	"qps exceeded",
	"rate limit",
	"toomanyrequests",
	"429",
}

// SandboxWarmPoolReconciler reconciles a WarmPool's population of idle pods.
type SandboxWarmPoolReconciler struct {
	client.Client
	// PodTemplateConfig carries cluster-wide image defaults for BuildPod.
	PodTemplateConfig PodTemplateConfig
}

// +kubebuilder:rbac:groups=arl.infra.io,resources=warmpools,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=arl.infra.io,resources=warmpools/status,verbs=get;update;patch
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=nodes,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=configmaps,verbs=get;list;watch;create;update;patch

func (r *SandboxWarmPoolReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	pool := &arlv1alpha1.WarmPool{}
	if err := r.Get(ctx, req.NamespacedName, pool); err != nil {
		if k8serrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !pool.DeletionTimestamp.IsZero() {
		return ctrl.Result{}, nil
	}

	toolCMName, err := r.reconcileToolManifest(ctx, pool)
	if err != nil {
		return ctrl.Result{}, fmt.Errorf("reconcile tool manifest: %w", err)
	}

	reconcileErr := r.reconcilePods(ctx, pool, toolCMName)

	if err := r.Status().Update(ctx, pool); err != nil {
		logger.Error(err, "failed to update WarmPool status")
		return ctrl.Result{}, err
	}
	metrics.RecordPoolGauges(pool.Name, pool.Namespace, pool.Status.ReadyReplicas, pool.Status.AllocatedReplicas, pool.Status.PendingPulls)

	return ctrl.Result{}, controllererror.FilterTerminalErrors(reconcileErr)
}

func (r *SandboxWarmPoolReconciler) reconcileToolManifest(ctx context.Context, pool *arlv1alpha1.WarmPool) (string, error) {
	if len(pool.Spec.Tools) == 0 {
		return "", nil
	}

	name := pool.Name + "-tools"
	cm, err := BuildToolManifestConfigMap(pool, name)
	if err != nil {
		return "", err
	}

	existing := &corev1.ConfigMap{}
	err = r.Get(ctx, client.ObjectKey{Namespace: pool.Namespace, Name: name}, existing)
	switch {
	case k8serrors.IsNotFound(err):
		if err := ctrl.SetControllerReference(pool, cm, r.Client.Scheme()); err != nil {
			return "", err
		}
		if err := r.Create(ctx, cm); err != nil && !k8serrors.IsAlreadyExists(err) {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		if existing.Data[toolManifestName] != cm.Data[toolManifestName] {
			existing.Data = cm.Data
			if err := r.Update(ctx, existing); err != nil {
				return "", err
			}
		}
	}

	return name, nil
}

type podBuckets struct {
	idle        []corev1.Pod
	allocated   []corev1.Pod
	failing     []corev1.Pod
	pendingPull []corev1.Pod
	terminating []corev1.Pod
}

func (r *SandboxWarmPoolReconciler) reconcilePods(ctx context.Context, pool *arlv1alpha1.WarmPool, toolCMName string) error {
	logger := log.FromContext(ctx)

	podList := &corev1.PodList{}
	if err := r.List(ctx, podList, client.InNamespace(pool.Namespace), client.MatchingLabelsSelector{
		Selector: labels.SelectorFromSet(labels.Set{PoolLabel: pool.Name}),
	}); err != nil {
		return fmt.Errorf("list pods: %w", err)
	}

	buckets := partitionPods(podList.Items)

	pool.Status.Replicas = pool.Spec.Replicas
	pool.Status.ReadyReplicas = int32(len(buckets.idle))
	pool.Status.AllocatedReplicas = int32(len(buckets.allocated))
	pool.Status.PendingPulls = int32(len(buckets.pendingPull))

	var allErrs error

	// Deletes precede creates so shrinking and growing a pool in the same
	// reconcile never overshoots the desired replica count.
	excess := int32(len(buckets.idle)) - pool.Spec.Replicas
	if excess > 0 {
		if err := r.deleteExcessIdlePods(ctx, buckets.idle, excess); err != nil {
			allErrs = errors.Join(allErrs, err)
		}
	}

	need := pool.Spec.Replicas - (int32(len(buckets.idle)) + int32(len(buckets.allocated)))
	if need > 0 {
		preferredNodes, err := r.computePreferredNodes(ctx, pool)
		if err != nil {
			logger.Error(err, "failed to compute image-locality preferred nodes; continuing without a hint")
		}
		if err := r.createPods(ctx, pool, toolCMName, preferredNodes, need); err != nil {
			allErrs = errors.Join(allErrs, err)
		}
	}

	r.updateConditions(pool, buckets, allErrs)

	return allErrs
}

func partitionPods(pods []corev1.Pod) podBuckets {
	var b podBuckets
	for _, p := range pods {
		switch {
		case !p.DeletionTimestamp.IsZero():
			b.terminating = append(b.terminating, p)
		case isPodFailing(p):
			b.failing = append(b.failing, p)
			if isPodImagePullBackOff(p) {
				b.pendingPull = append(b.pendingPull, p)
			}
		case p.Labels[SessionLabel] != "":
			b.allocated = append(b.allocated, p)
		case isPodIdle(p):
			b.idle = append(b.idle, p)
		}
	}
	return b
}

func isPodIdle(p corev1.Pod) bool {
	if p.Status.Phase != corev1.PodRunning {
		return false
	}
	if p.Labels[StatusLabel] != StatusIdle {
		return false
	}
	if p.Labels[SessionLabel] != "" {
		return false
	}
	for _, cs := range p.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return len(p.Status.ContainerStatuses) > 0
}

func isPodFailing(p corev1.Pod) bool {
	for _, cs := range p.Status.ContainerStatuses {
		if cs.State.Waiting != nil {
			switch cs.State.Waiting.Reason {
			case "ImagePullBackOff", "ErrImagePull", "CrashLoopBackOff":
				return true
			}
		}
		if cs.RestartCount >= FailingRestartThreshold {
			return true
		}
	}
	return false
}

func isPodImagePullBackOff(p corev1.Pod) bool {
	for _, cs := range p.Status.ContainerStatuses {
		if cs.State.Waiting != nil && (cs.State.Waiting.Reason == "ImagePullBackOff" || cs.State.Waiting.Reason == "ErrImagePull") {
			return true
		}
	}
	return false
}

// deleteExcessIdlePods deletes the oldest `count` idle pods (highest age
// first), tolerating 409s as the pod may already be gone.
func (r *SandboxWarmPoolReconciler) deleteExcessIdlePods(ctx context.Context, idle []corev1.Pod, count int32) error {
	logger := log.FromContext(ctx)
	sorted := append([]corev1.Pod(nil), idle...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreationTimestamp.Before(&sorted[j].CreationTimestamp)
	})

	var allErrs error
	for i := int32(0); i < count && i < int32(len(sorted)); i++ {
		pod := sorted[i]
		if err := r.Delete(ctx, &pod); err != nil && !k8serrors.IsNotFound(err) && !k8serrors.IsConflict(err) {
			logger.Error(err, "failed to delete excess idle pod", "pod", pod.Name)
			allErrs = errors.Join(allErrs, err)
		}
	}
	return allErrs
}

// createPods creates `need` new pods in parallel, tolerating create
// conflicts by simply logging and letting the next reconcile retry.
func (r *SandboxWarmPoolReconciler) createPods(ctx context.Context, pool *arlv1alpha1.WarmPool, toolCMName string, preferredNodes []string, need int32) error {
	logger := log.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for i := int32(0); i < need; i++ {
		g.Go(func() error {
			pod, err := BuildPod(pool, r.PodTemplateConfig, preferredNodes, toolCMName)
			if err != nil {
				return controllererror.NewTerminalError("build pod for pool %s: %v", pool.Name, err)
			}
			if err := ctrl.SetControllerReference(pool, pod, r.Client.Scheme()); err != nil {
				return fmt.Errorf("set controller reference: %w", err)
			}
			if err := r.Create(gctx, pod); err != nil {
				if k8serrors.IsAlreadyExists(err) || k8serrors.IsConflict(err) {
					logger.Info("pod create conflict, will retry next reconcile", "pod", pod.Name)
					return nil
				}
				return fmt.Errorf("create pod: %w", err)
			}
			logger.Info("created idle pod", "pod", pod.Name)
			return nil
		})
	}
	return g.Wait()
}

// computePreferredNodes lists schedulable nodes and applies the HRW hint
// (4.B) for this pool's image and replica count.
func (r *SandboxWarmPoolReconciler) computePreferredNodes(ctx context.Context, pool *arlv1alpha1.WarmPool) ([]string, error) {
	enabled := pool.Spec.ImageLocality.Enabled == nil || *pool.Spec.ImageLocality.Enabled
	if !enabled {
		return nil, nil
	}

	nodeList := &corev1.NodeList{}
	if err := r.List(ctx, nodeList); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	var names []string
	for _, n := range nodeList.Items {
		if n.Spec.Unschedulable {
			continue
		}
		if isNodeReady(n) {
			names = append(names, n.Name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, nil
	}

	k := PreferredNodeCount(pool.Spec.Replicas, pool.Spec.ImageLocality.SpreadFactor)
	return TopKNodes(pool.Spec.Image, names, k), nil
}

func isNodeReady(n corev1.Node) bool {
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func (r *SandboxWarmPoolReconciler) updateConditions(pool *arlv1alpha1.WarmPool, buckets podBuckets, reconcileErr error) {
	gen := pool.Generation

	if pool.Status.ReadyReplicas >= 1 {
		meta.SetStatusCondition(&pool.Status.Conditions, metav1.Condition{
			Type: string(arlv1alpha1.PoolConditionReady), Status: metav1.ConditionTrue,
			ObservedGeneration: gen, Reason: "HasIdlePods",
			Message: fmt.Sprintf("%d idle pods available", pool.Status.ReadyReplicas),
		})
	} else {
		meta.SetStatusCondition(&pool.Status.Conditions, metav1.Condition{
			Type: string(arlv1alpha1.PoolConditionReady), Status: metav1.ConditionFalse,
			ObservedGeneration: gen, Reason: "NoIdlePods", Message: "no idle pods available",
		})
	}

	if pool.Status.ReadyReplicas == pool.Spec.Replicas {
		meta.SetStatusCondition(&pool.Status.Conditions, metav1.Condition{
			Type: string(arlv1alpha1.PoolConditionPodsReady), Status: metav1.ConditionTrue,
			ObservedGeneration: gen, Reason: "PoolAtDesiredReplicas",
			Message: fmt.Sprintf("%d/%d idle pods ready", pool.Status.ReadyReplicas, pool.Spec.Replicas),
		})
	} else {
		meta.SetStatusCondition(&pool.Status.Conditions, metav1.Condition{
			Type: string(arlv1alpha1.PoolConditionPodsReady), Status: metav1.ConditionFalse,
			ObservedGeneration: gen, Reason: "PoolScaling",
			Message: fmt.Sprintf("%d/%d idle pods ready", pool.Status.ReadyReplicas, pool.Spec.Replicas),
		})
	}

	r.updatePodsFailingCondition(pool, buckets)

	if reconcileErr != nil {
		meta.SetStatusCondition(&pool.Status.Conditions, metav1.Condition{
			Type: string(arlv1alpha1.PoolConditionImagePull), Status: metav1.ConditionTrue,
			ObservedGeneration: gen, Reason: "ReconcileError", Message: reconcileErr.Error(),
		})
	} else {
		meta.SetStatusCondition(&pool.Status.Conditions, metav1.Condition{
			Type: string(arlv1alpha1.PoolConditionImagePull), Status: metav1.ConditionFalse,
			ObservedGeneration: gen, Reason: "NoError", Message: "",
		})
	}
}

func (r *SandboxWarmPoolReconciler) updatePodsFailingCondition(pool *arlv1alpha1.WarmPool, buckets podBuckets) {
	gen := pool.Generation

	if len(buckets.failing) == 0 {
		meta.SetStatusCondition(&pool.Status.Conditions, metav1.Condition{
			Type: string(arlv1alpha1.PoolConditionPodsFailing), Status: metav1.ConditionFalse,
			ObservedGeneration: gen, Reason: "NoFailingPods", Message: "",
		})
		return
	}

	names := make([]string, 0, len(buckets.failing))
	reasons := make([]string, 0, len(buckets.failing))
	for i, p := range buckets.failing {
		if i >= 3 {
			break
		}
		names = append(names, p.Name)
		reasons = append(reasons, containerFailureReasons(p)...)
	}
	message := fmt.Sprintf("pods: %s; reasons: %s", strings.Join(names, ", "), strings.Join(reasons, ", "))

	if isTransientMessage(message) {
		meta.SetStatusCondition(&pool.Status.Conditions, metav1.Condition{
			Type: string(arlv1alpha1.PoolConditionPodsFailing), Status: metav1.ConditionFalse,
			ObservedGeneration: gen, Reason: "TransientRegistryThrottling", Message: message,
		})
		return
	}

	meta.SetStatusCondition(&pool.Status.Conditions, metav1.Condition{
		Type: string(arlv1alpha1.PoolConditionPodsFailing), Status: metav1.ConditionTrue,
		ObservedGeneration: gen, Reason: "PodsFailing", Message: message,
	})
}

func containerFailureReasons(p corev1.Pod) []string {
	var reasons []string
	for _, cs := range p.Status.ContainerStatuses {
		if cs.State.Waiting != nil {
			reason := cs.State.Waiting.Reason
			if cs.State.Waiting.Message != "" {
				reason += " (" + cs.State.Waiting.Message + ")"
			}
			reasons = append(reasons, reason)
		}
	}
	return reasons
}

func isTransientMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, s := range transientFailureSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// SetupWithManager sets up the controller with the Manager.
func (r *SandboxWarmPoolReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&arlv1alpha1.WarmPool{}).
		Owns(&corev1.Pod{}).
		Complete(r)
}
