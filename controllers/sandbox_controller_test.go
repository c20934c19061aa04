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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
)

func sandboxNSN(sbx *arlv1alpha1.Sandbox) client.ObjectKey {
	return client.ObjectKey{Namespace: sbx.Namespace, Name: sbx.Name}
}

func readyIdlePod(name, pool string) *corev1.Pod {
	p := idlePod(name, pool)
	p.Status.PodIP = "10.0.0.5"
	return p
}

func TestSandboxReconcileFailsWhenPoolNotFound(t *testing.T) {
	sbx := &arlv1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{Name: "sbx1", Namespace: "default"},
		Spec:       arlv1alpha1.SandboxSpec{PoolRef: "missing-pool"},
	}
	fc := fake.NewClientBuilder().WithScheme(Scheme).WithObjects(sbx).WithStatusSubresource(sbx).Build()
	r := &SandboxReconciler{Client: fc}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: sandboxNSN(sbx)})
	require.NoError(t, err)

	var got arlv1alpha1.Sandbox
	require.NoError(t, fc.Get(context.Background(), sandboxNSN(sbx), &got))
	assert.Equal(t, arlv1alpha1.SandboxPhaseFailed, got.Status.Phase)
}

func TestSandboxReconcileAdoptsIdlePodAndBecomesReady(t *testing.T) {
	pool := &arlv1alpha1.WarmPool{ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "default"}}
	pod := readyIdlePod("p1-aaaa", "p1")
	sbx := &arlv1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{Name: "sbx1", Namespace: "default"},
		Spec:       arlv1alpha1.SandboxSpec{PoolRef: "p1"},
	}

	fc := fake.NewClientBuilder().WithScheme(Scheme).WithObjects(pool, pod, sbx).WithStatusSubresource(sbx).Build()
	r := &SandboxReconciler{Client: fc}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: sandboxNSN(sbx)})
	require.NoError(t, err)

	var got arlv1alpha1.Sandbox
	require.NoError(t, fc.Get(context.Background(), sandboxNSN(sbx), &got))
	assert.Equal(t, arlv1alpha1.SandboxPhaseReady, got.Status.Phase)
	assert.Equal(t, "p1-aaaa", got.Status.PodName)
	assert.Equal(t, "10.0.0.5", got.Status.PodIP)
	assert.NotNil(t, got.Status.AdoptedAt)

	var gotPod corev1.Pod
	require.NoError(t, fc.Get(context.Background(), client.ObjectKey{Namespace: "default", Name: "p1-aaaa"}, &gotPod))
	assert.Equal(t, StatusAllocated, gotPod.Labels[StatusLabel])
	assert.Equal(t, "sbx1", gotPod.Labels[SessionLabel])
}

func TestSandboxReconcileRemainsPendingWithNoIdlePod(t *testing.T) {
	pool := &arlv1alpha1.WarmPool{ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "default"}}
	sbx := &arlv1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{Name: "sbx1", Namespace: "default"},
		Spec:       arlv1alpha1.SandboxSpec{PoolRef: "p1"},
	}
	fc := fake.NewClientBuilder().WithScheme(Scheme).WithObjects(pool, sbx).WithStatusSubresource(sbx).Build()
	r := &SandboxReconciler{Client: fc}

	res, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: sandboxNSN(sbx)})
	require.NoError(t, err)
	assert.True(t, res.RequeueAfter > 0)

	var got arlv1alpha1.Sandbox
	require.NoError(t, fc.Get(context.Background(), sandboxNSN(sbx), &got))
	assert.Equal(t, arlv1alpha1.SandboxPhasePending, got.Status.Phase)
}

func TestSandboxReconcileIdleTimeoutDeletesSandbox(t *testing.T) {
	past := metav1.NewTime(time.Now().Add(-1 * time.Hour))
	sbx := &arlv1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{Name: "sbx1", Namespace: "default"},
		Spec:       arlv1alpha1.SandboxSpec{PoolRef: "p1", IdleTimeoutSeconds: 5},
		Status: arlv1alpha1.SandboxStatus{
			Phase:          arlv1alpha1.SandboxPhaseReady,
			PodName:        "p1-aaaa",
			LastActivityAt: &past,
		},
	}
	fc := fake.NewClientBuilder().WithScheme(Scheme).WithObjects(sbx).WithStatusSubresource(sbx).Build()
	r := &SandboxReconciler{Client: fc}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: sandboxNSN(sbx)})
	require.NoError(t, err)
	// The first pass adds the finalizer and issues the Delete; the second
	// pass runs the deletion path that removes the finalizer.
	_, err = r.Reconcile(context.Background(), ctrl.Request{NamespacedName: sandboxNSN(sbx)})
	require.NoError(t, err)

	var got arlv1alpha1.Sandbox
	err = fc.Get(context.Background(), sandboxNSN(sbx), &got)
	require.Error(t, err, "sandbox should have been deleted after idle timeout")
}

func TestSandboxReconcileKeepAliveExemptFromIdleTimeout(t *testing.T) {
	past := metav1.NewTime(time.Now().Add(-1 * time.Hour))
	sbx := &arlv1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{Name: "sbx1", Namespace: "default"},
		Spec:       arlv1alpha1.SandboxSpec{PoolRef: "p1", IdleTimeoutSeconds: 5, KeepAlive: true},
		Status: arlv1alpha1.SandboxStatus{
			Phase:          arlv1alpha1.SandboxPhaseReady,
			PodName:        "p1-aaaa",
			LastActivityAt: &past,
		},
	}
	fc := fake.NewClientBuilder().WithScheme(Scheme).WithObjects(sbx).WithStatusSubresource(sbx).Build()
	r := &SandboxReconciler{Client: fc}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: sandboxNSN(sbx)})
	require.NoError(t, err)

	var got arlv1alpha1.Sandbox
	require.NoError(t, fc.Get(context.Background(), sandboxNSN(sbx), &got))
	assert.Equal(t, arlv1alpha1.SandboxPhaseReady, got.Status.Phase)
}

func TestSandboxReconcileDeletionTerminatesPodAndSandbox(t *testing.T) {
	pod := readyIdlePod("p1-aaaa", "p1")
	pod.Labels[StatusLabel] = StatusAllocated
	pod.Labels[SessionLabel] = "sbx1"

	now := metav1.Now()
	sbx := &arlv1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{
			Name: "sbx1", Namespace: "default",
			Finalizers:        []string{sandboxFinalizer},
			DeletionTimestamp: &now,
		},
		Spec: arlv1alpha1.SandboxSpec{PoolRef: "p1"},
		Status: arlv1alpha1.SandboxStatus{
			Phase:   arlv1alpha1.SandboxPhaseReady,
			PodName: "p1-aaaa",
		},
	}
	fc := fake.NewClientBuilder().WithScheme(Scheme).WithObjects(pod, sbx).WithStatusSubresource(sbx).Build()
	r := &SandboxReconciler{Client: fc}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: sandboxNSN(sbx)})
	require.NoError(t, err)

	var gotPod corev1.Pod
	err = fc.Get(context.Background(), client.ObjectKey{Namespace: "default", Name: "p1-aaaa"}, &gotPod)
	require.Error(t, err, "adopted pod should have been deleted")
}
