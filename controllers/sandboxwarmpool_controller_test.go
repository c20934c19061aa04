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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
)

func TestWarmPoolReconcileCreatesPodsToMeetReplicas(t *testing.T) {
	pool := &arlv1alpha1.WarmPool{
		ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "default"},
		Spec:       arlv1alpha1.WarmPoolSpec{Replicas: 3, Image: "busybox:1.35"},
	}

	fc := fake.NewClientBuilder().WithScheme(Scheme).WithObjects(pool).WithStatusSubresource(pool).Build()
	r := &SandboxWarmPoolReconciler{Client: fc}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: nsn(pool)})
	require.NoError(t, err)

	var pods corev1.PodList
	require.NoError(t, fc.List(context.Background(), &pods))
	assert.Len(t, pods.Items, 3)
	for _, p := range pods.Items {
		assert.Equal(t, "p1", p.Labels[PoolLabel])
		assert.Equal(t, StatusIdle, p.Labels[StatusLabel])
	}

	var got arlv1alpha1.WarmPool
	require.NoError(t, fc.Get(context.Background(), nsn(pool), &got))
	assert.Equal(t, int32(3), got.Status.Replicas)
}

func TestWarmPoolReconcileDeletesExcessIdlePods(t *testing.T) {
	pool := &arlv1alpha1.WarmPool{
		ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "default"},
		Spec:       arlv1alpha1.WarmPoolSpec{Replicas: 1, Image: "busybox:1.35"},
	}
	pod1 := idlePod("p1-aaaa", "p1")
	pod2 := idlePod("p1-bbbb", "p1")

	fc := fake.NewClientBuilder().WithScheme(Scheme).WithObjects(pool, pod1, pod2).WithStatusSubresource(pool).Build()
	r := &SandboxWarmPoolReconciler{Client: fc}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: nsn(pool)})
	require.NoError(t, err)

	var pods corev1.PodList
	require.NoError(t, fc.List(context.Background(), &pods))
	assert.Len(t, pods.Items, 1)
}

func TestWarmPoolReconcileSetsPodsFailingCondition(t *testing.T) {
	pool := &arlv1alpha1.WarmPool{
		ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "default"},
		Spec:       arlv1alpha1.WarmPoolSpec{Replicas: 1, Image: "busybox:1.35"},
	}
	failing := failingPod("p1-fail", "p1", "ImagePullBackOff")

	fc := fake.NewClientBuilder().WithScheme(Scheme).WithObjects(pool, failing).WithStatusSubresource(pool).Build()
	r := &SandboxWarmPoolReconciler{Client: fc}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: nsn(pool)})
	require.NoError(t, err)

	var got arlv1alpha1.WarmPool
	require.NoError(t, fc.Get(context.Background(), nsn(pool), &got))

	found := false
	for _, c := range got.Status.Conditions {
		if c.Type == string(arlv1alpha1.PoolConditionPodsFailing) {
			found = true
			assert.Equal(t, metav1.ConditionTrue, c.Status)
		}
	}
	assert.True(t, found)
	assert.Equal(t, int32(1), got.Status.PendingPulls)
}

func TestWarmPoolReconcileTreatsTransientFailureAsNotFailing(t *testing.T) {
	pool := &arlv1alpha1.WarmPool{
		ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "default"},
		Spec:       arlv1alpha1.WarmPoolSpec{Replicas: 1, Image: "busybox:1.35"},
	}
	failing := failingPod("p1-fail", "p1", "ImagePullBackOff")
	failing.Status.ContainerStatuses[0].State.Waiting.Message = "429 Too Many Requests: rate limit exceeded"

	fc := fake.NewClientBuilder().WithScheme(Scheme).WithObjects(pool, failing).WithStatusSubresource(pool).Build()
	r := &SandboxWarmPoolReconciler{Client: fc}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: nsn(pool)})
	require.NoError(t, err)

	var got arlv1alpha1.WarmPool
	require.NoError(t, fc.Get(context.Background(), nsn(pool), &got))
	for _, c := range got.Status.Conditions {
		if c.Type == string(arlv1alpha1.PoolConditionPodsFailing) {
			assert.Equal(t, metav1.ConditionFalse, c.Status)
		}
	}
}

func nsn(pool *arlv1alpha1.WarmPool) client.ObjectKey {
	return client.ObjectKey{Namespace: pool.Namespace, Name: pool.Name}
}

func idlePod(name, pool string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: name, Namespace: "default",
			Labels: map[string]string{PoolLabel: pool, StatusLabel: StatusIdle},
		},
		Status: corev1.PodStatus{
			Phase:             corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{{Ready: true}},
		},
	}
}

func failingPod(name, pool, reason string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: name, Namespace: "default",
			Labels: map[string]string{PoolLabel: pool, StatusLabel: StatusIdle},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodPending,
			ContainerStatuses: []corev1.ContainerStatus{
				{
					Ready: false,
					State: corev1.ContainerState{
						Waiting: &corev1.ContainerStateWaiting{Reason: reason},
					},
				},
			},
		},
	}
}
