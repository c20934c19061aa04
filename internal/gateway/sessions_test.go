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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
)

func testPool(name string) *arlv1alpha1.WarmPool {
	return &arlv1alpha1.WarmPool{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec:       arlv1alpha1.WarmPoolSpec{Image: "executor:latest", Replicas: 1},
	}
}

func TestCreateSessionAdoptsReadySandbox(t *testing.T) {
	gw, _ := newTestGateway(testPool("p1"))

	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.id)
	assert.Equal(t, "10.0.0.5", sess.podIP)

	got, ok := gw.Sessions.Get(sess.id)
	require.True(t, ok)
	assert.Equal(t, sess.id, got.id)
}

func TestCreateSessionUnknownPool(t *testing.T) {
	gw, _ := newTestGateway()

	_, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "missing", Namespace: "default"})
	require.Error(t, err)
}

func TestRunStepsAppendsHistoryInOrder(t *testing.T) {
	gw, _ := newTestGateway(testPool("p1"))
	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default"})
	require.NoError(t, err)

	results, err := gw.runSteps(context.Background(), sess, []StepRequest{
		{Name: "write", Command: []string{"echo", "hi", ">", "a.txt"}},
		{Name: "read", Command: []string{"cat", "a.txt"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int32(0), results[0].Index)
	assert.Equal(t, int32(1), results[1].Index)
	assert.NotEmpty(t, results[1].SnapshotID)

	history := sess.historySnapshot()
	require.Len(t, history, 2)
}

func TestRestoreReplaysStepsOntoFreshSandbox(t *testing.T) {
	gw, _ := newTestGateway(testPool("p1"))
	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default"})
	require.NoError(t, err)

	results, err := gw.runSteps(context.Background(), sess, []StepRequest{
		{Command: []string{"echo", "v1", ">", "a.txt"}},
	})
	require.NoError(t, err)
	snapshotID := results[0].SnapshotID
	require.NotEmpty(t, snapshotID)

	oldSandbox := sess.currentSandboxName()

	err = gw.restore(context.Background(), sess, snapshotID)
	require.NoError(t, err)
	assert.NotEqual(t, oldSandbox, sess.currentSandboxName())
	assert.Len(t, sess.historySnapshot(), 1)
}

func TestRestoreUnknownSnapshotFails(t *testing.T) {
	gw, _ := newTestGateway(testPool("p1"))
	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default"})
	require.NoError(t, err)

	err = gw.restore(context.Background(), sess, "does-not-exist")
	require.Error(t, err)
}

func TestDeleteSessionRemovesFromStoreAndDeletesSandbox(t *testing.T) {
	gw, _ := newTestGateway(testPool("p1"))
	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default"})
	require.NoError(t, err)

	gw.deleteSession(context.Background(), sess)

	_, ok := gw.Sessions.Get(sess.id)
	assert.False(t, ok)

	var sbx arlv1alpha1.Sandbox
	err = gw.Client.Get(context.Background(), client.ObjectKey{Namespace: "default", Name: sess.currentSandboxName()}, &sbx)
	assert.Error(t, err)
}
