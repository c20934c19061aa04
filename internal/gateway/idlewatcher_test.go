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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIdleWatcherReapsExpiredSession uses idleTimeoutSeconds=1 with the
// session last touched 2s ago: one sweep removes the session from the
// table.
func TestIdleWatcherReapsExpiredSession(t *testing.T) {
	gw, _ := newTestGateway(testPool("p1"))
	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default", IdleTimeoutSeconds: 1})
	require.NoError(t, err)

	sess.touch(time.Now().Add(-2 * time.Second))

	w := newIdleWatcher(gw)
	w.sweep(context.Background())

	_, ok := gw.Sessions.Get(sess.id)
	assert.False(t, ok)
}

func TestIdleWatcherLeavesActiveSessions(t *testing.T) {
	gw, _ := newTestGateway(testPool("p1"))
	sess, err := gw.createSession(context.Background(), CreateSessionRequest{PoolRef: "p1", Namespace: "default", IdleTimeoutSeconds: 3600})
	require.NoError(t, err)

	w := newIdleWatcher(gw)
	w.sweep(context.Background())

	_, ok := gw.Sessions.Get(sess.id)
	assert.True(t, ok)
}
