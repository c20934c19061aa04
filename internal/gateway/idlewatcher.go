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
)

// idleWatcher periodically reaps sessions that have been idle past their
// idleTimeoutSeconds, per the session-level idle-timeout behavior: the
// session disappears from the table and its Sandbox is deleted so the
// controller can tear down the adopted pod.
type idleWatcher struct {
	gw       *Gateway
	interval time.Duration
}

func newIdleWatcher(gw *Gateway) *idleWatcher {
	return &idleWatcher{gw: gw, interval: time.Second}
}

func (w *idleWatcher) start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *idleWatcher) sweep(ctx context.Context) {
	sessions := w.gw.Sessions.All()
	SetActiveSessions(len(sessions))
	now := time.Now()
	for _, sess := range sessions {
		deadline, hasTimeout := sess.idleDeadline()
		if !hasTimeout || now.Before(deadline) {
			continue
		}
		// A concurrent Execute/Restore can hold executionMutex for a long
		// time; skip this sweep and catch it on the next tick rather than
		// blocking the reaper on one busy session.
		if !sess.executionMutex.TryLock() {
			continue
		}
		w.gw.deleteSession(ctx, sess)
		sess.executionMutex.Unlock()
		IncIdleReaped()
		w.gw.Log.Infow("reaped idle session", "session", sess.id)
	}
}
