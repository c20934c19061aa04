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
	"hash/fnv"
	"sync"
	"time"

	"github.com/agent-runtime/arl/internal/sidecar"
)

const sessionShardCount = 32

// Session is the gateway's owned, in-memory counterpart of a Sandbox: it
// holds history and identity that survive a restore's pod swap.
type Session struct {
	// executionMutex serialises Execute and Restore for this session (P6);
	// Restore holds it for its entire replay, exactly as a long Execute would.
	executionMutex sync.Mutex

	// fieldsMu guards the fields below, which can be read (GET /sessions/{id})
	// while an execution is in flight.
	fieldsMu sync.RWMutex

	id                 string
	poolRef            string
	namespace          string
	workspaceDir       string
	sandboxName        string
	podName            string
	podIP              string
	createdAt          time.Time
	lastActivityAt     time.Time
	idleTimeoutSeconds int32
	maxHistory         int
	history            []StepResult
	sidecarClient      sidecar.Client
	terminated         bool
}

func (s *Session) info() SessionInfo {
	s.fieldsMu.RLock()
	defer s.fieldsMu.RUnlock()
	return SessionInfo{
		ID:        s.id,
		PoolRef:   s.poolRef,
		Namespace: s.namespace,
		PodName:   s.podName,
		PodIP:     s.podIP,
		CreatedAt: s.createdAt,
	}
}

func (s *Session) currentSandboxName() string {
	s.fieldsMu.RLock()
	defer s.fieldsMu.RUnlock()
	return s.sandboxName
}

// currentWorkspaceDir returns the pool-derived working directory steps run
// against; it is fixed at session creation and never changes across a
// restore, since a restore reuses the same pool reference.
func (s *Session) currentWorkspaceDir() string {
	s.fieldsMu.RLock()
	defer s.fieldsMu.RUnlock()
	return s.workspaceDir
}

func (s *Session) touch(now time.Time) {
	s.fieldsMu.Lock()
	s.lastActivityAt = now
	s.fieldsMu.Unlock()
}

func (s *Session) idleDeadline() (time.Time, bool) {
	s.fieldsMu.RLock()
	defer s.fieldsMu.RUnlock()
	if s.idleTimeoutSeconds <= 0 {
		return time.Time{}, false
	}
	return s.lastActivityAt.Add(time.Duration(s.idleTimeoutSeconds) * time.Second), true
}

func (s *Session) historySnapshot() []StepResult {
	s.fieldsMu.RLock()
	defer s.fieldsMu.RUnlock()
	out := make([]StepResult, len(s.history))
	copy(out, s.history)
	return out
}

// appendResult records r and, once history exceeds maxHistory, evicts the
// oldest prior entries to make room. An entry that carries a SnapshotID is
// never evicted, since restore depends on every snapshot-bearing step
// remaining addressable, and the entry just appended is never evicted either.
// If every prior entry carries a snapshot, history grows past maxHistory
// rather than discard one.
func (s *Session) appendResult(r StepResult) {
	s.fieldsMu.Lock()
	defer s.fieldsMu.Unlock()
	s.history = append(s.history, r)
	if s.maxHistory <= 0 {
		return
	}
	for len(s.history) > s.maxHistory {
		// Never evict the entry just appended: scan only what came before it.
		evictAt := -1
		for i := 0; i < len(s.history)-1; i++ {
			if s.history[i].SnapshotID == "" {
				evictAt = i
				break
			}
		}
		if evictAt == -1 {
			break
		}
		s.history = append(s.history[:evictAt], s.history[evictAt+1:]...)
	}
}

// swapSandbox installs a freshly adopted pod and truncated history after a
// restore, preserving id/createdAt (P3).
func (s *Session) swapSandbox(sandboxName, podName, podIP string, client sidecar.Client, history []StepResult) {
	s.fieldsMu.Lock()
	defer s.fieldsMu.Unlock()
	s.sandboxName = sandboxName
	s.podName = podName
	s.podIP = podIP
	s.sidecarClient = client
	s.history = history
}

// shard is one bucket of the session table.
type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// SessionStore is the sharded, in-memory session table (design note:
// sharded by hash of session id to reduce lock contention across
// concurrently-handled requests).
type SessionStore struct {
	shards [sessionShardCount]*shard
}

// NewSessionStore builds an empty store.
func NewSessionStore() *SessionStore {
	st := &SessionStore{}
	for i := range st.shards {
		st.shards[i] = &shard{sessions: map[string]*Session{}}
	}
	return st
}

func (st *SessionStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return st.shards[h.Sum32()%sessionShardCount]
}

// Insert adds a new session, returning false if the id already exists.
func (st *SessionStore) Insert(s *Session) bool {
	sh := st.shardFor(s.id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.sessions[s.id]; exists {
		return false
	}
	sh.sessions[s.id] = s
	return true
}

// Get returns the session, or false if unknown or already terminated.
func (st *SessionStore) Get(id string) (*Session, bool) {
	sh := st.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	if !ok {
		return nil, false
	}
	s.fieldsMu.RLock()
	terminated := s.terminated
	s.fieldsMu.RUnlock()
	if terminated {
		return nil, false
	}
	return s, true
}

// Delete removes a session from the table, marking it terminated so any
// in-flight holder of the pointer observes the state change.
func (st *SessionStore) Delete(id string) {
	sh := st.shardFor(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()
	if ok {
		s.fieldsMu.Lock()
		s.terminated = true
		s.fieldsMu.Unlock()
	}
}

// All returns every live session, used by the idle watcher sweep.
func (st *SessionStore) All() []*Session {
	var out []*Session
	for _, sh := range st.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}
