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
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/agent-runtime/arl/internal/gateway/arlerror"
	"github.com/agent-runtime/arl/internal/sidecar"
)

var shellUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The gateway is typically fronted by its own ingress/authn layer;
	// origin checking belongs there, not in this library handler.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleShell bridges a client WebSocket connection to one interactive
// shell stream on the sandbox's sidecar. Unlike Execute/Restore, shells do
// not take the session's executionMutex: multiple concurrent shells are
// permitted and they do not participate in step history or replay.
func (g *Gateway) handleShell(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, arlerror.New(arlerror.KindNotFound, "session not found"))
		return
	}

	conn, err := shellUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.Log.Warnw("shell websocket upgrade failed", "session", sess.id, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := sess.sidecarClient.InteractiveShell(ctx)
	if err != nil {
		_ = conn.WriteJSON(sidecar.ShellMessage{Type: "error", Data: err.Error()})
		return
	}
	defer stream.Close()

	errc := make(chan error, 2)
	go shellPumpToSidecar(ctx, conn, stream, errc)
	go shellPumpToClient(ctx, conn, stream, errc)

	<-errc
	cancel()
}

// shellPumpToSidecar reads tagged JSON messages from the client (input,
// resize, signal) and forwards them to the sidecar stream.
func shellPumpToSidecar(ctx context.Context, conn *websocket.Conn, stream sidecar.ShellStream, errc chan<- error) {
	for {
		var msg sidecar.ShellMessage
		if err := conn.ReadJSON(&msg); err != nil {
			errc <- err
			return
		}
		if err := stream.Send(ctx, msg); err != nil {
			errc <- err
			return
		}
	}
}

// shellPumpToClient reads output/exit/error messages from the sidecar
// stream and forwards them to the client as JSON frames.
func shellPumpToClient(ctx context.Context, conn *websocket.Conn, stream sidecar.ShellStream, errc chan<- error) {
	for {
		msg, err := stream.Recv(ctx)
		if err != nil {
			errc <- err
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			errc <- err
			return
		}
		if msg.Type == "exit" {
			errc <- nil
			return
		}
	}
}
