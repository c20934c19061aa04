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

package sidecar

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
)

// httpDialer mints httpClient instances against podIP:port.
type httpDialer struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewDialer builds a Dialer whose clients share one HTTP transport and one
// circuit breaker, tripping after repeated sidecar failures so a single
// misbehaving pod cannot stall every session routed through the gateway.
func NewDialer() Dialer {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sidecar-rpc",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &httpDialer{
		httpClient: &http.Client{Transport: transport},
		breaker:    breaker,
	}
}

func (d *httpDialer) Dial(podIP string, port int) Client {
	return &httpClient{
		baseURL:    fmt.Sprintf("http://%s:%d", podIP, port),
		httpClient: d.httpClient,
		breaker:    d.breaker,
	}
}

type httpClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func (c *httpClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var buf bytes.Buffer
		if body != nil {
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("sidecar %s: server error %d", path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, &rpcError{statusCode: resp.StatusCode, path: path}
		}
		if out != nil {
			return nil, json.NewDecoder(resp.Body).Decode(out)
		}
		return nil, nil
	})
	return err
}

type rpcError struct {
	statusCode int
	path       string
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("sidecar %s: status %d", e.path, e.statusCode)
}

func (c *httpClient) UpdateFiles(ctx context.Context, basePath string, files map[string]string, patch bool) (UpdateFilesResult, error) {
	var out UpdateFilesResult
	err := c.postJSON(ctx, "/rpc/updateFiles", map[string]interface{}{
		"basePath": basePath,
		"files":    files,
		"patch":    patch,
	}, &out)
	return out, err
}

// Execute streams newline-delimited ExecChunk JSON objects until the sidecar
// reports done=true, matching the §6.4 "stream of chunks" contract over a
// plain chunked HTTP response rather than a binary framing.
func (c *httpClient) Execute(ctx context.Context, req ExecuteRequest) ([]ExecChunk, error) {
	var chunks []ExecChunk
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(req); err != nil {
			return nil, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/execute", &buf)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, &rpcError{statusCode: resp.StatusCode, path: "/rpc/execute"}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk ExecChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				return nil, fmt.Errorf("decode execute chunk: %w", err)
			}
			chunks = append(chunks, chunk)
			if chunk.Done {
				break
			}
		}
		return nil, scanner.Err()
	})
	return chunks, err
}

func (c *httpClient) Snapshot(ctx context.Context, workspaceDir string) (string, error) {
	var out struct {
		SnapshotID string `json:"snapshotId"`
	}
	err := c.postJSON(ctx, "/rpc/snapshot", map[string]string{"workspaceDir": workspaceDir}, &out)
	return out.SnapshotID, err
}

func (c *httpClient) Restore(ctx context.Context, snapshotID string) error {
	return c.postJSON(ctx, "/rpc/restore", map[string]string{"snapshotId": snapshotID}, nil)
}

func (c *httpClient) SignalProcess(ctx context.Context, pid int, signal string) error {
	return c.postJSON(ctx, "/rpc/signal", map[string]interface{}{"pid": pid, "signal": signal}, nil)
}

func (c *httpClient) Reset(ctx context.Context, preserveFiles []string) error {
	return c.postJSON(ctx, "/rpc/reset", map[string]interface{}{"preserveFiles": preserveFiles}, nil)
}

func (c *httpClient) InteractiveShell(ctx context.Context) (ShellStream, error) {
	wsURL := "ws" + c.baseURL[len("http"):] + "/rpc/shell"
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial sidecar shell: %w", err)
	}
	return &wsShellStream{conn: conn}, nil
}

type wsShellStream struct {
	conn *websocket.Conn
}

func (s *wsShellStream) Send(_ context.Context, msg ShellMessage) error {
	return s.conn.WriteJSON(msg)
}

func (s *wsShellStream) Recv(_ context.Context) (ShellMessage, error) {
	var msg ShellMessage
	err := s.conn.ReadJSON(&msg)
	return msg, err
}

func (s *wsShellStream) Close() error {
	return s.conn.Close()
}
