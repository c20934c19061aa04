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

// Package arlerror is the gateway's error taxonomy: every error the gateway
// surfaces to an HTTP client carries a machine-readable Kind and maps to an
// HTTP status, the gateway's counterpart to controllers/controllererror.
package arlerror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound       Kind = "NotFound"
	KindAlreadyExists  Kind = "AlreadyExists"
	KindInvalidArgument Kind = "InvalidArgument"
	KindPoolNotReady   Kind = "PoolNotReady"
	KindPoolPodsFailing Kind = "PoolPodsFailing"
	KindSandboxNotReady Kind = "SandboxNotReady"
	KindExecutionFailed Kind = "ExecutionFailed"
	KindSnapshotMissing Kind = "SnapshotMissing"
	KindConflict       Kind = "Conflict"
	KindTimeout        Kind = "Timeout"
	KindTransient      Kind = "Transient"
	KindInternal       Kind = "Internal"
)

var statusByKind = map[Kind]int{
	KindNotFound:        http.StatusNotFound,
	KindAlreadyExists:   http.StatusConflict,
	KindInvalidArgument: http.StatusBadRequest,
	KindPoolNotReady:    http.StatusServiceUnavailable,
	KindPoolPodsFailing: http.StatusServiceUnavailable,
	KindSandboxNotReady: http.StatusGatewayTimeout,
	KindExecutionFailed: http.StatusBadGateway,
	KindSnapshotMissing: http.StatusBadRequest,
	KindConflict:        http.StatusConflict,
	KindTimeout:         http.StatusGatewayTimeout,
	KindTransient:       http.StatusServiceUnavailable,
	KindInternal:        http.StatusInternalServerError,
}

// Error is a structured gateway error; its message is safe to return
// verbatim to clients in the {error, detail} response envelope.
type Error struct {
	Kind       Kind
	Message    string
	Detail     string
	Conditions []string
	cause      error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// StatusCode returns the HTTP status a client should see for this error.
func (e *Error) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind/message to an underlying error, preserving it for
// errors.Is/errors.As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithConditions attaches a WarmPool/Sandbox condition list (e.g. for
// PoolNotReady/PoolPodsFailing) so SDKs can render the underlying cause.
func (e *Error) WithConditions(conditions []string) *Error {
	e.Conditions = conditions
	return e
}

// As reports whether err (or something it wraps) is an *Error, mirroring
// errors.As for callers that only need the taxonomy, not the chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// StatusCode extracts the HTTP status for any error: arlerror.Error values
// carry one explicitly, anything else maps to 500.
func StatusCode(err error) int {
	if e, ok := As(err); ok {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}

// Response is the wire shape of every 4xx/5xx body.
type Response struct {
	Error      string   `json:"error"`
	Detail     string   `json:"detail,omitempty"`
	Kind       Kind     `json:"kind,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

// ToResponse renders any error into the HTTP envelope; unrecognised errors
// become an opaque Internal response so internals never leak to clients.
func ToResponse(err error) Response {
	e, ok := As(err)
	if !ok {
		return Response{Error: "internal error", Kind: KindInternal}
	}
	return Response{Error: e.Message, Detail: e.Detail, Kind: e.Kind, Conditions: e.Conditions}
}
