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
	"encoding/json"
	"net/http"

	"github.com/agent-runtime/arl/internal/gateway/arlerror"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, arlerror.StatusCode(err), arlerror.ToResponse(err))
}

// decodeAndValidate decodes the request body into dst and runs struct-tag
// validation, writing an InvalidArgument response and returning false on
// either failure.
func (g *Gateway) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, arlerror.Wrap(arlerror.KindInvalidArgument, "malformed request body", err))
		return false
	}
	if err := g.validate.Struct(dst); err != nil {
		writeError(w, arlerror.Wrap(arlerror.KindInvalidArgument, "request failed validation", err))
		return false
	}
	return true
}
