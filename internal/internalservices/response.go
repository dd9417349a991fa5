// Copyright 2026 The Flowroute Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package internalservices implements the Services whose requests never
// leave the process: the dashboard's JSON API plus static asset server,
// and the ACME HTTP-01 challenge responder.
package internalservices

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/flowroute/flowroute/internal/httpproxy"
)

// writeJSON marshals data as the body of a 200 response. A marshal
// failure degrades to a 500 with a plain-text body rather than a panic,
// matching every built-in action's short-circuit shape.
func writeJSON(logger log.Logger, data any) *httpproxy.Response {
	body, err := json.Marshal(data)
	if err != nil {
		_ = level.Error(logger).Log("msg", "marshal dashboard response failed", "err", err)
		return httpproxy.NewSimple(http.StatusInternalServerError, "internal error\n")
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	return &httpproxy.Response{
		StatusCode: http.StatusOK,
		Proto:      "HTTP/1.1",
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}
