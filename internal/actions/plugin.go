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

package actions

import (
	"bytes"
	"io"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/httpproxy"
)

// Plugin hands request/response mutation to a WASM guest module. A guest
// trap during either call is logged and answered with 500, rather than
// propagated as a Go error up through the dispatch loop. A substitute
// response whose status line is not an integer is answered with status
// 500 but keeps the guest's headers and body, and is not logged.
type Plugin struct {
	Instance *config.PluginInstance
	Logger   log.Logger
}

func (p Plugin) ApplyRequest(req *http.Request) (*httpproxy.Response, error) {
	inst, err := p.Instance.Bind()
	if err != nil {
		p.logTrap("apply_req bind", err)
		return httpproxy.NewSimple(http.StatusInternalServerError, "Internal Server Error\n"), nil
	}

	result, err := inst.ApplyRequest(req.Context(), req)
	if err != nil {
		p.logTrap("apply_req", err)
		return httpproxy.NewSimple(http.StatusInternalServerError, "Internal Server Error\n"), nil
	}

	if result.Substitute != nil {
		return substituteResponse(result.Substitute), nil
	}
	applyPluginResultToRequest(req, result)
	return nil, nil
}

func (p Plugin) ApplyResponse(req *http.Request, resp *httpproxy.Response) error {
	inst, err := p.Instance.Bind()
	if err != nil {
		p.logTrap("apply_resp bind", err)
		replaceWithInternalError(resp)
		return nil
	}

	if err := resp.BufferBody(); err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	result, err := inst.ApplyResponse(req.Context(), req, resp.StatusCode, resp.Header, body)
	if err != nil {
		p.logTrap("apply_resp", err)
		replaceWithInternalError(resp)
		return nil
	}

	if result.Substitute != nil {
		sub := substituteResponse(result.Substitute)
		*resp = *sub
		return nil
	}
	applyPluginResultToResponse(resp, result)
	return nil
}

func (p Plugin) logTrap(stage string, err error) {
	if p.Logger == nil {
		return
	}
	_ = level.Error(p.Logger).Log("msg", "plugin call failed", "stage", stage, "err", err)
}

func replaceWithInternalError(resp *httpproxy.Response) {
	sub := httpproxy.NewSimple(http.StatusInternalServerError, "Internal Server Error\n")
	*resp = *sub
}

func applyPluginResultToRequest(req *http.Request, result config.PluginResult) {
	if result.SetPath != nil {
		req.URL.Path = *result.SetPath
	}
	for k, v := range result.SetHeader {
		req.Header.Set(k, v)
	}
}

func applyPluginResultToResponse(resp *httpproxy.Response, result config.PluginResult) {
	for k, v := range result.SetHeader {
		resp.Header.Set(k, v)
	}
	if result.SetBody != nil {
		resp.Body = io.NopCloser(bytes.NewReader(result.SetBody))
	}
}

func substituteResponse(s *config.SubstituteResponse) *httpproxy.Response {
	h := s.Header
	if h == nil {
		h = http.Header{}
	}
	return &httpproxy.Response{
		StatusCode: s.Status,
		Proto:      "HTTP/1.1",
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader(s.Body)),
	}
}
