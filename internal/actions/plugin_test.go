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
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/httpproxy"
	"github.com/flowroute/flowroute/internal/name"
)

type stubModule struct{ inst *stubInstance }

func (m *stubModule) NewInstance([]byte) (config.ModuleInstance, error) { return m.inst, nil }

type stubInstance struct {
	reqResult  config.PluginResult
	reqErr     error
	respResult config.PluginResult
	respErr    error
}

func (s *stubInstance) ApplyRequest(ctx context.Context, req *http.Request) (config.PluginResult, error) {
	return s.reqResult, s.reqErr
}

func (s *stubInstance) ApplyResponse(ctx context.Context, req *http.Request, status int, header http.Header, body []byte) (config.PluginResult, error) {
	return s.respResult, s.respErr
}

func newTestPlugin(inst *stubInstance) Plugin {
	mod := &stubModule{inst: inst}
	p := &config.Plugin{Name: name.New("p", name.Internal), Module: mod}
	return Plugin{Instance: &config.PluginInstance{Plugin: p}}
}

func TestPluginApplyRequestSetsPath(t *testing.T) {
	newPath := "/rewritten"
	p := newTestPlugin(&stubInstance{reqResult: config.PluginResult{SetPath: &newPath}})
	req := newReq("GET", "/original", nil)

	resp, err := p.ApplyRequest(req)
	if err != nil {
		t.Fatalf("ApplyRequest: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected chain to continue, got %+v", resp)
	}
	if req.URL.Path != newPath {
		t.Fatalf("Path = %q, want %q", req.URL.Path, newPath)
	}
}

func TestPluginApplyRequestSubstituteResponse(t *testing.T) {
	p := newTestPlugin(&stubInstance{reqResult: config.PluginResult{
		Substitute: &config.SubstituteResponse{Status: http.StatusTeapot, Body: []byte("teapot")},
	}})
	resp, err := p.ApplyRequest(newReq("GET", "/", nil))
	if err != nil {
		t.Fatalf("ApplyRequest: %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusTeapot {
		t.Fatalf("expected substitute 418 response, got %+v", resp)
	}
}

func TestPluginApplyRequestTrapReturns500(t *testing.T) {
	p := newTestPlugin(&stubInstance{reqErr: errors.New("guest trapped")})
	resp, err := p.ApplyRequest(newReq("GET", "/", nil))
	if err != nil {
		t.Fatalf("ApplyRequest should not surface the trap as a Go error: %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 on trap, got %+v", resp)
	}
}

func TestPluginApplyResponseSetsHeader(t *testing.T) {
	p := newTestPlugin(&stubInstance{respResult: config.PluginResult{SetHeader: map[string]string{"X-Plugin": "yes"}}})
	resp := httpproxy.NewSimple(http.StatusOK, "body")
	if err := p.ApplyResponse(newReq("GET", "/", nil), resp); err != nil {
		t.Fatalf("ApplyResponse: %v", err)
	}
	if resp.Header.Get("X-Plugin") != "yes" {
		t.Fatalf("X-Plugin header not set")
	}
}
