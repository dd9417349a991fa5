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

package wasmhost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/flowroute/flowroute/internal/config"
)

// moduleInstance is a compiled WASM module bound to one configuration
// blob, satisfying config.ModuleInstance. Guest calls are serialized:
// wazero module instances aren't safe for concurrent invocation.
type moduleInstance struct {
	mu   sync.Mutex
	mod  api.Module
	env  *hostEnv
	name string
}

// requestView is what apply_req receives, JSON-encoded into guest
// memory; it mirrors the subset of *http.Request a guest plausibly needs
// to inspect without handing it raw wire bytes.
type requestView struct {
	Method string              `json:"method"`
	Path   string              `json:"path"`
	Header map[string][]string `json:"header"`
}

type responseView struct {
	Status int                 `json:"status"`
	Header map[string][]string `json:"header"`
	Body   []byte              `json:"body"`
}

func (m *moduleInstance) ApplyRequest(ctx context.Context, req *http.Request) (config.PluginResult, error) {
	view := requestView{Method: req.Method, Path: req.URL.Path, Header: map[string][]string(req.Header)}
	data, err := json.Marshal(view)
	if err != nil {
		return config.PluginResult{}, err
	}
	return m.call(ctx, "apply_req", data)
}

func (m *moduleInstance) ApplyResponse(ctx context.Context, req *http.Request, status int, header http.Header, body []byte) (config.PluginResult, error) {
	view := responseView{Status: status, Header: map[string][]string(header), Body: body}
	data, err := json.Marshal(view)
	if err != nil {
		return config.PluginResult{}, err
	}
	return m.call(ctx, "apply_resp", data)
}

// call writes payload into guest memory via the guest's exported alloc
// function, invokes entrypoint(ptr, len), and returns whatever mutations
// the guest pushed through host_call during the invocation. The guest's
// return value is not read: a substitute response is taken only from an
// opSubstitute payload.
func (m *moduleInstance) call(ctx context.Context, entrypoint string, payload []byte) (config.PluginResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alloc := m.mod.ExportedFunction("alloc")
	if alloc == nil {
		return config.PluginResult{}, fmt.Errorf("wasmhost: module %s does not export alloc", m.name)
	}
	fn := m.mod.ExportedFunction(entrypoint)
	if fn == nil {
		return config.PluginResult{}, fmt.Errorf("wasmhost: module %s does not export %s", m.name, entrypoint)
	}

	allocated, err := alloc.Call(ctx, uint64(len(payload)))
	if err != nil {
		return config.PluginResult{}, fmt.Errorf("wasmhost: alloc in %s: %w", m.name, err)
	}
	ptr := uint32(allocated[0])
	if !m.mod.Memory().Write(ptr, payload) {
		return config.PluginResult{}, fmt.Errorf("wasmhost: failed writing guest memory for %s", entrypoint)
	}

	m.env.beginCall()
	if _, err := fn.Call(ctx, uint64(ptr), uint64(len(payload))); err != nil {
		return config.PluginResult{}, fmt.Errorf("wasmhost: %s trapped in %s: %w", entrypoint, m.name, err)
	}
	return m.env.pending, nil
}
