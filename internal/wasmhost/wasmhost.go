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

// Package wasmhost implements config.Module/config.ModuleInstance over
// tetratelabs/wazero: the guest is a WASM module exporting apply_req and
// apply_resp, and the host exports a single host_call(resource,
// operation, ptr, len) dispatcher (see abi.go) the guest calls back into
// to express request and response mutations.
package wasmhost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/flowroute/flowroute/internal/config"
)

// Host owns the wazero runtime shared by every loaded module. One Host
// is created per process; each plugin directory entry becomes one
// Module compiled against it.
type Host struct {
	runtime wazero.Runtime
}

// NewHost constructs a Host with WASI preview1 instantiated, since guest
// toolchains (TinyGo, Rust's wasm32-wasip1) commonly assume it's
// present even for modules that never touch the filesystem.
func NewHost(ctx context.Context) (*Host, error) {
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("wasmhost: instantiate WASI: %w", err)
	}
	return &Host{runtime: rt}, nil
}

// Close tears down the runtime and every module compiled against it.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// Compile loads wasmBytes as a named Module, ready to be bound to
// per-rule configuration blobs via NewInstance.
func (h *Host) Compile(ctx context.Context, name string, wasmBytes []byte) (config.Module, error) {
	compiled, err := h.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("wasmhost: compile %s: %w", name, err)
	}
	return &wasmModule{host: h, name: name, compiled: compiled}, nil
}

type wasmModule struct {
	host     *Host
	name     string
	compiled wazero.CompiledModule
}

// NewInstance implements config.Module.
func (m *wasmModule) NewInstance(configBlob []byte) (config.ModuleInstance, error) {
	ctx := context.Background()

	hostEnv := newHostEnv(configBlob)
	envBuilder := m.host.runtime.NewHostModuleBuilder("env")
	hostEnv.register(envBuilder)
	if _, err := envBuilder.Instantiate(ctx); err != nil {
		return nil, fmt.Errorf("wasmhost: instantiate host env for %s: %w", m.name, err)
	}

	moduleConfig := wazero.NewModuleConfig().WithName(m.name + "-instance")
	inst, err := m.host.runtime.InstantiateModule(ctx, m.compiled, moduleConfig)
	if err != nil {
		return nil, fmt.Errorf("wasmhost: instantiate %s: %w", m.name, err)
	}

	return &moduleInstance{mod: inst, env: hostEnv, name: m.name}, nil
}
