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

package config

import (
	"context"
	"net/http"

	"github.com/flowroute/flowroute/internal/name"
)

// Module is the contract a compiled WASM module satisfies (implemented by
// internal/wasmhost). Config only depends on this interface so that
// plugin-backed middlewares can be held in a Collection without config
// importing the WASM runtime.
type Module interface {
	// NewInstance binds the module to a specific configuration blob,
	// producing the callable per-rule instance.
	NewInstance(configBlob []byte) (ModuleInstance, error)
}

// ModuleInstance is a Module bound to one configuration blob, as used by a
// single Middleware's Plugin action.
type ModuleInstance interface {
	ApplyRequest(ctx context.Context, req *http.Request) (PluginResult, error)
	ApplyResponse(ctx context.Context, req *http.Request, status int, header http.Header, body []byte) (PluginResult, error)
}

// PluginResult is what a guest call produces: either a set of mutations to
// apply to the in-flight request/response, or a substitute response that
// short-circuits the chain.
type PluginResult struct {
	SetPath   *string
	SetHeader map[string]string
	SetBody   []byte

	// Substitute, if non-nil, replaces the in-flight response entirely —
	// the guest's "positive return value" case from the host contract.
	Substitute *SubstituteResponse
}

// SubstituteResponse is the response a plugin can hand back directly
// instead of letting the chain continue.
type SubstituteResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// Plugin is a named, compiled WASM module shared across every rule that
// references it. Equality between plugin instances is by Plugin name only,
// per the data model: two rules naming the same plugin share the compiled
// module and its runtime resources.
type Plugin struct {
	Name   name.Name
	Module Module
}

// PluginInstance pairs a Plugin with the configuration blob a specific
// BasicAuth-style middleware binds it to.
type PluginInstance struct {
	Plugin     *Plugin
	ConfigBlob []byte

	instance ModuleInstance
}

// Bind lazily creates the underlying ModuleInstance on first use and
// caches it; callers must not share a PluginInstance across goroutines
// without external synchronization around Bind's first call — in practice
// PluginInstance is created once at configurator time and never raced.
func (pi *PluginInstance) Bind() (ModuleInstance, error) {
	if pi.instance != nil {
		return pi.instance, nil
	}
	inst, err := pi.Plugin.Module.NewInstance(pi.ConfigBlob)
	if err != nil {
		return nil, err
	}
	pi.instance = inst
	return inst, nil
}
