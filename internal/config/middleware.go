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
	"net/http"

	"github.com/flowroute/flowroute/internal/httpproxy"
	"github.com/flowroute/flowroute/internal/name"
)

// Action is the contract every built-in and plugin-backed middleware
// implements (internal/actions holds the concrete variants). Config only
// depends on this interface, not on the actions package, so the dispatch
// engine and configurators can hold a Middleware without caring which
// action is behind it.
type Action interface {
	// ApplyRequest runs the request-side half of the action. Returning a
	// non-nil response short-circuits the rest of the chain and the
	// forward step: the response is sent directly to the client.
	ApplyRequest(req *http.Request) (*httpproxy.Response, error)

	// ApplyResponse runs the response-side half, mutating resp in place.
	ApplyResponse(req *http.Request, resp *httpproxy.Response) error
}

// Middleware pairs a Name with the Action it runs. Mutated only by full
// replacement via Collection.Set, never in place.
type Middleware struct {
	Name   name.Name
	Action Action
}

// NoopAction is the Action of the placeholder Middleware a Collection
// installs for a name referenced before any configurator has defined it.
type NoopAction struct{}

func (NoopAction) ApplyRequest(*http.Request) (*httpproxy.Response, error) { return nil, nil }
func (NoopAction) ApplyResponse(*http.Request, *httpproxy.Response) error  { return nil }

// DefaultMiddleware is the zero-value producer for Collection[*Middleware].
func DefaultMiddleware(n name.Name) *Middleware {
	return &Middleware{Name: n, Action: NoopAction{}}
}
