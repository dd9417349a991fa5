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

// Package actions implements the built-in config.Action variants: the
// request/response transforms a Middleware can run.
package actions

import (
	"net/http"

	"github.com/flowroute/flowroute/internal/httpproxy"
)

// Noop does nothing on either side of the chain. It exists so a rule can
// reference a middleware slot without any behavior, and so every action
// variant has an explicit, named zero case.
type Noop struct{}

func (Noop) ApplyRequest(*http.Request) (*httpproxy.Response, error) { return nil, nil }
func (Noop) ApplyResponse(*http.Request, *httpproxy.Response) error  { return nil }
