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
	"net/http"
	"strconv"
	"strings"

	"github.com/flowroute/flowroute/internal/httpproxy"
)

// CorsOptions configures the Cors action.
type CorsOptions struct {
	Origins         []string
	MaxAge          *int
	AllowCredentials bool
	AllowMethods    []string
	AllowHeaders    []string
}

// Cors answers CORS preflight/actual-request headers when the request's
// Origin is present and allow-listed. It never touches the request.
type Cors struct {
	Options CorsOptions
}

func (Cors) ApplyRequest(*http.Request) (*httpproxy.Response, error) { return nil, nil }

func (a Cors) ApplyResponse(req *http.Request, resp *httpproxy.Response) error {
	origin := req.Header.Get("Origin")
	if origin == "" || !a.originAllowed(origin) {
		return nil
	}

	resp.Header.Set("Access-Control-Allow-Origin", origin)
	if a.Options.MaxAge != nil {
		resp.Header.Set("Access-Control-Max-Age", strconv.Itoa(*a.Options.MaxAge))
	}
	if a.Options.AllowCredentials {
		resp.Header.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(a.Options.AllowMethods) > 0 {
		resp.Header.Set("Access-Control-Allow-Methods", strings.Join(a.Options.AllowMethods, ", "))
	}
	if len(a.Options.AllowHeaders) > 0 {
		resp.Header.Set("Access-Control-Allow-Headers", strings.Join(a.Options.AllowHeaders, ", "))
	}
	return nil
}

func (a Cors) originAllowed(origin string) bool {
	for _, o := range a.Options.Origins {
		if o == origin {
			return true
		}
	}
	return false
}
