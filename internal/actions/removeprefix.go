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
	"strings"

	"github.com/flowroute/flowroute/internal/httpproxy"
)

// RemovePrefix strips Prefix from the front of the request path before
// forwarding, leaving the path unchanged if it doesn't start with Prefix.
type RemovePrefix struct {
	Prefix string
}

func (a RemovePrefix) ApplyRequest(req *http.Request) (*httpproxy.Response, error) {
	if strings.HasPrefix(req.URL.Path, a.Prefix) {
		req.URL.Path = req.URL.Path[len(a.Prefix):]
	}
	return nil, nil
}

func (RemovePrefix) ApplyResponse(*http.Request, *httpproxy.Response) error { return nil }
