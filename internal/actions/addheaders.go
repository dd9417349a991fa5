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

	"github.com/flowroute/flowroute/internal/httpproxy"
)

// HeaderKV is one response header to append.
type HeaderKV struct {
	Key   string
	Value string
}

// AddHeaders appends each configured header to the response. Existing
// values for the same key are preserved — this is Add, not Set.
type AddHeaders struct {
	Headers []HeaderKV
}

func (AddHeaders) ApplyRequest(*http.Request) (*httpproxy.Response, error) { return nil, nil }

func (a AddHeaders) ApplyResponse(_ *http.Request, resp *httpproxy.Response) error {
	for _, kv := range a.Headers {
		resp.Header.Add(kv.Key, kv.Value)
	}
	return nil
}
