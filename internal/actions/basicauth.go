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
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/flowroute/flowroute/internal/htpasswd"
	"github.com/flowroute/flowroute/internal/httpproxy"
)

// BasicAuth gates the request behind HTTP Basic credentials checked
// against an htpasswd file. A missing Authorization header gets a
// challenge response; a malformed header or a wrong password is rejected
// outright, matching the stricter no-retry-hint behavior of an auth gate.
type BasicAuth struct {
	Realm string
	Users htpasswd.File
}

func (a BasicAuth) ApplyRequest(req *http.Request) (*httpproxy.Response, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		resp := httpproxy.NewSimple(http.StatusUnauthorized, "Unauthorized\n")
		resp.Header.Set("WWW-Authenticate", `Basic realm="`+a.Realm+`"`)
		return resp, nil
	}

	user, pass, ok := parseBasicAuth(header)
	if !ok {
		return httpproxy.NewSimple(http.StatusForbidden, "Forbidden\n"), nil
	}
	if !a.Users.Check(user, pass) {
		return httpproxy.NewSimple(http.StatusForbidden, "Forbidden\n"), nil
	}
	return nil, nil
}

func (BasicAuth) ApplyResponse(*http.Request, *httpproxy.Response) error { return nil }

func parseBasicAuth(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	user, pass, ok = strings.Cut(string(decoded), ":")
	return user, pass, ok
}
