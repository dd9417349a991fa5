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

package internalservices

import (
	"net/http"
	"strings"

	"github.com/flowroute/flowroute/internal/httpproxy"
)

const acmeChallengePrefix = "/.well-known/acme-challenge/"

// ChallengeLookup is the narrow view of the auto-TLS challenge registry
// the responder needs, satisfied by internal/autotls/core.ChallengeList
// without this package importing it.
type ChallengeLookup interface {
	Lookup(token string) (keyAuthorization string, ok bool)
}

// ACMEResponder answers HTTP-01 challenge requests from the cluster-wide
// challenge registry.
type ACMEResponder struct {
	Challenges ChallengeLookup
}

// Handle implements dispatch.Handler.
func (a *ACMEResponder) Handle(req *http.Request) (*httpproxy.Response, error) {
	token := strings.TrimPrefix(req.URL.Path, acmeChallengePrefix)
	if token == req.URL.Path || token == "" {
		return httpproxy.NewSimple(http.StatusNotFound, "Not Found\n"), nil
	}
	keyAuth, ok := a.Challenges.Lookup(token)
	if !ok {
		return httpproxy.NewSimple(http.StatusNotFound, "Not Found\n"), nil
	}
	return httpproxy.NewSimple(http.StatusOK, keyAuth), nil
}
