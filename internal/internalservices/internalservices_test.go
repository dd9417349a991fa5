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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/matcher"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/rules"
	"github.com/flowroute/flowroute/internal/shared"
)

func TestDashboardRulesEndpoint(t *testing.T) {
	svc := config.NewService(name.New("svc", name.File), []string{"10.0.0.1:80"})
	r := &rules.Rule{
		Name:    name.New("r", name.File),
		Matcher: matcher.PathPrefix("/api"),
		Service: shared.New(svc),
		TLS:     rules.NoTLS,
	}
	rl := rules.NewRuleList()
	rl.Add(r)
	rl.Sort()
	rl.Publish()

	d := &Dashboard{Rules: rl}
	req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	resp, err := d.Handle(req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var views []ruleView
	if err := json.Unmarshal(body, &views); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(views) != 1 || views[0].Matcher != matcher.Format(r.Matcher) {
		t.Fatalf("views = %+v, want one view matching %q", views, matcher.Format(r.Matcher))
	}
}

func TestDashboardServesStaticIndex(t *testing.T) {
	d := &Dashboard{Rules: rules.NewRuleList()}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := d.Handle(req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		t.Fatalf("index.html body empty")
	}
}

func TestDashboardUnknownPathIs404(t *testing.T) {
	d := &Dashboard{Rules: rules.NewRuleList()}
	req := httptest.NewRequest(http.MethodGet, "/nope.js", nil)
	resp, err := d.Handle(req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

type stubChallenges map[string]string

func (s stubChallenges) Lookup(token string) (string, bool) {
	v, ok := s[token]
	return v, ok
}

func TestACMEResponderFoundAndMissing(t *testing.T) {
	a := &ACMEResponder{Challenges: stubChallenges{"tok1": "tok1.keyauth"}}

	found := httptest.NewRequest(http.MethodGet, acmeChallengePrefix+"tok1", nil)
	resp, err := a.Handle(found)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "tok1.keyauth" {
		t.Fatalf("body = %q, want tok1.keyauth", body)
	}

	missing := httptest.NewRequest(http.MethodGet, acmeChallengePrefix+"tok2", nil)
	resp, err = a.Handle(missing)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", resp.StatusCode)
	}
}
