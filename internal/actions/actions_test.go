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
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/flowroute/flowroute/internal/htpasswd"
	"github.com/flowroute/flowroute/internal/httpproxy"
)

func newReq(method, path string, headers map[string]string) *http.Request {
	u, _ := url.Parse(path)
	req := &http.Request{Method: method, URL: u, Header: http.Header{}}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestRemovePrefixStripsMatchingPrefix(t *testing.T) {
	a := RemovePrefix{Prefix: "/api"}
	req := newReq("GET", "/api/widgets", nil)
	if _, err := a.ApplyRequest(req); err != nil {
		t.Fatalf("ApplyRequest: %v", err)
	}
	if req.URL.Path != "/widgets" {
		t.Fatalf("Path = %q, want /widgets", req.URL.Path)
	}
}

func TestRemovePrefixLeavesNonMatchingPathAlone(t *testing.T) {
	a := RemovePrefix{Prefix: "/api"}
	req := newReq("GET", "/other", nil)
	if _, err := a.ApplyRequest(req); err != nil {
		t.Fatalf("ApplyRequest: %v", err)
	}
	if req.URL.Path != "/other" {
		t.Fatalf("Path = %q, want unchanged", req.URL.Path)
	}
}

func TestAddHeadersAppends(t *testing.T) {
	a := AddHeaders{Headers: []HeaderKV{{Key: "X-Foo", Value: "bar"}}}
	resp := httpproxy.NewSimple(http.StatusOK, "")
	if err := a.ApplyResponse(newReq("GET", "/", nil), resp); err != nil {
		t.Fatalf("ApplyResponse: %v", err)
	}
	if got := resp.Header.Get("X-Foo"); got != "bar" {
		t.Fatalf("X-Foo = %q, want bar", got)
	}
}

func TestCompressSkipsWhenClientDoesNotAcceptGzip(t *testing.T) {
	a := Compress{}
	req := newReq("GET", "/", nil) // no Accept-Encoding
	resp := httpproxy.NewSimple(http.StatusOK, "hello world")
	body, _ := io.ReadAll(resp.Body)
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if err := a.ApplyResponse(req, resp); err != nil {
		t.Fatalf("ApplyResponse: %v", err)
	}
	if resp.Header.Get("Content-Encoding") != "" {
		t.Fatalf("expected no Content-Encoding when client lacks gzip support")
	}
	got, _ := io.ReadAll(resp.Body)
	if string(got) != "hello world" {
		t.Fatalf("body changed despite no gzip support: %q", got)
	}
}

func TestCompressAddsGzipWhenAccepted(t *testing.T) {
	a := Compress{}
	req := newReq("GET", "/", map[string]string{"Accept-Encoding": "gzip, deflate"})
	resp := httpproxy.NewSimple(http.StatusOK, "hello world")

	if err := a.ApplyResponse(req, resp); err != nil {
		t.Fatalf("ApplyResponse: %v", err)
	}
	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", resp.Header.Get("Content-Encoding"))
	}
}

func TestCorsSetsAllowOriginWhenAllowListed(t *testing.T) {
	a := Cors{Options: CorsOptions{Origins: []string{"https://example.com"}}}
	req := newReq("GET", "/", map[string]string{"Origin": "https://example.com"})
	resp := httpproxy.NewSimple(http.StatusOK, "")

	if err := a.ApplyResponse(req, resp); err != nil {
		t.Fatalf("ApplyResponse: %v", err)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func TestCorsIgnoresUnlistedOrigin(t *testing.T) {
	a := Cors{Options: CorsOptions{Origins: []string{"https://example.com"}}}
	req := newReq("GET", "/", map[string]string{"Origin": "https://evil.example"})
	resp := httpproxy.NewSimple(http.StatusOK, "")

	if err := a.ApplyResponse(req, resp); err != nil {
		t.Fatalf("ApplyResponse: %v", err)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q, want empty", got)
	}
}

func TestBasicAuthMissingHeaderChallenges(t *testing.T) {
	a := BasicAuth{Realm: "proxy", Users: htpasswd.Parse("user:$apr1$lZL6V/ci$eIMz/iKDkbtys/uU7LEK00")}
	req := newReq("GET", "/", nil)
	resp, err := a.ApplyRequest(req)
	if err != nil {
		t.Fatalf("ApplyRequest: %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestBasicAuthAcceptsCorrectCredentials(t *testing.T) {
	a := BasicAuth{Realm: "proxy", Users: htpasswd.Parse("user:$apr1$lZL6V/ci$eIMz/iKDkbtys/uU7LEK00")}
	req := newReq("GET", "/", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:password")))

	resp, err := a.ApplyRequest(req)
	if err != nil {
		t.Fatalf("ApplyRequest: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected the chain to continue, got short-circuit response %+v", resp)
	}
}

func TestBasicAuthRejectsWrongPassword(t *testing.T) {
	a := BasicAuth{Realm: "proxy", Users: htpasswd.Parse("user:$apr1$lZL6V/ci$eIMz/iKDkbtys/uU7LEK00")}
	req := newReq("GET", "/", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:wrong")))

	resp, err := a.ApplyRequest(req)
	if err != nil {
		t.Fatalf("ApplyRequest: %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
}
