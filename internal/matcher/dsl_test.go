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

package matcher

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"testing"
)

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func TestParseMixedLevel(t *testing.T) {
	_, err := Parse("Host(`example.com`) && PathPrefix(`/api/`) || PathPrefix(`/dashboard/`)")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestParseRequiresParensForMixing(t *testing.T) {
	m, err := Parse("Host(`example.com`) && (PathPrefix(`/api/`) || PathPrefix(`/dashboard/`))")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := And{Domain("example.com"), Or{PathPrefix("/api/"), PathPrefix("/dashboard/")}}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("got %#v, want %#v", m, want)
	}
}

func TestParseUnknownMatcher(t *testing.T) {
	_, err := Parse("Method(`GET`)")
	var unknown *UnknownMatcherError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want *UnknownMatcherError", err)
	}
	if unknown.Key != "Method" {
		t.Fatalf("Key = %q, want Method", unknown.Key)
	}
}

func TestParseUnbalancedParens(t *testing.T) {
	for _, expr := range []string{
		"(Host(`example.com`)",
		"Host(`example.com`))",
		"Host(example.com`)",
		"Host(`example.com)",
	} {
		if _, err := Parse(expr); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Parse(%q) err = %v, want ErrInvalid", expr, err)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	exprs := []string{
		"Host(`example.com`)",
		"PathPrefix(`/api/`)",
		"Host(`example.com`) && PathPrefix(`/api/`)",
		"Host(`a.com`) || Host(`b.com`)",
		"Host(`example.com`) && (PathPrefix(`/api/`) || PathPrefix(`/dashboard/`))",
		"(Host(`a.com`) || Host(`b.com`)) && PathPrefix(`/api/`)",
	}
	for _, expr := range exprs {
		m, err := Parse(expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", expr, err)
		}
		got := Format(m)
		if got != expr {
			t.Fatalf("Format(Parse(%q)) = %q", expr, got)
		}
		// Reparsing the formatted text must yield the same tree.
		m2, err := Parse(got)
		if err != nil {
			t.Fatalf("Parse(Format(...)): %v", err)
		}
		if !reflect.DeepEqual(m, m2) {
			t.Fatalf("tree changed across round trip: %#v != %#v", m, m2)
		}
	}
}

func TestParsedMatcherMatches(t *testing.T) {
	m, err := Parse("Host(`example.com`) && (PathPrefix(`/api/`) || PathPrefix(`/dashboard/`))")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	req := &http.Request{Host: "example.com", URL: mustParseURL("/api/widgets")}
	if !m.Match(req) {
		t.Fatalf("expected match")
	}
	req2 := &http.Request{Host: "example.com", URL: mustParseURL("/other")}
	if m.Match(req2) {
		t.Fatalf("expected no match")
	}
	req3 := &http.Request{Host: "other.com", URL: mustParseURL("/api/widgets")}
	if m.Match(req3) {
		t.Fatalf("expected no match on wrong host")
	}
}

func TestGetHost(t *testing.T) {
	m, _ := Parse("Host(`example.com`) && PathPrefix(`/api/`)")
	host, ok := GetHost(m)
	if !ok || host != "example.com" {
		t.Fatalf("GetHost = %q, %v, want example.com, true", host, ok)
	}

	bare := Domain("bare.com")
	host, ok = GetHost(bare)
	if !ok || host != "bare.com" {
		t.Fatalf("GetHost(bare) = %q, %v", host, ok)
	}

	noHost, _ := Parse("PathPrefix(`/api/`) || PathPrefix(`/dashboard/`)")
	if _, ok := GetHost(noHost); ok {
		t.Fatalf("GetHost should fail without an unambiguous Domain")
	}
}
