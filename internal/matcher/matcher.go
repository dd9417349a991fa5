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

// Package matcher implements the boolean request matcher tree (Domain,
// PathPrefix, And, Or) and its textual DSL.
package matcher

import (
	"net/http"
	"strings"
)

// Matcher decides whether a request satisfies a routing rule.
type Matcher interface {
	Match(req *http.Request) bool

	// format renders the matcher's own DSL text, without considering how
	// it nests inside a parent And/Or. Format (below) owns that.
	format() string
}

// Domain matches the Host header exactly, as an opaque case-sensitive
// string (see DESIGN.md's resolution of spec.md §9's case-sensitivity open
// question: header *names* are looked up case-insensitively, as the
// standard library already does, but a Domain's value is compared as
// given — callers that build one from user input are responsible for
// normalizing it).
type Domain string

func (d Domain) Match(req *http.Request) bool {
	host := req.Host
	if host == "" {
		host = req.Header.Get("Host")
	}
	if host == "" {
		return false
	}
	return stripPort(host) == string(d)
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i != -1 && strings.IndexByte(host[i+1:], ']') == -1 {
		return host[:i]
	}
	return host
}

func (d Domain) format() string { return "Host(`" + string(d) + "`)" }

// PathPrefix matches when the request path starts with the given prefix.
type PathPrefix string

func (p PathPrefix) Match(req *http.Request) bool {
	return strings.HasPrefix(req.URL.Path, string(p))
}

func (p PathPrefix) format() string { return "PathPrefix(`" + string(p) + "`)" }

// And is a short-circuiting conjunction: the first mismatching child
// decides the result.
type And []Matcher

func (a And) Match(req *http.Request) bool {
	for _, m := range a {
		if !m.Match(req) {
			return false
		}
	}
	return true
}

func (a And) format() string { return joinChildren([]Matcher(a), "&&") }

// Or is a short-circuiting disjunction: the first matching child decides
// the result.
type Or []Matcher

func (o Or) Match(req *http.Request) bool {
	for _, m := range o {
		if m.Match(req) {
			return true
		}
	}
	return false
}

func (o Or) format() string { return joinChildren([]Matcher(o), "||") }

func joinChildren(children []Matcher, op string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = formatChild(c)
	}
	return strings.Join(parts, " "+op+" ")
}

// formatChild renders a child matcher, parenthesizing it when it is
// itself a multi-element And/Or — the case the DSL grammar requires
// explicit parentheses for when mixed with a different operator.
func formatChild(m Matcher) string {
	switch v := m.(type) {
	case And:
		if len(v) > 1 {
			return "(" + v.format() + ")"
		}
	case Or:
		if len(v) > 1 {
			return "(" + v.format() + ")"
		}
	}
	return m.format()
}

// Format renders m back into DSL text at the top level (no surrounding
// parentheses), such that Parse(Format(m)) == m for any tree built by this
// package whose And/Or nodes have at least two children; a one-child And
// or Or comes back from Parse as that child alone.
func Format(m Matcher) string { return m.format() }

// GetHost returns the single host this matcher requires, when it is
// unambiguous: a bare Domain, or an And containing exactly one Domain.
// Used by the configurator to auto-enroll a rule's host for ACME issuance.
func GetHost(m Matcher) (string, bool) {
	switch v := m.(type) {
	case Domain:
		return string(v), true
	case And:
		var host string
		count := 0
		for _, child := range v {
			if d, ok := child.(Domain); ok {
				host = string(d)
				count++
			}
		}
		if count == 1 {
			return host, true
		}
	}
	return "", false
}
