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

package rules

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/flowroute/flowroute/internal/matcher"
	"github.com/flowroute/flowroute/internal/name"
)

func mustURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func TestRuleListFindBeforePublish(t *testing.T) {
	l := NewRuleList()
	l.Add(&Rule{Name: name.New("r", name.Internal), Priority: 1, Matcher: matcher.PathPrefix("/")})
	req := &http.Request{URL: mustURL("/anything")}
	if _, ok := l.Find(req); ok {
		t.Fatalf("Find should report no match before the first Publish")
	}
}

func TestRuleListFindPriorityOrder(t *testing.T) {
	l := NewRuleList()
	low := &Rule{Name: name.New("low", name.Internal), Priority: 1, Matcher: matcher.PathPrefix("/api")}
	high := &Rule{Name: name.New("high", name.Internal), Priority: 10, Matcher: matcher.PathPrefix("/api")}
	l.Add(low)
	l.Add(high)
	l.Sort()
	l.Publish()

	req := &http.Request{URL: mustURL("/api/widgets")}
	got, ok := l.Find(req)
	if !ok || got != high {
		t.Fatalf("Find should return the higher-priority rule first, got %v", got)
	}
}

func TestRuleListTieBreakInsertionOrder(t *testing.T) {
	l := NewRuleList()
	first := &Rule{Name: name.New("first", name.Internal), Priority: 5, Matcher: matcher.PathPrefix("/api")}
	second := &Rule{Name: name.New("second", name.Internal), Priority: 5, Matcher: matcher.PathPrefix("/api")}
	l.Add(first)
	l.Add(second)
	l.Sort()
	l.Publish()

	req := &http.Request{URL: mustURL("/api/widgets")}
	got, ok := l.Find(req)
	if !ok || got != first {
		t.Fatalf("Find should prefer the first-inserted rule on a priority tie, got %v", got)
	}
}

func TestRuleListSnapshotIsSortedNonIncreasing(t *testing.T) {
	l := NewRuleList()
	l.Add(&Rule{Name: name.New("a", name.Internal), Priority: 3, Matcher: matcher.PathPrefix("/")})
	l.Add(&Rule{Name: name.New("b", name.Internal), Priority: 9, Matcher: matcher.PathPrefix("/")})
	l.Add(&Rule{Name: name.New("c", name.Internal), Priority: 1, Matcher: matcher.PathPrefix("/")})
	l.Sort()
	l.Publish()

	snap := l.Snapshot()
	for i := 1; i < len(snap); i++ {
		if snap[i-1].Priority < snap[i].Priority {
			t.Fatalf("snapshot not sorted non-increasing: %+v", snap)
		}
	}
}

func TestRuleListClearDoesNotAffectPublishedSnapshot(t *testing.T) {
	l := NewRuleList()
	l.Add(&Rule{Name: name.New("a", name.Internal), Priority: 1, Matcher: matcher.PathPrefix("/")})
	l.Sort()
	l.Publish()

	l.Clear()
	l.Add(&Rule{Name: name.New("b", name.Internal), Priority: 2, Matcher: matcher.PathPrefix("/other")})

	// The snapshot readers see is still the one from before Clear, until
	// the next Publish.
	snap := l.Snapshot()
	if len(snap) != 1 || snap[0].Name.Local != "a" {
		t.Fatalf("Clear must not mutate the published snapshot, got %+v", snap)
	}
}

func TestRuleAndOrIdentityLaws(t *testing.T) {
	req := &http.Request{Host: "example.com", URL: mustURL("/api")}
	m := matcher.Domain("example.com")

	if got := (matcher.And{m}).Match(req); got != m.Match(req) {
		t.Fatalf("And([m]).Match() = %v, want %v", got, m.Match(req))
	}
	if got := (matcher.Or{m}).Match(req); got != m.Match(req) {
		t.Fatalf("Or([m]).Match() = %v, want %v", got, m.Match(req))
	}
}
