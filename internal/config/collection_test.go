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

package config

import (
	"testing"

	"github.com/flowroute/flowroute/internal/name"
)

func TestCollectionGetOrDefaultThenSetPreservesIdentity(t *testing.T) {
	c := NewCollection(DefaultService)
	n := name.New("svc", name.File)

	// A rule references svc before any configurator has defined it.
	ref := c.GetOrDefault(n)
	if got := ref.Get().Addresses; len(got) != 0 {
		t.Fatalf("placeholder should have no addresses, got %v", got)
	}

	// The configurator later defines svc for real.
	c.Set(n, NewService(n, []string{"127.0.0.1:9001"}))

	// The rule's original reference observes the update in place.
	if got := ref.Get().Addresses; len(got) != 1 || got[0] != "127.0.0.1:9001" {
		t.Fatalf("ref did not observe update, got %v", got)
	}

	direct, ok := c.Get(n)
	if !ok {
		t.Fatalf("Get: not found")
	}
	if direct != ref {
		t.Fatalf("Get returned a different cell than GetOrDefault")
	}
}

func TestCollectionRemove(t *testing.T) {
	c := NewCollection(DefaultMiddleware)
	n := name.New("mw", name.Internal)
	c.Set(n, &Middleware{Name: n, Action: NoopAction{}})
	c.Remove(n)
	if _, ok := c.Get(n); ok {
		t.Fatalf("expected entry to be gone after Remove")
	}
}

func TestCollectionGetAll(t *testing.T) {
	c := NewCollection(DefaultMiddleware)
	a := name.New("a", name.Internal)
	b := name.New("b", name.Internal)
	c.Set(a, &Middleware{Name: a, Action: NoopAction{}})
	c.Set(b, &Middleware{Name: b, Action: NoopAction{}})

	all := c.GetAll()
	if len(all) != 2 {
		t.Fatalf("GetAll: got %d entries, want 2", len(all))
	}
}
