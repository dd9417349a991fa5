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

// Package shared implements the lock-free-read slot that every routing
// entity (service, middleware, rule) is addressed through, so that a rule
// holding a reference observes config updates without being rewritten.
package shared

import "sync/atomic"

// Cell holds a single immutable snapshot of T. Get is wait-free; Set
// publishes a new snapshot with release semantics, so a subsequent Get on
// any goroutine observes either the pre- or post-update value in full,
// never a torn intermediate.
type Cell[T any] struct {
	v atomic.Pointer[T]
}

// New creates a Cell already holding val.
func New[T any](val T) *Cell[T] {
	c := &Cell[T]{}
	c.Set(val)
	return c
}

// Get returns the current snapshot. Safe to call concurrently with Set.
func (c *Cell[T]) Get() T {
	p := c.v.Load()
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// Set atomically replaces the snapshot.
func (c *Cell[T]) Set(val T) {
	c.v.Store(&val)
}

// Equal reports whether two cells currently point at equal values, per eq.
// Cell equality is defined over the pointed-to value, not cell identity.
func Equal[T any](a, b *Cell[T], eq func(x, y T) bool) bool {
	return eq(a.Get(), b.Get())
}
