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

// Package config holds the live, continuously-updated model that the
// dispatch engine reads on every request: services, middlewares, rules and
// plugins, each kept behind a Shared cell so existing references observe
// in-place updates without the referencing Rule being rewritten.
package config

import (
	"sync"

	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/shared"
)

// Collection is a mutex-guarded map of Name to Shared[T]. Writes take the
// mutex; Get returns the Shared cell itself so callers can hand out a
// reference that keeps observing future in-place updates.
type Collection[T any] struct {
	mu      sync.Mutex
	entries map[name.Name]*shared.Cell[T]
	newZero func(n name.Name) T
}

// NewCollection builds an empty collection. newZero produces the
// placeholder value GetOrDefault installs when an entry is first
// referenced before any configurator has populated it — this is how
// forward references between rules and middlewares/services resolve
// regardless of source load order.
func NewCollection[T any](newZero func(n name.Name) T) *Collection[T] {
	return &Collection[T]{
		entries: make(map[name.Name]*shared.Cell[T]),
		newZero: newZero,
	}
}

// Set inserts or updates the entry for n. If an entry already exists its
// Shared cell is updated in place, so every existing reference to it
// observes v on their next Get. Otherwise a new cell is created.
func (c *Collection[T]) Set(n name.Name, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cell, ok := c.entries[n]; ok {
		cell.Set(v)
		return
	}
	c.entries[n] = shared.New(v)
}

// Get returns the Shared cell for n, or false if it has never been set.
func (c *Collection[T]) Get(n name.Name) (*shared.Cell[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cell, ok := c.entries[n]
	return cell, ok
}

// GetOrDefault returns the Shared cell for n, creating it with newZero if
// absent. Used to resolve a rule's middleware/service reference before
// the referenced entity has actually been loaded.
func (c *Collection[T]) GetOrDefault(n name.Name) *shared.Cell[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cell, ok := c.entries[n]; ok {
		return cell
	}
	cell := shared.New(c.newZero(n))
	c.entries[n] = cell
	return cell
}

// Remove deletes the entry for n, if present.
func (c *Collection[T]) Remove(n name.Name) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, n)
}

// GetAll returns a snapshot of every name currently in the collection,
// paired with its Shared cell.
func (c *Collection[T]) GetAll() map[name.Name]*shared.Cell[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[name.Name]*shared.Cell[T], len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
