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

// Package core implements the auto-TLS session: the challenge registry
// the ACME responder reads from, the certificate request queue the
// session loop drains, and the issuance/renewal loops themselves.
package core

import "sync"

// ChallengeList is token → key-authorization, replicated across the
// cluster by internal/autotls/cluster's FSM so every node can answer an
// HTTP-01 validation request regardless of which node is doing the
// issuing. Satisfies internalservices.ChallengeLookup.
type ChallengeList struct {
	mu    sync.RWMutex
	pairs map[string]string
}

// NewChallengeList returns an empty ChallengeList.
func NewChallengeList() *ChallengeList {
	return &ChallengeList{pairs: make(map[string]string)}
}

// Add installs a batch of token → key-authorization pairs, as applied by
// the cluster FSM's AddVerifyingData entries.
func (c *ChallengeList) Add(pairs map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for token, keyAuth := range pairs {
		c.pairs[token] = keyAuth
	}
}

// Remove drops every pair belonging to a domain's verification round.
// Since ChallengeList only tracks token → key-authorization, the caller
// that knows which tokens belonged to domain passes them directly.
func (c *ChallengeList) Remove(tokens []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, token := range tokens {
		delete(c.pairs, token)
	}
}

// Lookup implements internalservices.ChallengeLookup.
func (c *ChallengeList) Lookup(token string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.pairs[token]
	return v, ok
}

// Snapshot returns a copy of every pair currently held, for the cluster
// FSM to serialize into a Raft snapshot.
func (c *ChallengeList) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.pairs))
	for k, v := range c.pairs {
		out[k] = v
	}
	return out
}

// Restore replaces the entire contents, for the cluster FSM's snapshot
// restore path.
func (c *ChallengeList) Restore(pairs map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs = pairs
}
