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
	"sort"
	"sync/atomic"
)

// RuleList is the read/write-split routing table. The write side
// (Add/Sort/Clear/Publish) is only ever driven by the single Manager
// goroutine that owns it; the read side (Find) is safe from any number of
// concurrent request-handling goroutines without locking, since it only
// ever loads an already-published, immutable snapshot.
type RuleList struct {
	snapshot atomic.Pointer[[]*Rule]

	staging []*Rule
	nextSeq uint64
}

// NewRuleList returns an empty RuleList. Before the first Publish, Find
// always reports no match — there is no implicit empty snapshot readers
// could mistake for "loaded".
func NewRuleList() *RuleList {
	return &RuleList{}
}

// Add appends r to the staging buffer, stamping it with the next insertion
// sequence number so that a later Sort breaks priority ties in add order.
func (l *RuleList) Add(r *Rule) {
	r.seq = l.nextSeq
	l.nextSeq++
	l.staging = append(l.staging, r)
}

// Sort orders the staging buffer by descending priority, breaking ties by
// ascending insertion sequence (first added, first tried).
func (l *RuleList) Sort() {
	sort.SliceStable(l.staging, func(i, j int) bool {
		a, b := l.staging[i], l.staging[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.seq < b.seq
	})
}

// Clear empties the staging buffer without touching the currently
// published snapshot.
func (l *RuleList) Clear() {
	l.staging = nil
}

// Publish copies the current staging buffer into a fresh snapshot and
// atomically swaps it in. After Publish returns, every Find call — on any
// goroutine — observes either this snapshot or a later one, never a mix.
func (l *RuleList) Publish() {
	snap := make([]*Rule, len(l.staging))
	copy(snap, l.staging)
	l.snapshot.Store(&snap)
}

// Find scans the current snapshot in order and returns the first rule
// whose matcher accepts req. Reports false if no rule matches, or if
// Publish has never been called.
func (l *RuleList) Find(req *http.Request) (*Rule, bool) {
	p := l.snapshot.Load()
	if p == nil {
		return nil, false
	}
	for _, r := range *p {
		if r.Matcher.Match(req) {
			return r, true
		}
	}
	return nil, false
}

// Snapshot returns a copy of the currently published rule list, in
// priority order. Used by the dashboard's read-only routing view.
func (l *RuleList) Snapshot() []*Rule {
	p := l.snapshot.Load()
	if p == nil {
		return nil
	}
	out := make([]*Rule, len(*p))
	copy(out, *p)
	return out
}
