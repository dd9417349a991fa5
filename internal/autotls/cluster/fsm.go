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

package cluster

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/raft"

	"github.com/flowroute/flowroute/internal/autotls/core"
)

// FSM applies ClusterRequest log entries against a ChallengeList. The
// applied state is exactly the challenge list plus the index of the last
// entry applied, matching the two things a snapshot needs to capture.
type FSM struct {
	Challenges *core.ChallengeList

	lastApplied atomic.Uint64

	// domainTokens tracks which tokens belong to which in-flight domain
	// so a RemoveVerifyingData entry (which only names the domain) knows
	// which ChallengeList keys to drop.
	mu           sync.Mutex
	domainTokens map[string][]string
}

// NewFSM returns an FSM backed by challenges, which should also be the
// instance wired into the local ACME responder so applied entries are
// immediately visible to HTTP-01 validation requests.
func NewFSM(challenges *core.ChallengeList) *FSM {
	return &FSM{Challenges: challenges, domainTokens: make(map[string][]string)}
}

// LastAppliedIndex reports the Raft log index of the most recently
// applied entry, for diagnostics and snapshot-eligibility checks.
func (f *FSM) LastAppliedIndex() uint64 { return f.lastApplied.Load() }

// Apply implements raft.FSM.
func (f *FSM) Apply(entry *raft.Log) interface{} {
	defer f.lastApplied.Store(entry.Index)

	req, err := DecodeClusterRequest(entry.Data)
	if err != nil {
		return err
	}

	switch req.Action {
	case core.ActionAddVerifyingData:
		f.Challenges.Add(req.Pairs)
		f.mu.Lock()
		for token := range req.Pairs {
			f.domainTokens[req.Domain] = append(f.domainTokens[req.Domain], token)
		}
		f.mu.Unlock()
	case core.ActionRemoveVerifyingData:
		f.mu.Lock()
		tokens := f.domainTokens[req.Domain]
		delete(f.domainTokens, req.Domain)
		f.mu.Unlock()
		f.Challenges.Remove(tokens)
	case core.ActionMissingCert:
		// MissingCert carries no state for the FSM to apply. Applying it
		// changes nothing here, and nothing else in the process reacts
		// to it, so the leader does not start issuance because of it.
	}
	return nil
}

// Snapshot implements raft.FSM.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{
		lastApplied: f.lastApplied.Load(),
		pairs:       f.Challenges.Snapshot(),
	}, nil
}

// Restore implements raft.FSM.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap snapshotData
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return err
	}
	f.Challenges.Restore(snap.Pairs)
	f.lastApplied.Store(snap.LastApplied)
	return nil
}

type snapshotData struct {
	LastApplied uint64            `json:"last_applied"`
	Pairs       map[string]string `json:"pairs"`
}

type fsmSnapshot struct {
	lastApplied uint64
	pairs       map[string]string
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := json.NewEncoder(sink).Encode(snapshotData{LastApplied: s.lastApplied, Pairs: s.pairs})
	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
