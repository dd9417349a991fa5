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

package core

import "context"

// ClusterAction tags a replicated log entry's effect on the challenge
// list. internal/autotls/cluster's FSM applies these against a
// ChallengeList; its own ClusterRequest type reuses this type so the two
// packages agree on the wire vocabulary without core importing cluster.
type ClusterAction string

const (
	// ActionMissingCert records that a follower received a request for a
	// domain it couldn't generate itself. Neither the FSM nor the session
	// loop acts on it.
	ActionMissingCert ClusterAction = "missing_cert"
	// ActionAddVerifyingData installs token/key-authorization pairs into
	// every node's ChallengeList ahead of ACME validation.
	ActionAddVerifyingData ClusterAction = "add_verifying_data"
	// ActionRemoveVerifyingData clears a domain's challenge pairs once
	// validation has completed.
	ActionRemoveVerifyingData ClusterAction = "remove_verifying_data"
)

// Cluster is the narrow view of the replicated log the session loop
// needs: whether this node may generate certificates right now, and how
// to submit a log entry (which a follower transparently forwards to the
// leader over the cluster HTTP port). Satisfied by
// internal/autotls/cluster.Node without an import from core onto
// cluster.
type Cluster interface {
	IsLeader() bool
	Submit(ctx context.Context, domain string, action ClusterAction, pairs map[string]string) error
}

// soloCluster is the degenerate single-node Cluster: always the leader,
// and Submit applies the entry directly against the local challenge list
// since there is no log to replicate it through. Used when clustering is
// disabled entirely (a single flowrouted instance with no --cluster-addr
// peers).
type soloCluster struct {
	challenges *ChallengeList
}

// NewSoloCluster returns a Cluster suitable for a single, unclustered
// node: every submission is applied locally and immediately.
func NewSoloCluster(challenges *ChallengeList) Cluster {
	return &soloCluster{challenges: challenges}
}

func (s *soloCluster) IsLeader() bool { return true }

func (s *soloCluster) Submit(_ context.Context, _ string, action ClusterAction, pairs map[string]string) error {
	switch action {
	case ActionAddVerifyingData:
		s.challenges.Add(pairs)
	case ActionRemoveVerifyingData:
		tokens := make([]string, 0, len(pairs))
		for token := range pairs {
			tokens = append(tokens, token)
		}
		s.challenges.Remove(tokens)
	case ActionMissingCert:
		// A solo node is always the leader, so MissingCert never fires
		// in practice; accept it as a no-op rather than erroring.
	}
	return nil
}
