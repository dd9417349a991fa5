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

// Package cluster replicates the ACME challenge list across every
// flowrouted instance over a Raft log, so any node can answer an HTTP-01
// validation request regardless of which one is performing issuance.
package cluster

import (
	"encoding/json"

	"github.com/flowroute/flowroute/internal/autotls/core"
)

// ClusterRequest is one Raft log entry. It reuses core.ClusterAction so
// the FSM and the session loop agree on the action vocabulary without
// core depending on this package.
type ClusterRequest struct {
	Domain string             `json:"domain"`
	Action core.ClusterAction `json:"action"`
	Pairs  map[string]string  `json:"pairs,omitempty"`
}

// Encode serializes a request for the Raft log.
func (r ClusterRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeClusterRequest parses a Raft log entry's bytes back into a
// ClusterRequest.
func DecodeClusterRequest(b []byte) (ClusterRequest, error) {
	var r ClusterRequest
	err := json.Unmarshal(b, &r)
	return r, err
}
