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

// Package discovery supplies the cluster package with the set of peer
// node addresses to converge membership against, from either a
// Kubernetes Endpoints object or a static file.
package discovery

import "context"

// NodeID identifies a cluster member, matching cluster.NodeID's output.
type NodeID string

// NodeUpdate is one membership change delivered over a watch channel.
type NodeUpdate struct {
	ID     NodeID
	Addr   string // host:port, empty on Remove
	Remove bool
}

// AutoDiscover reports this node's own ID, the current full membership,
// and streams subsequent changes.
type AutoDiscover interface {
	OwnID() NodeID
	AllNodes(ctx context.Context) (map[NodeID]string, error)
	Watch(ctx context.Context) <-chan NodeUpdate
}
