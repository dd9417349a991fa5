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
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// MembershipUpdate mirrors discovery.NodeUpdate's shape. The caller
// wiring a discovery adapter to this reconciler converts each
// discovery.NodeUpdate into one of these, keeping the dependency edge
// one-directional (discovery → cluster, never the reverse).
type MembershipUpdate struct {
	ID     string
	Addr   string
	Remove bool
}

// ReconcileMembership applies discovery updates to the Raft
// configuration whenever this node is the leader, per the rule that
// only the leader calls add_non_voter/change_membership when it
// observes a new peer.
func ReconcileMembership(ctx context.Context, node *Node, updates <-chan MembershipUpdate, logger log.Logger) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if !node.IsLeader() {
				continue
			}
			if u.Remove {
				if err := node.RemoveServer(u.ID); err != nil {
					level.Warn(logger).Log("msg", "failed to remove cluster member", "id", u.ID, "err", err)
				}
				continue
			}
			if err := node.AddVoter(u.ID, u.Addr); err != nil {
				level.Warn(logger).Log("msg", "failed to add cluster member", "id", u.ID, "addr", u.Addr, "err", err)
			}
		}
	}
}
