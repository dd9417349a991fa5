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
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"

	"github.com/flowroute/flowroute/internal/autotls/core"
)

// ErrNoLeader is returned by Submit when the cluster currently has no
// elected leader to forward a write to.
var ErrNoLeader = errors.New("cluster: no leader available")

// Node wraps a Raft instance over the challenge-list FSM and implements
// core.Cluster so the auto-TLS session loop can submit log entries
// without depending on this package's internals.
type Node struct {
	raft      *raft.Raft
	fsm       *FSM
	transport *HTTPTransport
	client    *http.Client
}

// Config bundles what's needed to stand up a Node.
type Config struct {
	ID         string
	BindAddr   string // this node's own cluster_addr, e.g. "10.0.0.5:9000"
	DataDir    string
	Challenges *core.ChallengeList
	Bootstrap  bool // true for a freshly created single-node cluster
}

// NewNode constructs and starts a Raft node. RegisterHandlers on the
// returned Node's transport still needs to be wired into the process's
// cluster HTTP mux by the caller.
func NewNode(cfg Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	fsm := NewFSM(cfg.Challenges)
	transport := NewHTTPTransport(raft.ServerAddress(cfg.BindAddr))

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.bolt"))
	if err != nil {
		return nil, err
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.bolt"))
	if err != nil {
		return nil, err
	}
	snapStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, err
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.ID)

	if cfg.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
		}
		if err := raft.BootstrapCluster(raftConfig, logStore, stableStore, snapStore, transport, configuration); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			return nil, err
		}
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapStore, transport)
	if err != nil {
		return nil, err
	}

	return &Node{raft: r, fsm: fsm, transport: transport, client: &http.Client{Timeout: 10 * time.Second}}, nil
}

// RegisterHandlers mounts the node's Raft RPC endpoints plus the
// leader-forwarding write endpoint onto mux.
func (n *Node) RegisterHandlers(mux *http.ServeMux) {
	n.transport.RegisterHandlers(mux)
	mux.HandleFunc("/leader/write", n.handleLeaderWrite)
}

// AddVoter adds id/addr as a full voting member; only the leader can do
// this meaningfully, matching the discovery loop's Add(id) handling.
func (n *Node) AddVoter(id, addr string) error {
	return n.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, 10*time.Second).Error()
}

// RemoveServer drops id from the cluster configuration.
func (n *Node) RemoveServer(id string) error {
	return n.raft.RemoveServer(raft.ServerID(id), 0, 10*time.Second).Error()
}

// IsLeader implements core.Cluster.
func (n *Node) IsLeader() bool { return n.raft.State() == raft.Leader }

// Submit implements core.Cluster: the leader applies directly through
// Raft; a follower forwards the request over HTTP to whichever node
// Raft currently reports as leader.
func (n *Node) Submit(ctx context.Context, domain string, action core.ClusterAction, pairs map[string]string) error {
	req := ClusterRequest{Domain: domain, Action: action, Pairs: pairs}

	if n.IsLeader() {
		data, err := req.Encode()
		if err != nil {
			return err
		}
		return n.raft.Apply(data, 10*time.Second).Error()
	}

	leaderAddr := n.raft.Leader()
	if leaderAddr == "" {
		return ErrNoLeader
	}
	return forwardWrite(ctx, n.client, string(leaderAddr), req)
}

func (n *Node) handleLeaderWrite(w http.ResponseWriter, r *http.Request) {
	if !n.IsLeader() {
		http.Error(w, ErrNoLeader.Error(), http.StatusServiceUnavailable)
		return
	}
	var req ClusterRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := req.Encode()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := n.raft.Apply(data, 10*time.Second).Error(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
