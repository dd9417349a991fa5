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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/raft"
)

// HTTPTransport implements raft.Transport over plain JSON HTTP requests,
// rather than the binary stream protocol raft.NetworkTransport speaks.
// Every member exposes /entries/append, /snapshot/install and /vote so
// that the cluster HTTP port (the same one used for /leader/write) is
// the single network surface a node needs to participate.
type HTTPTransport struct {
	local      raft.ServerAddress
	client     *http.Client
	consumerCh chan raft.RPC
	heartbeat  func(raft.RPC)
}

// NewHTTPTransport returns a transport bound to local (this node's own
// cluster_addr). Call RegisterHandlers on an *http.ServeMux to wire up
// the inbound RPC paths.
func NewHTTPTransport(local raft.ServerAddress) *HTTPTransport {
	return &HTTPTransport{
		local:      local,
		client:     &http.Client{Timeout: 10 * time.Second},
		consumerCh: make(chan raft.RPC, 64),
	}
}

// RegisterHandlers mounts the transport's inbound RPC endpoints.
func (t *HTTPTransport) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/entries/append", t.handleAppendEntries)
	mux.HandleFunc("/vote", t.handleRequestVote)
	mux.HandleFunc("/snapshot/install", t.handleInstallSnapshot)
}

func (t *HTTPTransport) Consumer() <-chan raft.RPC { return t.consumerCh }

func (t *HTTPTransport) LocalAddr() raft.ServerAddress { return t.local }

func (t *HTTPTransport) EncodePeer(_ raft.ServerID, addr raft.ServerAddress) []byte {
	return []byte(addr)
}

func (t *HTTPTransport) DecodePeer(buf []byte) raft.ServerAddress {
	return raft.ServerAddress(buf)
}

func (t *HTTPTransport) SetHeartbeatHandler(cb func(rpc raft.RPC)) { t.heartbeat = cb }

func (t *HTTPTransport) AppendEntries(_ raft.ServerID, target raft.ServerAddress, args *raft.AppendEntriesRequest, resp *raft.AppendEntriesResponse) error {
	return t.call(target, "/entries/append", args, resp)
}

func (t *HTTPTransport) RequestVote(_ raft.ServerID, target raft.ServerAddress, args *raft.RequestVoteRequest, resp *raft.RequestVoteResponse) error {
	return t.call(target, "/vote", args, resp)
}

func (t *HTTPTransport) InstallSnapshot(_ raft.ServerID, target raft.ServerAddress, args *raft.InstallSnapshotRequest, resp *raft.InstallSnapshotResponse, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	envelope := installSnapshotEnvelope{Args: args, Data: body}
	return t.call(target, "/snapshot/install", envelope, resp)
}

// AppendEntriesPipeline returns a synchronous pipeline: this transport
// has no binary streaming layer to pipeline over, so every Append call
// round-trips immediately and the returned future is already resolved
// by the time AppendEntries returns. Raft tolerates this; it only loses
// the latency-hiding benefit of true pipelining.
func (t *HTTPTransport) AppendEntriesPipeline(id raft.ServerID, target raft.ServerAddress) (raft.AppendPipeline, error) {
	return &directPipeline{transport: t, id: id, target: target, doneCh: make(chan raft.AppendFuture, 16)}, nil
}

func (t *HTTPTransport) call(target raft.ServerAddress, path string, args, resp interface{}) error {
	body, err := json.Marshal(args)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s%s", target, path)
	httpResp, err := t.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("cluster rpc %s: unexpected status %s", path, httpResp.Status)
	}
	return json.NewDecoder(httpResp.Body).Decode(resp)
}

func (t *HTTPTransport) handleAppendEntries(w http.ResponseWriter, r *http.Request) {
	var req raft.AppendEntriesRequest
	serveRPC(t, w, r, &req, &raft.AppendEntriesResponse{})
}

func (t *HTTPTransport) handleRequestVote(w http.ResponseWriter, r *http.Request) {
	var req raft.RequestVoteRequest
	serveRPC(t, w, r, &req, &raft.RequestVoteResponse{})
}

type installSnapshotEnvelope struct {
	Args *raft.InstallSnapshotRequest `json:"args"`
	Data []byte                       `json:"data"`
}

func (t *HTTPTransport) handleInstallSnapshot(w http.ResponseWriter, r *http.Request) {
	var envelope installSnapshotEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respCh := make(chan raft.RPCResponse, 1)
	t.consumerCh <- raft.RPC{
		Command:  envelope.Args,
		Reader:   bytes.NewReader(envelope.Data),
		RespChan: respCh,
	}
	rpcResp := <-respCh
	if rpcResp.Error != nil {
		http.Error(w, rpcResp.Error.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, rpcResp.Response)
}

// serveRPC decodes an inbound RPC body, hands it to raft's Consumer
// channel, and waits for the FSM/raft core to respond.
func serveRPC(t *HTTPTransport, w http.ResponseWriter, r *http.Request, args interface{}, respTemplate interface{}) {
	if err := json.NewDecoder(r.Body).Decode(args); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respCh := make(chan raft.RPCResponse, 1)
	t.consumerCh <- raft.RPC{Command: args, RespChan: respCh}
	rpcResp := <-respCh
	if rpcResp.Error != nil {
		http.Error(w, rpcResp.Error.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, rpcResp.Response)
}

func writeJSONResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
