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
	"time"

	"github.com/hashicorp/raft"
)

// directPipeline adapts HTTPTransport's synchronous AppendEntries into
// the raft.AppendPipeline interface: each call round-trips immediately
// and is pushed to doneCh already resolved.
type directPipeline struct {
	transport *HTTPTransport
	id        raft.ServerID
	target    raft.ServerAddress
	doneCh    chan raft.AppendFuture
}

func (p *directPipeline) AppendEntries(args *raft.AppendEntriesRequest, resp *raft.AppendEntriesResponse) (raft.AppendFuture, error) {
	start := time.Now()
	err := p.transport.AppendEntries(p.id, p.target, args, resp)
	future := &appendFuture{start: start, req: args, resp: resp, err: err}
	p.doneCh <- future
	return future, nil
}

func (p *directPipeline) Consumer() <-chan raft.AppendFuture { return p.doneCh }

func (p *directPipeline) Close() error {
	close(p.doneCh)
	return nil
}

type appendFuture struct {
	start time.Time
	req   *raft.AppendEntriesRequest
	resp  *raft.AppendEntriesResponse
	err   error
}

func (f *appendFuture) Error() error                           { return f.err }
func (f *appendFuture) Start() time.Time                       { return f.start }
func (f *appendFuture) Request() *raft.AppendEntriesRequest     { return f.req }
func (f *appendFuture) Response() *raft.AppendEntriesResponse   { return f.resp }
