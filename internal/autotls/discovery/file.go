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

package discovery

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/flowroute/flowroute/internal/autotls/cluster"
)

// FileDiscovery re-reads a static newline-separated list of "host:port"
// peer addresses on every poll tick and reports what changed since the
// previous read, for deployments without a Kubernetes control plane to
// watch.
type FileDiscovery struct {
	Path string
	Self NodeID
	Port int

	// PollInterval defaults to 5s when zero.
	PollInterval time.Duration
}

func (f *FileDiscovery) OwnID() NodeID { return f.Self }

func (f *FileDiscovery) AllNodes(_ context.Context) (map[NodeID]string, error) {
	return f.read()
}

func (f *FileDiscovery) read() (map[NodeID]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	nodes := make(map[NodeID]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		host, _, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		id := NodeID(cluster.NodeID(parseIP(host), f.Port))
		nodes[id] = line
	}
	return nodes, scanner.Err()
}

func (f *FileDiscovery) Watch(ctx context.Context) <-chan NodeUpdate {
	out := make(chan NodeUpdate)
	interval := f.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	go func() {
		defer close(out)
		known := make(map[NodeID]string)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := f.read()
				if err != nil {
					continue
				}
				f.diff(ctx, known, current, out)
			}
		}
	}()
	return out
}

func (f *FileDiscovery) diff(ctx context.Context, known, current map[NodeID]string, out chan<- NodeUpdate) {
	for id, addr := range current {
		if prev, ok := known[id]; !ok || prev != addr {
			known[id] = addr
			select {
			case out <- NodeUpdate{ID: id, Addr: addr}:
			case <-ctx.Done():
				return
			}
		}
	}
	for id := range known {
		if _, ok := current[id]; !ok {
			delete(known, id)
			select {
			case out <- NodeUpdate{ID: id, Remove: true}:
			case <-ctx.Done():
				return
			}
		}
	}
}
