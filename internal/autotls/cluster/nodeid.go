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
	"fmt"
	"hash/fnv"
	"net"
)

// NodeID derives a deterministic Raft server ID from an IPv4 address and
// port, so that every member watching the same Kubernetes Endpoints
// object computes the same ID for the same peer without an out-of-band
// coordination step.
func NodeID(ip net.IP, port int) string {
	v4 := ip.To4()
	h := fnv.New64a()
	if v4 != nil {
		h.Write(v4)
	} else {
		h.Write(ip)
	}
	fmt.Fprintf(h, ":%d", port)
	return fmt.Sprintf("%x", h.Sum64())
}
