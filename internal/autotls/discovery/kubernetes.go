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
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/flowroute/flowroute/internal/autotls/cluster"
)

// KubernetesDiscovery watches a single Endpoints object (the cluster
// peers' headless Service) and reports its ready addresses as cluster
// members, deriving each member's node ID the same way cluster.NodeID
// does so every watcher converges on identical IDs independently.
type KubernetesDiscovery struct {
	Client      kubernetes.Interface
	Namespace   string
	ServiceName string
	Port        int
	Self        NodeID
	Logger      log.Logger
}

func (k *KubernetesDiscovery) logger() log.Logger {
	if k.Logger != nil {
		return k.Logger
	}
	return log.NewNopLogger()
}

func (k *KubernetesDiscovery) OwnID() NodeID { return k.Self }

func (k *KubernetesDiscovery) AllNodes(ctx context.Context) (map[NodeID]string, error) {
	ep, err := k.Client.CoreV1().Endpoints(k.Namespace).Get(ctx, k.ServiceName, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return endpointsToNodes(ep, k.Port), nil
}

func (k *KubernetesDiscovery) Watch(ctx context.Context) <-chan NodeUpdate {
	out := make(chan NodeUpdate)
	go func() {
		defer close(out)
		known := make(map[NodeID]string)

		for {
			w, err := k.Client.CoreV1().Endpoints(k.Namespace).Watch(ctx, metav1.ListOptions{
				FieldSelector: fmt.Sprintf("metadata.name=%s", k.ServiceName),
			})
			if err != nil {
				level.Warn(k.logger()).Log("msg", "unable to start endpoints watch", "err", err)
				if !sleepOrDone(ctx, backoffJitter()) {
					return
				}
				continue
			}

			if !k.drain(ctx, w, known, out) {
				return
			}
		}
	}()
	return out
}

func (k *KubernetesDiscovery) drain(ctx context.Context, w watch.Interface, known map[NodeID]string, out chan<- NodeUpdate) bool {
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-w.ResultChan():
			if !ok {
				if !sleepOrDone(ctx, backoffJitter()) {
					return false
				}
				return true // restart the outer watch loop
			}
			ep, ok := ev.Object.(*corev1.Endpoints)
			if !ok {
				continue
			}
			k.reconcile(ctx, ep, known, out)
		}
	}
}

func (k *KubernetesDiscovery) reconcile(ctx context.Context, ep *corev1.Endpoints, known map[NodeID]string, out chan<- NodeUpdate) {
	current := endpointsToNodes(ep, k.Port)

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

func endpointsToNodes(ep *corev1.Endpoints, port int) map[NodeID]string {
	nodes := make(map[NodeID]string)
	for _, subset := range ep.Subsets {
		for _, addr := range subset.Addresses {
			id := NodeID(cluster.NodeID(parseIP(addr.IP), port))
			nodes[id] = fmt.Sprintf("%s:%d", addr.IP, port)
		}
	}
	return nodes
}

func parseIP(s string) net.IP { return net.ParseIP(s) }

func backoffJitter() time.Duration {
	return time.Second * time.Duration(1+rand.Intn(5))
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
