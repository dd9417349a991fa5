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

// Package kubernetes implements the Kubernetes-backed configurator
// sources: Endpoints (services), TLS Secrets, Ingress (rules), and the
// Traefik IngressRoute/Middleware CRDs.
package kubernetes

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"k8s.io/apimachinery/pkg/watch"
)

// restartingWatch runs start to obtain a watch.Interface and forwards its
// events to the returned channel. If the result channel closes for any
// reason other than ctx being done, it's treated as a transient
// disconnect (network blip, apiserver restart): after a jittered delay it
// calls start again and keeps forwarding, following the teacher's
// secretWatcher restart loop. The returned channel closes only once ctx
// is done or start itself fails.
func restartingWatch(ctx context.Context, logger log.Logger, start func(context.Context) (watch.Interface, error)) <-chan watch.Event {
	out := make(chan watch.Event)
	go func() {
		defer close(out)

		w, err := start(ctx)
		if err != nil {
			_ = level.Warn(logger).Log("msg", "unable to start watch", "err", err)
			return
		}

		for {
			select {
			case <-ctx.Done():
				w.Stop()
				return
			case e, ok := <-w.ResultChan():
				if ok {
					select {
					case out <- e:
					case <-ctx.Done():
						w.Stop()
						return
					}
					continue
				}

				// Channel closed unintentionally: pseudo-arbitrary jitter
				// before retrying, matching pkg/secrets/watch.go's restart
				// backoff.
				jitter := time.Second * time.Duration(1+rand.Intn(5))
				select {
				case <-ctx.Done():
					return
				case <-time.After(jitter):
				}

				nw, err := start(ctx)
				if err != nil {
					_ = level.Warn(logger).Log("msg", "unable to restart watch", "err", err)
					return
				}
				w = nw
			}
		}
	}()
	return out
}
