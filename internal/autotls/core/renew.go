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

package core

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/flowroute/flowroute/internal/tlsstore"
)

// DefaultRenewalThreshold is how far ahead of expiry a certificate gets
// re-enqueued for renewal.
const DefaultRenewalThreshold = 21 * 24 * time.Hour

// DefaultRenewalInterval is how often the sweep runs.
const DefaultRenewalInterval = time.Hour

// Renewer periodically scans a Store for certificates nearing expiry and
// enqueues renewal requests.
type Renewer struct {
	Store     *tlsstore.Store
	Queue     *CertificateQueue
	Threshold time.Duration
	Interval  time.Duration
	Logger    log.Logger
}

func (r *Renewer) logger() log.Logger {
	if r.Logger == nil {
		return log.NewNopLogger()
	}
	return r.Logger
}

// Run sweeps on Interval (default DefaultRenewalInterval) until ctx is
// cancelled.
func (r *Renewer) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultRenewalInterval
	}
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultRenewalThreshold
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(threshold)
		}
	}
}

func (r *Renewer) sweep(threshold time.Duration) {
	expiring := r.Store.ExpiringBefore(time.Now().Add(threshold))
	for _, domain := range expiring {
		level.Info(r.logger()).Log("msg", "enqueuing certificate renewal", "domain", domain)
		r.Queue.Enqueue(domain, true, true)
	}
}
