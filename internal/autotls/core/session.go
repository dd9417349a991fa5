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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/flowroute/flowroute/internal/tlsstore"
)

// Session drains a CertificateQueue and runs each request through ACME
// issuance, installing the result into a Store on success.
type Session struct {
	Queue      *CertificateQueue
	Cluster    Cluster
	Store      *tlsstore.Store
	Directory  string // LetsEncryptStaging or LetsEncryptProduction
	Contact    string
	Logger     log.Logger

	accountKey *ecdsa.PrivateKey
	client     *acmeClient
}

func (s *Session) logger() log.Logger {
	if s.Logger == nil {
		return log.NewNopLogger()
	}
	return s.Logger
}

// Run drains the queue until ctx is cancelled, processing one request at
// a time. Issuance failures are logged and the request is dropped; the
// renewal loop re-enqueues a certificate already in the store that is
// still close to expiry on its next sweep, but a domain that never got a
// certificate is not re-enqueued by it.
func (s *Session) Run(ctx context.Context) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	for {
		req, ok := s.Queue.Next(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := s.handle(ctx, req); err != nil {
			level.Error(s.logger()).Log("msg", "certificate request failed", "domain", req.Domain, "err", err)
		}
	}
}

func (s *Session) ensureClient() error {
	if s.client != nil {
		return nil
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	s.accountKey = key
	s.client = newACMEClient(s.Directory, s.Cluster, key)
	return nil
}

// handle runs the six numbered steps of a single certificate request.
func (s *Session) handle(ctx context.Context, req CertificateRequest) error {
	// Step 1: followers submit a MissingCert entry for propagated
	// requests and return immediately; they don't wait for any result.
	if !s.Cluster.IsLeader() {
		if req.Propagate {
			return s.Cluster.Submit(ctx, req.Domain, ActionMissingCert, nil)
		}
		return nil
	}

	level.Info(s.logger()).Log("msg", "issuing certificate", "domain", req.Domain, "renew", req.Renew)

	// Steps 2-4: account, order, validation, and finalization happen
	// inside acmeClient.issue; challenge presentation (step 3) flows
	// through acmeSolver.Present into the cluster log automatically as
	// acmez drives the ACME state machine, and CleanUp performs step 5
	// once validation concludes.
	if err := s.client.ensureAccount(ctx, s.Contact); err != nil {
		return err
	}
	chain, key, err := s.client.issue(ctx, req.Domain)
	if err != nil {
		return err
	}

	// Step 6: persist and hot-swap.
	cert := tlsstore.CertifiedKey{
		Certificate: chain,
		PrivateKey:  key,
	}
	if len(chain) > 0 {
		if leaf, err := x509.ParseCertificate(chain[0]); err == nil {
			cert.Leaf = leaf
		}
	}
	s.Store.SetCert(req.Domain, cert)
	return nil
}
