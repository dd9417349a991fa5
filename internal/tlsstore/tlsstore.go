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

// Package tlsstore holds the SNI-keyed certificate map the TLS acceptor
// resolves against. The map lives in memory only: certificates enter it
// from the Kubernetes TLS Secrets source (internal/sources/kubernetes) and
// from auto-TLS issuance, and nothing is read from or written to disk.
package tlsstore

import (
	"crypto/tls"
	"crypto/x509"
	"sync"
	"time"
)

// CertifiedKey is a certificate chain paired with its signing key, ready
// to hand to crypto/tls as a Certificate.
type CertifiedKey = tls.Certificate

// Store is a thread-safe host → CertifiedKey map. Missing host lookups are
// the TLS acceptor's cue to fail the handshake.
type Store struct {
	mu    sync.RWMutex
	certs map[string]CertifiedKey
}

// New returns an empty Store.
func New() *Store {
	return &Store{certs: make(map[string]CertifiedKey)}
}

// SetCert installs or replaces the certificate for host.
func (s *Store) SetCert(host string, key CertifiedKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[host] = key
}

// SetCerts installs or replaces a batch of certificates under a single
// hold of the write lock, so no reader observes a partial batch.
func (s *Store) SetCerts(batch map[string]CertifiedKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for host, key := range batch {
		s.certs[host] = key
	}
}

// ContainsCert reports whether host has a certificate installed.
func (s *Store) ContainsCert(host string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.certs[host]
	return ok
}

// Remove deletes host's certificate, if any.
func (s *Store) Remove(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.certs, host)
}

// Resolve implements the tls.Config.GetCertificate callback: looks up the
// client's requested SNI server name. A missing entry returns an error so
// the handshake fails closed rather than falling back to a default cert.
func (s *Store) Resolve(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[hello.ServerName]
	if !ok {
		return nil, errNoCertForHost(hello.ServerName)
	}
	return &cert, nil
}

// ExpiringBefore returns the hosts whose certificate's leaf expires
// before cutoff, for the renewal loop's periodic sweep. A certificate
// whose leaf can't be parsed is skipped rather than reported, since
// SetCert never validates the chain it's handed.
func (s *Store) ExpiringBefore(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hosts []string
	for host, cert := range s.certs {
		leaf := cert.Leaf
		if leaf == nil && len(cert.Certificate) > 0 {
			parsed, err := x509.ParseCertificate(cert.Certificate[0])
			if err != nil {
				continue
			}
			leaf = parsed
		}
		if leaf == nil {
			continue
		}
		if leaf.NotAfter.Before(cutoff) {
			hosts = append(hosts, host)
		}
	}
	return hosts
}

type errNoCertForHost string

func (e errNoCertForHost) Error() string { return "tlsstore: no certificate for host " + string(e) }
