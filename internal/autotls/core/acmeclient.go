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
	"encoding/pem"
	"errors"
	"net/http"

	"github.com/mholt/acmez/v3"
	"github.com/mholt/acmez/v3/acme"
)

// errNoCertificatesReturned is returned when the ACME server answers a
// finalize request with an empty certificate list, which acmez treats
// as a successful call rather than an error.
var errNoCertificatesReturned = errors.New("autotls: ACME server returned no certificates")

// LetsEncryptStaging and LetsEncryptProduction are the two directory URLs
// the CLI's --autotls.environment flag chooses between.
const (
	LetsEncryptStaging    = "https://acme-staging-v02.api.letsencrypt.org/directory"
	LetsEncryptProduction = "https://acme-v02.api.letsencrypt.org/directory"
)

// acmeSolver relays HTTP-01 challenge presentation through the cluster
// log: Present stages the (token, key-authorization) pair for
// replication, CleanUp clears it once the ACME server has validated.
// acmez calls Present before it asks the server to validate and CleanUp
// once validation finishes either way, so the pairs are guaranteed
// visible to every node's ChallengeList for the whole validation window.
type acmeSolver struct {
	cluster Cluster
}

func (s *acmeSolver) Present(ctx context.Context, chal acme.Challenge) error {
	return s.cluster.Submit(ctx, chal.Identifier.Value, ActionAddVerifyingData, map[string]string{
		chal.Token: chal.KeyAuthorization,
	})
}

func (s *acmeSolver) CleanUp(ctx context.Context, chal acme.Challenge) error {
	return s.cluster.Submit(ctx, chal.Identifier.Value, ActionRemoveVerifyingData, map[string]string{
		chal.Token: "",
	})
}

// acmeClient wraps acmez.Client with the account key and HTTP transport
// the session loop needs; isolated in its own file since acmez/acme's
// exact surface is the one third-party dependency in this codebase we
// have the least local visibility into.
type acmeClient struct {
	client     *acmez.Client
	accountKey *ecdsa.PrivateKey
	account    acme.Account
}

func newACMEClient(directoryURL string, cluster Cluster, accountKey *ecdsa.PrivateKey) *acmeClient {
	return &acmeClient{
		client: &acmez.Client{
			Client: &acme.Client{
				Directory:  directoryURL,
				HTTPClient: http.DefaultClient,
			},
			ChallengeSolvers: map[string]acmez.Solver{
				acme.ChallengeTypeHTTP01: &acmeSolver{cluster: cluster},
			},
		},
		accountKey: accountKey,
	}
}

// ensureAccount loads the existing account from the directory or
// registers a new one, caching the result on the client.
func (c *acmeClient) ensureAccount(ctx context.Context, contactEmail string) error {
	if c.account.Status != "" {
		return nil
	}
	account := acme.Account{
		Contact:              contactURIs(contactEmail),
		TermsOfServiceAgreed: true,
		PrivateKey:           c.accountKey,
	}
	got, err := c.client.NewAccount(ctx, account)
	if err != nil {
		return err
	}
	c.account = got
	return nil
}

func contactURIs(email string) []string {
	if email == "" {
		return nil
	}
	return []string{"mailto:" + email}
}

// issue runs the full order → validate → finalize → download sequence
// for domain and returns the leaf+chain DER and the certificate's
// private key. The client's HTTP-01 solver routes challenge data
// through the replicated log rather than applying it locally, so that
// every node can answer a validation request regardless of which one
// initiated the order.
func (c *acmeClient) issue(ctx context.Context, domain string) (certDER [][]byte, key *ecdsa.PrivateKey, err error) {
	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	csr, err := buildCSR(domain, certKey)
	if err != nil {
		return nil, nil, err
	}

	certs, err := c.client.ObtainCertificate(ctx, c.account, csr)
	if err != nil {
		return nil, nil, err
	}
	if len(certs) == 0 {
		return nil, nil, errNoCertificatesReturned
	}
	return splitPEMBundle(certs[0].ChainPEM), certKey, nil
}

func buildCSR(domain string, key *ecdsa.PrivateKey) (*x509.CertificateRequest, error) {
	tmpl := &x509.CertificateRequest{DNSNames: []string{domain}}
	der, err := x509.CreateCertificateRequest(rand.Reader, tmpl, key)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificateRequest(der)
}

// splitPEMBundle decodes a PEM bundle (leaf followed by intermediates,
// as returned in acme.Certificate.ChainPEM) into a slice of DER blocks
// in the same order, ready for tls.Certificate.Certificate.
func splitPEMBundle(bundle []byte) [][]byte {
	var out [][]byte
	rest := bundle
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		out = append(out, block.Bytes)
	}
	return out
}
