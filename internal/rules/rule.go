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

// Package rules implements the routing plane's Rule type and the
// lock-free-read RuleList it lives in.
package rules

import (
	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/matcher"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/shared"
)

// TLSKind tags a RuleTLS variant.
type TLSKind int

const (
	// TLSNone means the rule carries no TLS requirement of its own.
	TLSNone TLSKind = iota
	// TLSSecret means certificates come from a named TLS store entry,
	// typically backed by a Kubernetes Secret.
	TLSSecret
	// TLSGenerate means the domain should be auto-enrolled for ACME
	// issuance.
	TLSGenerate
)

// RuleTLS is the tagged union `None | Secret(name) | Generate(domain)`.
type RuleTLS struct {
	Kind   TLSKind
	Secret name.Name
	Domain string
}

// NoTLS is the zero RuleTLS value.
var NoTLS = RuleTLS{Kind: TLSNone}

// SecretTLS builds a RuleTLS sourced from a named TLS store entry.
func SecretTLS(n name.Name) RuleTLS { return RuleTLS{Kind: TLSSecret, Secret: n} }

// GenerateTLS builds a RuleTLS that auto-enrolls domain for ACME issuance.
func GenerateTLS(domain string) RuleTLS { return RuleTLS{Kind: TLSGenerate, Domain: domain} }

// Rule is the atomic unit of routing policy. Middlewares and Service are
// held through Shared cells, not owned directly, so a live config update
// to either is observed by every rule referencing it without the rule
// itself being rewritten.
type Rule struct {
	Name        name.Name
	Priority    uint32
	Matcher     matcher.Matcher
	Middlewares []*shared.Cell[*config.Middleware]
	Service     *shared.Cell[*config.Service]
	TLS         RuleTLS

	// seq records insertion order, used to break priority ties so two
	// rules with equal priority keep a stable relative order across
	// re-sorts.
	seq uint64
}
