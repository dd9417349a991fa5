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

// Package configurator normalizes heterogeneous external sources (files,
// Kubernetes resources) into the in-memory routing model and keeps it
// current: a Loader produces the initial population, a Parser converts
// raw representations into model types, and an EventEmitter streams
// subsequent insert/update/delete notifications.
package configurator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/matcher"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/rules"
	"github.com/flowroute/flowroute/internal/tlsstore"
)

// ErrUnimplemented is returned by a Parser method the source doesn't
// support (e.g. a file source has no notion of TLS secrets). It is not a
// panic: the caller simply skips that raw kind.
var ErrUnimplemented = errors.New("configurator: method not implemented by this parser")

// RawConfig is one opaque unit handed from a Loader/EventEmitter to a
// Parser: a Name plus whatever the source's encoding is. Sources that
// aren't JSON-based (e.g. a Traefik CRD object) store it already decoded
// into Data via json.Marshal at the source boundary, so the Parser layer
// only ever deals in one shape.
type RawConfig struct {
	Name name.Name
	Data json.RawMessage
}

// EventKind tags an Event as an upsert or a removal.
type EventKind int

const (
	EventUpdate EventKind = iota
	EventRemove
)

// Event is one change notification an EventEmitter stream yields.
type Event struct {
	Kind EventKind
	Name name.Name
	Raw  RawConfig // only set when Kind == EventUpdate
}

// Loader performs one-shot, synchronous reads of a source's current
// state, used for the initial population before any event loop starts.
type Loader interface {
	Services(ctx context.Context) ([]RawConfig, error)
	Middlewares(ctx context.Context) ([]RawConfig, error)
	Rules(ctx context.Context) ([]RawConfig, error)
	TLS(ctx context.Context) ([]RawConfig, error)
}

// ParseContext supplies a Parser with the collections it needs to resolve
// forward references (a rule naming a middleware/service that hasn't
// loaded yet) and, optionally, a queue to request automatic certificate
// issuance for a rule whose TLS mode is left unspecified.
type ParseContext struct {
	Services    *config.Collection[*config.Service]
	Middlewares *config.Collection[*config.Middleware]
	Plugins     *config.Collection[*config.Plugin]
	CertQueue   CertificateQueue
}

// CertificateQueue is the minimal surface internal/autotls/core's request
// queue exposes to the configurator layer, kept narrow here to avoid a
// dependency from configurator onto the auto-TLS package.
type CertificateQueue interface {
	Enqueue(domain string, propagate, renew bool)
}

// Parser converts raw, source-specific representations into the common
// model. Any method a given source can't support should return
// ErrUnimplemented rather than panicking.
type Parser interface {
	ParseService(ctx context.Context, pc ParseContext, raw RawConfig) (*config.Service, error)
	ParseMiddleware(ctx context.Context, pc ParseContext, raw RawConfig) (*config.Middleware, error)
	ParseRule(ctx context.Context, pc ParseContext, raw RawConfig) (*rules.Rule, error)
	ParseTLS(ctx context.Context, pc ParseContext, raw RawConfig) (host string, key tlsstore.CertifiedKey, err error)
}

// EventEmitter streams subsequent changes after the initial load. Any
// channel a source doesn't support should be left nil — callers check for
// that before ranging over it.
type EventEmitter interface {
	ServiceEvents(ctx context.Context) (<-chan Event, error)
	MiddlewareEvents(ctx context.Context) (<-chan Event, error)
	RuleEvents(ctx context.Context) (<-chan Event, error)
	TLSEvents(ctx context.Context) (<-chan Event, error)
}

// GeneralConfigurator composes a Loader, Parser and EventEmitter into one
// source adapter. Any of the three may be nil if the source doesn't
// support that capability.
type GeneralConfigurator struct {
	Name     string
	Loader   Loader
	Parser   Parser
	Emitter  EventEmitter
	Logger   log.Logger
}

func (c *GeneralConfigurator) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.NewNopLogger()
}

// LoadServices runs the Loader+Parser for services and applies every
// result to pc.Services.
func (c *GeneralConfigurator) LoadServices(ctx context.Context, pc ParseContext) error {
	if c.Loader == nil {
		return nil
	}
	raws, err := c.Loader.Services(ctx)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		svc, err := c.Parser.ParseService(ctx, pc, raw)
		if err != nil {
			if errors.Is(err, ErrUnimplemented) {
				continue
			}
			_ = level.Warn(c.logger()).Log("msg", "failed to parse service", "source", c.Name, "name", raw.Name, "err", err)
			continue
		}
		pc.Services.Set(raw.Name, svc)
	}
	return nil
}

// LoadMiddlewares runs the Loader+Parser for middlewares and applies
// every result to pc.Middlewares.
func (c *GeneralConfigurator) LoadMiddlewares(ctx context.Context, pc ParseContext) error {
	if c.Loader == nil {
		return nil
	}
	raws, err := c.Loader.Middlewares(ctx)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		mw, err := c.Parser.ParseMiddleware(ctx, pc, raw)
		if err != nil {
			if errors.Is(err, ErrUnimplemented) {
				continue
			}
			_ = level.Warn(c.logger()).Log("msg", "failed to parse middleware", "source", c.Name, "name", raw.Name, "err", err)
			continue
		}
		pc.Middlewares.Set(raw.Name, mw)
	}
	return nil
}

// LoadRules runs the Loader+Parser for rules and appends every result to
// rl's staging buffer. The caller is responsible for Sort+Publish once
// every configurator's initial rules have been staged.
func (c *GeneralConfigurator) LoadRules(ctx context.Context, pc ParseContext, rl *rules.RuleList) error {
	if c.Loader == nil {
		return nil
	}
	raws, err := c.Loader.Rules(ctx)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		r, err := c.Parser.ParseRule(ctx, pc, raw)
		if err != nil {
			if errors.Is(err, ErrUnimplemented) {
				continue
			}
			_ = level.Warn(c.logger()).Log("msg", "failed to parse rule", "source", c.Name, "name", raw.Name, "err", err)
			continue
		}
		maybeEnqueueAutoTLS(pc, r)
		rl.Add(r)
	}
	return nil
}

// LoadTLS runs the Loader+Parser for TLS entries and installs every
// result into store.
func (c *GeneralConfigurator) LoadTLS(ctx context.Context, pc ParseContext, store *tlsstore.Store) error {
	if c.Loader == nil {
		return nil
	}
	raws, err := c.Loader.TLS(ctx)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		host, key, err := c.Parser.ParseTLS(ctx, pc, raw)
		if err != nil {
			if errors.Is(err, ErrUnimplemented) {
				continue
			}
			_ = level.Warn(c.logger()).Log("msg", "failed to parse TLS entry", "source", c.Name, "name", raw.Name, "err", err)
			continue
		}
		store.SetCert(host, key)
	}
	return nil
}

// maybeEnqueueAutoTLS implements the "RuleTLS None + cert queue configured
// + matcher yields a single host" auto-enrollment rule from the
// configurator pipeline spec.
func maybeEnqueueAutoTLS(pc ParseContext, r *rules.Rule) {
	if r.TLS.Kind != rules.TLSNone || pc.CertQueue == nil {
		return
	}
	host, ok := hostOf(r)
	if !ok {
		return
	}
	pc.CertQueue.Enqueue(host, true, true)
	r.TLS = rules.GenerateTLS(host)
}

// hostOf resolves the single host a rule's matcher requires, if any.
func hostOf(r *rules.Rule) (string, bool) {
	return matcher.GetHost(r.Matcher)
}
