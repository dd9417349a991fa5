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

package configurator

import (
	"context"
	"errors"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/rules"
	"github.com/flowroute/flowroute/internal/tlsstore"
)

// defaultPlugin is the zero-value producer for Collection[*config.Plugin],
// used only to satisfy forward references before a configurator has
// actually defined the named plugin. Callers must not Bind a
// PluginInstance built on this placeholder; in practice a rule's
// middleware chain only references a plugin once its owning middleware
// has loaded, which happens after every source's plugin definitions are
// staged.
func defaultPlugin(n name.Name) *config.Plugin {
	return &config.Plugin{Name: n}
}

// Manager owns every configured source and the shared model they write
// into: the Service/Middleware collections, the TLS store, and the single
// RuleList writer handle. It performs the phased initial load — services,
// then middlewares, then rules, then TLS — before handing control to each
// source's event loops, matching the dependency order a rule needs (its
// middleware and service references must already exist, even if only as
// placeholders, before the rule itself is staged). Plugins are not loaded
// by Manager; the caller fills the Plugins collection itself.
type Manager struct {
	Services    *config.Collection[*config.Service]
	Middlewares *config.Collection[*config.Middleware]
	Plugins     *config.Collection[*config.Plugin]
	Rules       *rules.RuleList
	TLS         *tlsstore.Store
	CertQueue   CertificateQueue

	Logger log.Logger

	configurators []*GeneralConfigurator

	// ruleMu and ruleSet back the full-refresh rule reconciliation used by
	// applyRuleEvent: every currently-known rule keyed by its Name, so a
	// single update/remove event can rebuild the whole RuleList staging
	// buffer from scratch.
	ruleMu  sync.Mutex
	ruleSet map[string]*rules.Rule
}

// NewManager builds a Manager with fresh, empty collections.
func NewManager(certQueue CertificateQueue, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Manager{
		Services:    config.NewCollection(config.DefaultService),
		Middlewares: config.NewCollection(config.DefaultMiddleware),
		Plugins:     config.NewCollection(defaultPlugin),
		Rules:       rules.NewRuleList(),
		TLS:         tlsstore.New(),
		CertQueue:   certQueue,
		Logger:      logger,
	}
}

// Register adds a source to the manager. Call before Load.
func (m *Manager) Register(c *GeneralConfigurator) {
	m.configurators = append(m.configurators, c)
}

func (m *Manager) parseContext() ParseContext {
	return ParseContext{
		Services:    m.Services,
		Middlewares: m.Middlewares,
		Plugins:     m.Plugins,
		CertQueue:   m.CertQueue,
	}
}

// Load runs the phased initial population across every registered source:
// all sources' services load, then all sources' middlewares, then all
// sources' rules, then all sources' TLS entries — so a rule from one
// source can reference a service defined by a different source regardless
// of registration order, as long as neither comes from the event loop
// stage. The rule list is sorted and published exactly once, at the end.
func (m *Manager) Load(ctx context.Context) error {
	pc := m.parseContext()

	for _, c := range m.configurators {
		if err := c.LoadServices(ctx, pc); err != nil {
			return err
		}
	}
	for _, c := range m.configurators {
		if err := c.LoadMiddlewares(ctx, pc); err != nil {
			return err
		}
	}
	if err := m.loadRules(ctx, pc); err != nil {
		return err
	}
	for _, c := range m.configurators {
		if err := c.LoadTLS(ctx, pc, m.TLS); err != nil {
			return err
		}
	}

	m.Rules.Sort()
	m.Rules.Publish()
	return nil
}

// loadRules parses every registered source's initial rule set and both
// stages it into the RuleList and records it in m.ruleSet, so a later
// incremental rule event (which rebuilds the RuleList from m.ruleSet
// wholesale) doesn't silently drop the rules loaded here.
func (m *Manager) loadRules(ctx context.Context, pc ParseContext) error {
	m.ruleMu.Lock()
	defer m.ruleMu.Unlock()
	if m.ruleSet == nil {
		m.ruleSet = make(map[string]*rules.Rule)
	}

	for _, c := range m.configurators {
		if c.Loader == nil {
			continue
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
				_ = level.Warn(m.Logger).Log("msg", "failed to parse rule", "source", c.Name, "name", raw.Name, "err", err)
				continue
			}
			maybeEnqueueAutoTLS(pc, r)
			m.ruleSet[raw.Name.Format()] = r
		}
	}

	for _, r := range m.ruleSet {
		m.Rules.Add(r)
	}
	return nil
}

// Run starts every registered source's event loops and blocks until ctx is
// canceled. Each loop applies incoming events to the shared collections
// and re-publishes the rule list after any rule change, following the
// teacher's restart-on-close watch pattern: a closed event channel is
// treated as the source's signal to stop, not an error.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range m.configurators {
		if c.Emitter == nil {
			continue
		}
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.runSource(ctx, c)
		}()
	}
	wg.Wait()
}

func (m *Manager) runSource(ctx context.Context, c *GeneralConfigurator) {
	pc := m.parseContext()
	logger := log.With(m.Logger, "source", c.Name)

	var wg sync.WaitGroup
	spawn := func(events func(context.Context) (<-chan Event, error), apply func(Event)) {
		ch, err := events(ctx)
		if err != nil {
			_ = level.Warn(logger).Log("msg", "event stream unavailable", "err", err)
			return
		}
		if ch == nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range ch {
				apply(ev)
			}
		}()
	}

	spawn(c.Emitter.ServiceEvents, func(ev Event) {
		if ev.Kind == EventRemove {
			m.Services.Remove(ev.Name)
			return
		}
		svc, err := c.Parser.ParseService(ctx, pc, ev.Raw)
		if err != nil {
			_ = level.Warn(logger).Log("msg", "failed to parse service event", "name", ev.Name, "err", err)
			return
		}
		m.Services.Set(ev.Name, svc)
	})

	spawn(c.Emitter.MiddlewareEvents, func(ev Event) {
		if ev.Kind == EventRemove {
			m.Middlewares.Remove(ev.Name)
			return
		}
		mw, err := c.Parser.ParseMiddleware(ctx, pc, ev.Raw)
		if err != nil {
			_ = level.Warn(logger).Log("msg", "failed to parse middleware event", "name", ev.Name, "err", err)
			return
		}
		m.Middlewares.Set(ev.Name, mw)
	})

	spawn(c.Emitter.RuleEvents, func(ev Event) {
		m.applyRuleEvent(ctx, pc, c, logger, ev)
	})

	spawn(c.Emitter.TLSEvents, func(ev Event) {
		if ev.Kind == EventRemove {
			m.TLS.Remove(ev.Name.Local)
			return
		}
		host, key, err := c.Parser.ParseTLS(ctx, pc, ev.Raw)
		if err != nil {
			_ = level.Warn(logger).Log("msg", "failed to parse TLS event", "name", ev.Name, "err", err)
			return
		}
		m.TLS.SetCert(host, key)
	})

	wg.Wait()
}

// applyRuleEvent rebuilds the entire rule list from scratch on every rule
// change. The RuleList has no targeted single-rule removal, so a
// remove/update event re-derives the whole staging buffer from the
// manager's tracked rule set, matching the teacher's preference for
// simple full-refresh reconciliation over incremental patching.
func (m *Manager) applyRuleEvent(ctx context.Context, pc ParseContext, c *GeneralConfigurator, logger log.Logger, ev Event) {
	m.ruleMu.Lock()
	defer m.ruleMu.Unlock()

	if m.ruleSet == nil {
		m.ruleSet = make(map[string]*rules.Rule)
	}
	key := ev.Name.Format()

	if ev.Kind == EventRemove {
		delete(m.ruleSet, key)
	} else {
		r, err := c.Parser.ParseRule(ctx, pc, ev.Raw)
		if err != nil {
			_ = level.Warn(logger).Log("msg", "failed to parse rule event", "name", ev.Name, "err", err)
			return
		}
		maybeEnqueueAutoTLS(pc, r)
		m.ruleSet[key] = r
	}

	m.Rules.Clear()
	for _, r := range m.ruleSet {
		m.Rules.Add(r)
	}
	m.Rules.Sort()
	m.Rules.Publish()
}
