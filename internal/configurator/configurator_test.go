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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/matcher"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/rules"
	"github.com/flowroute/flowroute/internal/tlsstore"
)

// stubSource is a fixed-content Loader+Parser+EventEmitter used to drive
// the Manager in tests without any real file or Kubernetes source.
type stubSource struct {
	services    []RawConfig
	middlewares []RawConfig
	rules       []RawConfig
	tls         []RawConfig

	ruleEvents chan Event
}

func (s *stubSource) Services(context.Context) ([]RawConfig, error)    { return s.services, nil }
func (s *stubSource) Middlewares(context.Context) ([]RawConfig, error) { return s.middlewares, nil }
func (s *stubSource) Rules(context.Context) ([]RawConfig, error)       { return s.rules, nil }
func (s *stubSource) TLS(context.Context) ([]RawConfig, error)         { return s.tls, nil }

func (s *stubSource) ParseService(ctx context.Context, pc ParseContext, raw RawConfig) (*config.Service, error) {
	return config.NewService(raw.Name, []string{"10.0.0.1:8080"}), nil
}

func (s *stubSource) ParseMiddleware(ctx context.Context, pc ParseContext, raw RawConfig) (*config.Middleware, error) {
	return config.DefaultMiddleware(raw.Name), nil
}

func (s *stubSource) ParseRule(ctx context.Context, pc ParseContext, raw RawConfig) (*rules.Rule, error) {
	svc := pc.Services.GetOrDefault(name.New("svc-a", name.File))
	return &rules.Rule{
		Name:    raw.Name,
		Matcher: matcher.Domain("example.com"),
		Service: svc,
	}, nil
}

func (s *stubSource) ParseTLS(ctx context.Context, pc ParseContext, raw RawConfig) (string, tlsstore.CertifiedKey, error) {
	return "example.com", tlsstore.CertifiedKey{}, nil
}

func (s *stubSource) ServiceEvents(context.Context) (<-chan Event, error)    { return nil, nil }
func (s *stubSource) MiddlewareEvents(context.Context) (<-chan Event, error) { return nil, nil }
func (s *stubSource) RuleEvents(context.Context) (<-chan Event, error) {
	if s.ruleEvents == nil {
		return nil, nil
	}
	return s.ruleEvents, nil
}
func (s *stubSource) TLSEvents(context.Context) (<-chan Event, error) { return nil, nil }

func newStubConfigurator(name string, s *stubSource) *GeneralConfigurator {
	return &GeneralConfigurator{Name: name, Loader: s, Parser: s, Emitter: s}
}

func TestManagerLoadPublishesRules(t *testing.T) {
	s := &stubSource{
		services: []RawConfig{{Name: name.New("svc-a", name.File)}},
		rules:    []RawConfig{{Name: name.New("r1", name.File)}},
	}
	m := NewManager(nil, nil)
	m.Register(newStubConfigurator("stub", s))

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Host = "example.com"
	r, ok := m.Rules.Find(req)
	if !ok {
		t.Fatalf("expected a published rule matching example.com")
	}
	addr, err := r.Service.Get().Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if addr != "10.0.0.1:8080" {
		t.Fatalf("addr = %q", addr)
	}
}

func TestManagerLoadResolvesForwardReferenceAcrossSources(t *testing.T) {
	// The rule references svc-a before any source has loaded it: Load
	// processes services in full before any rule, so by the time
	// ParseRule runs the real service is already installed, but even if
	// ordering were reversed, the Shared cell identity returned by
	// GetOrDefault would still observe the later Set.
	ruleOnly := &stubSource{rules: []RawConfig{{Name: name.New("r1", name.File)}}}
	serviceOnly := &stubSource{services: []RawConfig{{Name: name.New("svc-a", name.File)}}}

	m := NewManager(nil, nil)
	m.Register(newStubConfigurator("rules-source", ruleOnly))
	m.Register(newStubConfigurator("service-source", serviceOnly))

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Host = "example.com"
	r, ok := m.Rules.Find(req)
	if !ok {
		t.Fatalf("expected rule to be published")
	}
	if _, err := r.Service.Get().Next(); err != nil {
		t.Fatalf("expected the forward-referenced service to resolve, got: %v", err)
	}
}

func TestManagerRunAppliesRuleEvents(t *testing.T) {
	events := make(chan Event, 1)
	s := &stubSource{ruleEvents: events}
	m := NewManager(nil, nil)
	m.Register(newStubConfigurator("stub", s))

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	events <- Event{Kind: EventUpdate, Name: name.New("r1", name.File)}

	deadline := time.After(2 * time.Second)
	for {
		req := httptest.NewRequest("GET", "/", nil)
		req.Host = "example.com"
		if _, ok := m.Rules.Find(req); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for rule event to publish")
		case <-time.After(time.Millisecond):
		}
	}

	close(events)
	cancel()
	<-done
}

func TestGeneralConfiguratorLoadSkipsUnimplementedParser(t *testing.T) {
	type loaderOnly struct{ stubSource }
	s := &loaderOnly{}
	s.tls = []RawConfig{{Name: name.New("cert1", name.File)}}

	unimplParser := unimplementedTLSParser{&s.stubSource}
	c := &GeneralConfigurator{Name: "stub", Loader: s, Parser: unimplParser}

	store := tlsstore.New()
	pc := ParseContext{}
	if err := c.LoadTLS(context.Background(), pc, store); err != nil {
		t.Fatalf("LoadTLS: %v", err)
	}
	if store.ContainsCert("example.com") {
		t.Fatalf("expected no cert installed when Parser reports ErrUnimplemented")
	}
}

type unimplementedTLSParser struct{ *stubSource }

func (unimplementedTLSParser) ParseTLS(context.Context, ParseContext, RawConfig) (string, tlsstore.CertifiedKey, error) {
	return "", tlsstore.CertifiedKey{}, ErrUnimplemented
}
