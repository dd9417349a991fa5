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

package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/configurator"
	"github.com/flowroute/flowroute/internal/matcher"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/rules"
	"github.com/flowroute/flowroute/internal/shared"
	"github.com/flowroute/flowroute/internal/tlsstore"
)

const (
	middlewareAnnotation = "tunneload-middleware"
	priorityAnnotation   = "tunneload-priority"
)

// IngressSource watches networking.k8s.io/v1.Ingress and contributes one
// Rule per (host, path) rule entry.
type IngressSource struct {
	Client    kubernetes.Interface
	Namespace string
	Logger    log.Logger
}

func (s *IngressSource) logger() log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.NewNopLogger()
}

// ingressRuleDoc is the parsed shape of one host/path entry within an
// Ingress object.
type ingressRuleDoc struct {
	Host       string   `json:"host"`
	Path       string   `json:"path"`
	Service    string   `json:"service"`
	ServiceNS  string   `json:"serviceNamespace"`
	Middleware []string `json:"middleware"`
	Priority   uint32   `json:"priority"`
}

// ingressRawConfigs flattens one Ingress object into one RawConfig per
// host/path rule, each named "<ingress>-<index>" so that multiple path
// rules within the same Ingress get distinct, stable Names.
func ingressRawConfigs(ing *networkingv1.Ingress) []configurator.RawConfig {
	middlewareNames := splitCSV(ing.Annotations[middlewareAnnotation])
	priority := parsePriority(ing.Annotations[priorityAnnotation])

	var out []configurator.RawConfig
	idx := 0
	for _, rule := range ing.Spec.Rules {
		if rule.HTTP == nil {
			continue
		}
		for _, path := range rule.HTTP.Paths {
			if path.Backend.Service == nil {
				continue
			}
			doc := ingressRuleDoc{
				Host:       rule.Host,
				Path:       path.Path,
				Service:    path.Backend.Service.Name,
				ServiceNS:  ing.Namespace,
				Middleware: middlewareNames,
				Priority:   priority,
			}
			data, err := json.Marshal(doc)
			if err != nil {
				continue
			}
			ruleName := fmt.Sprintf("%s-%d", ing.Name, idx)
			idx++
			out = append(out, configurator.RawConfig{
				Name: name.New(ruleName, name.Kubernetes(ing.Namespace)),
				Data: data,
			})
		}
	}
	return out
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePriority(v string) uint32 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// buildIngressMatcher turns a host/path pair into a matcher tree: a bare
// PathPrefix when no host is set, a bare Domain when no path is set, and
// an And of both otherwise.
func buildIngressMatcher(doc ingressRuleDoc) matcher.Matcher {
	var parts []matcher.Matcher
	if doc.Host != "" {
		parts = append(parts, matcher.Domain(doc.Host))
	}
	if doc.Path != "" {
		parts = append(parts, matcher.PathPrefix(doc.Path))
	}
	switch len(parts) {
	case 0:
		return matcher.PathPrefix("/")
	case 1:
		return parts[0]
	default:
		return matcher.And(parts)
	}
}

func (s *IngressSource) Rules(ctx context.Context) ([]configurator.RawConfig, error) {
	list, err := s.Client.NetworkingV1().Ingresses(s.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("kubernetes: list ingresses: %w", err)
	}
	var raws []configurator.RawConfig
	for i := range list.Items {
		raws = append(raws, ingressRawConfigs(&list.Items[i])...)
	}
	return raws, nil
}

func (s *IngressSource) Services(context.Context) ([]configurator.RawConfig, error)    { return nil, nil }
func (s *IngressSource) Middlewares(context.Context) ([]configurator.RawConfig, error) { return nil, nil }
func (s *IngressSource) TLS(context.Context) ([]configurator.RawConfig, error)         { return nil, nil }

func (s *IngressSource) ParseRule(_ context.Context, pc configurator.ParseContext, raw configurator.RawConfig) (*rules.Rule, error) {
	var doc ingressRuleDoc
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return nil, fmt.Errorf("kubernetes: decode ingress rule %q: %w", raw.Name, err)
	}

	cells := make([]*shared.Cell[*config.Middleware], 0, len(doc.Middleware))
	for _, mwName := range doc.Middleware {
		n := name.Parse(mwName, func() name.Group { return name.Kubernetes(doc.ServiceNS) })
		cells = append(cells, pc.Middlewares.GetOrDefault(n))
	}

	svcName := name.New(doc.Service, name.Kubernetes(doc.ServiceNS))
	return &rules.Rule{
		Name:        raw.Name,
		Priority:    doc.Priority,
		Matcher:     buildIngressMatcher(doc),
		Middlewares: cells,
		Service:     pc.Services.GetOrDefault(svcName),
		TLS:         rules.NoTLS,
	}, nil
}

func (s *IngressSource) ParseService(context.Context, configurator.ParseContext, configurator.RawConfig) (*config.Service, error) {
	return nil, configurator.ErrUnimplemented
}

func (s *IngressSource) ParseMiddleware(context.Context, configurator.ParseContext, configurator.RawConfig) (*config.Middleware, error) {
	return nil, configurator.ErrUnimplemented
}

func (s *IngressSource) ParseTLS(context.Context, configurator.ParseContext, configurator.RawConfig) (string, tlsstore.CertifiedKey, error) {
	return "", tlsstore.CertifiedKey{}, configurator.ErrUnimplemented
}

func (s *IngressSource) RuleEvents(ctx context.Context) (<-chan configurator.Event, error) {
	events := restartingWatch(ctx, s.logger(), func(ctx context.Context) (watch.Interface, error) {
		return s.Client.NetworkingV1().Ingresses(s.Namespace).Watch(ctx, metav1.ListOptions{})
	})
	out := make(chan configurator.Event, 16)
	go func() {
		defer close(out)
		for e := range events {
			ing, ok := e.Object.(*networkingv1.Ingress)
			if !ok {
				continue
			}
			if e.Type == watch.Deleted {
				idx := 0
				for _, rule := range ing.Spec.Rules {
					if rule.HTTP == nil {
						continue
					}
					for _, path := range rule.HTTP.Paths {
						if path.Backend.Service == nil {
							continue
						}
						ruleName := fmt.Sprintf("%s-%d", ing.Name, idx)
						idx++
						out <- configurator.Event{
							Kind: configurator.EventRemove,
							Name: name.New(ruleName, name.Kubernetes(ing.Namespace)),
						}
					}
				}
				continue
			}
			for _, raw := range ingressRawConfigs(ing) {
				out <- configurator.Event{Kind: configurator.EventUpdate, Name: raw.Name, Raw: raw}
			}
		}
	}()
	return out, nil
}

func (s *IngressSource) ServiceEvents(context.Context) (<-chan configurator.Event, error) {
	return nil, nil
}
func (s *IngressSource) MiddlewareEvents(context.Context) (<-chan configurator.Event, error) {
	return nil, nil
}
func (s *IngressSource) TLSEvents(context.Context) (<-chan configurator.Event, error) { return nil, nil }
