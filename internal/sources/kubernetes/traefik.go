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
	"strings"

	"github.com/go-kit/log"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"

	"github.com/flowroute/flowroute/internal/actions"
	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/configurator"
	"github.com/flowroute/flowroute/internal/htpasswd"
	"github.com/flowroute/flowroute/internal/matcher"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/rules"
	"github.com/flowroute/flowroute/internal/shared"
	"github.com/flowroute/flowroute/internal/tlsstore"
)

var (
	traefikIngressRouteGVR = schema.GroupVersionResource{Group: "traefik.io", Version: "v1alpha1", Resource: "ingressroutes"}
	traefikMiddlewareGVR   = schema.GroupVersionResource{Group: "traefik.io", Version: "v1alpha1", Resource: "middlewares"}
)

// TraefikSource watches the Traefik CRDs via the dynamic client: no
// generated clientset for them is vendored, so fields are read off the
// unstructured object directly.
type TraefikSource struct {
	Dynamic   dynamic.Interface
	Namespace string
	Logger    log.Logger
}

func (s *TraefikSource) logger() log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.NewNopLogger()
}

type traefikRouteDoc struct {
	Name       string   `json:"name"`
	Match      string   `json:"match"`
	Service    string   `json:"service"`
	Namespace  string   `json:"namespace"`
	Middleware []string `json:"middleware"`
	Priority   uint32   `json:"priority"`
}

// traefikMatchToDSL translates a Traefik `Host(`x`) && PathPrefix(`y`)`
// style match expression into this proxy's own matcher DSL. The two
// grammars already agree on Host/PathPrefix call syntax and &&/||
// operators, so this is closer to a validation pass than a translation —
// kept as a named step in case the two grammars diverge later.
func traefikMatchToDSL(match string) string { return match }

func ingressRouteToDoc(obj *unstructured.Unstructured) (traefikRouteDoc, bool) {
	spec, found, _ := unstructured.NestedMap(obj.Object, "spec")
	if !found {
		return traefikRouteDoc{}, false
	}
	routes, found, _ := unstructured.NestedSlice(spec, "routes")
	if !found || len(routes) == 0 {
		return traefikRouteDoc{}, false
	}
	route, ok := routes[0].(map[string]interface{})
	if !ok {
		return traefikRouteDoc{}, false
	}
	matchStr, _, _ := unstructured.NestedString(route, "match")

	services, _, _ := unstructured.NestedSlice(route, "services")
	var serviceName string
	if len(services) > 0 {
		if svc, ok := services[0].(map[string]interface{}); ok {
			serviceName, _, _ = unstructured.NestedString(svc, "name")
		}
	}

	middlewares, _, _ := unstructured.NestedSlice(route, "middlewares")
	var mwNames []string
	for _, m := range middlewares {
		if mm, ok := m.(map[string]interface{}); ok {
			if n, _, _ := unstructured.NestedString(mm, "name"); n != "" {
				mwNames = append(mwNames, n)
			}
		}
	}

	return traefikRouteDoc{
		Name:       obj.GetName(),
		Match:      matchStr,
		Service:    serviceName,
		Namespace:  obj.GetNamespace(),
		Middleware: mwNames,
		Priority:   0,
	}, true
}

func (s *TraefikSource) Rules(ctx context.Context) ([]configurator.RawConfig, error) {
	list, err := s.Dynamic.Resource(traefikIngressRouteGVR).Namespace(s.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("kubernetes: list traefik IngressRoutes: %w", err)
	}
	var raws []configurator.RawConfig
	for i := range list.Items {
		raw, ok := traefikRouteRawConfig(&list.Items[i])
		if !ok {
			continue
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func traefikRouteRawConfig(obj *unstructured.Unstructured) (configurator.RawConfig, bool) {
	doc, ok := ingressRouteToDoc(obj)
	if !ok {
		return configurator.RawConfig{}, false
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return configurator.RawConfig{}, false
	}
	return configurator.RawConfig{Name: name.New(doc.Name, name.Kubernetes(doc.Namespace)), Data: data}, true
}

// traefikMiddlewareDoc is the subset of the Middleware CRD's spec this
// source understands: stripPrefix (first prefix only) and
// headers.customRequestHeaders, matching the built-in actions spec.md §6
// defines for the YAML file format. basicAuth is not read from the CRD:
// middlewareToDoc never sets BasicAuthRaw.
type traefikMiddlewareDoc struct {
	Name         string            `json:"name"`
	StripPrefix  *string           `json:"stripPrefix,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	BasicAuthRaw string            `json:"basicAuthRaw,omitempty"`
}

func middlewareToDoc(obj *unstructured.Unstructured) traefikMiddlewareDoc {
	doc := traefikMiddlewareDoc{Name: obj.GetName()}
	spec, found, _ := unstructured.NestedMap(obj.Object, "spec")
	if !found {
		return doc
	}
	if sp, found, _ := unstructured.NestedMap(spec, "stripPrefix"); found {
		if prefixes, found, _ := unstructured.NestedStringSlice(sp, "prefixes"); found && len(prefixes) > 0 {
			doc.StripPrefix = &prefixes[0]
		}
	}
	if hdrs, found, _ := unstructured.NestedMap(spec, "headers"); found {
		if custom, found, _ := unstructured.NestedStringMap(hdrs, "customRequestHeaders"); found {
			doc.Headers = custom
		}
	}
	return doc
}

func (s *TraefikSource) Middlewares(ctx context.Context) ([]configurator.RawConfig, error) {
	list, err := s.Dynamic.Resource(traefikMiddlewareGVR).Namespace(s.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("kubernetes: list traefik Middlewares: %w", err)
	}
	var raws []configurator.RawConfig
	for i := range list.Items {
		doc := middlewareToDoc(&list.Items[i])
		data, err := json.Marshal(doc)
		if err != nil {
			continue
		}
		raws = append(raws, configurator.RawConfig{Name: name.New(doc.Name, name.Kubernetes(list.Items[i].GetNamespace())), Data: data})
	}
	return raws, nil
}

func (s *TraefikSource) Services(context.Context) ([]configurator.RawConfig, error) { return nil, nil }
func (s *TraefikSource) TLS(context.Context) ([]configurator.RawConfig, error)      { return nil, nil }

func (s *TraefikSource) ParseMiddleware(_ context.Context, _ configurator.ParseContext, raw configurator.RawConfig) (*config.Middleware, error) {
	var doc traefikMiddlewareDoc
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return nil, fmt.Errorf("kubernetes: decode traefik middleware %q: %w", raw.Name, err)
	}
	switch {
	case doc.StripPrefix != nil:
		return &config.Middleware{Name: raw.Name, Action: actions.RemovePrefix{Prefix: strings.TrimSuffix(*doc.StripPrefix, "/")}}, nil
	case len(doc.Headers) > 0:
		kvs := make([]actions.HeaderKV, 0, len(doc.Headers))
		for k, v := range doc.Headers {
			kvs = append(kvs, actions.HeaderKV{Key: k, Value: v})
		}
		return &config.Middleware{Name: raw.Name, Action: actions.AddHeaders{Headers: kvs}}, nil
	case doc.BasicAuthRaw != "":
		return &config.Middleware{Name: raw.Name, Action: actions.BasicAuth{Realm: doc.Name, Users: htpasswd.Parse(doc.BasicAuthRaw)}}, nil
	default:
		return &config.Middleware{Name: raw.Name, Action: config.NoopAction{}}, nil
	}
}

func (s *TraefikSource) ParseRule(_ context.Context, pc configurator.ParseContext, raw configurator.RawConfig) (*rules.Rule, error) {
	var doc traefikRouteDoc
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return nil, fmt.Errorf("kubernetes: decode traefik route %q: %w", raw.Name, err)
	}
	m, err := matcher.Parse(traefikMatchToDSL(doc.Match))
	if err != nil {
		return nil, fmt.Errorf("kubernetes: traefik route %q: %w", raw.Name, err)
	}

	cells := make([]*shared.Cell[*config.Middleware], 0, len(doc.Middleware))
	for _, mwName := range doc.Middleware {
		n := name.Parse(mwName, func() name.Group { return name.Kubernetes(doc.Namespace) })
		cells = append(cells, pc.Middlewares.GetOrDefault(n))
	}

	svcName := name.New(doc.Service, name.Kubernetes(doc.Namespace))
	return &rules.Rule{
		Name:        raw.Name,
		Priority:    doc.Priority,
		Matcher:     m,
		Middlewares: cells,
		Service:     pc.Services.GetOrDefault(svcName),
		TLS:         rules.NoTLS,
	}, nil
}

func (s *TraefikSource) ParseService(context.Context, configurator.ParseContext, configurator.RawConfig) (*config.Service, error) {
	return nil, configurator.ErrUnimplemented
}

func (s *TraefikSource) ParseTLS(context.Context, configurator.ParseContext, configurator.RawConfig) (string, tlsstore.CertifiedKey, error) {
	return "", tlsstore.CertifiedKey{}, configurator.ErrUnimplemented
}

func (s *TraefikSource) RuleEvents(ctx context.Context) (<-chan configurator.Event, error) {
	events := restartingWatch(ctx, s.logger(), func(ctx context.Context) (watch.Interface, error) {
		return s.Dynamic.Resource(traefikIngressRouteGVR).Namespace(s.Namespace).Watch(ctx, metav1.ListOptions{})
	})
	out := make(chan configurator.Event, 16)
	go func() {
		defer close(out)
		for e := range events {
			obj, ok := e.Object.(*unstructured.Unstructured)
			if !ok {
				continue
			}
			if e.Type == watch.Deleted {
				out <- configurator.Event{Kind: configurator.EventRemove, Name: name.New(obj.GetName(), name.Kubernetes(obj.GetNamespace()))}
				continue
			}
			raw, ok := traefikRouteRawConfig(obj)
			if !ok {
				continue
			}
			out <- configurator.Event{Kind: configurator.EventUpdate, Name: raw.Name, Raw: raw}
		}
	}()
	return out, nil
}

func (s *TraefikSource) MiddlewareEvents(ctx context.Context) (<-chan configurator.Event, error) {
	events := restartingWatch(ctx, s.logger(), func(ctx context.Context) (watch.Interface, error) {
		return s.Dynamic.Resource(traefikMiddlewareGVR).Namespace(s.Namespace).Watch(ctx, metav1.ListOptions{})
	})
	out := make(chan configurator.Event, 16)
	go func() {
		defer close(out)
		for e := range events {
			obj, ok := e.Object.(*unstructured.Unstructured)
			if !ok {
				continue
			}
			n := name.New(obj.GetName(), name.Kubernetes(obj.GetNamespace()))
			if e.Type == watch.Deleted {
				out <- configurator.Event{Kind: configurator.EventRemove, Name: n}
				continue
			}
			doc := middlewareToDoc(obj)
			data, err := json.Marshal(doc)
			if err != nil {
				continue
			}
			out <- configurator.Event{Kind: configurator.EventUpdate, Name: n, Raw: configurator.RawConfig{Name: n, Data: data}}
		}
	}()
	return out, nil
}

func (s *TraefikSource) ServiceEvents(context.Context) (<-chan configurator.Event, error) {
	return nil, nil
}
func (s *TraefikSource) TLSEvents(context.Context) (<-chan configurator.Event, error) { return nil, nil }
