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

	"github.com/go-kit/log"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/configurator"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/rules"
	"github.com/flowroute/flowroute/internal/tlsstore"
)

// EndpointsSource watches v1.Endpoints and contributes a Service per
// object, its addresses flattened from every subset and port.
type EndpointsSource struct {
	Client    kubernetes.Interface
	Namespace string // "" watches every namespace
	Logger    log.Logger
}

func (s *EndpointsSource) logger() log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.NewNopLogger()
}

type endpointsDoc struct {
	Addresses []string `json:"addresses"`
}

// flattenAddresses collects "ip:port" for every ready address across
// every subset and port of an Endpoints object. Not-ready addresses are
// excluded, matching the expectation that only healthy pods receive
// traffic.
func flattenAddresses(ep *corev1.Endpoints) []string {
	var addrs []string
	for _, subset := range ep.Subsets {
		for _, port := range subset.Ports {
			for _, addr := range subset.Addresses {
				addrs = append(addrs, addr.IP+":"+strconv.Itoa(int(port.Port)))
			}
		}
	}
	return addrs
}

func endpointsRawConfig(ep *corev1.Endpoints) (configurator.RawConfig, error) {
	data, err := json.Marshal(endpointsDoc{Addresses: flattenAddresses(ep)})
	if err != nil {
		return configurator.RawConfig{}, err
	}
	return configurator.RawConfig{
		Name: name.New(ep.Name, name.Kubernetes(ep.Namespace)),
		Data: data,
	}, nil
}

func (s *EndpointsSource) Services(ctx context.Context) ([]configurator.RawConfig, error) {
	list, err := s.Client.CoreV1().Endpoints(s.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("kubernetes: list endpoints: %w", err)
	}
	raws := make([]configurator.RawConfig, 0, len(list.Items))
	for i := range list.Items {
		raw, err := endpointsRawConfig(&list.Items[i])
		if err != nil {
			continue
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func (s *EndpointsSource) Middlewares(context.Context) ([]configurator.RawConfig, error) { return nil, nil }
func (s *EndpointsSource) Rules(context.Context) ([]configurator.RawConfig, error)       { return nil, nil }
func (s *EndpointsSource) TLS(context.Context) ([]configurator.RawConfig, error)         { return nil, nil }

func (s *EndpointsSource) ParseService(_ context.Context, _ configurator.ParseContext, raw configurator.RawConfig) (*config.Service, error) {
	var doc endpointsDoc
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return nil, fmt.Errorf("kubernetes: decode endpoints %q: %w", raw.Name, err)
	}
	return config.NewService(raw.Name, doc.Addresses), nil
}

func (s *EndpointsSource) ParseMiddleware(context.Context, configurator.ParseContext, configurator.RawConfig) (*config.Middleware, error) {
	return nil, configurator.ErrUnimplemented
}

func (s *EndpointsSource) ParseRule(context.Context, configurator.ParseContext, configurator.RawConfig) (*rules.Rule, error) {
	return nil, configurator.ErrUnimplemented
}

func (s *EndpointsSource) ParseTLS(context.Context, configurator.ParseContext, configurator.RawConfig) (string, tlsstore.CertifiedKey, error) {
	return "", tlsstore.CertifiedKey{}, configurator.ErrUnimplemented
}

func (s *EndpointsSource) ServiceEvents(ctx context.Context) (<-chan configurator.Event, error) {
	events := restartingWatch(ctx, s.logger(), func(ctx context.Context) (watch.Interface, error) {
		return s.Client.CoreV1().Endpoints(s.Namespace).Watch(ctx, metav1.ListOptions{})
	})
	out := make(chan configurator.Event, 16)
	go func() {
		defer close(out)
		for e := range events {
			ep, ok := e.Object.(*corev1.Endpoints)
			if !ok {
				continue
			}
			n := name.New(ep.Name, name.Kubernetes(ep.Namespace))
			if e.Type == watch.Deleted {
				out <- configurator.Event{Kind: configurator.EventRemove, Name: n}
				continue
			}
			raw, err := endpointsRawConfig(ep)
			if err != nil {
				continue
			}
			out <- configurator.Event{Kind: configurator.EventUpdate, Name: n, Raw: raw}
		}
	}()
	return out, nil
}

func (s *EndpointsSource) MiddlewareEvents(context.Context) (<-chan configurator.Event, error) {
	return nil, nil
}
func (s *EndpointsSource) RuleEvents(context.Context) (<-chan configurator.Event, error) { return nil, nil }
func (s *EndpointsSource) TLSEvents(context.Context) (<-chan configurator.Event, error)  { return nil, nil }
