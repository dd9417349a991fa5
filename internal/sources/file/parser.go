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

package file

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

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

// ParseService is unimplemented: the file format carries no service
// section, only routes that reference a service by name.
func (s *Source) ParseService(context.Context, configurator.ParseContext, configurator.RawConfig) (*config.Service, error) {
	return nil, configurator.ErrUnimplemented
}

// ParseTLS is unimplemented for the same reason: TLS material is not part
// of the route/middleware document.
func (s *Source) ParseTLS(context.Context, configurator.ParseContext, configurator.RawConfig) (string, tlsstore.CertifiedKey, error) {
	return "", tlsstore.CertifiedKey{}, configurator.ErrUnimplemented
}

func (s *Source) ParseMiddleware(ctx context.Context, pc configurator.ParseContext, raw configurator.RawConfig) (*config.Middleware, error) {
	var doc middlewareDoc
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return nil, fmt.Errorf("file: decode middleware %q: %w", raw.Name, err)
	}

	action, err := buildAction(doc)
	if err != nil {
		return nil, fmt.Errorf("file: middleware %q: %w", raw.Name, err)
	}
	return &config.Middleware{Name: raw.Name, Action: action}, nil
}

func buildAction(doc middlewareDoc) (config.Action, error) {
	switch {
	case doc.RemovePrefix != nil:
		return actions.RemovePrefix{Prefix: strings.TrimSuffix(*doc.RemovePrefix, "/")}, nil
	case doc.AddHeader != nil:
		headers := make([]actions.HeaderKV, len(doc.AddHeader))
		for i, kv := range doc.AddHeader {
			headers[i] = actions.HeaderKV{Key: kv.Key, Value: kv.Value}
		}
		return actions.AddHeaders{Headers: headers}, nil
	case doc.CORS != nil:
		return actions.Cors{Options: actions.CorsOptions{
			Origins:          doc.CORS.Origins,
			MaxAge:           doc.CORS.MaxAge,
			AllowCredentials: doc.CORS.Credentials,
			AllowMethods:     doc.CORS.Methods,
			AllowHeaders:     doc.CORS.Headers,
		}}, nil
	case doc.BasicAuth != nil:
		return actions.BasicAuth{Realm: doc.Name, Users: htpasswd.Parse(*doc.BasicAuth)}, nil
	default:
		return nil, fmt.Errorf("no recognized action field set")
	}
}

func (s *Source) ParseRule(ctx context.Context, pc configurator.ParseContext, raw configurator.RawConfig) (*rules.Rule, error) {
	var doc routeDoc
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return nil, fmt.Errorf("file: decode route %q: %w", raw.Name, err)
	}

	m, err := matcher.Parse(doc.Rule)
	if err != nil {
		return nil, fmt.Errorf("file: route %q: %w", raw.Name, err)
	}

	svcName := name.Parse(doc.Service, func() name.Group { return name.File })

	cells := make([]*shared.Cell[*config.Middleware], 0, len(doc.Middleware))
	for _, mwName := range doc.Middleware {
		n := name.Parse(mwName, func() name.Group { return name.File })
		cells = append(cells, pc.Middlewares.GetOrDefault(n))
	}

	return &rules.Rule{
		Name:        raw.Name,
		Priority:    doc.Priority,
		Matcher:     m,
		Middlewares: cells,
		Service:     pc.Services.GetOrDefault(svcName),
		TLS:         rules.NoTLS,
	}, nil
}
