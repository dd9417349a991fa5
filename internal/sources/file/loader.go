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
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flowroute/flowroute/internal/configurator"
	"github.com/flowroute/flowroute/internal/name"
)

// Source is a directory of YAML route/middleware documents, recursively
// scanned on Load and recursively watched for changes once
// MiddlewareEvents or RuleEvents is first called. It implements configurator.Loader, configurator.Parser and
// configurator.EventEmitter.
type Source struct {
	Root string

	mu sync.Mutex
	// fileIndex tracks which names each file last contributed, so a
	// subsequent write or removal of that file knows what to retract
	// before re-adding whatever it still contains.
	fileIndex map[string]fileContribution

	watchInit  sync.Once
	watchErr   error
	mwEvents   chan configurator.Event
	ruleEvents chan configurator.Event
}

type fileContribution struct {
	middleware []name.Name
	routes     []name.Name
}

// New builds a Source rooted at dir.
func New(dir string) *Source {
	return &Source{Root: dir, fileIndex: make(map[string]fileContribution)}
}

func (s *Source) walk() (map[string]document, error) {
	docs := make(map[string]document)
	err := filepath.WalkDir(s.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil // malformed file: skipped, not fatal to the whole walk
		}
		docs[path] = doc
		return nil
	})
	return docs, err
}

// rawConfigsFor converts one document into the Loader's RawConfig lists
// and records the contribution for later retraction, returning the
// middleware and route RawConfigs in document order.
func rawConfigsFor(path string, doc document) (mws, routes []configurator.RawConfig, contrib fileContribution) {
	for _, m := range doc.Middleware {
		n := name.New(m.Name, name.File)
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		mws = append(mws, configurator.RawConfig{Name: n, Data: data})
		contrib.middleware = append(contrib.middleware, n)
	}
	for _, r := range doc.Routes {
		n := name.New(r.Name, name.File)
		data, err := json.Marshal(r)
		if err != nil {
			continue
		}
		routes = append(routes, configurator.RawConfig{Name: n, Data: data})
		contrib.routes = append(contrib.routes, n)
	}
	return mws, routes, contrib
}

// Services never appears in the file format (spec.md §6 only defines
// middleware and routes for YAML sources); services are referenced by
// name from a route and resolved elsewhere (Kubernetes Endpoints, or a
// forward-reference placeholder).
func (s *Source) Services(context.Context) ([]configurator.RawConfig, error) { return nil, nil }

// TLS never appears in the file format either; TLS material comes from
// the Kubernetes TLS Secrets source, not this source.
func (s *Source) TLS(context.Context) ([]configurator.RawConfig, error) { return nil, nil }

func (s *Source) Middlewares(context.Context) ([]configurator.RawConfig, error) {
	mws, _, err := s.loadAll()
	return mws, err
}

func (s *Source) Rules(context.Context) ([]configurator.RawConfig, error) {
	_, routes, err := s.loadAll()
	return routes, err
}

func (s *Source) loadAll() (mws, routes []configurator.RawConfig, err error) {
	docs, err := s.walk()
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for path, doc := range docs {
		m, r, contrib := rawConfigsFor(path, doc)
		mws = append(mws, m...)
		routes = append(routes, r...)
		s.fileIndex[path] = contrib
	}
	return mws, routes, nil
}
