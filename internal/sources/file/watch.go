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
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gopkg.in/yaml.v3"

	"github.com/flowroute/flowroute/internal/configurator"
	"github.com/flowroute/flowroute/internal/name"
)

// Logger is consulted by the watch loop for parse/IO error reporting.
// Left at the zero value (nil), the loop falls back to a no-op logger.
var Logger log.Logger

// watchOnce lazily starts the single fsnotify loop that backs both
// MiddlewareEvents and RuleEvents, following the restart-on-close pattern:
// a canceled context tears the watcher down and closes both output
// channels, rather than treating that as an error condition.
func (s *Source) watchOnce(ctx context.Context) (mwCh, ruleCh <-chan configurator.Event, err error) {
	s.watchInit.Do(func() {
		s.mwEvents = make(chan configurator.Event, 16)
		s.ruleEvents = make(chan configurator.Event, 16)

		w, werr := fsnotify.NewWatcher()
		if werr != nil {
			s.watchErr = werr
			close(s.mwEvents)
			close(s.ruleEvents)
			return
		}
		if werr := addRecursive(w, s.Root); werr != nil {
			_ = w.Close()
			s.watchErr = werr
			close(s.mwEvents)
			close(s.ruleEvents)
			return
		}

		go s.runWatch(ctx, w)
	})
	return s.mwEvents, s.ruleEvents, s.watchErr
}

func (s *Source) logger() log.Logger {
	if Logger != nil {
		return Logger
	}
	return log.NewNopLogger()
}

func (s *Source) runWatch(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()
	defer close(s.mwEvents)
	defer close(s.ruleEvents)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleFSEvent(ev)
		case werr, ok := <-w.Errors:
			if !ok {
				return
			}
			_ = level.Warn(s.logger()).Log("msg", "fsnotify watch error", "err", werr)
		}
	}
}

func (s *Source) handleFSEvent(ev fsnotify.Event) {
	ext := strings.ToLower(filepath.Ext(ev.Name))
	if ext != ".yaml" && ext != ".yml" {
		return
	}

	s.mu.Lock()
	prev := s.fileIndex[ev.Name]
	s.mu.Unlock()

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		s.mu.Lock()
		delete(s.fileIndex, ev.Name)
		s.mu.Unlock()
		s.retract(prev, fileContribution{})
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	data, err := os.ReadFile(ev.Name)
	if err != nil {
		_ = level.Warn(s.logger()).Log("msg", "failed to read changed file", "path", ev.Name, "err", err)
		return
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		_ = level.Warn(s.logger()).Log("msg", "failed to parse changed file", "path", ev.Name, "err", err)
		return
	}

	mws, routes, contrib := rawConfigsFor(ev.Name, doc)
	s.mu.Lock()
	s.fileIndex[ev.Name] = contrib
	s.mu.Unlock()

	s.retract(prev, contrib)
	for _, raw := range mws {
		s.mwEvents <- configurator.Event{Kind: configurator.EventUpdate, Name: raw.Name, Raw: raw}
	}
	for _, raw := range routes {
		s.ruleEvents <- configurator.Event{Kind: configurator.EventUpdate, Name: raw.Name, Raw: raw}
	}
}

// retract emits Remove for every name prev contributed that cur no longer
// does — used both for a straight file deletion (cur is the zero value)
// and for a file rewrite that drops some of its former entries.
func (s *Source) retract(prev, cur fileContribution) {
	for _, n := range prev.middleware {
		if !containsName(cur.middleware, n) {
			s.mwEvents <- configurator.Event{Kind: configurator.EventRemove, Name: n}
		}
	}
	for _, n := range prev.routes {
		if !containsName(cur.routes, n) {
			s.ruleEvents <- configurator.Event{Kind: configurator.EventRemove, Name: n}
		}
	}
}

func containsName(list []name.Name, n name.Name) bool {
	for _, x := range list {
		if x == n {
			return true
		}
	}
	return false
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

// ServiceEvents: the file source never streams services.
func (s *Source) ServiceEvents(context.Context) (<-chan configurator.Event, error) { return nil, nil }

// TLSEvents: the file source never streams TLS material.
func (s *Source) TLSEvents(context.Context) (<-chan configurator.Event, error) { return nil, nil }

func (s *Source) MiddlewareEvents(ctx context.Context) (<-chan configurator.Event, error) {
	mwCh, _, err := s.watchOnce(ctx)
	return mwCh, err
}

func (s *Source) RuleEvents(ctx context.Context) (<-chan configurator.Event, error) {
	_, ruleCh, err := s.watchOnce(ctx)
	return ruleCh, err
}
