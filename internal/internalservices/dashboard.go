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

package internalservices

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/go-kit/log"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/httpproxy"
	"github.com/flowroute/flowroute/internal/matcher"
	"github.com/flowroute/flowroute/internal/rules"
)

//go:embed static
var staticFS embed.FS

type ruleView struct {
	Name        string   `json:"name"`
	Priority    uint32   `json:"priority"`
	Matcher     string   `json:"matcher"`
	Service     string   `json:"service"`
	Middlewares []string `json:"middlewares"`
	TLS         string   `json:"tls"`
}

type serviceView struct {
	Name      string   `json:"name"`
	Addresses []string `json:"addresses"`
	Internal  bool     `json:"internal"`
	Handler   string   `json:"handler,omitempty"`
}

type middlewareView struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

type pluginView struct {
	Name string `json:"name"`
}

// Dashboard serves the live collections under /api/* as JSON, and static
// assets (the embedded UI) for everything else.
type Dashboard struct {
	Acceptors     func() []string
	Configurators func() []string
	Rules         *rules.RuleList
	Services      *config.Collection[*config.Service]
	Middlewares   *config.Collection[*config.Middleware]
	Plugins       *config.Collection[*config.Plugin]
	Logger        log.Logger
}

func (d *Dashboard) logger() log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.NewNopLogger()
}

func (d *Dashboard) staticFS() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Handle implements dispatch.Handler.
func (d *Dashboard) Handle(req *http.Request) (*httpproxy.Response, error) {
	switch req.URL.Path {
	case "/api/acceptors":
		return writeJSON(d.logger(), call(d.Acceptors)), nil
	case "/api/configurators":
		return writeJSON(d.logger(), call(d.Configurators)), nil
	case "/api/rules":
		return writeJSON(d.logger(), ruleViews(d.Rules)), nil
	case "/api/services":
		return writeJSON(d.logger(), serviceViews(d.Services)), nil
	case "/api/middlewares":
		return writeJSON(d.logger(), middlewareViews(d.Middlewares)), nil
	case "/api/plugins":
		return writeJSON(d.logger(), pluginViews(d.Plugins)), nil
	default:
		return serveStatic(d.staticFS(), req)
	}
}

func call(f func() []string) []string {
	if f == nil {
		return nil
	}
	return f()
}

func ruleViews(rl *rules.RuleList) []ruleView {
	snap := rl.Snapshot()
	out := make([]ruleView, 0, len(snap))
	for _, r := range snap {
		mws := make([]string, 0, len(r.Middlewares))
		for _, cell := range r.Middlewares {
			mws = append(mws, cell.Get().Name.Format())
		}
		out = append(out, ruleView{
			Name:        r.Name.Format(),
			Priority:    r.Priority,
			Matcher:     matcher.Format(r.Matcher),
			Service:     r.Service.Get().Name.Format(),
			Middlewares: mws,
			TLS:         tlsKindString(r.TLS.Kind),
		})
	}
	return out
}

func tlsKindString(k rules.TLSKind) string {
	switch k {
	case rules.TLSSecret:
		return "secret"
	case rules.TLSGenerate:
		return "generate"
	default:
		return "none"
	}
}

func serviceViews(c *config.Collection[*config.Service]) []serviceView {
	entries := c.GetAll()
	out := make([]serviceView, 0, len(entries))
	for _, cell := range entries {
		svc := cell.Get()
		out = append(out, serviceView{
			Name:      svc.Name.Format(),
			Addresses: svc.Addresses,
			Internal:  svc.Internal,
			Handler:   svc.Handler,
		})
	}
	return out
}

func middlewareViews(c *config.Collection[*config.Middleware]) []middlewareView {
	entries := c.GetAll()
	out := make([]middlewareView, 0, len(entries))
	for _, cell := range entries {
		mw := cell.Get()
		out = append(out, middlewareView{Name: mw.Name.Format(), Action: fmt.Sprintf("%T", mw.Action)})
	}
	return out
}

func pluginViews(c *config.Collection[*config.Plugin]) []pluginView {
	entries := c.GetAll()
	out := make([]pluginView, 0, len(entries))
	for _, cell := range entries {
		out = append(out, pluginView{Name: cell.Get().Name.Format()})
	}
	return out
}
