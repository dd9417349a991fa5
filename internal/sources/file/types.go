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

// Package file implements the YAML directory configurator source:
// recursively watched *.yaml/*.yml files, each contributing a top-level
// middleware: [...] and routes: [...] document.
package file

// document is the top-level shape of one YAML file.
type document struct {
	Middleware []middlewareDoc `yaml:"middleware" json:"middleware"`
	Routes     []routeDoc      `yaml:"routes" json:"routes"`
}

// middlewareDoc is the union of every middleware shape spec.md §6 allows;
// exactly one of the action fields is expected to be set.
type middlewareDoc struct {
	Name         string        `yaml:"name" json:"name"`
	RemovePrefix *string       `yaml:"RemovePrefix,omitempty" json:"RemovePrefix,omitempty"`
	AddHeader    []headerKVDoc `yaml:"AddHeader,omitempty" json:"AddHeader,omitempty"`
	CORS         *corsDoc      `yaml:"CORS,omitempty" json:"CORS,omitempty"`
	BasicAuth    *string       `yaml:"BasicAuth,omitempty" json:"BasicAuth,omitempty"`
}

type headerKVDoc struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

type corsDoc struct {
	Origins     []string `yaml:"origins,omitempty" json:"origins,omitempty"`
	MaxAge      *int     `yaml:"max_age,omitempty" json:"max_age,omitempty"`
	Credentials bool     `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	Methods     []string `yaml:"methods,omitempty" json:"methods,omitempty"`
	Headers     []string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

type routeDoc struct {
	Name       string   `yaml:"name" json:"name"`
	Priority   uint32   `yaml:"priority" json:"priority"`
	Rule       string   `yaml:"rule" json:"rule"`
	Service    string   `yaml:"service" json:"service"`
	Middleware []string `yaml:"middleware,omitempty" json:"middleware,omitempty"`
}
