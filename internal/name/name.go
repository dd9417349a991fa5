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

// Package name implements the namespaced entity identifier used across
// every collection in the routing plane: services, middlewares, rules,
// and plugins are all addressed by a Name.
package name

import "strings"

// Group tags where an entity's definition came from.
type Group struct {
	Kind      GroupKind
	Namespace string // only set when Kind == GroupKubernetes
}

// GroupKind enumerates the sources a Name can belong to.
type GroupKind int

const (
	GroupKubernetes GroupKind = iota
	GroupFile
	GroupInternal
)

func (k GroupKind) tag() string {
	switch k {
	case GroupKubernetes:
		return "k8s"
	case GroupFile:
		return "file"
	case GroupInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Kubernetes builds a Group for an entity sourced from the given namespace.
func Kubernetes(namespace string) Group { return Group{Kind: GroupKubernetes, Namespace: namespace} }

// File is the Group for entities sourced from a YAML file.
var File = Group{Kind: GroupFile}

// Internal is the Group for entities the proxy itself creates (dashboard,
// ACME responder, and placeholder forward-reference stubs).
var Internal = Group{Kind: GroupInternal}

// Name is the full identity of any entity visible in a Collection. Two
// entities with the same Name are the same entity.
type Name struct {
	Local string
	Group Group
}

// New builds a Name directly, bypassing text parsing.
func New(local string, group Group) Name {
	return Name{Local: local, Group: group}
}

// Format renders the canonical text form: "<local>@<tag>[@<detail>]".
func (n Name) Format() string {
	var b strings.Builder
	b.WriteString(n.Local)
	b.WriteByte('@')
	b.WriteString(n.Group.Kind.tag())
	if n.Group.Kind == GroupKubernetes {
		b.WriteByte('@')
		b.WriteString(n.Group.Namespace)
	}
	return b.String()
}

func (n Name) String() string { return n.Format() }

// FallbackFunc supplies a Group when the raw text carries no recognizable
// tag. Parse never fails: an unparseable or absent group always falls back
// to whatever this function returns.
type FallbackFunc func() Group

// Parse splits raw on the first '@'. A recognized tag ("k8s", "file",
// "internal") selects that Group; "k8s" additionally requires a following
// "@<namespace>" segment. Any other shape — no '@', an unknown tag, or a
// malformed "k8s" segment missing its namespace — falls back to fallback().
func Parse(raw string, fallback FallbackFunc) Name {
	local, rest, ok := strings.Cut(raw, "@")
	if !ok {
		return New(raw, fallback())
	}

	tag, detail, hasDetail := strings.Cut(rest, "@")
	switch tag {
	case "k8s":
		if !hasDetail || detail == "" {
			return New(local, fallback())
		}
		return New(local, Kubernetes(detail))
	case "file":
		return New(local, File)
	case "internal":
		return New(local, Internal)
	default:
		return New(local, fallback())
	}
}
