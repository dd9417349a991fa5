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
	"testing"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/flowroute/flowroute/internal/matcher"
)

func TestFlattenAddresses(t *testing.T) {
	ep := &corev1.Endpoints{
		Subsets: []corev1.EndpointSubset{
			{
				Addresses: []corev1.EndpointAddress{{IP: "10.0.0.1"}, {IP: "10.0.0.2"}},
				Ports:     []corev1.EndpointPort{{Port: 8080}},
			},
		},
	}
	got := flattenAddresses(ep)
	want := []string{"10.0.0.1:8080", "10.0.0.2:8080"}
	if len(got) != len(want) {
		t.Fatalf("flattenAddresses() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("flattenAddresses()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFlattenAddressesMultiSubsetMultiPort(t *testing.T) {
	ep := &corev1.Endpoints{
		Subsets: []corev1.EndpointSubset{
			{
				Addresses: []corev1.EndpointAddress{{IP: "10.0.0.1"}},
				Ports:     []corev1.EndpointPort{{Port: 80}, {Port: 443}},
			},
			{
				Addresses: []corev1.EndpointAddress{{IP: "10.0.0.2"}},
				Ports:     []corev1.EndpointPort{{Port: 9000}},
			},
		},
	}
	got := flattenAddresses(ep)
	if len(got) != 3 {
		t.Fatalf("flattenAddresses() = %v, want 3 entries", got)
	}
}

func TestCommonNameOfPrefersTunneloadAnnotation(t *testing.T) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Annotations: map[string]string{
			"tunneload/common-name":  "a.example.com",
			"cert-manager.io/common-name": "b.example.com",
		}},
	}
	host, ok := commonNameOf(secret)
	if !ok || host != "a.example.com" {
		t.Fatalf("commonNameOf() = (%q, %v), want (a.example.com, true)", host, ok)
	}
}

func TestCommonNameOfFallsBackToCertManager(t *testing.T) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Annotations: map[string]string{
			"cert-manager.io/common-name": "b.example.com",
		}},
	}
	host, ok := commonNameOf(secret)
	if !ok || host != "b.example.com" {
		t.Fatalf("commonNameOf() = (%q, %v), want (b.example.com, true)", host, ok)
	}
}

func TestCommonNameOfMissing(t *testing.T) {
	secret := &corev1.Secret{}
	if _, ok := commonNameOf(secret); ok {
		t.Fatalf("commonNameOf() = ok, want not ok for a secret with no annotation")
	}
}

func TestIsTLSSecret(t *testing.T) {
	if !isTLSSecret(&corev1.Secret{Type: corev1.SecretTypeTLS}) {
		t.Fatalf("isTLSSecret() = false for kubernetes.io/tls secret")
	}
	if isTLSSecret(&corev1.Secret{Type: corev1.SecretTypeOpaque}) {
		t.Fatalf("isTLSSecret() = true for Opaque secret")
	}
}

func TestTLSSecretRawConfigSkipsNonTLSAndUnannotated(t *testing.T) {
	if _, ok, _ := tlsSecretRawConfig(&corev1.Secret{Type: corev1.SecretTypeOpaque}); ok {
		t.Fatalf("tlsSecretRawConfig() = ok for Opaque secret")
	}
	unannotated := &corev1.Secret{Type: corev1.SecretTypeTLS}
	if _, ok, _ := tlsSecretRawConfig(unannotated); ok {
		t.Fatalf("tlsSecretRawConfig() = ok for secret with no common-name annotation")
	}
}

func TestSplitCSV(t *testing.T) {
	cases := map[string][]string{
		"":          nil,
		"a":         {"a"},
		"a,b":       {"a", "b"},
		" a , b ,,": {"a", "b"},
	}
	for in, want := range cases {
		got := splitCSV(in)
		if len(got) != len(want) {
			t.Fatalf("splitCSV(%q) = %v, want %v", in, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("splitCSV(%q)[%d] = %q, want %q", in, i, got[i], want[i])
			}
		}
	}
}

func TestParsePriority(t *testing.T) {
	if parsePriority("") != 0 {
		t.Fatalf("parsePriority(\"\") != 0")
	}
	if parsePriority("bogus") != 0 {
		t.Fatalf("parsePriority(\"bogus\") != 0, falls back to 0 on malformed input")
	}
	if parsePriority("42") != 42 {
		t.Fatalf("parsePriority(\"42\") != 42")
	}
}

func TestBuildIngressMatcherHostAndPath(t *testing.T) {
	m := buildIngressMatcher(ingressRuleDoc{Host: "example.com", Path: "/api"})
	and, ok := m.(matcher.And)
	if !ok || len(and) != 2 {
		t.Fatalf("buildIngressMatcher(host+path) = %#v, want a 2-element And", m)
	}
}

func TestBuildIngressMatcherHostOnly(t *testing.T) {
	m := buildIngressMatcher(ingressRuleDoc{Host: "example.com"})
	if _, ok := m.(matcher.Domain); !ok {
		t.Fatalf("buildIngressMatcher(host only) = %#v, want matcher.Domain", m)
	}
}

func TestBuildIngressMatcherPathOnly(t *testing.T) {
	m := buildIngressMatcher(ingressRuleDoc{Path: "/api"})
	if _, ok := m.(matcher.PathPrefix); !ok {
		t.Fatalf("buildIngressMatcher(path only) = %#v, want matcher.PathPrefix", m)
	}
}

func TestIngressRawConfigsAnnotationsAndNaming(t *testing.T) {
	svcName := "backend"
	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "web",
			Namespace: "default",
			Annotations: map[string]string{
				middlewareAnnotation: "strip, auth",
				priorityAnnotation:   "7",
			},
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{
				{
					Host: "example.com",
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{
							Paths: []networkingv1.HTTPIngressPath{
								{Path: "/a", Backend: networkingv1.IngressBackend{Service: &networkingv1.IngressServiceBackend{Name: svcName}}},
								{Path: "/b", Backend: networkingv1.IngressBackend{Service: &networkingv1.IngressServiceBackend{Name: svcName}}},
							},
						},
					},
				},
			},
		},
	}

	raws := ingressRawConfigs(ing)
	if len(raws) != 2 {
		t.Fatalf("ingressRawConfigs() returned %d raws, want 2", len(raws))
	}
	if raws[0].Name.Local != "web-0" || raws[1].Name.Local != "web-1" {
		t.Fatalf("ingressRawConfigs() names = %q, %q, want web-0, web-1", raws[0].Name.Local, raws[1].Name.Local)
	}
}

func TestIngressRouteToDoc(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"metadata": map[string]interface{}{"name": "route1", "namespace": "default"},
		"spec": map[string]interface{}{
			"routes": []interface{}{
				map[string]interface{}{
					"match": "Host(`example.com`)",
					"services": []interface{}{
						map[string]interface{}{"name": "backend"},
					},
					"middlewares": []interface{}{
						map[string]interface{}{"name": "strip"},
					},
				},
			},
		},
	}}

	doc, ok := ingressRouteToDoc(obj)
	if !ok {
		t.Fatalf("ingressRouteToDoc() = not ok, want ok")
	}
	if doc.Name != "route1" || doc.Match != "Host(`example.com`)" || doc.Service != "backend" {
		t.Fatalf("ingressRouteToDoc() = %+v, unexpected fields", doc)
	}
	if len(doc.Middleware) != 1 || doc.Middleware[0] != "strip" {
		t.Fatalf("ingressRouteToDoc() middleware = %v, want [strip]", doc.Middleware)
	}
}

func TestIngressRouteToDocMissingRoutes(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"spec": map[string]interface{}{},
	}}
	if _, ok := ingressRouteToDoc(obj); ok {
		t.Fatalf("ingressRouteToDoc() = ok for a spec with no routes")
	}
}

func TestMiddlewareToDocStripPrefix(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"metadata": map[string]interface{}{"name": "strip-mw"},
		"spec": map[string]interface{}{
			"stripPrefix": map[string]interface{}{
				"prefixes": []interface{}{"/api"},
			},
		},
	}}
	doc := middlewareToDoc(obj)
	if doc.Name != "strip-mw" || doc.StripPrefix == nil || *doc.StripPrefix != "/api" {
		t.Fatalf("middlewareToDoc() = %+v, want StripPrefix=/api", doc)
	}
}

func TestMiddlewareToDocHeaders(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"metadata": map[string]interface{}{"name": "hdr-mw"},
		"spec": map[string]interface{}{
			"headers": map[string]interface{}{
				"customRequestHeaders": map[string]interface{}{"X-Foo": "bar"},
			},
		},
	}}
	doc := middlewareToDoc(obj)
	if doc.Headers["X-Foo"] != "bar" {
		t.Fatalf("middlewareToDoc() headers = %v, want X-Foo=bar", doc.Headers)
	}
}
