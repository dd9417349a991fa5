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
	"crypto/tls"
	"encoding/json"
	"fmt"

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

// commonNameAnnotations are checked in order; the first present wins.
var commonNameAnnotations = []string{"tunneload/common-name", "cert-manager.io/common-name"}

// SecretsSource watches v1.Secret{type=kubernetes.io/tls} and contributes
// a (host, certificate) pair per object, keyed by whichever common-name
// annotation is present.
type SecretsSource struct {
	Client    kubernetes.Interface
	Namespace string
	Logger    log.Logger
}

func (s *SecretsSource) logger() log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.NewNopLogger()
}

type tlsSecretDoc struct {
	Host    string `json:"host"`
	CertPEM []byte `json:"certPEM"`
	KeyPEM  []byte `json:"keyPEM"`
}

func commonNameOf(secret *corev1.Secret) (string, bool) {
	for _, key := range commonNameAnnotations {
		if v, ok := secret.Annotations[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func isTLSSecret(secret *corev1.Secret) bool {
	return secret.Type == corev1.SecretTypeTLS
}

func tlsSecretRawConfig(secret *corev1.Secret) (configurator.RawConfig, bool, error) {
	if !isTLSSecret(secret) {
		return configurator.RawConfig{}, false, nil
	}
	host, ok := commonNameOf(secret)
	if !ok {
		return configurator.RawConfig{}, false, nil
	}
	data, err := json.Marshal(tlsSecretDoc{
		Host:    host,
		CertPEM: secret.Data[corev1.TLSCertKey],
		KeyPEM:  secret.Data[corev1.TLSPrivateKeyKey],
	})
	if err != nil {
		return configurator.RawConfig{}, false, err
	}
	return configurator.RawConfig{
		Name: name.New(host, name.Kubernetes(secret.Namespace)),
		Data: data,
	}, true, nil
}

func (s *SecretsSource) TLS(ctx context.Context) ([]configurator.RawConfig, error) {
	list, err := s.Client.CoreV1().Secrets(s.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("kubernetes: list secrets: %w", err)
	}
	raws := make([]configurator.RawConfig, 0, len(list.Items))
	for i := range list.Items {
		raw, ok, err := tlsSecretRawConfig(&list.Items[i])
		if err != nil || !ok {
			continue
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func (s *SecretsSource) Services(context.Context) ([]configurator.RawConfig, error)    { return nil, nil }
func (s *SecretsSource) Middlewares(context.Context) ([]configurator.RawConfig, error) { return nil, nil }
func (s *SecretsSource) Rules(context.Context) ([]configurator.RawConfig, error)       { return nil, nil }

func (s *SecretsSource) ParseTLS(_ context.Context, _ configurator.ParseContext, raw configurator.RawConfig) (string, tlsstore.CertifiedKey, error) {
	var doc tlsSecretDoc
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return "", tlsstore.CertifiedKey{}, fmt.Errorf("kubernetes: decode TLS secret %q: %w", raw.Name, err)
	}
	cert, err := tls.X509KeyPair(doc.CertPEM, doc.KeyPEM)
	if err != nil {
		return "", tlsstore.CertifiedKey{}, fmt.Errorf("kubernetes: parse keypair for %q: %w", doc.Host, err)
	}
	return doc.Host, cert, nil
}

func (s *SecretsSource) ParseService(context.Context, configurator.ParseContext, configurator.RawConfig) (*config.Service, error) {
	return nil, configurator.ErrUnimplemented
}

func (s *SecretsSource) ParseMiddleware(context.Context, configurator.ParseContext, configurator.RawConfig) (*config.Middleware, error) {
	return nil, configurator.ErrUnimplemented
}

func (s *SecretsSource) ParseRule(context.Context, configurator.ParseContext, configurator.RawConfig) (*rules.Rule, error) {
	return nil, configurator.ErrUnimplemented
}

func (s *SecretsSource) TLSEvents(ctx context.Context) (<-chan configurator.Event, error) {
	events := restartingWatch(ctx, s.logger(), func(ctx context.Context) (watch.Interface, error) {
		return s.Client.CoreV1().Secrets(s.Namespace).Watch(ctx, metav1.ListOptions{})
	})
	out := make(chan configurator.Event, 16)
	go func() {
		defer close(out)
		for e := range events {
			secret, ok := e.Object.(*corev1.Secret)
			if !ok || !isTLSSecret(secret) {
				continue
			}
			host, ok := commonNameOf(secret)
			if !ok {
				continue
			}
			n := name.New(host, name.Kubernetes(secret.Namespace))
			if e.Type == watch.Deleted {
				out <- configurator.Event{Kind: configurator.EventRemove, Name: n}
				continue
			}
			raw, ok, err := tlsSecretRawConfig(secret)
			if err != nil || !ok {
				continue
			}
			out <- configurator.Event{Kind: configurator.EventUpdate, Name: n, Raw: raw}
		}
	}()
	return out, nil
}

func (s *SecretsSource) ServiceEvents(context.Context) (<-chan configurator.Event, error) {
	return nil, nil
}
func (s *SecretsSource) MiddlewareEvents(context.Context) (<-chan configurator.Event, error) {
	return nil, nil
}
func (s *SecretsSource) RuleEvents(context.Context) (<-chan configurator.Event, error) { return nil, nil }
