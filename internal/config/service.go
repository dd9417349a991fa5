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

package config

import (
	"errors"
	"sync/atomic"

	"github.com/flowroute/flowroute/internal/name"
)

// ErrNoEndpoint is returned by Service.Next when the service has no
// addresses to forward to.
var ErrNoEndpoint = errors.New("config: service has no endpoints")

// Service is a named, load-balanced upstream. Internal services carry no
// addresses at all and are instead dispatched to a locally registered
// handler (see internal/internalservices); Handler identifies which one.
type Service struct {
	Name      name.Name
	Addresses []string
	Internal  bool
	Handler   string

	cursor atomic.Uint64
}

// NewService builds a Service with the given addresses. The round-robin
// cursor always starts at zero.
func NewService(n name.Name, addresses []string) *Service {
	return &Service{Name: n, Addresses: addresses}
}

// NewInternalService builds a Service with no addresses whose requests the
// dispatch engine routes to the named internal handler instead of dialing
// out.
func NewInternalService(n name.Name, handler string) *Service {
	return &Service{Name: n, Internal: true, Handler: handler}
}

// Next picks the next address by round robin: fetch-and-add the cursor
// modulo the address count. Wrapping the counter on overflow is benign
// since only the value modulo len(Addresses) is ever observed.
func (s *Service) Next() (string, error) {
	n := len(s.Addresses)
	if n == 0 {
		return "", ErrNoEndpoint
	}
	idx := s.cursor.Add(1) - 1
	return s.Addresses[int(idx)%n], nil
}

// DefaultService is the placeholder a Collection[*Service] installs for a
// name referenced before any configurator has defined it. It has no
// addresses, so any Next() on it correctly fails with ErrNoEndpoint until
// a real configurator replaces it via Collection.Set.
func DefaultService(n name.Name) *Service {
	return &Service{Name: n}
}
