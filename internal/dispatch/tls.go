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

package dispatch

import (
	"crypto/tls"
	"net"
)

// ServeTLS wraps ln in a TLS listener using cfg (typically one whose
// GetCertificate is wired to a tlsstore.Store.Resolve) and serves it the
// same way Serve does.
func (d *Dispatcher) ServeTLS(ln net.Listener, cfg *tls.Config) error {
	return d.Serve(tls.NewListener(ln, cfg))
}
