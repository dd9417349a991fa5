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

// Package forwarder dials upstream addresses chosen by a Service's
// round-robin cursor, reusing idle connections across requests within the
// keep-alive window instead of paying a fresh TCP handshake every time.
package forwarder

import (
	"context"
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultIdleCacheSize bounds how many addresses the idle-connection
// cache keeps entries for at once; each entry may hold several idle
// connections to its address.
const DefaultIdleCacheSize = 256

// DefaultIdleTimeout is how long a returned connection may sit idle
// before Dial dials fresh instead of reusing it.
const DefaultIdleTimeout = 90 * time.Second

type idleConn struct {
	conn    net.Conn
	idleAt  time.Time
}

// Forwarder dials the address a Service's round-robin cursor selects,
// preferring a cached idle connection to the same address when one is
// available and still fresh.
type Forwarder struct {
	Dialer      net.Dialer
	IdleTimeout time.Duration

	mu   sync.Mutex
	idle *lru.Cache[string, []idleConn]
}

// New builds a Forwarder whose idle-connection cache holds at most
// cacheSize addresses' worth of entries.
func New(cacheSize int) *Forwarder {
	if cacheSize <= 0 {
		cacheSize = DefaultIdleCacheSize
	}
	c, err := lru.New[string, []idleConn](cacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, already guarded
		// above.
		panic(err)
	}
	return &Forwarder{IdleTimeout: DefaultIdleTimeout, idle: c}
}

// Dial returns a connection to addr, reusing a cached idle connection
// when one is available and not yet stale. Callers choose addr
// themselves (typically via a Service's round-robin cursor) so that the
// address a connection is released under always matches the address it
// was actually dialed to.
func (f *Forwarder) Dial(ctx context.Context, addr string) (net.Conn, error) {
	if conn, ok := f.takeIdle(addr); ok {
		return conn, nil
	}
	return f.Dialer.DialContext(ctx, "tcp", addr)
}

// Release returns conn to the idle pool for reuse by a later Dial to the
// same address, instead of closing it. Callers must not use conn again
// after calling Release.
func (f *Forwarder) Release(addr string, conn net.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conns, _ := f.idle.Get(addr)
	conns = append(conns, idleConn{conn: conn, idleAt: time.Now()})
	f.idle.Add(addr, conns)
}

func (f *Forwarder) takeIdle(addr string) (net.Conn, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conns, ok := f.idle.Get(addr)
	if !ok {
		return nil, false
	}
	for len(conns) > 0 {
		last := len(conns) - 1
		c := conns[last]
		conns = conns[:last]
		if time.Since(c.idleAt) > f.IdleTimeout {
			_ = c.conn.Close()
			continue
		}
		f.idle.Add(addr, conns)
		return c.conn, true
	}
	f.idle.Remove(addr)
	return nil, false
}

// Close drains and closes every pooled idle connection. Intended for
// shutdown; concurrent Dial/Release calls after Close may leak sockets.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, addr := range f.idle.Keys() {
		conns, _ := f.idle.Get(addr)
		for _, c := range conns {
			_ = c.conn.Close()
		}
	}
	f.idle.Purge()
	return nil
}
