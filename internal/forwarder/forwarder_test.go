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

package forwarder

import (
	"context"
	"net"
	"testing"
	"time"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c
		}
	}()
	return ln
}

func TestDialConnectsToGivenAddress(t *testing.T) {
	a := listen(t)
	f := New(8)

	conn, err := f.Dial(context.Background(), a.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if conn.RemoteAddr().String() != a.Addr().String() {
		t.Fatalf("Dial() connected to %s, want %s", conn.RemoteAddr(), a.Addr())
	}
}

func TestReleaseThenDialReusesConnection(t *testing.T) {
	a := listen(t)
	addr := a.Addr().String()
	f := New(8)

	conn, err := f.Dial(context.Background(), addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	local := conn.LocalAddr().String()
	f.Release(addr, conn)

	reused, err := f.Dial(context.Background(), addr)
	if err != nil {
		t.Fatalf("Dial (reuse): %v", err)
	}
	defer reused.Close()
	if reused.LocalAddr().String() != local {
		t.Fatalf("Dial() after Release dialed fresh instead of reusing pooled connection")
	}
}

// TestReleaseUnderWrongAddressWouldMisroute guards the invariant a caller
// depends on: the address passed to Release must be exactly the address
// the connection was dialed to, or a later Dial for that address can hand
// back a socket pointed at a different upstream entirely.
func TestReleaseUnderWrongAddressWouldMisroute(t *testing.T) {
	a := listen(t)
	b := listen(t)
	f := New(8)

	connToA, err := f.Dial(context.Background(), a.Addr().String())
	if err != nil {
		t.Fatalf("Dial a: %v", err)
	}
	f.Release(a.Addr().String(), connToA)

	reused, ok := f.takeIdle(a.Addr().String())
	if !ok {
		t.Fatalf("takeIdle(a) = false, want pooled connection")
	}
	defer reused.Close()
	if reused.RemoteAddr().String() != a.Addr().String() {
		t.Fatalf("takeIdle(a) returned a connection to %s, want %s", reused.RemoteAddr(), a.Addr())
	}
	if _, ok := f.takeIdle(b.Addr().String()); ok {
		t.Fatalf("takeIdle(b) returned a connection pooled under a different address")
	}
}

func TestTakeIdleDiscardsStaleConnections(t *testing.T) {
	a := listen(t)
	addr := a.Addr().String()
	f := New(8)
	f.IdleTimeout = time.Millisecond

	conn, err := f.Dial(context.Background(), addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	f.Release(addr, conn)
	time.Sleep(5 * time.Millisecond)

	fresh, err := f.Dial(context.Background(), addr)
	if err != nil {
		t.Fatalf("Dial (post-expiry): %v", err)
	}
	defer fresh.Close()
	if fresh.LocalAddr().String() == conn.LocalAddr().String() {
		t.Fatalf("Dial() reused a connection past its idle timeout")
	}
}
