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

package wsproxy

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/forwarder"
	"github.com/flowroute/flowroute/internal/matcher"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/rules"
	"github.com/flowroute/flowroute/internal/shared"
)

// wsUpstream accepts one connection, answers the handshake with 101, then
// echoes everything it reads back to the client.
func wsUpstream(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		_ = req
		resp := "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n"
		if _, err := conn.Write([]byte(resp)); err != nil {
			return
		}
		buf := make([]byte, 256)
		for {
			n, err := br.Read(buf)
			if n > 0 {
				if _, werr := conn.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestHandleRelaysAfterSuccessfulHandshake(t *testing.T) {
	upstreamAddr := wsUpstream(t)
	svc := config.NewService(name.New("svc", name.File), []string{upstreamAddr})
	rule := &rules.Rule{
		Name:    name.New("r", name.File),
		Matcher: matcher.PathPrefix("/"),
		Service: shared.New(svc),
		TLS:     rules.NoTLS,
	}

	p := &Proxy{Forwarder: forwarder.New(4)}

	serverConn, clientConn := net.Pipe()
	reqBytes := []byte("GET /ws HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\nSec-WebSocket-Version: 13\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n")

	go func() {
		_, _ = clientConn.Write(reqBytes)
	}()

	br := bufio.NewReader(serverConn)
	req, err := http.ReadRequest(br)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.Handle(serverConn, br, req, rule)
		close(done)
	}()

	_ = clientConn.SetDeadline(time.Now().Add(2 * time.Second))
	clientBR := bufio.NewReader(clientConn)
	resp, err := http.ReadResponse(clientBR, nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("StatusCode = %d, want 101", resp.StatusCode)
	}

	if _, err := clientConn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := make([]byte, 4)
	if _, err := readFull(clientBR, out); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if !bytes.Equal(out, []byte("ping")) {
		t.Fatalf("echo = %q, want ping", out)
	}
	_ = clientConn.Close()
	<-done
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestHandleRejectsNonUpgradeRequest(t *testing.T) {
	p := &Proxy{Forwarder: forwarder.New(4)}
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	req, _ := http.NewRequest(http.MethodGet, "http://x/ws", nil)
	done := make(chan struct{})
	go func() {
		p.Handle(serverConn, bufio.NewReader(serverConn), req, &rules.Rule{})
		close(done)
	}()

	_ = clientConn.SetDeadline(time.Now().Add(2 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(clientConn), nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d, want 400", resp.StatusCode)
	}
	<-done
}
