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

// Package wsproxy implements the WebSocket handoff: once dispatch detects
// an upgrade request it hands the raw connection here, which validates the
// handshake, forwards it unmodified to the matched upstream, and relays
// raw bytes in both directions once the upstream answers 101 Switching
// Protocols.
package wsproxy

import (
	"bufio"
	"io"
	"net"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"

	"github.com/flowroute/flowroute/internal/forwarder"
	"github.com/flowroute/flowroute/internal/rules"
)

// Proxy performs the WebSocket handoff for dispatch.WebSocketHandoff.
type Proxy struct {
	Forwarder *forwarder.Forwarder
	Logger    log.Logger
}

func (p *Proxy) logger() log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.NewNopLogger()
}

// Handle validates req as a genuine WebSocket upgrade, forwards it to
// rule's service, and relays bytes bidirectionally between client and
// upstream until either side closes. It owns conn and closes it before
// returning.
func (p *Proxy) Handle(conn net.Conn, br *bufio.Reader, req *http.Request, rule *rules.Rule) {
	defer conn.Close()

	if !websocket.IsWebSocketUpgrade(req) {
		writeBadRequest(conn)
		return
	}

	svc := rule.Service.Get()
	addr, err := svc.Next()
	if err != nil {
		_ = level.Warn(p.logger()).Log("msg", "websocket: no upstream endpoint", "service", svc.Name, "err", err)
		writeBadGateway(conn)
		return
	}

	upstream, err := p.Forwarder.Dial(req.Context(), addr)
	if err != nil {
		_ = level.Warn(p.logger()).Log("msg", "websocket: dial upstream failed", "addr", addr, "err", err)
		writeBadGateway(conn)
		return
	}
	defer upstream.Close()

	if err := req.Write(upstream); err != nil {
		_ = level.Warn(p.logger()).Log("msg", "websocket: forward handshake failed", "addr", addr, "err", err)
		return
	}

	upstreamBR := bufio.NewReader(upstream)
	resp, err := http.ReadResponse(upstreamBR, req)
	if err != nil {
		_ = level.Warn(p.logger()).Log("msg", "websocket: read upstream handshake response failed", "addr", addr, "err", err)
		return
	}
	if err := resp.Write(conn); err != nil {
		return
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return
	}

	relay(br, conn, upstreamBR, upstream)
}

// relay copies bytes in both directions until one side closes, at which
// point it closes the other to unblock its copy.
func relay(clientR *bufio.Reader, client net.Conn, upstreamR *bufio.Reader, upstream net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(upstream, clientR)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(client, upstreamR)
		done <- struct{}{}
	}()
	<-done
	_ = client.Close()
	_ = upstream.Close()
	<-done
}

func writeBadRequest(conn net.Conn) {
	_, _ = io.WriteString(conn, "HTTP/1.1 400 Bad Request\r\nConnection: close\r\nContent-Length: 0\r\n\r\n")
}

func writeBadGateway(conn net.Conn) {
	_, _ = io.WriteString(conn, "HTTP/1.1 502 Bad Gateway\r\nConnection: close\r\nContent-Length: 0\r\n\r\n")
}
