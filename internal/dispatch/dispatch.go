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

// Package dispatch implements the per-connection state machine: match a
// request against the rule list, run its middleware chain, forward to the
// matched service (or an internal handler), and stream the response back,
// looping for as long as both sides keep the connection alive.
package dispatch

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/forwarder"
	"github.com/flowroute/flowroute/internal/httpproxy"
	"github.com/flowroute/flowroute/internal/rules"
)

// Handler is an internal service: a Service with Internal set routes here
// instead of through the forwarder.
type Handler interface {
	Handle(req *http.Request) (*httpproxy.Response, error)
}

// WebSocketHandoff takes over a connection once step 3 detects an
// Upgrade: websocket request, performing its own handshake validation and
// bidirectional relay. It owns conn for the rest of its lifetime: the
// dispatch loop does not resume after calling it.
type WebSocketHandoff func(conn net.Conn, br *bufio.Reader, req *http.Request, rule *rules.Rule)

// Dispatcher holds everything the per-connection loop needs: the routing
// table it matches against, the forwarder it dials upstreams through, the
// internal service registry, and the WebSocket handoff.
type Dispatcher struct {
	Rules     *rules.RuleList
	Forwarder *forwarder.Forwarder
	Internal  map[string]Handler
	WebSocket WebSocketHandoff
	Logger    log.Logger

	// IdleTimeout bounds how long a connection may sit between requests
	// (including the wait for the very first one) before it is closed.
	IdleTimeout time.Duration
}

func (d *Dispatcher) logger() log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.NewNopLogger()
}

// Serve accepts connections from ln until it returns an error (typically
// because ln was closed during shutdown).
func (d *Dispatcher) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go d.handleConn(conn)
	}
}

func (d *Dispatcher) handleConn(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	for {
		if d.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(d.IdleTimeout))
		}

		// Step 1: receive request head. Leftover bytes after the head
		// stay buffered in br for the next iteration (pipelining).
		req, err := http.ReadRequest(br)
		if err != nil {
			if !isClosedConnError(err) {
				writeSimple(bw, http.StatusBadRequest, "Bad Request\n")
			}
			return
		}

		keepGoing := d.serveOne(conn, br, bw, req)
		if !keepGoing {
			return
		}
	}
}

// serveOne runs steps 2-7 for a single request already read off conn's
// buffered reader. It returns whether the connection should stay open for
// another request.
func (d *Dispatcher) serveOne(conn net.Conn, br *bufio.Reader, bw *bufio.Writer, req *http.Request) bool {
	// Step 2: match.
	rule, ok := d.Rules.Find(req)
	if !ok {
		drainBody(req)
		writeSimple(bw, http.StatusNotFound, "Not Found\n")
		return false
	}

	// Step 3: WebSocket detection. The handoff owns conn from here on.
	if isWebSocketUpgrade(req) && d.WebSocket != nil {
		d.WebSocket(conn, br, req, rule)
		return false
	}

	// Step 4: request-side middleware chain.
	for _, cell := range rule.Middlewares {
		mw := cell.Get()
		resp, err := mw.Action.ApplyRequest(req)
		if err != nil {
			_ = level.Warn(d.logger()).Log("msg", "request middleware failed", "middleware", mw.Name, "err", err)
			drainBody(req)
			writeSimple(bw, http.StatusBadGateway, "Bad Gateway\n")
			return false
		}
		if resp != nil {
			drainBody(req)
			return d.sendResponse(bw, req, rule, resp)
		}
	}

	// Step 5: forward.
	resp, addr, upstream, err := d.forward(req, rule.Service.Get())
	drainBody(req)
	if err != nil {
		_ = level.Warn(d.logger()).Log("msg", "forward failed", "service", rule.Service.Get().Name, "err", err)
		writeSimple(bw, http.StatusBadGateway, "Bad Gateway\n")
		return false
	}

	// Step 6 (response-side middleware) happens inside sendResponse.
	keep := d.sendResponse(bw, req, rule, resp)
	if upstream != nil {
		if keep && !closeRequested(resp.Header, resp.Proto) {
			d.Forwarder.Release(addr, upstream)
		} else {
			_ = upstream.Close()
		}
	}
	return keep
}

// forward picks an upstream (Step 5): an internal handler if the service
// is marked Internal, otherwise a dialed TCP connection that gets
// request.Write'd to and whose response is parsed back. The returned
// net.Conn is nil for the internal-handler case.
func (d *Dispatcher) forward(req *http.Request, svc *config.Service) (*httpproxy.Response, string, net.Conn, error) {
	if svc.Internal {
		h, ok := d.Internal[svc.Handler]
		if !ok {
			return httpproxy.NewSimple(http.StatusNotFound, "Not Found\n"), "", nil, nil
		}
		resp, err := h.Handle(req)
		return resp, "", nil, err
	}

	addr, err := svc.Next()
	if err != nil {
		return nil, "", nil, err
	}
	conn, err := d.Forwarder.Dial(req.Context(), addr)
	if err != nil {
		return nil, addr, nil, err
	}

	if err := req.Write(conn); err != nil {
		_ = conn.Close()
		return nil, addr, nil, err
	}

	httpResp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		_ = conn.Close()
		return nil, addr, nil, err
	}
	return httpproxy.FromHTTP(httpResp), addr, conn, nil
}

// sendResponse runs Step 6's response-side middleware chain then writes
// the response to the client, returning whether Step 7 should keep the
// connection open.
func (d *Dispatcher) sendResponse(bw *bufio.Writer, req *http.Request, rule *rules.Rule, resp *httpproxy.Response) bool {
	keep := keepAliveRequested(req, resp)
	if !keep {
		resp.Header.Set("Connection", "close")
	}

	for _, cell := range rule.Middlewares {
		mw := cell.Get()
		if err := mw.Action.ApplyResponse(req, resp); err != nil {
			_ = level.Warn(d.logger()).Log("msg", "response middleware failed", "middleware", mw.Name, "err", err)
		}
	}

	if err := resp.WriteHead(bw); err != nil {
		return false
	}
	if err := resp.WriteBody(bw); err != nil {
		return false
	}
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err := bw.Flush(); err != nil {
		return false
	}
	return keep
}

func isWebSocketUpgrade(req *http.Request) bool {
	return headerContainsToken(req.Header, "Connection", "upgrade") &&
		strings.EqualFold(req.Header.Get("Upgrade"), "websocket")
}

func headerContainsToken(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// keepAliveRequested reports whether both sides of the exchange want the
// connection to stay open. resp may be nil when only the request side is
// known yet.
func keepAliveRequested(req *http.Request, resp *httpproxy.Response) bool {
	if closeRequested(req.Header, req.Proto) {
		return false
	}
	if resp != nil && closeRequested(resp.Header, resp.Proto) {
		return false
	}
	return true
}

func closeRequested(h http.Header, proto string) bool {
	if headerContainsToken(h, "Connection", "close") {
		return true
	}
	if proto == "HTTP/1.0" && !headerContainsToken(h, "Connection", "keep-alive") {
		return true
	}
	return false
}

func drainBody(req *http.Request) {
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
		_ = req.Body.Close()
	}
}

func writeSimple(bw *bufio.Writer, status int, body string) {
	resp := httpproxy.NewSimple(status, body)
	resp.Header.Set("Connection", "close")
	if err := resp.WriteHead(bw); err != nil {
		return
	}
	_ = resp.WriteBody(bw)
	_ = bw.Flush()
}

func isClosedConnError(err error) bool {
	if err == io.EOF {
		return true
	}
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
