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
	"bufio"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/forwarder"
	"github.com/flowroute/flowroute/internal/httpproxy"
	"github.com/flowroute/flowroute/internal/matcher"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/rules"
	"github.com/flowroute/flowroute/internal/shared"
)

// echoUpstream answers every request with its path as the body.
func echoUpstream(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				br := bufio.NewReader(conn)
				for {
					req, err := http.ReadRequest(br)
					if err != nil {
						return
					}
					drainRequestBody(req)
					body := fmt.Sprintf("echo:%s", req.URL.Path)
					resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\nConnection: keep-alive\r\n\r\n%s", len(body), body)
					if _, err := conn.Write([]byte(resp)); err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func drainRequestBody(req *http.Request) {
	if req.Body == nil {
		return
	}
	defer req.Body.Close()
	buf := make([]byte, 512)
	for {
		_, err := req.Body.Read(buf)
		if err != nil {
			return
		}
	}
}

func newTestRuleList(svcAddr string) *rules.RuleList {
	svc := config.NewService(name.New("svc", name.File), []string{svcAddr})
	r := &rules.Rule{
		Name:    name.New("r", name.File),
		Matcher: matcher.PathPrefix("/"),
		Service: shared.New(svc),
		TLS:     rules.NoTLS,
	}
	rl := rules.NewRuleList()
	rl.Add(r)
	rl.Sort()
	rl.Publish()
	return rl
}

func TestDispatcherForwardsAndEchoesPath(t *testing.T) {
	upstream := echoUpstream(t)
	rl := newTestRuleList(upstream)

	d := &Dispatcher{Rules: rl, Forwarder: forwarder.New(4)}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go d.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	defer resp.Body.Close()
	body := make([]byte, 64)
	n, _ := resp.Body.Read(body)
	if got := string(body[:n]); got != "echo:/hello" {
		t.Fatalf("body = %q, want echo:/hello", got)
	}
}

func TestDispatcherNoMatchReturns404(t *testing.T) {
	rl := rules.NewRuleList()
	rl.Sort()
	rl.Publish()

	d := &Dispatcher{Rules: rl, Forwarder: forwarder.New(4)}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go d.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_, _ = conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

func TestDispatcherInternalServiceBypassesForwarder(t *testing.T) {
	svc := config.NewInternalService(name.New("internal", name.Internal), "echo")
	r := &rules.Rule{
		Name:    name.New("r", name.File),
		Matcher: matcher.PathPrefix("/"),
		Service: shared.New(svc),
		TLS:     rules.NoTLS,
	}
	rl := rules.NewRuleList()
	rl.Add(r)
	rl.Sort()
	rl.Publish()

	d := &Dispatcher{
		Rules:     rl,
		Forwarder: forwarder.New(4),
		Internal: map[string]Handler{
			"echo": handlerFunc(func(req *http.Request) (*httpproxy.Response, error) {
				return httpproxy.NewSimple(http.StatusTeapot, "teapot\n"), nil
			}),
		},
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go d.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_, _ = conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("StatusCode = %d, want 418", resp.StatusCode)
	}
}

type handlerFunc func(req *http.Request) (*httpproxy.Response, error)

func (f handlerFunc) Handle(req *http.Request) (*httpproxy.Response, error) { return f(req) }

func TestIsWebSocketUpgrade(t *testing.T) {
	req := &http.Request{Header: http.Header{
		"Connection": {"Upgrade"},
		"Upgrade":    {"websocket"},
	}}
	if !isWebSocketUpgrade(req) {
		t.Fatalf("isWebSocketUpgrade() = false, want true")
	}
	plain := &http.Request{Header: http.Header{}}
	if isWebSocketUpgrade(plain) {
		t.Fatalf("isWebSocketUpgrade() = true for a plain request")
	}
}

func TestCloseRequested(t *testing.T) {
	if !closeRequested(http.Header{"Connection": {"close"}}, "HTTP/1.1") {
		t.Fatalf("closeRequested() = false for Connection: close")
	}
	if closeRequested(http.Header{}, "HTTP/1.1") {
		t.Fatalf("closeRequested() = true for HTTP/1.1 with no Connection header")
	}
	if !closeRequested(http.Header{}, "HTTP/1.0") {
		t.Fatalf("closeRequested() = false for bare HTTP/1.0")
	}
	if closeRequested(http.Header{"Connection": {"keep-alive"}}, "HTTP/1.0") {
		t.Fatalf("closeRequested() = true for HTTP/1.0 with Connection: keep-alive")
	}
}
