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

// Package httpproxy holds the in-flight response representation that
// middlewares (internal/actions) observe and mutate, and the helpers that
// move it to and from the wire. Requests are represented by the standard
// *http.Request throughout the dispatch path; only responses need a
// dedicated type, since the standard library has no writable counterpart
// to http.Response for the server side.
package httpproxy

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strconv"
)

// Response is the mutable, in-memory view of an upstream's response that
// the response-side middleware chain observes. Body starts out as a
// streaming reader directly over the upstream connection; BufferBody must
// be called before any action that needs random access to the body bytes.
type Response struct {
	StatusCode int
	Proto      string
	Header     http.Header
	Body       io.ReadCloser

	// Chunked is true when the upstream used Transfer-Encoding: chunked
	// and no action has since buffered (and thereby de-chunked) the body.
	Chunked bool
}

// FromHTTP adapts a standard *http.Response (as returned by
// http.ReadResponse over the upstream connection) into a Response.
func FromHTTP(r *http.Response) *Response {
	return &Response{
		StatusCode: r.StatusCode,
		Proto:      r.Proto,
		Header:     r.Header,
		Body:       r.Body,
		Chunked:    len(r.TransferEncoding) > 0,
	}
}

// BufferBody reads Body fully into memory so actions can inspect or
// rewrite it at random, then replaces Body with a fresh reader over the
// buffered bytes. It is safe to call from multiple actions in a chain:
// only the first call pays the read cost, since afterwards Chunked is
// false and Body is already a bytes.Reader.
func (r *Response) BufferBody() error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.Chunked = false
	return nil
}

// WriteHead writes the status line and headers to w.
func (r *Response) WriteHead(w *bufio.Writer) error {
	statusLine := r.Proto + " " + strconv.Itoa(r.StatusCode) + " " + http.StatusText(r.StatusCode) + "\r\n"
	if _, err := io.WriteString(w, statusLine); err != nil {
		return err
	}
	if err := r.Header.Write(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// WriteBody streams the response body to w. When Content-Length is known
// it copies exactly that many bytes; when the response is still Chunked
// (only true for a body an action never buffered) it re-chunks on the
// way out; otherwise it copies until EOF, which only terminates correctly
// if the caller closes the connection afterwards.
func (r *Response) WriteBody(w *bufio.Writer) error {
	switch {
	case r.Chunked:
		return writeChunked(w, r.Body)
	case r.Header.Get("Content-Length") != "":
		n, err := strconv.ParseInt(r.Header.Get("Content-Length"), 10, 64)
		if err != nil {
			return err
		}
		_, err = io.CopyN(w, r.Body, n)
		if err == io.EOF {
			err = nil
		}
		return err
	default:
		_, err := io.Copy(w, r.Body)
		return err
	}
}

// writeChunked re-encodes body as HTTP/1.1 chunked transfer encoding,
// used for the passthrough case where an upstream's chunked body was
// never buffered (and so never de-chunked) by any middleware.
func writeChunked(w *bufio.Writer, body io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := io.WriteString(w, strconv.FormatInt(int64(n), 16)+"\r\n"); err != nil {
				return err
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if _, err := io.WriteString(w, "\r\n"); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			_, err := io.WriteString(w, "0\r\n\r\n")
			return err
		}
		if readErr != nil {
			return readErr
		}
	}
}

// NewSimple builds a short-circuit response with a plain-text body, the
// shape every built-in action uses to answer 401/403/404/500 directly
// without forwarding to an upstream.
func NewSimple(status int, body string) *Response {
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	return &Response{
		StatusCode: status,
		Proto:      "HTTP/1.1",
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}
