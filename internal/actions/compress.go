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

package actions

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/flowroute/flowroute/internal/httpproxy"
)

// Compress gzips the response body when the client advertised support for
// it and nothing upstream already encoded the body. It leaves the body
// byte-identical whenever either condition fails, so callers that never
// buffer a response never pay for a compression pass they didn't ask for.
type Compress struct{}

func (Compress) ApplyRequest(*http.Request) (*httpproxy.Response, error) { return nil, nil }

func (Compress) ApplyResponse(req *http.Request, resp *httpproxy.Response) error {
	if resp.Header.Get("Content-Encoding") != "" {
		return nil
	}
	if resp.Chunked || resp.Header.Get("Transfer-Encoding") != "" {
		return nil
	}
	if !acceptsGzip(req.Header.Get("Accept-Encoding")) {
		return nil
	}

	if err := resp.BufferBody(); err != nil {
		return err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		_ = gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}

	resp.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
	resp.Header.Set("Content-Encoding", "gzip")
	resp.Header.Set("Content-Length", strconv.Itoa(buf.Len()))
	return nil
}

func acceptsGzip(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		if strings.EqualFold(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]), "gzip") {
			return true
		}
	}
	return false
}
