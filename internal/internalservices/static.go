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

package internalservices

import (
	"bytes"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"

	"github.com/flowroute/flowroute/internal/httpproxy"
)

// serveStatic reads one file out of assets, defaulting "/" to index.html,
// and returns it as a response. Path traversal is not a concern here
// since fs.FS already confines lookups to its own subtree.
func serveStatic(assets fs.FS, req *http.Request) (*httpproxy.Response, error) {
	name := path.Clean(req.URL.Path)
	if name == "/" || name == "." {
		name = "index.html"
	} else {
		name = name[1:]
	}

	data, err := fs.ReadFile(assets, name)
	if err != nil {
		return httpproxy.NewSimple(http.StatusNotFound, "Not Found\n"), nil
	}

	h := http.Header{}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		h.Set("Content-Type", ct)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	h.Set("Content-Length", strconv.Itoa(len(data)))
	return &httpproxy.Response{
		StatusCode: http.StatusOK,
		Proto:      "HTTP/1.1",
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader(data)),
	}, nil
}
