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

package wasmhost

import (
	"context"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/flowroute/flowroute/internal/config"
)

// hostEnv accumulates the mutations a guest call makes through host_call
// and answers host_call's resourceConfig/opGetConfig reads. One hostEnv
// is created per module instance and reused across every ApplyRequest/
// ApplyResponse call into that instance; beginCall resets it.
type hostEnv struct {
	configBlob []byte

	pending config.PluginResult
}

func newHostEnv(configBlob []byte) *hostEnv {
	return &hostEnv{configBlob: configBlob}
}

func (h *hostEnv) beginCall() {
	h.pending = config.PluginResult{}
}

func (h *hostEnv) register(builder wazero.HostModuleBuilder) {
	builder.NewFunctionBuilder().
		WithFunc(h.hostCall).
		Export("host_call")
}

// hostCall implements the single dispatcher function described in abi.go.
// For opGetConfig it returns the number of config bytes copied into guest
// memory (at most length), or 1 if the write failed; for every other
// operation it returns 0, or 1 if ptr/len didn't resolve to valid guest
// memory.
func (h *hostEnv) hostCall(ctx context.Context, mod api.Module, resourceArg, operationArg, ptr, length uint32) uint32 {
	if operationArg == opGetConfig {
		return h.writeConfigInto(mod, ptr, length)
	}

	payload, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return 1
	}
	// Memory().Read returns a view into guest linear memory; copy it since
	// the guest may reuse/free that buffer immediately after the call.
	buf := append([]byte(nil), payload...)

	switch resourceArg {
	case resourceRequest, resourceResponse:
		switch operationArg {
		case opSetPath:
			path := string(buf)
			h.pending.SetPath = &path
		case opSetHeader:
			key, value := decodeHeaderPayload(buf)
			if h.pending.SetHeader == nil {
				h.pending.SetHeader = make(map[string]string)
			}
			h.pending.SetHeader[key] = value
		case opSetBody:
			h.pending.SetBody = buf
		case opSubstitute:
			h.pending.Substitute = decodeSubstitute(buf)
		}
	}
	return 0
}

func (h *hostEnv) writeConfigInto(mod api.Module, ptr, capacity uint32) uint32 {
	n := uint32(len(h.configBlob))
	if n > capacity {
		n = capacity
	}
	if !mod.Memory().Write(ptr, h.configBlob[:n]) {
		return 1
	}
	return n
}

func decodeSubstitute(buf []byte) *config.SubstituteResponse {
	parts := strings.SplitN(string(buf), "\n\n", 2)
	head := parts[0]
	body := ""
	if len(parts) == 2 {
		body = parts[1]
	}
	lines := strings.Split(head, "\n")
	if len(lines) == 0 {
		return nil
	}
	status, err := strconv.Atoi(lines[0])
	if err != nil {
		status = 500
	}
	header := make(map[string][]string)
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		header[k] = append(header[k], v)
	}
	return &config.SubstituteResponse{Status: status, Header: header, Body: []byte(body)}
}
