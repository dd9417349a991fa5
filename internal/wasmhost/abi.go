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

import "fmt"

// The host/guest boundary is a single dispatcher function,
// host_call(resource, operation, ptr, len) -> i32, keeping the exported
// surface fixed regardless of how many distinct mutations the action
// library grows. resource selects which side of the exchange (request,
// response, or config) a call concerns; operation selects what it does
// within that resource.

type resource = uint32

const (
	resourceRequest resource = iota
	resourceResponse
	resourceConfig
)

type operation = uint32

const (
	opSetPath operation = iota
	opSetHeader
	opSetBody
	opSubstitute
	opGetConfig
)

// encodeHeaderPayload packs a header key/value pair as "key\x00value" for
// a single opSetHeader host_call.
func encodeHeaderPayload(key, value string) []byte {
	return append(append([]byte(key), 0), []byte(value)...)
}

func decodeHeaderPayload(b []byte) (key, value string) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), string(b[i+1:])
		}
	}
	return string(b), ""
}

// encodeSubstitutePayload packs a full substitute response as
// "status\nheaderKey:headerValue\n...\n\nbody".
func encodeSubstitutePayload(status int, header map[string]string, body []byte) []byte {
	out := fmt.Sprintf("%d\n", status)
	for k, v := range header {
		out += k + ":" + v + "\n"
	}
	out += "\n"
	return append([]byte(out), body...)
}
