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

// Package htpasswd verifies credentials against an htpasswd-format file,
// dispatching on hash scheme: apr1 MD5, bcrypt, unsalted SHA-1, and a
// crypt(3) DES fallback for anything else.
package htpasswd

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	apr1Prefix   = "$apr1$"
	bcryptPrefix = "$2y$"
	sha1Prefix   = "{SHA}"
)

// Kind tags which scheme an entry's Hash was stored with.
type Kind int

const (
	KindAPR1 Kind = iota
	KindBCrypt
	KindSHA1
	KindCrypt
)

// Hash is one parsed htpasswd entry.
type Hash struct {
	Kind Kind
	Salt string // only set for KindAPR1
	Hash string // the full stored hash text (scheme-specific)
}

// File is a parsed set of username → Hash entries.
type File map[string]Hash

// Parse reads newline-separated "user:hash" entries. Lines without a ':'
// are skipped. The scheme is inferred from the hash's prefix; anything
// matching none of $apr1$, $2y$, {SHA} is treated as a crypt(3) hash.
func Parse(data string) File {
	out := make(File)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		user, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[user] = parseHash(rest)
	}
	return out
}

func parseHash(field string) Hash {
	switch {
	case strings.HasPrefix(field, apr1Prefix):
		rest := field[len(apr1Prefix):]
		salt, hash, ok := strings.Cut(rest, "$")
		if !ok {
			return Hash{Kind: KindCrypt, Hash: field}
		}
		return Hash{Kind: KindAPR1, Salt: salt, Hash: hash}
	case strings.HasPrefix(field, bcryptPrefix):
		return Hash{Kind: KindBCrypt, Hash: field}
	case strings.HasPrefix(field, sha1Prefix):
		return Hash{Kind: KindSHA1, Hash: field[len(sha1Prefix):]}
	default:
		return Hash{Kind: KindCrypt, Hash: field}
	}
}

// Check reports whether password is the correct password for user,
// returning false for an unknown user or a malformed hash.
func (f File) Check(user, password string) bool {
	h, ok := f[user]
	if !ok {
		return false
	}
	switch h.Kind {
	case KindAPR1:
		computed, ok := apr1Encode(password, h.Salt)
		return ok && computed == h.Hash
	case KindBCrypt:
		return bcrypt.CompareHashAndPassword([]byte(h.Hash), []byte(password)) == nil
	case KindSHA1:
		sum := sha1.Sum([]byte(password))
		return base64.StdEncoding.EncodeToString(sum[:]) == h.Hash
	case KindCrypt:
		return cryptVerify(password, h.Hash)
	default:
		return false
	}
}
