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

package htpasswd

// Traditional Unix crypt(3): salted DES run 25 times over an all-zero
// block, with the expansion permutation perturbed per-bit by the 12-bit
// salt. This is the last-resort scheme htpasswd falls back to for any
// hash that doesn't match $apr1$, $2y$, or {SHA}. crypto/des exposes only
// the unmodified expansion table, so the Feistel round needs its own
// implementation here; there is no verifiable ecosystem package for this
// specific salted variant in the examples this proxy was grounded on.

var ipTable = [64]int{
	58, 50, 42, 34, 26, 18, 10, 2,
	60, 52, 44, 36, 28, 20, 12, 4,
	62, 54, 46, 38, 30, 22, 14, 6,
	64, 56, 48, 40, 32, 24, 16, 8,
	57, 49, 41, 33, 25, 17, 9, 1,
	59, 51, 43, 35, 27, 19, 11, 3,
	61, 53, 45, 37, 29, 21, 13, 5,
	63, 55, 47, 39, 31, 23, 15, 7,
}

var fpTable = [64]int{
	40, 8, 48, 16, 56, 24, 64, 32,
	39, 7, 47, 15, 55, 23, 63, 31,
	38, 6, 46, 14, 54, 22, 62, 30,
	37, 5, 45, 13, 53, 21, 61, 29,
	36, 4, 44, 12, 52, 20, 60, 28,
	35, 3, 43, 11, 51, 19, 59, 27,
	34, 2, 42, 10, 50, 18, 58, 26,
	33, 1, 41, 9, 49, 17, 57, 25,
}

var eTable = [48]int{
	32, 1, 2, 3, 4, 5,
	4, 5, 6, 7, 8, 9,
	8, 9, 10, 11, 12, 13,
	12, 13, 14, 15, 16, 17,
	16, 17, 18, 19, 20, 21,
	20, 21, 22, 23, 24, 25,
	24, 25, 26, 27, 28, 29,
	28, 29, 30, 31, 32, 1,
}

var pTable = [32]int{
	16, 7, 20, 21, 29, 12, 28, 17,
	1, 15, 23, 26, 5, 18, 31, 10,
	2, 8, 24, 14, 32, 27, 3, 9,
	19, 13, 30, 6, 22, 11, 4, 25,
}

var pc1Table = [56]int{
	57, 49, 41, 33, 25, 17, 9,
	1, 58, 50, 42, 34, 26, 18,
	10, 2, 59, 51, 43, 35, 27,
	19, 11, 3, 60, 52, 44, 36,
	63, 55, 47, 39, 31, 23, 15,
	7, 62, 54, 46, 38, 30, 22,
	14, 6, 61, 53, 45, 37, 29,
	21, 13, 5, 28, 20, 12, 4,
}

var pc2Table = [48]int{
	14, 17, 11, 24, 1, 5,
	3, 28, 15, 6, 21, 10,
	23, 19, 12, 4, 26, 8,
	16, 7, 27, 20, 13, 2,
	41, 52, 31, 37, 47, 55,
	30, 40, 51, 45, 33, 48,
	44, 49, 39, 56, 34, 53,
	46, 42, 50, 36, 29, 32,
}

var shiftTable = [16]uint{1, 1, 2, 2, 2, 2, 2, 2, 1, 2, 2, 2, 2, 2, 2, 1}

var sBoxes = [8][4][16]int{
	{
		{14, 4, 13, 1, 2, 15, 11, 8, 3, 10, 6, 12, 5, 9, 0, 7},
		{0, 15, 7, 4, 14, 2, 13, 1, 10, 6, 12, 11, 9, 5, 3, 8},
		{4, 1, 14, 8, 13, 6, 2, 11, 15, 12, 9, 7, 3, 10, 5, 0},
		{15, 12, 8, 2, 4, 9, 1, 7, 5, 11, 3, 14, 10, 0, 6, 13},
	},
	{
		{15, 1, 8, 14, 6, 11, 3, 4, 9, 7, 2, 13, 12, 0, 5, 10},
		{3, 13, 4, 7, 15, 2, 8, 14, 12, 0, 1, 10, 6, 9, 11, 5},
		{0, 14, 7, 11, 10, 4, 13, 1, 5, 8, 12, 6, 9, 3, 2, 15},
		{13, 8, 10, 1, 3, 15, 4, 2, 11, 6, 7, 12, 0, 5, 14, 9},
	},
	{
		{10, 0, 9, 14, 6, 3, 15, 5, 1, 13, 12, 7, 11, 4, 2, 8},
		{13, 7, 0, 9, 3, 4, 6, 10, 2, 8, 5, 14, 12, 11, 15, 1},
		{13, 6, 4, 9, 8, 15, 3, 0, 11, 1, 2, 12, 5, 10, 14, 7},
		{1, 10, 13, 0, 6, 9, 8, 7, 4, 15, 14, 3, 11, 5, 2, 12},
	},
	{
		{7, 13, 14, 3, 0, 6, 9, 10, 1, 2, 8, 5, 11, 12, 4, 15},
		{13, 8, 11, 5, 6, 15, 0, 3, 4, 7, 2, 12, 1, 10, 14, 9},
		{10, 6, 9, 0, 12, 11, 7, 13, 15, 1, 3, 14, 5, 2, 8, 4},
		{3, 15, 0, 6, 10, 1, 13, 8, 9, 4, 5, 11, 12, 7, 2, 14},
	},
	{
		{2, 12, 4, 1, 7, 10, 11, 6, 8, 5, 3, 15, 13, 0, 14, 9},
		{14, 11, 2, 12, 4, 7, 13, 1, 5, 0, 15, 10, 3, 9, 8, 6},
		{4, 2, 1, 11, 10, 13, 7, 8, 15, 9, 12, 5, 6, 3, 0, 14},
		{11, 8, 12, 7, 1, 14, 2, 13, 6, 15, 0, 9, 10, 4, 5, 3},
	},
	{
		{12, 1, 10, 15, 9, 2, 6, 8, 0, 13, 3, 4, 14, 7, 5, 11},
		{10, 15, 4, 2, 7, 12, 9, 5, 6, 1, 13, 14, 0, 11, 3, 8},
		{9, 14, 15, 5, 2, 8, 12, 3, 7, 0, 4, 10, 1, 13, 11, 6},
		{4, 3, 2, 12, 9, 5, 15, 10, 11, 14, 1, 7, 6, 0, 8, 13},
	},
	{
		{4, 11, 2, 14, 15, 0, 8, 13, 3, 12, 9, 7, 5, 10, 6, 1},
		{13, 0, 11, 7, 4, 9, 1, 10, 14, 3, 5, 12, 2, 15, 8, 6},
		{1, 4, 11, 13, 12, 3, 7, 14, 10, 15, 6, 8, 0, 5, 9, 2},
		{6, 11, 13, 8, 1, 4, 10, 7, 9, 5, 0, 15, 14, 2, 3, 12},
	},
	{
		{13, 2, 8, 4, 6, 15, 11, 1, 10, 9, 3, 14, 5, 0, 12, 7},
		{1, 15, 13, 8, 10, 3, 7, 4, 12, 5, 6, 11, 0, 14, 9, 2},
		{7, 11, 4, 1, 9, 12, 14, 2, 0, 6, 10, 13, 15, 3, 5, 8},
		{2, 1, 14, 7, 4, 10, 8, 13, 15, 12, 9, 0, 3, 5, 6, 11},
	},
}

// getBit treats v's low `width` bits as a big-endian bitstring, MSB
// first, matching the DES spec's 1-indexed bit-selection tables.
func getBit(v uint64, width, pos int) uint64 {
	// pos is 1-indexed from the most significant bit.
	shift := width - pos
	return (v >> uint(shift)) & 1
}

func permute(v uint64, width int, table []int) uint64 {
	var out uint64
	for _, pos := range table {
		out = (out << 1) | getBit(v, width, pos)
	}
	return out
}

func keySchedule(key56 uint64) [16]uint64 {
	c := uint32(key56>>28) & 0x0fffffff
	d := uint32(key56) & 0x0fffffff
	var subkeys [16]uint64
	for round := 0; round < 16; round++ {
		c = rotl28(c, shiftTable[round])
		d = rotl28(d, shiftTable[round])
		cd := (uint64(c) << 28) | uint64(d)
		subkeys[round] = permute(cd, 56, pc2Table[:])
	}
	return subkeys
}

func rotl28(v uint32, n uint) uint32 {
	v &= 0x0fffffff
	return ((v << n) | (v >> (28 - n))) & 0x0fffffff
}

func feistel(r uint32, subkey uint64, eTableMod [48]int) uint32 {
	expanded := permute(uint64(r), 32, eTableMod[:])
	x := expanded ^ subkey

	var sOut uint32
	for i := 0; i < 8; i++ {
		chunk := (x >> uint(42-6*i)) & 0x3f
		row := ((chunk & 0x20) >> 4) | (chunk & 0x01)
		col := (chunk >> 1) & 0x0f
		val := uint32(sBoxes[i][row][col])
		sOut = (sOut << 4) | val
	}
	return uint32(permute(uint64(sOut), 32, pTable[:]))
}

// saltedE builds the E-expansion table with the traditional crypt(3)
// bit-swap: for each of the salt's 12 bits, if set, the i-th and
// (i+24)-th output positions of the standard E table are swapped.
func saltedE(salt12 uint32) [48]int {
	e := eTable
	for i := 0; i < 12; i++ {
		if salt12&(1<<uint(i)) != 0 {
			e[i], e[i+24] = e[i+24], e[i]
		}
	}
	return e
}

func desEncryptBlock(block uint64, subkeys [16]uint64, eTableMod [48]int) uint64 {
	permuted := permute(block, 64, ipTable[:])
	l := uint32(permuted >> 32)
	r := uint32(permuted)
	for round := 0; round < 16; round++ {
		newR := l ^ feistel(r, subkeys[round], eTableMod)
		l = r
		r = newR
	}
	preOutput := (uint64(r) << 32) | uint64(l)
	return permute(preOutput, 64, fpTable[:])
}

// packKey builds the crypt(3) 56-bit key material from up to 8 password
// bytes, each contributing its low 7 bits shifted left by one (crypt
// ignores the 8th bit and leaves the low bit as a DES parity slot).
func packKey(password []byte) uint64 {
	var buf [8]byte
	for i := 0; i < 8 && i < len(password); i++ {
		buf[i] = (password[i] & 0x7f) << 1
	}
	var key64 uint64
	for _, b := range buf {
		key64 = (key64 << 8) | uint64(b)
	}
	return permute(key64, 64, pc1Table[:])
}

func salt12FromChars(a, b byte) uint32 {
	return (uint32(itoa64Index(a)) & 0x3f) | (uint32(itoa64Index(b))&0x3f)<<6
}

func itoa64Index(c byte) int {
	for i := 0; i < len(itoa64); i++ {
		if itoa64[i] == c {
			return i
		}
	}
	return 0
}

// cryptVerify reports whether password produces hash under traditional
// crypt(3): hash is "SShash" where SS is the 2-character salt.
func cryptVerify(password, hash string) bool {
	if len(hash) < 13 {
		return false
	}
	salt := hash[:2]
	salt12 := salt12FromChars(salt[0], salt[1])
	eMod := saltedE(salt12)
	subkeys := keySchedule(packKey([]byte(password)))

	block := uint64(0)
	for i := 0; i < 25; i++ {
		block = desEncryptBlock(block, subkeys, eMod)
	}

	return salt+encodeCryptBlock(block) == hash
}

func encodeCryptBlock(block uint64) string {
	var out [11]byte
	// crypt packs the 64-bit result as 11 base64-like characters, 6 bits
	// at a time, most significant first (with the final 2 bits padded).
	for i := 0; i < 11; i++ {
		shift := 64 - 6*(i+1)
		var chunk uint64
		if shift >= 0 {
			chunk = (block >> uint(shift)) & 0x3f
		} else {
			chunk = (block << uint(-shift)) & 0x3f
		}
		out[i] = itoa64[chunk]
	}
	return string(out[:])
}
