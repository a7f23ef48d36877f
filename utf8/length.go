// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package utf8 provides additional UTF-8 related functions.
package utf8

import (
	"encoding/binary"
	"math/bits"
)

const hibits = 0x8080808080808080

// ASCIIPrefix returns the length of the
// longest prefix of str that consists
// only of ASCII characters.
func ASCIIPrefix(str []byte) int {
	n := 0
	// process 8 bytes at once using a SWAR algorithm
	for len(str)-n >= 8 {
		qword := binary.LittleEndian.Uint64(str[n:])
		if bit7 := qword & hibits; bit7 != 0 {
			return n + bits.TrailingZeros64(bit7)/8
		}
		n += 8
	}
	for n < len(str) && str[n] < 0x80 {
		n++
	}
	return n
}

// ASCIIPrefixString is identical to ASCIIPrefix,
// except that it accepts a string.
func ASCIIPrefixString(str string) int {
	n := 0
	for len(str)-n >= 8 {
		var qword uint64
		for i := 7; i >= 0; i-- {
			qword = qword<<8 | uint64(str[n+i])
		}
		if bit7 := qword & hibits; bit7 != 0 {
			return n + bits.TrailingZeros64(bit7)/8
		}
		n += 8
	}
	for n < len(str) && str[n] < 0x80 {
		n++
	}
	return n
}

// ValidStringLength returns the number of runes in a valid UTF-8 string
func ValidStringLength(str []byte) int {
	n := len(str)
	continuation := 0
	// We count how many continuation bytes (0b10xx_xxxxxx) are there.
	// Then the remaining bytes are leading bytes, and it's the number of runes.
	for len(str) >= 8 {
		qword := binary.LittleEndian.Uint64(str)
		str = str[8:]

		bit7 := qword & hibits
		if bit7 == 0 {
			continue
		}
		bit6 := qword << 1
		comb := bit7 &^ bit6 // bit7 = 1 and bit6 = 0 => continuation byte
		continuation += bits.OnesCount64(comb)
	}
	for _, b := range str {
		if b&0b11_000000 == 0b10_000000 {
			continuation++
		}
	}
	return n - continuation
}
