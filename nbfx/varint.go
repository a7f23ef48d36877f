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

package nbfx

import (
	"fmt"
	"math"
	"math/bits"
)

// multiByteLen returns the encoded size
// of v as a MultiByteInt31.
func multiByteLen(v int) int {
	// or-ing in 1 makes bits.Len
	// return 1 for v == 0
	return (bits.Len32(uint32(v)|1) + 6) / 7
}

// AppendMultiByteInt31 appends v as a little-endian
// base 128 integer. It panics if v does not fit
// in 31 bits.
func AppendMultiByteInt31(dst []byte, v int) []byte {
	if v < 0 || v > math.MaxInt32 {
		panic(fmt.Sprintf("nbfx: %d does not fit in a MultiByteInt31", v))
	}
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}
