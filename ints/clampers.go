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

// Package ints provides int-related common functions.
package ints

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp returns x if it is in [lo, hi]. Otherwise, the nearest bounding value is returned
func Clamp[T constraints.Integer](x, lo, hi T) T {
	return max(lo, min(x, hi))
}

// Fits reports whether v can be represented
// by the integer type To without loss.
func Fits[To, From constraints.Integer](v From) bool {
	return From(To(v)) == v && (v < 0) == (To(v) < 0)
}

// Grow returns the new capacity of a buffer
// that currently holds cur bytes and must
// hold at least need bytes. Capacity doubles
// until it reaches need; it never exceeds
// math.MaxInt.
func Grow(cur, need int) int {
	if need <= cur {
		return cur
	}
	if cur > math.MaxInt/2 {
		return need
	}
	return max(need, cur*2)
}
