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
	"encoding/binary"
	"errors"
	"math"
	"math/big"
	"strconv"
)

// maxDecimalScale is the largest number of
// fractional digits a Decimal may carry.
const maxDecimalScale = 28

// Decimal is a 96-bit scaled decimal number
// as carried by DecimalText records:
// (-1)^Neg * (Hi<<64 | Lo) / 10^Scale.
type Decimal struct {
	Lo    uint64
	Hi    uint32
	Scale uint8
	Neg   bool
}

var (
	errDecimalRange = errors.New("value does not fit in 96 bits")
	errDecimalScale = errors.New("scale out of range")

	bigTen     = big.NewInt(10)
	decimalMax = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))
)

// decimalFromWire decodes the 16 byte wire form:
// 2 reserved bytes, scale, sign, then the high
// 32 bits and the low 64 bits of the mantissa.
func decimalFromWire(b []byte) (Decimal, bool) {
	flags := binary.LittleEndian.Uint32(b)
	if flags&0x7F00FFFF != 0 || flags&0x00FF0000 > maxDecimalScale<<16 {
		return Decimal{}, false
	}
	return Decimal{
		Scale: uint8(flags >> 16),
		Neg:   flags&0x80000000 != 0,
		Hi:    binary.LittleEndian.Uint32(b[4:]),
		Lo:    binary.LittleEndian.Uint64(b[8:]),
	}, true
}

func (d Decimal) appendWire(dst []byte) []byte {
	flags := uint32(d.Scale) << 16
	if d.Neg {
		flags |= 0x80000000
	}
	dst = binary.LittleEndian.AppendUint32(dst, flags)
	dst = binary.LittleEndian.AppendUint32(dst, d.Hi)
	return binary.LittleEndian.AppendUint64(dst, d.Lo)
}

// DecimalFromInt64 returns v as a Decimal with scale 0.
func DecimalFromInt64(v int64) Decimal {
	if v < 0 {
		return Decimal{Lo: uint64(-v), Neg: true}
	}
	return Decimal{Lo: uint64(v)}
}

// DecimalFromUint64 returns v as a Decimal with scale 0.
func DecimalFromUint64(v uint64) Decimal {
	return Decimal{Lo: v}
}

// NewDecimal returns unscaled / 10^scale.
func NewDecimal(unscaled *big.Int, scale int) (Decimal, error) {
	if scale < 0 || scale > maxDecimalScale {
		return Decimal{}, errDecimalScale
	}
	abs := new(big.Int).Abs(unscaled)
	if abs.Cmp(decimalMax) > 0 {
		return Decimal{}, errDecimalRange
	}
	mask := new(big.Int).SetUint64(math.MaxUint64)
	return Decimal{
		Lo:    new(big.Int).And(abs, mask).Uint64(),
		Hi:    uint32(new(big.Int).Rsh(abs, 64).Uint64()),
		Scale: uint8(scale),
		Neg:   unscaled.Sign() < 0,
	}, nil
}

// Unscaled returns the signed mantissa of d.
func (d Decimal) Unscaled() *big.Int {
	v := new(big.Int).SetUint64(uint64(d.Hi))
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(d.Lo))
	if d.Neg {
		v.Neg(v)
	}
	return v
}

// IsZero reports whether d is zero
// (at any scale, with either sign).
func (d Decimal) IsZero() bool {
	return d.Hi == 0 && d.Lo == 0
}

// Float64 returns the nearest float64 to d.
func (d Decimal) Float64() float64 {
	if d.Hi == 0 && d.Scale == 0 {
		f := float64(d.Lo)
		if d.Neg {
			f = -f
		}
		return f
	}
	den := new(big.Int).Exp(bigTen, big.NewInt(int64(d.Scale)), nil)
	f, _ := new(big.Rat).SetFrac(d.Unscaled(), den).Float64()
	return f
}

// AppendText appends the decimal form of d,
// keeping all Scale fractional digits.
func (d Decimal) AppendText(dst []byte) []byte {
	if d.Neg && !d.IsZero() {
		dst = append(dst, '-')
	}
	var digits []byte
	if d.Hi == 0 {
		digits = strconv.AppendUint(nil, d.Lo, 10)
	} else {
		digits = d.Unscaled().Append(nil, 10)
		if digits[0] == '-' {
			digits = digits[1:]
		}
	}
	scale := int(d.Scale)
	if scale == 0 {
		return append(dst, digits...)
	}
	if len(digits) <= scale {
		dst = append(dst, '0', '.')
		for i := len(digits); i < scale; i++ {
			dst = append(dst, '0')
		}
		return append(dst, digits...)
	}
	dst = append(dst, digits[:len(digits)-scale]...)
	dst = append(dst, '.')
	return append(dst, digits[len(digits)-scale:]...)
}

func (d Decimal) String() string {
	return string(d.AppendText(nil))
}

// ParseDecimal parses an xsd:decimal. Fractional
// digits beyond the maximum scale are rounded
// half to even.
func ParseDecimal(s []byte) (Decimal, bool) {
	s = trimXMLSpace(s)
	neg := false
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var (
		mant   = new(big.Int)
		scale  int
		digits int
		dot    bool
		tmp    big.Int
	)
	for _, c := range s {
		switch {
		case c == '.' && !dot:
			dot = true
		case c >= '0' && c <= '9':
			mant.Mul(mant, bigTen)
			mant.Add(mant, tmp.SetInt64(int64(c-'0')))
			digits++
			if dot {
				scale++
			}
		default:
			return Decimal{}, false
		}
	}
	if digits == 0 {
		return Decimal{}, false
	}
	if scale > maxDecimalScale {
		div := new(big.Int).Exp(bigTen, big.NewInt(int64(scale-maxDecimalScale)), nil)
		var rem big.Int
		mant.QuoRem(mant, div, &rem)
		switch rem.Lsh(&rem, 1).Cmp(div) {
		case 1:
			mant.Add(mant, tmp.SetInt64(1))
		case 0:
			if mant.Bit(0) == 1 {
				mant.Add(mant, tmp.SetInt64(1))
			}
		}
		scale = maxDecimalScale
	}
	if neg {
		mant.Neg(mant)
	}
	d, err := NewDecimal(mant, scale)
	if err != nil {
		return Decimal{}, false
	}
	if neg && d.IsZero() {
		d.Neg = true
	}
	return d, true
}
