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
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	xutf8 "github.com/SnellerInc/xmlbin/utf8"
	"golang.org/x/text/encoding/unicode"
)

var errSyntax = errors.New("invalid syntax")

func isXMLSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func trimXMLSpace(b []byte) []byte {
	for len(b) > 0 && isXMLSpace(b[0]) {
		b = b[1:]
	}
	for len(b) > 0 && isXMLSpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

// utf8String decodes b as UTF-8, replacing
// invalid sequences with U+FFFD.
func utf8String(b []byte) string {
	if xutf8.ASCIIPrefix(b) == len(b) || utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// unicodeString decodes little-endian UTF-16 text.
func unicodeString(b []byte) string {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	// invalid surrogates decode as U+FFFD,
	// so the decoder never fails on even lengths
	out, _ := dec.Bytes(b)
	return string(out)
}

func appendUnicode(dst []byte, s string) []byte {
	n := xutf8.ASCIIPrefixString(s)
	for i := 0; i < n; i++ {
		dst = append(dst, s[i], 0)
	}
	for _, r := range s[n:] {
		if r >= 0x10000 {
			r -= 0x10000
			hi, lo := 0xD800+(r>>10), 0xDC00+(r&0x3FF)
			dst = append(dst, byte(hi), byte(hi>>8), byte(lo), byte(lo>>8))
			continue
		}
		dst = append(dst, byte(r), byte(r>>8))
	}
	return dst
}

func parseXMLBool(b []byte) (bool, bool) {
	switch string(trimXMLSpace(b)) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

func parseXMLInt(b []byte, bits int) (int64, error) {
	return strconv.ParseInt(string(trimXMLSpace(b)), 10, bits)
}

func parseXMLUint(b []byte) (uint64, error) {
	b = trimXMLSpace(b)
	if len(b) > 0 && b[0] == '+' {
		b = b[1:]
	}
	return strconv.ParseUint(string(b), 10, 64)
}

// parseXMLFloat parses an xsd:float or xsd:double,
// including the INF, -INF and NaN literals.
func parseXMLFloat(b []byte, bits int) (float64, error) {
	b = trimXMLSpace(b)
	switch string(b) {
	case "INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	case "NaN":
		return math.NaN(), nil
	}
	for _, c := range b {
		if !(c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-') {
			return 0, errSyntax
		}
	}
	return strconv.ParseFloat(string(b), bits)
}

// appendXMLFloat formats f the way xsd:float and
// xsd:double values are written: INF, -INF, NaN,
// otherwise the shortest round-tripping form with
// an exponent for very large or small magnitudes.
func appendXMLFloat(dst []byte, f float64, bits int) []byte {
	switch {
	case math.IsInf(f, 1):
		return append(dst, "INF"...)
	case math.IsInf(f, -1):
		return append(dst, "-INF"...)
	case math.IsNaN(f):
		return append(dst, "NaN"...)
	case f == 0:
		if math.Signbit(f) {
			return append(dst, "-0"...)
		}
		return append(dst, '0')
	}
	prec := 15
	if bits == 32 {
		prec = 7
	}
	var tmp [32]byte
	e := strconv.AppendFloat(tmp[:0], f, 'E', -1, bits)
	exp, _ := strconv.Atoi(string(e[bytes.IndexByte(e, 'E')+1:]))
	if exp >= -5 && exp < prec {
		return strconv.AppendFloat(dst, f, 'f', -1, bits)
	}
	return append(dst, e...)
}
