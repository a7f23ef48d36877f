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

package xmlenc

// earliestEncodingEq is the smallest offset at which
// the '=' following "encoding" can appear in a
// declaration: len(`<?xml version="1.0" encoding`).
const earliestEncodingEq = 28

// declWindow bounds how far into the
// document the declaration is searched.
const declWindow = 128

// sniffBOM inspects the first four bytes of a document.
// It returns the detected encoding and how many
// trailing bytes of b must be kept as document content.
// If declRequired is set, a UTF-16 document without a
// byte order mark must begin with "<?".
func sniffBOM(b [4]byte, declRequired bool) (Encoding, int, error) {
	switch {
	case b[0] == '<' && b[1] != 0:
		return UTF8, 4, nil
	case b[0] == 0xFF && b[1] == 0xFE:
		return UTF16LE, 2, nil
	case b[0] == 0xFE && b[1] == 0xFF:
		return UTF16BE, 2, nil
	case b[0] == 0 && b[1] == '<':
		if declRequired && (b[2] != 0 || b[3] != '?') {
			return None, 0, ErrDeclarationRequired
		}
		return UTF16BE, 4, nil
	case b[0] == '<' && b[1] == 0:
		if declRequired && (b[2] != '?' || b[3] != 0) {
			return None, 0, ErrDeclarationRequired
		}
		return UTF16LE, 4, nil
	case b[0] == 0xEF && b[1] == 0xBB:
		if declRequired && b[2] != 0xBF {
			return None, 0, malformed("bad byte order mark")
		}
		return UTF8, 1, nil
	}
	return UTF8, 4, nil
}

func isDeclSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// equalFoldASCII compares a and b, folding
// only the ASCII letters.
func equalFoldASCII(a []byte, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if 'A' <= x && x <= 'Z' {
			x += 'a' - 'A'
		}
		if 'A' <= y && y <= 'Z' {
			y += 'a' - 'A'
		}
		if x != y {
			return false
		}
	}
	return true
}

// checkDeclaration examines the UTF-8 text in buf,
// which begins with "<?", for an encoding attribute
// and verifies that it agrees with actual.
func checkDeclaration(buf []byte, actual, expected Encoding) error {
	max := min(len(buf), declWindow)
	// the encoding attribute holds the second '='
	eq := -1
	seen := 0
	var quot byte
	for i := 2; i < max; i++ {
		c := buf[i]
		if quot != 0 {
			if c == quot {
				quot = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quot = c
		} else if c == '=' {
			if seen == 1 {
				eq = i
				break
			}
			seen++
		} else if c == '?' {
			break
		}
	}
	noDecl := func() error {
		if actual != UTF8 && expected == None {
			return ErrDeclarationRequired
		}
		return nil
	}
	if eq == -1 {
		return noDecl()
	}
	if eq < earliestEncodingEq {
		return malformed("bad xml declaration")
	}
	i := eq - 1
	for isDeclSpace(buf[i]) {
		i--
	}
	const attr = "encoding"
	if start := i - len(attr) + 1; start < 2 || string(buf[start:i+1]) != attr {
		return noDecl()
	}
	for i = eq + 1; i < max && isDeclSpace(buf[i]); i++ {
	}
	if i >= max || (buf[i] != '\'' && buf[i] != '"') {
		return malformed("bad xml declaration")
	}
	quot = buf[i]
	start := i + 1
	for i = start; i < max && buf[i] != quot; i++ {
	}
	if i >= max {
		return malformed("bad xml declaration")
	}
	name := buf[start:i]
	declared := actual
	switch {
	case equalFoldASCII(name, "utf-8"):
		declared = UTF8
	case equalFoldASCII(name, "utf-16LE"):
		declared = UTF16LE
	case equalFoldASCII(name, "utf-16BE"):
		declared = UTF16BE
	case equalFoldASCII(name, "utf-16"):
		// either byte order
		if actual == UTF8 {
			declared = None
		}
	default:
		declared = None
	}
	if declared != actual {
		return &MismatchError{Expected: declared, Actual: actual, Declared: string(name)}
	}
	return nil
}
