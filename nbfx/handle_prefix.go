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
	"strings"
)

// PrefixKind identifies the representation held
// by a PrefixHandle: empty, one of the 26 single
// letter prefixes, or a range of the reader buffer.
type PrefixKind uint8

const (
	EmptyPrefix  PrefixKind = 0
	PrefixA      PrefixKind = 1
	PrefixZ      PrefixKind = 26
	BufferPrefix PrefixKind = 27
)

var prefixLetters = [26]string{
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m",
	"n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z",
}

// AlphaPrefix returns the kind of the single
// letter prefix 'a'+i.
func AlphaPrefix(i int) PrefixKind {
	if i < 0 || i >= 26 {
		panic(fmt.Sprintf("nbfx: prefix letter index %d", i))
	}
	return PrefixA + PrefixKind(i)
}

// PrefixHandle is a namespace prefix. Single letter
// prefixes are stored as a kind and never refer to
// the reader buffer.
type PrefixHandle struct {
	r      *BufferReader
	kind   PrefixKind
	offset int
	length int
}

// NewPrefixHandle returns an empty prefix bound to r.
func NewPrefixHandle(r *BufferReader) *PrefixHandle {
	return &PrefixHandle{r: r}
}

func (p *PrefixHandle) Kind() PrefixKind { return p.kind }

// SetValue sets p to the empty prefix
// or a single letter prefix.
func (p *PrefixHandle) SetValue(kind PrefixKind) {
	if kind == BufferPrefix || kind > BufferPrefix {
		panic("nbfx: SetValue with a buffer prefix kind")
	}
	p.kind = kind
	p.offset, p.length = 0, 0
}

// SetBufferValue sets p to length bytes of the reader
// buffer starting at offset. Empty and single letter
// prefixes are recognized and stored without the buffer.
func (p *PrefixHandle) SetBufferValue(offset, length int) {
	switch length {
	case 0:
		p.SetValue(EmptyPrefix)
		return
	case 1:
		if c := p.r.buf[offset]; c >= 'a' && c <= 'z' {
			p.SetValue(AlphaPrefix(int(c - 'a')))
			return
		}
	}
	p.kind = BufferPrefix
	p.offset, p.length = offset, length
}

// SetHandle makes p a copy of other.
func (p *PrefixHandle) SetHandle(other *PrefixHandle) { *p = *other }

func (p *PrefixHandle) IsEmpty() bool { return p.kind == EmptyPrefix }

// IsXmlns reports whether p is "xmlns".
func (p *PrefixHandle) IsXmlns() bool {
	return p.kind == BufferPrefix && string(p.r.bytesAt(p.offset, p.length)) == "xmlns"
}

// IsXml reports whether p is "xml".
func (p *PrefixHandle) IsXml() bool {
	return p.kind == BufferPrefix && string(p.r.bytesAt(p.offset, p.length)) == "xml"
}

// GetString returns the prefix text.
// Single letter prefixes do not allocate.
func (p *PrefixHandle) GetString() string {
	switch {
	case p.kind == EmptyPrefix:
		return ""
	case p.kind <= PrefixZ:
		return prefixLetters[p.kind-PrefixA]
	}
	return utf8String(p.r.bytesAt(p.offset, p.length))
}

func (p *PrefixHandle) String() string { return p.GetString() }

// EqualString compares p with s.
func (p *PrefixHandle) EqualString(s string) bool {
	if p.kind == BufferPrefix {
		return string(p.r.bytesAt(p.offset, p.length)) == s
	}
	return p.GetString() == s
}

// Equal compares two prefixes. Kinds must match;
// only buffer prefixes compare bytes.
func (p *PrefixHandle) Equal(other *PrefixHandle) bool {
	if p.kind != other.kind {
		return false
	}
	if p.kind != BufferPrefix {
		return true
	}
	return string(p.r.bytesAt(p.offset, p.length)) == string(other.r.bytesAt(other.offset, other.length))
}

// CompareTo orders prefixes by their text.
func (p *PrefixHandle) CompareTo(other *PrefixHandle) int {
	return strings.Compare(p.GetString(), other.GetString())
}
