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

// StringKind identifies the representation
// held by a StringHandle.
type StringKind uint8

const (
	StringUTF8 StringKind = iota
	StringEscapedUTF8
	StringDictionary
	StringConst
)

// NameConst names one of the fixed
// strings a StringHandle can hold.
type NameConst uint8

const (
	NameType NameConst = iota
	NameRoot
	NameItem
)

var nameConsts = [...]string{"type", "root", "item"}

// StringHandle is a lazily decoded name or string:
// a UTF-8 range of the reader buffer (plain or
// entity escaped), a dictionary key or a constant.
type StringHandle struct {
	r      *BufferReader
	kind   StringKind
	key    int // dictionary key or constant
	offset int
	length int
}

// NewStringHandle returns an empty string bound to r.
func NewStringHandle(r *BufferReader) *StringHandle {
	return &StringHandle{r: r}
}

func (s *StringHandle) Kind() StringKind { return s.kind }

// SetUTF8Value sets s to length bytes of
// the reader buffer starting at offset.
func (s *StringHandle) SetUTF8Value(offset, length int) {
	s.kind = StringUTF8
	s.offset, s.length = offset, length
}

// SetEscapedValue is like SetUTF8Value, but
// the bytes may contain entity references.
func (s *StringHandle) SetEscapedValue(offset, length int) {
	s.kind = StringEscapedUTF8
	s.offset, s.length = offset, length
}

// SetDictionaryValue sets s to the string behind a wire key.
func (s *StringHandle) SetDictionaryValue(key int) {
	s.kind = StringDictionary
	s.key = key
}

func (s *StringHandle) SetConstantValue(c NameConst) {
	s.kind = StringConst
	s.key = int(c)
}

// SetValue makes s a copy of other.
func (s *StringHandle) SetValue(other *StringHandle) { *s = *other }

func (s *StringHandle) bytes() []byte { return s.r.bytesAt(s.offset, s.length) }

// IsEmpty reports whether s is the empty string.
func (s *StringHandle) IsEmpty() bool {
	switch s.kind {
	case StringUTF8, StringEscapedUTF8:
		return s.length == 0
	case StringDictionary:
		ds, err := s.r.GetDictionaryString(s.key)
		return err == nil && ds.value == ""
	}
	return false
}

// IsXmlns reports whether s is "xmlns".
func (s *StringHandle) IsXmlns() bool {
	ok, _ := s.EqualString("xmlns")
	return ok
}

// TryGetDictionaryString returns the dictionary
// string behind s, if s is a dictionary key.
func (s *StringHandle) TryGetDictionaryString() (*DictionaryString, bool) {
	if s.kind != StringDictionary {
		return nil, false
	}
	ds, err := s.r.GetDictionaryString(s.key)
	return ds, err == nil
}

// GetString decodes s.
func (s *StringHandle) GetString() (string, error) {
	switch s.kind {
	case StringUTF8:
		return utf8String(s.bytes()), nil
	case StringEscapedUTF8:
		return unescape(s.bytes())
	case StringDictionary:
		ds, err := s.r.GetDictionaryString(s.key)
		if err != nil {
			return "", err
		}
		return ds.value, nil
	case StringConst:
		return nameConsts[s.key], nil
	}
	return "", fmt.Errorf("nbfx: unknown string kind %d", s.kind)
}

func (s *StringHandle) String() string {
	str, err := s.GetString()
	if err != nil {
		return fmt.Sprintf("<%s>", err)
	}
	return str
}

// EqualString compares s with str. Plain UTF-8
// content is compared in place without decoding.
func (s *StringHandle) EqualString(str string) (bool, error) {
	if s.kind == StringUTF8 {
		return string(s.bytes()) == str, nil
	}
	v, err := s.GetString()
	return v == str, err
}

// EqualDictionaryString compares s with ds. A static
// key from the dictionary that owns ds is compared
// by key alone.
func (s *StringHandle) EqualDictionaryString(ds *DictionaryString) (bool, error) {
	switch s.kind {
	case StringDictionary:
		if s.key&1 == 0 && s.r.dict != nil && ds.dict == s.r.dict {
			return s.key>>1 == ds.key, nil
		}
		mine, err := s.r.GetDictionaryString(s.key)
		if err != nil {
			return false, err
		}
		return mine.value == ds.value, nil
	case StringUTF8:
		return string(s.bytes()) == ds.value, nil
	}
	v, err := s.GetString()
	return v == ds.value, err
}

// Equal compares the strings behind s and other.
// Equal dictionary keys and equal byte ranges
// are decided without decoding either side.
func (s *StringHandle) Equal(other *StringHandle) (bool, error) {
	switch other.kind {
	case StringDictionary:
		switch s.kind {
		case StringDictionary:
			return s.r.equalKeys(s.key, other.r, other.key)
		case StringUTF8:
			ds, err := other.r.GetDictionaryString(other.key)
			if err != nil {
				return false, err
			}
			return string(s.bytes()) == ds.value, nil
		}
	case StringUTF8:
		if s.kind == StringUTF8 {
			return string(s.bytes()) == string(other.bytes()), nil
		}
		if s.kind == StringDictionary {
			return other.Equal(s)
		}
	}
	v, err := other.GetString()
	if err != nil {
		return false, err
	}
	return s.EqualString(v)
}

// CompareTo orders s and other by
// code point (UTF-8 byte order).
func (s *StringHandle) CompareTo(other *StringHandle) (int, error) {
	if s.kind == StringUTF8 && other.kind == StringUTF8 {
		return strings.Compare(string(s.bytes()), string(other.bytes())), nil
	}
	a, err := s.GetString()
	if err != nil {
		return 0, err
	}
	b, err := other.GetString()
	if err != nil {
		return 0, err
	}
	return strings.Compare(a, b), nil
}
