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

	"golang.org/x/exp/slices"
)

// ReaderSession is the session dictionary of
// a binary XML stream. Strings are added as
// the stream defines them (see ReadStringTable)
// and referenced on the wire by odd keys.
//
// The zero value is an empty session.
type ReaderSession struct {
	strs  []*DictionaryString // key -> string, nil when undefined
	far   map[int]*DictionaryString
	index map[string]*DictionaryString
	next  int
}

// ids at least this far past the end of strs
// are kept in far rather than growing strs
const sessionGap = 4096

// Add defines id as value. It fails with
// ErrKeyExists if id is already defined.
// Ids need not be consecutive; sparse ids
// do not cost memory proportional to their value.
func (s *ReaderSession) Add(id int, value string) error {
	if id < 0 || id > MaxKey {
		return keyError(id, true)
	}
	if _, ok := s.Lookup(id); ok {
		return fmt.Errorf("%w: session id %d", ErrKeyExists, id)
	}
	ds := NewDictionaryString(s, value, id)
	switch {
	case id < len(s.strs):
		s.strs[id] = ds
	case id-len(s.strs) < sessionGap:
		s.strs = slices.Grow(s.strs, id+1-len(s.strs))
		s.strs = s.strs[:id+1]
		s.strs[id] = ds
		for k, v := range s.far {
			if k <= id {
				s.strs[k] = v
				delete(s.far, k)
			}
		}
	default:
		if s.far == nil {
			s.far = make(map[int]*DictionaryString)
		}
		s.far[id] = ds
	}
	if s.index == nil {
		s.index = make(map[string]*DictionaryString)
	}
	if _, ok := s.index[value]; !ok {
		s.index[value] = ds
	}
	if id >= s.next {
		s.next = id + 1
	}
	return nil
}

// Clear removes every definition.
func (s *ReaderSession) Clear() {
	clear(s.strs)
	s.strs = s.strs[:0]
	clear(s.far)
	clear(s.index)
	s.next = 0
}

// Len returns one past the largest defined id.
func (s *ReaderSession) Len() int { return s.next }

func (s *ReaderSession) Lookup(key int) (*DictionaryString, bool) {
	if key >= 0 && key < len(s.strs) {
		ds := s.strs[key]
		return ds, ds != nil
	}
	ds, ok := s.far[key]
	return ds, ok
}

func (s *ReaderSession) LookupString(value string) (*DictionaryString, bool) {
	ds, ok := s.index[value]
	return ds, ok
}

// ReadStringTable parses an [MC-NBFSE] string table
// from the front of src, defining each string with
// the next free session id, and returns the rest
// of src.
func (s *ReaderSession) ReadStringTable(src []byte) ([]byte, error) {
	var r BufferReader
	r.SetBuffer(src, nil, nil)
	if err := s.ReadStringTableFrom(&r); err != nil {
		return nil, err
	}
	return src[r.Offset():], nil
}

// ReadStringTableFrom is like ReadStringTable
// but reads the table at the cursor of r.
// The whole table must fit in the window of r.
func (s *ReaderSession) ReadStringTableFrom(r *BufferReader) error {
	size, err := r.ReadMultiByteUInt31()
	if err != nil {
		return err
	}
	if err := r.EnsureBytes(size); err != nil {
		return err
	}
	end := r.Offset() + size
	for r.Offset() < end {
		n, err := r.ReadMultiByteUInt31()
		if err != nil {
			return err
		}
		if n > end-r.Offset() {
			return bad("string table entry overruns table")
		}
		str, err := r.ReadUTF8String(n)
		if err != nil {
			return err
		}
		if err := s.Add(s.next, str); err != nil {
			return err
		}
	}
	if r.Offset() != end {
		return bad("string table size mismatch")
	}
	return nil
}

// AppendStringTable appends the [MC-NBFSE] string
// table holding strs to dst.
func AppendStringTable(dst []byte, strs []string) []byte {
	size := 0
	for _, s := range strs {
		size += multiByteLen(len(s)) + len(s)
	}
	dst = AppendMultiByteInt31(dst, size)
	for _, s := range strs {
		dst = AppendMultiByteInt31(dst, len(s))
		dst = append(dst, s...)
	}
	return dst
}
