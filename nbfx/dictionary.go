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
	"unsafe"

	"github.com/dchest/siphash"
)

// MaxKey is the largest logical key a
// dictionary string may have.
const MaxKey = math.MaxInt32 / 4

// Dictionary is a read-only mapping between
// logical keys and interned strings.
// Implementations must be comparable
// (typically a pointer type), since strings
// are matched to their dictionary by identity.
type Dictionary interface {
	// Lookup returns the string with the given key.
	Lookup(key int) (*DictionaryString, bool)
	// LookupString returns the string with the given value.
	LookupString(s string) (*DictionaryString, bool)
}

// DictionaryString is a string interned
// in a Dictionary under a logical key.
type DictionaryString struct {
	dict  Dictionary
	value string
	key   int
}

// NewDictionaryString returns a string owned by dict.
// It panics if key is outside of [0, MaxKey].
func NewDictionaryString(dict Dictionary, value string, key int) *DictionaryString {
	if key < 0 || key > MaxKey {
		panic(fmt.Sprintf("nbfx: dictionary key %d out of range", key))
	}
	return &DictionaryString{dict: dict, value: value, key: key}
}

// Dictionary returns the owning dictionary, if any.
func (d *DictionaryString) Dictionary() Dictionary { return d.dict }

// Value returns the interned string.
func (d *DictionaryString) Value() string { return d.value }

// Key returns the logical key of d in its dictionary.
func (d *DictionaryString) Key() int { return d.key }

func (d *DictionaryString) String() string { return d.value }

// StaticDictionary is a Dictionary whose keys
// are assigned densely in insertion order.
// It is safe for concurrent lookups once
// it is no longer being added to.
type StaticDictionary struct {
	strs  []*DictionaryString
	index map[uint64][]int32
}

// siphash keys for the byte string index; any
// fixed value works since the index is private
const (
	dictK0 = 0x736e656c6c657278
	dictK1 = 0x6d6c62696e617279
)

func hashBytes(b []byte) uint64 {
	return siphash.Hash(dictK0, dictK1, b)
}

func hashString(s string) uint64 {
	return hashBytes(unsafe.Slice(unsafe.StringData(s), len(s)))
}

// NewStaticDictionary returns a dictionary
// holding strs with keys 0 through len(strs)-1.
func NewStaticDictionary(strs []string) *StaticDictionary {
	d := &StaticDictionary{
		strs:  make([]*DictionaryString, 0, len(strs)),
		index: make(map[uint64][]int32, len(strs)),
	}
	for _, s := range strs {
		d.Add(s)
	}
	return d
}

// Add appends s to the dictionary and returns
// its entry. If s is already present, the
// existing entry keeps answering LookupString
// but the new key is still assigned.
func (d *StaticDictionary) Add(s string) *DictionaryString {
	if d.index == nil {
		d.index = make(map[uint64][]int32)
	}
	key := len(d.strs)
	ds := NewDictionaryString(d, s, key)
	d.strs = append(d.strs, ds)
	h := hashString(s)
	d.index[h] = append(d.index[h], int32(key))
	return ds
}

// Len returns the number of strings in d.
func (d *StaticDictionary) Len() int { return len(d.strs) }

// Strings returns a copy of the dictionary contents in key order.
func (d *StaticDictionary) Strings() []string {
	out := make([]string, len(d.strs))
	for i := range d.strs {
		out[i] = d.strs[i].value
	}
	return out
}

// Clone returns a copy of d that
// can be extended independently.
func (d *StaticDictionary) Clone() *StaticDictionary {
	return NewStaticDictionary(d.Strings())
}

func (d *StaticDictionary) Lookup(key int) (*DictionaryString, bool) {
	if key < 0 || key >= len(d.strs) {
		return nil, false
	}
	return d.strs[key], true
}

func (d *StaticDictionary) LookupString(s string) (*DictionaryString, bool) {
	for _, k := range d.index[hashString(s)] {
		if ds := d.strs[k]; ds.value == s {
			return ds, true
		}
	}
	return nil, false
}

// LookupBytes is like LookupString but accepts
// a []byte and does not allocate.
func (d *StaticDictionary) LookupBytes(b []byte) (*DictionaryString, bool) {
	for _, k := range d.index[hashBytes(b)] {
		if ds := d.strs[k]; ds.value == string(b) {
			return ds, true
		}
	}
	return nil, false
}

// lookupDictionaryString resolves ds against dict:
// ds itself if dict owns it, or the entry in dict
// with the same value.
func lookupDictionaryString(dict Dictionary, ds *DictionaryString) (*DictionaryString, bool) {
	if dict == nil {
		return nil, false
	}
	if ds.dict == dict {
		return ds, true
	}
	return dict.LookupString(ds.value)
}
