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

	"github.com/SnellerInc/xmlbin/ints"
)

// WriterSession assigns session keys to
// dictionary strings on the writer side so
// that each string crosses the wire once.
//
// The zero value is an empty session.
// A WriterSession is not safe for concurrent use.
type WriterSession struct {
	maps    priorityMap[Dictionary, *intArray]
	strings map[string]int
	nextKey int
}

// Len returns the number of keys assigned so far.
func (s *WriterSession) Len() int { return s.nextKey }

// Lookup returns the session key previously
// assigned to ds. A string added through a
// different dictionary with the same value
// resolves to the same key.
func (s *WriterSession) Lookup(ds *DictionaryString) (int, bool) {
	keys, ok := s.maps.get(ds.dict)
	if ok {
		if k := keys.get(ds.key) - 1; k != -1 {
			return k, true
		}
	}
	key, ok := s.strings[ds.value]
	if !ok {
		return -1, false
	}
	if keys == nil {
		keys = s.addKeys(ds.dict, ds.key+1)
	}
	keys.set(ds.key, key+1)
	return key, true
}

// TryAdd assigns a session key to ds and returns it.
// Adding the same dictionary string twice is a
// usage error reported as ErrKeyExists.
// If another dictionary string with the same value
// already has a key, ds shares that key.
func (s *WriterSession) TryAdd(ds *DictionaryString) (int, error) {
	keys, ok := s.maps.get(ds.dict)
	if ok {
		if keys.get(ds.key) != 0 {
			return -1, fmt.Errorf("%w: %q", ErrKeyExists, ds.value)
		}
	} else {
		keys = s.addKeys(ds.dict, ds.key+1)
	}
	key := s.add(ds.value)
	keys.set(ds.key, key+1)
	return key, nil
}

func (s *WriterSession) add(value string) int {
	if s.strings == nil {
		s.strings = make(map[string]int)
	}
	if key, ok := s.strings[value]; ok {
		return key
	}
	key := s.nextKey
	s.nextKey++
	s.strings[value] = key
	return key
}

func (s *WriterSession) addKeys(dict Dictionary, minCount int) *intArray {
	keys := newIntArray(max(minCount, 16))
	s.maps.add(dict, keys)
	return keys
}

// Reset forgets every assigned key.
func (s *WriterSession) Reset() {
	s.maps.clear()
	clear(s.strings)
	s.nextKey = 0
}

// intArray maps small dense indices to values;
// missing entries read as zero.
type intArray struct {
	a []int
}

func newIntArray(size int) *intArray {
	return &intArray{a: make([]int, size)}
}

func (a *intArray) get(i int) int {
	if i < len(a.a) {
		return a.a[i]
	}
	return 0
}

func (a *intArray) set(i, v int) {
	if i >= len(a.a) {
		n := make([]int, ints.Grow(len(a.a), i+1))
		copy(n, a.a)
		a.a = n
	}
	a.a[i] = v
}

const priorityListSize = 16

type priorityEntry[K comparable, V any] struct {
	key   K
	value V
	time  int
}

// priorityMap is a map tuned for a handful of keys:
// up to priorityListSize entries live in a linearly
// scanned array; beyond that every entry lives in
// an overflow map and the array caches the most
// recently used ones.
type priorityMap[K comparable, V any] struct {
	list     [priorityListSize]priorityEntry[K, V]
	n        int
	overflow map[K]V
	now      int
}

func (p *priorityMap[K, V]) tick() int {
	if p.now == math.MaxInt32 {
		p.decreaseAll()
	}
	p.now++
	return p.now
}

// decreaseAll halves every timestamp,
// preserving their relative order.
func (p *priorityMap[K, V]) decreaseAll() {
	for i := 0; i < p.n; i++ {
		p.list[i].time /= 2
	}
	p.now /= 2
}

func (p *priorityMap[K, V]) get(key K) (V, bool) {
	for i := 0; i < p.n; i++ {
		if p.list[i].key == key {
			p.list[i].time = p.tick()
			return p.list[i].value, true
		}
	}
	if v, ok := p.overflow[key]; ok {
		oldest := 0
		for i := 1; i < p.n; i++ {
			if p.list[i].time < p.list[oldest].time {
				oldest = i
			}
		}
		p.list[oldest] = priorityEntry[K, V]{key: key, value: v, time: p.tick()}
		return v, true
	}
	var zero V
	return zero, false
}

func (p *priorityMap[K, V]) add(key K, value V) {
	if p.n < len(p.list) {
		p.list[p.n] = priorityEntry[K, V]{key: key, value: value, time: p.tick()}
		p.n++
		return
	}
	if len(p.overflow) == 0 {
		if p.overflow == nil {
			p.overflow = make(map[K]V, 2*len(p.list))
		}
		for i := range p.list {
			p.overflow[p.list[i].key] = p.list[i].value
		}
	}
	p.overflow[key] = value
}

func (p *priorityMap[K, V]) len() int {
	if len(p.overflow) != 0 {
		return len(p.overflow)
	}
	return p.n
}

func (p *priorityMap[K, V]) clear() {
	p.list = [priorityListSize]priorityEntry[K, V]{}
	p.n = 0
	clear(p.overflow)
	p.now = 0
}
