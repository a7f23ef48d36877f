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
	"fmt"
	"io"
	"math"
	"testing"
	"testing/iotest"
)

func TestWriterSessionManyStrings(t *testing.T) {
	strs := make([]string, 20)
	for i := range strs {
		strs[i] = fmt.Sprintf("s%d", i)
	}
	dict := NewStaticDictionary(strs)
	var s WriterSession
	for i := range strs {
		ds, _ := dict.Lookup(i)
		if _, ok := s.Lookup(ds); ok {
			t.Fatalf("%s found before it was added", ds)
		}
		k, err := s.TryAdd(ds)
		if err != nil {
			t.Fatal(err)
		}
		if k != i {
			t.Errorf("%s got key %d", ds, k)
		}
	}
	for pass := 0; pass < 2; pass++ {
		for i := range strs {
			ds, _ := dict.Lookup(i)
			k, ok := s.Lookup(ds)
			if !ok || k != i {
				t.Errorf("pass %d: lookup %s = %d, %v", pass, ds, k, ok)
			}
		}
	}
	ds, _ := dict.Lookup(3)
	if _, err := s.TryAdd(ds); !errors.Is(err, ErrKeyExists) {
		t.Errorf("second TryAdd: %v", err)
	}
	if s.Len() != 20 {
		t.Errorf("Len() = %d", s.Len())
	}
}

func TestWriterSessionManyDictionaries(t *testing.T) {
	var dicts []*StaticDictionary
	var s WriterSession
	for i := 0; i < 20; i++ {
		d := NewStaticDictionary([]string{fmt.Sprintf("d%d", i)})
		dicts = append(dicts, d)
		ds, _ := d.Lookup(0)
		if k, err := s.TryAdd(ds); err != nil || k != i {
			t.Fatalf("TryAdd %s: %d %v", ds, k, err)
		}
	}
	if n := s.maps.len(); n != 20 {
		t.Errorf("%d dictionaries tracked", n)
	}
	if len(s.maps.overflow) == 0 {
		t.Error("overflow map not in use")
	}
	for i := len(dicts) - 1; i >= 0; i-- {
		ds, _ := dicts[i].Lookup(0)
		if k, ok := s.Lookup(ds); !ok || k != i {
			t.Errorf("lookup %s = %d, %v", ds, k, ok)
		}
	}
	// the most recent overflow hit is cached inline
	found := false
	for i := 0; i < s.maps.n; i++ {
		if s.maps.list[i].key == Dictionary(dicts[0]) {
			found = true
		}
	}
	if !found {
		t.Error("recently used dictionary not promoted")
	}
}

func TestWriterSessionSharedValue(t *testing.T) {
	d1 := NewStaticDictionary([]string{"x", "shared"})
	d2 := NewStaticDictionary([]string{"shared"})
	a, _ := d1.Lookup(1)
	b, _ := d2.Lookup(0)
	var s WriterSession
	ka, err := s.TryAdd(a)
	if err != nil {
		t.Fatal(err)
	}
	kb, ok := s.Lookup(b)
	if !ok || kb != ka {
		t.Errorf("same value in another dictionary: %d, %v", kb, ok)
	}
	if _, err := s.TryAdd(b); !errors.Is(err, ErrKeyExists) {
		t.Errorf("TryAdd after Lookup: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d", s.Len())
	}

	s.Reset()
	if _, ok := s.Lookup(a); ok {
		t.Error("found after Reset")
	}
	if k, err := s.TryAdd(b); err != nil || k != 0 {
		t.Errorf("TryAdd after Reset: %d %v", k, err)
	}
	if k, err := s.TryAdd(a); err != nil || k != 0 {
		t.Errorf("TryAdd of an equal value: %d %v", k, err)
	}
}

func TestPriorityMapTimestamps(t *testing.T) {
	var p priorityMap[string, int]
	p.now = math.MaxInt32 - 1
	p.add("a", 1)
	p.add("b", 2)
	if p.list[0].time >= p.list[1].time {
		t.Errorf("order lost: %d >= %d", p.list[0].time, p.list[1].time)
	}
	if p.now > math.MaxInt32/2+1 {
		t.Errorf("clock not reduced: %d", p.now)
	}
	if v, ok := p.get("a"); !ok || v != 1 {
		t.Error("get after decrease")
	}
	p.clear()
	if p.len() != 0 {
		t.Error("clear")
	}
	if _, ok := p.get("b"); ok {
		t.Error("found after clear")
	}
}

func TestReaderSession(t *testing.T) {
	var s ReaderSession
	if err := s.Add(2, "two"); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(2, "again"); !errors.Is(err, ErrKeyExists) {
		t.Errorf("duplicate: %v", err)
	}
	if err := s.Add(MaxKey+1, "big"); !errors.Is(err, ErrKeyOutOfRange) {
		t.Errorf("out of range: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d", s.Len())
	}
	if _, ok := s.Lookup(0); ok {
		t.Error("undefined id 0 found")
	}
	ds, ok := s.LookupString("two")
	if !ok || ds.Key() != 2 || ds.Dictionary() != Dictionary(&s) {
		t.Errorf("LookupString: %v %v", ds, ok)
	}
	s.Clear()
	if _, ok := s.Lookup(2); ok || s.Len() != 0 {
		t.Error("Clear")
	}
	if err := s.Add(0, "zero"); err != nil {
		t.Fatal(err)
	}

	// a far id does not grow the dense table
	if err := s.Add(MaxKey, "far"); err != nil {
		t.Fatal(err)
	}
	if len(s.strs) != 1 || s.Len() != MaxKey+1 {
		t.Errorf("dense table %d, Len() = %d", len(s.strs), s.Len())
	}
	if ds, ok := s.Lookup(MaxKey); !ok || ds.Value() != "far" {
		t.Errorf("Lookup(MaxKey): %v %v", ds, ok)
	}
	if err := s.Add(MaxKey, "again"); !errors.Is(err, ErrKeyExists) {
		t.Errorf("duplicate far id: %v", err)
	}
	// growing the dense table absorbs far ids it covers
	if err := s.Add(sessionGap+10, "mid"); err != nil {
		t.Fatal(err)
	}
	if len(s.far) != 2 {
		t.Fatalf("%d far ids", len(s.far))
	}
	for _, id := range []int{20, sessionGap + 5, sessionGap + 12} {
		if err := s.Add(id, "dense"); err != nil {
			t.Fatal(err)
		}
	}
	if len(s.far) != 1 || len(s.strs) != sessionGap+13 {
		t.Errorf("%d far ids, dense table %d", len(s.far), len(s.strs))
	}
	if err := s.Add(sessionGap+10, "again"); !errors.Is(err, ErrKeyExists) {
		t.Errorf("duplicate absorbed id: %v", err)
	}
	for _, id := range []int{20, sessionGap + 10, MaxKey} {
		if _, ok := s.Lookup(id); !ok {
			t.Errorf("id %d not found", id)
		}
	}
	s.Clear()
	if _, ok := s.Lookup(MaxKey); ok {
		t.Error("far id survives Clear")
	}
}

func TestStringTable(t *testing.T) {
	table := AppendStringTable(nil, []string{"a", "bb", "ccc"})
	want := []byte{9, 1, 'a', 2, 'b', 'b', 3, 'c', 'c', 'c'}
	if !bytes.Equal(table, want) {
		t.Fatalf("got % x", table)
	}
	var s ReaderSession
	rest, err := s.ReadStringTable(append(table, 0xAA, 0xBB))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rest, []byte{0xAA, 0xBB}) {
		t.Errorf("rest % x", rest)
	}
	// a second table continues numbering
	if _, err := s.ReadStringTable(AppendStringTable(nil, []string{"dddd"})); err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"a", "bb", "ccc", "dddd"} {
		ds, ok := s.Lookup(i)
		if !ok || ds.Value() != want {
			t.Errorf("id %d: %v %v", i, ds, ok)
		}
	}
	if _, err := s.ReadStringTable(AppendStringTable(nil, nil)); err != nil {
		t.Errorf("empty table: %v", err)
	}

	if _, err := s.ReadStringTable([]byte{5, 1, 'a'}); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated table: %v", err)
	}
	if _, err := s.ReadStringTable([]byte{3, 5, 'a', 'b'}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("overrun: %v", err)
	}
}

func TestStringTableStream(t *testing.T) {
	payload := AppendStringTable(nil, []string{"Envelope", "urn:x"})
	payload = append(payload, byte(ShortDictionaryElement), 3, byte(EndElement))
	var r BufferReader
	r.SetStream(iotest.OneByteReader(bytes.NewReader(payload)), nil, nil)
	var s ReaderSession
	if err := s.ReadStringTableFrom(&r); err != nil {
		t.Fatal(err)
	}
	if tag, err := r.ReadNodeType(); err != nil || tag != ShortDictionaryElement {
		t.Fatalf("next record %s %v", tag, err)
	}
	ds, ok := s.Lookup(1)
	if !ok || ds.Value() != "urn:x" {
		t.Errorf("id 1: %v", ds)
	}

	// the table must fit in the window
	r.SetStream(bytes.NewReader(payload), nil, nil)
	r.SetWindow(0, 8)
	var qe *QuotaError
	if err := s.ReadStringTableFrom(&r); !errors.As(err, &qe) {
		t.Errorf("got %v", err)
	}
}
