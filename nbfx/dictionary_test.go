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
	"bufio"
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestNBFS(t *testing.T) {
	d := NBFS()
	if d.Len() != 0x3CC/2+1 {
		t.Errorf("Len() = %d", d.Len())
	}
	for _, c := range []struct {
		wire  int
		value string
	}{
		{0x000, "mustUnderstand"},
		{0x002, "Envelope"},
		{0x008, "Header"},
		{0x00E, "Body"},
		{0x3CC, "detail"},
	} {
		ds, ok := d.Lookup(c.wire / 2)
		if !ok || ds.Value() != c.value || ds.Key() != c.wire/2 {
			t.Errorf("0x%03x: got %v", c.wire, ds)
		}
		back, ok := d.LookupString(c.value)
		if !ok || back != ds {
			t.Errorf("LookupString(%q) = %v", c.value, back)
		}
		back, ok = d.LookupBytes([]byte(c.value))
		if !ok || back != ds {
			t.Errorf("LookupBytes(%q) = %v", c.value, back)
		}
	}
	if NBFS() != d {
		t.Error("NBFS() not shared")
	}
}

func TestStaticDictionary(t *testing.T) {
	d := NewStaticDictionary([]string{"a", "b", "a"})
	if ds, _ := d.LookupString("a"); ds.Key() != 0 {
		t.Errorf("duplicate answered with key %d", ds.Key())
	}
	if _, ok := d.LookupString("c"); ok {
		t.Error("found c")
	}
	for _, k := range []int{-1, 3, math.MaxInt32} {
		if _, ok := d.Lookup(k); ok {
			t.Errorf("key %d found", k)
		}
	}

	c := d.Clone()
	ds := c.Add("c")
	if ds.Key() != 3 || ds.Dictionary() != Dictionary(c) {
		t.Errorf("Add returned %v key %d", ds, ds.Key())
	}
	if _, ok := d.LookupString("c"); ok {
		t.Error("Clone shares storage")
	}
	if got := strings.Join(c.Strings(), ","); got != "a,b,a,c" {
		t.Errorf("Strings() = %s", got)
	}

	// resolving against another dictionary goes by value
	other, _ := c.LookupString("b")
	res, ok := lookupDictionaryString(d, other)
	if !ok || res.Dictionary() != Dictionary(d) || res.Key() != 1 {
		t.Errorf("got %v", res)
	}
	if res, ok := lookupDictionaryString(c, other); !ok || res != other {
		t.Error("own string not returned as is")
	}
	if _, ok := lookupDictionaryString(nil, other); ok {
		t.Error("nil dictionary")
	}
}

func TestQuotas(t *testing.T) {
	q, err := ParseQuotas([]byte("maxDepth: 8\nmaxBytesPerRead: 65536\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultQuotas()
	want.MaxDepth = 8
	want.MaxBytesPerRead = 65536
	if q != want {
		t.Errorf("got %+v", q)
	}
	q, err = ParseQuotas([]byte(`{"maxArrayLength": 3}`))
	if err != nil {
		t.Fatal(err)
	}
	if q.MaxArrayLength != 3 || q.MaxDepth != DefaultQuotas().MaxDepth {
		t.Errorf("got %+v", q)
	}
	for _, in := range []string{
		"maxDepht: 8\n",
		"maxDepth: 0\n",
		"maxStringContentLength: -1\n",
		"maxDepth: [1]\n",
	} {
		if _, err := ParseQuotas([]byte(in)); err == nil {
			t.Errorf("%q accepted", in)
		}
	}
	m := MaxQuotas()
	if err := m.Validate(); err != nil {
		t.Error(err)
	}
}

type closeWriter struct {
	bytes.Buffer
	closed int
}

func (c *closeWriter) Close() error {
	c.closed++
	return nil
}

func TestNodeWriter(t *testing.T) {
	var dst closeWriter
	n := NewNodeWriter(&dst)
	n.WriteByte(0x40)
	n.WriteString("ab")
	n.Write([]byte{1, 2})
	if n.Buffered() != 5 || dst.Len() != 0 {
		t.Fatalf("buffered %d, written %d", n.Buffered(), dst.Len())
	}
	big := bytes.Repeat([]byte{'x'}, nodeWriterBufferSize)
	if w, err := n.Write(big); err != nil || w != len(big) {
		t.Fatalf("large write: %d %v", w, err)
	}
	// buffered bytes precede a direct write
	if n.Buffered() != 0 || dst.Len() != 5+len(big) || dst.Bytes()[0] != 0x40 {
		t.Errorf("buffered %d, written %d", n.Buffered(), dst.Len())
	}
	for i := 0; i < nodeWriterBufferSize; i++ {
		n.WriteByte('y')
	}
	if n.Buffered() != nodeWriterBufferSize {
		t.Errorf("buffered %d", n.Buffered())
	}
	n.WriteByte('z')
	if n.Buffered() != 1 || n.flushes != 2 {
		t.Errorf("buffered %d, flushes %d", n.Buffered(), n.flushes)
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if dst.closed != 1 || dst.Len() != 5+2*nodeWriterBufferSize+1 {
		t.Errorf("closed %d, written %d", dst.closed, dst.Len())
	}

	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	n.Reset(bw)
	n.WriteString("hello")
	if err := n.Flush(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello" {
		t.Errorf("Flush did not reach the bufio.Writer: %q", out.String())
	}

	fw := &failWriter{}
	n.Reset(fw)
	n.WriteString("a")
	if err := n.Flush(); !errors.Is(err, errWrite) {
		t.Fatalf("got %v", err)
	}
	if _, err := n.WriteString("b"); !errors.Is(err, errWrite) || fw.n != 1 {
		t.Errorf("got %v after %d writes", err, fw.n)
	}
	if !errors.Is(n.Err(), errWrite) {
		t.Error("Err()")
	}
	n.Reset(&out)
	if n.Err() != nil {
		t.Error("Reset kept the error")
	}
}
