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
	"strings"
	"testing"
	"time"

	"github.com/SnellerInc/xmlbin/date"
	"github.com/google/uuid"
)

// readWrapped reads <v>value</v> as written by wrapValue
// and returns the value record and its base type.
func readWrapped(t *testing.T, buf []byte, dict, session Dictionary) (*ValueHandle, NodeType) {
	t.Helper()
	r := NewBufferReader(buf, dict, session)
	nt, err := r.ReadNodeType()
	if err != nil {
		t.Fatal(err)
	}
	if nt != ShortElement {
		t.Fatalf("first record %s", nt)
	}
	var name StringHandle
	if err := r.ReadName(&name); err != nil {
		t.Fatal(err)
	}
	if ok, _ := name.EqualString("v"); !ok {
		t.Fatalf("element name %q", name.String())
	}
	nt, err = r.ReadNodeType()
	if err != nil {
		t.Fatal(err)
	}
	if !nt.IsText() {
		t.Fatalf("record %s is not text", nt)
	}
	v := NewValueHandle(r)
	if err := r.ReadValue(nt, v); err != nil {
		t.Fatalf("reading %s: %s", nt, err)
	}
	if !nt.HasEndElement() {
		end, err := r.ReadNodeType()
		if err != nil {
			t.Fatal(err)
		}
		if end != EndElement {
			t.Fatalf("got %s after value", end)
		}
	}
	if !r.EOF() {
		t.Fatalf("%d trailing bytes", r.Buffered())
	}
	return v, nt.Base()
}

func wrapValue(t *testing.T, write func(w *BinaryWriter) error) []byte {
	t.Helper()
	var out bytes.Buffer
	w := NewBinaryWriter(&out, NBFS(), nil)
	if err := w.WriteStartElement("", "v"); err != nil {
		t.Fatal(err)
	}
	if err := write(w); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEndElement(); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func TestWriteValues(t *testing.T) {
	envelope, _ := NBFS().LookupString("Envelope")
	guid := uuid.MustParse("7f2d4c3e-1a2b-4c5d-8e9f-0a1b2c3d4e5f")
	when, err := date.FromTime(time.Date(2022, 3, 14, 15, 9, 26, 535897900, time.UTC), date.UTC)
	if err != nil {
		t.Fatal(err)
	}
	dec, ok := ParseDecimal([]byte("-12.340"))
	if !ok {
		t.Fatal("ParseDecimal failed")
	}
	long := strings.Repeat("x", 300)

	run := []struct {
		name  string
		write func(w *BinaryWriter) error
		node  NodeType
		kind  ValueKind
		text  string
	}{
		{"zero", func(w *BinaryWriter) error { return w.WriteInt32Text(0) }, ZeroText, ZeroValue, "0"},
		{"one", func(w *BinaryWriter) error { return w.WriteInt32Text(1) }, OneText, OneValue, "1"},
		{"int8", func(w *BinaryWriter) error { return w.WriteInt32Text(-5) }, Int8Text, Int8Value, "-5"},
		{"int16", func(w *BinaryWriter) error { return w.WriteInt32Text(300) }, Int16Text, Int16Value, "300"},
		{"int32", func(w *BinaryWriter) error { return w.WriteInt32Text(-70000) }, Int32Text, Int32Value, "-70000"},
		{"int64", func(w *BinaryWriter) error { return w.WriteInt64Text(1 << 40) }, Int64Text, Int64Value, "1099511627776"},
		{"small-int64", func(w *BinaryWriter) error { return w.WriteInt64Text(100) }, Int8Text, Int8Value, "100"},
		{"uint64", func(w *BinaryWriter) error { return w.WriteUint64Text(math.MaxUint64) }, UInt64Text, UInt64Value, "18446744073709551615"},
		{"small-uint64", func(w *BinaryWriter) error { return w.WriteUint64Text(5) }, Int8Text, Int8Value, "5"},
		{"float", func(w *BinaryWriter) error { return w.WriteFloat64Text(2.5) }, FloatText, SingleValue, "2.5"},
		{"double", func(w *BinaryWriter) error { return w.WriteFloat64Text(0.1) }, DoubleText, DoubleValue, "0.1"},
		{"integral-double", func(w *BinaryWriter) error { return w.WriteFloat64Text(3) }, Int8Text, Int8Value, "3"},
		{"large-double", func(w *BinaryWriter) error { return w.WriteFloat64Text(1e20) }, DoubleText, DoubleValue, "1E+20"},
		{"nan", func(w *BinaryWriter) error { return w.WriteFloat64Text(math.NaN()) }, DoubleText, DoubleValue, "NaN"},
		{"inf", func(w *BinaryWriter) error { return w.WriteFloat32Text(float32(math.Inf(1))) }, FloatText, SingleValue, "INF"},
		{"true", func(w *BinaryWriter) error { return w.WriteBoolText(true) }, TrueText, TrueValue, "true"},
		{"false", func(w *BinaryWriter) error { return w.WriteBoolText(false) }, FalseText, FalseValue, "false"},
		{"text", func(w *BinaryWriter) error { return w.WriteText("hello") }, Chars8Text, UTF8Value, "hello"},
		{"empty", func(w *BinaryWriter) error { return w.WriteText("") }, EmptyText, EmptyValue, ""},
		{"long-text", func(w *BinaryWriter) error { return w.WriteText(long) }, Chars16Text, UTF8Value, long},
		{"unicode", func(w *BinaryWriter) error { return w.WriteUnicodeText("héllo \U0001F600") }, UnicodeChars8Text, UnicodeValue, "héllo \U0001F600"},
		{"bytes", func(w *BinaryWriter) error { return w.WriteBase64Text([]byte{1, 2, 3}) }, Bytes8Text, Base64Value, "AQID"},
		{"decimal", func(w *BinaryWriter) error { return w.WriteDecimalText(dec) }, DecimalText, DecimalValue, "-12.340"},
		{"datetime", func(w *BinaryWriter) error { return w.WriteDateTimeText(when) }, DateTimeText, DateTimeValue, "2022-03-14T15:09:26.5358979Z"},
		{"timespan", func(w *BinaryWriter) error { return w.WriteTimeSpanText(date.FromDuration(90 * time.Minute)) }, TimeSpanText, TimeSpanValue, "PT1H30M"},
		{"guid", func(w *BinaryWriter) error { return w.WriteGUIDText(guid) }, GUIDText, GUIDValue, guid.String()},
		{"uniqueid", func(w *BinaryWriter) error { return w.WriteUniqueIDText(NewUniqueID(guid)) }, UniqueIDText, UniqueIDValue, "urn:uuid:" + guid.String()},
		{"string-uniqueid", func(w *BinaryWriter) error {
			id, _ := ParseUniqueID("msg-42")
			return w.WriteUniqueIDText(id)
		}, Chars8Text, UTF8Value, "msg-42"},
		{"dictionary", func(w *BinaryWriter) error { return w.WriteDictionaryText(envelope) }, DictionaryText, DictionaryValue, "Envelope"},
		{"qname", func(w *BinaryWriter) error { return w.WriteQNameText("s", envelope) }, QNameDictionaryText, QNameValue, "s:Envelope"},
		{"list", func(w *BinaryWriter) error {
			w.WriteStartListText()
			w.WriteInt32Text(1)
			w.WriteText("a")
			w.WriteBoolText(true)
			return w.WriteEndListText()
		}, StartListText, ListValue, "1 a true"},
	}
	for i := range run {
		t.Run(run[i].name, func(t *testing.T) {
			buf := wrapValue(t, run[i].write)
			v, node := readWrapped(t, buf, NBFS(), nil)
			if node != run[i].node {
				t.Errorf("record %s, want %s", node, run[i].node)
			}
			if v.Kind() != run[i].kind {
				t.Errorf("kind %s, want %s", v.Kind(), run[i].kind)
			}
			s, err := v.GetString()
			if err != nil {
				t.Fatal(err)
			}
			if s != run[i].text {
				t.Errorf("got %q, want %q", s, run[i].text)
			}
		})
	}
}

func TestEndElementFolding(t *testing.T) {
	buf := wrapValue(t, func(w *BinaryWriter) error { return w.WriteInt32Text(7) })
	want := []byte{byte(ShortElement), 1, 'v', byte(Int8Text + 1), 7}
	if !bytes.Equal(buf, want) {
		t.Errorf("got % x, want % x", buf, want)
	}

	// an element with no text gets an explicit end
	var out bytes.Buffer
	w := NewBinaryWriter(&out, nil, nil)
	w.WriteStartElement("", "a")
	w.WriteStartElement("", "b")
	w.WriteEndElement()
	w.WriteEndElement()
	w.Flush()
	want = []byte{byte(ShortElement), 1, 'a', byte(ShortElement), 1, 'b', byte(EndElement), byte(EndElement)}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("got % x, want % x", out.Bytes(), want)
	}

	// text that has already been flushed cannot be folded
	out.Reset()
	w.Reset(&out)
	w.WriteStartElement("", "a")
	w.WriteText("x")
	w.Flush()
	w.WriteEndElement()
	w.Flush()
	want = []byte{byte(ShortElement), 1, 'a', byte(Chars8Text), 1, 'x', byte(EndElement)}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("got % x, want % x", out.Bytes(), want)
	}
}

func TestWriteElementsAndAttributes(t *testing.T) {
	envelope, _ := NBFS().LookupString("Envelope")
	var out bytes.Buffer
	w := NewBinaryWriter(&out, NBFS(), nil)
	w.WriteStartElementDict("s", envelope)
	w.WriteXmlnsAttribute("s", "http://example.com/ns")
	w.WriteStartAttribute("", "id")
	w.WriteInt32Text(5)
	w.WriteEndAttribute()
	w.WriteStartAttribute("ns", "empty")
	w.WriteEndAttribute()
	w.WriteStartElement("long", "body")
	w.WriteComment("c")
	w.WriteEndElement()
	w.WriteEndElement()
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		byte(PrefixDictionaryElementA + 18), 0x02,
		byte(XmlnsAttribute), 1, 's', 21,
	}
	want = append(want, "http://example.com/ns"...)
	want = append(want,
		byte(ShortAttribute), 2, 'i', 'd', byte(Int8Text), 5,
		byte(Attribute), 2, 'n', 's', 5, 'e', 'm', 'p', 't', 'y', byte(EmptyText),
		byte(Element), 4, 'l', 'o', 'n', 'g', 4, 'b', 'o', 'd', 'y',
		byte(Comment), 1, 'c',
		byte(EndElement), byte(EndElement))
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("got  % x\nwant % x", out.Bytes(), want)
	}
}

func TestWriteArray(t *testing.T) {
	var out bytes.Buffer
	w := NewBinaryWriter(&out, nil, nil)
	w.WriteInt32Array("", "n", []int32{1, -1})
	w.Flush()
	want := []byte{
		byte(Array), byte(ShortElement), 1, 'n', byte(EndElement),
		byte(Int32Text + 1), 2,
		1, 0, 0, 0,
		0xFF, 0xFF, 0xFF, 0xFF,
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("got % x, want % x", out.Bytes(), want)
	}
	if w := (Int32Text + 1).ArrayItemWidth(); w != 4 {
		t.Errorf("item width %d", w)
	}
}

func TestWriterSessionKeys(t *testing.T) {
	local := NewStaticDictionary([]string{"alpha", "beta"})
	alpha, _ := local.Lookup(0)
	beta, _ := local.Lookup(1)
	session := &WriterSession{}
	var out bytes.Buffer
	w := NewBinaryWriter(&out, NBFS(), session)
	w.WriteStartElementDict("", alpha)
	w.WriteDictionaryText(beta)
	w.WriteEndElement()
	w.WriteStartElementDict("", alpha)
	w.WriteEndElement()
	w.Flush()

	strs := w.TakeSessionStrings()
	if len(strs) != 2 || strs[0] != "alpha" || strs[1] != "beta" {
		t.Fatalf("session strings %q", strs)
	}
	if again := w.TakeSessionStrings(); len(again) != 0 {
		t.Errorf("strings returned twice: %q", again)
	}
	want := []byte{
		byte(ShortDictionaryElement), 0x01,
		byte(DictionaryText + 1), 0x03,
		byte(ShortDictionaryElement), 0x01,
		byte(EndElement),
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("got % x, want % x", out.Bytes(), want)
	}

	// the reader learns the strings from the string table
	table := AppendStringTable(nil, strs)
	var rs ReaderSession
	rest, err := rs.ReadStringTable(append(table, out.Bytes()...))
	if err != nil {
		t.Fatal(err)
	}
	r := NewBufferReader(rest, NBFS(), &rs)
	r.ReadNodeType()
	var name StringHandle
	if err := r.ReadDictionaryName(&name); err != nil {
		t.Fatal(err)
	}
	if ok, err := name.EqualDictionaryString(alpha); err != nil || !ok {
		t.Errorf("name %q does not match %q", name.String(), alpha.Value())
	}
	nt, _ := r.ReadNodeType()
	var v ValueHandle
	if err := r.ReadValue(nt, &v); err != nil {
		t.Fatal(err)
	}
	if v.String() != "beta" {
		t.Errorf("value %q", v.String())
	}
}

type failWriter struct{ n int }

var errWrite = errors.New("write failed")

func (f *failWriter) Write(p []byte) (int, error) {
	f.n++
	return 0, errWrite
}

func TestWriterStickyError(t *testing.T) {
	fw := &failWriter{}
	w := NewBinaryWriter(fw, nil, nil)
	w.WriteStartElement("", "a")
	if err := w.Flush(); !errors.Is(err, errWrite) {
		t.Fatalf("got %v", err)
	}
	if err := w.WriteText(strings.Repeat("y", 2000)); !errors.Is(err, errWrite) {
		t.Errorf("got %v", err)
	}
	if err := w.WriteEndElement(); !errors.Is(err, errWrite) {
		t.Errorf("got %v", err)
	}
	if fw.n != 1 {
		t.Errorf("%d writes after failure", fw.n-1)
	}
}

func TestWriterMisuse(t *testing.T) {
	mustPanic := func(name string, fn func(w *BinaryWriter)) {
		defer func() {
			if recover() == nil {
				t.Errorf("%s: no panic", name)
			}
		}()
		fn(NewBinaryWriter(&bytes.Buffer{}, nil, nil))
	}
	mustPanic("two-values", func(w *BinaryWriter) {
		w.WriteStartElement("", "a")
		w.WriteStartAttribute("", "x")
		w.WriteText("1")
		w.WriteText("2")
	})
	mustPanic("nested-list", func(w *BinaryWriter) {
		w.WriteStartListText()
		w.WriteStartListText()
	})
	mustPanic("end-list", func(w *BinaryWriter) {
		w.WriteEndListText()
	})
}
