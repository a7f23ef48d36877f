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
	"encoding/binary"
	"io"
	"math"

	"github.com/SnellerInc/xmlbin/date"
	"github.com/google/uuid"
)

// BinaryWriter encodes XML records in the binary
// format read by BufferReader. Names and text given
// as dictionary strings are written as keys into the
// static dictionary when possible, or into the
// session, which assigns new keys on first use.
//
// Write errors are sticky: after the first failure
// every method returns the same error.
// Misuse (such as a second value for one attribute)
// panics.
type BinaryWriter struct {
	nw      NodeWriter
	dict    Dictionary
	session *WriterSession
	pending []string

	// offset in nw.buf of the most recent
	// element-content text record tag, or -1
	textNode    int
	textFlushes int

	inAttr    bool
	attrValue bool
	inList    bool

	scratch []byte
}

// NewBinaryWriter returns a writer to w.
// Either dictionary may be nil.
func NewBinaryWriter(w io.Writer, dict Dictionary, session *WriterSession) *BinaryWriter {
	bw := &BinaryWriter{dict: dict, session: session, textNode: -1}
	bw.nw.Reset(w)
	return bw
}

// Reset discards buffered output and state (but
// not the session) and directs output to w.
func (w *BinaryWriter) Reset(out io.Writer) {
	w.nw.Reset(out)
	w.pending = w.pending[:0]
	w.textNode = -1
	w.inAttr, w.attrValue, w.inList = false, false, false
}

// Flush writes buffered records to the underlying writer.
func (w *BinaryWriter) Flush() error {
	w.textNode = -1
	return w.nw.Flush()
}

// Close flushes w and closes the underlying
// writer if it is an io.Closer.
func (w *BinaryWriter) Close() error {
	w.textNode = -1
	return w.nw.Close()
}

// TakeSessionStrings returns the strings that were
// assigned session keys since the last call, in key
// order. A framing layer sends them ahead of the
// records that use them (see AppendStringTable).
func (w *BinaryWriter) TakeSessionStrings() []string {
	out := w.pending
	w.pending = nil
	return out
}

// key returns the wire key of ds, assigning
// a session key if necessary.
func (w *BinaryWriter) key(ds *DictionaryString) (int, bool) {
	if s, ok := lookupDictionaryString(w.dict, ds); ok {
		return s.key * 2, true
	}
	if w.session == nil {
		return -1, false
	}
	k, ok := w.session.Lookup(ds)
	if !ok {
		before := w.session.Len()
		var err error
		k, err = w.session.TryAdd(ds)
		if err != nil {
			return -1, false
		}
		if w.session.Len() > before {
			w.pending = append(w.pending, ds.value)
		}
	}
	return k*2 + 1, true
}

func (w *BinaryWriter) endAttribute() {
	if !w.inAttr {
		return
	}
	if !w.attrValue {
		w.writeTextNode(EmptyText)
	}
	w.inAttr, w.attrValue = false, false
}

func (w *BinaryWriter) writeNode(t NodeType) {
	w.nw.WriteByte(byte(t))
	w.textNode = -1
}

func (w *BinaryWriter) writeTextNode(t NodeType) {
	if w.inAttr && !w.inList {
		if w.attrValue {
			panic("nbfx: attribute already has a value")
		}
		w.attrValue = true
	}
	off := w.nw.reserve(1)
	w.nw.buf[off] = byte(t)
	if w.inAttr || w.inList {
		w.textNode = -1
		return
	}
	w.textNode = off
	w.textFlushes = w.nw.flushes
}

func (w *BinaryWriter) writeMultiByte(v int) {
	var tmp [5]byte
	w.nw.Write(AppendMultiByteInt31(tmp[:0], v))
}

func (w *BinaryWriter) writeName(s string) {
	w.writeMultiByte(len(s))
	w.nw.WriteString(s)
}

// singleLetter returns the index of a one letter
// lower case prefix, or -1.
func singleLetter(prefix string) int {
	if len(prefix) == 1 && prefix[0] >= 'a' && prefix[0] <= 'z' {
		return int(prefix[0] - 'a')
	}
	return -1
}

// WriteStartElement starts an element with a literal name.
func (w *BinaryWriter) WriteStartElement(prefix, localName string) error {
	w.endAttribute()
	switch l := singleLetter(prefix); {
	case prefix == "":
		w.writeNode(ShortElement)
	case l >= 0:
		w.writeNode(PrefixElementA + NodeType(l))
	default:
		w.writeNode(Element)
		w.writeName(prefix)
	}
	w.writeName(localName)
	return w.nw.err
}

// WriteStartElementDict starts an element whose local
// name is a dictionary string. Names without a key
// are written literally.
func (w *BinaryWriter) WriteStartElementDict(prefix string, localName *DictionaryString) error {
	key, ok := w.key(localName)
	if !ok {
		return w.WriteStartElement(prefix, localName.value)
	}
	w.endAttribute()
	switch l := singleLetter(prefix); {
	case prefix == "":
		w.writeNode(ShortDictionaryElement)
	case l >= 0:
		w.writeNode(PrefixDictionaryElementA + NodeType(l))
	default:
		w.writeNode(DictionaryElement)
		w.writeName(prefix)
	}
	w.writeMultiByte(key)
	return w.nw.err
}

// WriteEndElement ends the current element. If the
// element content ended with a text record that is
// still buffered, that record is turned into its
// ...WithEndElement form instead.
func (w *BinaryWriter) WriteEndElement() error {
	w.endAttribute()
	if w.textNode >= 0 && w.textFlushes == w.nw.flushes {
		w.nw.buf[w.textNode]++
		w.textNode = -1
		return w.nw.err
	}
	w.writeNode(EndElement)
	return w.nw.err
}

// WriteStartAttribute starts an attribute with a literal
// name. The value is the next text written; an attribute
// with no value is written with an empty value.
func (w *BinaryWriter) WriteStartAttribute(prefix, localName string) error {
	w.endAttribute()
	switch l := singleLetter(prefix); {
	case prefix == "":
		w.writeNode(ShortAttribute)
	case l >= 0:
		w.writeNode(PrefixAttributeA + NodeType(l))
	default:
		w.writeNode(Attribute)
		w.writeName(prefix)
	}
	w.writeName(localName)
	w.inAttr = true
	return w.nw.err
}

// WriteStartAttributeDict is WriteStartAttribute
// for a dictionary string local name.
func (w *BinaryWriter) WriteStartAttributeDict(prefix string, localName *DictionaryString) error {
	key, ok := w.key(localName)
	if !ok {
		return w.WriteStartAttribute(prefix, localName.value)
	}
	w.endAttribute()
	switch l := singleLetter(prefix); {
	case prefix == "":
		w.writeNode(ShortDictionaryAttribute)
	case l >= 0:
		w.writeNode(PrefixDictionaryAttributeA + NodeType(l))
	default:
		w.writeNode(DictionaryAttribute)
		w.writeName(prefix)
	}
	w.writeMultiByte(key)
	w.inAttr = true
	return w.nw.err
}

// WriteEndAttribute ends the current attribute.
func (w *BinaryWriter) WriteEndAttribute() error {
	w.endAttribute()
	return w.nw.err
}

// WriteXmlnsAttribute declares prefix for ns.
func (w *BinaryWriter) WriteXmlnsAttribute(prefix, ns string) error {
	w.endAttribute()
	if prefix == "" {
		w.writeNode(ShortXmlnsAttribute)
	} else {
		w.writeNode(XmlnsAttribute)
		w.writeName(prefix)
	}
	w.writeName(ns)
	return w.nw.err
}

// WriteXmlnsAttributeDict declares prefix for a
// namespace given as a dictionary string.
func (w *BinaryWriter) WriteXmlnsAttributeDict(prefix string, ns *DictionaryString) error {
	key, ok := w.key(ns)
	if !ok {
		return w.WriteXmlnsAttribute(prefix, ns.value)
	}
	w.endAttribute()
	if prefix == "" {
		w.writeNode(ShortDictionaryXmlns)
	} else {
		w.writeNode(DictionaryXmlns)
		w.writeName(prefix)
	}
	w.writeMultiByte(key)
	return w.nw.err
}

// WriteComment writes a comment record.
func (w *BinaryWriter) WriteComment(text string) error {
	w.endAttribute()
	w.writeNode(Comment)
	w.writeName(text)
	return w.nw.err
}

// writeTextWithLength writes t8, t8+2 or t8+4
// (8, 16 or 32 bit length) followed by n.
func (w *BinaryWriter) writeTextWithLength(t8 NodeType, n int) {
	var tmp [4]byte
	switch {
	case n < 0x100:
		w.writeTextNode(t8)
		w.nw.WriteByte(byte(n))
	case n < 0x10000:
		w.writeTextNode(t8 + 2)
		w.nw.Write(binary.LittleEndian.AppendUint16(tmp[:0], uint16(n)))
	default:
		w.writeTextNode(t8 + 4)
		w.nw.Write(binary.LittleEndian.AppendUint32(tmp[:0], uint32(n)))
	}
}

func (w *BinaryWriter) writeFixed(t NodeType, payload []byte) error {
	w.writeTextNode(t)
	w.nw.Write(payload)
	return w.nw.err
}

// WriteText writes s as UTF-8 text.
func (w *BinaryWriter) WriteText(s string) error {
	if s == "" {
		w.writeTextNode(EmptyText)
		return w.nw.err
	}
	w.writeTextWithLength(Chars8Text, len(s))
	w.nw.WriteString(s)
	return w.nw.err
}

// WriteUnicodeText writes s as UTF-16LE text.
func (w *BinaryWriter) WriteUnicodeText(s string) error {
	w.scratch = appendUnicode(w.scratch[:0], s)
	w.writeTextWithLength(UnicodeChars8Text, len(w.scratch))
	w.nw.Write(w.scratch)
	return w.nw.err
}

// WriteDictionaryText writes ds as a dictionary
// key, or as UTF-8 text if it has no key.
func (w *BinaryWriter) WriteDictionaryText(ds *DictionaryString) error {
	key, ok := w.key(ds)
	if !ok {
		return w.WriteText(ds.value)
	}
	w.writeTextNode(DictionaryText)
	w.writeMultiByte(key)
	return w.nw.err
}

func (w *BinaryWriter) WriteBoolText(b bool) error {
	if b {
		w.writeTextNode(TrueText)
	} else {
		w.writeTextNode(FalseText)
	}
	return w.nw.err
}

// WriteInt32Text writes v using the
// smallest integer record that holds it.
func (w *BinaryWriter) WriteInt32Text(v int32) error {
	switch {
	case v == 0:
		w.writeTextNode(ZeroText)
	case v == 1:
		w.writeTextNode(OneText)
	case v >= math.MinInt8 && v <= math.MaxInt8:
		w.writeTextNode(Int8Text)
		w.nw.WriteByte(byte(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return w.writeFixed(Int16Text, binary.LittleEndian.AppendUint16(w.scratch[:0], uint16(v)))
	default:
		return w.writeFixed(Int32Text, binary.LittleEndian.AppendUint32(w.scratch[:0], uint32(v)))
	}
	return w.nw.err
}

func (w *BinaryWriter) WriteInt64Text(v int64) error {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return w.WriteInt32Text(int32(v))
	}
	return w.writeFixed(Int64Text, binary.LittleEndian.AppendUint64(w.scratch[:0], uint64(v)))
}

func (w *BinaryWriter) WriteUint64Text(v uint64) error {
	if v <= math.MaxInt64 {
		return w.WriteInt64Text(int64(v))
	}
	return w.writeFixed(UInt64Text, binary.LittleEndian.AppendUint64(w.scratch[:0], v))
}

// integral reports whether f is an integer
// representable as an int64.
func integral(f float64) (int64, bool) {
	if f >= -0x1p63 && f < 0x1p63 {
		if l := int64(f); float64(l) == f {
			return l, true
		}
	}
	return 0, false
}

// WriteFloat32Text writes f as an integer
// record when it is integral.
func (w *BinaryWriter) WriteFloat32Text(f float32) error {
	if l, ok := integral(float64(f)); ok {
		return w.WriteInt64Text(l)
	}
	return w.writeFixed(FloatText, binary.LittleEndian.AppendUint32(w.scratch[:0], math.Float32bits(f)))
}

// WriteFloat64Text writes d as an integer record
// when it is integral and as a float record when
// that is exact.
func (w *BinaryWriter) WriteFloat64Text(d float64) error {
	if l, ok := integral(d); ok {
		return w.WriteInt64Text(l)
	}
	if f := float32(d); float64(f) == d {
		return w.WriteFloat32Text(f)
	}
	return w.writeFixed(DoubleText, binary.LittleEndian.AppendUint64(w.scratch[:0], math.Float64bits(d)))
}

func (w *BinaryWriter) WriteDecimalText(d Decimal) error {
	return w.writeFixed(DecimalText, d.appendWire(w.scratch[:0]))
}

// WriteDateTimeText writes d in its 64-bit binary form.
func (w *BinaryWriter) WriteDateTimeText(d date.DateTime) error {
	v, err := d.Binary()
	if err != nil {
		return convErr(d.String(), "DateTime", err)
	}
	return w.writeFixed(DateTimeText, binary.LittleEndian.AppendUint64(w.scratch[:0], uint64(v)))
}

func (w *BinaryWriter) WriteTimeSpanText(ts date.TimeSpan) error {
	return w.writeFixed(TimeSpanText, binary.LittleEndian.AppendUint64(w.scratch[:0], uint64(ts)))
}

func (w *BinaryWriter) WriteGUIDText(id uuid.UUID) error {
	return w.writeFixed(GUIDText, appendGUIDWire(w.scratch[:0], id))
}

// WriteUniqueIDText writes GUID based ids in
// binary form and any other id as text.
func (w *BinaryWriter) WriteUniqueIDText(id UniqueID) error {
	if g, ok := id.GUID(); ok {
		return w.writeFixed(UniqueIDText, appendGUIDWire(w.scratch[:0], g))
	}
	return w.WriteText(id.String())
}

// WriteBase64Text writes b as a binary record.
func (w *BinaryWriter) WriteBase64Text(b []byte) error {
	w.writeTextWithLength(Bytes8Text, len(b))
	w.nw.Write(b)
	return w.nw.err
}

// WriteQNameText writes the qualified name prefix:localName.
// A single letter prefix with a keyed local name uses the
// compact QNameDictionaryText record.
func (w *BinaryWriter) WriteQNameText(prefix string, localName *DictionaryString) error {
	if l := singleLetter(prefix); l >= 0 {
		if key, ok := w.key(localName); ok {
			w.writeTextNode(QNameDictionaryText)
			w.nw.WriteByte(byte(l))
			w.writeMultiByte(key)
			return w.nw.err
		}
	}
	if prefix == "" {
		return w.WriteText(localName.value)
	}
	return w.WriteText(prefix + ":" + localName.value)
}

// WriteStartListText starts a list value; the
// text records that follow up to WriteEndListText
// are its items.
func (w *BinaryWriter) WriteStartListText() error {
	if w.inList {
		panic("nbfx: lists do not nest")
	}
	if w.inAttr {
		if w.attrValue {
			panic("nbfx: attribute already has a value")
		}
		w.attrValue = true
	}
	w.writeNode(StartListText)
	w.inList = true
	return w.nw.err
}

func (w *BinaryWriter) WriteEndListText() error {
	if !w.inList {
		panic("nbfx: no list to end")
	}
	w.writeNode(EndListText)
	w.inList = false
	return w.nw.err
}

// writeArray writes an Array record: an empty element
// followed by count fixed width items of type t.
func (w *BinaryWriter) writeArray(prefix, localName string, t NodeType, count int, items []byte) error {
	w.endAttribute()
	w.writeNode(Array)
	w.WriteStartElement(prefix, localName)
	w.writeNode(EndElement)
	w.writeNode(t + 1)
	w.writeMultiByte(count)
	w.nw.Write(items)
	return w.nw.err
}

func (w *BinaryWriter) WriteBoolArray(prefix, localName string, vals []bool) error {
	items := w.scratch[:0]
	for _, v := range vals {
		b := byte(0)
		if v {
			b = 1
		}
		items = append(items, b)
	}
	w.scratch = items
	return w.writeArray(prefix, localName, BoolText, len(vals), items)
}

func (w *BinaryWriter) WriteInt16Array(prefix, localName string, vals []int16) error {
	items := w.scratch[:0]
	for _, v := range vals {
		items = binary.LittleEndian.AppendUint16(items, uint16(v))
	}
	w.scratch = items
	return w.writeArray(prefix, localName, Int16Text, len(vals), items)
}

func (w *BinaryWriter) WriteInt32Array(prefix, localName string, vals []int32) error {
	items := w.scratch[:0]
	for _, v := range vals {
		items = binary.LittleEndian.AppendUint32(items, uint32(v))
	}
	w.scratch = items
	return w.writeArray(prefix, localName, Int32Text, len(vals), items)
}

func (w *BinaryWriter) WriteInt64Array(prefix, localName string, vals []int64) error {
	items := w.scratch[:0]
	for _, v := range vals {
		items = binary.LittleEndian.AppendUint64(items, uint64(v))
	}
	w.scratch = items
	return w.writeArray(prefix, localName, Int64Text, len(vals), items)
}

func (w *BinaryWriter) WriteFloat64Array(prefix, localName string, vals []float64) error {
	items := w.scratch[:0]
	for _, v := range vals {
		items = binary.LittleEndian.AppendUint64(items, math.Float64bits(v))
	}
	w.scratch = items
	return w.writeArray(prefix, localName, DoubleText, len(vals), items)
}
