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

package main

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/SnellerInc/xmlbin/nbfx"
	xutf8 "github.com/SnellerInc/xmlbin/utf8"
)

// walker renders a stream of binary XML
// records as XML text, enforcing quotas.
type walker struct {
	r      *nbfx.BufferReader
	quotas nbfx.Quotas
	out    io.Writer

	open    []string     // qualified names of open elements
	tag     bytes.Buffer // start tag awaiting '>' or "/>"
	pending bool         // tag holds an unclosed start tag
	buf     bytes.Buffer // output of the current record
	text    []byte

	name   nbfx.StringHandle
	prefix nbfx.PrefixHandle
	value  nbfx.ValueHandle

	records int
}

func newWalker(r *nbfx.BufferReader, q nbfx.Quotas, out io.Writer) *walker {
	return &walker{r: r, quotas: q, out: out}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", nbfx.ErrInvalidFormat, fmt.Sprintf(format, args...))
}

func overQuota(format string, args ...any) error {
	return fmt.Errorf("%w: %s", nbfx.ErrQuotaExceeded, fmt.Sprintf(format, args...))
}

// window starts a new logical read at the cursor.
func (w *walker) window() {
	w.r.SetWindow(0, w.quotas.MaxBytesPerRead)
}

// readStringTable reads the [MC-NBFSE] string
// table that precedes the records into s.
func (w *walker) readStringTable(s *nbfx.ReaderSession) error {
	w.window()
	if err := s.ReadStringTableFrom(w.r); err != nil {
		return fmt.Errorf("string table: %w", err)
	}
	chars := 0
	for i := 0; i < s.Len(); i++ {
		if ds, ok := s.Lookup(i); ok {
			w.text = append(w.text[:0], ds.Value()...)
			chars += xutf8.ValidStringLength(w.text)
		}
	}
	if chars > w.quotas.MaxNameTableCharCount {
		return overQuota("string table holds %d characters (max %d)", chars, w.quotas.MaxNameTableCharCount)
	}
	return nil
}

// run renders records until the input is exhausted.
func (w *walker) run() error {
	for {
		w.window()
		if _, err := w.r.PeekNodeType(); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return err
		}
		t, _ := w.r.ReadNodeType()
		if err := w.record(t); err != nil {
			return fmt.Errorf("record %d (%s): %w", w.records, t, err)
		}
		if err := w.emit(); err != nil {
			return err
		}
		w.records++
	}
	if n := len(w.open); n > 0 {
		return fmt.Errorf("%d elements left open: %w", n, io.ErrUnexpectedEOF)
	}
	return nil
}

func (w *walker) emit() error {
	_, err := w.out.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

func (w *walker) record(t nbfx.NodeType) error {
	switch {
	case t.IsElement():
		return w.element(t)
	case t.IsAttribute():
		return w.attribute(t)
	case t.IsText():
		return w.textRecord(t)
	case t == nbfx.EndElement:
		return w.endElement()
	case t == nbfx.Comment:
		return w.comment()
	case t == nbfx.Array:
		return w.array()
	}
	return invalid("unknown record %s", t)
}

// closeTag finishes a pending start tag.
func (w *walker) closeTag() {
	if w.pending {
		w.buf.Write(w.tag.Bytes())
		w.buf.WriteByte('>')
		w.pending = false
	}
}

// qname reads the prefix and local name of an element
// or attribute. letter is the single letter prefix index
// or -1; prefixed reports whether a literal prefix precedes
// the name.
func (w *walker) qname(prefixed, dict bool, letter int) (string, error) {
	w.prefix.SetValue(nbfx.EmptyPrefix)
	if letter >= 0 {
		w.prefix.SetValue(nbfx.AlphaPrefix(letter))
	} else if prefixed {
		if err := w.r.ReadPrefix(&w.prefix); err != nil {
			return "", err
		}
	}
	var err error
	if dict {
		err = w.r.ReadDictionaryName(&w.name)
	} else {
		err = w.r.ReadName(&w.name)
	}
	if err != nil {
		return "", err
	}
	local, err := w.name.GetString()
	if err != nil {
		return "", err
	}
	if w.prefix.IsEmpty() {
		return local, nil
	}
	return w.prefix.GetString() + ":" + local, nil
}

func (w *walker) element(t nbfx.NodeType) error {
	if len(w.open) >= w.quotas.MaxDepth {
		return overQuota("element depth exceeds %d", w.quotas.MaxDepth)
	}
	var name string
	var err error
	switch t {
	case nbfx.ShortElement:
		name, err = w.qname(false, false, -1)
	case nbfx.Element:
		name, err = w.qname(true, false, -1)
	case nbfx.ShortDictionaryElement:
		name, err = w.qname(false, true, -1)
	case nbfx.DictionaryElement:
		name, err = w.qname(true, true, -1)
	default:
		name, err = w.qname(false, t <= nbfx.PrefixDictionaryElementZ, t.Letter())
	}
	if err != nil {
		return err
	}
	w.closeTag()
	w.open = append(w.open, name)
	w.tag.Reset()
	w.tag.WriteByte('<')
	w.tag.WriteString(name)
	w.pending = true
	return nil
}

func (w *walker) attribute(t nbfx.NodeType) error {
	if !w.pending {
		return invalid("attribute outside a start tag")
	}
	if t.IsXmlns() {
		return w.xmlns(t)
	}
	var name string
	var err error
	switch t {
	case nbfx.ShortAttribute:
		name, err = w.qname(false, false, -1)
	case nbfx.Attribute:
		name, err = w.qname(true, false, -1)
	case nbfx.ShortDictionaryAttribute:
		name, err = w.qname(false, true, -1)
	case nbfx.DictionaryAttribute:
		name, err = w.qname(true, true, -1)
	default:
		name, err = w.qname(false, t <= nbfx.PrefixDictionaryAttributeZ, t.Letter())
	}
	if err != nil {
		return err
	}
	vt, err := w.r.ReadNodeType()
	if err != nil {
		return err
	}
	if !vt.IsText() || vt.HasEndElement() {
		return invalid("%s record as attribute value", vt)
	}
	text, err := w.readText(vt)
	if err != nil {
		return err
	}
	w.appendAttr(name, text)
	return nil
}

func (w *walker) xmlns(t nbfx.NodeType) error {
	name := "xmlns"
	if t == nbfx.XmlnsAttribute || t == nbfx.DictionaryXmlns {
		if err := w.r.ReadPrefix(&w.prefix); err != nil {
			return err
		}
		if !w.prefix.IsEmpty() {
			name += ":" + w.prefix.GetString()
		}
	}
	var err error
	if t == nbfx.ShortDictionaryXmlns || t == nbfx.DictionaryXmlns {
		err = w.r.ReadDictionaryName(&w.name)
	} else {
		err = w.r.ReadName(&w.name)
	}
	if err != nil {
		return err
	}
	ns, err := w.name.GetString()
	if err != nil {
		return err
	}
	w.text = append(w.text[:0], ns...)
	w.appendAttr(name, w.text)
	return nil
}

func (w *walker) appendAttr(name string, value []byte) {
	w.tag.WriteByte(' ')
	w.tag.WriteString(name)
	w.tag.WriteString(`="`)
	xml.EscapeText(&w.tag, value)
	w.tag.WriteByte('"')
}

// readText reads the value of text record t and
// returns its text form, which is only valid until
// the next call.
func (w *walker) readText(t nbfx.NodeType) ([]byte, error) {
	if err := w.r.ReadValue(t, &w.value); err != nil {
		return nil, err
	}
	s, err := w.value.GetString()
	if err != nil {
		return nil, err
	}
	w.text = append(w.text[:0], s...)
	if n := xutf8.ValidStringLength(w.text); n > w.quotas.MaxStringContentLength {
		return nil, overQuota("text of %d characters (max %d)", n, w.quotas.MaxStringContentLength)
	}
	return w.text, nil
}

func (w *walker) textRecord(t nbfx.NodeType) error {
	text, err := w.readText(t)
	if err != nil {
		return err
	}
	w.closeTag()
	xml.EscapeText(&w.buf, text)
	if t.HasEndElement() {
		return w.endElement()
	}
	return nil
}

func (w *walker) endElement() error {
	n := len(w.open)
	if n == 0 {
		return invalid("end element with no open element")
	}
	name := w.open[n-1]
	w.open = w.open[:n-1]
	if w.pending {
		w.buf.Write(w.tag.Bytes())
		w.buf.WriteString("/>")
		w.pending = false
		return nil
	}
	w.buf.WriteString("</")
	w.buf.WriteString(name)
	w.buf.WriteByte('>')
	return nil
}

func (w *walker) comment() error {
	if err := w.r.ReadName(&w.name); err != nil {
		return err
	}
	s, err := w.name.GetString()
	if err != nil {
		return err
	}
	w.closeTag()
	w.buf.WriteString("<!--")
	w.buf.WriteString(s)
	w.buf.WriteString("-->")
	return nil
}

// array expands an Array record into one
// element per item. Each item is read in
// its own window.
func (w *walker) array() error {
	t, err := w.r.ReadNodeType()
	if err != nil {
		return err
	}
	if !t.IsElement() {
		return invalid("array of %s", t)
	}
	if err := w.element(t); err != nil {
		return err
	}
	for {
		t, err = w.r.ReadNodeType()
		if err != nil {
			return err
		}
		if t == nbfx.EndElement {
			break
		}
		if !t.IsAttribute() {
			return invalid("%s record in array element", t)
		}
		if err := w.attribute(t); err != nil {
			return err
		}
	}
	it, err := w.r.ReadNodeType()
	if err != nil {
		return err
	}
	if it.ArrayItemWidth() == 0 {
		return invalid("%s record as array item", it)
	}
	count, err := w.r.ReadMultiByteUInt31()
	if err != nil {
		return err
	}
	if count > w.quotas.MaxArrayLength {
		return overQuota("array of %d items (max %d)", count, w.quotas.MaxArrayLength)
	}
	name := w.open[len(w.open)-1]
	w.open = w.open[:len(w.open)-1]
	w.pending = false
	start := w.tag.Bytes()
	for i := 0; i < count; i++ {
		if err := w.emit(); err != nil {
			return err
		}
		w.window()
		text, err := w.readText(it)
		if err != nil {
			return fmt.Errorf("array item %d: %w", i, err)
		}
		w.buf.Write(start)
		w.buf.WriteByte('>')
		xml.EscapeText(&w.buf, text)
		w.buf.WriteString("</")
		w.buf.WriteString(name)
		w.buf.WriteByte('>')
	}
	return nil
}
