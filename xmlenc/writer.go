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

package xmlenc

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Writer accepts UTF-8 text and writes
// it to the destination in its encoding.
type Writer struct {
	dst io.Writer
	bw  *bufio.Writer
	tw  *transform.Writer
	enc Encoding
}

// NewWriter returns a Writer that produces enc.
// If emitBOM is set, a UTF-16 byte order mark is
// written first. UTF-8 output never gets one.
func NewWriter(dst io.Writer, enc Encoding, emitBOM bool) (*Writer, error) {
	w := &Writer{dst: dst, enc: enc, bw: bufio.NewWriter(dst)}
	var order unicode.Endianness
	switch enc {
	case UTF8:
		return w, nil
	case UTF16LE:
		order = unicode.LittleEndian
	case UTF16BE:
		order = unicode.BigEndian
	default:
		return nil, fmt.Errorf("xmlenc: cannot write encoding %s", enc)
	}
	w.tw = transform.NewWriter(w.bw, transform.Chain(
		encoding.UTF8Validator,
		unicode.UTF16(order, unicode.IgnoreBOM).NewEncoder(),
	))
	if emitBOM {
		w.bw.Write(enc.BOM())
	}
	return w, nil
}

// Encoding returns the output encoding.
func (w *Writer) Encoding() Encoding { return w.enc }

func (w *Writer) wrap(err error, p []byte) error {
	if errors.Is(err, encoding.ErrInvalidUTF8) {
		return &DecodeError{Encoding: UTF8, Bytes: p}
	}
	return err
}

// Write implements io.Writer.
// A UTF-8 sequence may be split across calls.
func (w *Writer) Write(p []byte) (int, error) {
	if w.tw == nil {
		return w.bw.Write(p)
	}
	n, err := w.tw.Write(p)
	return n, w.wrap(err, p)
}

// Flush writes buffered output to the destination.
// An incomplete trailing UTF-8 sequence stays buffered.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Close flushes all output and closes the
// destination if it implements io.Closer.
func (w *Writer) Close() error {
	var err error
	if w.tw != nil {
		err = w.wrap(w.tw.Close(), nil)
	}
	if ferr := w.bw.Flush(); err == nil {
		err = ferr
	}
	if c, ok := w.dst.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
