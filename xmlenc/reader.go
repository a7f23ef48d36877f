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
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// chunkBytes is the number of UTF-16 bytes
// converted at a time, before any adjustment
// for a split surrogate pair.
const chunkBytes = (128 - 1) * 2

var errClosed = errors.New("xmlenc: read from closed Reader")

// Reader produces the UTF-8 form of an XML document
// in any supported encoding. UTF-8 input is passed
// through unchanged once its byte order mark is removed.
type Reader struct {
	src    *bufio.Reader
	closer io.Closer
	opts   options
	enc    Encoding
	order  binary.ByteOrder
	dec    *encoding.Decoder

	raw []byte // undecoded input
	buf []byte // decoded output storage
	out []byte // pending output
	pos int
	err error
}

// NewReader reads the start of src and determines its
// encoding. It fails if the byte order mark, the XML
// declaration and any encoding supplied with WithExpected
// do not agree.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{}
	for _, o := range opts {
		o(&r.opts)
	}
	if c, ok := src.(io.Closer); ok {
		r.closer = c
	}
	if br, ok := src.(*bufio.Reader); ok {
		r.src = br
	} else {
		r.src = bufio.NewReader(src)
	}
	if err := r.sniff(); err != nil {
		r.opts.logf("xmlenc: %v", err)
		return nil, err
	}
	r.opts.logf("xmlenc: detected %s", r.enc)
	return r, nil
}

// Encoding returns the detected encoding.
func (r *Reader) Encoding() Encoding { return r.enc }

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// fill reads until len(r.raw) >= n or the input is exhausted.
func (r *Reader) fill(n int) error {
	have := len(r.raw)
	if have >= n {
		return nil
	}
	r.raw = r.raw[:n]
	got, err := io.ReadAtLeast(r.src, r.raw[have:], n-have)
	r.raw = r.raw[:have+got]
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return err
}

func startsDecl(b []byte) bool {
	return len(b) >= 2 && b[0] == '<' && b[1] == '?'
}

func (r *Reader) sniff() error {
	var head [4]byte
	if _, err := io.ReadFull(r.src, head[:]); err != nil {
		return noEOF(err)
	}
	expected := r.opts.expected
	enc, keep, err := sniffBOM(head, expected == None)
	if err != nil {
		return err
	}
	if expected != None && expected != enc {
		return &MismatchError{Expected: expected, Actual: enc}
	}
	r.enc = enc
	r.raw = make([]byte, 0, chunkBytes+4)
	r.raw = append(r.raw, head[4-keep:]...)
	if enc == UTF8 {
		if err := r.fill(2); err != nil {
			return err
		}
		if startsDecl(r.raw) {
			if err := r.fill(declWindow); err != nil {
				return err
			}
			if err := checkDeclaration(r.raw, enc, expected); err != nil {
				return err
			}
		}
		r.out = r.raw
		return nil
	}
	order := unicode.LittleEndian
	r.order = binary.LittleEndian
	if enc == UTF16BE {
		order = unicode.BigEndian
		r.order = binary.BigEndian
	}
	r.dec = unicode.UTF16(order, unicode.IgnoreBOM).NewDecoder()
	r.buf = make([]byte, 2*cap(r.raw))
	if err := r.fill(chunkBytes); err != nil {
		return err
	}
	if err := r.transcode(); err != nil {
		return err
	}
	if startsDecl(r.out) {
		return checkDeclaration(r.out, enc, expected)
	}
	if expected == None {
		return ErrDeclarationRequired
	}
	return nil
}

// completeChunk extends r.raw so that it ends on a
// 16-bit boundary and does not end in a high surrogate.
func (r *Reader) completeChunk() error {
	if len(r.raw)%2 != 0 {
		b, err := r.src.ReadByte()
		if err != nil {
			return noEOF(err)
		}
		r.raw = append(r.raw, b)
	}
	if len(r.raw) < 2 {
		return nil
	}
	u := r.order.Uint16(r.raw[len(r.raw)-2:])
	if u&0xDC00 == 0xD800 {
		var pair [2]byte
		if _, err := io.ReadFull(r.src, pair[:]); err != nil {
			return noEOF(err)
		}
		r.raw = append(r.raw, pair[:]...)
	}
	return nil
}

// checkUTF16 rejects unpaired surrogates.
func checkUTF16(b []byte, order binary.ByteOrder, enc Encoding) error {
	for i := 0; i+1 < len(b); i += 2 {
		u := order.Uint16(b[i:])
		switch u & 0xFC00 {
		case 0xD800:
			if i+3 < len(b) && order.Uint16(b[i+2:])&0xFC00 == 0xDC00 {
				i += 2
				continue
			}
			return &DecodeError{Encoding: enc, Bytes: append([]byte(nil), b[i:min(i+4, len(b))]...)}
		case 0xDC00:
			return &DecodeError{Encoding: enc, Bytes: append([]byte(nil), b[i:i+2]...)}
		}
	}
	return nil
}

func (r *Reader) transcode() error {
	if err := r.completeChunk(); err != nil {
		return err
	}
	if err := checkUTF16(r.raw, r.order, r.enc); err != nil {
		return err
	}
	r.dec.Reset()
	n, _, err := r.dec.Transform(r.buf, r.raw, true)
	if err != nil {
		return err
	}
	r.out = r.buf[:n]
	r.pos = 0
	r.raw = r.raw[:0]
	return nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.pos == len(r.out) {
		if r.enc == UTF8 {
			return r.src.Read(p)
		}
		r.raw = r.raw[:chunkBytes]
		n, err := io.ReadAtLeast(r.src, r.raw, 1)
		r.raw = r.raw[:n]
		if n == 0 {
			return 0, err
		}
		if err := r.transcode(); err != nil {
			r.err = err
			return 0, err
		}
	}
	n := copy(p, r.out[r.pos:])
	r.pos += n
	return n, nil
}

// Close closes the underlying reader if it
// implements io.Closer.
func (r *Reader) Close() error {
	if r.err == errClosed {
		return nil
	}
	r.err = errClosed
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
