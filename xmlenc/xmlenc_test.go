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
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"unicode/utf16"
)

func encode16(s string, order binary.AppendByteOrder) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = order.AppendUint16(out, u)
	}
	return out
}

func TestSniffBOM(t *testing.T) {
	run := []struct {
		in       [4]byte
		required bool
		enc      Encoding
		keep     int
		err      error
	}{
		{[4]byte{'<', '?', 'x', 'm'}, true, UTF8, 4, nil},
		{[4]byte{'<', 'a', '/', '>'}, false, UTF8, 4, nil},
		{[4]byte{0xFF, 0xFE, '<', 0}, true, UTF16LE, 2, nil},
		{[4]byte{0xFE, 0xFF, 0, '<'}, true, UTF16BE, 2, nil},
		{[4]byte{0, '<', 0, '?'}, true, UTF16BE, 4, nil},
		{[4]byte{0, '<', 0, 'a'}, true, None, 0, ErrDeclarationRequired},
		{[4]byte{0, '<', 0, 'a'}, false, UTF16BE, 4, nil},
		{[4]byte{'<', 0, '?', 0}, true, UTF16LE, 4, nil},
		{[4]byte{'<', 0, 'a', 0}, true, None, 0, ErrDeclarationRequired},
		{[4]byte{'<', 0, 'a', 0}, false, UTF16LE, 4, nil},
		{[4]byte{0xEF, 0xBB, 0xBF, '<'}, true, UTF8, 1, nil},
		{[4]byte{0xEF, 0xBB, 0x00, '<'}, true, None, 0, ErrMalformed},
		{[4]byte{0xEF, 0xBB, 0x00, '<'}, false, UTF8, 1, nil},
		{[4]byte{'a', 'b', 'c', 'd'}, true, UTF8, 4, nil},
		{[4]byte{0, 0, 0, 0}, true, UTF8, 4, nil},
	}
	for i := range run {
		enc, keep, err := sniffBOM(run[i].in, run[i].required)
		if run[i].err != nil {
			if !errors.Is(err, run[i].err) {
				t.Errorf("case %d: got error %v, want %v", i, err, run[i].err)
			}
			continue
		}
		if err != nil {
			t.Errorf("case %d: unexpected error %v", i, err)
			continue
		}
		if enc != run[i].enc || keep != run[i].keep {
			t.Errorf("case %d: got (%s, %d), want (%s, %d)", i, enc, keep, run[i].enc, run[i].keep)
		}
	}
}

func readAll(t *testing.T, src []byte, opts ...Option) (Encoding, []byte, error) {
	t.Helper()
	r, err := NewReader(bytes.NewReader(src), opts...)
	if err != nil {
		return None, nil, err
	}
	out, err := io.ReadAll(r)
	return r.Encoding(), out, err
}

func TestReaderUTF8(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8"?><root a="1"/>`
	enc, out, err := readAll(t, []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if enc != UTF8 {
		t.Errorf("encoding %s", enc)
	}
	if string(out) != doc {
		t.Errorf("got %q", out)
	}

	// byte order mark is removed
	enc, out, err = readAll(t, append([]byte{0xEF, 0xBB, 0xBF}, "<a/>"...))
	if err != nil {
		t.Fatal(err)
	}
	if enc != UTF8 || string(out) != "<a/>" {
		t.Errorf("got %s %q", enc, out)
	}

	// no declaration
	_, out, err = readAll(t, []byte("<a>text</a>"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "<a>text</a>" {
		t.Errorf("got %q", out)
	}
}

func TestReaderUTF16(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-16"?><a>héllo</a>`
	for _, tc := range []struct {
		bom   []byte
		order binary.AppendByteOrder
		enc   Encoding
	}{
		{[]byte{0xFF, 0xFE}, binary.LittleEndian, UTF16LE},
		{[]byte{0xFE, 0xFF}, binary.BigEndian, UTF16BE},
		{nil, binary.LittleEndian, UTF16LE},
		{nil, binary.BigEndian, UTF16BE},
	} {
		src := append(append([]byte(nil), tc.bom...), encode16(doc, tc.order)...)
		enc, out, err := readAll(t, src)
		if err != nil {
			t.Fatalf("%s: %v", tc.enc, err)
		}
		if enc != tc.enc {
			t.Errorf("got encoding %s, want %s", enc, tc.enc)
		}
		if string(out) != doc {
			t.Errorf("%s: got %q", tc.enc, out)
		}
	}
}

func TestReaderDeclarations(t *testing.T) {
	le := func(s string) []byte {
		return append([]byte{0xFF, 0xFE}, encode16(s, binary.LittleEndian)...)
	}
	be := func(s string) []byte {
		return append([]byte{0xFE, 0xFF}, encode16(s, binary.BigEndian)...)
	}
	run := []struct {
		name     string
		src      []byte
		expected Encoding
		err      error
		declared string
	}{
		{name: "upper-case", src: []byte(`<?xml version="1.0" encoding="UTF-8"?><a/>`)},
		{name: "single-quoted", src: []byte(`<?xml version='1.0' encoding = 'utf-8'?><a/>`)},
		{name: "no-encoding", src: []byte(`<?xml version="1.0"?><a/>`)},
		{name: "standalone-only", src: []byte(`<?xml version="1.0" standalone="yes"?><a/>`)},
		{name: "utf16-in-utf8", src: []byte(`<?xml version="1.0" encoding="utf-16"?><a/>`), err: ErrEncodingMismatch, declared: "utf-16"},
		{name: "unknown", src: []byte(`<?xml version="1.0" encoding="latin-1"?><a/>`), err: ErrEncodingMismatch, declared: "latin-1"},
		{name: "le-declared-be", src: le(`<?xml version="1.0" encoding="utf-16BE"?><a/>`), err: ErrEncodingMismatch, declared: "utf-16BE"},
		{name: "le-declared-le", src: le(`<?xml version="1.0" encoding="utf-16le"?><a/>`)},
		{name: "be-declared-utf8", src: be(`<?xml version="1.0" encoding="utf-8"?><a/>`), err: ErrEncodingMismatch, declared: "utf-8"},
		{name: "utf16-no-decl", src: le(`<a/>`), err: ErrDeclarationRequired},
		{name: "utf16-no-decl-expected", src: le(`<a/>`), expected: UTF16LE},
		{name: "utf16-decl-without-encoding", src: le(`<?xml version="1.0"?><a/>`), err: ErrDeclarationRequired},
		{name: "utf16-decl-without-encoding-expected", src: le(`<?xml version="1.0"?><a/>`), expected: UTF16LE},
		{name: "short-prologue", src: []byte(`<?xml v="1" encoding="utf-8"?><a/>`), err: ErrMalformed},
		{name: "unterminated", src: []byte(`<?xml version="1.0" encoding="utf-8`), err: ErrMalformed},
		{name: "unquoted", src: []byte(`<?xml version="1.0" encoding=utf-8?><a/>`), err: ErrMalformed},
		{name: "quoted-equals", src: []byte(`<?xml version="1=0" encoding="utf-8"?><a/>`)},
		{name: "short", src: []byte(`<a`), err: io.ErrUnexpectedEOF},
		{name: "equals-near-start", src: []byte("<?=" + strings.Repeat(" ", 25) + "=\"utf-8\"?><a/>")},
		{name: "equals-near-start-utf16", src: le("<?=" + strings.Repeat(" ", 25) + "=\"utf-16\"?><a/>"), err: ErrDeclarationRequired},
		{name: "expected-mismatch", src: be(`<?xml version="1.0"?>`), expected: UTF8, err: ErrEncodingMismatch},
	}
	for i := range run {
		t.Run(run[i].name, func(t *testing.T) {
			var opts []Option
			if run[i].expected != None {
				opts = append(opts, WithExpected(run[i].expected))
			}
			_, _, err := readAll(t, run[i].src, opts...)
			if run[i].err == nil {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			if !errors.Is(err, run[i].err) {
				t.Fatalf("got %v, want %v", err, run[i].err)
			}
			if run[i].declared != "" {
				var me *MismatchError
				if !errors.As(err, &me) {
					t.Fatalf("%T is not a *MismatchError", err)
				}
				if me.Declared != run[i].declared {
					t.Errorf("declared %q, want %q", me.Declared, run[i].declared)
				}
			}
		})
	}
}

func TestExpectedMismatch(t *testing.T) {
	src := append([]byte{0xFE, 0xFF}, encode16(`<?xml version="1.0" encoding="utf-16"?>`, binary.BigEndian)...)
	_, err := NewReader(bytes.NewReader(src), WithExpected(UTF8))
	var me *MismatchError
	if !errors.As(err, &me) {
		t.Fatalf("got %v", err)
	}
	if me.Expected != UTF8 || me.Actual != UTF16BE {
		t.Errorf("got %+v", me)
	}
	msg := err.Error()
	if !strings.Contains(msg, "utf-8") || !strings.Contains(msg, "utf-16BE") {
		t.Errorf("message %q does not name both encodings", msg)
	}
}

func TestSurrogateChunks(t *testing.T) {
	decl := `<?xml version="1.0" encoding="utf-16"?>`
	// place a surrogate pair so that its first half
	// ends the initial chunk exactly
	pad := chunkBytes/2 - 1 - len(decl)
	var sb strings.Builder
	sb.WriteString(decl)
	sb.WriteString(strings.Repeat("a", pad))
	for i := 0; i < 400; i++ {
		sb.WriteString("\U0001F600")
		if i%3 == 0 {
			sb.WriteByte('x')
		}
	}
	doc := sb.String()
	for _, tc := range []struct {
		bom   []byte
		order binary.AppendByteOrder
	}{
		{[]byte{0xFF, 0xFE}, binary.LittleEndian},
		{[]byte{0xFE, 0xFF}, binary.BigEndian},
	} {
		src := append(append([]byte(nil), tc.bom...), encode16(doc, tc.order)...)
		for _, slow := range []bool{false, true} {
			var in io.Reader = bytes.NewReader(src)
			if slow {
				in = iotest.OneByteReader(in)
			}
			r, err := NewReader(in)
			if err != nil {
				t.Fatal(err)
			}
			out, err := io.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
			if string(out) != doc {
				t.Errorf("%s (slow=%v): output differs", r.Encoding(), slow)
			}
		}
	}
}

func TestLoneSurrogate(t *testing.T) {
	src := append([]byte{0xFF, 0xFE}, encode16(`<?xml version="1.0" encoding="utf-16"?><a>`, binary.LittleEndian)...)
	src = binary.LittleEndian.AppendUint16(src, 0xDC00)
	src = append(src, encode16("</a>", binary.LittleEndian)...)
	_, err := NewReader(bytes.NewReader(src))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got %v", err)
	}
	if !errors.Is(err, ErrMalformed) {
		t.Error("not ErrMalformed")
	}
	if !bytes.Equal(de.Bytes, []byte{0x00, 0xDC}) {
		t.Errorf("bytes % x", de.Bytes)
	}
}

func TestTruncatedSurrogate(t *testing.T) {
	src := []byte{0xFF, 0xFE}
	src = append(src, encode16("<a>", binary.LittleEndian)...)
	src = binary.LittleEndian.AppendUint16(src, 0xD83D)
	_, err := NewReader(bytes.NewReader(src), WithExpected(UTF16LE))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("got %v", err)
	}
}

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (c *closeBuffer) Close() error {
	c.closed = true
	return nil
}

func TestWriter(t *testing.T) {
	text := "<a>héllo \U0001F600</a>"
	for _, tc := range []struct {
		enc   Encoding
		bom   bool
		order binary.AppendByteOrder
	}{
		{UTF16LE, true, binary.LittleEndian},
		{UTF16LE, false, binary.LittleEndian},
		{UTF16BE, true, binary.BigEndian},
		{UTF8, true, nil},
	} {
		var dst closeBuffer
		w, err := NewWriter(&dst, tc.enc, tc.bom)
		if err != nil {
			t.Fatal(err)
		}
		// split every multi-byte sequence
		for i := 0; i < len(text); i++ {
			if _, err := w.Write([]byte{text[i]}); err != nil {
				t.Fatal(err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		if !dst.closed {
			t.Error("destination not closed")
		}
		var want []byte
		if tc.enc == UTF8 {
			want = []byte(text)
		} else {
			if tc.bom {
				want = tc.enc.BOM()
			}
			want = append(want, encode16(text, tc.order)...)
		}
		if !bytes.Equal(dst.Bytes(), want) {
			t.Errorf("%s bom=%v: got % x, want % x", tc.enc, tc.bom, dst.Bytes(), want)
		}

		r, err := NewReader(bytes.NewReader(dst.Bytes()), WithExpected(tc.enc))
		if err != nil {
			t.Fatal(err)
		}
		back, err := io.ReadAll(r)
		if err != nil {
			t.Fatal(err)
		}
		if string(back) != text {
			t.Errorf("%s: round trip got %q", tc.enc, back)
		}
	}
}

func TestWriterInvalid(t *testing.T) {
	var dst bytes.Buffer
	w, err := NewWriter(&dst, UTF16LE, false)
	if err != nil {
		t.Fatal(err)
	}
	_, err = w.Write([]byte{'a', 0xFF, 'b'})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("got %v", err)
	}

	w, err = NewWriter(&dst, UTF16BE, false)
	if err != nil {
		t.Fatal(err)
	}
	// incomplete sequence at the end
	if _, err := w.Write([]byte{'a', 0xE2, 0x82}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); !errors.Is(err, ErrMalformed) {
		t.Errorf("close: got %v", err)
	}

	if _, err := NewWriter(&dst, None, false); err == nil {
		t.Error("expected an error for None")
	}
}

func TestParseEncoding(t *testing.T) {
	for _, tc := range []struct {
		in  string
		enc Encoding
	}{
		{"UTF-8", UTF8},
		{"utf8", UTF8},
		{"utf-16le", UTF16LE},
		{"UTF-16BE", UTF16BE},
	} {
		enc, err := ParseEncoding(tc.in)
		if err != nil {
			t.Fatal(err)
		}
		if enc != tc.enc {
			t.Errorf("%s: got %s", tc.in, enc)
		}
	}
	if _, err := ParseEncoding("ebcdic"); err == nil {
		t.Error("expected an error")
	}
}
