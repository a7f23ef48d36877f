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

// Package xmlenc detects the text encoding of an
// XML document from its byte order mark and XML
// declaration, and converts between that encoding
// and UTF-8.
//
// Only UTF-8, UTF-16LE and UTF-16BE are supported.
package xmlenc

import (
	"errors"
	"fmt"
	"log"
	"strings"
)

// Encoding is a supported XML text encoding.
type Encoding uint8

const (
	// None means no encoding was supplied.
	None Encoding = iota
	UTF8
	UTF16LE
	UTF16BE
)

func (e Encoding) String() string {
	switch e {
	case None:
		return "none"
	case UTF8:
		return "utf-8"
	case UTF16LE:
		return "utf-16LE"
	case UTF16BE:
		return "utf-16BE"
	}
	return fmt.Sprintf("Encoding(%d)", uint8(e))
}

// BOM returns the byte order mark of e.
func (e Encoding) BOM() []byte {
	switch e {
	case UTF8:
		return []byte{0xEF, 0xBB, 0xBF}
	case UTF16LE:
		return []byte{0xFF, 0xFE}
	case UTF16BE:
		return []byte{0xFE, 0xFF}
	}
	return nil
}

// ParseEncoding returns the Encoding with the given
// name. Names are matched without regard to ASCII case.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		return UTF8, nil
	case "utf-16le", "utf16le":
		return UTF16LE, nil
	case "utf-16be", "utf16be":
		return UTF16BE, nil
	}
	return None, fmt.Errorf("xmlenc: unsupported encoding %q", name)
}

var (
	// ErrEncodingMismatch is returned when the byte
	// order mark, the declaration and the expected
	// encoding disagree.
	ErrEncodingMismatch = errors.New("xmlenc: encoding mismatch")
	// ErrDeclarationRequired is returned when the encoding
	// cannot be inferred without an XML declaration and
	// none is present. It also matches ErrEncodingMismatch.
	ErrDeclarationRequired = fmt.Errorf("xmlenc: xml declaration required: %w", ErrEncodingMismatch)
	// ErrMalformed is returned for a bad byte order
	// mark, a malformed declaration, or text that is
	// not valid in its encoding.
	ErrMalformed = errors.New("xmlenc: malformed input")
)

// MismatchError describes an encoding mismatch.
type MismatchError struct {
	// Expected is the encoding that was required.
	Expected Encoding
	// Actual is the encoding that was found.
	Actual Encoding
	// Declared is the literal encoding name from
	// the XML declaration, if the mismatch came
	// from the declaration.
	Declared string
}

func (e *MismatchError) Error() string {
	if e.Declared != "" {
		return fmt.Sprintf("xmlenc: declared encoding %q does not match %s", e.Declared, e.Actual)
	}
	return fmt.Sprintf("xmlenc: expected encoding %s but found %s", e.Expected, e.Actual)
}

func (e *MismatchError) Unwrap() error { return ErrEncodingMismatch }

// DecodeError reports bytes that are
// not valid in their claimed encoding.
type DecodeError struct {
	Encoding Encoding
	Bytes    []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("xmlenc: invalid %s sequence % x", e.Encoding, e.Bytes)
}

func (e *DecodeError) Unwrap() error { return ErrMalformed }

func malformed(what string) error {
	return fmt.Errorf("%w: %s", ErrMalformed, what)
}

// Option configures a Reader or Writer.
type Option func(*options)

type options struct {
	expected Encoding
	logger   *log.Logger
}

// WithExpected supplies an out-of-band encoding.
// The stream must be in that encoding, and an XML
// declaration becomes optional.
func WithExpected(e Encoding) Option {
	return func(o *options) { o.expected = e }
}

// WithLogger sets a logger for diagnostic messages.
// By default nothing is logged.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func (o *options) logf(f string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(f, args...)
	}
}
