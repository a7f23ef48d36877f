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
	"io"
)

// nodeWriterBufferSize is the size of the
// buffer records are assembled in.
const nodeWriterBufferSize = 512

// NodeWriter buffers encoded records in front
// of an io.Writer. Writes of at least the buffer
// size go straight to the underlying writer.
//
// Once a write to the underlying writer fails,
// every subsequent write returns the same error.
type NodeWriter struct {
	w       io.Writer
	buf     []byte
	err     error
	flushes int // number of times buf was emptied
}

// NewNodeWriter returns a NodeWriter writing to w.
func NewNodeWriter(w io.Writer) *NodeWriter {
	n := &NodeWriter{}
	n.Reset(w)
	return n
}

// Reset discards buffered data and any
// error and directs output to w.
func (n *NodeWriter) Reset(w io.Writer) {
	if n.buf == nil {
		n.buf = make([]byte, 0, nodeWriterBufferSize)
	}
	n.w = w
	n.buf = n.buf[:0]
	n.err = nil
}

// Buffered returns the number of buffered bytes.
func (n *NodeWriter) Buffered() int { return len(n.buf) }

// Err returns the first write error, if any.
func (n *NodeWriter) Err() error { return n.err }

// reserve makes room for count bytes at the end of
// the buffer and returns the offset of that space.
// count must not exceed the buffer size.
func (n *NodeWriter) reserve(count int) int {
	if count < 0 || count > nodeWriterBufferSize {
		panic("nbfx: invalid reservation")
	}
	if len(n.buf)+count > cap(n.buf) {
		n.flushBuffer()
	}
	off := len(n.buf)
	n.buf = n.buf[:off+count]
	return off
}

func (n *NodeWriter) flushBuffer() error {
	if n.err != nil {
		n.buf = n.buf[:0]
		n.flushes++
		return n.err
	}
	if len(n.buf) == 0 {
		return nil
	}
	_, n.err = n.w.Write(n.buf)
	n.buf = n.buf[:0]
	n.flushes++
	return n.err
}

// WriteByte buffers one byte.
func (n *NodeWriter) WriteByte(b byte) error {
	off := n.reserve(1)
	n.buf[off] = b
	return n.err
}

// Write implements io.Writer.
func (n *NodeWriter) Write(p []byte) (int, error) {
	if n.err != nil {
		return 0, n.err
	}
	if len(p) < nodeWriterBufferSize {
		off := n.reserve(len(p))
		copy(n.buf[off:], p)
		return len(p), n.err
	}
	if err := n.flushBuffer(); err != nil {
		return 0, err
	}
	var w int
	w, n.err = n.w.Write(p)
	return w, n.err
}

// WriteString buffers the UTF-8 bytes of s.
func (n *NodeWriter) WriteString(s string) (int, error) {
	if n.err != nil {
		return 0, n.err
	}
	if len(s) < nodeWriterBufferSize {
		off := n.reserve(len(s))
		copy(n.buf[off:], s)
		return len(s), n.err
	}
	if err := n.flushBuffer(); err != nil {
		return 0, err
	}
	var w int
	w, n.err = io.WriteString(n.w, s)
	return w, n.err
}

// Flush writes buffered data and flushes
// the underlying writer if it can be flushed.
func (n *NodeWriter) Flush() error {
	if err := n.flushBuffer(); err != nil {
		return err
	}
	if f, ok := n.w.(interface{ Flush() error }); ok {
		n.err = f.Flush()
	}
	return n.err
}

// Close flushes n and closes the underlying
// writer if it is an io.Closer.
func (n *NodeWriter) Close() error {
	err := n.Flush()
	if c, ok := n.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	n.w = nil
	return err
}
