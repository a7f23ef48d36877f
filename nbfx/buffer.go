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
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/SnellerInc/xmlbin/date"
	"github.com/SnellerInc/xmlbin/ints"
	"github.com/google/uuid"
)

const (
	// initial size of the buffer used
	// when reading from a stream
	streamBufferSize = 128
	// stream buffers larger than this
	// are not kept across Close
	maxRetainedBuffer = 4096
)

// BufferReader is a bounds checked cursor over
// binary XML held in a byte slice or read
// incrementally from an io.Reader.
//
// Bytes returned from a BufferReader (and the
// handles it fills in) alias its buffer and are
// only valid until the next read.
//
// A BufferReader is not safe for concurrent use.
type BufferReader struct {
	buf       []byte
	offsetMin int
	offset    int
	offsetMax int

	// reads may not extend past winOffsetMax
	winOffset    int
	winOffsetMax int

	stream    io.Reader
	streamBuf []byte

	dict    Dictionary
	session Dictionary

	grows int // number of buffer reallocations
}

// NewBufferReader returns a reader over buf.
// Either dictionary may be nil.
func NewBufferReader(buf []byte, dict, session Dictionary) *BufferReader {
	r := &BufferReader{}
	r.SetBuffer(buf, dict, session)
	return r
}

// SetBuffer resets r to read from buf.
// The static dictionary resolves even keys and
// the session dictionary resolves odd keys;
// either may be nil.
func (r *BufferReader) SetBuffer(buf []byte, dict, session Dictionary) {
	r.set(nil, buf, len(buf), dict, session)
	r.winOffset = 0
	r.winOffsetMax = len(buf)
}

// SetStream resets r to read from src.
// The stream is read no further than needed
// to satisfy each read. Reads are limited to
// the initial stream buffer size until the
// caller widens the window with SetWindow.
func (r *BufferReader) SetStream(src io.Reader, dict, session Dictionary) {
	if r.streamBuf == nil {
		r.streamBuf = make([]byte, streamBufferSize)
	}
	r.set(src, r.streamBuf, 0, dict, session)
	r.winOffset = 0
	r.winOffsetMax = streamBufferSize
}

func (r *BufferReader) set(src io.Reader, buf []byte, n int, dict, session Dictionary) {
	r.stream = src
	r.buf = buf
	r.offsetMin = 0
	r.offset = 0
	r.offsetMax = n
	r.dict = dict
	r.session = session
}

// Close releases the buffer and closes the
// underlying stream if it is an io.Closer.
func (r *BufferReader) Close() error {
	if len(r.streamBuf) > maxRetainedBuffer {
		r.streamBuf = nil
	}
	var err error
	if c, ok := r.stream.(io.Closer); ok {
		err = c.Close()
	}
	r.set(nil, nil, 0, nil, nil)
	r.winOffset, r.winOffsetMax = 0, 0
	return err
}

// Dictionary returns the static dictionary.
func (r *BufferReader) Dictionary() Dictionary { return r.dict }

// Session returns the session dictionary.
func (r *BufferReader) Session() Dictionary { return r.session }

// Offset returns the position of the cursor.
func (r *BufferReader) Offset() int { return r.offset }

// SetOffset moves the cursor to off, which must
// lie within the bytes already buffered.
func (r *BufferReader) SetOffset(off int) {
	if off < r.offsetMin || off > r.offsetMax {
		panic(fmt.Sprintf("nbfx: offset %d outside of [%d, %d]", off, r.offsetMin, r.offsetMax))
	}
	r.offset = off
}

// Buffered returns the number of bytes
// available without reading from the stream.
func (r *BufferReader) Buffered() int { return r.offsetMax - r.offset }

// EOF reports whether no more input is available.
// A read at EOF reports the reason.
func (r *BufferReader) EOF() bool {
	if r.offset < r.offsetMax {
		return false
	}
	return r.ensure(1) != nil
}

// ensure guarantees that count bytes are
// buffered at the cursor.
func (r *BufferReader) ensure(count int) error {
	need := r.offset + count
	if need <= r.offsetMax {
		return nil
	}
	if r.stream == nil {
		return io.ErrUnexpectedEOF
	}
	if need > r.winOffsetMax {
		return &QuotaError{Limit: r.winOffsetMax - r.winOffset}
	}
	if need > len(r.buf) {
		nb := make([]byte, ints.Grow(len(r.buf), need))
		copy(nb, r.buf[:r.offsetMax])
		r.buf = nb
		r.streamBuf = nb
		r.grows++
	}
	n, err := io.ReadFull(r.stream, r.buf[r.offsetMax:need])
	r.offsetMax += n
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

// EnsureBytes guarantees that count bytes are
// available at the cursor, growing the buffer and
// reading from the stream as necessary. It fails
// with a *QuotaError if that would exceed the window.
func (r *BufferReader) EnsureBytes(count int) error {
	if count < 0 {
		panic("nbfx: EnsureBytes with negative count")
	}
	return r.ensure(count)
}

// GetBuffer returns the next count bytes
// without advancing the cursor.
func (r *BufferReader) GetBuffer(count int) ([]byte, error) {
	if err := r.EnsureBytes(count); err != nil {
		return nil, err
	}
	return r.buf[r.offset : r.offset+count : r.offset+count], nil
}

// ReadBytes returns the next count bytes
// and advances past them.
func (r *BufferReader) ReadBytes(count int) ([]byte, error) {
	b, err := r.GetBuffer(count)
	if err != nil {
		return nil, err
	}
	r.offset += count
	return b, nil
}

// GetByte returns the byte at the cursor
// without advancing.
func (r *BufferReader) GetByte() (byte, error) {
	if r.offset < r.offsetMax {
		return r.buf[r.offset], nil
	}
	if err := r.ensure(1); err != nil {
		return 0, err
	}
	return r.buf[r.offset], nil
}

// SkipByte advances the cursor by one byte.
func (r *BufferReader) SkipByte() error {
	return r.Advance(1)
}

// Advance moves the cursor forward by count bytes.
func (r *BufferReader) Advance(count int) error {
	if err := r.EnsureBytes(count); err != nil {
		return err
	}
	r.offset += count
	return nil
}

// SetWindow limits the data retained for one logical
// read to [offset, offset+length), where offset is at
// or before the cursor. Unconsumed stream
// data is moved down to offset so that the buffer
// does not grow without bound across reads. Fixed
// buffers are never moved.
func (r *BufferReader) SetWindow(offset, length int) {
	if length < 0 || offset < r.offsetMin || offset > r.offset {
		panic("nbfx: invalid window")
	}
	length = ints.Clamp(length, 0, math.MaxInt-offset)
	if r.stream == nil {
		r.winOffset = offset
		r.winOffsetMax = max(offset+length, r.offsetMax)
		return
	}
	if r.offset != offset {
		n := copy(r.buf[offset:], r.buf[r.offset:r.offsetMax])
		r.offsetMax = offset + n
		r.offset = offset
	}
	r.winOffset = offset
	r.winOffsetMax = max(offset+length, r.offsetMax)
}

// ReadNodeType reads a record tag.
func (r *BufferReader) ReadNodeType() (NodeType, error) {
	b, err := r.ReadUInt8()
	return NodeType(b), err
}

// PeekNodeType returns the next record
// tag without consuming it.
func (r *BufferReader) PeekNodeType() (NodeType, error) {
	b, err := r.GetByte()
	return NodeType(b), err
}

func (r *BufferReader) ReadUInt8() (byte, error) {
	if r.offset < r.offsetMax {
		b := r.buf[r.offset]
		r.offset++
		return b, nil
	}
	if err := r.ensure(1); err != nil {
		return 0, err
	}
	b := r.buf[r.offset]
	r.offset++
	return b, nil
}

func (r *BufferReader) ReadInt8() (int8, error) {
	b, err := r.ReadUInt8()
	return int8(b), err
}

func (r *BufferReader) ReadUInt16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *BufferReader) ReadInt16() (int16, error) {
	v, err := r.ReadUInt16()
	return int16(v), err
}

func (r *BufferReader) ReadInt32() (int32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// ReadUInt31 reads a 32-bit length that
// must not be negative.
func (r *BufferReader) ReadUInt31() (int, error) {
	v, err := r.ReadInt32()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, bad("negative length %d", v)
	}
	return int(v), nil
}

func (r *BufferReader) ReadInt64() (int64, error) {
	v, err := r.ReadUInt64()
	return int64(v), err
}

func (r *BufferReader) ReadUInt64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *BufferReader) ReadSingle() (float32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (r *BufferReader) ReadDouble() (float64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadMultiByteUInt31 reads a little-endian base 128
// integer of at most 5 bytes holding 31 bits.
func (r *BufferReader) ReadMultiByteUInt31() (int, error) {
	v := 0
	for shift := 0; shift < 28; shift += 7 {
		b, err := r.ReadUInt8()
		if err != nil {
			return 0, err
		}
		v |= int(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	b, err := r.ReadUInt8()
	if err != nil {
		return 0, err
	}
	if b&0xF8 != 0 {
		return 0, bad("multi-byte integer overflows 31 bits")
	}
	return v | int(b)<<28, nil
}

// ReadDecimal reads a 16 byte decimal,
// validating its sign and scale.
func (r *BufferReader) ReadDecimal() (Decimal, error) {
	b, err := r.ReadBytes(16)
	if err != nil {
		return Decimal{}, err
	}
	d, ok := decimalFromWire(b)
	if !ok {
		return Decimal{}, bad("invalid decimal flags %#08x", binary.LittleEndian.Uint32(b))
	}
	return d, nil
}

func (r *BufferReader) ReadGUID() (uuid.UUID, error) {
	b, err := r.ReadBytes(16)
	if err != nil {
		return uuid.UUID{}, err
	}
	return guidFromWire(b), nil
}

func (r *BufferReader) ReadUniqueID() (UniqueID, error) {
	id, err := r.ReadGUID()
	if err != nil {
		return UniqueID{}, err
	}
	return NewUniqueID(id), nil
}

// ReadDateTime reads the 64-bit binary
// form of a DateTime.
func (r *BufferReader) ReadDateTime() (date.DateTime, error) {
	v, err := r.ReadInt64()
	if err != nil {
		return date.DateTime{}, err
	}
	d, err := date.FromBinary(v)
	if err != nil {
		return date.DateTime{}, convErr(strconv.FormatInt(v, 10), "DateTime", err)
	}
	return d, nil
}

func (r *BufferReader) ReadTimeSpan() (date.TimeSpan, error) {
	v, err := r.ReadInt64()
	return date.TimeSpan(v), err
}

// ReadUTF8String reads count bytes as UTF-8.
func (r *BufferReader) ReadUTF8String(count int) (string, error) {
	b, err := r.ReadBytes(count)
	if err != nil {
		return "", err
	}
	return utf8String(b), nil
}

// ReadDictionaryKey reads a dictionary key and
// checks that it resolves. Odd keys refer to
// the session dictionary, even keys to the
// static dictionary; the logical key is key>>1.
func (r *BufferReader) ReadDictionaryKey() (int, error) {
	key, err := r.ReadMultiByteUInt31()
	if err != nil {
		return 0, err
	}
	if _, err := r.GetDictionaryString(key); err != nil {
		return 0, err
	}
	return key, nil
}

// GetDictionaryString resolves a wire key.
func (r *BufferReader) GetDictionaryString(key int) (*DictionaryString, error) {
	session := key&1 != 0
	d := r.dict
	if session {
		d = r.session
	}
	if d == nil {
		if session {
			return nil, bad("session dictionary key %d with no session", key>>1)
		}
		return nil, bad("static dictionary key %d with no dictionary", key>>1)
	}
	ds, ok := d.Lookup(key >> 1)
	if !ok {
		return nil, keyError(key>>1, session)
	}
	return ds, nil
}

// ReadValue reads the payload of the text record
// tagged t into v. Both forms of each text record
// (with and without the trailing end element)
// are accepted.
func (r *BufferReader) ReadValue(t NodeType, v *ValueHandle) error {
	v.r = r
	switch t.Base() {
	case EmptyText:
		v.SetValue(EmptyValue)
	case ZeroText:
		v.SetValue(ZeroValue)
	case OneText:
		v.SetValue(OneValue)
	case TrueText:
		v.SetValue(TrueValue)
	case FalseText:
		v.SetValue(FalseValue)
	case BoolText:
		b, err := r.ReadUInt8()
		if err != nil {
			return err
		}
		if b != 0 {
			v.SetValue(TrueValue)
		} else {
			v.SetValue(FalseValue)
		}
	case Int8Text:
		return r.readFixed(v, Int8Value, 1)
	case Int16Text:
		return r.readFixed(v, Int16Value, 2)
	case Int32Text:
		return r.readFixed(v, Int32Value, 4)
	case Int64Text:
		return r.readFixed(v, Int64Value, 8)
	case UInt64Text:
		return r.readFixed(v, UInt64Value, 8)
	case FloatText:
		return r.readFixed(v, SingleValue, 4)
	case DoubleText:
		return r.readFixed(v, DoubleValue, 8)
	case DecimalText:
		off := r.offset
		if _, err := r.ReadDecimal(); err != nil {
			return err
		}
		v.SetBufferValue(DecimalValue, off, 16)
	case DateTimeText:
		return r.readFixed(v, DateTimeValue, 8)
	case TimeSpanText:
		return r.readFixed(v, TimeSpanValue, 8)
	case GUIDText:
		return r.readFixed(v, GUIDValue, 16)
	case UniqueIDText:
		return r.readFixed(v, UniqueIDValue, 16)
	case Chars8Text:
		n, err := r.ReadUInt8()
		if err != nil {
			return err
		}
		return r.readFixed(v, UTF8Value, int(n))
	case Chars16Text:
		n, err := r.ReadUInt16()
		if err != nil {
			return err
		}
		return r.readFixed(v, UTF8Value, int(n))
	case Chars32Text:
		n, err := r.ReadUInt31()
		if err != nil {
			return err
		}
		return r.readFixed(v, UTF8Value, n)
	case Bytes8Text:
		n, err := r.ReadUInt8()
		if err != nil {
			return err
		}
		return r.readFixed(v, Base64Value, int(n))
	case Bytes16Text:
		n, err := r.ReadUInt16()
		if err != nil {
			return err
		}
		return r.readFixed(v, Base64Value, int(n))
	case Bytes32Text:
		n, err := r.ReadUInt31()
		if err != nil {
			return err
		}
		return r.readFixed(v, Base64Value, n)
	case UnicodeChars8Text:
		n, err := r.ReadUInt8()
		if err != nil {
			return err
		}
		return r.readUnicode(v, int(n))
	case UnicodeChars16Text:
		n, err := r.ReadUInt16()
		if err != nil {
			return err
		}
		return r.readUnicode(v, int(n))
	case UnicodeChars32Text:
		n, err := r.ReadUInt31()
		if err != nil {
			return err
		}
		return r.readUnicode(v, n)
	case DictionaryText:
		key, err := r.ReadDictionaryKey()
		if err != nil {
			return err
		}
		v.SetDictionaryValue(key)
	case QNameDictionaryText:
		return r.ReadQName(v)
	case StartListText:
		return r.ReadList(v)
	default:
		return bad("unexpected %s record in value", t)
	}
	return nil
}

func (r *BufferReader) readFixed(v *ValueHandle, kind ValueKind, n int) error {
	off := r.offset
	if err := r.Advance(n); err != nil {
		return err
	}
	v.SetBufferValue(kind, off, n)
	return nil
}

func (r *BufferReader) readUnicode(v *ValueHandle, n int) error {
	if n&1 != 0 {
		return bad("odd UTF-16 byte length %d", n)
	}
	return r.readFixed(v, UnicodeValue, n)
}

// ReadList reads list items up to the terminating
// EndListText record. Lists do not nest.
func (r *BufferReader) ReadList(v *ValueHandle) error {
	var item ValueHandle
	off := r.offset
	count := 0
	for {
		t, err := r.ReadNodeType()
		if err != nil {
			return err
		}
		switch t.Base() {
		case StartListText:
			return bad("nested list")
		case EndListText:
			v.r = r
			v.SetBufferValue(ListValue, off, count)
			return nil
		}
		if err := r.ReadValue(t, &item); err != nil {
			return err
		}
		count++
	}
}

// ReadQName reads a QNameDictionaryText payload:
// a prefix letter index and a dictionary key.
func (r *BufferReader) ReadQName(v *ValueHandle) error {
	prefix, err := r.ReadUInt8()
	if err != nil {
		return err
	}
	if prefix >= 26 {
		return bad("qualified name prefix index %d", prefix)
	}
	key, err := r.ReadDictionaryKey()
	if err != nil {
		return err
	}
	v.r = r
	v.SetQNameValue(int(prefix), key)
	return nil
}

// getList decodes the count list items
// stored at offset.
func (r *BufferReader) getList(offset, count int) ([]any, error) {
	saved := r.offset
	defer func() { r.offset = saved }()
	r.offset = offset
	var item ValueHandle
	out := make([]any, 0, count)
	for i := 0; i < count; i++ {
		t, err := r.ReadNodeType()
		if err != nil {
			return nil, err
		}
		if err := r.ReadValue(t, &item); err != nil {
			return nil, err
		}
		obj, err := item.ToObject()
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// ReadName reads a length prefixed UTF-8 name into s.
func (r *BufferReader) ReadName(s *StringHandle) error {
	n, err := r.ReadMultiByteUInt31()
	if err != nil {
		return err
	}
	off := r.offset
	if err := r.Advance(n); err != nil {
		return err
	}
	s.r = r
	s.SetUTF8Value(off, n)
	return nil
}

// ReadDictionaryName reads a dictionary key into s.
func (r *BufferReader) ReadDictionaryName(s *StringHandle) error {
	key, err := r.ReadDictionaryKey()
	if err != nil {
		return err
	}
	s.r = r
	s.SetDictionaryValue(key)
	return nil
}

// ReadPrefix reads a length prefixed namespace prefix into p.
func (r *BufferReader) ReadPrefix(p *PrefixHandle) error {
	n, err := r.ReadMultiByteUInt31()
	if err != nil {
		return err
	}
	off := r.offset
	if err := r.Advance(n); err != nil {
		return err
	}
	p.r = r
	p.SetBufferValue(off, n)
	return nil
}

func (r *BufferReader) bytesAt(off, n int) []byte {
	return r.buf[off : off+n]
}

// equalKeys compares the strings behind two wire keys.
func (r *BufferReader) equalKeys(key1 int, r2 *BufferReader, key2 int) (bool, error) {
	if key1 == key2 && (r == r2 || r.dict == r2.dict && r.session == r2.session) {
		return true, nil
	}
	s1, err := r.GetDictionaryString(key1)
	if err != nil {
		return false, err
	}
	s2, err := r2.GetDictionaryString(key2)
	if err != nil {
		return false, err
	}
	return s1.value == s2.value, nil
}
