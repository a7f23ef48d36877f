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
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/SnellerInc/xmlbin/date"
	"github.com/SnellerInc/xmlbin/ints"
	"github.com/google/uuid"
)

// ValueKind identifies the representation
// held by a ValueHandle.
type ValueKind uint8

const (
	EmptyValue ValueKind = iota
	TrueValue
	FalseValue
	ZeroValue
	OneValue
	Int8Value
	Int16Value
	Int32Value
	Int64Value
	UInt64Value
	SingleValue
	DoubleValue
	DecimalValue
	DateTimeValue
	TimeSpanValue
	GUIDValue
	UniqueIDValue
	UTF8Value
	EscapedUTF8Value
	Base64Value
	DictionaryValue
	ListValue
	CharValue
	UnicodeValue
	QNameValue
	JSONConstValue
)

var valueKindNames = [...]string{
	EmptyValue:       "Empty",
	TrueValue:        "True",
	FalseValue:       "False",
	ZeroValue:        "Zero",
	OneValue:         "One",
	Int8Value:        "Int8",
	Int16Value:       "Int16",
	Int32Value:       "Int32",
	Int64Value:       "Int64",
	UInt64Value:      "UInt64",
	SingleValue:      "Single",
	DoubleValue:      "Double",
	DecimalValue:     "Decimal",
	DateTimeValue:    "DateTime",
	TimeSpanValue:    "TimeSpan",
	GUIDValue:        "Guid",
	UniqueIDValue:    "UniqueId",
	UTF8Value:        "UTF8",
	EscapedUTF8Value: "EscapedUTF8",
	Base64Value:      "Base64",
	DictionaryValue:  "Dictionary",
	ListValue:        "List",
	CharValue:        "Char",
	UnicodeValue:     "Unicode",
	QNameValue:       "QName",
	JSONConstValue:   "ConstString",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", uint8(k))
}

// JSONConst names one of the fixed strings
// a JSONConstValue can hold.
type JSONConst uint8

const (
	JSONString JSONConst = iota
	JSONNumber
	JSONArray
	JSONObject
	JSONBoolean
	JSONNull
)

var jsonConsts = [...]string{"string", "number", "array", "object", "boolean", "null"}

func (c JSONConst) String() string { return jsonConsts[c] }

// ValueHandle is a typed view of a value. Depending
// on its kind it refers to bytes in the buffer of a
// BufferReader, a dictionary key, or inline data.
// Nothing is decoded until a conversion is requested.
type ValueHandle struct {
	r      *BufferReader
	kind   ValueKind
	offset int // buffer offset, dictionary key, rune or constant
	length int // byte length, list item count or qname prefix
}

// NewValueHandle returns an empty value bound to r.
func NewValueHandle(r *BufferReader) *ValueHandle {
	return &ValueHandle{r: r}
}

// Kind returns the current representation of v.
func (v *ValueHandle) Kind() ValueKind { return v.kind }

// SetValue sets v to a kind that carries no payload
// (Empty, True, False, Zero, One).
func (v *ValueHandle) SetValue(kind ValueKind) {
	v.kind = kind
	v.offset, v.length = 0, 0
}

// SetBufferValue sets v to length bytes of the
// reader buffer starting at offset.
// For ListValue length is the number of items.
func (v *ValueHandle) SetBufferValue(kind ValueKind, offset, length int) {
	v.kind = kind
	v.offset, v.length = offset, length
}

// SetDictionaryValue sets v to the string behind a wire key.
func (v *ValueHandle) SetDictionaryValue(key int) {
	v.kind = DictionaryValue
	v.offset, v.length = key, 0
}

// SetCharValue sets v to a single character.
func (v *ValueHandle) SetCharValue(c rune) {
	v.kind = CharValue
	v.offset, v.length = int(c), 0
}

// SetQNameValue sets v to a qualified name made of
// a single letter prefix (0 for 'a') and a wire key.
func (v *ValueHandle) SetQNameValue(prefix, key int) {
	v.kind = QNameValue
	v.offset, v.length = key, prefix
}

// SetConstantValue sets v to one of the fixed strings.
func (v *ValueHandle) SetConstantValue(c JSONConst) {
	v.kind = JSONConstValue
	v.offset, v.length = int(c), 0
}

// CopyTo copies v into dst.
func (v *ValueHandle) CopyTo(dst *ValueHandle) { *dst = *v }

func (v *ValueHandle) bytes() []byte { return v.r.bytesAt(v.offset, v.length) }

func (v *ValueHandle) int8() int8     { return int8(v.r.buf[v.offset]) }
func (v *ValueHandle) int16() int16   { return int16(binary.LittleEndian.Uint16(v.bytes())) }
func (v *ValueHandle) int32() int32   { return int32(binary.LittleEndian.Uint32(v.bytes())) }
func (v *ValueHandle) int64() int64   { return int64(v.uint64()) }
func (v *ValueHandle) uint64() uint64 { return binary.LittleEndian.Uint64(v.bytes()) }

func (v *ValueHandle) single() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(v.bytes()))
}

func (v *ValueHandle) double() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(v.bytes()))
}

// text returns the textual form of v, without
// copying when v already holds UTF-8 text.
func (v *ValueHandle) text() ([]byte, error) {
	if v.kind == UTF8Value {
		return v.bytes(), nil
	}
	s, err := v.GetString()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (v *ValueHandle) fail(typ string, text []byte, err error) error {
	return convErr(string(text), typ, err)
}

// ToBool converts v to a bool. Int8 values 0 and 1
// convert directly; text must be true, false, 1 or 0.
func (v *ValueHandle) ToBool() (bool, error) {
	switch v.kind {
	case FalseValue:
		return false, nil
	case TrueValue:
		return true, nil
	case Int8Value:
		switch v.int8() {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	}
	b, err := v.text()
	if err != nil {
		return false, err
	}
	if x, ok := parseXMLBool(b); ok {
		return x, nil
	}
	return false, v.fail("Boolean", b, nil)
}

// ToInt32 converts v to an int32. Integers that fit
// convert directly; anything else is parsed as text.
func (v *ValueHandle) ToInt32() (int32, error) {
	switch v.kind {
	case ZeroValue:
		return 0, nil
	case OneValue:
		return 1, nil
	case Int8Value:
		return int32(v.int8()), nil
	case Int16Value:
		return int32(v.int16()), nil
	case Int32Value:
		return v.int32(), nil
	case Int64Value:
		if x := v.int64(); ints.Fits[int32](x) {
			return int32(x), nil
		}
	case UInt64Value:
		if x := v.uint64(); x <= math.MaxInt32 {
			return int32(x), nil
		}
	}
	b, err := v.text()
	if err != nil {
		return 0, err
	}
	x, err := parseXMLInt(b, 32)
	if err != nil {
		return 0, v.fail("Int32", b, err)
	}
	return int32(x), nil
}

// ToInt64 converts v to an int64.
func (v *ValueHandle) ToInt64() (int64, error) {
	switch v.kind {
	case ZeroValue:
		return 0, nil
	case OneValue:
		return 1, nil
	case Int8Value:
		return int64(v.int8()), nil
	case Int16Value:
		return int64(v.int16()), nil
	case Int32Value:
		return int64(v.int32()), nil
	case Int64Value:
		return v.int64(), nil
	case UInt64Value:
		if x := v.uint64(); x <= math.MaxInt64 {
			return int64(x), nil
		}
	}
	b, err := v.text()
	if err != nil {
		return 0, err
	}
	x, err := parseXMLInt(b, 64)
	if err != nil {
		return 0, v.fail("Int64", b, err)
	}
	return x, nil
}

// ToUint64 converts v to a uint64. Signed
// integers convert directly when not negative.
func (v *ValueHandle) ToUint64() (uint64, error) {
	switch v.kind {
	case UInt64Value:
		return v.uint64(), nil
	case ZeroValue, OneValue, Int8Value, Int16Value, Int32Value, Int64Value:
		x, err := v.ToInt64()
		if err == nil && x >= 0 {
			return uint64(x), nil
		}
	}
	b, err := v.text()
	if err != nil {
		return 0, err
	}
	x, err := parseXMLUint(b)
	if err != nil {
		return 0, v.fail("UInt64", b, err)
	}
	return x, nil
}

// ToFloat32 converts v to a float32. Doubles
// convert directly only when they are within
// float32 range or are not finite.
func (v *ValueHandle) ToFloat32() (float32, error) {
	switch v.kind {
	case SingleValue:
		return v.single(), nil
	case DoubleValue:
		d := v.double()
		if (d >= -math.MaxFloat32 && d <= math.MaxFloat32) || math.IsInf(d, 0) || math.IsNaN(d) {
			return float32(d), nil
		}
	case ZeroValue:
		return 0, nil
	case OneValue:
		return 1, nil
	case Int8Value:
		return float32(v.int8()), nil
	case Int16Value:
		return float32(v.int16()), nil
	}
	b, err := v.text()
	if err != nil {
		return 0, err
	}
	f, err := parseXMLFloat(b, 32)
	if err != nil {
		return 0, v.fail("Single", b, err)
	}
	return float32(f), nil
}

// ToFloat64 converts v to a float64.
func (v *ValueHandle) ToFloat64() (float64, error) {
	switch v.kind {
	case DoubleValue:
		return v.double(), nil
	case SingleValue:
		return float64(v.single()), nil
	case ZeroValue:
		return 0, nil
	case OneValue:
		return 1, nil
	case Int8Value:
		return float64(v.int8()), nil
	case Int16Value:
		return float64(v.int16()), nil
	case Int32Value:
		return float64(v.int32()), nil
	}
	b, err := v.text()
	if err != nil {
		return 0, err
	}
	f, err := parseXMLFloat(b, 64)
	if err != nil {
		return 0, v.fail("Double", b, err)
	}
	return f, nil
}

// ToDecimal converts v to a Decimal.
func (v *ValueHandle) ToDecimal() (Decimal, error) {
	switch v.kind {
	case DecimalValue:
		d, ok := decimalFromWire(v.bytes())
		if !ok {
			return Decimal{}, bad("invalid decimal flags")
		}
		return d, nil
	case ZeroValue, OneValue, Int8Value, Int16Value, Int32Value, Int64Value:
		x, err := v.ToInt64()
		if err != nil {
			return Decimal{}, err
		}
		return DecimalFromInt64(x), nil
	case UInt64Value:
		return DecimalFromUint64(v.uint64()), nil
	}
	b, err := v.text()
	if err != nil {
		return Decimal{}, err
	}
	d, ok := ParseDecimal(b)
	if !ok {
		return Decimal{}, v.fail("Decimal", b, nil)
	}
	return d, nil
}

// ToDateTime converts v to a DateTime.
func (v *ValueHandle) ToDateTime() (date.DateTime, error) {
	if v.kind == DateTimeValue {
		x := v.int64()
		d, err := date.FromBinary(x)
		if err != nil {
			return date.DateTime{}, convErr(strconv.FormatInt(x, 10), "DateTime", err)
		}
		return d, nil
	}
	b, err := v.text()
	if err != nil {
		return date.DateTime{}, err
	}
	d, ok := date.ParseDateTime(trimXMLSpace(b))
	if !ok {
		return date.DateTime{}, v.fail("DateTime", b, nil)
	}
	return d, nil
}

// ToTimeSpan converts v to a TimeSpan.
func (v *ValueHandle) ToTimeSpan() (date.TimeSpan, error) {
	if v.kind == TimeSpanValue {
		return date.TimeSpan(v.int64()), nil
	}
	b, err := v.text()
	if err != nil {
		return 0, err
	}
	ts, ok := date.ParseTimeSpan(trimXMLSpace(b))
	if !ok {
		return 0, v.fail("TimeSpan", b, nil)
	}
	return ts, nil
}

// ToGUID converts v to a GUID.
func (v *ValueHandle) ToGUID() (uuid.UUID, error) {
	if v.kind == GUIDValue {
		return guidFromWire(v.bytes()), nil
	}
	b, err := v.text()
	if err != nil {
		return uuid.UUID{}, err
	}
	id, err := uuid.ParseBytes(trimXMLSpace(b))
	if err != nil {
		return uuid.UUID{}, v.fail("Guid", b, err)
	}
	return id, nil
}

// ToUniqueID converts v to a UniqueID.
func (v *ValueHandle) ToUniqueID() (UniqueID, error) {
	if v.kind == UniqueIDValue {
		return NewUniqueID(guidFromWire(v.bytes())), nil
	}
	b, err := v.text()
	if err != nil {
		return UniqueID{}, err
	}
	id, err := ParseUniqueID(string(trimXMLSpace(b)))
	if err != nil {
		return UniqueID{}, v.fail("UniqueId", b, err)
	}
	return id, nil
}

// ToBytes returns a copy of binary content,
// or decodes text as base64.
func (v *ValueHandle) ToBytes() ([]byte, error) {
	if v.kind == Base64Value {
		return append([]byte(nil), v.bytes()...), nil
	}
	b, err := v.text()
	if err != nil {
		return nil, err
	}
	stripped := make([]byte, 0, len(b))
	for _, c := range b {
		if !isXMLSpace(c) {
			stripped = append(stripped, c)
		}
	}
	out := make([]byte, base64.StdEncoding.DecodedLen(len(stripped)))
	n, err := base64.StdEncoding.Decode(out, stripped)
	if err != nil {
		return nil, v.fail("Byte[]", b, err)
	}
	return out[:n], nil
}

// ToList decodes the items of a list value.
func (v *ValueHandle) ToList() ([]any, error) {
	if v.kind != ListValue {
		return nil, convErr(v.kind.String(), "List", nil)
	}
	return v.r.getList(v.offset, v.length)
}

// ToObject returns the natural Go value of v:
// bool, int32, int64, uint64, float32, float64,
// Decimal, date.DateTime, date.TimeSpan, uuid.UUID,
// UniqueID, []byte, []any or string.
func (v *ValueHandle) ToObject() (any, error) {
	switch v.kind {
	case FalseValue, TrueValue:
		return v.ToBool()
	case ZeroValue, OneValue, Int8Value, Int16Value, Int32Value:
		return v.ToInt32()
	case Int64Value:
		return v.ToInt64()
	case UInt64Value:
		return v.uint64(), nil
	case SingleValue:
		return v.ToFloat32()
	case DoubleValue:
		return v.ToFloat64()
	case DecimalValue:
		return v.ToDecimal()
	case DateTimeValue:
		return v.ToDateTime()
	case TimeSpanValue:
		return v.ToTimeSpan()
	case GUIDValue:
		return v.ToGUID()
	case UniqueIDValue:
		return v.ToUniqueID()
	case Base64Value:
		return v.ToBytes()
	case ListValue:
		return v.ToList()
	}
	return v.GetString()
}

// GetString returns the text form of v.
func (v *ValueHandle) GetString() (string, error) {
	switch v.kind {
	case EmptyValue:
		return "", nil
	case FalseValue:
		return "false", nil
	case TrueValue:
		return "true", nil
	case ZeroValue:
		return "0", nil
	case OneValue:
		return "1", nil
	case Int8Value:
		return strconv.Itoa(int(v.int8())), nil
	case Int16Value:
		return strconv.Itoa(int(v.int16())), nil
	case Int32Value:
		return strconv.Itoa(int(v.int32())), nil
	case Int64Value:
		return strconv.FormatInt(v.int64(), 10), nil
	case UInt64Value:
		return strconv.FormatUint(v.uint64(), 10), nil
	case SingleValue:
		return string(appendXMLFloat(nil, float64(v.single()), 32)), nil
	case DoubleValue:
		return string(appendXMLFloat(nil, v.double(), 64)), nil
	case DecimalValue:
		d, err := v.ToDecimal()
		if err != nil {
			return "", err
		}
		return d.String(), nil
	case DateTimeValue:
		d, err := v.ToDateTime()
		if err != nil {
			return "", err
		}
		return d.String(), nil
	case TimeSpanValue:
		return date.TimeSpan(v.int64()).String(), nil
	case GUIDValue:
		return guidFromWire(v.bytes()).String(), nil
	case UniqueIDValue:
		return NewUniqueID(guidFromWire(v.bytes())).String(), nil
	case UTF8Value:
		return utf8String(v.bytes()), nil
	case EscapedUTF8Value:
		return unescape(v.bytes())
	case UnicodeValue:
		return unicodeString(v.bytes()), nil
	case Base64Value:
		return base64.StdEncoding.EncodeToString(v.bytes()), nil
	case CharValue:
		return string(rune(v.offset)), nil
	case DictionaryValue:
		ds, err := v.r.GetDictionaryString(v.offset)
		if err != nil {
			return "", err
		}
		return ds.value, nil
	case QNameValue:
		ds, err := v.r.GetDictionaryString(v.offset)
		if err != nil {
			return "", err
		}
		return prefixLetters[v.length] + ":" + ds.value, nil
	case ListValue:
		return v.listString()
	case JSONConstValue:
		return jsonConsts[v.offset], nil
	}
	return "", fmt.Errorf("nbfx: unknown value kind %d", v.kind)
}

// listString joins the text of each list item
// with single spaces.
func (v *ValueHandle) listString() (string, error) {
	r := v.r
	saved := r.offset
	defer func() { r.offset = saved }()
	r.offset = v.offset
	var (
		sb   strings.Builder
		item ValueHandle
	)
	for i := 0; i < v.length; i++ {
		t, err := r.ReadNodeType()
		if err != nil {
			return "", err
		}
		if err := r.ReadValue(t, &item); err != nil {
			return "", err
		}
		s, err := item.GetString()
		if err != nil {
			return "", err
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// EqualsASCII compares v with the ASCII literal lit.
// UTF-8 content is compared byte by byte without
// decoding; if foldCase is set, upper case ASCII
// letters in v also match their lower case form.
func (v *ValueHandle) EqualsASCII(lit string, foldCase bool) (bool, error) {
	if v.kind != UTF8Value {
		s, err := v.GetString()
		return s == lit, err
	}
	b := v.bytes()
	if len(b) != len(lit) {
		return false, nil
	}
	for i, c := range b {
		if c == lit[i] {
			continue
		}
		if foldCase && c >= 'A' && c <= 'Z' && c+('a'-'A') == lit[i] {
			continue
		}
		return false, nil
	}
	return true, nil
}

// IsWhitespace reports whether v is text
// made only of XML whitespace.
func (v *ValueHandle) IsWhitespace() (bool, error) {
	switch v.kind {
	case EmptyValue:
		return true, nil
	case UTF8Value:
		return len(trimXMLSpace(v.bytes())) == 0, nil
	case CharValue:
		return v.offset < 0x80 && isXMLSpace(byte(v.offset)), nil
	case UnicodeValue, EscapedUTF8Value, DictionaryValue:
		s, err := v.GetString()
		if err != nil {
			return false, err
		}
		return len(trimXMLSpace([]byte(s))) == 0, nil
	}
	return false, nil
}

func (v *ValueHandle) String() string {
	s, err := v.GetString()
	if err != nil {
		return fmt.Sprintf("<%s: %s>", v.kind, err)
	}
	return s
}
