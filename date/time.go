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

// Package date implements the tick based date/time
// representations used on the binary XML wire.
package date

import (
	"errors"
	"fmt"
	"time"
)

const (
	TicksPerMicrosecond = 10
	TicksPerMillisecond = 10_000
	TicksPerSecond      = 10_000_000
	TicksPerMinute      = 60 * TicksPerSecond
	TicksPerHour        = 60 * TicksPerMinute
	TicksPerDay         = 24 * TicksPerHour

	// MaxTicks is 9999-12-31T23:59:59.9999999
	MaxTicks = 3155378975999999999

	// seconds between 0001-01-01 and 1970-01-01
	unixEpochSeconds = 62135596800

	kindShift    = 62
	ticksMask    = 1<<kindShift - 1
	localMask    = 1 << 63
	ticksCeiling = 1 << kindShift
)

var (
	// ErrRange is returned when a tick count
	// falls outside of [0, MaxTicks].
	ErrRange = errors.New("date: tick count out of range")

	errBadBinary = errors.New("date: bad binary DateTime data")
)

// Kind describes how the ticks of a DateTime
// relate to UTC.
type Kind uint8

const (
	Unspecified Kind = iota
	UTC
	Local
)

func (k Kind) String() string {
	switch k {
	case Unspecified:
		return "Unspecified"
	case UTC:
		return "Utc"
	case Local:
		return "Local"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// A DateTime is a wall-clock date and time
// expressed as the number of 100ns ticks since
// 0001-01-01T00:00:00 plus a Kind.
type DateTime struct {
	Ticks int64
	Kind  Kind
}

// FromTime converts t to a DateTime of the given kind.
// UTC values take the UTC wall clock of t, Local values
// take the wall clock of t in time.Local, and Unspecified
// values keep the wall clock of t in its own location.
func FromTime(t time.Time, kind Kind) (DateTime, error) {
	switch kind {
	case UTC:
		t = t.UTC()
	case Local:
		t = t.In(time.Local)
	}
	ticks, err := wallTicks(t)
	if err != nil {
		return DateTime{}, err
	}
	return DateTime{Ticks: ticks, Kind: kind}, nil
}

func wallTicks(t time.Time) (int64, error) {
	_, off := t.Zone()
	sec := t.Unix() + int64(off) + unixEpochSeconds
	if sec < 0 || sec > MaxTicks/TicksPerSecond {
		return 0, ErrRange
	}
	return sec*TicksPerSecond + int64(t.Nanosecond()/100), nil
}

// utcTime interprets ticks as a UTC wall clock.
func utcTime(ticks int64) time.Time {
	sec := ticks/TicksPerSecond - unixEpochSeconds
	ns := (ticks % TicksPerSecond) * 100
	return time.Unix(sec, ns).UTC()
}

// Time returns the time.Time with the same wall clock as d.
// Local values are placed in time.Local; all other
// kinds are placed in time.UTC.
func (d DateTime) Time() time.Time {
	t := utcTime(d.Ticks)
	if d.Kind != Local {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
}

// Valid reports whether d.Ticks is in [0, MaxTicks]
// and d.Kind is a known kind.
func (d DateTime) Valid() bool {
	return d.Ticks >= 0 && d.Ticks <= MaxTicks && d.Kind <= Local
}

func localOffsetTicks(utc int64) int64 {
	_, off := utcTime(utc).In(time.Local).Zone()
	return int64(off) * TicksPerSecond
}

// FromBinary decodes the 64-bit wire form of a DateTime:
// ticks in the low 62 bits and the kind in the top two bits.
// Local values are stored as UTC ticks and are converted
// to the local wall clock.
func FromBinary(v int64) (DateTime, error) {
	u := uint64(v)
	if u&localMask != 0 {
		ticks := int64(u & ticksMask)
		if ticks > ticksCeiling-TicksPerDay {
			ticks -= ticksCeiling
		}
		if ticks >= 0 && ticks <= MaxTicks {
			ticks += localOffsetTicks(ticks)
		}
		if ticks < 0 {
			ticks += TicksPerDay
		}
		if ticks < 0 || ticks > MaxTicks {
			return DateTime{}, errBadBinary
		}
		return DateTime{Ticks: ticks, Kind: Local}, nil
	}
	ticks := int64(u & ticksMask)
	if ticks > MaxTicks {
		return DateTime{}, errBadBinary
	}
	return DateTime{Ticks: ticks, Kind: Kind(u >> kindShift)}, nil
}

// Binary returns the 64-bit wire form of d.
// See FromBinary.
func (d DateTime) Binary() (int64, error) {
	if !d.Valid() {
		return 0, ErrRange
	}
	if d.Kind != Local {
		return d.Ticks | int64(d.Kind)<<kindShift, nil
	}
	t := d.Time()
	_, off := t.Zone()
	ticks := d.Ticks - int64(off)*TicksPerSecond
	if ticks < 0 {
		ticks += ticksCeiling
	}
	return int64(uint64(ticks) | localMask), nil
}

// AppendXML appends the xsd:dateTime form of d,
// "yyyy-MM-ddTHH:mm:ss[.fffffff][Z|(+|-)hh:mm]", with
// trailing fractional zeros trimmed.
func (d DateTime) AppendXML(b []byte) []byte {
	t := utcTime(d.Ticks)
	b = appendInt(b, t.Year(), 4, false)
	b = append(b, '-')
	b = appendInt(b, int(t.Month()), 2, false)
	b = append(b, '-')
	b = appendInt(b, t.Day(), 2, false)
	b = append(b, 'T')
	b = appendInt(b, t.Hour(), 2, false)
	b = append(b, ':')
	b = appendInt(b, t.Minute(), 2, false)
	b = append(b, ':')
	b = appendInt(b, t.Second(), 2, false)
	if frac := int(d.Ticks % TicksPerSecond); frac != 0 {
		b = append(b, '.')
		b = appendInt(b, frac, 7, true)
	}
	switch d.Kind {
	case UTC:
		b = append(b, 'Z')
	case Local:
		_, off := d.Time().Zone()
		b = appendZone(b, off)
	}
	return b
}

func appendZone(b []byte, off int) []byte {
	if off < 0 {
		b = append(b, '-')
		off = -off
	} else {
		b = append(b, '+')
	}
	b = appendInt(b, off/3600, 2, false)
	b = append(b, ':')
	return appendInt(b, (off/60)%60, 2, false)
}

func (d DateTime) String() string {
	return string(d.AppendXML(make([]byte, 0, len("0000-00-00T00:00:00.0000000+00:00"))))
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02Z07:00",
	"2006-01-02",
}

// ParseDateTime parses an xsd:dateTime (or xsd:date) value.
// Values with a trailing 'Z' are UTC, values with an
// explicit offset are converted to Local, and values
// without a zone designator are Unspecified.
func ParseDateTime(s []byte) (DateTime, bool) {
	str := string(s)
	for i, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, str)
		if err != nil {
			continue
		}
		kind := Unspecified
		if i == 0 || i == 2 {
			if str[len(str)-1] == 'Z' {
				kind = UTC
			} else {
				kind = Local
			}
		}
		d, err := FromTime(t, kind)
		if err != nil {
			return DateTime{}, false
		}
		return d, true
	}
	return DateTime{}, false
}
