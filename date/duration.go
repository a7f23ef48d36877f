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

package date

import (
	"math"
	"time"
)

// A TimeSpan is a signed interval measured
// in 100ns ticks.
type TimeSpan int64

// FromDuration converts d to a TimeSpan,
// truncating to 100ns resolution.
func FromDuration(d time.Duration) TimeSpan {
	return TimeSpan(d / 100)
}

// Duration returns ts as a time.Duration.
// It returns ErrRange if ts does not fit.
func (ts TimeSpan) Duration() (time.Duration, error) {
	if ts > math.MaxInt64/100 || ts < math.MinInt64/100 {
		return 0, ErrRange
	}
	return time.Duration(ts) * 100, nil
}

// AppendXML appends the xsd:duration form of ts.
// Days are never folded into months or years;
// zero is "PT0S".
func (ts TimeSpan) AppendXML(b []byte) []byte {
	u := uint64(ts)
	if ts < 0 {
		b = append(b, '-')
		u = uint64(-ts)
	}
	b = append(b, 'P')
	days := u / TicksPerDay
	u %= TicksPerDay
	hours := u / TicksPerHour
	u %= TicksPerHour
	minutes := u / TicksPerMinute
	u %= TicksPerMinute
	seconds := u / TicksPerSecond
	frac := u % TicksPerSecond

	if days != 0 {
		b = appendUint(b, days)
		b = append(b, 'D')
	}
	if hours != 0 || minutes != 0 || seconds != 0 || frac != 0 {
		b = append(b, 'T')
		if hours != 0 {
			b = appendUint(b, hours)
			b = append(b, 'H')
		}
		if minutes != 0 {
			b = appendUint(b, minutes)
			b = append(b, 'M')
		}
		if seconds != 0 || frac != 0 {
			b = appendUint(b, seconds)
			if frac != 0 {
				b = append(b, '.')
				b = appendInt(b, int(frac), 7, true)
			}
			b = append(b, 'S')
		}
	}
	if b[len(b)-1] == 'P' {
		b = append(b, "T0S"...)
	}
	return b
}

func appendUint(b []byte, u uint64) []byte {
	var buf [20]byte
	i := len(buf)
	for u >= 10 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	i--
	buf[i] = byte('0' + u)
	return append(b, buf[i:]...)
}

func (ts TimeSpan) String() string {
	return string(ts.AppendXML(nil))
}

// ParseTimeSpan parses an xsd:duration value
// "[-]P[nY][nM][nD][T[nH][nM][n[.f]S]]".
// A year counts as 365 days and a month as 31 days.
func ParseTimeSpan(s []byte) (TimeSpan, bool) {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if len(s) < 2 || s[0] != 'P' {
		return 0, false
	}
	s = s[1:]
	var (
		ticks   uint64
		intime  bool
		seen    bool
		lastcat = 0
	)
	add := func(v uint64, unit uint64) bool {
		if v > math.MaxInt64/unit {
			return false
		}
		ticks += v * unit
		return ticks <= math.MaxInt64
	}
	for len(s) > 0 {
		if s[0] == 'T' {
			if intime {
				return 0, false
			}
			intime = true
			s = s[1:]
			if len(s) == 0 {
				return 0, false
			}
			continue
		}
		v, n, ok := atoi(s)
		if !ok || n == 0 || n == len(s) {
			return 0, false
		}
		s = s[n:]
		var frac uint64
		if s[0] == '.' {
			if !intime {
				return 0, false
			}
			f, fn, _ := atoi(s[1:])
			if fn == 0 || fn+1 == len(s) || s[fn+1] != 'S' {
				return 0, false
			}
			// scale to 7 digits of 100ns ticks
			for i := fn; i < 7; i++ {
				f *= 10
			}
			for i := fn; i > 7; i-- {
				f /= 10
			}
			frac = uint64(f)
			s = s[fn+1:]
		}
		var unit uint64
		cat := 0
		switch {
		case !intime && s[0] == 'Y':
			unit, cat = 365*TicksPerDay, 1
		case !intime && s[0] == 'M':
			unit, cat = 31*TicksPerDay, 2
		case !intime && s[0] == 'D':
			unit, cat = TicksPerDay, 3
		case intime && s[0] == 'H':
			unit, cat = TicksPerHour, 4
		case intime && s[0] == 'M':
			unit, cat = TicksPerMinute, 5
		case intime && s[0] == 'S':
			unit, cat = TicksPerSecond, 6
		default:
			return 0, false
		}
		if cat <= lastcat {
			return 0, false
		}
		lastcat = cat
		if !add(uint64(v), unit) || !add(frac, 1) {
			return 0, false
		}
		seen = true
		s = s[1:]
	}
	if !seen {
		return 0, false
	}
	if neg {
		return TimeSpan(-int64(ticks)), true
	}
	return TimeSpan(ticks), true
}
