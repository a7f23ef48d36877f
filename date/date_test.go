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
	"errors"
	"testing"
	"time"
)

func TestFromTimeUTC(t *testing.T) {
	in := time.Date(2022, 3, 14, 15, 9, 26, 535897900, time.UTC)
	d, err := FromTime(in, UTC)
	if err != nil {
		t.Fatal(err)
	}
	// 2022-03-14T15:09:26.5358979Z
	const want = 637828673665358979
	if d.Ticks != want {
		t.Errorf("want ticks %d; got %d", want, d.Ticks)
	}
	if got := d.Time(); !got.Equal(in) {
		t.Errorf("Time(): want %s; got %s", in, got)
	}
	if s := d.String(); s != "2022-03-14T15:09:26.5358979Z" {
		t.Errorf("String(): got %q", s)
	}
}

func TestEpochs(t *testing.T) {
	d := DateTime{Ticks: 0, Kind: Unspecified}
	if s := d.String(); s != "0001-01-01T00:00:00" {
		t.Errorf("min value: got %q", s)
	}
	d = DateTime{Ticks: MaxTicks, Kind: UTC}
	if s := d.String(); s != "9999-12-31T23:59:59.9999999Z" {
		t.Errorf("max value: got %q", s)
	}
	unix, err := FromTime(time.Unix(0, 0), UTC)
	if err != nil {
		t.Fatal(err)
	}
	if unix.Ticks != unixEpochSeconds*TicksPerSecond {
		t.Errorf("unix epoch: got %d ticks", unix.Ticks)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	values := []DateTime{
		{Ticks: 0, Kind: Unspecified},
		{Ticks: 1, Kind: UTC},
		{Ticks: 637828673665358979, Kind: UTC},
		{Ticks: 637828673665358979, Kind: Unspecified},
		{Ticks: MaxTicks, Kind: UTC},
	}
	for _, d := range values {
		v, err := d.Binary()
		if err != nil {
			t.Fatalf("%v: %s", d, err)
		}
		got, err := FromBinary(v)
		if err != nil {
			t.Fatalf("%v: FromBinary: %s", d, err)
		}
		if got != d {
			t.Errorf("want %+v; got %+v", d, got)
		}
	}
}

func TestBinaryLocal(t *testing.T) {
	saved := time.Local
	defer func() { time.Local = saved }()
	time.Local = time.FixedZone("test", -5*3600)

	d, err := FromTime(time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC), Local)
	if err != nil {
		t.Fatal(err)
	}
	if h := d.Time().Hour(); h != 7 {
		t.Errorf("local wall clock: want hour 7; got %d", h)
	}
	v, err := d.Binary()
	if err != nil {
		t.Fatal(err)
	}
	if uint64(v)&localMask == 0 {
		t.Error("local bit not set")
	}
	got, err := FromBinary(v)
	if err != nil {
		t.Fatal(err)
	}
	if got != d {
		t.Errorf("want %+v; got %+v", d, got)
	}
	if s := got.String(); s != "2020-06-01T07:00:00-05:00" {
		t.Errorf("String(): got %q", s)
	}
}

func TestFromBinaryRange(t *testing.T) {
	_, err := FromBinary(MaxTicks + 1)
	if err == nil {
		t.Fatal("expected an error for ticks above MaxTicks")
	}
	_, err = (DateTime{Ticks: -1}).Binary()
	if !errors.Is(err, ErrRange) {
		t.Fatalf("want ErrRange; got %v", err)
	}
	_, err = FromTime(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC), UTC)
	if !errors.Is(err, ErrRange) {
		t.Fatalf("want ErrRange for year 10000; got %v", err)
	}
}

func TestParseDateTime(t *testing.T) {
	tcs := []struct {
		in   string
		want string
		kind Kind
	}{
		{"2022-03-14T15:09:26Z", "2022-03-14T15:09:26Z", UTC},
		{"2022-03-14T15:09:26.5Z", "2022-03-14T15:09:26.5Z", UTC},
		{"2022-03-14T15:09:26.1234567Z", "2022-03-14T15:09:26.1234567Z", UTC},
		{"2022-03-14T15:09:26", "2022-03-14T15:09:26", Unspecified},
		{"2022-03-14", "2022-03-14T00:00:00", Unspecified},
	}
	for _, tc := range tcs {
		d, ok := ParseDateTime([]byte(tc.in))
		if !ok {
			t.Errorf("ParseDateTime(%q) failed", tc.in)
			continue
		}
		if d.Kind != tc.kind {
			t.Errorf("%q: want kind %s; got %s", tc.in, tc.kind, d.Kind)
		}
		if s := d.String(); s != tc.want {
			t.Errorf("%q: want %q; got %q", tc.in, tc.want, s)
		}
	}
	for _, bad := range []string{"", "yesterday", "2022-13-01T00:00:00Z"} {
		if _, ok := ParseDateTime([]byte(bad)); ok {
			t.Errorf("ParseDateTime(%q) succeeded", bad)
		}
	}
}

func TestParseDateTimeOffset(t *testing.T) {
	saved := time.Local
	defer func() { time.Local = saved }()
	time.Local = time.UTC

	d, ok := ParseDateTime([]byte("2022-03-14T15:00:00+02:00"))
	if !ok {
		t.Fatal("parse failed")
	}
	if d.Kind != Local {
		t.Errorf("want Local; got %s", d.Kind)
	}
	if h := d.Time().Hour(); h != 13 {
		t.Errorf("want hour 13; got %d", h)
	}
}
