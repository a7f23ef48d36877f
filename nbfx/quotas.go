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
	"fmt"
	"math"

	"sigs.k8s.io/yaml"
)

// Quotas bounds the resources a single
// document may consume while it is decoded.
type Quotas struct {
	// MaxDepth bounds element nesting.
	MaxDepth int `json:"maxDepth"`
	// MaxStringContentLength bounds the number
	// of characters in one text value.
	MaxStringContentLength int `json:"maxStringContentLength"`
	// MaxArrayLength bounds the number of
	// items in one array or byte string.
	MaxArrayLength int `json:"maxArrayLength"`
	// MaxBytesPerRead bounds the bytes buffered
	// for one record; see BufferReader.SetWindow.
	MaxBytesPerRead int `json:"maxBytesPerRead"`
	// MaxNameTableCharCount bounds the characters
	// held by the session string table.
	MaxNameTableCharCount int `json:"maxNameTableCharCount"`
}

// DefaultQuotas returns the conservative
// defaults used for untrusted input.
func DefaultQuotas() Quotas {
	return Quotas{
		MaxDepth:               32,
		MaxStringContentLength: 8192,
		MaxArrayLength:         16384,
		MaxBytesPerRead:        4096,
		MaxNameTableCharCount:  16384,
	}
}

// MaxQuotas returns quotas that
// effectively impose no limit.
func MaxQuotas() Quotas {
	return Quotas{
		MaxDepth:               math.MaxInt32,
		MaxStringContentLength: math.MaxInt32,
		MaxArrayLength:         math.MaxInt32,
		MaxBytesPerRead:        math.MaxInt32,
		MaxNameTableCharCount:  math.MaxInt32,
	}
}

// Validate checks that every quota is positive.
func (q *Quotas) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"maxDepth", q.MaxDepth},
		{"maxStringContentLength", q.MaxStringContentLength},
		{"maxArrayLength", q.MaxArrayLength},
		{"maxBytesPerRead", q.MaxBytesPerRead},
		{"maxNameTableCharCount", q.MaxNameTableCharCount},
	} {
		if f.v <= 0 {
			return fmt.Errorf("nbfx: quota %s must be positive (got %d)", f.name, f.v)
		}
	}
	return nil
}

// ParseQuotas reads quotas from YAML or JSON.
// Fields that are not mentioned keep the
// values from DefaultQuotas; unknown fields
// are rejected.
func ParseQuotas(buf []byte) (Quotas, error) {
	q := DefaultQuotas()
	if err := yaml.UnmarshalStrict(buf, &q); err != nil {
		return Quotas{}, fmt.Errorf("nbfx: parsing quotas: %w", err)
	}
	if err := q.Validate(); err != nil {
		return Quotas{}, err
	}
	return q, nil
}
