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
	"errors"
	"strings"

	"github.com/google/uuid"
)

const uniqueIDPrefix = "urn:uuid:"

var errEmptyUniqueID = errors.New("empty unique id")

// UniqueID is a message identifier: either a GUID,
// written as "urn:uuid:<guid>" and sent on the
// wire as 16 bytes, or an arbitrary string.
type UniqueID struct {
	id     uuid.UUID
	s      string
	isGUID bool
}

// NewUniqueID returns a GUID based UniqueID.
func NewUniqueID(id uuid.UUID) UniqueID {
	return UniqueID{id: id, isGUID: true}
}

// ParseUniqueID parses the text form of a UniqueID.
// Strings of the form "urn:uuid:<lowercase guid>"
// produce a GUID based id; any other non-empty
// string is kept verbatim.
func ParseUniqueID(s string) (UniqueID, error) {
	if s == "" {
		return UniqueID{}, errEmptyUniqueID
	}
	if len(s) == len(uniqueIDPrefix)+36 && strings.HasPrefix(s, uniqueIDPrefix) {
		rest := s[len(uniqueIDPrefix):]
		if id, err := uuid.Parse(rest); err == nil && id.String() == rest {
			return NewUniqueID(id), nil
		}
	}
	return UniqueID{s: s}, nil
}

// GUID returns the GUID of a GUID based id.
func (u UniqueID) GUID() (uuid.UUID, bool) {
	return u.id, u.isGUID
}

// IsGUID reports whether u is GUID based.
func (u UniqueID) IsGUID() bool { return u.isGUID }

func (u UniqueID) String() string {
	if u.isGUID {
		return uniqueIDPrefix + u.id.String()
	}
	return u.s
}

// guidFromWire converts the mixed-endian wire
// layout of a GUID (little-endian time fields)
// to RFC 4122 byte order.
func guidFromWire(b []byte) uuid.UUID {
	var id uuid.UUID
	id[0], id[1], id[2], id[3] = b[3], b[2], b[1], b[0]
	id[4], id[5] = b[5], b[4]
	id[6], id[7] = b[7], b[6]
	copy(id[8:], b[8:16])
	return id
}

func appendGUIDWire(dst []byte, id uuid.UUID) []byte {
	return append(dst,
		id[3], id[2], id[1], id[0],
		id[5], id[4],
		id[7], id[6],
		id[8], id[9], id[10], id[11], id[12], id[13], id[14], id[15])
}
