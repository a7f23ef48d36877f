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

// Package nbfx implements the low level pieces of the
// .NET binary XML encoding (MC-NBFX, MC-NBFS, MC-NBFSE):
// a buffered token reader, lazily materialized string and
// value handles, static and session dictionaries, and
// the writer side node encoder.
package nbfx

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrInvalidFormat is the root of every
	// malformed input error.
	ErrInvalidFormat = errors.New("nbfx: invalid binary format")
	// ErrKeyOutOfRange is returned for dictionary
	// keys outside of [0, MaxKey].
	ErrKeyOutOfRange = errors.New("nbfx: dictionary key out of range")
	// ErrKeyUndefined is returned for dictionary
	// keys that are in range but not defined.
	ErrKeyUndefined = errors.New("nbfx: dictionary key undefined")
	// ErrQuotaExceeded is returned when a single
	// read would need more bytes than the current
	// window allows. It does not match
	// ErrInvalidFormat.
	ErrQuotaExceeded = errors.New("nbfx: max bytes per read exceeded")
	// ErrConversion is returned when a value
	// cannot be converted to the requested type.
	ErrConversion = errors.New("nbfx: conversion failed")
	// ErrKeyExists is returned when a session
	// key is assigned twice.
	ErrKeyExists = errors.New("nbfx: key already exists")
)

// bad wraps ErrInvalidFormat with additional context.
func bad(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFormat, fmt.Sprintf(format, args...))
}

// DictionaryKeyError is returned when a dictionary
// key read from the wire cannot be resolved.
// It matches both Err and ErrInvalidFormat.
type DictionaryKeyError struct {
	// Key is the logical key (without the session bit).
	Key int
	// Session is set when the key referred
	// to the session dictionary.
	Session bool
	// Err is ErrKeyOutOfRange or ErrKeyUndefined.
	Err error
}

func (e *DictionaryKeyError) Error() string {
	scope := "static"
	if e.Session {
		scope = "session"
	}
	if errors.Is(e.Err, ErrKeyOutOfRange) {
		return fmt.Sprintf("nbfx: %s dictionary key %d out of range", scope, e.Key)
	}
	return fmt.Sprintf("nbfx: %s dictionary key %d undefined", scope, e.Key)
}

func (e *DictionaryKeyError) Unwrap() []error {
	return []error{e.Err, ErrInvalidFormat}
}

func keyError(key int, session bool) error {
	err := ErrKeyUndefined
	if key < 0 || key > MaxKey {
		err = ErrKeyOutOfRange
	}
	return &DictionaryKeyError{Key: key, Session: session, Err: err}
}

// QuotaError is returned when a read exceeds the
// number of bytes permitted by the reader window.
type QuotaError struct {
	Limit int
}

func (e *QuotaError) Error() string {
	return "nbfx: max bytes per read (" + strconv.Itoa(e.Limit) + ") exceeded"
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// ConversionError is returned when a value
// cannot be converted to the requested Type.
type ConversionError struct {
	// Value is the textual form of the source value.
	Value string
	// Type is the name of the target type.
	Type string
	// Err is the underlying cause, if any.
	Err error
}

func (e *ConversionError) Error() string {
	s := fmt.Sprintf("nbfx: cannot convert %q to %s", e.Value, e.Type)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ConversionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConversion}
	}
	return []error{ErrConversion, e.Err}
}

func convErr(value, typ string, err error) error {
	return &ConversionError{Value: value, Type: typ, Err: err}
}
