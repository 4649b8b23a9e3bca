//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of AvroMerge.
//
// AvroMerge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// AvroMerge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with AvroMerge. If not, see https://www.gnu.org/licenses/.

package core

import (
	"errors"
	"fmt"
)

// Package core defines the error handling types for the AvroMerge library.
//
// Every error leaving the merge engine is a *MergeError. Its Category is one of the
// sentinels below, so callers can branch with errors.Is without parsing messages.

var (
	// ErrConfig marks missing or unusable configuration, including an unparseable schema.
	ErrConfig = errors.New("configuration error")
	// ErrIO marks input files that cannot be opened and output that cannot be flushed.
	ErrIO = errors.New("i/o error")
	// ErrDecode marks containers the Avro reader cannot recognize or decode.
	ErrDecode = errors.New("decode error")
	// ErrExtract marks records whose values cannot be turned into a (key, count) pair.
	ErrExtract = errors.New("extraction error")
	// ErrSchema marks output records that cannot be built or encoded against the output schema.
	ErrSchema = errors.New("schema error")

	// ErrInvalidValueType is the cause when a decoded value has a type the merge cannot use.
	ErrInvalidValueType = errors.New("invalid value type")
)

// MergeError wraps a failure with the operation that hit it and, where one exists,
// the subject it concerns: an input name for I/O and decode errors, a key for schema errors.
type MergeError struct {
	Category error
	Op       string
	Subject  string
	Err      error
}

func (e *MergeError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%v: %s %s: %v", e.Category, e.Op, e.Subject, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", e.Category, e.Op, e.Err)
}

// Unwrap exposes both the category sentinel and the underlying cause.
func (e *MergeError) Unwrap() []error {
	return []error{e.Category, e.Err}
}

// NewError builds a MergeError without a subject.
func NewError(category error, op string, err error) *MergeError {
	return &MergeError{Category: category, Op: op, Err: err}
}

// NewSubjectError builds a MergeError for a named input or key.
func NewSubjectError(category error, op, subject string, err error) *MergeError {
	return &MergeError{Category: category, Op: op, Subject: subject, Err: err}
}

// WithSubject fills in the subject of err when the MergeError in its chain lacks one.
// A MergeError wrapped by other errors keeps its wrapping and gets the subject as a
// prefix. Errors without a MergeError are returned unchanged.
func WithSubject(err error, subject string) error {
	var me *MergeError
	if !errors.As(err, &me) || me.Subject != "" {
		return err
	}
	if err == error(me) {
		cp := *me
		cp.Subject = subject
		return &cp
	}
	return fmt.Errorf("%s: %w", subject, err)
}
