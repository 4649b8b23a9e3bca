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
	"fmt"
	"strconv"
	"strings"
)

// Package core defines the core types for the AvroMerge library.
//
// AvroMerge folds per-key counts stored across many Avro object container files into
// one summed, key-ordered table and writes it back out against a caller-supplied schema.
//
// This file contains the decoded value variant that readers produce and the merge engine consumes.

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindOther Kind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindOptional
	KindRecord
)

var kindNames = [...]string{
	KindOther:    "other",
	KindInt32:    "int",
	KindInt64:    "long",
	KindFloat32:  "float",
	KindFloat64:  "double",
	KindString:   "string",
	KindOptional: "union",
	KindRecord:   "record",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Value is one decoded datum. The concrete types below are the only implementations.
type Value interface {
	Kind() Kind
	fmt.Stringer
}

// Int32 is a decoded 32-bit integer.
type Int32 int32

// Int64 is a decoded 64-bit integer.
type Int64 int64

// Float32 is a decoded single-precision float.
type Float32 float32

// Float64 is a decoded double-precision float.
type Float64 float64

// String is a decoded string.
type String string

// Optional is a tagged union branch wrapping its resolved inner value.
// Branch holds the name of the selected union member (e.g. "long", "null").
type Optional struct {
	Branch string
	Value  Value
}

// Field is one named member of a Record.
type Field struct {
	Name  string
	Value Value
}

// Record is an aggregate value. Fields keep the order the writer's schema declared them in.
type Record []Field

// Other holds any decoded datum outside the variants above (null, boolean, bytes, enum,
// fixed, array, map and logical-type values). Type names the Avro type it came from.
type Other struct {
	Type string
	Raw  any
}

func (Int32) Kind() Kind    { return KindInt32 }
func (Int64) Kind() Kind    { return KindInt64 }
func (Float32) Kind() Kind  { return KindFloat32 }
func (Float64) Kind() Kind  { return KindFloat64 }
func (String) Kind() Kind   { return KindString }
func (Optional) Kind() Kind { return KindOptional }
func (Record) Kind() Kind   { return KindRecord }
func (Other) Kind() Kind    { return KindOther }

func (v Int32) String() string {
	return "Int(" + strconv.FormatInt(int64(v), 10) + ")"
}

func (v Int64) String() string {
	return "Long(" + strconv.FormatInt(int64(v), 10) + ")"
}

func (v Float32) String() string {
	return "Float(" + strconv.FormatFloat(float64(v), 'g', -1, 32) + ")"
}

func (v Float64) String() string {
	return "Double(" + strconv.FormatFloat(float64(v), 'g', -1, 64) + ")"
}

func (v String) String() string {
	return "String(" + strconv.Quote(string(v)) + ")"
}

func (v Optional) String() string {
	if v.Value == nil {
		return "Union(" + v.Branch + ")"
	}
	return "Union(" + v.Branch + ", " + v.Value.String() + ")"
}

func (r Record) String() string {
	var sb strings.Builder
	sb.WriteString("Record{")
	for i, f := range r {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		if f.Value == nil {
			sb.WriteString("<nil>")
		} else {
			sb.WriteString(f.Value.String())
		}
	}
	sb.WriteString("}")
	return sb.String()
}

func (v Other) String() string {
	return fmt.Sprintf("%s(%v)", v.Type, v.Raw)
}

// Get returns the last field named name, mirroring how the extractor resolves duplicates.
func (r Record) Get(name string) (Value, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].Name == name {
			return r[i].Value, true
		}
	}
	return nil, false
}
