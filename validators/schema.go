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

// schema.go - Output schema checks run before any input is read
package validators

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hamba/avro/v2"
	"github.com/hashicorp/go-multierror"

	"github.com/aaronlmathis/avromerge/core"
)

// FieldValidator lists the Avro types a record field may be declared as.
// A union is accepted when one of its branches is.
type FieldValidator struct {
	Name     string      // Field name
	Accepted []avro.Type // Acceptable primitive types
}

// SchemaValidator checks that an output schema can hold every merged pair.
type SchemaValidator struct {
	Fields []FieldValidator
}

// SchemaOption is a functional option for SchemaValidator.
type SchemaOption func(*SchemaValidator)

// WithFieldValidator adds a rule for one more field.
func WithFieldValidator(validator FieldValidator) SchemaOption {
	return func(sv *SchemaValidator) {
		sv.Fields = append(sv.Fields, validator)
	}
}

// NewSchemaValidator requires a string key field and a long count field named by cfg.
func NewSchemaValidator(cfg core.MergeConfig, options ...SchemaOption) *SchemaValidator {
	sv := &SchemaValidator{
		Fields: []FieldValidator{
			{Name: cfg.KeyName, Accepted: []avro.Type{avro.String}},
			{Name: cfg.CntName, Accepted: []avro.Type{avro.Long}},
		},
	}
	for _, opt := range options {
		opt(sv)
	}
	return sv
}

// Validate reports every rule schema breaks as one core.ErrSchema error.
func (sv *SchemaValidator) Validate(schema avro.Schema) error {
	rs, ok := schema.(*avro.RecordSchema)
	if !ok {
		return core.NewError(core.ErrSchema, "validate_schema", fmt.Errorf("schema type is %s, not a record", schema.Type()))
	}

	var result *multierror.Error
	for _, rule := range sv.Fields {
		if err := validateField(rs, rule); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = func(es []error) string {
		parts := make([]string, len(es))
		for i, e := range es {
			parts[i] = e.Error()
		}
		return strings.Join(parts, "; ")
	}
	return core.NewSubjectError(core.ErrSchema, "validate_schema", rs.FullName(), result)
}

// validateField checks presence and type of one field
func validateField(rs *avro.RecordSchema, rule FieldValidator) error {
	for _, f := range rs.Fields() {
		if f.Name() != rule.Name {
			continue
		}
		if !accepts(f.Type(), rule.Accepted) {
			return fmt.Errorf("field %q has type %s, want %s", rule.Name, typeName(f.Type()), joinTypes(rule.Accepted))
		}
		return nil
	}
	return fmt.Errorf("required field %q is missing", rule.Name)
}

func accepts(s avro.Schema, accepted []avro.Type) bool {
	switch t := s.(type) {
	case *avro.RefSchema:
		return accepts(t.Schema(), accepted)
	case *avro.UnionSchema:
		for _, branch := range t.Types() {
			if accepts(branch, accepted) {
				return true
			}
		}
		return false
	}
	return slices.Contains(accepted, s.Type())
}

func typeName(s avro.Schema) string {
	if u, ok := s.(*avro.UnionSchema); ok {
		names := make([]string, len(u.Types()))
		for i, branch := range u.Types() {
			names[i] = typeName(branch)
		}
		return "[" + strings.Join(names, ", ") + "]"
	}
	return string(s.Type())
}

func joinTypes(types []avro.Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, " or ")
}
