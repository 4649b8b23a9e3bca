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

package readers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"github.com/aaronlmathis/avromerge/core"
)

// Package readers provides implementations of core.DataSource and the openers that feed them.
//
// This file implements a streaming reader for Avro object container files. Values are decoded
// one at a time against the container's embedded schema and converted to core.Value, keeping
// record fields in schema order.

// AvroReaderStats holds statistics about the Avro reader's performance.
type AvroReaderStats struct {
	RecordsRead  int64
	ReadDuration time.Duration
	LastReadTime time.Time
	Codec        string
}

// AvroReaderOptions configures the Avro reader.
type AvroReaderOptions struct {
	Name       string // Input name used in errors
	BufferSize int    // Read buffer size in bytes
}

// ReaderOptionAvro allows functional customization of AvroReader.
type ReaderOptionAvro func(*AvroReaderOptions)

// WithAvroName sets the input name reported in errors.
func WithAvroName(name string) ReaderOptionAvro {
	return func(o *AvroReaderOptions) { o.Name = name }
}

// WithAvroBufferSize sets the size of the read buffer placed in front of the stream.
func WithAvroBufferSize(size int) ReaderOptionAvro {
	return func(o *AvroReaderOptions) { o.BufferSize = size }
}

// AvroReader implements core.DataSource for Avro object container files.
type AvroReader struct {
	dec    *ocf.Decoder
	schema avro.Schema
	closer io.Closer
	stats  AvroReaderStats
	opts   AvroReaderOptions
}

// NewAvroReader opens the container on r and parses its embedded schema.
// A stream that is not an object container fails with a core.ErrDecode error.
func NewAvroReader(r io.ReadCloser, options ...ReaderOptionAvro) (*AvroReader, error) {
	opts := AvroReaderOptions{
		BufferSize: 64 * 1024,
	}
	for _, opt := range options {
		opt(&opts)
	}

	dec, err := ocf.NewDecoder(bufio.NewReaderSize(r, opts.BufferSize))
	if err != nil {
		return nil, core.NewSubjectError(core.ErrDecode, "open_container", opts.Name, err)
	}

	meta := dec.Metadata()
	schema, err := avro.ParseWithCache(string(meta["avro.schema"]), "", &avro.SchemaCache{})
	if err != nil {
		return nil, core.NewSubjectError(core.ErrDecode, "parse_schema", opts.Name, err)
	}

	codec := string(meta["avro.codec"])
	if codec == "" {
		codec = string(ocf.Null)
	}

	return &AvroReader{
		dec:    dec,
		schema: schema,
		closer: r,
		opts:   opts,
		stats:  AvroReaderStats{Codec: codec},
	}, nil
}

// Read implements the core.DataSource interface.
func (a *AvroReader) Read(ctx context.Context) (core.Value, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return nil, core.NewSubjectError(core.ErrIO, "read", a.opts.Name, ctx.Err())
	default:
	}

	if !a.dec.HasNext() {
		if err := a.dec.Error(); err != nil && !errors.Is(err, io.EOF) {
			return nil, core.NewSubjectError(core.ErrDecode, "read_block", a.opts.Name, err)
		}
		return nil, io.EOF
	}

	var raw any
	if err := a.dec.Decode(&raw); err != nil {
		return nil, core.NewSubjectError(core.ErrDecode, "decode_value", a.opts.Name, err)
	}

	a.stats.RecordsRead++
	a.stats.LastReadTime = time.Now()
	a.stats.ReadDuration += time.Since(start)

	return toValue(a.schema, raw), nil
}

// Close implements the core.DataSource interface.
func (a *AvroReader) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// Schema returns the writer schema embedded in the container.
func (a *AvroReader) Schema() avro.Schema {
	return a.schema
}

// Stats returns Avro reader performance stats.
func (a *AvroReader) Stats() AvroReaderStats {
	return a.stats
}

// toValue converts a generically decoded datum to the core variant, using the schema
// to recover record field order and to tell union branches apart.
func toValue(schema avro.Schema, v any) core.Value {
	switch s := schema.(type) {
	case *avro.RefSchema:
		return toValue(s.Schema(), v)
	case *avro.RecordSchema:
		m, ok := v.(map[string]any)
		if !ok {
			return core.Other{Type: string(avro.Record), Raw: v}
		}
		rec := make(core.Record, 0, len(s.Fields()))
		for _, f := range s.Fields() {
			rec = append(rec, core.Field{Name: f.Name(), Value: toValue(f.Type(), m[f.Name()])})
		}
		return rec
	case *avro.UnionSchema:
		return unionValue(s, v)
	}

	switch schema.Type() {
	case avro.Int:
		switch n := v.(type) {
		case int:
			return core.Int32(n)
		case int32:
			return core.Int32(n)
		case int16:
			return core.Int32(n)
		case int8:
			return core.Int32(n)
		}
	case avro.Long:
		switch n := v.(type) {
		case int64:
			return core.Int64(n)
		case int:
			return core.Int64(n)
		}
	case avro.Float:
		if f, ok := v.(float32); ok {
			return core.Float32(f)
		}
	case avro.Double:
		if f, ok := v.(float64); ok {
			return core.Float64(f)
		}
	case avro.String:
		if s, ok := v.(string); ok {
			return core.String(s)
		}
	}
	// Enums, logical types and the remaining Avro types land here.
	return core.Other{Type: string(schema.Type()), Raw: v}
}

// unionValue resolves the branch a union datum was decoded from. The datum arrives either
// wrapped as a single-entry map keyed by branch name or already resolved to the branch's
// Go type, depending on the decoder's type registry.
func unionValue(s *avro.UnionSchema, v any) core.Value {
	if v == nil {
		return core.Optional{Branch: string(avro.Null), Value: core.Other{Type: string(avro.Null)}}
	}

	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		for name, inner := range m {
			if branch := unionBranch(s, name); branch != nil {
				return core.Optional{Branch: name, Value: toValue(branch, inner)}
			}
		}
	}

	var fallback avro.Schema
	for _, branch := range s.Types() {
		if branch.Type() == avro.Null {
			continue
		}
		if val := toValue(branch, v); val.Kind() != core.KindOther {
			return core.Optional{Branch: branchName(branch), Value: val}
		}
		if fallback == nil {
			fallback = branch
		}
	}
	if fallback != nil {
		return core.Optional{Branch: branchName(fallback), Value: toValue(fallback, v)}
	}
	return core.Optional{Branch: string(avro.Union), Value: core.Other{Type: fmt.Sprintf("%T", v), Raw: v}}
}

func unionBranch(s *avro.UnionSchema, name string) avro.Schema {
	for _, branch := range s.Types() {
		if branchName(branch) == name {
			return branch
		}
	}
	return nil
}

func branchName(s avro.Schema) string {
	if ref, ok := s.(*avro.RefSchema); ok {
		return ref.Schema().FullName()
	}
	if named, ok := s.(avro.NamedSchema); ok {
		return named.FullName()
	}
	return string(s.Type())
}
