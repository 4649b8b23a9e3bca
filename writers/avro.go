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

package writers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"github.com/aaronlmathis/avromerge/core"
)

// Package writers provides implementations of core.CountSink for writing merged counts.
//
// This file implements the Avro object container writer. The output schema is parsed once
// at construction; the container header is not written until the first record or the final
// Close, so a run that fails during merging leaves the output stream untouched.

// AvroWriterStats holds Avro write statistics.
type AvroWriterStats struct {
	RecordsWritten int64
	FlushCount     int64
	FlushDuration  time.Duration
	LastFlushTime  time.Time
}

// AvroWriterOptions configures Avro container output.
type AvroWriterOptions struct {
	Codec       ocf.CodecName // Block compression codec
	BlockLength int           // Records per block; 0 keeps the library default
}

// WriterOptionAvro is a functional option.
type WriterOptionAvro func(*AvroWriterOptions)

func WithAvroCodec(codec ocf.CodecName) WriterOptionAvro {
	return func(opts *AvroWriterOptions) {
		opts.Codec = codec
	}
}

func WithAvroBlockLength(n int) WriterOptionAvro {
	return func(opts *AvroWriterOptions) {
		opts.BlockLength = n
	}
}

// AvroWriter implements core.CountSink for Avro object container output.
type AvroWriter struct {
	w          io.Writer
	schemaText string
	schema     avro.Schema
	keyName    string
	cntName    string
	enc        *ocf.Encoder
	options    AvroWriterOptions
	stats      AvroWriterStats
	errorState bool
	closed     bool
}

// NewAvroWriter parses schemaText and prepares a writer on w. An unparseable schema is a
// core.ErrConfig error.
func NewAvroWriter(w io.Writer, schemaText string, cfg core.MergeConfig, opts ...WriterOptionAvro) (*AvroWriter, error) {
	options := AvroWriterOptions{
		Codec: ocf.Null,
	}
	for _, opt := range opts {
		opt(&options)
	}

	schema, err := avro.ParseWithCache(schemaText, "", &avro.SchemaCache{})
	if err != nil {
		return nil, core.NewError(core.ErrConfig, "parse_schema", err)
	}

	return &AvroWriter{
		w:          w,
		schemaText: schemaText,
		schema:     schema,
		keyName:    cfg.KeyName,
		cntName:    cfg.CntName,
		options:    options,
	}, nil
}

// Write implements the core.CountSink interface. A record that cannot be built or encoded
// against the schema is a core.ErrSchema error naming the key.
func (a *AvroWriter) Write(ctx context.Context, key string, count int64) error {
	if a.closed {
		return core.NewSubjectError(core.ErrIO, "write", key, fmt.Errorf("avro writer is closed"))
	}
	if a.errorState {
		return core.NewSubjectError(core.ErrIO, "write", key, fmt.Errorf("writer is in error state"))
	}

	rec, err := a.newRecord(key, count)
	if err != nil {
		a.errorState = true
		return core.NewSubjectError(core.ErrSchema, "create_record", key, err)
	}

	enc, err := a.encoder()
	if err != nil {
		a.errorState = true
		return err
	}
	if err := enc.Encode(rec); err != nil {
		a.errorState = true
		return core.NewSubjectError(core.ErrSchema, "append_record", key, err)
	}

	a.stats.RecordsWritten++
	return nil
}

// Flush implements the core.CountSink interface.
func (a *AvroWriter) Flush() error {
	if a.closed {
		return nil
	}
	enc, err := a.encoder()
	if err != nil {
		return err
	}

	start := time.Now()
	if err := enc.Flush(); err != nil {
		return core.NewError(core.ErrIO, "flush", err)
	}
	if err := flushStream(a.w); err != nil {
		return core.NewError(core.ErrIO, "flush_stream", err)
	}

	a.stats.FlushCount++
	a.stats.LastFlushTime = time.Now()
	a.stats.FlushDuration += time.Since(start)
	return nil
}

// Close implements the core.CountSink interface. It writes any pending block and flushes
// the stream; the stream itself stays open.
func (a *AvroWriter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	enc, err := a.encoder()
	if err != nil {
		return err
	}
	if err := joinErrors(enc.Close(), flushStream(a.w)); err != nil {
		return core.NewError(core.ErrIO, "close", err)
	}
	return nil
}

// Schema returns the parsed output schema.
func (a *AvroWriter) Schema() avro.Schema {
	return a.schema
}

// Stats returns write statistics.
func (a *AvroWriter) Stats() AvroWriterStats {
	return a.stats
}

// encoder creates the container encoder on first use, which writes the header.
func (a *AvroWriter) encoder() (*ocf.Encoder, error) {
	if a.enc != nil {
		return a.enc, nil
	}

	encOpts := []ocf.EncoderFunc{ocf.WithCodec(a.options.Codec)}
	if a.options.BlockLength > 0 {
		encOpts = append(encOpts, ocf.WithBlockLength(a.options.BlockLength))
	}

	enc, err := ocf.NewEncoder(a.schemaText, a.w, encOpts...)
	if err != nil {
		return nil, core.NewError(core.ErrIO, "create_encoder", err)
	}
	a.enc = enc
	return enc, nil
}

// newRecord builds the record shell for one pair.
func (a *AvroWriter) newRecord(key string, count int64) (map[string]any, error) {
	rs, ok := a.schema.(*avro.RecordSchema)
	if !ok {
		return nil, fmt.Errorf("unable to create a record: schema type is %s", a.schema.Type())
	}
	for _, name := range []string{a.keyName, a.cntName} {
		if !hasField(rs, name) {
			return nil, fmt.Errorf("unable to create a record: schema %s has no field %q", rs.FullName(), name)
		}
	}
	return map[string]any{
		a.keyName: key,
		a.cntName: count,
	}, nil
}

func hasField(rs *avro.RecordSchema, name string) bool {
	for _, f := range rs.Fields() {
		if f.Name() == name {
			return true
		}
	}
	return false
}
