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

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/avromerge/core"
)

// ParquetWriterStats holds Parquet write statistics.
type ParquetWriterStats struct {
	RecordsWritten int64
	BatchesWritten int64
	FlushDuration  time.Duration
	LastFlushTime  time.Time
}

// ParquetWriterOptions configures Parquet output.
type ParquetWriterOptions struct {
	BatchSize    int                  // Pairs per Arrow record batch
	RowGroupSize int64                // Maximum rows per row group
	Compression  compress.Compression // Compression algorithm
}

// WriterOption is a functional option for ParquetWriter.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of pairs buffered before a batch is written.
func WithBatchSize(size int) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithRowGroupSize sets the maximum number of rows per row group.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithCompression sets the compression codec.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// writeOnly hides Close from the Parquet file writer so it cannot close the output stream.
type writeOnly struct {
	io.Writer
}

// ParquetWriter implements core.CountSink for Parquet output with a string key column and
// an int64 count column.
type ParquetWriter struct {
	stream    io.Writer
	schema    *arrow.Schema
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	allocator memory.Allocator
	buffered  int
	opts      ParquetWriterOptions
	stats     ParquetWriterStats
	closed    bool
}

// NewParquetWriter creates a Parquet writer on w. The file writer is created lazily so
// nothing reaches w before the first pair or Close.
func NewParquetWriter(w io.Writer, cfg core.MergeConfig, opts ...WriterOption) (*ParquetWriter, error) {
	options := ParquetWriterOptions{
		BatchSize:    1000,
		RowGroupSize: 1024 * 1024,
		Compression:  compress.Codecs.Snappy,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.BatchSize <= 0 {
		return nil, core.NewError(core.ErrConfig, "validate_options", fmt.Errorf("batch size must be positive, got %d", options.BatchSize))
	}
	if cfg.KeyName == cfg.CntName {
		return nil, core.NewError(core.ErrConfig, "validate_options", fmt.Errorf("key and count columns share the name %q", cfg.KeyName))
	}

	schema := arrow.NewSchema([]arrow.Field{
		{Name: cfg.KeyName, Type: arrow.BinaryTypes.String},
		{Name: cfg.CntName, Type: arrow.PrimitiveTypes.Int64},
	}, nil)

	return &ParquetWriter{
		stream:    w,
		schema:    schema,
		allocator: memory.NewGoAllocator(),
		opts:      options,
	}, nil
}

// Write implements the core.CountSink interface.
func (p *ParquetWriter) Write(ctx context.Context, key string, count int64) error {
	if p.closed {
		return core.NewSubjectError(core.ErrIO, "write", key, fmt.Errorf("parquet writer is closed"))
	}
	if err := p.open(); err != nil {
		return err
	}

	p.builder.Field(0).(*array.StringBuilder).Append(key)
	p.builder.Field(1).(*array.Int64Builder).Append(count)
	p.buffered++
	p.stats.RecordsWritten++

	if p.buffered >= p.opts.BatchSize {
		return p.flushBatch()
	}
	return nil
}

// Flush implements the core.CountSink interface. Buffered pairs are handed to the file
// writer; Parquet only reaches the stream in whole row groups, so the stream itself is
// flushed on Close.
func (p *ParquetWriter) Flush() error {
	if p.closed || p.writer == nil {
		return nil
	}
	return p.flushBatch()
}

// Close implements the core.CountSink interface.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	if err := p.open(); err != nil {
		return err
	}
	flushErr := p.flushBatch()
	p.closed = true
	p.builder.Release()

	if err := joinErrors(flushErr, p.writer.Close(), flushStream(p.stream)); err != nil {
		return core.NewError(core.ErrIO, "close", err)
	}
	return nil
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() ParquetWriterStats {
	return p.stats
}

func (p *ParquetWriter) open() error {
	if p.writer != nil {
		return nil
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(p.schema, writeOnly{p.stream}, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return core.NewError(core.ErrIO, "create_writer", err)
	}

	p.writer = writer
	p.builder = array.NewRecordBuilder(p.allocator, p.schema)
	return nil
}

// flushBatch writes the buffered pairs as one Arrow record.
func (p *ParquetWriter) flushBatch() error {
	if p.buffered == 0 {
		return nil
	}

	start := time.Now()

	record := p.builder.NewRecord()
	defer record.Release()

	if err := p.writer.Write(record); err != nil {
		return core.NewError(core.ErrIO, "write_batch", fmt.Errorf("failed to write record batch: %w", err))
	}

	p.buffered = 0
	p.stats.BatchesWritten++
	p.stats.LastFlushTime = time.Now()
	p.stats.FlushDuration += time.Since(start)
	return nil
}
