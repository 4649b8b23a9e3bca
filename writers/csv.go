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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aaronlmathis/avromerge/core"
)

// CSVWriterStats holds CSV write performance statistics.
type CSVWriterStats struct {
	RecordsWritten int64
	FlushCount     int64
	FlushDuration  time.Duration
	LastFlushTime  time.Time
}

// CSVWriterOptions configures CSV output.
type CSVWriterOptions struct {
	Comma       rune
	UseCRLF     bool
	WriteHeader bool
}

// WriterOptionCSV is a functional option.
type WriterOptionCSV func(*CSVWriterOptions)

func WithComma(delim rune) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Comma = delim
	}
}

func WithWriteHeader(write bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.WriteHeader = write
	}
}

func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.UseCRLF = useCRLF
	}
}

// CSVWriter implements core.CountSink for CSV output. The header row holds the two
// configured field names.
type CSVWriter struct {
	writer      *csv.Writer
	stream      io.Writer
	options     CSVWriterOptions
	headers     []string
	stats       CSVWriterStats
	wroteHeader bool
	errorState  bool
}

// NewCSVWriter creates a new CSV writer with extended options.
func NewCSVWriter(w io.Writer, cfg core.MergeConfig, opts ...WriterOptionCSV) (*CSVWriter, error) {
	options := CSVWriterOptions{
		Comma:       ',',
		UseCRLF:     false,
		WriteHeader: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	cw := csv.NewWriter(w)
	cw.Comma = options.Comma
	cw.UseCRLF = options.UseCRLF

	return &CSVWriter{
		writer:  cw,
		stream:  w,
		options: options,
		headers: []string{cfg.KeyName, cfg.CntName},
	}, nil
}

// Write implements the core.CountSink interface.
func (c *CSVWriter) Write(ctx context.Context, key string, count int64) error {
	if c.errorState {
		return core.NewSubjectError(core.ErrIO, "write", key, fmt.Errorf("writer is in error state"))
	}

	if err := c.writeHeader(); err != nil {
		return err
	}

	if err := c.writer.Write([]string{key, strconv.FormatInt(count, 10)}); err != nil {
		c.errorState = true
		return core.NewSubjectError(core.ErrIO, "write_row", key, fmt.Errorf("failed to write CSV row: %w", err))
	}

	c.stats.RecordsWritten++
	return nil
}

// Flush implements the core.CountSink interface.
func (c *CSVWriter) Flush() error {
	start := time.Now()

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return core.NewError(core.ErrIO, "flush_writer", err)
	}
	if err := flushStream(c.stream); err != nil {
		return core.NewError(core.ErrIO, "flush_stream", err)
	}

	c.stats.FlushCount++
	c.stats.LastFlushTime = time.Now()
	c.stats.FlushDuration += time.Since(start)
	return nil
}

// Close implements the core.CountSink interface. An empty table still gets its header.
func (c *CSVWriter) Close() error {
	if err := c.writeHeader(); err != nil {
		return err
	}
	return c.Flush()
}

// Stats returns write statistics.
func (c *CSVWriter) Stats() CSVWriterStats {
	return c.stats
}

func (c *CSVWriter) writeHeader() error {
	if c.wroteHeader || !c.options.WriteHeader {
		return nil
	}
	if err := c.writer.Write(c.headers); err != nil {
		c.errorState = true
		return core.NewError(core.ErrIO, "write_header", err)
	}
	c.wroteHeader = true
	return nil
}
