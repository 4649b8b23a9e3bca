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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/aaronlmathis/avromerge/core"
)

// JSONWriterStats holds JSON write statistics.
type JSONWriterStats struct {
	RecordsWritten int64
	BytesWritten   int64
}

// JSONWriter implements core.CountSink for JSON lines output.
// Each pair becomes {"<key name>": key, "<count name>": count} on its own line.
type JSONWriter struct {
	writer  io.Writer
	keyName []byte
	cntName []byte
	buf     bytes.Buffer
	stats   JSONWriterStats
}

// NewJSONWriter creates a new JSON writer for line-delimited JSON output
func NewJSONWriter(w io.Writer, cfg core.MergeConfig) (*JSONWriter, error) {
	keyName, err := json.Marshal(cfg.KeyName)
	if err != nil {
		return nil, core.NewError(core.ErrConfig, "marshal_field_name", err)
	}
	cntName, err := json.Marshal(cfg.CntName)
	if err != nil {
		return nil, core.NewError(core.ErrConfig, "marshal_field_name", err)
	}
	return &JSONWriter{
		writer:  w,
		keyName: keyName,
		cntName: cntName,
	}, nil
}

// Write implements the core.CountSink interface
func (j *JSONWriter) Write(ctx context.Context, key string, count int64) error {
	data, err := json.Marshal(key)
	if err != nil {
		return core.NewSubjectError(core.ErrSchema, "marshal_key", key, fmt.Errorf("failed to marshal key to JSON: %w", err))
	}

	j.buf.Reset()
	j.buf.WriteByte('{')
	j.buf.Write(j.keyName)
	j.buf.WriteByte(':')
	j.buf.Write(data)
	j.buf.WriteByte(',')
	j.buf.Write(j.cntName)
	j.buf.WriteByte(':')
	j.buf.WriteString(strconv.FormatInt(count, 10))
	j.buf.WriteString("}\n")

	n, err := j.writer.Write(j.buf.Bytes())
	if err != nil {
		return core.NewSubjectError(core.ErrIO, "write", key, fmt.Errorf("failed to write JSON data: %w", err))
	}

	j.stats.RecordsWritten++
	j.stats.BytesWritten += int64(n)
	return nil
}

// Flush implements the core.CountSink interface
func (j *JSONWriter) Flush() error {
	if err := flushStream(j.writer); err != nil {
		return core.NewError(core.ErrIO, "flush", err)
	}
	return nil
}

// Close implements the core.CountSink interface
func (j *JSONWriter) Close() error {
	return j.Flush()
}

// Stats returns write statistics.
func (j *JSONWriter) Stats() JSONWriterStats {
	return j.stats
}
