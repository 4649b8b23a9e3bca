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
//

package types

import (
	"fmt"
	"io"
	"strings"

	"github.com/hamba/avro/v2/ocf"

	"github.com/aaronlmathis/avromerge/core"
	"github.com/aaronlmathis/avromerge/writers"
)

// OutputFormat represents a supported sink format.
type OutputFormat int

const (
	FormatAvro OutputFormat = iota
	FormatJSON
	FormatCSV
	FormatParquet
	FormatPostgres
)

var formatNames = map[OutputFormat]string{
	FormatAvro:     "avro",
	FormatJSON:     "json",
	FormatCSV:      "csv",
	FormatParquet:  "parquet",
	FormatPostgres: "postgres",
}

func (f OutputFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("OutputFormat(%d)", int(f))
}

// IsStream reports whether the format writes to an output stream.
func (f OutputFormat) IsStream() bool {
	return f != FormatPostgres
}

// ParseOutputFormat maps a configured format name to its OutputFormat. Names are
// case-insensitive; "jsonl" is accepted for JSON.
func ParseOutputFormat(name string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "avro":
		return FormatAvro, nil
	case "json", "jsonl":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "parquet":
		return FormatParquet, nil
	case "postgres", "postgresql":
		return FormatPostgres, nil
	default:
		return 0, core.NewError(core.ErrConfig, "parse_output_format", fmt.Errorf("unsupported output format %q", name))
	}
}

// ParseCodec validates an Avro block codec name.
func ParseCodec(name string) (ocf.CodecName, error) {
	switch codec := ocf.CodecName(strings.ToLower(strings.TrimSpace(name))); codec {
	case "":
		return ocf.Null, nil
	case ocf.Null, ocf.Deflate, ocf.Snappy, ocf.ZStandard:
		return codec, nil
	default:
		return "", core.NewError(core.ErrConfig, "parse_codec", fmt.Errorf("unsupported avro codec %q", name))
	}
}

// SinkConfig carries what every sink needs to shape its output.
type SinkConfig struct {
	Merge  core.MergeConfig
	Schema string        // Avro schema text; only the Avro format uses it
	Codec  ocf.CodecName // Avro block codec
}

// SinkLocation is a destination that can instantiate a sink for a format.
type SinkLocation interface {
	NewSink(format OutputFormat, cfg SinkConfig) (core.CountSink, error)
}

// PostgresLocation writes output to a PostgreSQL table.
type PostgresLocation struct {
	DSN        string
	Table      string
	Accumulate bool // Add to stored counts instead of replacing the table
}

// NewSink instantiates a writer for the PostgreSQL location.
func (p PostgresLocation) NewSink(format OutputFormat, cfg SinkConfig) (core.CountSink, error) {
	if format != FormatPostgres {
		return nil, core.NewError(core.ErrConfig, "new_sink", fmt.Errorf("unsupported format %v for PostgresLocation", format))
	}
	mode := writers.ModeReplace
	if p.Accumulate {
		mode = writers.ModeAccumulate
	}
	opts := []writers.PostgresWriterOption{
		writers.WithPostgresDSN(p.DSN),
		writers.WithWriteMode(mode),
	}
	if p.Table != "" {
		opts = append(opts, writers.WithTableName(p.Table))
	}
	w, err := writers.NewPostgresWriter(cfg.Merge, opts...)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// StreamLocation writes output to an already open stream such as stdout.
type StreamLocation struct {
	W io.Writer
}

// NewSink instantiates a writer for the stream location.
func (s StreamLocation) NewSink(format OutputFormat, cfg SinkConfig) (core.CountSink, error) {
	switch format {
	case FormatAvro:
		codec := cfg.Codec
		if codec == "" {
			codec = ocf.Null
		}
		return writers.NewAvroWriter(s.W, cfg.Schema, cfg.Merge, writers.WithAvroCodec(codec))
	case FormatJSON:
		return writers.NewJSONWriter(s.W, cfg.Merge)
	case FormatCSV:
		return writers.NewCSVWriter(s.W, cfg.Merge)
	case FormatParquet:
		return writers.NewParquetWriter(s.W, cfg.Merge)
	default:
		return nil, core.NewError(core.ErrConfig, "new_sink", fmt.Errorf("unsupported format %v for StreamLocation", format))
	}
}
