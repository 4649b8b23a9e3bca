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
	"context"
)

// Package core defines the core interfaces for the AvroMerge library.
//
// This file contains the interfaces between the merge pipeline and its inputs and outputs.

// DataSource defines the interface for decoded value extraction.
// Implementations stream values from a container (e.g., an Avro object container file).
type DataSource interface {
	// Read returns the next decoded value or io.EOF when no more values are available.
	Read(ctx context.Context) (Value, error)
	// Close releases any resources held by the data source.
	Close() error
}

// CountSink defines the interface for loading merged counts.
// Implementations serialize (key, count) pairs to a destination stream.
type CountSink interface {
	// Write outputs a single merged pair to the sink.
	Write(ctx context.Context, key string, count int64) error
	// Flush ensures all buffered data is written to the underlying stream.
	Flush() error
	// Close finalizes the output. It does not close the underlying stream.
	Close() error
}

// DataSourceFunc adapts a function to DataSource. Close is a no-op.
type DataSourceFunc func(ctx context.Context) (Value, error)

// Read implements the DataSource interface for DataSourceFunc.
func (f DataSourceFunc) Read(ctx context.Context) (Value, error) {
	return f(ctx)
}

// Close implements the DataSource interface for DataSourceFunc.
func (f DataSourceFunc) Close() error {
	return nil
}
