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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/avromerge/core"
)

// TestJSONWriter_BasicFunctionality tests line-delimited output in write order
func TestJSONWriter_BasicFunctionality(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewJSONWriter(&buf, core.DefaultMergeConfig())
	require.NoError(t, err)

	writePairs(t, writer, []pair{{"x", 7}, {"y", -1}})

	expected := "{\"key\":\"x\",\"cnt\":7}\n{\"key\":\"y\",\"cnt\":-1}\n"
	assert.Equal(t, expected, buf.String())

	stats := writer.Stats()
	assert.Equal(t, int64(2), stats.RecordsWritten)
	assert.Equal(t, int64(len(expected)), stats.BytesWritten)
}

// TestJSONWriter_EscapesKeys tests that keys and names are valid JSON strings
func TestJSONWriter_EscapesKeys(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewJSONWriter(&buf, core.MergeConfig{KeyName: "the \"key\"", CntName: "n"})
	require.NoError(t, err)

	writePairs(t, writer, []pair{{"line\nbreak", 1}, {"héllo", 2}})

	scanner := bufio.NewScanner(&buf)
	var decoded []map[string]any
	for scanner.Scan() {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
		decoded = append(decoded, obj)
	}
	require.Len(t, decoded, 2)
	assert.Equal(t, "line\nbreak", decoded[0]["the \"key\""])
	assert.Equal(t, float64(2), decoded[1]["n"])
}

// TestJSONWriter_Empty tests that an empty table produces no output
func TestJSONWriter_Empty(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewJSONWriter(&buf, core.DefaultMergeConfig())
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	assert.Zero(t, buf.Len())
}

// TestJSONWriter_BufferedStream tests that Close flushes a buffered stream
func TestJSONWriter_BufferedStream(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	writer, err := NewJSONWriter(bw, core.DefaultMergeConfig())
	require.NoError(t, err)

	require.NoError(t, writer.Write(context.Background(), "a", 1))
	assert.Zero(t, buf.Len())

	require.NoError(t, writer.Close())
	assert.Equal(t, "{\"key\":\"a\",\"cnt\":1}\n", buf.String())
}

// TestJSONWriter_StreamFailure tests that write failures name the key
func TestJSONWriter_StreamFailure(t *testing.T) {
	writer, err := NewJSONWriter(failingWriter{}, core.DefaultMergeConfig())
	require.NoError(t, err)

	err = writer.Write(context.Background(), "lost", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIO)
	assert.Contains(t, err.Error(), "lost")
	assert.Contains(t, err.Error(), "disk full")
}
