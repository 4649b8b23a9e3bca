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

package avromerge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hamba/avro/v2/ocf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/avromerge/aggregate"
	"github.com/aaronlmathis/avromerge/core"
	"github.com/aaronlmathis/avromerge/readers"
	"github.com/aaronlmathis/avromerge/writers"
)

const countSchema = `{
	"type": "record",
	"name": "Count",
	"namespace": "test.pipeline",
	"fields": [
		{"name": "key", "type": "string"},
		{"name": "cnt", "type": "long"}
	]
}`

const optionalFloatSchema = `{
	"type": "record",
	"name": "FloatCount",
	"namespace": "test.pipeline",
	"fields": [
		{"name": "key", "type": "string"},
		{"name": "cnt", "type": ["null", "float"]}
	]
}`

const textCountSchema = `{
	"type": "record",
	"name": "TextCount",
	"namespace": "test.pipeline",
	"fields": [
		{"name": "key", "type": "string"},
		{"name": "cnt", "type": "string"}
	]
}`

type countRow struct {
	Key string `avro:"key"`
	Cnt int64  `avro:"cnt"`
}

type optionalFloatRow struct {
	Key string   `avro:"key"`
	Cnt *float32 `avro:"cnt"`
}

type textCountRow struct {
	Key string `avro:"key"`
	Cnt string `avro:"cnt"`
}

// writeInput writes records as an Avro container file under dir and returns its path.
func writeInput[T any](t *testing.T, dir, name, schema string, records ...T) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc, err := ocf.NewEncoder(schema, f)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, enc.Encode(rec))
	}
	require.NoError(t, enc.Close())
	return path
}

func decodeOutput(t *testing.T, data []byte) []countRow {
	t.Helper()

	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	require.NoError(t, err)

	var rows []countRow
	for dec.HasNext() {
		var row countRow
		require.NoError(t, dec.Decode(&row))
		rows = append(rows, row)
	}
	require.NoError(t, dec.Error())
	return rows
}

// runMerge executes a full pipeline over names with Avro output into a buffer.
func runMerge(t *testing.T, names ...string) (*bytes.Buffer, error) {
	t.Helper()

	var out bytes.Buffer
	sink, err := writers.NewAvroWriter(&out, countSchema, core.DefaultMergeConfig())
	require.NoError(t, err)

	pipeline, err := NewPipeline().To(sink).Build()
	require.NoError(t, err)

	return &out, pipeline.Execute(context.Background(), names)
}

func tableContents(table *aggregate.Table) map[string]int64 {
	contents := make(map[string]int64)
	for key, count := range table.All() {
		contents[key] = count
	}
	return contents
}

func TestPipeline_MergesFilesInKeyOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.avro", countSchema, countRow{"x", 3}, countRow{"y", 1})
	b := writeInput(t, dir, "b.avro", countSchema, countRow{"x", 4}, countRow{"z", 2})

	out, err := runMerge(t, a, b)
	require.NoError(t, err)

	assert.Equal(t, []countRow{{"x", 7}, {"y", 1}, {"z", 2}}, decodeOutput(t, out.Bytes()))
}

func TestPipeline_OptionalFloatCount(t *testing.T) {
	dir := t.TempDir()
	cnt := float32(2.1)
	path := writeInput(t, dir, "float.avro", optionalFloatSchema, optionalFloatRow{"a", &cnt})

	out, err := runMerge(t, path)
	require.NoError(t, err)

	assert.Equal(t, []countRow{{"a", 2}}, decodeOutput(t, out.Bytes()))
}

func TestPipeline_StringCountProducesNoOutput(t *testing.T) {
	dir := t.TempDir()
	good := writeInput(t, dir, "good.avro", countSchema, countRow{"x", 3})
	bad := writeInput(t, dir, "bad.avro", textCountSchema, textCountRow{"x", "three"})

	out, err := runMerge(t, good, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrExtract)
	assert.Contains(t, err.Error(), bad)
	assert.Contains(t, err.Error(), "three")
	assert.Zero(t, out.Len())
}

func TestPipeline_MissingFileAbortsMerge(t *testing.T) {
	dir := t.TempDir()
	good := writeInput(t, dir, "good.avro", countSchema, countRow{"x", 3})
	missing := filepath.Join(dir, "missing.avro")

	var opened []string
	opener := readers.OpenerFunc(func(ctx context.Context, name string) (io.ReadCloser, error) {
		opened = append(opened, name)
		return readers.FileOpener{}.Open(ctx, name)
	})

	var out bytes.Buffer
	sink, err := writers.NewAvroWriter(&out, countSchema, core.DefaultMergeConfig())
	require.NoError(t, err)
	pipeline, err := NewPipeline().WithOpener(opener).To(sink).Build()
	require.NoError(t, err)

	err = pipeline.Execute(context.Background(), []string{missing, good})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), missing)
	assert.Equal(t, []string{missing}, opened, "later inputs are never opened")
	assert.Zero(t, out.Len())
}

func TestPipeline_WrappedOpenErrorKeepsOneCategory(t *testing.T) {
	opener := readers.OpenerFunc(func(ctx context.Context, name string) (io.ReadCloser, error) {
		return nil, fmt.Errorf("fetch failed: %w", core.NewError(core.ErrIO, "get_object", errors.New("access denied")))
	})

	pipeline, err := NewPipeline().WithOpener(opener).Build()
	require.NoError(t, err)

	_, err = pipeline.Merge(context.Background(), []string{"remote.avro"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIO)
	assert.Contains(t, err.Error(), "remote.avro")
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, 1, strings.Count(err.Error(), core.ErrIO.Error()))
}

func TestPipeline_NotAContainer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("key,cnt\nx,1\n"), 0o644))

	out, err := runMerge(t, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDecode)
	assert.Contains(t, err.Error(), path)
	assert.Zero(t, out.Len())
}

func TestPipeline_NoInputs(t *testing.T) {
	out, err := runMerge(t)
	require.NoError(t, err)

	assert.NotZero(t, out.Len(), "an empty table still gets a container header")
	assert.Empty(t, decodeOutput(t, out.Bytes()))
}

func TestPipeline_EmptyInput(t *testing.T) {
	dir := t.TempDir()
	empty := writeInput[countRow](t, dir, "empty.avro", countSchema)
	other := writeInput(t, dir, "other.avro", countSchema, countRow{"k", 1})

	out, err := runMerge(t, empty, other)
	require.NoError(t, err)
	assert.Equal(t, []countRow{{"k", 1}}, decodeOutput(t, out.Bytes()))
}

func TestPipeline_ReMergeDoublesCounts(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.avro", countSchema, countRow{"x", 3}, countRow{"y", 1})
	b := writeInput(t, dir, "b.avro", countSchema, countRow{"x", 4}, countRow{"z", 2})

	first, err := runMerge(t, a, b)
	require.NoError(t, err)

	merged := filepath.Join(dir, "merged.avro")
	require.NoError(t, os.WriteFile(merged, first.Bytes(), 0o644))

	second, err := runMerge(t, merged, merged)
	require.NoError(t, err)
	assert.Equal(t, []countRow{{"x", 14}, {"y", 2}, {"z", 4}}, decodeOutput(t, second.Bytes()))
}

func TestPipeline_OrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	var rows []countRow
	for i := 0; i < 200; i++ {
		rows = append(rows, countRow{
			Key: fmt.Sprintf("k%02d", rng.Intn(30)),
			Cnt: int64(rng.Intn(100) - 20),
		})
	}

	partition := func(dir string, parts int, rows []countRow) []string {
		buckets := make([][]countRow, parts)
		for i, row := range rows {
			buckets[i%parts] = append(buckets[i%parts], row)
		}
		var names []string
		for i, bucket := range buckets {
			names = append(names, writeInput(t, dir, fmt.Sprintf("part-%d.avro", i), countSchema, bucket...))
		}
		return names
	}

	pipeline, err := NewPipeline().Build()
	require.NoError(t, err)

	forward := partition(t.TempDir(), 3, rows)
	expected, err := pipeline.Merge(context.Background(), forward)
	require.NoError(t, err)

	shuffled := append([]countRow(nil), rows...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	names := partition(t.TempDir(), 5, shuffled)
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	actual, err := pipeline.Merge(context.Background(), names)
	require.NoError(t, err)

	assert.Equal(t, tableContents(expected), tableContents(actual))
	assert.Equal(t, expected.Keys(), actual.Keys())
}

func TestPipeline_CustomFieldNames(t *testing.T) {
	schema := `{
		"type": "record",
		"name": "WordCount",
		"fields": [
			{"name": "word", "type": "string"},
			{"name": "total", "type": "int"}
		]
	}`
	type wordRow struct {
		Word  string `avro:"word"`
		Total int32  `avro:"total"`
	}

	dir := t.TempDir()
	path := writeInput(t, dir, "words.avro", schema, wordRow{"b", 2}, wordRow{"a", 1}, wordRow{"b", 5})

	cfg := core.MergeConfig{KeyName: "word", CntName: "total"}
	var out bytes.Buffer
	sink, err := writers.NewJSONWriter(&out, cfg)
	require.NoError(t, err)

	pipeline, err := NewPipeline().WithConfig(cfg).To(sink).Build()
	require.NoError(t, err)
	require.NoError(t, pipeline.Execute(context.Background(), []string{path}))

	assert.Equal(t, "{\"word\":\"a\",\"total\":1}\n{\"word\":\"b\",\"total\":7}\n", out.String())

	stats := pipeline.Stats()
	assert.Equal(t, 1, stats.FilesMerged)
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, int64(2), stats.KeysEmitted)
}

func TestPipeline_BuildAndEmitErrors(t *testing.T) {
	_, err := NewPipeline().WithOpener(nil).Build()
	assert.ErrorIs(t, err, core.ErrConfig)

	pipeline, err := NewPipeline().Build()
	require.NoError(t, err)
	err = pipeline.Emit(context.Background(), aggregate.NewTable())
	assert.ErrorIs(t, err, core.ErrConfig)
}
