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

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hamba/avro/v2/ocf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/avromerge/config"
	"github.com/aaronlmathis/avromerge/core"
)

const countSchema = `{"type":"record","name":"Count","fields":[{"name":"key","type":"string"},{"name":"cnt","type":"long"}]}`

type countRow struct {
	Key string `avro:"key"`
	Cnt int64  `avro:"cnt"`
}

func writeFixtures(t *testing.T) (schemaPath string, inputs []string) {
	t.Helper()
	dir := t.TempDir()

	schemaPath = filepath.Join(dir, "out.avsc")
	require.NoError(t, os.WriteFile(schemaPath, []byte(countSchema), 0o644))

	for i, rows := range [][]countRow{
		{{"x", 3}, {"y", 1}},
		{{"x", 4}, {"z", 2}},
	} {
		path := filepath.Join(dir, []string{"a.avro", "b.avro"}[i])
		f, err := os.Create(path)
		require.NoError(t, err)
		enc, err := ocf.NewEncoder(countSchema, f)
		require.NoError(t, err)
		for _, row := range rows {
			require.NoError(t, enc.Encode(row))
		}
		require.NoError(t, enc.Close())
		require.NoError(t, f.Close())
		inputs = append(inputs, path)
	}
	return schemaPath, inputs
}

func TestRootCommand_MergesToStdout(t *testing.T) {
	schemaPath, inputs := writeFixtures(t)

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--schema", schemaPath}, inputs...))

	require.NoError(t, cmd.Execute())

	dec, err := ocf.NewDecoder(&stdout)
	require.NoError(t, err)
	var rows []countRow
	for dec.HasNext() {
		var row countRow
		require.NoError(t, dec.Decode(&row))
		rows = append(rows, row)
	}
	require.NoError(t, dec.Error())
	assert.Equal(t, []countRow{{"x", 7}, {"y", 1}, {"z", 2}}, rows)
	assert.Empty(t, stderr.String())
}

func TestRootCommand_SchemaFromEnvironment(t *testing.T) {
	schemaPath, inputs := writeFixtures(t)
	t.Setenv("ENV_SCHEMA_FILENAME", schemaPath)
	t.Setenv("ENV_OUTPUT_FORMAT", "csv")

	var stdout bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetArgs(inputs)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "key,cnt\nx,7\ny,1\nz,2\n", stdout.String())
}

func TestRootCommand_MissingSchema(t *testing.T) {
	t.Setenv("ENV_SCHEMA_FILENAME", "")

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"a.avro"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestRun_InvalidSchemaWritesNothing(t *testing.T) {
	_, inputs := writeFixtures(t)
	schemaPath := filepath.Join(t.TempDir(), "bad.avsc")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{"type": "record"`), 0o644))

	cfg := &config.Config{
		SchemaFilename:  schemaPath,
		SchemaSizeLimit: config.SchemaSizeLimitDefault,
		KeyName:         core.KeyNameDefault,
		CntName:         core.CntNameDefault,
		OutputFormat:    "avro",
		LogLevel:        "error",
	}

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), cfg, inputs, &stdout, &stderr)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfig)
	assert.Zero(t, stdout.Len())
}

func TestRun_MissingInputNamesFile(t *testing.T) {
	schemaPath, inputs := writeFixtures(t)
	missing := filepath.Join(t.TempDir(), "nope.avro")

	cfg := &config.Config{
		SchemaFilename:  schemaPath,
		SchemaSizeLimit: config.SchemaSizeLimitDefault,
		KeyName:         core.KeyNameDefault,
		CntName:         core.CntNameDefault,
		LogLevel:        "warn",
	}

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), cfg, append(inputs, missing), &stdout, &stderr)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIO)
	assert.Contains(t, err.Error(), missing)
	assert.Zero(t, stdout.Len())
}

func TestRun_PostgresFormatRequiresDSN(t *testing.T) {
	schemaPath, inputs := writeFixtures(t)

	cfg := &config.Config{
		SchemaFilename:  schemaPath,
		SchemaSizeLimit: config.SchemaSizeLimitDefault,
		KeyName:         core.KeyNameDefault,
		CntName:         core.CntNameDefault,
		OutputFormat:    "postgres",
		LogLevel:        "warn",
	}

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), cfg, inputs, &stdout, &stderr)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfig)
	assert.Contains(t, err.Error(), "dsn is required")
	assert.Zero(t, stdout.Len())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("info", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown", "files", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "files=2")

	buf.Reset()
	logger, err = newLogger("", &buf)
	require.NoError(t, err)
	logger.Info("quiet")
	logger.Warn("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")

	_, err = newLogger("loud", &buf)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestRun_IncompatibleSchemaReportsOneLine(t *testing.T) {
	_, inputs := writeFixtures(t)
	schemaPath := filepath.Join(t.TempDir(), "keyonly.avsc")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{"type":"record","name":"KeyOnly","fields":[{"name":"key","type":"string"}]}`), 0o644))

	for _, level := range []string{"warn", "debug"} {
		t.Run(level, func(t *testing.T) {
			cfg := &config.Config{
				SchemaFilename:  schemaPath,
				SchemaSizeLimit: config.SchemaSizeLimitDefault,
				KeyName:         core.KeyNameDefault,
				CntName:         core.CntNameDefault,
				LogLevel:        level,
			}

			var stdout, stderr bytes.Buffer
			err := run(context.Background(), cfg, inputs, &stdout, &stderr)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrSchema)
			assert.Contains(t, err.Error(), "create_record x")
			assert.Zero(t, stdout.Len())

			if level == "debug" {
				assert.Contains(t, stderr.String(), "output schema may reject merged records")
				return
			}

			// main prints err as the only line
			fmt.Fprintln(&stderr, err)
			assert.Equal(t, 1, strings.Count(stderr.String(), "\n"), stderr.String())
		})
	}
}
