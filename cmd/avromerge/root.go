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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aaronlmathis/avromerge"
	"github.com/aaronlmathis/avromerge/config"
	"github.com/aaronlmathis/avromerge/core"
	"github.com/aaronlmathis/avromerge/readers"
	"github.com/aaronlmathis/avromerge/types"
	"github.com/aaronlmathis/avromerge/validators"
	"github.com/aaronlmathis/avromerge/writers"
)

// newRootCommand builds the avromerge command. Positional arguments are the inputs;
// everything else comes from flags or ENV_* variables.
func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "avromerge [flags] FILE...",
		Short: "Merge per-key counts from Avro container files",
		Long: `Read every input Avro object container file in order, sum the count field per key,
and write the merged table to stdout in ascending key order, encoded against the
output schema named by --schema or ENV_SCHEMA_FILENAME.

Inputs may be local paths, s3://bucket/key objects, or s3://bucket/prefix/ to merge
every .avro object under a prefix.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	if err := config.RegisterFlags(cmd.Flags(), v); err != nil {
		panic(fmt.Sprintf("failed to bind flags: %v", err))
	}
	return cmd
}

// run wires the configured pieces together and executes one merge.
func run(ctx context.Context, cfg *config.Config, names []string, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}

	schemaText, err := config.LoadSchema(cfg.SchemaFilename, cfg.SchemaSizeLimit)
	if err != nil {
		return err
	}
	format, err := types.ParseOutputFormat(cfg.OutputFormat)
	if err != nil {
		return err
	}
	codec, err := types.ParseCodec(cfg.OutputCodec)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(stdout)
	var location types.SinkLocation = types.StreamLocation{W: out}
	if !format.IsStream() {
		location = types.PostgresLocation{
			DSN:        cfg.Postgres.DSN,
			Table:      cfg.Postgres.Table,
			Accumulate: cfg.Postgres.Accumulate,
		}
	}
	sink, err := location.NewSink(format, types.SinkConfig{
		Merge:  cfg.Merge(),
		Schema: schemaText,
		Codec:  codec,
	})
	if err != nil {
		return err
	}
	if aw, ok := sink.(*writers.AvroWriter); ok {
		if err := validators.NewSchemaValidator(cfg.Merge()).Validate(aw.Schema()); err != nil {
			logger.Debug("output schema may reject merged records", slog.String("error", err.Error()))
		}
	}

	opener := readers.SchemeOpener{Local: readers.FileOpener{}}
	if readers.HasS3URI(names) {
		s3Opener, err := readers.NewS3Opener(ctx,
			readers.WithS3Region(cfg.S3.Region),
			readers.WithS3Profile(cfg.S3.Profile),
			readers.WithS3Endpoint(cfg.S3.Endpoint),
			readers.WithS3PathStyle(cfg.S3.PathStyle),
		)
		if err != nil {
			return err
		}
		names, err = s3Opener.Expand(ctx, names)
		if err != nil {
			return err
		}
		opener.S3 = s3Opener
	}

	pipeline, err := avromerge.NewPipeline().
		WithConfig(cfg.Merge()).
		WithOpener(opener).
		WithLogger(logger).
		To(sink).
		Build()
	if err != nil {
		return err
	}

	logger.Debug("starting merge",
		slog.Int("inputs", len(names)),
		slog.String("format", format.String()),
		slog.String("key", cfg.KeyName),
		slog.String("cnt", cfg.CntName))

	if err := pipeline.Execute(ctx, names); err != nil {
		return err
	}
	if err := out.Flush(); err != nil {
		return core.NewError(core.ErrIO, "flush_stdout", err)
	}
	return nil
}

// newLogger returns a text logger on w at the named level. An empty name means warn.
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	lvl := slog.LevelWarn
	if level == "" {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	}
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, core.NewError(core.ErrConfig, "parse_log_level", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
