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
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/aaronlmathis/avromerge/aggregate"
	"github.com/aaronlmathis/avromerge/core"
	"github.com/aaronlmathis/avromerge/readers"
)

// Package avromerge merges per-key counts held in many Avro object container files.
//
// Core Concepts:
//   - core.DataSource: streams decoded values out of one input container.
//   - aggregate.Table: the key-ordered accumulator every input is folded into.
//   - aggregate.Extract: turns one decoded record into a (key, count) pair.
//   - core.CountSink: serializes the final table (Avro by default).
//   - Pipeline: opens each input in order, folds it into the table, then emits the table.
//
// Example usage:
//
//   sink, err := writers.NewAvroWriter(os.Stdout, schemaText, core.DefaultMergeConfig())
//   if err != nil { log.Fatal(err) }
//   pipeline, err := avromerge.NewPipeline().
//       WithConfig(core.DefaultMergeConfig()).
//       To(sink).
//       Build()
//   if err != nil { log.Fatal(err) }
//   if err := pipeline.Execute(ctx, []string{"a.avro", "b.avro"}); err != nil { log.Fatal(err) }
//
// Processing is sequential: one input is open at a time and is fully consumed, one
// record at a time, before the next is opened. The first error of any kind ends the run.

// PipelineBuilder provides a fluent API for constructing merge pipelines.
// Use NewPipeline() to create a new builder, then chain configuration methods and Build.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder with default field names, local file inputs
// and the default logger.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			config: core.DefaultMergeConfig(),
			opener: readers.FileOpener{},
			logger: slog.Default(),
		},
	}
}

// WithConfig sets the key and count field names.
func (pb *PipelineBuilder) WithConfig(cfg core.MergeConfig) *PipelineBuilder {
	pb.pipeline.config = cfg
	return pb
}

// WithOpener sets how input names are opened.
func (pb *PipelineBuilder) WithOpener(opener readers.Opener) *PipelineBuilder {
	pb.pipeline.opener = opener
	return pb
}

// WithReaderOptions sets options applied to every input reader.
func (pb *PipelineBuilder) WithReaderOptions(opts ...readers.ReaderOptionAvro) *PipelineBuilder {
	pb.pipeline.readerOpts = append(pb.pipeline.readerOpts, opts...)
	return pb
}

// WithLogger sets the logger for progress messages.
func (pb *PipelineBuilder) WithLogger(logger *slog.Logger) *PipelineBuilder {
	pb.pipeline.logger = logger
	return pb
}

// To sets the CountSink the merged table is emitted to.
func (pb *PipelineBuilder) To(sink core.CountSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// Build validates and constructs the Pipeline from the builder. A sink is only required
// by Emit and Execute.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.opener == nil {
		return nil, core.NewError(core.ErrConfig, "build", fmt.Errorf("pipeline requires an input opener"))
	}
	if pb.pipeline.logger == nil {
		pb.pipeline.logger = slog.Default()
	}
	return pb.pipeline, nil
}

// PipelineStats summarizes a run.
type PipelineStats struct {
	FilesMerged   int
	RecordsRead   int64
	KeysEmitted   int64
	MergeDuration time.Duration
	EmitDuration  time.Duration
}

// Pipeline folds inputs into an aggregate.Table and emits it to a core.CountSink.
type Pipeline struct {
	config     core.MergeConfig
	opener     readers.Opener
	readerOpts []readers.ReaderOptionAvro
	sink       core.CountSink
	logger     *slog.Logger
	stats      PipelineStats
}

// Execute merges names in order and emits the result.
func (p *Pipeline) Execute(ctx context.Context, names []string) error {
	table, err := p.Merge(ctx, names)
	if err != nil {
		return err
	}
	return p.Emit(ctx, table)
}

// Merge folds every input into a new table, strictly in the given order. The first
// failure (open, container, decode or extraction) aborts the merge and no table is
// returned.
func (p *Pipeline) Merge(ctx context.Context, names []string) (*aggregate.Table, error) {
	start := time.Now()
	table := aggregate.NewTable()

	for _, name := range names {
		if err := p.mergeFile(ctx, table, name); err != nil {
			return nil, err
		}
		p.stats.FilesMerged++
	}

	p.stats.MergeDuration += time.Since(start)
	p.logger.Info("merged inputs",
		slog.Int("files", p.stats.FilesMerged),
		slog.Int64("records", p.stats.RecordsRead),
		slog.Int("keys", table.Len()))
	return table, nil
}

// mergeFile folds one input into table. The input is closed on every path.
func (p *Pipeline) mergeFile(ctx context.Context, table *aggregate.Table, name string) error {
	rc, err := p.opener.Open(ctx, name)
	if err != nil {
		var me *core.MergeError
		if errors.As(err, &me) {
			return core.WithSubject(err, name)
		}
		return core.NewSubjectError(core.ErrIO, "open", name, err)
	}

	opts := append([]readers.ReaderOptionAvro{readers.WithAvroName(name)}, p.readerOpts...)
	src, err := readers.NewAvroReader(rc, opts...)
	if err != nil {
		rc.Close()
		return err
	}
	defer src.Close()

	before := p.stats.RecordsRead
	if err := table.MergePairs(p.pairs(ctx, src)); err != nil {
		return core.WithSubject(err, name)
	}

	p.logger.Debug("merged input",
		slog.String("file", name),
		slog.Int64("records", p.stats.RecordsRead-before),
		slog.Int("keys", table.Len()))
	return nil
}

// pairs streams the (key, count) outcome of every value src yields. The sequence ends at
// io.EOF and stops after yielding the first error.
func (p *Pipeline) pairs(ctx context.Context, src core.DataSource) iter.Seq2[aggregate.Pair, error] {
	return func(yield func(aggregate.Pair, error) bool) {
		for {
			value, err := src.Read(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(aggregate.Pair{}, err)
				return
			}
			p.stats.RecordsRead++

			pair, err := aggregate.ExtractValue(p.config, value)
			if !yield(pair, err) || err != nil {
				return
			}
		}
	}
}

// Emit writes table to the sink in ascending key order, then flushes and closes the sink.
func (p *Pipeline) Emit(ctx context.Context, table *aggregate.Table) error {
	if p.sink == nil {
		return core.NewError(core.ErrConfig, "emit", fmt.Errorf("pipeline requires a data sink"))
	}
	start := time.Now()

	for key, count := range table.All() {
		if err := p.sink.Write(ctx, key, count); err != nil {
			return err
		}
		p.stats.KeysEmitted++
	}

	if err := p.sink.Flush(); err != nil {
		return err
	}
	if err := p.sink.Close(); err != nil {
		return err
	}

	p.stats.EmitDuration += time.Since(start)
	p.logger.Debug("emitted table", slog.Int64("keys", p.stats.KeysEmitted))
	return nil
}

// Stats returns the statistics of the runs so far.
func (p *Pipeline) Stats() PipelineStats {
	return p.stats
}
