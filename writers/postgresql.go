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
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/aaronlmathis/avromerge/core"
)

// Package writers provides implementations of core.CountSink for writing merged counts.
//
// This file implements a PostgreSQL sink. The whole table is written in one transaction that
// commits on Close, so a failed run leaves the target table as it was.

// PostgresWriterStats holds PostgreSQL write statistics.
type PostgresWriterStats struct {
	RecordsWritten int64         // Pairs written
	BatchesWritten int64         // Batches executed
	WriteDuration  time.Duration // Time spent executing batches
	ConnectionTime time.Duration // Time spent establishing the connection
}

// PostgresWriteMode says what happens to rows already in the table.
type PostgresWriteMode int

const (
	// ModeReplace truncates the table before writing.
	ModeReplace PostgresWriteMode = iota
	// ModeAccumulate adds each count to the stored count for its key.
	ModeAccumulate
)

// PostgresWriterOptions configures the PostgreSQL writer.
type PostgresWriterOptions struct {
	DSN          string            // PostgreSQL connection string
	TableName    string            // Target table name
	Mode         PostgresWriteMode // Replace or accumulate
	CreateTable  bool              // Create the table if it does not exist
	BatchSize    int               // Pairs per batch
	QueryTimeout time.Duration     // Timeout for connect and commit
}

// PostgresWriterOption represents a configuration function for PostgresWriterOptions.
type PostgresWriterOption func(*PostgresWriterOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DSN = dsn
	}
}

// WithTableName sets the target table name.
func WithTableName(tableName string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TableName = tableName
	}
}

// WithWriteMode sets how existing rows are treated.
func WithWriteMode(mode PostgresWriteMode) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Mode = mode
	}
}

// WithCreateTable enables or disables table creation.
func WithCreateTable(create bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.CreateTable = create
	}
}

// WithPostgresBatchSize sets the batch size for writes.
func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.BatchSize = size
	}
}

// WithPostgresQueryTimeout sets the query timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

type pendingPair struct {
	key   string
	count int64
}

// PostgresWriter implements core.CountSink for a two-column PostgreSQL table keyed by the
// key column.
type PostgresWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmt       *sql.Stmt
	options    PostgresWriterOptions
	keyName    string
	cntName    string
	buf        []pendingPair
	stats      PostgresWriterStats
	errorState bool
	closed     bool
}

// NewPostgresWriter connects to PostgreSQL. Nothing is written before the first pair or Close.
func NewPostgresWriter(cfg core.MergeConfig, opts ...PostgresWriterOption) (*PostgresWriter, error) {
	options := defaultPostgresOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.DSN == "" {
		return nil, core.NewError(core.ErrConfig, "validate_options", fmt.Errorf("dsn is required"))
	}

	start := time.Now()
	db, err := sql.Open("postgres", options.DSN)
	if err != nil {
		return nil, core.NewError(core.ErrConfig, "connect", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), options.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.NewError(core.ErrIO, "connect", fmt.Errorf("failed to ping database: %w", err))
	}

	w, err := newPostgresWriter(db, cfg, options)
	if err != nil {
		db.Close()
		return nil, err
	}
	w.stats.ConnectionTime = time.Since(start)
	return w, nil
}

func defaultPostgresOptions() PostgresWriterOptions {
	return PostgresWriterOptions{
		TableName:    "merged_counts",
		CreateTable:  true,
		BatchSize:    1000,
		QueryTimeout: 30 * time.Second,
	}
}

// newPostgresWriter builds a writer on an open database handle.
func newPostgresWriter(db *sql.DB, cfg core.MergeConfig, options PostgresWriterOptions) (*PostgresWriter, error) {
	if options.TableName == "" {
		return nil, core.NewError(core.ErrConfig, "validate_options", fmt.Errorf("table name is required"))
	}
	if options.BatchSize <= 0 {
		return nil, core.NewError(core.ErrConfig, "validate_options", fmt.Errorf("batch size must be positive, got %d", options.BatchSize))
	}
	if cfg.KeyName == cfg.CntName {
		return nil, core.NewError(core.ErrConfig, "validate_options", fmt.Errorf("key and count columns share the name %q", cfg.KeyName))
	}
	return &PostgresWriter{
		db:      db,
		options: options,
		keyName: cfg.KeyName,
		cntName: cfg.CntName,
		buf:     make([]pendingPair, 0, options.BatchSize),
	}, nil
}

// Write implements the core.CountSink interface.
func (w *PostgresWriter) Write(ctx context.Context, key string, count int64) error {
	if w.closed {
		return core.NewSubjectError(core.ErrIO, "write", key, fmt.Errorf("postgres writer is closed"))
	}
	if w.errorState {
		return core.NewSubjectError(core.ErrIO, "write", key, fmt.Errorf("writer is in error state"))
	}
	if err := w.begin(ctx); err != nil {
		w.errorState = true
		return err
	}

	w.buf = append(w.buf, pendingPair{key: key, count: count})
	if len(w.buf) >= w.options.BatchSize {
		if err := w.flushBuffer(ctx); err != nil {
			w.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the core.CountSink interface. Buffered pairs are executed inside the open
// transaction; they become visible on Close.
func (w *PostgresWriter) Flush() error {
	if w.closed || w.tx == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()
	if err := w.flushBuffer(ctx); err != nil {
		w.errorState = true
		return err
	}
	return nil
}

// Close implements the core.CountSink interface. It commits the transaction, or rolls it
// back when any write failed, and closes the database handle.
func (w *PostgresWriter) Close() error {
	if w.closed {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	var err error
	if !w.errorState {
		// An empty table still replaces the previous contents.
		if err = w.begin(ctx); err == nil {
			err = w.flushBuffer(ctx)
		}
	}
	w.closed = true

	var finishErr error
	if w.tx != nil {
		if err != nil || w.errorState {
			finishErr = w.tx.Rollback()
		} else {
			finishErr = w.tx.Commit()
		}
	}
	if err != nil {
		return joinErrors(err, finishErr, w.db.Close())
	}
	if cleanupErr := joinErrors(finishErr, w.db.Close()); cleanupErr != nil {
		return core.NewError(core.ErrIO, "commit", cleanupErr)
	}
	return nil
}

// Stats returns write statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	return w.stats
}

// begin opens the transaction and prepares the table on first use.
func (w *PostgresWriter) begin(ctx context.Context) error {
	if w.tx != nil {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewError(core.ErrIO, "begin", err)
	}

	table := pq.QuoteIdentifier(w.options.TableName)
	key := pq.QuoteIdentifier(w.keyName)
	cnt := pq.QuoteIdentifier(w.cntName)

	var queries []string
	if w.options.CreateTable {
		queries = append(queries, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s BIGINT NOT NULL)", table, key, cnt))
	}
	if w.options.Mode == ModeReplace {
		queries = append(queries, fmt.Sprintf("TRUNCATE TABLE %s", table))
	}
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			tx.Rollback()
			return core.NewSubjectError(core.ErrIO, "prepare_table", w.options.TableName, err)
		}
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES ($1, $2)", table, key, cnt)
	if w.options.Mode == ModeAccumulate {
		insert += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s = %s.%s + EXCLUDED.%s", key, cnt, table, cnt, cnt)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		tx.Rollback()
		return core.NewSubjectError(core.ErrIO, "prepare_statement", w.options.TableName, err)
	}

	w.tx = tx
	w.stmt = stmt
	return nil
}

// flushBuffer executes the buffered pairs.
func (w *PostgresWriter) flushBuffer(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	start := time.Now()

	for _, p := range w.buf {
		if _, err := w.stmt.ExecContext(ctx, p.key, p.count); err != nil {
			return core.NewSubjectError(core.ErrIO, "insert", p.key, err)
		}
		w.stats.RecordsWritten++
	}

	w.buf = w.buf[:0]
	w.stats.BatchesWritten++
	w.stats.WriteDuration += time.Since(start)
	return nil
}
