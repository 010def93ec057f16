// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ledger records measurement-run metadata into a MySQL-backed
// run log: start time, configured duration, output directory, row
// counts, and the terminal error (if any).
package ledger // import "github.com/go-lpc/tdctoolkit/ledger"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// Run is one recorded measurement run.
type Run struct {
	ID        int64
	StartedAt time.Time
	Duration  time.Duration
	OutputDir string
	RunName   string
	Rows      int64
	Files     int
	Err       string // empty on success
}

// DB exposes convenience methods to record and retrieve run metadata
// from the toolkit's run ledger.
type DB struct {
	db   *sql.DB
	name string // name of the ledger database
}

// Open opens a connection to the run-ledger database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("ledger: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("ledger: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("ledger: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// RecordRun inserts r into the run log. r.ID is ignored; the database
// assigns the identifier.
func (db *DB) RecordRun(ctx context.Context, r Run) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		`INSERT INTO runs (started_at, duration_ms, output_dir, run_name, rows, files, err)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt, r.Duration.Milliseconds(), r.OutputDir, r.RunName, r.Rows, r.Files, r.Err,
	)
	if err != nil {
		return fmt.Errorf("ledger: could not record run %q: %w", r.RunName, err)
	}
	return nil
}

// LastRuns returns the n most recent runs, most recent first.
func (db *DB) LastRuns(ctx context.Context, n int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var runs []Run
	rows, err := db.db.QueryContext(
		ctx,
		`SELECT identifier, started_at, duration_ms, output_dir, run_name, rows, files, err
FROM runs ORDER BY started_at DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return runs, fmt.Errorf("ledger: could not query last runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			run Run
			ms  int64
		)
		err = rows.Scan(
			&run.ID, &run.StartedAt, &ms, &run.OutputDir, &run.RunName,
			&run.Rows, &run.Files, &run.Err,
		)
		if err != nil {
			return runs, fmt.Errorf("ledger: could not scan run row: %w", err)
		}
		run.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return runs, fmt.Errorf("ledger: could not scan db for last runs: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return runs, fmt.Errorf("ledger: context error while retrieving last runs: %w", err)
	}

	return runs, nil
}
