// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package parquetio buffers normalized TDC events into row-groups and
// persists them as a rotating sequence of Parquet files.
package parquetio // import "github.com/go-lpc/tdctoolkit/parquetio"

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/parquet-go"

	"github.com/go-lpc/tdctoolkit/tttr"
)

const (
	// ChunkRows is the number of rows flushed into one row-group.
	ChunkRows = 20_000_000
	// FileRows is the row-count rotation threshold, converted to
	// ChunksPerFile row-groups.
	FileRows = 200_000_000
	// ChunksPerFile is the row-group count a file must exceed before the
	// writer rotates to a new file, so a file holds up to ChunksPerFile+1
	// full row-groups.
	ChunksPerFile = FileRows / ChunkRows
)

// Row is the on-disk schema: channel and time_tag, both non-null, per
// the fixed columnar schema.
type Row struct {
	Channel uint16 `parquet:"channel"`
	TimeTag uint64 `parquet:"time_tag"`
}

// timestampFormat is the UTC snapshot format stamped once per run onto
// every file name.
const timestampFormat = "20060102T150405Z"

// Writer consumes normalized event batches and persists them as a
// rotating sequence of Parquet files in dir, named
// "<ts>_<name>_<ordinal:04d>.parquet".
type Writer struct {
	dir  string
	name string
	ts   string

	chunkRows     int
	fileRows      int
	chunksPerFile int

	channels  []uint16
	timeTags  []uint64
	rowsInChunk int

	chunksInFile int
	fileOrdinal  int
	file         *os.File
	pw           *parquet.GenericWriter[Row]

	totalRows int64
}

// Now is overridable in tests; it returns the UTC timestamp stamped onto
// file names for this run.
var Now = func() time.Time { return time.Now().UTC() }

// Option configures a Writer.
type Option func(*Writer)

// WithChunkRows overrides the default row-group size (ChunkRows).
func WithChunkRows(n int) Option {
	return func(w *Writer) { w.chunkRows = n }
}

// WithFileRows overrides the default file-rotation threshold (FileRows),
// expressed as a row count; it is translated to a row-group count using
// the writer's chunk size once every option has been applied.
func WithFileRows(n int) Option {
	return func(w *Writer) { w.fileRows = n }
}

// NewWriter verifies dir exists, snapshots the run timestamp, and opens
// the first output file, "<ts>_<name>_0001.parquet".
func NewWriter(dir, name string, opts ...Option) (*Writer, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, &OutputDirMissing{Dir: dir}
	}

	w := &Writer{
		dir:         dir,
		name:        name,
		ts:          Now().Format(timestampFormat),
		fileOrdinal: 1,
		chunkRows:   ChunkRows,
		fileRows:    FileRows,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.chunksPerFile = w.fileRows / w.chunkRows
	w.channels = make([]uint16, 0, w.chunkRows)
	w.timeTags = make([]uint64, 0, w.chunkRows)

	if err := w.openFile(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *Writer) fileName() string {
	return fmt.Sprintf("%s_%s_%04d.parquet", w.ts, w.name, w.fileOrdinal)
}

func (w *Writer) openFile() error {
	path := filepath.Join(w.dir, w.fileName())
	f, err := os.Create(path)
	if err != nil {
		return &IoError{Op: "create " + path, Err: err}
	}
	w.file = f
	w.pw = parquet.NewGenericWriter[Row](f)
	w.chunksInFile = 0
	return nil
}

// Write appends a normalized batch to the writer's column buffers,
// flushing a row-group (and rotating to a new file) as the configured
// thresholds are crossed.
func (w *Writer) Write(batch tttr.EventBatch) error {
	for _, ev := range batch {
		w.channels = append(w.channels, ev.Channel)
		w.timeTags = append(w.timeTags, ev.TimeTagPS)
		w.rowsInChunk++

		if w.rowsInChunk >= w.chunkRows {
			if err := w.flushChunk(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) flushChunk() error {
	if w.rowsInChunk == 0 {
		return nil
	}

	rows := make([]Row, w.rowsInChunk)
	for i := range rows {
		rows[i] = Row{Channel: w.channels[i], TimeTag: w.timeTags[i]}
	}

	if _, err := w.pw.Write(rows); err != nil {
		return &IoError{Op: "write row-group", Err: err}
	}
	if err := w.pw.Flush(); err != nil {
		return &IoError{Op: "flush row-group", Err: err}
	}

	w.totalRows += int64(w.rowsInChunk)
	w.channels = w.channels[:0]
	w.timeTags = w.timeTags[:0]
	w.rowsInChunk = 0
	w.chunksInFile++

	if w.chunksInFile > w.chunksPerFile {
		return w.rotateFile()
	}

	return nil
}

func (w *Writer) rotateFile() error {
	if err := w.closeFile(); err != nil {
		return err
	}
	w.fileOrdinal++
	return w.openFile()
}

func (w *Writer) closeFile() error {
	if err := w.pw.Close(); err != nil {
		return &IoError{Op: "close parquet writer", Err: err}
	}
	if err := w.file.Close(); err != nil {
		return &IoError{Op: "close file", Err: err}
	}
	return nil
}

// Close flushes any buffered rows and closes the current file. No
// further writes are accepted afterwards.
func (w *Writer) Close() error {
	if err := w.flushFinal(); err != nil {
		return err
	}
	return w.closeFile()
}

func (w *Writer) flushFinal() error {
	if w.rowsInChunk == 0 {
		return nil
	}
	rows := make([]Row, w.rowsInChunk)
	for i := range rows {
		rows[i] = Row{Channel: w.channels[i], TimeTag: w.timeTags[i]}
	}
	if _, err := w.pw.Write(rows); err != nil {
		return &IoError{Op: "write final row-group", Err: err}
	}
	if err := w.pw.Flush(); err != nil {
		return &IoError{Op: "flush final row-group", Err: err}
	}
	w.totalRows += int64(w.rowsInChunk)
	w.channels = w.channels[:0]
	w.timeTags = w.timeTags[:0]
	w.rowsInChunk = 0
	return nil
}

// TotalRows returns the number of rows written so far, across all files.
func (w *Writer) TotalRows() int64 {
	return w.totalRows
}

// FileOrdinal returns the ordinal of the file currently being written.
func (w *Writer) FileOrdinal() int {
	return w.fileOrdinal
}
