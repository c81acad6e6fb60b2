// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package metrics implements the output sinks named in the producer and
// consumer configuration surfaces: CSV row files, and an optional
// Prometheus collector for live observation.
package metrics

import (
	"encoding/csv"
	"os"
)

// CSVSink is a buffered, header-then-rows CSV file, mirroring the
// teacher's Open/Dot/Close file-sink lifecycle but writing CSV rows
// instead of Xplot commands.
type CSVSink struct {
	f *os.File
	w *csv.Writer
}

// OpenCSV creates (or truncates) path, writes header as the first row, and
// returns a sink ready for WriteRow calls.
func OpenCSV(path string, header []string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &CSVSink{f: f, w: w}, nil
}

// WriteRow appends one row and flushes it to disk.
func (s *CSVSink) WriteRow(cols ...string) error {
	if err := s.w.Write(cols); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the underlying file.
func (s *CSVSink) Close() error {
	s.w.Flush()
	return s.f.Close()
}

// NilSink discards every row; used when a filename is not configured.
type NilSink struct{}

func (NilSink) WriteRow(cols ...string) error { return nil }
func (NilSink) Close() error                  { return nil }

// RowSink is the minimal interface producer and consumer engines log
// through; CSVSink and NilSink both satisfy it.
type RowSink interface {
	WriteRow(cols ...string) error
	Close() error
}
