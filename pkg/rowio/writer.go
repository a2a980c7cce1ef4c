package rowio

import (
	"encoding/csv"
	"io"
)

// Writer emits one delimited record per Write call.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a row writer over w using the dialect.
func NewWriter(w io.Writer, d Dialect) (*Writer, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	cw := csv.NewWriter(w)
	cw.Comma = d.Delimiter
	cw.UseCRLF = d.UseCRLF
	return &Writer{csv: cw}, nil
}

// Write writes a single record. Output is buffered until Flush.
func (w *Writer) Write(fields []string) error {
	if err := w.csv.Write(fields); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// Flush writes any buffered records to the underlying stream.
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return &IOError{Op: "flush", Err: err}
	}
	return nil
}
