package rowio

import (
	"encoding/csv"
	"errors"
	"fmt"
)

// ErrUnsupportedSource is returned by Open for sources it cannot handle.
var ErrUnsupportedSource = errors.New("unsupported source")

// ParseError reports malformed delimited text under strict quoting.
// It aborts the reader: every later Read returns the same error.
type ParseError struct {
	// Line is the logical record number being read when parsing failed.
	Line int

	// Err is the underlying *csv.ParseError.
	Err error
}

func (e *ParseError) Error() string {
	var pe *csv.ParseError
	if errors.As(e.Err, &pe) {
		return fmt.Sprintf("record %d: parse error on line %d, column %d: %v", e.Line, pe.Line, pe.Column, pe.Err)
	}
	return fmt.Sprintf("record %d: parse error: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IOError reports an open, read, write or close failure on a stream.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
