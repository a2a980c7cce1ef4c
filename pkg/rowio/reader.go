// =============================================================================
// csvmap - Row I/O: Row Reader
// =============================================================================
//
// Reader yields one logical record at a time, together with its 1-based
// logical record number.
//
// BLANK LINES:
//   encoding/csv silently skips empty lines. The mapping layer needs to see
//   them (it decides whether blanks are dropped), so Reader tracks how many
//   physical lines each record consumed and re-inserts one empty record per
//   skipped blank line, in position. Record numbers count these blank
//   records, so numbering never shifts when a caller later drops them.
//
// LINE ENDINGS:
//   encoding/csv turns "\r\n" inside a quoted field into "\n", so a value
//   written with a CRLF reads back with a bare LF. Every other value reads
//   back exactly as written.
//
// =============================================================================

package rowio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
)

// Reader is a streaming row reader. It is single-pass and single-owner.
type Reader struct {
	csv     *csv.Reader
	tracker *lineTracker

	// record is the number of the last record returned.
	record int

	// consumed is the count of physical lines fully consumed by the records
	// read from csv so far.
	consumed int

	// blanks is the number of synthesised empty records still to return
	// before pending.
	blanks  int
	pending []string
	hasNext bool

	eof bool
	err error
}

// NewReader creates a row reader over r using the dialect.
func NewReader(r io.Reader, d Dialect) (*Reader, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	tracker := &lineTracker{src: r}
	cr := csv.NewReader(tracker)
	cr.Comma = d.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = !d.Strict
	cr.ReuseRecord = false

	return &Reader{csv: cr, tracker: tracker}, nil
}

// Read returns the next record and its logical record number. It returns
// io.EOF when the input is exhausted. A *ParseError is fatal: it is returned
// again by every later call.
func (r *Reader) Read() ([]string, int, error) {
	if r.err != nil {
		return nil, 0, r.err
	}

	if r.blanks > 0 {
		r.blanks--
		r.record++
		return []string{}, r.record, nil
	}

	if r.hasNext {
		r.hasNext = false
		fields := r.pending
		r.pending = nil
		r.record++
		return fields, r.record, nil
	}

	if r.eof {
		return nil, 0, io.EOF
	}

	fields, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		r.eof = true
		r.blanks = r.tracker.linesBefore(r.csv.InputOffset()) - r.consumed
		r.consumed += r.blanks
		return r.Read()
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			r.err = &ParseError{Line: r.record + 1, Err: err}
		} else {
			r.err = &IOError{Op: "read", Err: err}
		}
		return nil, 0, r.err
	}

	start, _ := r.csv.FieldPos(0)
	r.blanks = start - (r.consumed + 1)
	if r.blanks < 0 {
		r.blanks = 0
	}
	r.consumed = r.tracker.linesBefore(r.csv.InputOffset())
	r.pending = fields
	r.hasNext = true
	return r.Read()
}

// =============================================================================
// LINE TRACKING
// =============================================================================

// lineTracker counts newlines in the bytes the csv reader has consumed. It
// keeps only the bytes read ahead of the csv reader's current offset.
type lineTracker struct {
	src   io.Reader
	buf   []byte
	base  int64
	lines int
}

func (t *lineTracker) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	t.buf = append(t.buf, p[:n]...)
	return n, err
}

// linesBefore returns the number of newlines before byte offset.
func (t *lineTracker) linesBefore(offset int64) int {
	n := int(offset - t.base)
	if n > len(t.buf) {
		n = len(t.buf)
	}
	if n <= 0 {
		return t.lines
	}
	t.lines += bytes.Count(t.buf[:n], []byte{'\n'})
	t.buf = append(t.buf[:0], t.buf[n:]...)
	t.base += int64(n)
	return t.lines
}
