package csvmap

import (
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"unicode"

	"github.com/ginjaninja78/csvmap/pkg/rowio"
)

// ListMapper normalises raw rows into LineRecords. It applies the raw
// handler, drops blank rows when asked to, and strips field whitespace.
//
// A ListMapper is single-pass and single-owner. Reading to the end, or a
// fatal error, releases the underlying stream; Close releases it early.
type ListMapper struct {
	stream *rowio.Stream
	rows   *rowio.Reader

	leadingWS    bool
	trailingWS   bool
	ignoreBlanks bool
	raw          Handler[LineRecord]
	handler      Handler[LineRecord]

	logger *slog.Logger
	err    error
	closed bool
}

func newListMapper(stream *rowio.Stream, o *options) (*ListMapper, error) {
	rows, err := rowio.NewReader(stream.Reader(), o.dialect)
	if err != nil {
		return nil, &ConfigError{Option: "dialect", Err: err}
	}
	return &ListMapper{
		stream:       stream,
		rows:         rows,
		leadingWS:    o.leadingWS,
		trailingWS:   o.trailingWS,
		ignoreBlanks: o.ignoreBlanks,
		raw:          o.rawHandler,
		logger:       o.logger,
	}, nil
}

// Read returns the next record. It returns io.EOF once the input is
// exhausted, ErrClosed after Close, and a *ParseError or *IOError when the
// stream fails; those are fatal and repeated by every later call.
func (m *ListMapper) Read() (LineRecord, error) {
	if m.closed && m.err == nil {
		return LineRecord{}, ErrClosed
	}
	if m.err != nil {
		return LineRecord{}, m.err
	}

	for {
		fields, line, err := m.rows.Read()
		if err != nil {
			m.fail(err)
			return LineRecord{}, m.err
		}

		rec := LineRecord{Fields: fields, LineNum: line}
		if m.raw != nil {
			res := m.raw(line, rec)
			if res.Omitted() {
				continue
			}
			rec = res.Value()
		}

		if len(rec.Fields) == 0 && m.ignoreBlanks {
			continue
		}
		m.trim(rec.Fields)

		if m.handler != nil {
			res := m.handler(rec.LineNum, rec)
			if res.Omitted() {
				continue
			}
			rec = res.Value()
		}
		return rec, nil
	}
}

func (m *ListMapper) trim(fields []string) {
	for i, f := range fields {
		if !m.leadingWS {
			f = strings.TrimLeftFunc(f, unicode.IsSpace)
		}
		if !m.trailingWS {
			f = strings.TrimRightFunc(f, unicode.IsSpace)
		}
		fields[i] = f
	}
}

// fail records a terminal error and releases the stream.
func (m *ListMapper) fail(err error) {
	if errors.Is(err, io.EOF) {
		m.err = io.EOF
	} else {
		m.err = err
		m.logger.Error("row stream failed", "source", m.stream.Name(), "error", err)
	}
	if cerr := m.close(); cerr != nil && m.err == io.EOF {
		m.err = cerr
	}
}

// All returns an iterator over the remaining records. Iteration stops at the
// first error, which is yielded, and the stream is closed when the loop
// ends for any reason.
func (m *ListMapper) All() iter.Seq2[LineRecord, error] {
	return func(yield func(LineRecord, error) bool) {
		defer m.Close()
		for {
			rec, err := m.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the underlying stream. It is safe to call more than once.
func (m *ListMapper) Close() error {
	return m.close()
}

func (m *ListMapper) close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.stream.Close()
}
