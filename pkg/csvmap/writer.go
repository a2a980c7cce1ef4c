package csvmap

import (
	"log/slog"

	"github.com/ginjaninja78/csvmap/pkg/rowio"
)

// RowWriter is a sink of delimited rows that owns its output resource.
type RowWriter interface {
	Write(fields []string) error
	Flush() error
	Close() error
}

// PlainWriter writes rows as given, after an optional handler. It releases
// the output stream on Close.
type PlainWriter struct {
	stream  *rowio.Stream
	rows    *rowio.Writer
	handler Handler[[]string]
	logger  *slog.Logger

	seq    int
	closed bool
}

var _ RowWriter = (*PlainWriter)(nil)

func newPlainWriter(stream *rowio.Stream, d rowio.Dialect, handler Handler[[]string], logger *slog.Logger) (*PlainWriter, error) {
	rows, err := rowio.NewWriter(stream.Writer(), d)
	if err != nil {
		return nil, &ConfigError{Option: "dialect", Err: err}
	}
	return &PlainWriter{
		stream:  stream,
		rows:    rows,
		handler: handler,
		logger:  logger,
	}, nil
}

// Write passes fields through the handler and writes the result. A handler
// that omits the row makes Write a no-op.
func (w *PlainWriter) Write(fields []string) error {
	if w.closed {
		return ErrClosed
	}
	w.seq++
	if w.handler != nil {
		res := w.handler(w.seq, fields)
		if res.Omitted() {
			return nil
		}
		fields = res.Value()
	}
	return w.rows.Write(fields)
}

// Flush writes buffered rows to the stream.
func (w *PlainWriter) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.rows.Flush()
}

// Close flushes and releases the stream. It is safe to call more than once;
// the stream is released even when the flush fails.
func (w *PlainWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.rows.Flush()
	if cerr := w.stream.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		w.logger.Error("failed to close writer", "destination", w.stream.Name(), "error", err)
	}
	return err
}
