package csvmap

import (
	"fmt"
	"log/slog"
	"strings"
)

// RecordWriter writes records of type T under a declared field list. Without
// minimization the header is written when the writer is created and rows go
// straight out; with it, rows pass through a DeferredHeaderWriter.
type RecordWriter[T any] struct {
	names    []string
	declared map[string]struct{}
	restVal  string
	extras   ExtrasAction
	extract  func(T) ([]Pair, error)
	handler  Handler[T]
	logger   *slog.Logger

	plain    *PlainWriter
	deferred *DeferredHeaderWriter

	seq    int
	closed bool
}

// KeyedWriter writes one map per record.
type KeyedWriter = RecordWriter[map[string]string]

func newRecordWriter[T any](plain *PlainWriter, names []string, extract func(T) ([]Pair, error), handler Handler[T], o *options) (*RecordWriter[T], error) {
	w := &RecordWriter[T]{
		names:    names,
		declared: make(map[string]struct{}, len(names)),
		restVal:  o.restValue(),
		extras:   o.extras,
		extract:  extract,
		handler:  handler,
		logger:   o.logger,
		plain:    plain,
	}
	for _, n := range names {
		w.declared[n] = struct{}{}
	}

	if o.minimize {
		d, err := NewDeferredHeaderWriter(plain, names, DeferredOptions{
			Include:        o.include,
			RestVal:        w.restVal,
			SpillThreshold: o.spillThreshold,
			SpillDir:       o.spillDir,
			Logger:         o.logger,
		})
		if err != nil {
			return nil, err
		}
		w.deferred = d
		return w, nil
	}

	if err := plain.Write(names); err != nil {
		return nil, err
	}
	return w, nil
}

// Fields returns the header: the declared names, or for a minimizing writer
// the finalized header (nil until Finalize).
func (w *RecordWriter[T]) Fields() []string {
	if w.deferred != nil {
		return w.deferred.Fields()
	}
	return w.names
}

// Write extracts v's values and writes them. A handler that omits v makes
// Write a no-op. With ExtrasRaise, values for undeclared names fail the
// write with ErrUnknownFields and nothing is written.
func (w *RecordWriter[T]) Write(v T) error {
	if w.closed {
		return ErrClosed
	}
	w.seq++

	if w.handler != nil {
		res := w.handler(w.seq, v)
		if res.Omitted() {
			return nil
		}
		v = res.Value()
	}

	pairs, err := w.extract(v)
	if err != nil {
		return fmt.Errorf("record %d: %w", w.seq, err)
	}

	if w.extras == ExtrasRaise {
		var unknown []string
		for _, p := range pairs {
			if _, ok := w.declared[p.Key]; !ok {
				unknown = append(unknown, p.Key)
			}
		}
		if len(unknown) > 0 {
			return fmt.Errorf("record %d: %w: %s", w.seq, ErrUnknownFields, strings.Join(unknown, ", "))
		}
	}

	if w.deferred != nil {
		return w.deferred.Write(pairs)
	}
	return w.plain.Write(layout(w.names, pairs, w.restVal))
}

// Finalize commits a minimizing writer's header and writes its buffered
// records. It does nothing for other writers.
func (w *RecordWriter[T]) Finalize() error {
	if w.closed {
		return ErrClosed
	}
	if w.deferred == nil {
		return nil
	}
	return w.deferred.Finalize()
}

// Flush writes buffered output rows to the stream.
func (w *RecordWriter[T]) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.plain.Flush()
}

// Close finalizes, flushes and releases the output. It is safe to call more
// than once.
func (w *RecordWriter[T]) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.deferred != nil {
		return w.deferred.Close()
	}
	return w.plain.Close()
}
