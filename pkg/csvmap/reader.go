package csvmap

import (
	"errors"
	"io"
	"iter"
	"log/slog"
)

// RecordReader maps rows onto records of type T. Each record is
// reconciled independently, so after an *ArityError or a *BindError the
// next Read carries on with the following row.
type RecordReader[T any] struct {
	rows    *ListMapper
	fields  *FieldMapper
	bind    func(line int, pairs []Pair) (T, error)
	handler Handler[T]
	logger  *slog.Logger

	line int
	err  error
}

// KeyedReader yields one map per record.
type KeyedReader = RecordReader[map[string]string]

// Fields returns the name list, or nil while the header has not been read.
func (r *RecordReader[T]) Fields() []string {
	return r.fields.Names
}

// Keys returns the names records carry after renaming, or nil while the
// header has not been read.
func (r *RecordReader[T]) Keys() []string {
	if r.fields.Names == nil {
		return nil
	}
	return r.fields.OutputNames()
}

// Line returns the line number of the record last returned by Read.
func (r *RecordReader[T]) Line() int {
	return r.line
}

// Read returns the next record, io.EOF at the end of input, or an error.
// Recoverable reports whether the error concerned only one record.
func (r *RecordReader[T]) Read() (T, error) {
	var zero T
	if r.err != nil {
		return zero, r.err
	}
	for {
		rec, err := r.rows.Read()
		if err != nil {
			return zero, err
		}
		r.line = rec.LineNum

		if r.fields.Names == nil {
			// Blank lines before the header are not a header.
			if len(rec.Fields) == 0 {
				continue
			}
			if err := r.harvest(rec); err != nil {
				r.err = err
				return zero, err
			}
			continue
		}

		pairs, drop, err := r.fields.Reconcile(rec)
		if err != nil {
			return zero, err
		}
		if drop {
			r.logger.Debug("dropped header row", "line", rec.LineNum)
			continue
		}

		v, err := r.bind(rec.LineNum, pairs)
		if err != nil {
			return zero, err
		}

		if r.handler != nil {
			res := r.handler(rec.LineNum, v)
			if res.Omitted() {
				continue
			}
			v = res.Value()
		}
		return v, nil
	}
}

// harvest takes the names from rec. A header that clashes with the rest key
// fails the reader for good.
func (r *RecordReader[T]) harvest(rec LineRecord) error {
	r.fields.Names = rec.Fields
	if err := r.fields.checkRestKeys(); err != nil {
		return err
	}
	if dups := duplicates(rec.Fields); len(dups) > 0 {
		r.logger.Warn("header has duplicate names, later values win", "line", rec.LineNum, "names", dups)
	}
	r.logger.Debug("read header", "line", rec.LineNum, "fields", rec.Fields)
	return nil
}

// All returns an iterator over the remaining records. Recoverable errors are
// yielded and iteration continues; fatal errors end it. The stream is
// closed when the loop ends for any reason.
func (r *RecordReader[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer r.Close()
		for {
			v, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(v, err) {
				return
			}
			if err != nil && !Recoverable(err) {
				return
			}
		}
	}
}

// Close releases the underlying stream. It is safe to call more than once.
func (r *RecordReader[T]) Close() error {
	return r.rows.Close()
}

// bindMap is the binder for keyed readers.
func bindMap(_ int, pairs []Pair) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.Key] = p.Value
	}
	return m, nil
}
