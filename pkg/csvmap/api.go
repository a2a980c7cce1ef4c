// =============================================================================
// csvmap - Entry Points
// =============================================================================
//
// Sources and destinations may be:
//   - a file path (string), opened and closed by the reader or writer
//   - an open io.Reader / io.Writer, which is never closed
//   - a *bytes.Buffer
//   - rowio.Owned(stream), an open stream that Close also closes
//
// Every entry point validates its options before touching the source, so a
// *ConfigError never leaves anything opened behind.
//
// =============================================================================

package csvmap

import (
	"errors"
	"fmt"

	"github.com/ginjaninja78/csvmap/pkg/rowio"
)

// ReadRows reads normalised LineRecords.
//
// A handler set with WithHandler[LineRecord] runs after whitespace handling;
// WithRawHandler runs before it.
func ReadRows(src any, opts ...Option) (*ListMapper, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	handler, err := handlerFor[LineRecord](o)
	if err != nil {
		return nil, err
	}

	m, err := openRows(src, o)
	if err != nil {
		return nil, err
	}
	m.handler = handler
	return m, nil
}

// ReadKeyed reads one map per record. A nil fields list takes the names from
// the first record, which is not returned as data.
func ReadKeyed(src any, fields []string, opts ...Option) (*KeyedReader, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return newRecordReader(src, fields, bindMap, o)
}

// ReadObjects reads one T per record. ctor builds each fresh record; nil
// allocates a zero value. T must implement FieldSetter or be a struct or a
// pointer to a struct.
func ReadObjects[T any](src any, ctor func() T, fields []string, opts ...Option) (*RecordReader[T], error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	bind, err := newBinder(ctor)
	if err != nil {
		return nil, err
	}
	return newRecordReader(src, fields, bind, o)
}

func newRecordReader[T any](src any, fields []string, bind func(int, []Pair) (T, error), o *options) (*RecordReader[T], error) {
	if err := checkNames("fields", fields); err != nil {
		return nil, err
	}
	fm := newFieldMapper(fields, o)
	if err := fm.checkRestKeys(); err != nil {
		return nil, err
	}
	handler, err := handlerFor[T](o)
	if err != nil {
		return nil, err
	}

	rows, err := openRows(src, o)
	if err != nil {
		return nil, err
	}
	return &RecordReader[T]{
		rows:    rows,
		fields:  fm,
		bind:    bind,
		handler: handler,
		logger:  o.logger,
	}, nil
}

func openRows(src any, o *options) (*ListMapper, error) {
	stream, err := openStream(src, rowio.ModeRead, o)
	if err != nil {
		return nil, err
	}
	m, err := newListMapper(stream, o)
	if err != nil {
		stream.Close()
		return nil, err
	}
	o.logger.Debug("opened reader", "source", stream.Name(), "dialect", o.dialect.Name)
	return m, nil
}

// WriteRows writes rows as given. The handler, if any, must be a
// Handler[[]string].
func WriteRows(dst any, opts ...Option) (*PlainWriter, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	handler, err := handlerFor[[]string](o)
	if err != nil {
		return nil, err
	}
	return openPlain(dst, handler, o)
}

// WriteKeyed writes maps under fields. With WithMinimize the header only
// holds the fields that records use, plus any WithInclude fields.
func WriteKeyed(dst any, fields []string, opts ...Option) (*KeyedWriter, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := checkWriterFields(fields, o); err != nil {
		return nil, err
	}
	return newMappedWriter(dst, fields, extractMap(fields), o)
}

// WriteObjects writes records of type T under fields. A nil fields list uses
// the struct's own field names, in declaration order.
func WriteObjects[T any](dst any, fields []string, opts ...Option) (*RecordWriter[T], error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		if fields, err = StructFields[T](); err != nil {
			return nil, err
		}
	}
	if err := checkWriterFields(fields, o); err != nil {
		return nil, err
	}
	extract, err := newExtractor[T](fields)
	if err != nil {
		return nil, err
	}
	return newMappedWriter(dst, fields, extract, o)
}

func checkWriterFields(fields []string, o *options) error {
	if len(fields) == 0 {
		return &ConfigError{Option: "fields", Err: fmt.Errorf("writers need a field list")}
	}
	if err := checkNames("fields", fields); err != nil {
		return err
	}
	return checkSubset("include", o.include, fields)
}

func newMappedWriter[T any](dst any, fields []string, extract func(T) ([]Pair, error), o *options) (*RecordWriter[T], error) {
	handler, err := handlerFor[T](o)
	if err != nil {
		return nil, err
	}
	plain, err := openPlain(dst, nil, o)
	if err != nil {
		return nil, err
	}
	w, err := newRecordWriter(plain, fields, extract, handler, o)
	if err != nil {
		plain.Close()
		return nil, err
	}
	return w, nil
}

func openPlain(dst any, handler Handler[[]string], o *options) (*PlainWriter, error) {
	mode := rowio.ModeWrite
	if o.modeSet {
		mode = o.mode
	}
	if mode == rowio.ModeRead {
		return nil, &ConfigError{Option: "mode", Err: fmt.Errorf("writers cannot use %s mode", mode)}
	}

	stream, err := openStream(dst, mode, o)
	if err != nil {
		return nil, err
	}
	w, err := newPlainWriter(stream, o.dialect, handler, o.logger)
	if err != nil {
		stream.Close()
		return nil, err
	}
	o.logger.Debug("opened writer", "destination", stream.Name(), "mode", mode.String(), "dialect", o.dialect.Name)
	return w, nil
}

// openStream opens the source, reporting encoding problems as ConfigErrors.
func openStream(src any, mode rowio.Mode, o *options) (*rowio.Stream, error) {
	stream, err := rowio.Open(src, mode, o.encoding, o.encErrors)
	if errors.Is(err, rowio.ErrDialect) {
		return nil, &ConfigError{Option: "encoding", Err: err}
	}
	return stream, err
}
