// =============================================================================
// csvmap - Deferred Header Writer
// =============================================================================
//
// DeferredHeaderWriter emits a header containing only the declared names
// that records actually use. Because the header comes first in the output,
// every record is held back in a spill store until the writer is finalized:
//
//   1. Write       : record pairs for declared names are appended to the
//                    store and their names marked as used.
//   2. Finalize    : header = declared names that are used or included, in
//                    declared order. The header is written, every stored
//                    record is replayed in header order (missing values take
//                    RestVal), and the store is released.
//   3. Write again : rows go straight to the output in header order. Names
//                    outside the header are dropped.
//
// The spill store is memory-backed until it passes SpillThreshold bytes and
// then moves to a temporary file, which never outlives Finalize or Close.
//
// =============================================================================

package csvmap

import (
	"fmt"
	"log/slog"

	"github.com/ginjaninja78/csvmap/pkg/spill"
)

// DeferredOptions configures a DeferredHeaderWriter.
type DeferredOptions struct {
	// Include lists names that are always in the header. Each must be one
	// of the declared names.
	Include []string

	// RestVal fills header columns a record has no value for.
	RestVal string

	// SpillThreshold is the in-memory byte budget before records move to
	// disk. Zero selects spill.DefaultThreshold.
	SpillThreshold int64

	// SpillDir is where the spill file is created. Empty selects the system
	// temporary directory.
	SpillDir string

	Logger *slog.Logger
}

// DeferredHeaderWriter buffers records until their used field set is known.
type DeferredHeaderWriter struct {
	out      RowWriter
	names    []string
	declared map[string]struct{}
	include  []string
	restVal  string
	logger   *slog.Logger

	used  map[string]struct{}
	store *spill.SpooledStore

	header    []string
	finalized bool
	closed    bool
}

// NewDeferredHeaderWriter wraps out. It fails with a *ConfigError, before
// anything is written, when names has duplicates or Include names a field
// that is not declared.
func NewDeferredHeaderWriter(out RowWriter, names []string, opts DeferredOptions) (*DeferredHeaderWriter, error) {
	if err := checkNames("fields", names); err != nil {
		return nil, err
	}
	if err := checkSubset("include", opts.Include, names); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	w := &DeferredHeaderWriter{
		out:      out,
		names:    names,
		declared: make(map[string]struct{}, len(names)),
		include:  opts.Include,
		restVal:  opts.RestVal,
		logger:   logger,
		used:     make(map[string]struct{}, len(names)),
		store:    spill.NewSpooledStore(opts.SpillThreshold, opts.SpillDir),
	}
	for _, n := range names {
		w.declared[n] = struct{}{}
	}
	w.store.OnSpill = func(records int, path string) {
		logger.Info("spilled buffered records to disk", "records", records, "path", path)
	}
	return w, nil
}

// Write buffers the pairs for declared names, or writes them in header order
// once the writer is finalized. Pairs for undeclared names are ignored.
func (w *DeferredHeaderWriter) Write(pairs []Pair) error {
	if w.closed {
		return ErrClosed
	}
	if w.finalized {
		return w.out.Write(layout(w.header, pairs, w.restVal))
	}

	flat := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		if _, ok := w.declared[p.Key]; !ok {
			continue
		}
		w.used[p.Key] = struct{}{}
		flat = append(flat, p.Key, p.Value)
	}
	if err := w.store.Append(flat); err != nil {
		return &IOError{Op: "buffer record", Err: err}
	}
	return nil
}

// Finalize writes the header and the buffered records, then switches the
// writer to pass-through. Calling it again does nothing. An empty header
// (no records, nothing included) writes nothing at all.
func (w *DeferredHeaderWriter) Finalize() error {
	if w.closed {
		return ErrClosed
	}
	if w.finalized {
		return nil
	}
	w.finalized = true
	defer w.store.Release()

	included := make(map[string]struct{}, len(w.include))
	for _, n := range w.include {
		included[n] = struct{}{}
	}
	w.header = make([]string, 0, len(w.names))
	for _, n := range w.names {
		_, used := w.used[n]
		_, inc := included[n]
		if used || inc {
			w.header = append(w.header, n)
		}
	}

	w.logger.Debug("finalizing header", "fields", w.header, "records", w.store.Len(), "spilled", w.store.Spilled())
	if len(w.header) == 0 {
		return nil
	}

	if err := w.out.Write(w.header); err != nil {
		return err
	}
	err := w.store.Iterate(func(flat []string) error {
		pairs := make([]Pair, 0, len(flat)/2)
		for i := 0; i+1 < len(flat); i += 2 {
			pairs = append(pairs, Pair{Key: flat[i], Value: flat[i+1]})
		}
		return w.out.Write(layout(w.header, pairs, w.restVal))
	})
	if err != nil {
		return fmt.Errorf("failed to replay buffered records: %w", err)
	}
	return nil
}

// Fields returns the finalized header, or nil before Finalize.
func (w *DeferredHeaderWriter) Fields() []string {
	return w.header
}

// Flush flushes the output. Buffered records stay buffered until Finalize.
func (w *DeferredHeaderWriter) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.out.Flush()
}

// Close finalizes if needed and closes the output. It is safe to call more
// than once; the spill store and the output are released on every path.
func (w *DeferredHeaderWriter) Close() error {
	if w.closed {
		return nil
	}
	err := w.Finalize()
	w.closed = true
	w.store.Release()
	if cerr := w.out.Close(); err == nil {
		err = cerr
	}
	return err
}
