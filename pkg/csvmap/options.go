// =============================================================================
// csvmap - Options
// =============================================================================
//
// All readers and writers are configured with functional options. Options
// that do not apply to a given reader or writer are ignored, so a single
// option slice can be shared between a reader and a writer.
//
// DEFAULTS:
//   dialect                  : excel (comma, strict quoting, CRLF)
//   ignore blanks            : true
//   ignore rows with fields  : true
//   leading/trailing ws      : stripped
//   minimize                 : false
//   extras action            : ignore
//   spill threshold          : 10 MiB
//
// =============================================================================

package csvmap

import (
	"fmt"
	"log/slog"

	"github.com/ginjaninja78/csvmap/pkg/rowio"
	"github.com/ginjaninja78/csvmap/pkg/spill"
)

// ExtrasAction decides what a keyed or object writer does with record keys
// that are not among its declared fields.
type ExtrasAction int

const (
	// ExtrasIgnore drops undeclared keys.
	ExtrasIgnore ExtrasAction = iota

	// ExtrasRaise fails the write with ErrUnknownFields.
	ExtrasRaise
)

// ParseExtrasAction converts "ignore" or "raise" into an ExtrasAction.
func ParseExtrasAction(s string) (ExtrasAction, error) {
	switch s {
	case "", "ignore":
		return ExtrasIgnore, nil
	case "raise":
		return ExtrasRaise, nil
	default:
		return ExtrasIgnore, &ConfigError{Option: "extras action", Err: fmt.Errorf("unknown action %q", s)}
	}
}

// Option configures a reader or writer.
type Option func(*options)

type options struct {
	// Dialect and stream.
	dialect     rowio.Dialect
	dialectName string
	delimiter   string
	strict      *bool
	encoding    string
	encErrors   string
	mode        rowio.Mode
	modeSet     bool

	// Row normalisation.
	leadingWS    bool
	trailingWS   bool
	ignoreBlanks bool
	rawHandler   Handler[LineRecord]

	// Reconciliation.
	restKey              *string
	restVal              *string
	ignoreRowsWithFields bool
	rename               map[string]string

	// Record handler; its type is checked against the record type.
	handler any

	// Writers.
	minimize       bool
	include        []string
	extras         ExtrasAction
	spillThreshold int64
	spillDir       string

	logger *slog.Logger
}

// WithDialect sets the full dialect.
func WithDialect(d rowio.Dialect) Option {
	return func(o *options) {
		o.dialect = d
		o.dialectName = ""
	}
}

// WithDialectName selects a registered dialect ("excel", "excel-tab", "pipe").
func WithDialectName(name string) Option {
	return func(o *options) {
		o.dialectName = name
	}
}

// WithDelimiter overrides the dialect's delimiter. Aliases such as "tab" or
// "pipe" are accepted.
func WithDelimiter(delimiter string) Option {
	return func(o *options) {
		o.delimiter = delimiter
	}
}

// WithStrict overrides the dialect's strict quoting flag.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = &strict
	}
}

// WithEncoding sets the text encoding and its error policy ("strict" or
// "replace").
func WithEncoding(name, errorsPolicy string) Option {
	return func(o *options) {
		o.encoding = name
		o.encErrors = errorsPolicy
	}
}

// WithMode sets how writers open path destinations (write or append).
func WithMode(mode rowio.Mode) Option {
	return func(o *options) {
		o.mode = mode
		o.modeSet = true
	}
}

// WithLeadingWS preserves leading whitespace in fields.
func WithLeadingWS(keep bool) Option {
	return func(o *options) {
		o.leadingWS = keep
	}
}

// WithTrailingWS preserves trailing whitespace in fields.
func WithTrailingWS(keep bool) Option {
	return func(o *options) {
		o.trailingWS = keep
	}
}

// WithIgnoreBlanks controls whether empty rows are dropped (default true).
func WithIgnoreBlanks(ignore bool) Option {
	return func(o *options) {
		o.ignoreBlanks = ignore
	}
}

// WithRawHandler filters or transforms rows before whitespace handling and
// reconciliation.
func WithRawHandler(h Handler[LineRecord]) Option {
	return func(o *options) {
		o.rawHandler = h
	}
}

// WithRestKey binds surplus row values under prefix+index keys.
func WithRestKey(prefix string) Option {
	return func(o *options) {
		o.restKey = &prefix
	}
}

// WithRestVal fills missing values: trailing names on read, undeclared
// values on write.
func WithRestVal(value string) Option {
	return func(o *options) {
		o.restVal = &value
	}
}

// WithIgnoreRowsWithFields controls whether rows equal to the header are
// dropped (default true). Note that this also drops genuine data rows whose
// values happen to equal the header names.
func WithIgnoreRowsWithFields(ignore bool) Option {
	return func(o *options) {
		o.ignoreRowsWithFields = ignore
	}
}

// WithFieldRename renames fields after reconciliation. Unmapped names pass
// through unchanged.
func WithFieldRename(rename map[string]string) Option {
	return func(o *options) {
		o.rename = rename
	}
}

// WithHandler sets the per-record handler. T must match the record type of
// the reader or writer it is given to: []string for row writers,
// map[string]string for keyed readers and writers, the object type for
// object readers and writers.
func WithHandler[T any](h Handler[T]) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithMinimize makes keyed and object writers emit only the declared fields
// that are actually used, buffering rows until close.
func WithMinimize(minimize bool) Option {
	return func(o *options) {
		o.minimize = minimize
	}
}

// WithInclude lists fields that a minimizing writer always emits. Every name
// must be a declared field.
func WithInclude(fields ...string) Option {
	return func(o *options) {
		o.include = fields
	}
}

// WithExtrasAction sets how writers treat undeclared record keys.
func WithExtrasAction(action ExtrasAction) Option {
	return func(o *options) {
		o.extras = action
	}
}

// WithSpillThreshold sets the in-memory size after which a minimizing
// writer spills buffered rows to disk.
func WithSpillThreshold(bytes int64) Option {
	return func(o *options) {
		o.spillThreshold = bytes
	}
}

// WithSpillDir sets the directory for spill files.
func WithSpillDir(dir string) Option {
	return func(o *options) {
		o.spillDir = dir
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// buildOptions applies opts over the defaults and resolves the dialect.
func buildOptions(opts []Option) (*options, error) {
	o := &options{
		dialect:              rowio.Excel(),
		ignoreBlanks:         true,
		ignoreRowsWithFields: true,
		spillThreshold:       spill.DefaultThreshold,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	if o.dialectName != "" {
		d, err := rowio.LookupDialect(o.dialectName)
		if err != nil {
			return nil, &ConfigError{Option: "dialect", Err: err}
		}
		o.dialect = d
	}
	if o.delimiter != "" {
		r, err := rowio.ParseDelimiter(o.delimiter)
		if err != nil {
			return nil, &ConfigError{Option: "delimiter", Err: err}
		}
		o.dialect.Delimiter = r
	}
	if o.strict != nil {
		o.dialect.Strict = *o.strict
	}
	if err := o.dialect.Validate(); err != nil {
		return nil, &ConfigError{Option: "dialect", Err: err}
	}
	return o, nil
}

// handlerFor extracts the record handler for record type T.
func handlerFor[T any](o *options) (Handler[T], error) {
	if o.handler == nil {
		return nil, nil
	}
	h, ok := o.handler.(Handler[T])
	if !ok {
		var zero T
		return nil, &ConfigError{Option: "handler", Err: fmt.Errorf("handler type %T does not accept %T records", o.handler, zero)}
	}
	return h, nil
}

func (o *options) restValue() string {
	if o.restVal == nil {
		return ""
	}
	return *o.restVal
}
