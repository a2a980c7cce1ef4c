package csvmap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ginjaninja78/csvmap/pkg/rowio"
)

// =============================================================================
// SENTINELS
// =============================================================================

var (
	// ErrArity matches every *ArityError.
	ErrArity = errors.New("field count mismatch")

	// ErrConfig matches every *ConfigError.
	ErrConfig = errors.New("invalid configuration")

	// ErrUnknownFields reports field names outside the declared field list.
	ErrUnknownFields = errors.New("fields not declared")

	// ErrClosed is returned by operations on a closed reader or writer.
	ErrClosed = errors.New("already closed")
)

// ParseError and IOError are produced by the row tokenizer layer.
type (
	ParseError = rowio.ParseError
	IOError    = rowio.IOError
)

// =============================================================================
// ARITY ERRORS
// =============================================================================

// Direction tells whether a row had too few or too many fields.
type Direction int

const (
	// Insufficient means the row had fewer fields than names.
	Insufficient Direction = iota

	// TooMany means the row had more fields than names.
	TooMany
)

func (d Direction) String() string {
	if d == TooMany {
		return "too many fields"
	}
	return "insufficient fields"
}

// ArityError reports a row whose field count does not match the name list
// and for which no rest policy applies. It only concerns its own record;
// the reader can keep going.
type ArityError struct {
	Line      int
	Expected  int
	Actual    int
	Direction Direction
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("line %d: %s (expected %d, got %d)", e.Line, e.Direction, e.Expected, e.Actual)
}

func (e *ArityError) Is(target error) bool {
	return target == ErrArity
}

// =============================================================================
// CONFIGURATION ERRORS
// =============================================================================

// ConfigError reports invalid construction-time options. It is returned
// before any I/O happens, except when a header read from the input clashes
// with the options; then the first Read returns it.
type ConfigError struct {
	Option string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Option, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func unknownFields(option string, names []string) *ConfigError {
	return &ConfigError{
		Option: option,
		Err:    fmt.Errorf("%w: %s", ErrUnknownFields, strings.Join(names, ", ")),
	}
}

// =============================================================================
// BINDING ERRORS
// =============================================================================

// BindError reports a value that could not be assigned to (or read from) an
// attribute of a record object.
type BindError struct {
	Line  int
	Field string
	Err   error
}

func (e *BindError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: field %q: %v", e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether err concerns only the record it was returned
// for, so that reading can continue with the next record.
func Recoverable(err error) bool {
	var ae *ArityError
	var be *BindError
	return errors.As(err, &ae) || errors.As(err, &be)
}
