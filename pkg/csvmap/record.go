package csvmap

import (
	"fmt"
	"strings"
)

// LineRecord is one logical row and its 1-based logical record number.
type LineRecord struct {
	Fields  []string
	LineNum int
}

// String renders the record as `Line: N ["a", "b"]`.
func (r LineRecord) String() string {
	quoted := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return fmt.Sprintf("Line: %d [%s]", r.LineNum, strings.Join(quoted, ", "))
}

// Pair is a reconciled name/value binding.
type Pair struct {
	Key   string
	Value string
}

// =============================================================================
// HANDLER RESULTS
// =============================================================================

// Result is what a Handler returns: either a (possibly replaced) record to
// keep, or an explicit omission.
type Result[T any] struct {
	value T
	omit  bool
}

// Keep returns a Result that passes v on.
func Keep[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Omit returns a Result that drops the record.
func Omit[T any]() Result[T] {
	return Result[T]{omit: true}
}

// Omitted reports whether the record is dropped.
func (r Result[T]) Omitted() bool {
	return r.omit
}

// Value returns the kept record.
func (r Result[T]) Value() T {
	return r.value
}

// Handler filters or transforms a record. line is the record's logical line
// number on read, or the 1-based write sequence number on write.
type Handler[T any] func(line int, v T) Result[T]
