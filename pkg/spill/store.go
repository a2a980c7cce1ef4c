// Package spill provides append-only record buffers used to hold rows until
// they can be replayed. Records are ordered string sequences; Iterate returns
// them in append order.
//
// Three backends are provided:
//   - MemoryStore keeps records in memory.
//   - DiskStore keeps records in a temporary file that is removed on Release.
//   - SpooledStore starts in memory and moves to disk once its in-memory size
//     passes a threshold.
//
// Stores are single-owner and not safe for concurrent use.
package spill

import "errors"

// DefaultThreshold is the in-memory size at which a SpooledStore moves to
// disk (10 MiB).
const DefaultThreshold int64 = 10 << 20

// ErrReleased is returned by operations on a released store.
var ErrReleased = errors.New("spill store released")

// Store is an append-only record buffer.
type Store interface {
	// Append adds a copy of record to the end of the store.
	Append(record []string) error

	// Iterate calls fn for each record in append order, stopping at the
	// first error fn returns.
	Iterate(fn func(record []string) error) error

	// Len returns the number of records appended.
	Len() int

	// Release frees the store's resources. It is safe to call more than once.
	Release() error
}

// recordSize approximates the memory held by a record.
func recordSize(record []string) int64 {
	size := int64(len(record)) * 16
	for _, f := range record {
		size += int64(len(f))
	}
	return size
}
