// =============================================================================
// csvmap - Field Mapper
// =============================================================================
//
// FieldMapper reconciles a row of N values against M names. Given N names
// and a row of M fields:
//
//   M == N                 : names zip to values, in order
//   M <  N, RestVal set    : missing trailing names take RestVal
//   M <  N, no RestVal     : *ArityError (Insufficient)
//   M >  N, RestKey set    : extra values bind to RestKey+0, RestKey+1, ...
//   M >  N, no RestKey     : *ArityError (TooMany)
//
// After arity is settled, a row whose values equal the names positionally
// is dropped when IgnoreRowsWithFields is set. This catches repeated header
// rows, and also any genuine data row that happens to equal the header.
// Renames apply to named keys only; synthesised rest keys keep their names.
// A name that a rest key could take (RestKey followed by an index) is a
// ConfigError, since the two values would share one key.
//
// =============================================================================

package csvmap

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// FieldMapper holds the name list and the reconciliation policies.
type FieldMapper struct {
	Names                []string
	RestKey              *string
	RestVal              *string
	IgnoreRowsWithFields bool
	Rename               map[string]string
}

func newFieldMapper(names []string, o *options) *FieldMapper {
	return &FieldMapper{
		Names:                names,
		RestKey:              o.restKey,
		RestVal:              o.restVal,
		IgnoreRowsWithFields: o.ignoreRowsWithFields,
		Rename:               o.rename,
	}
}

// Reconcile maps rec onto the names. drop is true for suppressed header
// rows; err is an *ArityError when the row width cannot be reconciled.
func (f *FieldMapper) Reconcile(rec LineRecord) (pairs []Pair, drop bool, err error) {
	n, m := len(f.Names), len(rec.Fields)

	switch {
	case m < n && f.RestVal == nil:
		return nil, false, &ArityError{Line: rec.LineNum, Expected: n, Actual: m, Direction: Insufficient}
	case m > n && f.RestKey == nil:
		return nil, false, &ArityError{Line: rec.LineNum, Expected: n, Actual: m, Direction: TooMany}
	}

	if f.IgnoreRowsWithFields && slices.Equal(rec.Fields, f.Names) {
		return nil, true, nil
	}

	pairs = make([]Pair, 0, max(n, m))
	for i, name := range f.Names {
		var value string
		if i < m {
			value = rec.Fields[i]
		} else {
			value = *f.RestVal
		}
		pairs = append(pairs, Pair{Key: f.rename(name), Value: value})
	}
	for i := n; i < m; i++ {
		pairs = append(pairs, Pair{Key: *f.RestKey + strconv.Itoa(i-n), Value: rec.Fields[i]})
	}
	return pairs, false, nil
}

// checkRestKeys rejects names that a synthesised rest key could take.
func (f *FieldMapper) checkRestKeys() error {
	if f.RestKey == nil || f.Names == nil {
		return nil
	}
	var clash []string
	for _, name := range f.OutputNames() {
		suffix, ok := strings.CutPrefix(name, *f.RestKey)
		if !ok || suffix == "" {
			continue
		}
		if i, err := strconv.Atoi(suffix); err == nil && i >= 0 && strconv.Itoa(i) == suffix {
			clash = append(clash, name)
		}
	}
	if len(clash) > 0 {
		return &ConfigError{Option: "rest key", Err: fmt.Errorf("%q collides with field names: %s", *f.RestKey, strings.Join(clash, ", "))}
	}
	return nil
}

func (f *FieldMapper) rename(name string) string {
	if to, ok := f.Rename[name]; ok {
		return to
	}
	return name
}

// OutputNames returns the names after renaming.
func (f *FieldMapper) OutputNames() []string {
	out := make([]string, len(f.Names))
	for i, name := range f.Names {
		out[i] = f.rename(name)
	}
	return out
}

// layout orders pairs by header. Header names without a pair take restVal;
// pairs outside the header are dropped.
func layout(header []string, pairs []Pair, restVal string) []string {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		values[p.Key] = p.Value
	}
	out := make([]string, len(header))
	for i, name := range header {
		if v, ok := values[name]; ok {
			out[i] = v
		} else {
			out[i] = restVal
		}
	}
	return out
}

// =============================================================================
// NAME LIST CHECKS
// =============================================================================

// checkNames rejects duplicate or empty name lists given at construction.
func checkNames(option string, names []string) error {
	if names != nil && len(names) == 0 {
		return &ConfigError{Option: option, Err: fmt.Errorf("empty field list")}
	}
	if dups := duplicates(names); len(dups) > 0 {
		return &ConfigError{Option: option, Err: fmt.Errorf("duplicate field names: %v", dups)}
	}
	return nil
}

// checkSubset returns a ConfigError naming the members of subset that are
// not in names.
func checkSubset(option string, subset, names []string) error {
	var missing []string
	for _, name := range subset {
		if !slices.Contains(names, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return unknownFields(option, missing)
	}
	return nil
}

// duplicates returns names that occur more than once.
func duplicates(names []string) []string {
	seen := make(map[string]int, len(names))
	var out []string
	for _, name := range names {
		seen[name]++
		if seen[name] == 2 {
			out = append(out, name)
		}
	}
	return out
}
