// =============================================================================
// csvmap - Transformation Engine
// =============================================================================
//
// This module rewrites the values of keyed records as they stream from the
// reader to the writer. A profile's transformation rules and filters are
// compiled once by NewTransformer; Handler then exposes them as a
// csvmap.Handler, so transformed records are kept and filtered records are
// omitted without the reader or writer knowing about profiles.
//
// TRANSFORMATION TYPES:
//   - String manipulations (prepend, append, trim, case conversion, replace)
//   - Numeric formatting (padding, precision)
//   - Date conversions
//   - Lookup table replacements
//   - Defaults and constants
//
// ORDER OF APPLICATION:
//   1. Rules, in profile order. A rule's actions run in order.
//   2. Filters, against the transformed record. Any match drops the record.
//
// A rule for a field the record does not carry is skipped unless one of its
// actions supplies a value ("set", "if_empty_use_default", "default",
// "if_empty_use_field").
//
// =============================================================================

package converter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ginjaninja78/csvmap/internal/config"
	"github.com/ginjaninja78/csvmap/pkg/csvmap"
)

// =============================================================================
// TRANSFORMER
// =============================================================================

// step rewrites one value. record is the whole record, for actions that
// read other fields.
type step func(value string, record map[string]string) string

type compiledRule struct {
	field   string
	steps   []step
	creates bool
}

type compiledFilter struct {
	field string
	match func(value string, present bool) bool
}

// Transformer applies compiled transformation rules and filters to keyed
// records.
type Transformer struct {
	rules   []compiledRule
	filters []compiledFilter
}

// NewTransformer compiles rules and filters.
//
// PARAMETERS:
//   - rules: The transformation rules, applied in order.
//   - filters: The filters; a record matching any of them is dropped.
//
// RETURNS:
//   - The compiled Transformer.
//   - An error naming the first unknown action or condition, or the first
//     malformed parameter (bad regex, non-numeric length, bad date layout).
func NewTransformer(rules []config.TransformationRule, filters []config.FilterRule) (*Transformer, error) {
	t := &Transformer{}

	for _, rule := range rules {
		compiled := compiledRule{field: rule.Field}
		for _, action := range rule.Actions {
			s, creates, err := compileAction(action)
			if err != nil {
				return nil, fmt.Errorf("field '%s': transformation '%s': %w", rule.Field, action.Type, err)
			}
			compiled.steps = append(compiled.steps, s)
			compiled.creates = compiled.creates || creates
		}
		t.rules = append(t.rules, compiled)
	}

	for _, filter := range filters {
		match, err := compileFilter(filter)
		if err != nil {
			return nil, fmt.Errorf("filter on '%s': %w", filter.Field, err)
		}
		t.filters = append(t.filters, compiledFilter{field: filter.Field, match: match})
	}

	return t, nil
}

// Apply transforms record in place and reports whether it survives the
// filters.
func (t *Transformer) Apply(record map[string]string) bool {
	for _, rule := range t.rules {
		value, present := record[rule.field]
		if !present && !rule.creates {
			continue
		}
		for _, s := range rule.steps {
			value = s(value, record)
		}
		if present || value != "" {
			record[rule.field] = value
		}
	}

	for _, filter := range t.filters {
		value, present := record[filter.field]
		if filter.match(value, present) {
			return false
		}
	}
	return true
}

// Empty reports whether the transformer has nothing to do.
func (t *Transformer) Empty() bool {
	return len(t.rules) == 0 && len(t.filters) == 0
}

// Handler adapts the transformer to a keyed record handler. dropped, if not
// nil, is called with the line of every filtered record.
func (t *Transformer) Handler(dropped func(line int)) csvmap.Handler[map[string]string] {
	return func(line int, record map[string]string) csvmap.Result[map[string]string] {
		if !t.Apply(record) {
			if dropped != nil {
				dropped(line)
			}
			return csvmap.Omit[map[string]string]()
		}
		return csvmap.Keep(record)
	}
}

// =============================================================================
// ACTION COMPILATION
// =============================================================================

// compileAction turns one configured action into a step. creates reports
// whether the step can supply a value for a missing field.
//
// SUPPORTED TRANSFORMATIONS:
//   See the switch statement below for all supported transformation types.
func compileAction(action config.TransformationAction) (s step, creates bool, err error) {
	switch action.Type {

	// =========================================================================
	// STRING MANIPULATIONS
	// =========================================================================

	case "prepend_string":
		// "123456" with "A" -> "A123456"
		return func(v string, _ map[string]string) string { return action.Value + v }, false, nil

	case "append_string":
		// "123456" with "-00" -> "123456-00"
		return func(v string, _ map[string]string) string { return v + action.Value }, false, nil

	case "trim":
		return func(v string, _ map[string]string) string { return strings.TrimSpace(v) }, false, nil

	case "trim_left":
		cutset := action.Value
		if cutset == "" {
			cutset = " \t\n\r"
		}
		return func(v string, _ map[string]string) string { return strings.TrimLeft(v, cutset) }, false, nil

	case "trim_right":
		cutset := action.Value
		if cutset == "" {
			cutset = " \t\n\r"
		}
		return func(v string, _ map[string]string) string { return strings.TrimRight(v, cutset) }, false, nil

	case "uppercase":
		return func(v string, _ map[string]string) string { return strings.ToUpper(v) }, false, nil

	case "lowercase":
		return func(v string, _ map[string]string) string { return strings.ToLower(v) }, false, nil

	case "title_case":
		caser := cases.Title(language.Und)
		return func(v string, _ map[string]string) string { return caser.String(strings.ToLower(v)) }, false, nil

	case "replace":
		// "hello-world" with find "-" and value "_" -> "hello_world"
		if action.Find == "" {
			return nil, false, fmt.Errorf("find must not be empty")
		}
		return func(v string, _ map[string]string) string {
			return strings.ReplaceAll(v, action.Find, action.Value)
		}, false, nil

	case "regex_replace":
		// "ABC-123-DEF" with find "[A-Z]+" and value "X" -> "X-123-X"
		re, err := regexp.Compile(action.Find)
		if err != nil {
			return nil, false, fmt.Errorf("invalid regex pattern: %w", err)
		}
		return func(v string, _ map[string]string) string { return re.ReplaceAllString(v, action.Value) }, false, nil

	case "substring":
		// VALUE FORMAT: "start,end" in characters, end exclusive.
		// "ABCDEFGH" with "2,5" -> "CDE"
		start, end, ok := parseRange(action.Value)
		if !ok {
			return nil, false, fmt.Errorf("value must be \"start,end\", got %q", action.Value)
		}
		return func(v string, _ map[string]string) string {
			runes := []rune(v)
			hi := min(end, len(runes))
			if start >= hi {
				return ""
			}
			return string(runes[start:hi])
		}, false, nil

	case "truncate":
		length, err := parseLength(action.Value)
		if err != nil {
			return nil, false, err
		}
		return func(v string, _ map[string]string) string { return truncate(v, length) }, false, nil

	case "extract_digits":
		// "ABC-123-DEF-456" -> "123456"
		return keepRunes(func(r rune) bool { return r >= '0' && r <= '9' }), false, nil

	case "extract_letters":
		return keepRunes(func(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }), false, nil

	case "remove_special_chars":
		return keepRunes(func(r rune) bool {
			return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		}), false, nil

	case "normalize_whitespace":
		return func(v string, _ map[string]string) string { return strings.Join(strings.Fields(v), " ") }, false, nil

	// =========================================================================
	// NUMERIC FORMATTING
	// =========================================================================

	case "pad_zeros_to_length":
		// "123" with "8" -> "00000123"
		length, err := parseLength(action.Value)
		if err != nil {
			return nil, false, err
		}
		return func(v string, _ map[string]string) string { return PadLeft(v, length, '0') }, false, nil

	case "pad_spaces_to_length":
		length, err := parseLength(action.Value)
		if err != nil {
			return nil, false, err
		}
		return func(v string, _ map[string]string) string { return PadRight(v, length, ' ') }, false, nil

	case "ensure_length":
		// Longer values are cut on the right, shorter ones zero-padded on
		// the left.
		length, err := parseLength(action.Value)
		if err != nil {
			return nil, false, err
		}
		return func(v string, _ map[string]string) string {
			return PadLeft(truncate(v, length), length, '0')
		}, false, nil

	case "format_number":
		// "1234.5" with "2" -> "1234.50". Non-numeric values pass unchanged.
		places, err := strconv.Atoi(action.Value)
		if err != nil || places < 0 {
			return nil, false, fmt.Errorf("value must be a number of decimal places, got %q", action.Value)
		}
		return func(v string, _ map[string]string) string { return formatNumber(v, places) }, false, nil

	case "format_currency":
		return func(v string, _ map[string]string) string { return formatNumber(v, 2) }, false, nil

	case "remove_leading_zeros":
		// "00012345" -> "12345", "000" -> "0"
		return func(v string, _ map[string]string) string {
			if v == "" {
				return v
			}
			if trimmed := strings.TrimLeft(v, "0"); trimmed != "" {
				return trimmed
			}
			return "0"
		}, false, nil

	// =========================================================================
	// DATE CONVERSIONS
	// =========================================================================

	case "format_date":
		// VALUE FORMAT: "input_layout|output_layout" in Go layouts.
		// "01/15/2024" with "01/02/2006|2006-01-02" -> "2024-01-15"
		// Values that do not parse pass unchanged.
		in, out, ok := strings.Cut(action.Value, "|")
		in, out = strings.TrimSpace(in), strings.TrimSpace(out)
		if !ok || in == "" || out == "" {
			return nil, false, fmt.Errorf("value must be \"input_layout|output_layout\", got %q", action.Value)
		}
		return func(v string, _ map[string]string) string {
			t, err := time.Parse(in, v)
			if err != nil {
				return v
			}
			return t.Format(out)
		}, false, nil

	// =========================================================================
	// LOOKUPS AND DEFAULTS
	// =========================================================================

	case "lookup":
		// Values missing from the table pass unchanged.
		table := action.LookupTable
		return func(v string, _ map[string]string) string {
			if replacement, ok := table[v]; ok {
				return replacement
			}
			return v
		}, false, nil

	case "lookup_with_default":
		// Values missing from the table become Value.
		table := action.LookupTable
		return func(v string, _ map[string]string) string {
			if replacement, ok := table[v]; ok {
				return replacement
			}
			return action.Value
		}, false, nil

	case "if_empty_use_default", "default":
		return func(v string, _ map[string]string) string {
			if strings.TrimSpace(v) == "" {
				return action.Value
			}
			return v
		}, true, nil

	case "if_empty_use_field":
		if action.Value == "" {
			return nil, false, fmt.Errorf("value must name a field")
		}
		return func(v string, record map[string]string) string {
			if strings.TrimSpace(v) == "" {
				if other, ok := record[action.Value]; ok {
					return other
				}
			}
			return v
		}, true, nil

	case "set":
		return func(string, map[string]string) string { return action.Value }, true, nil

	default:
		return nil, false, fmt.Errorf("unknown transformation type: %s", action.Type)
	}
}

// compileFilter turns a filter condition into a predicate.
func compileFilter(filter config.FilterRule) (func(value string, present bool) bool, error) {
	switch filter.Condition {
	case "empty":
		return func(v string, _ bool) bool { return strings.TrimSpace(v) == "" }, nil
	case "not_empty":
		return func(v string, _ bool) bool { return strings.TrimSpace(v) != "" }, nil
	case "equals":
		return func(v string, present bool) bool { return present && v == filter.Value }, nil
	case "not_equals":
		return func(v string, _ bool) bool { return v != filter.Value }, nil
	case "contains":
		return func(v string, _ bool) bool { return strings.Contains(v, filter.Value) }, nil
	case "matches":
		re, err := regexp.Compile(filter.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		return func(v string, present bool) bool { return present && re.MatchString(v) }, nil
	default:
		return nil, fmt.Errorf("unknown filter condition: %q", filter.Condition)
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// PadLeft pads s on the left with padChar to length characters.
func PadLeft(s string, length int, padChar rune) string {
	n := utf8.RuneCountInString(s)
	if n >= length {
		return s
	}
	return strings.Repeat(string(padChar), length-n) + s
}

// PadRight pads s on the right with padChar to length characters.
func PadRight(s string, length int, padChar rune) string {
	n := utf8.RuneCountInString(s)
	if n >= length {
		return s
	}
	return s + strings.Repeat(string(padChar), length-n)
}

func truncate(s string, length int) string {
	if utf8.RuneCountInString(s) <= length {
		return s
	}
	return string([]rune(s)[:length])
}

func keepRunes(keep func(rune) bool) step {
	return func(v string, _ map[string]string) string {
		return strings.Map(func(r rune) rune {
			if keep(r) {
				return r
			}
			return -1
		}, v)
	}
}

func formatNumber(v string, places int) string {
	num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return v
	}
	return strconv.FormatFloat(num, 'f', places, 64)
}

func parseLength(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("value must be a positive length, got %q", value)
	}
	return n, nil
}

func parseRange(value string) (start, end int, ok bool) {
	lo, hi, found := strings.Cut(value, ",")
	if !found {
		return 0, 0, false
	}
	start, err1 := strconv.Atoi(strings.TrimSpace(lo))
	end, err2 := strconv.Atoi(strings.TrimSpace(hi))
	if err1 != nil || err2 != nil || start < 0 || end < start {
		return 0, 0, false
	}
	return start, end, true
}
