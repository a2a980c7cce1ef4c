// =============================================================================
// csvmap - Record Validation
// =============================================================================
//
// This module checks mapped records against per-field rules before they are
// written. Rules come from the profile's validation_rules and from the
// validation columns of a field template.
//
// FIELD RULES:
//   - required    : the value must not be empty
//   - required_if : the value must not be empty when a condition on the
//                   same record holds
//   - max_length  : the value has at most this many characters
//   - data_type   : the value parses as the type (see validateDataType)
//   - pattern     : the value matches a regular expression
//
// Empty values pass every check except the two required checks.
//
// ERROR HANDLING:
//   - All failing checks of a record are collected into one *RecordError
//   - Rules are compiled once; malformed conditions, patterns or data types
//     fail NewValidator, not the records
//
// =============================================================================

package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidRule marks a rule that cannot be compiled.
var ErrInvalidRule = errors.New("invalid validation rule")

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError is one failed check.
type ValidationError struct {
	// Field is the field that failed validation.
	Field string

	// Value is the value that failed validation.
	Value string

	// Rule is the check that failed: "required", "required_if",
	// "max_length", "data_type" or "pattern".
	Rule string

	// Message is a human-readable description.
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field '%s': %s (value: '%s')", e.Field, e.Message, e.Value)
}

// RecordError collects the failed checks of one record.
type RecordError struct {
	// Line is the record's line number.
	Line int

	Errors []*ValidationError
}

func (e *RecordError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("record %d failed validation: %s", e.Line, strings.Join(msgs, "; "))
}

// =============================================================================
// RULES
// =============================================================================

// Rule is the validation of one field.
type Rule struct {
	Field      string
	Required   bool
	RequiredIf string
	MaxLength  int
	DataType   string
	Pattern    string
}

type compiledRule struct {
	Rule
	condition func(record map[string]string) bool
	pattern   *regexp.Regexp
}

// Validator checks records against compiled rules.
type Validator struct {
	rules []compiledRule
}

// NewValidator compiles the rules.
//
// RETURNS:
//   - The validator.
//   - An error wrapping ErrInvalidRule for a rule without a field, an
//     unknown data type, a negative max_length, or a condition or pattern
//     that does not parse.
func NewValidator(rules []Rule) (*Validator, error) {
	v := &Validator{}
	for _, rule := range rules {
		if rule.Field == "" {
			return nil, fmt.Errorf("%w: rule without a field", ErrInvalidRule)
		}
		if rule.MaxLength < 0 {
			return nil, fmt.Errorf("%w: field '%s': max_length must not be negative", ErrInvalidRule, rule.Field)
		}
		if err := checkDataType(rule.DataType); err != nil {
			return nil, fmt.Errorf("%w: field '%s': %v", ErrInvalidRule, rule.Field, err)
		}

		c := compiledRule{Rule: rule}
		if rule.RequiredIf != "" {
			cond, err := parseCondition(rule.RequiredIf)
			if err != nil {
				return nil, fmt.Errorf("%w: field '%s': %v", ErrInvalidRule, rule.Field, err)
			}
			c.condition = cond
		}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: field '%s': %v", ErrInvalidRule, rule.Field, err)
			}
			c.pattern = re
		}
		v.rules = append(v.rules, c)
	}
	return v, nil
}

// Empty reports whether there is nothing to check.
func (v *Validator) Empty() bool {
	return v == nil || len(v.rules) == 0
}

// =============================================================================
// MAIN VALIDATION FUNCTION
// =============================================================================

// Validate checks a record. It returns nil or a *RecordError listing every
// failed check. Missing fields are treated as empty.
func (v *Validator) Validate(line int, record map[string]string) error {
	if v.Empty() {
		return nil
	}

	var errs []*ValidationError
	for i := range v.rules {
		errs = append(errs, v.rules[i].check(record)...)
	}
	if len(errs) == 0 {
		return nil
	}
	return &RecordError{Line: line, Errors: errs}
}

func (r *compiledRule) check(record map[string]string) []*ValidationError {
	value := record[r.Field]
	fail := func(rule, format string, args ...any) []*ValidationError {
		return []*ValidationError{{Field: r.Field, Value: value, Rule: rule, Message: fmt.Sprintf(format, args...)}}
	}

	if value == "" {
		switch {
		case r.Required:
			return fail("required", "required field is empty")
		case r.condition != nil && r.condition(record):
			return fail("required_if", "field is required when %s", r.RequiredIf)
		}
		return nil
	}

	var errs []*ValidationError
	if n := utf8.RuneCountInString(value); r.MaxLength > 0 && n > r.MaxLength {
		errs = append(errs, fail("max_length", "value exceeds maximum length of %d characters (actual: %d)", r.MaxLength, n)...)
	}
	if msg := validateDataType(value, r.DataType); msg != "" {
		errs = append(errs, fail("data_type", "%s", msg)...)
	}
	if r.pattern != nil && !r.pattern.MatchString(value) {
		errs = append(errs, fail("pattern", "value does not match %s", r.Pattern)...)
	}
	return errs
}

// =============================================================================
// DATA TYPE VALIDATORS
// =============================================================================

// commonDateLayouts are tried for a plain "date" type.
var commonDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

// checkDataType rejects unknown data types and malformed decimal precisions.
func checkDataType(dataType string) error {
	base, arg := splitType(dataType)
	switch base {
	case "", "string", "numeric", "integer", "alphanumeric", "alpha", "boolean":
		if arg != "" {
			return fmt.Errorf("data type %q takes no argument", dataType)
		}
	case "decimal":
		if arg != "" {
			if n, err := strconv.Atoi(arg); err != nil || n < 0 {
				return fmt.Errorf("data type %q: precision must be a non-negative integer", dataType)
			}
		}
	case "date":
	default:
		return fmt.Errorf("unknown data type %q", dataType)
	}
	return nil
}

// validateDataType validates a value against a data type.
//
// SUPPORTED DATA TYPES:
//   - string: Any text value
//   - numeric, integer: Integer numbers
//   - decimal, decimal(N): Decimal numbers with at most N decimal places
//   - alphanumeric: Letters, digits and spaces
//   - alpha: Letters and spaces
//   - date, date(LAYOUT): A date in a common layout, or in the Go layout given
//   - boolean: true/false, yes/no, y/n, t/f, 1/0
//
// RETURNS:
//   - A message describing the failure, or "" if the value is valid.
func validateDataType(value, dataType string) string {
	base, arg := splitType(dataType)
	switch base {
	case "numeric", "integer":
		if _, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err != nil {
			return fmt.Sprintf("value '%s' is not a valid integer", value)
		}

	case "decimal":
		v := strings.TrimSpace(value)
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return fmt.Sprintf("value '%s' is not a valid decimal number", value)
		}
		if arg != "" {
			precision, _ := strconv.Atoi(arg)
			if _, frac, ok := strings.Cut(v, "."); ok && len(frac) > precision {
				return fmt.Sprintf("value '%s' has more than %d decimal places", value, precision)
			}
		}

	case "alphanumeric":
		for _, r := range value {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
				return fmt.Sprintf("value '%s' contains non-alphanumeric characters", value)
			}
		}

	case "alpha":
		for _, r := range value {
			if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
				return fmt.Sprintf("value '%s' contains non-alphabetic characters", value)
			}
		}

	case "date":
		v := strings.TrimSpace(value)
		if arg != "" {
			if _, err := time.Parse(arg, v); err != nil {
				return fmt.Sprintf("value '%s' does not match date format '%s'", value, arg)
			}
			return ""
		}
		for _, layout := range commonDateLayouts {
			if _, err := time.Parse(layout, v); err == nil {
				return ""
			}
		}
		return fmt.Sprintf("value '%s' is not a valid date", value)

	case "boolean":
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "false", "yes", "no", "1", "0", "y", "n", "t", "f":
		default:
			return fmt.Sprintf("value '%s' is not a valid boolean", value)
		}
	}
	return ""
}

// splitType splits "decimal(2)" into "decimal" and "2".
func splitType(dataType string) (string, string) {
	dataType = strings.TrimSpace(dataType)
	base, rest, ok := strings.Cut(dataType, "(")
	if !ok {
		return strings.ToLower(dataType), ""
	}
	return strings.ToLower(strings.TrimSpace(base)), strings.TrimSuffix(rest, ")")
}

// =============================================================================
// CONDITIONAL RULES
// =============================================================================

var (
	compareCondition = regexp.MustCompile(`^(\S+)\s*(==|!=|>=|<=|>|<)\s*(.+)$`)
	textCondition    = regexp.MustCompile(`^(\S+)\s+(starts_with|ends_with|contains)\s+'([^']*)'$`)
	emptyCondition   = regexp.MustCompile(`^(\S+)\s+(is_empty|is_not_empty)$`)
)

// parseCondition compiles a required_if condition.
//
// SUPPORTED SYNTAX (an optional leading "if " is ignored):
//   - "Field == 'value'", "Field != 'value'"
//   - "Field > 100", "Field < 100", "Field >= 100", "Field <= 100"
//   - "Field starts_with 'prefix'", "ends_with", "contains"
//   - "Field is_empty", "Field is_not_empty"
//
// Numeric comparisons are false when the field is not a number.
func parseCondition(rule string) (func(map[string]string) bool, error) {
	rule = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rule), "if "))

	if m := emptyCondition.FindStringSubmatch(rule); m != nil {
		field, empty := m[1], m[2] == "is_empty"
		return func(rec map[string]string) bool { return (rec[field] == "") == empty }, nil
	}

	if m := textCondition.FindStringSubmatch(rule); m != nil {
		field, op, want := m[1], m[2], m[3]
		var match func(string, string) bool
		switch op {
		case "starts_with":
			match = strings.HasPrefix
		case "ends_with":
			match = strings.HasSuffix
		default:
			match = strings.Contains
		}
		return func(rec map[string]string) bool { return match(rec[field], want) }, nil
	}

	if m := compareCondition.FindStringSubmatch(rule); m != nil {
		field, op, operand := m[1], m[2], strings.TrimSpace(m[3])

		if quoted, ok := unquote(operand); ok {
			switch op {
			case "==":
				return func(rec map[string]string) bool { return rec[field] == quoted }, nil
			case "!=":
				return func(rec map[string]string) bool { return rec[field] != quoted }, nil
			}
			return nil, fmt.Errorf("condition %q: %s needs a number", rule, op)
		}

		threshold, err := strconv.ParseFloat(operand, 64)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %q is neither a quoted string nor a number", rule, operand)
		}
		return func(rec map[string]string) bool {
			actual, err := strconv.ParseFloat(strings.TrimSpace(rec[field]), 64)
			if err != nil {
				return false
			}
			switch op {
			case "==":
				return actual == threshold
			case "!=":
				return actual != threshold
			case ">":
				return actual > threshold
			case "<":
				return actual < threshold
			case ">=":
				return actual >= threshold
			default:
				return actual <= threshold
			}
		}, nil
	}

	return nil, fmt.Errorf("condition %q is not understood", rule)
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1], true
	}
	return "", false
}
