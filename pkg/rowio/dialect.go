// =============================================================================
// csvmap - Row I/O: Dialects
// =============================================================================
//
// A Dialect describes how delimited text is tokenized and emitted. The row
// reader and writer in this package are thin wrappers over encoding/csv, so a
// dialect can only express what encoding/csv supports:
//   - any single-rune delimiter except the quote, CR, LF and U+FFFD
//   - double-quote quoting with doubled quotes as the escape
//   - strict or lazy (best-effort) quote handling when reading
//   - CRLF or LF line terminators when writing
//
// NAMED DIALECTS:
//   excel     : comma separated, CRLF terminated
//   excel-tab : tab separated, CRLF terminated
//   pipe      : pipe separated, CRLF terminated
//
// =============================================================================

package rowio

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrDialect is wrapped by every dialect validation failure.
var ErrDialect = errors.New("invalid dialect")

// =============================================================================
// DIALECT STRUCTURE
// =============================================================================

// Dialect holds the tokenizer/emitter settings for one delimited format.
type Dialect struct {
	// Name is informational; it is set for the registered dialects.
	Name string

	// Delimiter separates fields within a record.
	Delimiter rune

	// QuoteChar is the quoting character. Only '"' is supported.
	QuoteChar rune

	// DoubleQuote means a quote inside a quoted field is written as two
	// quotes. It must be true.
	DoubleQuote bool

	// Strict turns malformed quoting into a fatal ParseError. When false the
	// reader recovers on a best-effort basis.
	Strict bool

	// UseCRLF terminates written records with \r\n instead of \n.
	UseCRLF bool
}

var dialects = map[string]Dialect{
	"excel": {
		Name:        "excel",
		Delimiter:   ',',
		QuoteChar:   '"',
		DoubleQuote: true,
		Strict:      true,
		UseCRLF:     true,
	},
	"excel-tab": {
		Name:        "excel-tab",
		Delimiter:   '\t',
		QuoteChar:   '"',
		DoubleQuote: true,
		Strict:      true,
		UseCRLF:     true,
	},
	"pipe": {
		Name:        "pipe",
		Delimiter:   '|',
		QuoteChar:   '"',
		DoubleQuote: true,
		Strict:      true,
		UseCRLF:     true,
	},
}

// Excel returns the default dialect.
func Excel() Dialect {
	return dialects["excel"]
}

// LookupDialect returns the registered dialect with the given name.
// An empty name selects "excel".
func LookupDialect(name string) (Dialect, error) {
	if name == "" {
		return Excel(), nil
	}
	d, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Dialect{}, fmt.Errorf("%w: unknown dialect %q (known: %s)", ErrDialect, name, strings.Join(DialectNames(), ", "))
	}
	return d, nil
}

// DialectNames lists the registered dialect names in sorted order.
func DialectNames() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// DELIMITER PARSING
// =============================================================================

// ParseDelimiter converts a configured delimiter string into a rune.
//
// Besides a literal single character, the aliases accepted by the converter
// configuration files are recognised:
//   - "\t", "tab", "TAB"
//   - "|", "pipe", "PIPE"
//   - ";", "semicolon"
//   - ",", "comma"
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "\\t", "tab", "TAB":
		return '\t', nil
	case "pipe", "PIPE":
		return '|', nil
	case "semicolon", "SEMICOLON":
		return ';', nil
	case "comma", "COMMA":
		return ',', nil
	}

	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: delimiter must be a single character, got %q", ErrDialect, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// Validate reports whether the dialect can be handled by encoding/csv.
func (d Dialect) Validate() error {
	quote := d.quote()
	if quote != '"' {
		return fmt.Errorf("%w: quote character %q is not supported, only '\"'", ErrDialect, quote)
	}
	if !d.DoubleQuote {
		return fmt.Errorf("%w: doublequote=false is not supported", ErrDialect)
	}
	if d.Delimiter == 0 || d.Delimiter == quote || d.Delimiter == '\r' || d.Delimiter == '\n' ||
		d.Delimiter == utf8.RuneError || !utf8.ValidRune(d.Delimiter) {
		return fmt.Errorf("%w: invalid delimiter %q", ErrDialect, d.Delimiter)
	}
	return nil
}

func (d Dialect) quote() rune {
	if d.QuoteChar == 0 {
		return '"'
	}
	return d.QuoteChar
}
