// =============================================================================
// csvmap - XLSX Field Templates
// =============================================================================
//
// A field template is a spreadsheet that lists, one field per row, how an
// input column is carried into the output. Profiles reference a template
// instead of spelling out field lists, renames and include lists in YAML.
//
// TEMPLATE STRUCTURE (Expected Columns):
//
//   | A            | B            | C              | D             | E        | F         | G          | H           |
//   |--------------|--------------|----------------|---------------|----------|-----------|------------|-------------|
//   | Source Field | Output Field | Always Include | Default Value | Required | Data Type | Max Length | Required If |
//   | CUST_NO      | customer_id  | yes            |               | yes      | numeric   |            |             |
//   | CUST_NAME    | name         |                |               |          |           | 40         |             |
//   | REGION       |              | no             | EMEA          |          |           |            |             |
//
//   - Source Field names the input column. Rows without one are skipped.
//   - Output Field is the name written to the output. Empty keeps the
//     source name.
//   - Always Include keeps the field in a minimized header even when no
//     record uses it.
//   - Default Value is written when a record has no value for the field.
//   - Required, Data Type, Max Length and Required If validate the output
//     value (see internal/validation). Columns E to H may be absent.
//
// Column positions and the sheet are configurable via Columns.
//
// =============================================================================

package fieldtemplate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrTemplate marks a template whose content cannot be used.
var ErrTemplate = errors.New("invalid field template")

// =============================================================================
// TEMPLATE STRUCTURE
// =============================================================================

// Template is a parsed field template.
type Template struct {
	// File is the path the template was read from.
	File string

	// Sheet is the sheet the fields were read from.
	Sheet string

	// Fields in template order.
	Fields []Field
}

// Field is one template row.
type Field struct {
	// Source is the input column name.
	Source string

	// Output is the output field name.
	Output string

	// AlwaysInclude keeps the field in minimized headers.
	AlwaysInclude bool

	// Default is written when a record has no value for the field.
	Default string

	// Required, DataType, MaxLength and RequiredIf validate the output value.
	Required   bool
	DataType   string
	MaxLength  int
	RequiredIf string

	// Row is the 1-based spreadsheet row, for error messages.
	Row int
}

// SourceFields returns the input column names in template order.
func (t *Template) SourceFields() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Source
	}
	return names
}

// OutputFields returns the output field names in template order.
func (t *Template) OutputFields() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Output
	}
	return names
}

// Renames maps source names to output names for the fields that change
// name.
func (t *Template) Renames() map[string]string {
	renames := make(map[string]string)
	for _, f := range t.Fields {
		if f.Source != f.Output {
			renames[f.Source] = f.Output
		}
	}
	return renames
}

// Include returns the output names of the always-included fields.
func (t *Template) Include() []string {
	var names []string
	for _, f := range t.Fields {
		if f.AlwaysInclude {
			names = append(names, f.Output)
		}
	}
	return names
}

// Defaults maps output names to their default values.
func (t *Template) Defaults() map[string]string {
	defaults := make(map[string]string)
	for _, f := range t.Fields {
		if f.Default != "" {
			defaults[f.Output] = f.Default
		}
	}
	return defaults
}

// =============================================================================
// TEMPLATE COLUMN CONFIGURATION
// =============================================================================

// Columns defines which spreadsheet columns hold which data.
// Column indices are 0-based (A=0, B=1, ...). A negative index disables the
// column; start from DefaultColumns rather than a zero Columns, which points
// every column at A.
type Columns struct {
	// Sheet is the sheet to read. Empty reads the first sheet.
	Sheet string

	SourceColumn     int
	OutputColumn     int
	IncludeColumn    int
	DefaultColumn    int
	RequiredColumn   int
	DataTypeColumn   int
	MaxLengthColumn  int
	RequiredIfColumn int

	// DataStartRow is the 0-based row where field rows begin.
	// Default: 1 (Row 2, after the heading row)
	DataStartRow int
}

// DefaultColumns returns the layout described at the top of this file.
func DefaultColumns() Columns {
	return Columns{
		SourceColumn:     0, // Column A
		OutputColumn:     1, // Column B
		IncludeColumn:    2, // Column C
		DefaultColumn:    3, // Column D
		RequiredColumn:   4, // Column E
		DataTypeColumn:   5, // Column F
		MaxLengthColumn:  6, // Column G
		RequiredIfColumn: 7, // Column H
		DataStartRow:     1, // Row 2
	}
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a field template with the default column layout.
func Parse(templatePath string) (*Template, error) {
	return ParseWithColumns(templatePath, DefaultColumns())
}

// ParseWithColumns reads a field template using a custom column layout.
//
// PARAMETERS:
//   - templatePath: The path to the XLSX template file.
//   - columns: The column configuration for parsing.
//
// RETURNS:
//   - The parsed template.
//   - An error if the file cannot be read, has no fields, names the same
//     source or output field twice, or has a max length that is not a
//     non-negative number.
func ParseWithColumns(templatePath string, columns Columns) (*Template, error) {
	f, err := excelize.OpenFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open template file: %w", err)
	}
	defer f.Close()

	sheet := columns.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("%w: %s has no sheets", ErrTemplate, templatePath)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	tmpl := &Template{File: templatePath, Sheet: sheet}
	sources := make(map[string]int)
	outputs := make(map[string]int)

	for i := columns.DataStartRow; i < len(rows); i++ {
		field, ok, err := parseRow(rows[i], columns, i+1)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplate, templatePath, err)
		}
		if !ok {
			continue
		}

		if prev, dup := sources[field.Source]; dup {
			return nil, fmt.Errorf("%w: source field %q on rows %d and %d", ErrTemplate, field.Source, prev, field.Row)
		}
		if prev, dup := outputs[field.Output]; dup {
			return nil, fmt.Errorf("%w: output field %q on rows %d and %d", ErrTemplate, field.Output, prev, field.Row)
		}
		sources[field.Source] = field.Row
		outputs[field.Output] = field.Row

		tmpl.Fields = append(tmpl.Fields, field)
	}

	if len(tmpl.Fields) == 0 {
		return nil, fmt.Errorf("%w: %s defines no fields", ErrTemplate, templatePath)
	}
	return tmpl, nil
}

// parseRow extracts a Field from a single row. It reports false for rows
// without a source field.
func parseRow(row []string, columns Columns, rowNumber int) (Field, bool, error) {
	getCell := func(index int) string {
		if index >= 0 && index < len(row) {
			return strings.TrimSpace(row[index])
		}
		return ""
	}

	field := Field{
		Source:        getCell(columns.SourceColumn),
		Output:        getCell(columns.OutputColumn),
		AlwaysInclude: parseFlag(getCell(columns.IncludeColumn)),
		Default:       getCell(columns.DefaultColumn),
		Required:      parseFlag(getCell(columns.RequiredColumn)),
		DataType:      getCell(columns.DataTypeColumn),
		RequiredIf:    getCell(columns.RequiredIfColumn),
		Row:           rowNumber,
	}
	if field.Source == "" {
		return Field{}, false, nil
	}
	if field.Output == "" {
		field.Output = field.Source
	}
	if s := getCell(columns.MaxLengthColumn); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return Field{}, false, fmt.Errorf("row %d: max length %q is not a non-negative number", rowNumber, s)
		}
		field.MaxLength = n
	}
	return field, true, nil
}

// parseFlag reads the spreadsheet spellings of "yes".
func parseFlag(value string) bool {
	switch strings.ToLower(value) {
	case "yes", "y", "true", "1", "x", "always", "required":
		return true
	default:
		return false
	}
}
