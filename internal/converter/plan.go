// =============================================================================
// csvmap - Conversion Plan
// =============================================================================
//
// A Plan is a profile resolved into reader and writer options. Resolving
// happens once per file, before anything is opened, so a broken profile or
// template fails the file without touching its input.
//
// FIELD RESOLUTION:
//   input fields   : input.fields, or the header row when empty
//   renames        : template renames, overridden by input.field_rename
//   output fields  : template output fields, else output.fields, else the
//                    input fields after renaming
//   include        : template always-include fields plus output.include
//   validation     : template validation columns, then validation_rules
//
// =============================================================================

package converter

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/ginjaninja78/csvmap/internal/config"
	"github.com/ginjaninja78/csvmap/internal/fieldtemplate"
	"github.com/ginjaninja78/csvmap/internal/validation"
	"github.com/ginjaninja78/csvmap/pkg/csvmap"
)

// Plan is a resolved profile.
type Plan struct {
	Profile *config.Profile

	// Template is the parsed field template, or nil.
	Template *fieldtemplate.Template

	// InputFields is nil when the header row names the fields.
	InputFields []string

	// OutputFields is nil when the output reuses the input fields.
	OutputFields []string

	Transformer *Transformer

	// Validator checks records after transformations and filters.
	Validator *validation.Validator

	// SkipInvalidRows skips records with recoverable errors.
	SkipInvalidRows bool

	readOptions  []csvmap.Option
	writeOptions []csvmap.Option
}

// NewPlan resolves a profile. Templates are looked up in the main
// configuration's templates directory.
func NewPlan(profile *config.Profile, mainConfig *config.MainConfig) (*Plan, error) {
	plan := &Plan{
		Profile:         profile,
		InputFields:     profile.Input.Fields,
		OutputFields:    profile.Output.Fields,
		SkipInvalidRows: profile.Input.SkipInvalidRows,
	}

	rename := make(map[string]string)
	include := slices.Clone(profile.Output.Include)
	rules := profile.TransformationRules
	var checks []validation.Rule

	if profile.Template != "" {
		tmpl, err := fieldtemplate.Parse(filepath.Join(mainConfig.TemplatesDir, profile.Template))
		if err != nil {
			return nil, fmt.Errorf("failed to load template: %w", err)
		}
		plan.Template = tmpl
		plan.OutputFields = tmpl.OutputFields()
		for from, to := range tmpl.Renames() {
			rename[from] = to
		}
		include = append(tmpl.Include(), include...)
		rules = append(templateDefaults(tmpl), rules...)
		checks = templateChecks(tmpl)
	}
	for _, r := range profile.ValidationRules {
		checks = append(checks, validation.Rule{
			Field:      r.Field,
			Required:   r.Required,
			RequiredIf: r.RequiredIf,
			MaxLength:  r.MaxLength,
			DataType:   r.DataType,
			Pattern:    r.Pattern,
		})
	}
	for from, to := range profile.Input.FieldRename {
		rename[from] = to
	}
	slices.Sort(include)
	include = slices.Compact(include)

	transformer, err := NewTransformer(rules, profile.Filters)
	if err != nil {
		return nil, fmt.Errorf("invalid transformation rules: %w", err)
	}
	plan.Transformer = transformer

	validator, err := validation.NewValidator(checks)
	if err != nil {
		return nil, fmt.Errorf("invalid validation rules: %w", err)
	}
	plan.Validator = validator

	extras, err := csvmap.ParseExtrasAction(profile.Output.ExtrasAction)
	if err != nil {
		return nil, err
	}

	in := profile.Input
	plan.readOptions = append(csvOptions(in.CSV),
		csvmap.WithIgnoreBlanks(!in.KeepBlankLines),
		csvmap.WithLeadingWS(in.KeepWhitespace),
		csvmap.WithTrailingWS(in.KeepWhitespace),
		csvmap.WithIgnoreRowsWithFields(!in.KeepHeaderRows),
	)
	if in.RestKey != nil {
		plan.readOptions = append(plan.readOptions, csvmap.WithRestKey(*in.RestKey))
	}
	if in.RestVal != nil {
		plan.readOptions = append(plan.readOptions, csvmap.WithRestVal(*in.RestVal))
	}
	if len(rename) > 0 {
		plan.readOptions = append(plan.readOptions, csvmap.WithFieldRename(rename))
	}

	out := profile.Output
	plan.writeOptions = append(csvOptions(out.CSV),
		csvmap.WithRestVal(out.RestVal),
		csvmap.WithMinimize(out.Minimize),
		csvmap.WithExtrasAction(extras),
	)
	if len(include) > 0 {
		plan.writeOptions = append(plan.writeOptions, csvmap.WithInclude(include...))
	}
	if mainConfig.SpillThreshold > 0 {
		plan.writeOptions = append(plan.writeOptions, csvmap.WithSpillThreshold(mainConfig.SpillThreshold))
	}
	if mainConfig.SpillDir != "" {
		plan.writeOptions = append(plan.writeOptions, csvmap.WithSpillDir(mainConfig.SpillDir))
	}

	return plan, nil
}

// ReadOptions returns the reader options, without a handler.
func (p *Plan) ReadOptions() []csvmap.Option {
	return slices.Clone(p.readOptions)
}

// WriteOptions returns the writer options.
func (p *Plan) WriteOptions() []csvmap.Option {
	return slices.Clone(p.writeOptions)
}

func csvOptions(s config.CSVSettings) []csvmap.Option {
	var opts []csvmap.Option
	if s.Dialect != "" {
		opts = append(opts, csvmap.WithDialectName(s.Dialect))
	}
	if s.Delimiter != "" {
		opts = append(opts, csvmap.WithDelimiter(s.Delimiter))
	}
	if s.Encoding != "" {
		opts = append(opts, csvmap.WithEncoding(s.Encoding, s.EncodingErrors))
	}
	if s.Strict != nil {
		opts = append(opts, csvmap.WithStrict(*s.Strict))
	}
	return opts
}

// templateDefaults turns template default values into "default" rules.
func templateDefaults(tmpl *fieldtemplate.Template) []config.TransformationRule {
	var rules []config.TransformationRule
	for _, f := range tmpl.Fields {
		if f.Default == "" {
			continue
		}
		rules = append(rules, config.TransformationRule{
			Field:   f.Output,
			Actions: []config.TransformationAction{{Type: "default", Value: f.Default}},
		})
	}
	return rules
}

// templateChecks turns template validation columns into rules.
func templateChecks(tmpl *fieldtemplate.Template) []validation.Rule {
	var checks []validation.Rule
	for _, f := range tmpl.Fields {
		if !f.Required && f.RequiredIf == "" && f.MaxLength == 0 && f.DataType == "" {
			continue
		}
		checks = append(checks, validation.Rule{
			Field:      f.Output,
			Required:   f.Required,
			RequiredIf: f.RequiredIf,
			MaxLength:  f.MaxLength,
			DataType:   f.DataType,
		})
	}
	return checks
}
