// =============================================================================
// csvmap - Configuration Module
// =============================================================================
//
// This module loads the main application configuration and the mapping
// profiles used by the batch commands.
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): directories, logging, concurrency, spilling
//   2. Profiles (profiles/*.yaml): how one family of input files is mapped
//
// A profile is selected for an input file by glob patterns on the file name.
// It describes how the file is read (dialect, encoding, field names), how
// each record is transformed or dropped, and how the output is written
// (field list, minimized header, extras policy).
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration that loaded but cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for files to process.
	// Default: "./input"
	InputDir string `yaml:"input_dir"`

	// OutputDir receives the mapped CSV files.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// InputArchiveDir receives input files after successful processing.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir"`

	// OutputArchiveDir receives a copy of every output file.
	// Default: "./output_archive"
	OutputArchiveDir string `yaml:"output_archive_dir"`

	// TemplatesDir holds XLSX field templates referenced by profiles.
	// Default: "./templates"
	TemplatesDir string `yaml:"templates_dir"`

	// ProfilesDir holds the mapping profiles.
	// Default: "./profiles"
	ProfilesDir string `yaml:"profiles_dir"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputNameFormat defines the output file name.
	// Placeholders:
	//   {uuid}      - A random UUID
	//   {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
	//   {date}      - Current date (YYYYMMDD)
	//   {profile}   - Profile name
	//   {original}  - Input file name without extension
	//
	// Default: "{original}_{uuid}.csv"
	OutputNameFormat string `yaml:"output_name_format"`

	// DisableArchive leaves processed input files where they are.
	DisableArchive bool `yaml:"disable_archive"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the maximum number of files processed at once.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// MaxFilesPerSecond limits how fast files are started, e.g. to spare a
	// network share. 0 means no limit.
	MaxFilesPerSecond float64 `yaml:"max_files_per_second"`

	// ContinueOnError keeps the batch going when a file fails.
	ContinueOnError bool `yaml:"continue_on_error"`

	// SpillThreshold is how many bytes a minimized writer buffers in memory
	// before it moves its pending records to a temporary file.
	// Default: 0, which uses the library default of 10 MiB.
	SpillThreshold int64 `yaml:"spill_threshold"`

	// SpillDir is where spill files are created.
	// Default: the system temporary directory.
	SpillDir string `yaml:"spill_dir"`
}

// =============================================================================
// PROFILE STRUCTURE
// =============================================================================

// Profile describes how one family of input files is mapped.
type Profile struct {
	// Name identifies the profile in logs and output names.
	// Default: the profile file name without extension.
	Name string `yaml:"name"`

	// FileMatchingPatterns are glob patterns matched against the input
	// file name. The first profile (in file name order) with a matching
	// pattern wins.
	//
	// Examples:
	//   - "orders_*.csv"
	//   - "*_export.txt"
	FileMatchingPatterns []string `yaml:"file_matching_patterns"`

	// Input controls how files are read.
	Input InputSettings `yaml:"input"`

	// Output controls how mapped files are written.
	Output OutputSettings `yaml:"output"`

	// Template is an XLSX field template in the templates directory. When
	// set, it supplies the output fields, renames and always-included
	// fields, and replaces the corresponding Input/Output settings.
	Template string `yaml:"template,omitempty"`

	// TransformationRules rewrite field values record by record.
	TransformationRules []TransformationRule `yaml:"transformation_rules"`

	// Filters drop records. A record is dropped when any filter matches.
	Filters []FilterRule `yaml:"filters"`

	// ValidationRules check records after transformations and filters.
	// A record failing any rule fails the file, or is skipped when
	// input.skip_invalid_rows is set.
	ValidationRules []ValidationRule `yaml:"validation_rules"`
}

// =============================================================================
// CSV SETTINGS STRUCTURE
// =============================================================================

// CSVSettings selects the dialect and encoding of a file.
type CSVSettings struct {
	// Dialect is a registered dialect name: "excel", "excel-tab" or "pipe".
	// Default: "excel"
	Dialect string `yaml:"dialect"`

	// Delimiter overrides the dialect's delimiter.
	// Accepts a single character or an alias: "comma", "tab", "pipe",
	// "semicolon".
	Delimiter string `yaml:"delimiter"`

	// Encoding is the character encoding of the file, or "auto" to detect
	// it on read.
	// Default: "utf-8"
	Encoding string `yaml:"encoding"`

	// EncodingErrors is "strict" or "replace".
	// Default: "strict"
	EncodingErrors string `yaml:"encoding_errors"`

	// Strict rejects malformed quoting. Unset keeps the dialect's value.
	Strict *bool `yaml:"strict,omitempty"`
}

// InputSettings controls how input records are read and reconciled.
type InputSettings struct {
	CSV CSVSettings `yaml:"csv"`

	// Fields names the input columns. Empty takes them from the first row.
	Fields []string `yaml:"fields"`

	// RestKey collects surplus values under numbered keys with this prefix.
	// Unset makes surplus values an error.
	RestKey *string `yaml:"rest_key,omitempty"`

	// RestVal fills missing values. Unset makes short rows an error.
	RestVal *string `yaml:"rest_val,omitempty"`

	// FieldRename maps input names to the names records carry.
	FieldRename map[string]string `yaml:"field_rename"`

	// KeepBlankLines passes blank rows on instead of skipping them.
	KeepBlankLines bool `yaml:"keep_blank_lines"`

	// KeepWhitespace leaves leading and trailing whitespace on values.
	KeepWhitespace bool `yaml:"keep_whitespace"`

	// KeepHeaderRows keeps rows that repeat the field names.
	KeepHeaderRows bool `yaml:"keep_header_rows"`

	// SkipInvalidRows logs and skips rows with the wrong number of values
	// instead of failing the file.
	SkipInvalidRows bool `yaml:"skip_invalid_rows"`
}

// OutputSettings controls how mapped records are written.
type OutputSettings struct {
	CSV CSVSettings `yaml:"csv"`

	// Fields is the output field list. Empty reuses the input fields.
	Fields []string `yaml:"fields"`

	// RestVal is written for fields a record does not carry.
	RestVal string `yaml:"rest_val"`

	// Minimize drops fields that no record uses from the output.
	Minimize bool `yaml:"minimize"`

	// Include lists fields that stay in a minimized header regardless.
	Include []string `yaml:"include"`

	// ExtrasAction is "ignore" or "raise" for record fields that are not
	// in Fields.
	// Default: "ignore"
	ExtrasAction string `yaml:"extras_action"`
}

// =============================================================================
// TRANSFORMATION RULE STRUCTURE
// =============================================================================

// TransformationRule defines the transformations applied to one field.
type TransformationRule struct {
	// Field is the field name as records carry it, after any rename.
	Field string `yaml:"field"`

	// Actions are applied in order.
	Actions []TransformationAction `yaml:"actions"`
}

// TransformationAction defines a single transformation action.
type TransformationAction struct {
	// Type is the type of transformation to apply.
	// Supported types:
	//   - "prepend_string"        : Add Value to the beginning
	//   - "append_string"         : Add Value to the end
	//   - "trim", "trim_left", "trim_right"
	//   - "uppercase", "lowercase", "title_case"
	//   - "replace"               : Replace Find with Value
	//   - "regex_replace"         : Replace pattern Find with Value
	//   - "substring"             : Keep characters "start,end" of Value
	//   - "truncate"              : Cut to at most Value characters
	//   - "pad_zeros_to_length"   : Pad with leading zeros to length Value
	//   - "pad_spaces_to_length"  : Pad with trailing spaces to length Value
	//   - "ensure_length"         : Truncate or zero-pad to length Value
	//   - "format_number"         : Format with Value decimal places
	//   - "format_currency"       : Format with two decimal places
	//   - "remove_leading_zeros"
	//   - "format_date"           : Value is "input_layout|output_layout"
	//   - "lookup"                : Replace via LookupTable
	//   - "lookup_with_default"   : Replace via LookupTable, else Value
	//   - "if_empty_use_default"  : Use Value when empty ("default" for short)
	//   - "if_empty_use_field"    : Use the field named by Value when empty
	//   - "set"                   : Always use Value
	//   - "extract_digits", "extract_letters", "remove_special_chars",
	//     "normalize_whitespace"
	Type string `yaml:"type"`

	// Value is the parameter for the transformation.
	Value string `yaml:"value"`

	// Find is used by "replace" and "regex_replace".
	Find string `yaml:"find,omitempty"`

	// LookupTable is used by "lookup".
	LookupTable map[string]string `yaml:"lookup_table,omitempty"`
}

// FilterRule drops the records whose field matches.
type FilterRule struct {
	// Field is the field name as records carry it.
	Field string `yaml:"field"`

	// Condition is one of:
	//   - "empty"      : the field is missing or blank
	//   - "not_empty"  : the field has a non-blank value
	//   - "equals"     : the field equals Value
	//   - "not_equals" : the field is missing or differs from Value
	//   - "contains"   : the field contains Value
	//   - "matches"    : the field matches the regular expression Value
	Condition string `yaml:"condition"`

	Value string `yaml:"value,omitempty"`
}

// ValidationRule checks one field of every record.
type ValidationRule struct {
	// Field is the field name as records carry it, after renaming.
	Field string `yaml:"field"`

	Required bool `yaml:"required"`

	// RequiredIf makes the field required when a condition on the same
	// record holds, e.g. "status == 'rejected'" or "amount >= 1000".
	RequiredIf string `yaml:"required_if,omitempty"`

	// MaxLength limits the value to this many characters. 0 is unlimited.
	MaxLength int `yaml:"max_length,omitempty"`

	// DataType is one of string, numeric, integer, decimal, decimal(N),
	// alpha, alphanumeric, date, date(LAYOUT) or boolean.
	DataType string `yaml:"data_type,omitempty"`

	// Pattern is a regular expression non-empty values must match.
	Pattern string `yaml:"pattern,omitempty"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read or parsed, or a directory cannot
//     be created.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config MainConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.InputDir == "" {
		config.InputDir = "./input"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.InputArchiveDir == "" {
		config.InputArchiveDir = "./input_archive"
	}
	if config.OutputArchiveDir == "" {
		config.OutputArchiveDir = "./output_archive"
	}
	if config.TemplatesDir == "" {
		config.TemplatesDir = "./templates"
	}
	if config.ProfilesDir == "" {
		config.ProfilesDir = "./profiles"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.OutputNameFormat == "" {
		config.OutputNameFormat = "{original}_{uuid}.csv"
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 4
	}
}

// validateMainConfig checks values and creates missing working directories.
func validateMainConfig(config *MainConfig) error {
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, config.LogLevel)
	}
	if config.MaxConcurrency < 0 {
		return fmt.Errorf("%w: max_concurrency must be positive", ErrInvalid)
	}
	if config.MaxFilesPerSecond < 0 {
		return fmt.Errorf("%w: max_files_per_second must not be negative", ErrInvalid)
	}
	if config.SpillThreshold < 0 {
		return fmt.Errorf("%w: spill_threshold must not be negative", ErrInvalid)
	}

	dirs := []string{
		config.InputDir,
		config.OutputDir,
		config.TemplatesDir,
		config.ProfilesDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// LoadProfiles loads all profiles from a directory.
//
// PARAMETERS:
//   - profilesDir: The directory containing *.yaml / *.yml profile files.
//
// RETURNS:
//   - The profiles, ordered by file name.
//   - An error if any file cannot be parsed or two profiles share a name.
func LoadProfiles(profilesDir string) ([]*Profile, error) {
	files, err := filepath.Glob(filepath.Join(profilesDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list profile files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(profilesDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list profile files: %w", err)
	}
	files = append(files, ymlFiles...)
	slices.Sort(files)

	var profiles []*Profile
	seen := make(map[string]string)
	for _, file := range files {
		profile, err := LoadProfile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		if other, ok := seen[profile.Name]; ok {
			return nil, fmt.Errorf("%w: profile %q defined in %s and %s", ErrInvalid, profile.Name, other, file)
		}
		seen[profile.Name] = file
		profiles = append(profiles, profile)
	}

	return profiles, nil
}

// LoadProfile loads a single profile file.
func LoadProfile(filePath string) (*Profile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	if profile.Name == "" {
		profile.Name = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	applyProfileDefaults(&profile)

	if err := validateProfile(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// applyProfileDefaults sets default values for a profile.
func applyProfileDefaults(profile *Profile) {
	for _, csv := range []*CSVSettings{&profile.Input.CSV, &profile.Output.CSV} {
		if csv.Dialect == "" && csv.Delimiter == "" {
			csv.Dialect = "excel"
		}
		if csv.EncodingErrors == "" {
			csv.EncodingErrors = "strict"
		}
	}
	if profile.Output.ExtrasAction == "" {
		profile.Output.ExtrasAction = "ignore"
	}
}

// validateProfile rejects profiles that could never match or whose
// patterns are malformed.
func validateProfile(profile *Profile) error {
	if len(profile.FileMatchingPatterns) == 0 {
		return fmt.Errorf("%w: profile %q has no file_matching_patterns", ErrInvalid, profile.Name)
	}
	for _, pattern := range profile.FileMatchingPatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w: profile %q pattern %q: %v", ErrInvalid, profile.Name, pattern, err)
		}
	}
	for _, rule := range profile.TransformationRules {
		if rule.Field == "" {
			return fmt.Errorf("%w: profile %q has a transformation rule without a field", ErrInvalid, profile.Name)
		}
	}
	for _, filter := range profile.Filters {
		if filter.Field == "" {
			return fmt.Errorf("%w: profile %q has a filter without a field", ErrInvalid, profile.Name)
		}
	}
	for _, rule := range profile.ValidationRules {
		if rule.Field == "" {
			return fmt.Errorf("%w: profile %q has a validation rule without a field", ErrInvalid, profile.Name)
		}
	}
	return nil
}

// MatchProfile returns the first profile with a pattern matching the base
// name of filePath, or nil.
func MatchProfile(profiles []*Profile, filePath string) *Profile {
	fileName := filepath.Base(filePath)

	for _, profile := range profiles {
		for _, pattern := range profile.FileMatchingPatterns {
			if matched, _ := filepath.Match(pattern, fileName); matched {
				return profile
			}
		}
	}

	return nil
}

// FindProfile returns the profile with the given name, or nil.
func FindProfile(profiles []*Profile, name string) *Profile {
	for _, profile := range profiles {
		if profile.Name == name {
			return profile
		}
	}
	return nil
}
