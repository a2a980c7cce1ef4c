package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadMainConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "input_dir: "+filepath.Join(dir, "in")+"\n"+
		"output_dir: "+filepath.Join(dir, "out")+"\n"+
		"templates_dir: "+filepath.Join(dir, "templates")+"\n"+
		"profiles_dir: "+filepath.Join(dir, "profiles")+"\n"+
		"spill_threshold: 4096\n")

	cfg, err := LoadMainConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "{original}_{uuid}.csv", cfg.OutputNameFormat)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, int64(4096), cfg.SpillThreshold)
	assert.DirExists(t, filepath.Join(dir, "in"))
	assert.DirExists(t, filepath.Join(dir, "profiles"))
}

func TestLoadMainConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMainConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "input_dir: [unclosed\n")
	_, err = LoadMainConfig(bad)
	assert.ErrorContains(t, err, "failed to parse config file")

	level := filepath.Join(dir, "level.yaml")
	writeFile(t, level, "log_level: loud\ninput_dir: "+filepath.Join(dir, "in")+"\n")
	_, err = LoadMainConfig(level)
	assert.ErrorIs(t, err, ErrInvalid)

	rate := filepath.Join(dir, "rate.yaml")
	writeFile(t, rate, "max_files_per_second: -1\ninput_dir: "+filepath.Join(dir, "in")+"\n")
	_, err = LoadMainConfig(rate)
	assert.ErrorIs(t, err, ErrInvalid)
}

const ordersProfile = `
file_matching_patterns: ["orders_*.csv"]
input:
  csv:
    delimiter: pipe
    encoding: latin1
  rest_val: ""
  field_rename:
    cust: customer
output:
  fields: [id, customer, total]
  minimize: true
  include: [id]
transformation_rules:
  - field: customer
    actions:
      - type: uppercase
filters:
  - field: id
    condition: empty
validation_rules:
  - field: total
    required: true
    data_type: decimal(2)
`

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b_orders.yaml"), ordersProfile)
	writeFile(t, filepath.Join(dir, "a_all.yml"), "name: catchall\nfile_matching_patterns: [\"*.csv\"]\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	profiles, err := LoadProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	orders := FindProfile(profiles, "b_orders")
	require.NotNil(t, orders)
	assert.Equal(t, "pipe", orders.Input.CSV.Delimiter)
	assert.Empty(t, orders.Input.CSV.Dialect)
	assert.Equal(t, "strict", orders.Input.CSV.EncodingErrors)
	require.NotNil(t, orders.Input.RestVal)
	assert.Equal(t, "", *orders.Input.RestVal)
	assert.Nil(t, orders.Input.RestKey)
	assert.Equal(t, map[string]string{"cust": "customer"}, orders.Input.FieldRename)
	assert.Equal(t, "excel", orders.Output.CSV.Dialect)
	assert.Equal(t, "ignore", orders.Output.ExtrasAction)
	assert.True(t, orders.Output.Minimize)
	assert.Len(t, orders.TransformationRules, 1)
	assert.Len(t, orders.Filters, 1)
	assert.Equal(t, []ValidationRule{{Field: "total", Required: true, DataType: "decimal(2)"}}, orders.ValidationRules)

	// Profiles are ordered by file name, so the catch-all wins.
	assert.Equal(t, "catchall", MatchProfile(profiles, "/in/orders_1.csv").Name)
	assert.Nil(t, MatchProfile(profiles, "orders_1.txt"))
	assert.Nil(t, FindProfile(profiles, "nope"))
}

func TestLoadProfilesRejects(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{
			name:  "no patterns",
			files: map[string]string{"p.yaml": "name: p\n"},
		},
		{
			name:  "bad pattern",
			files: map[string]string{"p.yaml": "file_matching_patterns: [\"[\"]\n"},
		},
		{
			name: "duplicate names",
			files: map[string]string{
				"a.yaml": "name: same\nfile_matching_patterns: [\"a*\"]\n",
				"b.yaml": "name: same\nfile_matching_patterns: [\"b*\"]\n",
			},
		},
		{
			name:  "rule without field",
			files: map[string]string{"p.yaml": "file_matching_patterns: [\"*\"]\ntransformation_rules:\n  - actions: [{type: trim}]\n"},
		},
		{
			name:  "validation without field",
			files: map[string]string{"p.yaml": "file_matching_patterns: [\"*\"]\nvalidation_rules:\n  - required: true\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, filepath.Join(dir, name), content)
			}
			_, err := LoadProfiles(dir)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}
