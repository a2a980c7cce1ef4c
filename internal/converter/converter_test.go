package converter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/csvmap/internal/config"
	"github.com/ginjaninja78/csvmap/pkg/csvmap"
	"github.com/ginjaninja78/csvmap/pkg/rowio"
)

func testMainConfig(t *testing.T) *config.MainConfig {
	t.Helper()
	root := t.TempDir()
	cfg := &config.MainConfig{
		InputDir:         filepath.Join(root, "input"),
		OutputDir:        filepath.Join(root, "output"),
		InputArchiveDir:  filepath.Join(root, "input_archive"),
		OutputArchiveDir: filepath.Join(root, "output_archive"),
		TemplatesDir:     filepath.Join(root, "templates"),
		OutputNameFormat: "{profile}_{original}_{uuid}.csv",
	}
	for _, dir := range []string{cfg.InputDir, cfg.OutputDir, cfg.TemplatesDir} {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}
	return cfg
}

func strPtr(s string) *string { return &s }

func TestConvertStreams(t *testing.T) {
	profile := &config.Profile{
		Name: "orders",
		Input: config.InputSettings{
			CSV:         config.CSVSettings{Delimiter: "pipe"},
			FieldRename: map[string]string{"cust": "customer"},
		},
		Output: config.OutputSettings{
			Fields:   []string{"id", "customer", "total", "note"},
			Minimize: true,
		},
		TransformationRules: []config.TransformationRule{
			{Field: "customer", Actions: []config.TransformationAction{{Type: "uppercase"}}},
			{Field: "total", Actions: []config.TransformationAction{{Type: "format_number", Value: "2"}}},
		},
		Filters: []config.FilterRule{{Field: "id", Condition: "empty"}},
	}

	plan, err := NewPlan(profile, testMainConfig(t))
	require.NoError(t, err)

	src := strings.NewReader("id|cust|total|extra\n1|ann|5|x\n|bob|6|y\n\n2|cid|7.5|z\n")
	var dst bytes.Buffer
	stats, err := Convert(context.Background(), plan, src, &dst, nil)
	require.NoError(t, err)

	assert.Equal(t, "id,customer,total\r\n1,ANN,5.00\r\n2,CID,7.50\r\n", dst.String())
	assert.Equal(t, 3, stats.RecordsRead)
	assert.Equal(t, 1, stats.RecordsFiltered)
	assert.Equal(t, 2, stats.RecordsWritten)
	assert.Equal(t, []string{"id", "customer", "total"}, stats.Fields)
}

func TestConvertReusesInputFields(t *testing.T) {
	plan, err := NewPlan(&config.Profile{
		Name:   "passthrough",
		Input:  config.InputSettings{FieldRename: map[string]string{"b": "bee"}},
		Output: config.OutputSettings{CSV: config.CSVSettings{Dialect: "excel-tab"}},
	}, testMainConfig(t))
	require.NoError(t, err)

	var dst bytes.Buffer
	stats, err := Convert(context.Background(), plan, strings.NewReader("a,b\n1,2\n"), &dst, nil)
	require.NoError(t, err)
	assert.Equal(t, "a\tbee\r\n1\t2\r\n", dst.String())
	assert.Equal(t, []string{"a", "bee"}, stats.Fields)

	t.Run("header only", func(t *testing.T) {
		var dst bytes.Buffer
		_, err := Convert(context.Background(), plan, strings.NewReader("a,b\n"), &dst, nil)
		require.NoError(t, err)
		assert.Equal(t, "a\tbee\r\n", dst.String())
	})

	t.Run("empty input", func(t *testing.T) {
		var dst bytes.Buffer
		stats, err := Convert(context.Background(), plan, strings.NewReader(""), &dst, nil)
		require.NoError(t, err)
		assert.Empty(t, dst.String())
		assert.Nil(t, stats.Fields)
	})
}

func TestConvertInvalidRows(t *testing.T) {
	input := "a,b\n1,2\n3\n4,5\n"

	profile := &config.Profile{Name: "strict"}
	plan, err := NewPlan(profile, testMainConfig(t))
	require.NoError(t, err)

	var dst bytes.Buffer
	_, err = Convert(context.Background(), plan, strings.NewReader(input), &dst, nil)
	require.ErrorIs(t, err, csvmap.ErrArity)
	assert.Equal(t, "arity", Classify(err))

	profile.Input.SkipInvalidRows = true
	plan, err = NewPlan(profile, testMainConfig(t))
	require.NoError(t, err)

	dst.Reset()
	stats, err := Convert(context.Background(), plan, strings.NewReader(input), &dst, nil)
	require.NoError(t, err)
	assert.Equal(t, "a,b\r\n1,2\r\n4,5\r\n", dst.String())
	assert.Equal(t, 1, stats.RowsSkipped)
	require.Len(t, stats.Problems, 1)
	assert.Equal(t, 3, stats.Problems[0].LineNumber)
	assert.Equal(t, "arity", stats.Problems[0].ErrorType)

	profile.Input.RestVal = strPtr("-")
	plan, err = NewPlan(profile, testMainConfig(t))
	require.NoError(t, err)

	dst.Reset()
	_, err = Convert(context.Background(), plan, strings.NewReader(input), &dst, nil)
	require.NoError(t, err)
	assert.Equal(t, "a,b\r\n1,2\r\n3,-\r\n4,5\r\n", dst.String())
}

func TestConvertValidation(t *testing.T) {
	input := "id,amount,reason\n1,10,\n2,x,\n3,2000,\n4,2000,big\n"
	profile := &config.Profile{
		Name: "payments",
		ValidationRules: []config.ValidationRule{
			{Field: "amount", Required: true, DataType: "decimal(2)"},
			{Field: "reason", RequiredIf: "amount >= 1000", MaxLength: 5},
		},
	}

	plan, err := NewPlan(profile, testMainConfig(t))
	require.NoError(t, err)
	_, err = Convert(context.Background(), plan, strings.NewReader(input), &bytes.Buffer{}, nil)
	require.Error(t, err)
	assert.Equal(t, "validation", Classify(err))
	assert.ErrorContains(t, err, "record 3 failed validation")

	profile.Input.SkipInvalidRows = true
	plan, err = NewPlan(profile, testMainConfig(t))
	require.NoError(t, err)

	var dst bytes.Buffer
	stats, err := Convert(context.Background(), plan, strings.NewReader(input), &dst, nil)
	require.NoError(t, err)
	assert.Equal(t, "id,amount,reason\r\n1,10,\r\n4,2000,big\r\n", dst.String())
	assert.Equal(t, 2, stats.RowsSkipped)
	require.Len(t, stats.Problems, 2)
	assert.Equal(t, 3, stats.Problems[0].LineNumber)
	assert.Equal(t, 4, stats.Problems[1].LineNumber)
	assert.Equal(t, "validation", stats.Problems[1].ErrorType)

	profile.ValidationRules = append(profile.ValidationRules, config.ValidationRule{Field: "id", DataType: "money"})
	_, err = NewPlan(profile, testMainConfig(t))
	assert.Equal(t, "config", Classify(err))
}

func TestConvertCanceled(t *testing.T) {
	plan, err := NewPlan(&config.Profile{Name: "p"}, testMainConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Convert(ctx, plan, strings.NewReader("a\n1\n"), &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "canceled", Classify(err))
}

func TestNewPlanRejects(t *testing.T) {
	cfg := testMainConfig(t)

	_, err := NewPlan(&config.Profile{Name: "p", Output: config.OutputSettings{ExtrasAction: "shout"}}, cfg)
	assert.ErrorIs(t, err, csvmap.ErrConfig)

	_, err = NewPlan(&config.Profile{Name: "p", Template: "missing.xlsx"}, cfg)
	assert.ErrorContains(t, err, "failed to load template")

	_, err = NewPlan(&config.Profile{Name: "p", TransformationRules: []config.TransformationRule{
		{Field: "f", Actions: []config.TransformationAction{{Type: "nope"}}},
	}}, cfg)
	assert.ErrorContains(t, err, "unknown transformation type")
}

func TestPlanWithTemplate(t *testing.T) {
	cfg := testMainConfig(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Source Field", "Output Field", "Always Include", "Default Value"},
		{"CUST_NO", "customer_id", "yes", "", "yes", "numeric"},
		{"CUST_NAME", "name"},
		{"REGION", "region", "", "EMEA"},
		{"PHONE", "phone", "y"},
	}
	for i, row := range rows {
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &row))
	}
	require.NoError(t, f.SaveAs(filepath.Join(cfg.TemplatesDir, "customers.xlsx")))
	require.NoError(t, f.Close())

	plan, err := NewPlan(&config.Profile{
		Name:     "customers",
		Template: "customers.xlsx",
		Output:   config.OutputSettings{Minimize: true},
	}, cfg)
	require.NoError(t, err)
	require.NotNil(t, plan.Template)
	assert.Equal(t, []string{"customer_id", "name", "region", "phone"}, plan.OutputFields)
	assert.False(t, plan.Validator.Empty())

	var dst bytes.Buffer
	_, err = Convert(context.Background(), plan, strings.NewReader("CUST_NO,CUST_NAME,REGION\n7,ann,\n8,bob,APAC\n"), &dst, nil)
	require.NoError(t, err)
	assert.Equal(t, "customer_id,name,region,phone\r\n7,ann,EMEA,\r\n8,bob,APAC,\r\n", dst.String())
}

func TestRun(t *testing.T) {
	cfg := testMainConfig(t)
	input := filepath.Join(cfg.InputDir, "orders_1.csv")
	require.NoError(t, os.WriteFile(input, []byte("id,total\n1,5\n"), 0644))

	profile := &config.Profile{Name: "orders", Output: config.OutputSettings{Fields: []string{"id", "total"}}}
	res := New(input, profile, cfg, nil).Run(context.Background())
	require.NoError(t, res.Error)
	assert.True(t, res.Success)

	assert.Contains(t, filepath.Base(res.OutputFile), "orders_orders_1_")
	data, err := os.ReadFile(res.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "id,total\r\n1,5\r\n", string(data))

	assert.NoFileExists(t, input)
	assert.FileExists(t, filepath.Join(cfg.InputArchiveDir, "orders_1.csv"))
	assert.FileExists(t, filepath.Join(cfg.OutputArchiveDir, filepath.Base(res.OutputFile)))
	assert.Equal(t, 1, res.Stats.RecordsWritten)
}

func TestRunFailureKeepsInput(t *testing.T) {
	cfg := testMainConfig(t)
	input := filepath.Join(cfg.InputDir, "orders_2.csv")
	require.NoError(t, os.WriteFile(input, []byte("id,secret\n1,x\n"), 0644))

	profile := &config.Profile{Name: "orders", Output: config.OutputSettings{
		Fields:       []string{"id"},
		ExtrasAction: "raise",
	}}
	res := New(input, profile, cfg, nil).Run(context.Background())
	require.Error(t, res.Error)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, csvmap.ErrUnknownFields)
	assert.Equal(t, "unknown_fields", Classify(res.Error))

	assert.FileExists(t, input)
	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClassify(t *testing.T) {
	assert.Empty(t, Classify(nil))
	assert.Equal(t, "config", Classify(&csvmap.ConfigError{Option: "x", Err: assert.AnError}))
	assert.Equal(t, "config", Classify(fmt.Errorf("wrapped: %w", config.ErrInvalid)))
	assert.Equal(t, "parse", Classify(&rowio.ParseError{Line: 1, Err: assert.AnError}))
	assert.Equal(t, "io", Classify(&rowio.IOError{Op: "open", Err: assert.AnError}))
	assert.Equal(t, "other", Classify(assert.AnError))
}
