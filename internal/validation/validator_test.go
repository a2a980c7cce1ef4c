package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDataType(t *testing.T) {
	tests := []struct {
		value    string
		dataType string
		ok       bool
	}{
		{"anything", "", true},
		{"anything", "string", true},
		{"42", "numeric", true},
		{"4.2", "integer", false},
		{"4.25", "decimal", true},
		{"4.25", "decimal(2)", true},
		{"4.255", "decimal(2)", false},
		{"abc", "decimal", false},
		{"ab 12", "alphanumeric", true},
		{"ab-12", "alphanumeric", false},
		{"Zoë Ann", "alpha", true},
		{"ann1", "alpha", false},
		{"2026-01-15", "date", true},
		{"01/15/2026", "date", true},
		{"15.01.2026", "date", false},
		{"15.01.2026", "date(02.01.2006)", true},
		{"2026-01-15", "date(02.01.2006)", false},
		{"Yes", "boolean", true},
		{"maybe", "boolean", false},
	}

	for _, tt := range tests {
		t.Run(tt.dataType+"/"+tt.value, func(t *testing.T) {
			msg := validateDataType(tt.value, tt.dataType)
			if tt.ok {
				assert.Empty(t, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	v, err := NewValidator([]Rule{
		{Field: "id", Required: true, DataType: "numeric"},
		{Field: "code", MaxLength: 3, Pattern: `^[A-Z]+$`},
		{Field: "reason", RequiredIf: "status == 'rejected'"},
		{Field: "approver", RequiredIf: "if amount >= 1000"},
	})
	require.NoError(t, err)
	assert.False(t, v.Empty())

	assert.NoError(t, v.Validate(2, map[string]string{"id": "1", "code": "AB", "status": "ok", "amount": "5"}))
	assert.NoError(t, v.Validate(3, map[string]string{"id": "2", "amount": "n/a"}))

	err = v.Validate(4, map[string]string{"code": "abcd", "status": "rejected", "amount": "1000"})
	var recErr *RecordError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, 4, recErr.Line)

	var rules []string
	for _, e := range recErr.Errors {
		rules = append(rules, e.Field+":"+e.Rule)
	}
	assert.Equal(t, []string{"id:required", "code:max_length", "code:pattern", "reason:required_if", "approver:required_if"}, rules)
	assert.Contains(t, err.Error(), "record 4 failed validation: field 'id': required field is empty")
}

func TestConditions(t *testing.T) {
	rec := map[string]string{"name": "Ann Smith", "amount": "12.5", "blank": ""}

	tests := []struct {
		rule string
		want bool
	}{
		{"name == 'Ann Smith'", true},
		{"name != 'Ann Smith'", false},
		{"amount > 12", true},
		{"amount<12", false},
		{"amount <= 12.5", true},
		{"amount == 12.5", true},
		{"name > 1", false},
		{"name starts_with 'Ann'", true},
		{"name ends_with 'Ann'", false},
		{"name contains 'n S'", true},
		{"blank is_empty", true},
		{"missing is_empty", true},
		{"name is_not_empty", true},
		{"if blank is_not_empty", false},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			cond, err := parseCondition(tt.rule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cond(rec))
		})
	}
}

func TestNewValidatorRejects(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"no field", Rule{Required: true}},
		{"unknown type", Rule{Field: "a", DataType: "money"}},
		{"bad precision", Rule{Field: "a", DataType: "decimal(x)"}},
		{"argument on numeric", Rule{Field: "a", DataType: "numeric(2)"}},
		{"negative length", Rule{Field: "a", MaxLength: -1}},
		{"bad pattern", Rule{Field: "a", Pattern: "("}},
		{"bad condition", Rule{Field: "a", RequiredIf: "b is maybe"}},
		{"ordered string", Rule{Field: "a", RequiredIf: "b > 'x'"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewValidator([]Rule{tt.rule})
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}

	v, err := NewValidator(nil)
	require.NoError(t, err)
	assert.True(t, v.Empty())
	assert.NoError(t, v.Validate(1, map[string]string{}))
}
