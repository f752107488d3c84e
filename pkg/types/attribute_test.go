package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestRuleSetValidate(t *testing.T) {
	tests := []struct {
		name     string
		rules    RuleSet
		dataType string
		wantErr  bool
	}{
		{"empty rules on any type", RuleSet{}, DataTypeJSON, false},
		{"numeric bounds on integer", RuleSet{Min: floatPtr(1), Max: floatPtr(5)}, DataTypeInteger, false},
		{"numeric bounds on float", RuleSet{Min: floatPtr(0.5)}, DataTypeFloat, false},
		{"numeric bounds on text rejected", RuleSet{Min: floatPtr(1)}, DataTypeText, true},
		{"min above max rejected", RuleSet{Min: floatPtr(5), Max: floatPtr(1)}, DataTypeInteger, true},
		{"length rules on text", RuleSet{MinLength: intPtr(1), MaxLength: intPtr(10)}, DataTypeText, false},
		{"length rules on boolean rejected", RuleSet{MaxLength: intPtr(10)}, DataTypeBoolean, true},
		{"negative min length rejected", RuleSet{MinLength: intPtr(-1)}, DataTypeText, true},
		{"min length above max length rejected", RuleSet{MinLength: intPtr(5), MaxLength: intPtr(2)}, DataTypeText, true},
		{"valid pattern", RuleSet{Pattern: "^[a-z]+$"}, DataTypeText, false},
		{"broken pattern rejected", RuleSet{Pattern: "(["}, DataTypeText, true},
		{"enum on text", RuleSet{Enum: []string{"low", "high"}}, DataTypeText, false},
		{"enum on timestamp rejected", RuleSet{Enum: []string{"x"}}, DataTypeTimestamp, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rules.Validate(tt.dataType)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCheckPayloadNormalization(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name     string
		dataType string
		rules    RuleSet
		payload  any
		want     any
		wantErr  bool
	}{
		{"int normalizes to int64", DataTypeInteger, RuleSet{}, 42, int64(42), false},
		{"integral float accepted as integer", DataTypeInteger, RuleSet{}, float64(7), int64(7), false},
		{"fractional float rejected as integer", DataTypeInteger, RuleSet{}, 7.5, nil, true},
		{"integer below min rejected", DataTypeInteger, RuleSet{Min: floatPtr(1)}, 0, nil, true},
		{"integer above max rejected", DataTypeInteger, RuleSet{Max: floatPtr(5)}, 9, nil, true},
		{"int accepted as float", DataTypeFloat, RuleSet{}, 3, float64(3), false},
		{"string rejected as float", DataTypeFloat, RuleSet{}, "3.2", nil, true},
		{"text passes enum", DataTypeText, RuleSet{Enum: []string{"low", "high"}}, "low", "low", false},
		{"text outside enum rejected", DataTypeText, RuleSet{Enum: []string{"low", "high"}}, "mid", nil, true},
		{"text below min length rejected", DataTypeText, RuleSet{MinLength: intPtr(3)}, "ab", nil, true},
		{"text fails pattern", DataTypeText, RuleSet{Pattern: "^[a-z]+$"}, "ABC", nil, true},
		{"boolean accepted", DataTypeBoolean, RuleSet{}, true, true, false},
		{"integer rejected as boolean", DataTypeBoolean, RuleSet{}, 1, nil, true},
		{"RFC3339 string accepted as timestamp", DataTypeTimestamp, RuleSet{}, "2026-03-14T09:26:53Z", ts, false},
		{"time.Time accepted as timestamp", DataTypeTimestamp, RuleSet{}, ts, ts, false},
		{"malformed timestamp rejected", DataTypeTimestamp, RuleSet{}, "yesterday", nil, true},
		{"map accepted as json", DataTypeJSON, RuleSet{}, map[string]any{"a": 1}, map[string]any{"a": 1}, false},
		{"channel rejected as json", DataTypeJSON, RuleSet{}, make(chan int), nil, true},
		{"nil payload rejected", DataTypeText, RuleSet{}, nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := &Attribute{AttributeID: "attr-1", DataType: tt.dataType, Rules: tt.rules}
			got, err := attr.CheckPayload(tt.payload)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckPayloadViolationCarriesAttribute(t *testing.T) {
	attr := &Attribute{AttributeID: "attr-9", DataType: DataTypeInteger, Rules: RuleSet{Max: floatPtr(5)}}
	_, err := attr.CheckPayload(9)
	require.Error(t, err)

	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "attr-9", v.AttributeID)
	assert.Equal(t, "rule-max", v.Invariant)
}
