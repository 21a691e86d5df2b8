package masking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredPIIMasker_Name(t *testing.T) {
	m := &StructuredPIIMasker{}
	assert.Equal(t, "structured_pii", m.Name())
}

func TestStructuredPIIMasker_AppliesTo(t *testing.T) {
	m := &StructuredPIIMasker{}

	tests := []struct {
		name   string
		input  string
		expect bool
	}{
		{name: "has ssn field", input: `{"ssn": "123-45-6789"}`, expect: true},
		{name: "has date_of_birth field", input: "date_of_birth: 1990-01-01", expect: true},
		{name: "has account_number field", input: `{"account_number": "00012345"}`, expect: true},
		{name: "plain claim narrative", input: "The windshield cracked during the hailstorm.", expect: false},
		{name: "empty string", input: "", expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, m.AppliesTo(tt.input))
		})
	}
}

func TestStructuredPIIMasker_JSON_MasksKnownFields(t *testing.T) {
	m := &StructuredPIIMasker{}
	input := `{"name": "Jane Doe", "ssn": "123-45-6789", "account_number": "00012345"}`

	result := m.Mask(input)

	assert.NotEqual(t, input, result)
	assert.Contains(t, result, MaskedFieldValue)
	assert.Contains(t, result, "Jane Doe", "Non-sensitive fields should be preserved")
	assert.NotContains(t, result, "123-45-6789")
	assert.NotContains(t, result, "00012345")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	assert.Equal(t, MaskedFieldValue, parsed["ssn"])
	assert.Equal(t, MaskedFieldValue, parsed["account_number"])
}

func TestStructuredPIIMasker_JSON_NestedFields(t *testing.T) {
	m := &StructuredPIIMasker{}
	input := `{"claimant": {"name": "Jane Doe", "ssn": "123-45-6789"}, "vehicles": [{"vin": "1ABC", "drivers_license": "D1234567"}]}`

	result := m.Mask(input)

	assert.NotContains(t, result, "123-45-6789")
	assert.NotContains(t, result, "D1234567")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	claimant := parsed["claimant"].(map[string]any)
	assert.Equal(t, MaskedFieldValue, claimant["ssn"])
	assert.Equal(t, "Jane Doe", claimant["name"])

	vehicles := parsed["vehicles"].([]any)
	v0 := vehicles[0].(map[string]any)
	assert.Equal(t, MaskedFieldValue, v0["drivers_license"])
	assert.Equal(t, "1ABC", v0["vin"])
}

func TestStructuredPIIMasker_YAML_MasksKnownFields(t *testing.T) {
	m := &StructuredPIIMasker{}
	input := "name: Jane Doe\nssn: 123-45-6789\nrouting_number: \"021000021\"\n"

	result := m.Mask(input)

	assert.NotEqual(t, input, result)
	assert.Contains(t, result, MaskedFieldValue)
	assert.Contains(t, result, "Jane Doe")
	assert.NotContains(t, result, "123-45-6789")
	assert.NotContains(t, result, "021000021")
}

func TestStructuredPIIMasker_NoKnownFields_ReturnsOriginal(t *testing.T) {
	m := &StructuredPIIMasker{}
	input := `{"name": "Jane Doe", "vehicle": "Civic"}`

	result := m.Mask(input)
	assert.Equal(t, input, result)
}

func TestStructuredPIIMasker_MalformedJSON_ReturnsOriginal(t *testing.T) {
	m := &StructuredPIIMasker{}
	input := `{"ssn": "123-45-6789", broken`

	result := m.Mask(input)
	assert.Equal(t, input, result)
}

func TestStructuredPIIMasker_MalformedYAML_ReturnsOriginal(t *testing.T) {
	m := &StructuredPIIMasker{}
	input := "ssn: this is not: valid: yaml: [["

	result := m.Mask(input)
	assert.Equal(t, input, result)
}

func TestStructuredPIIMasker_PlainNarrativeUnaffected(t *testing.T) {
	m := &StructuredPIIMasker{}
	input := "The claimant mentioned their date of birth during the call but no structured data was attached."

	if m.AppliesTo(input) {
		result := m.Mask(input)
		assert.Equal(t, input, result, "Prose mentioning a hint term but not valid JSON/YAML should pass through unchanged")
	}
}

func TestMaskSensitiveFields_HyphenatedKeyNormalizes(t *testing.T) {
	resource := map[string]any{
		"credit-card-number": "4111111111111111",
		"name":               "Jane Doe",
	}

	masked := maskSensitiveFields(resource)

	assert.True(t, masked)
	assert.Equal(t, MaskedFieldValue, resource["credit-card-number"])
	assert.Equal(t, "Jane Doe", resource["name"])
}
