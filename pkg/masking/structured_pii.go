package masking

import (
	"encoding/json"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaskedFieldValue is the replacement string for a masked sensitive field value.
const MaskedFieldValue = "[MASKED_PII]"

// sensitiveFieldNames are the field-name keys this masker looks for, after
// normalizing hyphens to underscores and lowercasing.
var sensitiveFieldNames = map[string]bool{
	"ssn":                    true,
	"social_security_number": true,
	"date_of_birth":          true,
	"dob":                    true,
	"account_number":         true,
	"routing_number":         true,
	"credit_card":            true,
	"credit_card_number":     true,
	"drivers_license":        true,
	"drivers_license_number": true,
}

// sensitiveFieldHints are cheap substring checks for AppliesTo; every
// sensitiveFieldNames key contains one of them. They keep their
// underscores, so a prose label such as "SSN" triggers a closer look but
// "Date of Birth" does not.
var sensitiveFieldHints = []string{
	"ssn", "social_security", "date_of_birth", "dob",
	"account_number", "routing_number", "credit_card", "drivers_license",
}

// StructuredPIIMasker masks known sensitive fields (SSNs, account numbers,
// dates of birth, card numbers, driver's license numbers) inside a claimant's
// submitted JSON or YAML form data, leaving every other field untouched.
// Unlike the regex patterns, it understands structure: it only touches
// values keyed by a recognized field name, not any digit string that happens
// to look similar.
type StructuredPIIMasker struct{}

// Name returns the unique identifier for this masker.
func (m *StructuredPIIMasker) Name() string { return "structured_pii" }

// AppliesTo performs a lightweight check on whether this masker should process the data.
func (m *StructuredPIIMasker) AppliesTo(data string) bool {
	lower := strings.ToLower(data)
	for _, hint := range sensitiveFieldHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// Mask applies structured PII masking logic. Detects JSON vs YAML and
// applies the appropriate parser. Returns original data on parse/processing
// errors (defensive).
func (m *StructuredPIIMasker) Mask(data string) string {
	trimmed := strings.TrimSpace(data)

	// Try JSON first when input looks like JSON (starts with { or [).
	// This prevents the YAML parser from consuming JSON and re-serializing as YAML.
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if masked := m.maskJSON(data); masked != data {
			return masked
		}
	}

	if masked := m.maskYAML(data); masked != data {
		return masked
	}

	return data
}

// maskJSON parses a JSON object and masks any sensitive field found anywhere
// in the structure.
func (m *StructuredPIIMasker) maskJSON(data string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return data
	}

	if !maskSensitiveFields(obj) {
		return data
	}

	result, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return data
	}

	output := string(result)
	if strings.HasSuffix(data, "\n") {
		output += "\n"
	}
	return output
}

// maskYAML parses multi-document YAML and masks sensitive fields in each document.
func (m *StructuredPIIMasker) maskYAML(data string) string {
	decoder := yaml.NewDecoder(strings.NewReader(data))
	var documents []map[string]any
	anyMasked := false

	for {
		var doc map[string]any
		err := decoder.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return data // Parse error — return original (defensive)
		}
		if doc == nil {
			continue
		}

		if maskSensitiveFields(doc) {
			anyMasked = true
		}
		documents = append(documents, doc)
	}

	if !anyMasked || len(documents) == 0 {
		return data
	}

	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	for _, doc := range documents {
		if err := encoder.Encode(doc); err != nil {
			return data
		}
	}
	if err := encoder.Close(); err != nil {
		return data
	}

	result := strings.TrimRight(buf.String(), "\n")
	if strings.HasSuffix(data, "\n") {
		result += "\n"
	}
	return result
}

// maskSensitiveFields recursively walks a decoded JSON/YAML structure and
// replaces the value of any key matching a known sensitive field name.
// Returns true if any field was masked.
func maskSensitiveFields(node any) bool {
	switch v := node.(type) {
	case map[string]any:
		masked := false
		for key, val := range v {
			normalized := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
			if sensitiveFieldNames[normalized] {
				v[key] = MaskedFieldValue
				masked = true
				continue
			}
			if maskSensitiveFields(val) {
				masked = true
			}
		}
		return masked
	case []any:
		masked := false
		for _, item := range v {
			if maskSensitiveFields(item) {
				masked = true
			}
		}
		return masked
	default:
		return false
	}
}
