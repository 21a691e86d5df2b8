package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/claimflow/pkg/config"
)

func TestCompileBuiltinPatterns(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: true})

	assert.Equal(t, len(builtinPatterns), len(svc.patterns))
	for name, cp := range svc.patterns {
		assert.NotNil(t, cp.Regex, "Pattern %s should have compiled regex", name)
		assert.NotEmpty(t, cp.Replacement, "Pattern %s should have replacement", name)
	}
}

func TestCompileCustomPatterns(t *testing.T) {
	cfg := &config.MaskingConfig{
		Enabled: true,
		CustomPatterns: []config.MaskingPattern{
			{Pattern: `CUSTOM_SECRET_[A-Za-z0-9]+`, Replacement: "[MASKED_CUSTOM]", Description: "Custom secret pattern"},
		},
	}
	svc := NewService(cfg)

	assert.Equal(t, len(builtinPatterns)+1, len(svc.patterns))

	cp, exists := svc.patterns["custom:0"]
	require.True(t, exists, "Custom pattern should be registered")
	assert.Equal(t, "[MASKED_CUSTOM]", cp.Replacement)
}

func TestCompileCustomPatterns_InvalidRegex(t *testing.T) {
	cfg := &config.MaskingConfig{
		Enabled: true,
		CustomPatterns: []config.MaskingPattern{
			{Pattern: `[invalid`, Replacement: "[MASKED]"},
			{Pattern: `valid_pattern`, Replacement: "[MASKED_VALID]"},
		},
	}
	svc := NewService(cfg)

	_, invalidExists := svc.patterns["custom:0"]
	assert.False(t, invalidExists, "Invalid regex pattern should be skipped")

	_, validExists := svc.patterns["custom:1"]
	assert.True(t, validExists, "Valid pattern should be compiled")
}

func TestCompileCustomPatterns_MaskingDisabled(t *testing.T) {
	cfg := &config.MaskingConfig{
		Enabled: false,
		CustomPatterns: []config.MaskingPattern{
			{Pattern: `secret`, Replacement: "[MASKED]"},
		},
	}
	svc := NewService(cfg)

	_, exists := svc.patterns["custom:0"]
	assert.False(t, exists, "Custom patterns should not compile when masking is disabled")
}

func TestResolvePatterns_GroupExpansion(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: true})

	tests := []struct {
		name           string
		groups         []string
		minRegex       int
		hasCodeMaskers bool
	}{
		{name: "email group", groups: []string{"email"}, minRegex: 1},
		{name: "pii group", groups: []string{"pii"}, minRegex: 4},
		{name: "claim group", groups: []string{"claim"}, minRegex: 2},
		{name: "all group", groups: []string{"all"}, minRegex: 6},
		{name: "multiple groups with dedup", groups: []string{"email", "pii"}, minRegex: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.MaskingConfig{Enabled: true, PatternGroups: tt.groups}
			resolved := svc.resolvePatterns(cfg)

			assert.GreaterOrEqual(t, len(resolved.regexPatterns), tt.minRegex,
				"Should have at least %d regex patterns", tt.minRegex)

			if tt.hasCodeMaskers {
				assert.NotEmpty(t, resolved.codeMaskerNames)
			}
		})
	}
}

func TestResolvePatterns_IndividualPatterns(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: true})

	cfg := &config.MaskingConfig{Enabled: true, Patterns: []string{"email", "ssn"}}
	resolved := svc.resolvePatterns(cfg)

	assert.Len(t, resolved.regexPatterns, 2)

	names := make([]string, len(resolved.regexPatterns))
	for i, p := range resolved.regexPatterns {
		names[i] = p.Name
	}
	assert.Contains(t, names, "email")
	assert.Contains(t, names, "ssn")
}

func TestResolvePatterns_UnknownGroup(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: true})

	cfg := &config.MaskingConfig{Enabled: true, PatternGroups: []string{"nonexistent_group"}}
	resolved := svc.resolvePatterns(cfg)

	assert.Empty(t, resolved.regexPatterns)
	assert.Empty(t, resolved.codeMaskerNames)
}

func TestResolvePatterns_WithCustomPatterns(t *testing.T) {
	cfg := &config.MaskingConfig{
		Enabled:       true,
		PatternGroups: []string{"email"},
		CustomPatterns: []config.MaskingPattern{
			{Pattern: `MY_SECRET_[A-Z]+`, Replacement: "[MASKED_MY_SECRET]"},
		},
	}
	svc := NewService(cfg)

	resolved := svc.resolvePatterns(cfg)

	assert.GreaterOrEqual(t, len(resolved.regexPatterns), 2) // email + custom
}

func TestResolvePatterns_Deduplication(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: true})

	// ssn appears in both the group and the individual patterns list
	cfg := &config.MaskingConfig{
		Enabled:       true,
		PatternGroups: []string{"pii"}, // Contains email, phone, ssn, credit_card
		Patterns:      []string{"ssn"}, // Duplicate
	}
	resolved := svc.resolvePatterns(cfg)

	ssnCount := 0
	for _, p := range resolved.regexPatterns {
		if p.Name == "ssn" {
			ssnCount++
		}
	}
	assert.Equal(t, 1, ssnCount, "ssn should appear only once (deduplicated)")
}
