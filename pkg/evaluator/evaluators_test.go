package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_HasAllFifteenAgents(t *testing.T) {
	names := []string{
		"accidental_and_glass_damage_assistant", "fire_assistant", "theft_assistant",
		"ancillary_property_assistant", "third_party_injury_assistant", "third_party_property_assistant",
		"special_liability_assistant", "legal_and_statutory_assistant", "personal_injury_assistant",
		"personal_convenience_assistant", "personal_property_assistant", "territorial_usage_assistant",
		"general_exceptions_assistant", "vehicle_security_assistant", "administrative_assistant",
	}
	assert.Len(t, Registry, len(names))
	for _, n := range names {
		assert.Contains(t, Registry, n)
	}
}

func TestEvalTheft_NotReportedToPolice(t *testing.T) {
	decision, err := Registry["theft_assistant"](map[string]any{"reported_to_police": false})
	require.NoError(t, err)

	d, ok := decision.(Decision)
	require.True(t, ok)
	assert.Equal(t, "flagged", d.Outcome)
	assert.Contains(t, d.Notes, "not reported to police")
}

func TestEvalTheft_ReportedLate(t *testing.T) {
	decision, err := Registry["theft_assistant"](map[string]any{
		"reported_to_police": true,
		"time_lag_hours":     72.0,
	})
	require.NoError(t, err)

	d := decision.(Decision)
	assert.Equal(t, "flagged", d.Outcome)
	assert.Contains(t, d.Notes, "48 hours")
}

func TestEvalTheft_NormalCase(t *testing.T) {
	decision, err := Registry["theft_assistant"](map[string]any{
		"reported_to_police": true,
		"time_lag_hours":     2.0,
	})
	require.NoError(t, err)

	d := decision.(Decision)
	assert.Equal(t, "referred_for_review", d.Outcome)
}

func TestEvalTheft_MissingFields(t *testing.T) {
	decision, err := Registry["theft_assistant"](map[string]any{})
	require.NoError(t, err)

	d := decision.(Decision)
	assert.Equal(t, "referred_for_review", d.Outcome)
}

func TestEvalAdministrative_Closes(t *testing.T) {
	decision, err := Registry["administrative_assistant"](map[string]any{"request": "address change"})
	require.NoError(t, err)

	d := decision.(Decision)
	assert.Equal(t, "closed", d.Outcome)
}

func TestEvalFire_ReferredForReview(t *testing.T) {
	decision, err := Registry["fire_assistant"](map[string]any{"cause": "electrical"})
	require.NoError(t, err)

	d := decision.(Decision)
	assert.Equal(t, "referred_for_review", d.Outcome)
	assert.Equal(t, map[string]any{"cause": "electrical"}, d.Fields)
	assert.False(t, d.EvaluedAt.IsZero())
}
