package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/claimflow/pkg/claim"
)

func TestNew_WiresAgentIDsAndRoles(t *testing.T) {
	agentIDs := AgentIDs{
		"fire_assistant":  "asst_fire_123",
		"theft_assistant": "asst_theft_456",
	}
	r := New(agentIDs, "asst_clarifier", "asst_triage", "asst_followup")

	assert.Equal(t, "asst_clarifier", r.ClarifierAgentID)
	assert.Equal(t, "asst_triage", r.TriageAgentID)
	assert.Equal(t, "asst_followup", r.FollowupAgentID)
}

func TestAgentForIncident_Known(t *testing.T) {
	r := New(AgentIDs{"fire_assistant": "asst_fire_123"}, "", "", "")

	spec, ok := r.AgentForIncident(claim.IncidentFire)
	require.True(t, ok)
	assert.Equal(t, "fire_assistant", spec.Name)
	assert.Equal(t, "asst_fire_123", spec.LLMAgentID)
}

func TestAgentForIncident_Unknown(t *testing.T) {
	r := New(AgentIDs{}, "", "", "")

	_, ok := r.AgentForIncident(claim.IncidentType("not_a_real_incident"))
	assert.False(t, ok)
}

func TestAgentsForIncidents_SkipsMissingAgentID(t *testing.T) {
	agentIDs := AgentIDs{
		"fire_assistant": "asst_fire_123",
		// theft_assistant deliberately has no configured id
	}
	r := New(agentIDs, "", "", "")

	specs := r.AgentsForIncidents([]claim.IncidentType{claim.IncidentFire, claim.IncidentTheft})

	require.Len(t, specs, 1)
	assert.Equal(t, "fire_assistant", specs[0].Name)
}

func TestAgentsForIncidents_Deduplicates(t *testing.T) {
	agentIDs := AgentIDs{"fire_assistant": "asst_fire_123"}
	r := New(agentIDs, "", "", "")

	specs := r.AgentsForIncidents([]claim.IncidentType{claim.IncidentFire, claim.IncidentFire})

	assert.Len(t, specs, 1)
}

func TestAgentsForIncidents_UnknownIncidentSkipped(t *testing.T) {
	agentIDs := AgentIDs{"fire_assistant": "asst_fire_123"}
	r := New(agentIDs, "", "", "")

	specs := r.AgentsForIncidents([]claim.IncidentType{claim.IncidentType("bogus"), claim.IncidentFire})

	require.Len(t, specs, 1)
	assert.Equal(t, "fire_assistant", specs[0].Name)
}

func TestEvaluator_Found(t *testing.T) {
	r := New(AgentIDs{"fire_assistant": "asst_fire_123"}, "", "", "")

	fn, ok := r.Evaluator("fire_assistant")
	assert.True(t, ok)
	assert.NotNil(t, fn)
}

func TestEvaluator_NotFound(t *testing.T) {
	r := New(AgentIDs{}, "", "", "")

	fn, ok := r.Evaluator("nonexistent_agent")
	assert.False(t, ok)
	assert.Nil(t, fn)
}

func TestAllAgentNames_IncludesAllFifteen(t *testing.T) {
	r := New(AgentIDs{}, "", "", "")

	names := r.AllAgentNames()
	assert.Len(t, names, 15)

	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	assert.True(t, found["fire_assistant"])
	assert.True(t, found["theft_assistant"])
	assert.True(t, found["administrative_assistant"])
}
