package claim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	now := time.Now()
	c := New("claim-1", "jane.doe@example.com", now)

	assert.Equal(t, "claim-1", c.ID)
	assert.Equal(t, "jane.doe@example.com", c.SenderEmail)
	assert.Equal(t, StageNew, c.Stage)
	assert.Empty(t, c.AgentThreads)
	assert.Empty(t, c.CompletedAgents)
	assert.Equal(t, now, c.CreatedAt)
	assert.Equal(t, now, c.UpdatedAt)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name   string
		from   Stage
		to     Stage
		expect bool
	}{
		{name: "new to questioned", from: StageNew, to: StageQuestioned, expect: true},
		{name: "new to triaged is not allowed", from: StageNew, to: StageTriaged, expect: false},
		{name: "questioned to triaged", from: StageQuestioned, to: StageTriaged, expect: true},
		{name: "questioned to agents running", from: StageQuestioned, to: StageAgentsRunning, expect: true},
		{name: "triaged to agents running", from: StageTriaged, to: StageAgentsRunning, expect: true},
		{name: "agents running to review", from: StageAgentsRunning, to: StageReview, expect: true},
		{name: "agents running to followup requested", from: StageAgentsRunning, to: StageFollowupRequested, expect: true},
		{name: "agents running to agents complete", from: StageAgentsRunning, to: StageAgentsComplete, expect: true},
		{name: "review back to agents running", from: StageReview, to: StageAgentsRunning, expect: true},
		{name: "followup requested back to agents running", from: StageFollowupRequested, to: StageAgentsRunning, expect: true},
		{name: "agents complete to complete", from: StageAgentsComplete, to: StageComplete, expect: true},
		{name: "complete reopens to triaged", from: StageComplete, to: StageTriaged, expect: true},
		{name: "complete cannot go directly to agents running", from: StageComplete, to: StageAgentsRunning, expect: false},
		{name: "unknown origin stage has no transitions", from: Stage("BOGUS"), to: StageNew, expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, CanTransition(tt.from, tt.to))
		})
	}
}

func TestHasIncidentType(t *testing.T) {
	c := &Claim{IncidentTypes: []IncidentType{IncidentFire, IncidentTheft}}

	assert.True(t, c.HasIncidentType(IncidentFire))
	assert.True(t, c.HasIncidentType(IncidentTheft))
	assert.False(t, c.HasIncidentType(IncidentPersonalInjury))
}

func TestHasIncidentType_EmptyClaim(t *testing.T) {
	c := &Claim{}
	assert.False(t, c.HasIncidentType(IncidentFire))
}

func TestIsAgentComplete(t *testing.T) {
	c := &Claim{CompletedAgents: map[string]bool{"triage": true}}

	assert.True(t, c.IsAgentComplete("triage"))
	assert.False(t, c.IsAgentComplete("clarifier"))
}

func TestIsAgentComplete_NilMap(t *testing.T) {
	c := &Claim{}
	assert.False(t, c.IsAgentComplete("triage"))
}

func TestAllIncidentTypes_HasFifteenEntries(t *testing.T) {
	assert.Len(t, AllIncidentTypes, 15)

	seen := make(map[IncidentType]bool)
	for _, it := range AllIncidentTypes {
		assert.False(t, seen[it], "incident type %s listed twice", it)
		seen[it] = true
	}
}
