// Package registry implements the Agent registry configuration of spec
// §6: a fixed mapping from the 15 incident-type keys to agent names, and
// from each agent name to an LLM agent id and a decision evaluator
// function.
package registry

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/claimflow/pkg/claim"
	"github.com/codeready-toolchain/claimflow/pkg/evaluator"
	"github.com/codeready-toolchain/claimflow/pkg/llmclient"
)

// AgentSpec is one enlisted agent's configuration.
type AgentSpec struct {
	Name         string
	LLMAgentID   string // empty means the agent is skipped for the claim
	Evaluator    evaluator.Func
	Instructions string               // seeded as the thread's system message on creation
	Tools        []llmclient.ToolSchema // declared to the backend so a run can reach RunRequiresAction
}

// Registry is the fixed incident-type -> agent -> (llm id, evaluator) map
// plus the clarifier/triage/follow-up agent ids (spec §6).
type Registry struct {
	incidentAgent map[claim.IncidentType]string
	agents        map[string]AgentSpec

	ClarifierAgentID string
	TriageAgentID     string
	FollowupAgentID   string
}

// defaultIncidentAgent is the canonical incident-type -> agent-name binding
// (spec §4.6's fifteen keys, each named "<incident>_assistant").
var defaultIncidentAgent = map[claim.IncidentType]string{
	claim.IncidentAccidentalAndGlassDamage: "accidental_and_glass_damage_assistant",
	claim.IncidentFire:                     "fire_assistant",
	claim.IncidentTheft:                    "theft_assistant",
	claim.IncidentAncillaryProperty:        "ancillary_property_assistant",
	claim.IncidentThirdPartyInjury:         "third_party_injury_assistant",
	claim.IncidentThirdPartyProperty:       "third_party_property_assistant",
	claim.IncidentSpecialLiability:         "special_liability_assistant",
	claim.IncidentLegalAndStatutory:        "legal_and_statutory_assistant",
	claim.IncidentPersonalInjury:           "personal_injury_assistant",
	claim.IncidentPersonalConvenience:      "personal_convenience_assistant",
	claim.IncidentPersonalProperty:         "personal_property_assistant",
	claim.IncidentTerritorialUsage:         "territorial_usage_assistant",
	claim.IncidentGeneralExceptions:        "general_exceptions_assistant",
	claim.IncidentVehicleSecurity:          "vehicle_security_assistant",
	claim.IncidentAdministrative:           "administrative_assistant",
}

// AgentIDs maps an agent name to its configured LLM agent id (spec §6
// "Environment configuration": LLM agent ids for each of the 15 agents).
type AgentIDs map[string]string

// submitFindingsTool is the function every specialist agent shares. The
// original ran against the OpenAI Assistants API, which binds tools and
// instructions to the assistant id server-side; rebased onto plain Chat
// Completions (spec §6, pkg/llmclient) nothing server-side carries that
// any more, so the tool schema and the agent's instructions have to
// travel with every StartRun call instead (spec §4.7 step 3/4).
func submitFindingsTool() llmclient.ToolSchema {
	return llmclient.ToolSchema{
		Name:        "submit_claim_findings",
		Description: "Submit the structured findings gathered for this claim once enough information has been collected to hand off to an adjuster.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary":            map[string]any{"type": "string", "description": "Short summary of the incident as understood so far."},
				"reported_to_police": map[string]any{"type": "boolean", "description": "Whether the incident was reported to police (theft claims)."},
				"time_lag_hours":     map[string]any{"type": "number", "description": "Hours between the incident occurring and it being reported (theft claims)."},
				"estimated_amount":   map[string]any{"type": "number", "description": "Estimated claim amount, if known."},
			},
			"additionalProperties": true,
		},
	}
}

// instructionsFor builds the system instructions for a specialist agent
// from its registered name ("fire_assistant" -> "fire assistant").
func instructionsFor(agentName string) string {
	label := strings.ReplaceAll(agentName, "_", " ")
	return fmt.Sprintf("You are the %s for this insurance claim. Review the conversation history "+
		"and attachment descriptions provided. If information needed to assess the claim is still "+
		"missing, ask for it in plain text. Once you have gathered enough detail, call "+
		"submit_claim_findings with a structured summary of what you found.", label)
}

// New builds the registry, wiring each agent name to its LLM id (from
// config, may be empty/missing) and its evaluator function (from the
// fixed evaluator.Registry).
func New(agentIDs AgentIDs, clarifierID, triageID, followupID string) *Registry {
	r := &Registry{
		incidentAgent:     defaultIncidentAgent,
		agents:            map[string]AgentSpec{},
		ClarifierAgentID:  clarifierID,
		TriageAgentID:     triageID,
		FollowupAgentID:   followupID,
	}
	for _, name := range defaultIncidentAgent {
		r.agents[name] = AgentSpec{
			Name:         name,
			LLMAgentID:   agentIDs[name],
			Evaluator:    evaluator.Registry[name],
			Instructions: instructionsFor(name),
			Tools:        []llmclient.ToolSchema{submitFindingsTool()},
		}
	}
	return r
}

// AgentForIncident returns the agent bound to an incident type.
func (r *Registry) AgentForIncident(t claim.IncidentType) (AgentSpec, bool) {
	name, ok := r.incidentAgent[t]
	if !ok {
		return AgentSpec{}, false
	}
	spec, ok := r.agents[name]
	return spec, ok
}

// AgentsForIncidents returns the deduplicated, enlisted agents for a set
// of incident types, skipping any agent with no configured LLM agent id
// (spec §6: "Missing agent id ⇒ skip that agent for the claim").
func (r *Registry) AgentsForIncidents(types []claim.IncidentType) []AgentSpec {
	seen := map[string]bool{}
	var out []AgentSpec
	for _, t := range types {
		spec, ok := r.AgentForIncident(t)
		if !ok || seen[spec.Name] {
			continue
		}
		seen[spec.Name] = true
		if spec.LLMAgentID == "" {
			continue
		}
		out = append(out, spec)
	}
	return out
}

// Evaluator looks up the evaluator function for an agent name (spec §6:
// "missing evaluator ⇒ payload logged, not consumed").
func (r *Registry) Evaluator(agentName string) (evaluator.Func, bool) {
	spec, ok := r.agents[agentName]
	if !ok || spec.Evaluator == nil {
		return nil, false
	}
	return spec.Evaluator, true
}

// AllAgentNames returns every registered agent name, in no fixed order.
func (r *Registry) AllAgentNames() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}
