// Package triage implements the Triager (C6, spec §4.6): a single LLM
// call that classifies a claim's conversation history into one or more
// of the fixed incident-type keys plus a free-text description, both
// persisted onto the claim record.
//
// The single-shot-classify-and-persist shape is grounded on
// kadirpekel-hector's native document parsers' "classify, then hand the
// structured result to the next stage" pattern, carried over to this
// package's one LLM call via llmclient.Client.Respond (itself grounded on
// intelligencedev-manifold's structured-output adapters, see pkg/llmclient).
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/claimflow/pkg/claim"
	"github.com/codeready-toolchain/claimflow/pkg/llmclient"
	"github.com/codeready-toolchain/claimflow/pkg/masking"
	"github.com/codeready-toolchain/claimflow/pkg/store"
)

var incidentTypeEnum = func() []string {
	out := make([]string, len(claim.AllIncidentTypes))
	for i, t := range claim.AllIncidentTypes {
		out[i] = string(t)
	}
	return out
}()

var triageSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"incident_types": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "enum": incidentTypeEnum},
			"minItems": 1,
		},
		"incident_description": map[string]any{"type": "string"},
	},
	"required": []string{"incident_types", "incident_description"},
}

const systemPrompt = "You triage insurance claim correspondence. Read the full conversation " +
	"and classify it into one or more of the fixed incident types, and write a short free-text " +
	"description of what happened."

// Run performs the Triager's single classification call and persists its
// result onto the claim. Any failure (LLM error, schema violation, or an
// empty/unknown result) is returned to the caller, which per spec §4.6
// leaves the stage at QUESTIONED so the next inbound message retries.
// masker may be nil; the conversation text is run through it before
// being debug-logged.
func Run(ctx context.Context, llm *llmclient.Client, st *store.Store, claimID string, masker *masking.Service) error {
	conv, err := st.Conversation(claimID)
	if err != nil {
		return fmt.Errorf("triage: load conversation: %w", err)
	}

	var sb strings.Builder
	if conv != nil {
		for _, e := range conv.Entries {
			fmt.Fprintf(&sb, "%s: %s\n", strings.ToUpper(string(e.Role)), e.Content)
		}
	}

	slog.Debug("triage: classifying conversation", "claim", claimID, "conversation", masker.Mask(sb.String()))

	result, err := llm.Respond(ctx, systemPrompt, []llmclient.ContentBlock{llmclient.RawTextBlock(sb.String())}, "claim_triage", triageSchema)
	if err != nil {
		return fmt.Errorf("triage: respond: %w", err)
	}

	rawTypes, _ := result["incident_types"].([]any)
	if len(rawTypes) == 0 {
		return fmt.Errorf("triage: result has no incident_types")
	}
	valid := map[string]bool{}
	for _, t := range incidentTypeEnum {
		valid[t] = true
	}

	var types []claim.IncidentType
	for _, rt := range rawTypes {
		s, ok := rt.(string)
		if !ok || !valid[s] {
			continue
		}
		types = append(types, claim.IncidentType(s))
	}
	if len(types) == 0 {
		return fmt.Errorf("triage: result contained no recognized incident types")
	}

	description, _ := result["incident_description"].(string)

	_, err = st.UpdateClaim(claimID, func(c *claim.Claim) error {
		c.IncidentTypes = types
		c.IncidentDescription = description
		return nil
	})
	if err != nil {
		return fmt.Errorf("triage: persist result: %w", err)
	}
	return nil
}
