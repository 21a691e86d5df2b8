// Package clarifier implements the Clarifier (C5, spec §4.10 NEW
// stage): on a claim's first contact it generates and
// sends exactly one open-ended clarifying question to the claimant.
//
// Shape follows pkg/triage and pkg/followup: one structured single-shot
// LLM call producing a subject/body pair, then one send through
// pkg/mail.Sender — the same compose-then-send idiom this module already
// grounds on other_examples/ab31aad0_ibauk-ebcfetch__mainloop.go.go.
package clarifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/claimflow/pkg/llmclient"
	"github.com/codeready-toolchain/claimflow/pkg/mail"
	"github.com/codeready-toolchain/claimflow/pkg/store"
)

var clarifySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"subject": map[string]any{"type": "string"},
		"html":    map[string]any{"type": "string"},
	},
	"required": []string{"subject", "html"},
}

const systemPrompt = "You write the first reply to a new insurance claim email. Read the " +
	"claimant's message and write one short, open-ended clarifying question that would help " +
	"a specialist reviewer understand what happened. The email subject must start with " +
	"\"Quick clarification\"."

// Run generates and sends the one-time clarifying email for a claim
// (spec §4.10 NEW stage, S1). It does not set clarifying_sent — the
// caller (orchestrator) owns that flag alongside the stage transition.
func Run(ctx context.Context, llm *llmclient.Client, st *store.Store, sender *mail.Sender, claimID, to string) error {
	conv, err := st.Conversation(claimID)
	if err != nil {
		return fmt.Errorf("clarifier: load conversation: %w", err)
	}

	var body string
	if conv != nil && len(conv.Entries) > 0 {
		body = conv.Entries[len(conv.Entries)-1].Content
	}

	result, err := llm.Respond(ctx, systemPrompt, []llmclient.ContentBlock{llmclient.RawTextBlock(body)}, "clarifying_question", clarifySchema)
	if err != nil {
		return fmt.Errorf("clarifier: respond: %w", err)
	}

	subject, _ := result["subject"].(string)
	if subject == "" {
		subject = "Quick clarification needed on your claim"
	} else if !strings.HasPrefix(strings.ToLower(subject), "quick clarification") {
		// The system prompt asks the model for this prefix but a schema
		// can't enforce it; guarantee it here rather than trust compliance.
		subject = "Quick clarification: " + subject
	}
	html, _ := result["html"].(string)
	if html == "" {
		return fmt.Errorf("clarifier: empty html from generation")
	}

	sent, err := sender.Send(to, subject, html)
	if err != nil {
		return fmt.Errorf("clarifier: send: %w", err)
	}
	if !sent {
		return fmt.Errorf("clarifier: send reported failure")
	}
	return nil
}
