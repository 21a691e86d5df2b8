// Package followup implements the Follow-up Aggregator (C9, spec §4.9):
// it takes a claim's queued {agent -> question} pairs, asks the LLM to
// fold them into one deduplicated, renumbered HTML email, sends it, and
// only then drains the queue.
//
// The "render one outbound notification from a batch of queued items,
// only commit once the send confirms" shape follows the mail send/retry
// contract this module already grounds in pkg/mail (itself grounded on
// other_examples/ab31aad0_ibauk-ebcfetch__mainloop.go.go).
package followup

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/claimflow/pkg/llmclient"
	"github.com/codeready-toolchain/claimflow/pkg/mail"
	"github.com/codeready-toolchain/claimflow/pkg/store"
)

var aggregateSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"subject": map[string]any{"type": "string"},
		"html":    map[string]any{"type": "string"},
	},
	"required": []string{"subject", "html"},
}

const systemPrompt = "You write follow-up emails for an insurance claim. Given a list of " +
	"open questions raised by different specialist reviewers, deduplicate near-identical " +
	"questions, renumber the result, and produce a single polite HTML email body asking the " +
	"claimant to answer them."

// Run sends the aggregated follow-up email for a claim, if its queue is
// non-empty, and drains the queue only on a confirmed send (spec §4.9).
// It reports whether an email was sent.
func Run(ctx context.Context, llm *llmclient.Client, st *store.Store, sender *mail.Sender, claimID, to string) (bool, error) {
	items, err := st.TakeFollowups(claimID)
	if err != nil {
		return false, fmt.Errorf("followup: load queue: %w", err)
	}
	if len(items) == 0 {
		return false, nil
	}

	var sb []llmclient.ContentBlock
	prompt := "Open questions:\n"
	for _, it := range items {
		prompt += fmt.Sprintf("- (%s) %s\n", it.Agent, it.Question)
	}
	sb = append(sb, llmclient.RawTextBlock(prompt))

	result, err := llm.Respond(ctx, systemPrompt, sb, "followup_email", aggregateSchema)
	if err != nil {
		return false, fmt.Errorf("followup: respond: %w", err)
	}

	subject, _ := result["subject"].(string)
	if subject == "" {
		subject = "Additional information needed for your claim"
	}
	html, _ := result["html"].(string)
	if html == "" {
		return false, fmt.Errorf("followup: empty html from aggregation")
	}

	sent, err := sender.Send(to, subject, html)
	if err != nil || !sent {
		// Leave the queue intact: the claim stays in AGENTS_RUNNING and the
		// next pass retries the send (spec §4.9).
		if err == nil {
			err = fmt.Errorf("followup: send reported failure")
		}
		return false, fmt.Errorf("followup: send: %w", err)
	}

	if err := st.DrainFollowups(claimID); err != nil {
		return false, fmt.Errorf("followup: drain queue after send: %w", err)
	}
	return true, nil
}
