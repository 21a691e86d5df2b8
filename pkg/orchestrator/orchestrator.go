// Package orchestrator implements the State Machine (C10, spec §4.10):
// the single entry point, Orchestrate, that advances one claim by one
// inbound message. It is the sole caller of every other domain
// component (C4-C9); no other package invokes another on its own.
//
// The dispatch-table-over-a-stage-enum shape is grounded on the
// teacher's own alertsession status machine (driven by
// pkg/queue/worker.go's pollAndProcess, which dispatches on
// alertsession.Status the same way this dispatches on claim.Stage), here
// rebuilt as a single synchronous call instead of a polling worker loop
// since every invocation here is already triggered by one inbound message.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/claimflow/pkg/agentrunner"
	"github.com/codeready-toolchain/claimflow/pkg/attachment"
	"github.com/codeready-toolchain/claimflow/pkg/claim"
	"github.com/codeready-toolchain/claimflow/pkg/clarifier"
	"github.com/codeready-toolchain/claimflow/pkg/evaluator"
	"github.com/codeready-toolchain/claimflow/pkg/followup"
	"github.com/codeready-toolchain/claimflow/pkg/llmclient"
	"github.com/codeready-toolchain/claimflow/pkg/mail"
	"github.com/codeready-toolchain/claimflow/pkg/masking"
	"github.com/codeready-toolchain/claimflow/pkg/registry"
	"github.com/codeready-toolchain/claimflow/pkg/store"
	"github.com/codeready-toolchain/claimflow/pkg/thread"
	"github.com/codeready-toolchain/claimflow/pkg/triage"
)

// Orchestrator wires every domain component behind the one entry point
// the rest of the system calls (spec §4.10 "orchestrate(claim_id, sender,
// subject, body, attachments)").
type Orchestrator struct {
	Store    *store.Store
	LLM      *llmclient.Client
	Sender   *mail.Sender
	Resolver *thread.Resolver
	Registry *registry.Registry
	Masker   *masking.Service // nil disables PII masking of debug logs
}

// New builds an Orchestrator from its collaborators. masker may be nil.
func New(st *store.Store, llm *llmclient.Client, sender *mail.Sender, resolver *thread.Resolver, reg *registry.Registry, masker *masking.Service) *Orchestrator {
	return &Orchestrator{Store: st, LLM: llm, Sender: sender, Resolver: resolver, Registry: reg, Masker: masker}
}

// Inbound is one inbound mail message handed to the orchestrator by C2/C3.
type Inbound struct {
	Sender      string
	Subject     string
	Body        string
	Attachments []attachment.Raw
}

// Orchestrate implements spec §4.10's full algorithm for one claim.
func (o *Orchestrator) Orchestrate(ctx context.Context, claimID string, in Inbound) error {
	log := slog.With("claim", claimID)
	log.Debug("orchestrator: inbound message", "subject", in.Subject, "body", o.Masker.Mask(in.Body))

	if err := o.ensureClaim(claimID, in.Sender, in.Subject); err != nil {
		return fmt.Errorf("orchestrator: ensure claim: %w", err)
	}

	c, err := o.Store.LoadClaim(claimID)
	if err != nil {
		return fmt.Errorf("orchestrator: load claim: %w", err)
	}
	if c == nil {
		return fmt.Errorf("orchestrator: claim %s missing after ensure", claimID)
	}

	// Step 2: REVIEW runs C8 first, before anything else.
	if c.Stage == claim.StageReview {
		if _, err := evaluator.Run(ctx, o.Store, o.Registry, claimID); err != nil {
			log.Error("orchestrator: decision review failed", "error", err)
		}
		o.transition(claimID, claim.StageReview, claim.StageAgentsRunning, log)
		c, err = o.Store.LoadClaim(claimID)
		if err != nil {
			return fmt.Errorf("orchestrator: reload after review: %w", err)
		}
	}

	// Step 3: append the user message; attachments run C4 first.
	if err := o.Store.AppendConversation(claimID, claim.ConversationEntry{
		Role:      claim.RoleUser,
		Content:   in.Body,
		Timestamp: time.Now(),
	}); err != nil {
		return fmt.Errorf("orchestrator: append conversation: %w", err)
	}

	if len(in.Attachments) > 0 {
		o.ingestAttachments(ctx, claimID, in.Attachments, log)
	}

	return o.dispatch(ctx, claimID, in.Sender, log)
}

// ensureClaim creates the claim record if it doesn't exist and persists
// the sender/subject fingerprint once, immutably (spec §4.10 step 1).
func (o *Orchestrator) ensureClaim(claimID, sender, subject string) error {
	existing, err := o.Store.LoadClaim(claimID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	c := claim.New(claimID, sender, time.Now())
	c.Subject = thread.NormalizeSubject(subject)
	c.SubjectFP = thread.Fingerprint(sender, c.Subject)
	return o.Store.SaveClaim(claimID, c)
}

// ingestAttachments runs admission then C4 extraction/description for
// attachments not already in the parsed-docs record (spec §4.4/§4.5).
func (o *Orchestrator) ingestAttachments(ctx context.Context, claimID string, raws []attachment.Raw, log *slog.Logger) {
	parsed, err := o.Store.ParsedDocs(claimID)
	if err != nil {
		log.Error("orchestrator: load parsed docs failed", "error", err)
		parsed = map[string]string{}
	}

	var fresh []attachment.Raw
	var names []string
	for _, a := range raws {
		if !attachment.IsAccepted(a.Filename, int64(len(a.Bytes)), attachment.MaxAttachmentSize) {
			log.Warn("orchestrator: attachment rejected by admission rules", "filename", a.Filename)
			continue
		}
		if err := o.Store.SaveAttachment(claimID, a.Filename, a.Bytes); err != nil {
			log.Error("orchestrator: save attachment failed", "filename", a.Filename, "error", err)
			continue
		}
		names = append(names, a.Filename)
		if _, already := parsed[a.Filename]; already {
			continue
		}
		fresh = append(fresh, a)
	}

	for _, a := range fresh {
		text := attachment.ExtractText(a.Filename, a.Bytes)
		if err := o.Store.RecordParsedDoc(claimID, a.Filename, text); err != nil {
			log.Error("orchestrator: record parsed doc failed", "filename", a.Filename, "error", err)
		}
	}

	if len(fresh) > 0 {
		descriptions := attachment.Describe(ctx, o.LLM, fresh, o.Masker)
		if err := o.Store.WriteAttachmentDescriptions(claimID, descriptions); err != nil {
			log.Error("orchestrator: write attachment descriptions failed", "error", err)
		}
	}

	if len(names) > 0 {
		if err := o.Store.AppendConversation(claimID, claim.ConversationEntry{
			Role:        claim.RoleUser,
			Content:     "(attachments received)",
			Timestamp:   time.Now(),
			Attachments: names,
		}); err != nil {
			log.Error("orchestrator: append attachment entry failed", "error", err)
		}
	}
}

// dispatch implements spec §4.10 step 4's stage table.
func (o *Orchestrator) dispatch(ctx context.Context, claimID, to string, log *slog.Logger) error {
	c, err := o.Store.LoadClaim(claimID)
	if err != nil {
		return fmt.Errorf("orchestrator: load claim for dispatch: %w", err)
	}

	switch c.Stage {
	case claim.StageNew:
		return o.handleNew(ctx, claimID, to, c, log)
	case claim.StageQuestioned:
		return o.handleQuestioned(ctx, claimID, to, log)
	case claim.StageAgentsRunning:
		return o.handleAgentsRunning(ctx, claimID, to, log)
	case claim.StageFollowupRequested:
		o.transition(claimID, claim.StageFollowupRequested, claim.StageAgentsRunning, log)
		return o.handleAgentsRunning(ctx, claimID, to, log)
	case claim.StageAgentsComplete:
		o.transition(claimID, claim.StageAgentsComplete, claim.StageComplete, log)
		return nil
	default:
		return nil
	}
}

func (o *Orchestrator) handleNew(ctx context.Context, claimID, to string, c *claim.Claim, log *slog.Logger) error {
	if !c.ClarifyingSent {
		if err := clarifier.Run(ctx, o.LLM, o.Store, o.Sender, claimID, to); err != nil {
			log.Error("orchestrator: clarifier failed", "error", err)
		}
		if _, err := o.Store.UpdateClaim(claimID, func(c *claim.Claim) error {
			c.ClarifyingSent = true
			return nil
		}); err != nil {
			log.Error("orchestrator: persist clarifying_sent failed", "error", err)
		}
	}
	o.transition(claimID, claim.StageNew, claim.StageQuestioned, log)
	return nil
}

func (o *Orchestrator) handleQuestioned(ctx context.Context, claimID, to string, log *slog.Logger) error {
	if err := triage.Run(ctx, o.LLM, o.Store, claimID, o.Masker); err != nil {
		log.Error("orchestrator: triage failed, staying at QUESTIONED", "error", err)
		return nil
	}
	o.transition(claimID, claim.StageQuestioned, claim.StageAgentsRunning, log)
	return o.handleAgentsRunning(ctx, claimID, to, log)
}

func (o *Orchestrator) handleAgentsRunning(ctx context.Context, claimID, to string, log *slog.Logger) error {
	c, err := o.Store.LoadClaim(claimID)
	if err != nil {
		return fmt.Errorf("orchestrator: load claim for agent fan-out: %w", err)
	}

	agents := o.Registry.AgentsForIncidents(c.IncidentTypes)
	outcomes, err := agentrunner.Run(ctx, o.Store, o.LLM, claimID, agents, o.Masker)
	if err != nil {
		log.Error("orchestrator: agent runner failed", "error", err)
	}

	needsReview := false
	for _, out := range outcomes {
		if out.RequiresReview {
			needsReview = true
		}
	}
	if needsReview {
		o.transition(claimID, claim.StageAgentsRunning, claim.StageReview, log)
		if _, err := evaluator.Run(ctx, o.Store, o.Registry, claimID); err != nil {
			log.Error("orchestrator: decision review failed", "error", err)
		}
		o.transition(claimID, claim.StageReview, claim.StageAgentsRunning, log)
	}

	sent, err := followup.Run(ctx, o.LLM, o.Store, o.Sender, claimID, to)
	if err != nil {
		log.Error("orchestrator: follow-up aggregation failed, staying at AGENTS_RUNNING", "error", err)
		return nil
	}
	if sent {
		o.transition(claimID, claim.StageAgentsRunning, claim.StageFollowupRequested, log)
		return nil
	}

	c, err = o.Store.LoadClaim(claimID)
	if err != nil {
		return fmt.Errorf("orchestrator: reload claim after agents running: %w", err)
	}
	if allComplete(c, agents) {
		o.transition(claimID, claim.StageAgentsRunning, claim.StageAgentsComplete, log)
	}
	return nil
}

func allComplete(c *claim.Claim, agents []registry.AgentSpec) bool {
	if len(agents) == 0 {
		return false
	}
	for _, a := range agents {
		if !c.IsAgentComplete(a.Name) {
			return false
		}
	}
	return true
}

// transition applies a stage move if the table allows it, logging and
// no-op'ing otherwise (spec §4.10: "Any transition rejected by the table
// is a no-op (and logged)").
func (o *Orchestrator) transition(claimID string, from, to claim.Stage, log *slog.Logger) {
	if !claim.CanTransition(from, to) {
		log.Warn("orchestrator: rejected stage transition", "from", from, "to", to)
		return
	}
	if _, err := o.Store.UpdateClaim(claimID, func(c *claim.Claim) error {
		if c.Stage != from {
			return fmt.Errorf("stage changed concurrently: expected %s, found %s", from, c.Stage)
		}
		c.Stage = to
		return nil
	}); err != nil {
		log.Warn("orchestrator: stage transition failed", "from", from, "to", to, "error", err)
	}
}
