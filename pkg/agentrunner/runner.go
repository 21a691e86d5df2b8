// Package agentrunner implements the Agent Runner (C7, spec §4.7): for
// each enlisted, not-yet-complete agent on a claim, it drives one turn of
// that agent's LLM thread and reacts to whatever the run produces.
//
// The bounded fan-out is grounded on the same errgroup idiom as
// pkg/evaluator's Decision Reviewer pool (itself grounded on
// kadirpekel-hector/pkg/agent/workflowagent/parallel.go); the per-agent
// step body — claim the agent, run it, decide what the result means,
// record the outcome — mirrors the claim/execute/record shape of the
// teacher's pkg/queue/worker.go Worker.pollAndProcess, adapted from "claim
// a pending DB session" to "run one enlisted agent"; no claim mutex is
// held across a run, each store call takes the claim's mutex itself.
package agentrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/claimflow/pkg/llmclient"
	"github.com/codeready-toolchain/claimflow/pkg/masking"
	"github.com/codeready-toolchain/claimflow/pkg/registry"
	"github.com/codeready-toolchain/claimflow/pkg/store"
)

// MaxConcurrentAgents bounds the Agent Runner's worker pool (spec §4.7:
// "bounded worker pool (up to 5)").
const MaxConcurrentAgents = 5

// RunTimeout is the default per-agent LLM poll deadline (spec §5
// "Cancellation and timeouts": "default 120 s"). A timeout is a non-fatal
// failure: the claim is left in its current stage and the next message retries.
const RunTimeout = 120 * time.Second

// Outcome is what one agent's run produced, for the orchestrator to act on.
type Outcome struct {
	Agent         string
	RequiresReview bool // a tool call was persisted to pending; claim should move to REVIEW
	Failed        bool
}

// Run drives one turn for every agent in agents that the claim has not
// already completed, bounded to MaxConcurrentAgents concurrent workers.
// It returns the outcomes for whichever agents actually ran. masker may
// be nil; it is applied to any per-agent context or response text before
// that text reaches a debug log.
func Run(ctx context.Context, st *store.Store, llm *llmclient.Client, claimID string, agents []registry.AgentSpec, masker *masking.Service) ([]Outcome, error) {
	c, err := st.LoadClaim(claimID)
	if err != nil {
		return nil, fmt.Errorf("agentrunner: load claim: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("agentrunner: claim %s not found", claimID)
	}

	var pending []registry.AgentSpec
	for _, a := range agents {
		if !c.IsAgentComplete(a.Name) {
			pending = append(pending, a)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(MaxConcurrentAgents)

	outcomes := make([]Outcome, len(pending))
	for i, a := range pending {
		i, a := i, a
		eg.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("agentrunner: agent worker panicked, isolating", "claim", claimID, "agent", a.Name, "panic", r)
					outcomes[i] = Outcome{Agent: a.Name, Failed: true}
				}
			}()
			runCtx, cancel := context.WithTimeout(egCtx, RunTimeout)
			defer cancel()
			outcomes[i] = runOne(runCtx, st, llm, claimID, a, masker)
			return nil
		})
	}
	_ = eg.Wait() // per-agent failures are recorded on Outcome, not propagated; a failed worker never aborts siblings (spec §5)

	return outcomes, nil
}

// runOne implements spec §4.7 steps 1-4 for a single agent.
func runOne(ctx context.Context, st *store.Store, llm *llmclient.Client, claimID string, agent registry.AgentSpec, masker *masking.Service) Outcome {
	log := slog.With("claim", claimID, "agent", agent.Name)

	c, err := st.LoadClaim(claimID)
	if err != nil {
		log.Error("agentrunner: reload claim failed", "error", err)
		return Outcome{Agent: agent.Name, Failed: true}
	}

	// Step 1: look up or create the thread, persisting immediately on create.
	handle := c.AgentThreads[agent.Name]
	thread := llm.LoadThread(handle)
	if handle == "" {
		llm.PostSystem(thread, agent.Instructions)
		if err := st.SetAgentThread(claimID, agent.Name, thread.Handle()); err != nil {
			log.Error("agentrunner: persist new thread failed", "error", err)
			return Outcome{Agent: agent.Name, Failed: true}
		}
	}

	// Step 2: build the context message (conversation history + attachments).
	message, err := buildContextMessage(st, claimID)
	if err != nil {
		log.Error("agentrunner: build context message failed", "error", err)
		return Outcome{Agent: agent.Name, Failed: true}
	}
	log.Debug("agentrunner: posting context message", "message", masker.Mask(message))

	// Step 3: append and start the run. The agent's own tool schema must be
	// declared here on every call — unlike the Assistants API this rebases
	// onto, a Chat Completion with no tools attached can never return a
	// tool call, so RunRequiresAction (step 4 below) would be unreachable
	// without it.
	llm.PostUser(thread, message)
	run := llm.StartRun(ctx, thread, agent.LLMAgentID, agent.Tools)
	run = llm.Poll(run)

	if run.Status == llmclient.RunFailed {
		log.Error("agentrunner: run failed", "error", run.Err)
		return Outcome{Agent: agent.Name, Failed: true}
	}

	if err := st.SetAgentThread(claimID, agent.Name, thread.Handle()); err != nil {
		log.Error("agentrunner: persist updated thread failed", "error", err)
		return Outcome{Agent: agent.Name, Failed: true}
	}

	switch run.Status {
	case llmclient.RunRequiresAction:
		return handleRequiresAction(st, llm, claimID, agent, thread, run, log)
	case llmclient.RunCompleted:
		log.Debug("agentrunner: run completed", "message", masker.Mask(run.Message))
		return handleCompleted(st, claimID, agent, run.Message, log)
	default:
		log.Warn("agentrunner: unexpected run status", "status", run.Status)
		return Outcome{Agent: agent.Name, Failed: true}
	}
}

// handleRequiresAction persists each tool call as a pending payload, submits
// stub replies so the run can close, and signals REVIEW (spec §4.7 step 4
// "Requires tool call"). The agent is deliberately not marked complete here.
func handleRequiresAction(st *store.Store, llm *llmclient.Client, claimID string, agent registry.AgentSpec, thread *llmclient.Thread, run *llmclient.Run, log *slog.Logger) Outcome {
	outputs := make(map[string]string, len(run.ToolCalls))
	for _, call := range run.ToolCalls {
		var payload map[string]any
		if len(call.Args) > 0 {
			if err := json.Unmarshal(call.Args, &payload); err != nil {
				log.Error("agentrunner: tool call args not an object, recording raw", "error", err, "tool_call", call.ID)
				payload = map[string]any{"raw": string(call.Args)}
			}
		}
		if err := st.EnqueuePending(claimID, agent.Name, payload); err != nil {
			log.Error("agentrunner: enqueue pending payload failed", "error", err, "tool_call", call.ID)
			return Outcome{Agent: agent.Name, Failed: true}
		}
		outputs[call.ID] = `{"status":"saved"}`
	}

	llm.SubmitToolOutputs(thread, run.ToolCalls, outputs)
	if err := st.SetAgentThread(claimID, agent.Name, thread.Handle()); err != nil {
		log.Error("agentrunner: persist thread after tool outputs failed", "error", err)
		return Outcome{Agent: agent.Name, Failed: true}
	}

	return Outcome{Agent: agent.Name, RequiresReview: true}
}

// handleCompleted records a structured JSON finding as an agent message, or
// treats non-JSON text as an open question for the follow-up queue (spec
// §4.7 step 4 "Completed with text").
func handleCompleted(st *store.Store, claimID string, agent registry.AgentSpec, text string, log *slog.Logger) Outcome {
	trimmed := strings.TrimSpace(text)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		if err := st.RecordAgentMessage(claimID, agent.Name, trimmed); err != nil {
			log.Error("agentrunner: record agent message failed", "error", err)
			return Outcome{Agent: agent.Name, Failed: true}
		}
		return Outcome{Agent: agent.Name}
	}

	if trimmed != "" {
		if err := st.AppendFollowup(claimID, agent.Name, trimmed); err != nil {
			log.Error("agentrunner: append follow-up failed", "error", err)
			return Outcome{Agent: agent.Name, Failed: true}
		}
	}
	return Outcome{Agent: agent.Name}
}

// buildContextMessage concatenates the conversation history as "ROLE:
// content" lines followed by an ATTACHMENTS section (spec §4.7 step 2).
func buildContextMessage(st *store.Store, claimID string) (string, error) {
	conv, err := st.Conversation(claimID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if conv != nil {
		for _, e := range conv.Entries {
			fmt.Fprintf(&sb, "%s: %s\n", strings.ToUpper(string(e.Role)), e.Content)
		}
	}

	sb.WriteString("ATTACHMENTS:\n")
	if conv != nil && len(conv.AttachmentDescriptions) > 0 {
		for name, desc := range conv.AttachmentDescriptions {
			fmt.Fprintf(&sb, "- %s: %s\n", name, desc)
		}
	} else {
		sb.WriteString("(none)\n")
	}

	return sb.String(), nil
}
