package evaluator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/claimflow/pkg/claim"
	"github.com/codeready-toolchain/claimflow/pkg/registry"
	"github.com/codeready-toolchain/claimflow/pkg/store"
)

// MaxConcurrentEvaluations bounds the Decision Reviewer's worker pool
// (spec §4.8: "at most 5 pending payloads evaluated concurrently").
const MaxConcurrentEvaluations = 5

// Run is the Decision Reviewer (C8): it evaluates every unprocessed
// pending payload queued for a claim, bounded to MaxConcurrentEvaluations
// concurrent workers. It reports true whenever the claim had unprocessed
// pending payloads to examine, including when a payload is left pending
// because no evaluator is registered for its agent; it reports false only
// when nothing was pending. The orchestrator does not consult this value.
func Run(ctx context.Context, st *store.Store, reg *registry.Registry, claimID string) (processedAny bool, err error) {
	pending, err := st.ListUnprocessedPending(claimID)
	if err != nil {
		return false, fmt.Errorf("evaluator: list pending: %w", err)
	}
	if len(pending) == 0 {
		return false, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(MaxConcurrentEvaluations)

	for _, payload := range pending {
		p := payload
		eg.Go(func() error {
			select {
			case <-egCtx.Done():
				return egCtx.Err()
			default:
			}
			return evaluateOne(st, reg, claimID, p)
		})
	}

	if waitErr := eg.Wait(); waitErr != nil {
		return true, waitErr
	}
	return true, nil
}

// evaluateOne implements spec §4.8's per-payload algorithm: look up the
// agent's evaluator, run it, record the decision, mark the agent complete,
// and mark the payload consumed. An unknown agent name is logged and the
// payload left unprocessed rather than silently dropped (spec §4.8
// "missing evaluator ⇒ payload logged, not consumed").
func evaluateOne(st *store.Store, reg *registry.Registry, claimID string, p claim.PendingPayload) error {
	fn, ok := reg.Evaluator(p.Agent)
	if !ok {
		slog.Warn("evaluator: no evaluator registered for agent, leaving payload pending",
			"claim", claimID, "agent", p.Agent)
		return nil
	}

	decision, err := fn(p.Payload)
	if err != nil {
		slog.Error("evaluator: evaluation failed",
			"claim", claimID, "agent", p.Agent, "error", err)
		return fmt.Errorf("evaluator: agent %s: %w", p.Agent, err)
	}

	if err := st.PutDecision(claimID, p.Agent, decision); err != nil {
		return fmt.Errorf("evaluator: put decision for %s: %w", p.Agent, err)
	}
	if err := st.MarkAgentComplete(claimID, p.Agent); err != nil {
		return fmt.Errorf("evaluator: mark agent complete for %s: %w", p.Agent, err)
	}
	if err := st.MarkPendingProcessed(claimID, p.Agent); err != nil {
		return fmt.Errorf("evaluator: mark pending processed for %s: %w", p.Agent, err)
	}
	return nil
}
