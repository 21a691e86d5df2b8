package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/claimflow/pkg/claim"
	"github.com/codeready-toolchain/claimflow/pkg/registry"
	"github.com/codeready-toolchain/claimflow/pkg/store"
)

func newTestPoolDeps(t *testing.T) (*store.Store, *registry.Registry, string) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	reg := registry.New(registry.AgentIDs{
		"fire_assistant":  "asst_fire",
		"theft_assistant": "asst_theft",
	}, "", "", "")

	claimID := "claim-1"
	c := claim.New(claimID, "jane.doe@example.com", time.Now())
	require.NoError(t, st.SaveClaim(claimID, c))

	return st, reg, claimID
}

func TestRun_NoPendingPayloads(t *testing.T) {
	st, reg, claimID := newTestPoolDeps(t)

	processed, err := Run(context.Background(), st, reg, claimID)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestRun_ProcessesPendingPayload(t *testing.T) {
	st, reg, claimID := newTestPoolDeps(t)

	require.NoError(t, st.EnqueuePending(claimID, "fire_assistant", map[string]any{"cause": "electrical"}))

	processed, err := Run(context.Background(), st, reg, claimID)
	require.NoError(t, err)
	assert.True(t, processed)

	decisions, err := st.Decisions(claimID)
	require.NoError(t, err)
	require.Contains(t, decisions, "fire_assistant")

	reloaded, err := st.LoadClaim(claimID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsAgentComplete("fire_assistant"))

	pending, err := st.ListUnprocessedPending(claimID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRun_UnknownAgentLeavesPayloadPending(t *testing.T) {
	st, reg, claimID := newTestPoolDeps(t)

	require.NoError(t, st.EnqueuePending(claimID, "unknown_assistant", map[string]any{"a": 1}))

	processed, err := Run(context.Background(), st, reg, claimID)
	require.NoError(t, err)
	assert.True(t, processed, "Run reports it examined payloads even if none had an evaluator")

	pending, err := st.ListUnprocessedPending(claimID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].Processed)
}

func TestRun_MultiplePendingPayloads(t *testing.T) {
	st, reg, claimID := newTestPoolDeps(t)

	require.NoError(t, st.EnqueuePending(claimID, "fire_assistant", map[string]any{"cause": "electrical"}))
	require.NoError(t, st.EnqueuePending(claimID, "theft_assistant", map[string]any{"reported_to_police": true, "time_lag_hours": 1.0}))

	processed, err := Run(context.Background(), st, reg, claimID)
	require.NoError(t, err)
	assert.True(t, processed)

	decisions, err := st.Decisions(claimID)
	require.NoError(t, err)
	assert.Len(t, decisions, 2)
}
