package llmclient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	jsonResult json.RawMessage
	jsonErr    error
	turnText   string
	turnCalls  []ToolCall
	turnErr    error
}

func (f *fakeBackend) ChatJSON(ctx context.Context, system string, blocks []ContentBlock, schemaName string, schema map[string]any) (json.RawMessage, error) {
	return f.jsonResult, f.jsonErr
}

func (f *fakeBackend) ChatTurn(ctx context.Context, agentID string, msgs []Message, tools []ToolSchema) (string, []ToolCall, error) {
	return f.turnText, f.turnCalls, f.turnErr
}

func TestRespondParsesSchemaResult(t *testing.T) {
	backend := &fakeBackend{jsonResult: json.RawMessage(`{"incident_types":["theft"],"incident_description":"bike stolen"}`)}
	c := New(backend)

	out, err := c.Respond(context.Background(), "triage", []ContentBlock{TextBlock("body text")}, "triage_result", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "bike stolen", out["incident_description"])
}

func TestRespondSchemaViolationSurfaces(t *testing.T) {
	backend := &fakeBackend{jsonResult: json.RawMessage(`not json`)}
	c := New(backend)

	_, err := c.Respond(context.Background(), "triage", nil, "triage_result", map[string]any{})
	assert.Error(t, err)
}

func TestThreadRoundTripsThroughHandle(t *testing.T) {
	backend := &fakeBackend{turnText: "hello"}
	c := New(backend)

	thread := c.CreateThread()
	c.PostUser(thread, "hi there")
	run := c.StartRun(context.Background(), thread, "agent-1", nil)
	require.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, "hello", c.LatestMessage(thread))

	reloaded := c.LoadThread(thread.Handle())
	assert.Equal(t, thread.ID, reloaded.ID)
	assert.Len(t, reloaded.Messages, 2)
}

func TestStartRunRequiresActionOnToolCalls(t *testing.T) {
	backend := &fakeBackend{turnCalls: []ToolCall{{ID: "call-1", Name: "theft_tool", Args: json.RawMessage(`{}`)}}}
	c := New(backend)

	thread := c.CreateThread()
	run := c.StartRun(context.Background(), thread, "theft_assistant", []ToolSchema{{Name: "theft_tool"}})
	require.Equal(t, RunRequiresAction, run.Status)
	require.Len(t, run.ToolCalls, 1)

	c.SubmitToolOutputs(thread, run.ToolCalls, nil)
	last := thread.Messages[len(thread.Messages)-1]
	assert.Equal(t, RoleTool, last.Role)
	assert.Equal(t, `{"status":"saved"}`, last.Content)
}

func TestLoadThreadWithEmptyHandleCreatesFresh(t *testing.T) {
	c := New(&fakeBackend{})
	thread := c.LoadThread("")
	assert.NotEmpty(t, thread.ID)
	assert.Empty(t, thread.Messages)
}
