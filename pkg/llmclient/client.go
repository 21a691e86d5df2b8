package llmclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var errEmptyHandle = errors.New("llmclient: empty thread handle")

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Backend is the low-level provider adapter. openaiBackend and
// anthropicBackend both implement it; Client is provider-agnostic.
type Backend interface {
	// ChatJSON performs the structured single-shot call of spec §6
	// ("respond(system, user_blocks, json_schema) -> object"), forcing the
	// model to emit output matching schema and returning the raw JSON object.
	ChatJSON(ctx context.Context, system string, blocks []ContentBlock, schemaName string, schema map[string]any) (json.RawMessage, error)

	// ChatTurn runs one turn of an agent conversation: given the full
	// message history and the agent's available tools, returns either
	// assistant text or one or more tool calls.
	ChatTurn(ctx context.Context, agentID string, msgs []Message, tools []ToolSchema) (text string, calls []ToolCall, err error)
}

// Client implements the LLM capability contract of spec §6 over a
// pluggable Backend (openai-go/v2 by default, anthropic-sdk-go as an
// alternate, selected by environment configuration).
type Client struct {
	backend Backend
}

// New builds a Client over the given backend.
func New(backend Backend) *Client {
	return &Client{backend: backend}
}

// Respond is the structured single-shot capability (spec §4.4 step 3,
// §4.6, §4.9: triage, attachment description, and follow-up aggregation
// all go through this one call shape).
func (c *Client) Respond(ctx context.Context, system string, blocks []ContentBlock, schemaName string, schema map[string]any) (map[string]any, error) {
	raw, err := c.backend.ChatJSON(ctx, system, blocks, schemaName, schema)
	if err != nil {
		return nil, fmt.Errorf("llmclient: respond: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("llmclient: schema violation: %w", err)
	}
	return out, nil
}

// CreateThread allocates a fresh, empty agent thread (spec §6 "create_thread()").
func (c *Client) CreateThread() *Thread {
	return &Thread{ID: uuid.NewString()}
}

// LoadThread rehydrates a thread from its persisted handle, or creates a
// fresh one if the handle is empty (spec §4.7 step 1: "look up or create").
func (c *Client) LoadThread(handle string) *Thread {
	if handle == "" {
		return c.CreateThread()
	}
	t, err := ThreadFromHandle(handle)
	if err != nil {
		return c.CreateThread()
	}
	return t
}

// PostUser appends a user turn to the thread (spec §6 "post_user(thread, text)").
func (c *Client) PostUser(thread *Thread, text string) {
	thread.Messages = append(thread.Messages, Message{Role: RoleUser, Content: text})
}

// PostSystem seeds a freshly created thread with the agent's system
// instructions. On a plain chat-completions backend there is no
// server-side assistant to carry per-agent instructions the way the
// original's Assistants API did, so the instructions travel as the
// thread's first message instead.
func (c *Client) PostSystem(thread *Thread, instructions string) {
	if instructions == "" {
		return
	}
	thread.Messages = append(thread.Messages, Message{Role: RoleSystem, Content: instructions})
}

// StartRun runs one turn for agentID against the thread's accumulated
// history and that agent's tool schema (spec §6 "start_run(thread,
// agent_id) -> run"). Because every backend here is a synchronous chat
// completion, the run is always already terminal by the time StartRun
// returns — Poll exists only to satisfy the §6 contract shape and is a
// no-op pass-through.
func (c *Client) StartRun(ctx context.Context, thread *Thread, agentID string, tools []ToolSchema) *Run {
	text, calls, err := c.backend.ChatTurn(ctx, agentID, thread.Messages, tools)
	if err != nil {
		return &Run{ID: uuid.NewString(), Status: RunFailed, Err: err}
	}

	run := &Run{ID: uuid.NewString()}
	if len(calls) > 0 {
		run.Status = RunRequiresAction
		run.ToolCalls = calls
		thread.Messages = append(thread.Messages, Message{Role: RoleAssistant, Content: text, ToolCalls: calls})
		return run
	}

	run.Status = RunCompleted
	run.Message = text
	thread.Messages = append(thread.Messages, Message{Role: RoleAssistant, Content: text})
	return run
}

// Poll returns the run unchanged — every run produced by StartRun is
// already terminal (spec §6 "poll(run)").
func (c *Client) Poll(run *Run) *Run {
	return run
}

// SubmitToolOutputs appends the stub tool-call replies to the thread so
// the run can close (spec §4.7 step 4, "submit a stub tool-call reply").
func (c *Client) SubmitToolOutputs(thread *Thread, calls []ToolCall, outputs map[string]string) {
	for _, call := range calls {
		out, ok := outputs[call.ID]
		if !ok {
			out = `{"status":"saved"}`
		}
		thread.Messages = append(thread.Messages, Message{Role: RoleTool, ToolID: call.ID, Content: out})
	}
}

// LatestMessage returns the last assistant message text in the thread
// (spec §6 "latest_message(thread)").
func (c *Client) LatestMessage(thread *Thread) string {
	for i := len(thread.Messages) - 1; i >= 0; i-- {
		if thread.Messages[i].Role == RoleAssistant {
			return thread.Messages[i].Content
		}
	}
	return ""
}
