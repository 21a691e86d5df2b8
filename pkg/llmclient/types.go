// Package llmclient implements the LLM capability of spec §6: a
// structured single-shot call and a per-agent conversation ("thread")
// with tool-call polling.
//
// The message/tool-call shape is grounded on the teacher pack's
// intelligencedev-manifold internal/llm package (Message, ToolCall,
// ToolSchema in internal/llm/provider.go) and its openai adapter
// (internal/llm/openai/{client,schema}.go), which convert that portable
// shape to github.com/openai/openai-go/v2 params. Unlike manifold this
// package has no streaming, image-generation, or Gemini-raw-HTTP path —
// SPEC_FULL only needs structured single-shot and thread turn-taking.
package llmclient

import "encoding/json"

// Role mirrors the chat roles manifold's llm.Message carries.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single function-call request from the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolSchema declares one callable function available to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Message is one turn in a conversation.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolID    string     `json:"tool_id,omitempty"` // set on RoleTool messages
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ContentBlock is one part of a structured single-shot user turn (spec
// §4.4 step 2: a text block per extracted document, an image block per
// photo or rendered page).
type ContentBlock struct {
	Text        string // set on a text block (TextBlock, RawTextBlock)
	ImageBase64 string // set on an image block (ImageBlock)
	MimeType    string // e.g. "image/png"; set on an image block
}

// TextBlock builds a text content block, truncating per spec §4.4 step 2
// (1,000 chars per block). This truncation is specific to per-attachment
// extraction blocks — callers assembling a whole conversation or a batch
// of follow-up questions into one prompt want RawTextBlock instead.
func TextBlock(text string) ContentBlock {
	const maxLen = 1000
	if r := []rune(text); len(r) > maxLen {
		text = string(r[:maxLen])
	}
	return ContentBlock{Text: text}
}

// RawTextBlock builds a text content block with no length cap, for
// aggregate prompts (a full conversation history, a batch of queued
// follow-up questions) that spec §4.4's per-attachment 1,000-char rule
// was never meant to apply to.
func RawTextBlock(text string) ContentBlock {
	return ContentBlock{Text: text}
}

// ImageBlock builds an image content block from raw bytes.
func ImageBlock(mimeType string, data []byte) ContentBlock {
	return ContentBlock{MimeType: mimeType, ImageBase64: b64(data)}
}

// RunStatus is the terminal state of an agent-thread run (spec §6 "poll(run)").
type RunStatus string

const (
	RunCompleted      RunStatus = "completed"
	RunRequiresAction RunStatus = "requires_action"
	RunFailed         RunStatus = "failed"
)

// Run is the result of starting (and, since every backend here is a
// synchronous chat-completion call, immediately finishing) one agent turn.
type Run struct {
	ID        string
	Status    RunStatus
	ToolCalls []ToolCall // set when Status == RunRequiresAction
	Message   string     // set when Status == RunCompleted: the last assistant text
	Err       error      // set when Status == RunFailed
}

// Thread is the persisted handle for one agent's conversation (spec §4.7
// step 1, "agent_threads" map). There is no server-side thread object on
// a plain chat-completions backend, so the handle a claim stores is this
// struct's own JSON encoding — the thread_id in spec terms is Thread.ID,
// but the full transcript travels with it since nothing else holds it.
type Thread struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// Handle serializes the thread for storage in claim.AgentThreads.
func (t *Thread) Handle() string {
	b, err := json.Marshal(t)
	if err != nil {
		return ""
	}
	return string(b)
}

// ThreadFromHandle deserializes a stored handle back into a Thread.
func ThreadFromHandle(handle string) (*Thread, error) {
	var t Thread
	if handle == "" {
		return nil, errEmptyHandle
	}
	if err := json.Unmarshal([]byte(handle), &t); err != nil {
		return nil, err
	}
	return &t, nil
}
