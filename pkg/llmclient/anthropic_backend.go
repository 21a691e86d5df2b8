package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicBackend adapts Client to github.com/anthropics/anthropic-sdk-go,
// grounded on the teacher pack's internal/llm/anthropic adapter
// (adaptMessages/adaptTools/messageFromResponse in client.go) — the
// second pluggable LLM backend per SPEC_FULL's DOMAIN STACK.
type anthropicBackend struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicBackend builds a Backend over the Anthropic Messages API.
func NewAnthropicBackend(apiKey, baseURL, model string) Backend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicBackend{sdk: anthropic.NewClient(opts...), model: model, maxTokens: 1024}
}

func anthropicAdaptMessages(msgs []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	toolResultCount := 0

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case RoleUser:
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for i, tc := range m.ToolCalls {
				id := tc.ID
				if id == "" {
					id = fmt.Sprintf("call-%d", i+1)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(id, decodeToolArgs(tc.Args), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case RoleTool:
			id := m.ToolID
			if id == "" {
				toolResultCount++
				id = fmt.Sprintf("tool-result-%d", toolResultCount)
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)))
		}
	}
	return system, out
}

func decodeToolArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func anthropicAdaptTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		extras := map[string]any{}
		for k, v := range t.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			schema.Properties = props
			delete(extras, "properties")
		}
		if req, ok := extras["required"].([]string); ok {
			schema.Required = req
			delete(extras, "required")
		}
		param := anthropic.ToolParam{Name: t.Name, InputSchema: schema}
		if t.Description != "" {
			param.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func messageFromResponse(resp *anthropic.Message) (string, []ToolCall) {
	var text string
	var calls []ToolCall
	for i, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += v.Text
		case anthropic.ToolUseBlock:
			id := v.ID
			if id == "" {
				id = fmt.Sprintf("call-%d", i+1)
			}
			args, _ := json.Marshal(v.Input)
			calls = append(calls, ToolCall{ID: id, Name: v.Name, Args: args})
		}
	}
	return text, calls
}

// ChatJSON emulates the structured single-shot call with a forced
// single-tool response, mirroring the function-forcing approach used for
// the OpenAI backend — Anthropic's Messages API has no bare
// response_format, so a single required tool carries the schema.
func (b *anthropicBackend) ChatJSON(ctx context.Context, system string, blocks []ContentBlock, schemaName string, schema map[string]any) (json.RawMessage, error) {
	var contentBlocks []anthropic.ContentBlockParamUnion
	for _, blk := range blocks {
		if blk.MimeType != "" {
			contentBlocks = append(contentBlocks, anthropic.NewImageBlockBase64(blk.MimeType, blk.ImageBase64))
			continue
		}
		contentBlocks = append(contentBlocks, anthropic.NewTextBlock(blk.Text))
	}

	toolSchema := anthropic.ToolInputSchemaParam{}
	extras := map[string]any{}
	for k, v := range schema {
		extras[k] = v
	}
	if props, ok := extras["properties"]; ok {
		toolSchema.Properties = props
		delete(extras, "properties")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: b.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(contentBlocks...)},
		Tools: []anthropic.ToolUnionParam{{OfTool: &anthropic.ToolParam{
			Name:        structuredToolName,
			Description: anthropic.String("Emit the final structured " + schemaName + " result."),
			InputSchema: toolSchema,
		}}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: structuredToolName},
		},
	}

	resp, err := b.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic message: %w", err)
	}
	for _, block := range resp.Content {
		if v, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			args, marshalErr := json.Marshal(v.Input)
			if marshalErr != nil {
				return nil, fmt.Errorf("anthropic: marshaling tool input: %w", marshalErr)
			}
			return args, nil
		}
	}
	return nil, fmt.Errorf("anthropic: no tool_use block in response")
}

// ChatTurn runs one Messages API turn with the agent's tool set available.
func (b *anthropicBackend) ChatTurn(ctx context.Context, agentID string, msgs []Message, tools []ToolSchema) (string, []ToolCall, error) {
	system, converted := anthropicAdaptMessages(msgs)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: b.maxTokens,
		System:    system,
		Messages:  converted,
		Tools:     anthropicAdaptTools(tools),
	}

	resp, err := b.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", nil, fmt.Errorf("anthropic message (agent %s): %w", agentID, err)
	}
	text, calls := messageFromResponse(resp)
	return text, calls, nil
}
