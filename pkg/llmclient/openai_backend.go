package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// openaiBackend adapts Client to github.com/openai/openai-go/v2, grounded
// on the teacher pack's internal/llm/openai adapter (AdaptMessages,
// AdaptSchemas, and the Chat Completions call in client.go).
type openaiBackend struct {
	sdk   sdk.Client
	model string
}

// NewOpenAIBackend builds a Backend over the OpenAI Chat Completions API.
func NewOpenAIBackend(apiKey, baseURL, model string) Backend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openaiBackend{sdk: sdk.NewClient(opts...), model: model}
}

// adaptMessages converts portable Messages into SDK message params,
// mirroring manifold's AdaptMessages (internal/llm/openai/schema.go).
func adaptMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, sdk.UserMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, sdk.AssistantMessage(m.Content))
				continue
			}
			var asst sdk.ChatCompletionAssistantMessageParam
			asst.Content.OfString = sdk.String(m.Content)
			for _, tc := range m.ToolCalls {
				fn := sdk.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Arguments: string(tc.Args),
						Name:      tc.Name,
					},
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{OfFunction: &fn})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case RoleTool:
			out = append(out, sdk.ToolMessage(m.Content, m.ToolID))
		}
	}
	return out
}

// adaptTools converts portable ToolSchemas into SDK tool params
// (mirrors manifold's AdaptSchemas).
func adaptTools(tools []ToolSchema) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		def := sdk.FunctionDefinitionParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			Parameters:  t.Parameters,
		}
		out = append(out, sdk.ChatCompletionFunctionTool(def))
	}
	return out
}

// contentPartsFromBlocks turns attachment-description content blocks
// (spec §4.4 step 2) into a single multi-part user message, mirroring
// manifold's ChatWithImageAttachments text+image part assembly.
func contentPartsFromBlocks(blocks []ContentBlock) []sdk.ChatCompletionContentPartUnionParam {
	parts := make([]sdk.ChatCompletionContentPartUnionParam, 0, len(blocks))
	for _, b := range blocks {
		if b.MimeType != "" {
			dataURL := "data:" + b.MimeType + ";base64," + b.ImageBase64
			parts = append(parts, sdk.ChatCompletionContentPartUnionParam{
				OfImageURL: &sdk.ChatCompletionContentPartImageParam{
					ImageURL: sdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
				},
			})
			continue
		}
		parts = append(parts, sdk.ChatCompletionContentPartUnionParam{
			OfText: &sdk.ChatCompletionContentPartTextParam{Text: b.Text},
		})
	}
	return parts
}

const structuredToolName = "emit_result"

// ChatJSON forces a single-function tool call shaped by schema and
// returns its arguments verbatim as the structured result. Chat
// Completions has no first-class "return JSON matching this schema"
// instruction on every self-hosted-compatible backend, so — like the
// teacher's own tool-based structured extraction paths — a forced
// function call carries the schema instead of a response_format.
func (b *openaiBackend) ChatJSON(ctx context.Context, system string, blocks []ContentBlock, schemaName string, schema map[string]any) (json.RawMessage, error) {
	userParts := contentPartsFromBlocks(blocks)
	userMsg := sdk.ChatCompletionUserMessageParam{
		Content: sdk.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: userParts},
	}

	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(b.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(system),
			{OfUser: &userMsg},
		},
		Tools: []sdk.ChatCompletionToolUnionParam{
			sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
				Name:        structuredToolName,
				Description: sdk.String("Emit the final structured " + schemaName + " result."),
				Parameters:  schema,
			}),
		},
		ToolChoice: sdk.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &sdk.ChatCompletionNamedToolChoiceParam{
				Type:     "function",
				Function: sdk.ChatCompletionNamedToolChoiceFunctionParam{Name: structuredToolName},
			},
		},
	}

	comp, err := b.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(comp.Choices) == 0 || len(comp.Choices[0].Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("openai: model did not return %s", structuredToolName)
	}

	for _, tc := range comp.Choices[0].Message.ToolCalls {
		switch v := tc.AsAny().(type) {
		case sdk.ChatCompletionMessageFunctionToolCall:
			return json.RawMessage(v.Function.Arguments), nil
		}
	}
	return nil, fmt.Errorf("openai: no function tool call in response")
}

// ChatTurn runs one Chat Completions turn with the agent's own tool set
// available (spec §4.7). agentID only labels errors: every agent uses the
// backend's configured model, and agents are told apart by the system
// message that the agent runner posts as msgs[0] when it creates the thread.
func (b *openaiBackend) ChatTurn(ctx context.Context, agentID string, msgs []Message, tools []ToolSchema) (string, []ToolCall, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(b.model),
		Messages: adaptMessages(msgs),
	}
	if len(tools) > 0 {
		params.Tools = adaptTools(tools)
	}

	comp, err := b.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", nil, fmt.Errorf("openai chat completion (agent %s): %w", agentID, err)
	}
	if len(comp.Choices) == 0 {
		return "", nil, fmt.Errorf("openai: empty choices for agent %s", agentID)
	}

	msg := comp.Choices[0].Message
	var calls []ToolCall
	for _, tc := range msg.ToolCalls {
		switch v := tc.AsAny().(type) {
		case sdk.ChatCompletionMessageFunctionToolCall:
			calls = append(calls, ToolCall{ID: v.ID, Name: v.Function.Name, Args: json.RawMessage(v.Function.Arguments)})
		}
	}
	return msg.Content, calls, nil
}
