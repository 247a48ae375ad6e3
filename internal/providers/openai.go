package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
)

// OpenAIClient implements engine.LLMClient on the chat completions API. It
// also serves OpenAI-compatible endpoints through baseURL.
type OpenAIClient struct {
	client  *openai.Client
	baseURL string
}

// NewOpenAIClient creates a new OpenAI client for the engine.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config), baseURL: baseURL}
}

// Chat implements engine.LLMClient.
func (c *OpenAIClient) Chat(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	tools := make([]openai.Tool, 0, len(toolSchemas))
	for _, ts := range toolSchemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return engine.LLMResponse{}, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  schemaObj,
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return engine.LLMResponse{}, engine.WrapLLMError(err, extractHTTPStatus(err))
	}
	if len(resp.Choices) == 0 {
		return engine.LLMResponse{}, engine.WrapLLMError(errors.New("empty response from model: no choices"), 0)
	}

	choice := resp.Choices[0]
	var toolCalls []engine.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		call := engine.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: decodeArgs([]byte(tc.Function.Arguments))}
		if tc.Function.Arguments != "" && !json.Valid([]byte(tc.Function.Arguments)) {
			call.Error = "malformed tool arguments: " + tc.Function.Arguments
		}
		toolCalls = append(toolCalls, call)
	}

	return engine.LLMResponse{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: choice.Message.Content, ToolCalls: toolCalls},
		ToolCalls: toolCalls,
		Usage: engine.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		FinishReason: openAIFinishReason(string(choice.FinishReason), len(toolCalls)),
	}, nil
}

// toOpenAIMessages converts engine messages. The system prompt is hoisted to
// the front and orphaned tool results are dropped.
func toOpenAIMessages(messages []engine.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	var system string
	var prevHadToolCalls bool

	for _, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			prevHadToolCalls = false
		case engine.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
			prevHadToolCalls = false
		case engine.RoleAssistant:
			// The SDK serialises "" as null, which some endpoints reject.
			content := msg.Content
			if content == "" {
				content = " "
			}
			var toolCalls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Name, Arguments: string(argsJSON)},
				})
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
			prevHadToolCalls = len(msg.ToolCalls) > 0
		case engine.RoleTool:
			if !prevHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.Name,
				Content:    content,
			})
		}
	}

	if system != "" {
		out = append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: system}}, out...)
	}
	return out
}

func openAIFinishReason(reason string, toolCalls int) string {
	switch {
	case toolCalls > 0 || reason == string(openai.FinishReasonToolCalls):
		return engine.FinishToolCalls
	case reason == string(openai.FinishReasonLength):
		return engine.FinishLength
	case reason == string(openai.FinishReasonContentFilter):
		return engine.FinishContentFilter
	default:
		return engine.FinishStop
	}
}
