package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/cortex/pkg/models"
)

// jsonUnmarshalLenient decodes a raw JSON schema into dst, falling back to
// an empty object schema if the bytes are malformed rather than failing
// the whole tool conversion over one bad schema.
func jsonUnmarshalLenient(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		*dst = map[string]any{"type": "object", "properties": map[string]any{}}
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		*dst = map[string]any{"type": "object", "properties": map[string]any{}}
		return err
	}
	return nil
}

// OpenAIProvider is a one-shot Provider backed by OpenAI's chat completions
// API. Grounded on an internal/agent/providers.OpenAIProvider-shaped adapter.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider constructs a provider against apiKey, optionally
// pointed at a custom baseURL (self-hosted/compatible gateways).
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages, err := convertMessagesOpenAI(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("openai: convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		Stream:    true,
		MaxTokens: resolveMaxTokens(req),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsOpenAI(req.Tools)
	}
	switch req.ToolChoice {
	case ToolChoiceNone:
		chatReq.ToolChoice = "none"
	case ToolChoiceRequired:
		chatReq.ToolChoice = "required"
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, NewProviderError("openai", req.Model, 0, err)
	}
	defer stream.Close()

	resp, err := consumeOpenAIStream(ctx, stream, req.CancellationCheck)
	if err != nil {
		return nil, NewProviderError("openai", req.Model, 0, err)
	}
	return resp, nil
}

func consumeOpenAIStream(ctx context.Context, stream *openai.ChatCompletionStream, cancelCheck func() bool) (*ChatResponse, error) {
	resp := &ChatResponse{}
	var content strings.Builder
	toolCalls := make(map[int]*models.ToolCall)
	order := make([]int, 0, 4)

	for {
		if cancelCheck != nil && cancelCheck() {
			return nil, ErrJobCancelled
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk.Usage != nil {
			resp.Usage.PromptTokens = int64(chunk.Usage.PromptTokens)
			resp.Usage.CompletionTokens = int64(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		content.WriteString(choice.Delta.Content)

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if toolCalls[idx] == nil {
				toolCalls[idx] = &models.ToolCall{}
				order = append(order, idx)
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Arguments += tc.Function.Arguments
			}
		}
		if choice.FinishReason != "" {
			resp.StopReason = string(choice.FinishReason)
		}
	}

	for _, idx := range order {
		if tc := toolCalls[idx]; tc.ID != "" && tc.Name != "" {
			resp.ToolCalls = append(resp.ToolCalls, *tc)
		}
	}
	resp.Content = content.String()
	resp.Truncated = strings.EqualFold(resp.StopReason, "length")
	return resp, nil
}

func convertMessagesOpenAI(messages []*models.Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case models.RoleUser:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			result = append(result, oaiMsg)
		}
	}
	return result, nil
}

func convertToolsOpenAI(tools []ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		_ = jsonUnmarshalLenient(t.Parameters, &schema)
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}
