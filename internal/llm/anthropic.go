package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/cortex/pkg/models"
)

// AnthropicProvider is a one-shot Provider backed by Anthropic's Messages
// API. Grounded on an internal/agent/providers.AnthropicProvider-shaped adapter,
// trimmed to the non-beta streaming path (this runtime has no computer-use
// tool) and to a single Chat call instead of a channel of chunks — Client
// owns retry, so Provider.Chat either returns a complete response or an
// error for Client to classify.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider constructs a provider against apiKey, optionally
// pointed at a custom baseURL (for proxies or self-hosted gateways).
func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages, err := convertMessagesAnthropic(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(resolveMaxTokens(req)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsAnthropic(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
		switch req.ToolChoice {
		case ToolChoiceNone:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		case ToolChoiceRequired:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		}
	}
	if req.EnableThinking {
		budget := int64(req.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	resp, err := consumeAnthropicStream(ctx, stream, req.CancellationCheck)
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, NewProviderError("anthropic", req.Model, status, err)
	}
	return resp, nil
}

// consumeAnthropicStream drains the SSE stream into a single ChatResponse,
// accumulating text, the most recent thinking block, and completed tool
// calls. Grounded on AnthropicProvider.processStream, collapsed from a
// channel-of-chunks into one accumulated return value since Client needs
// the whole response before it can decide to retry or record usage.
func consumeAnthropicStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], cancelCheck func() bool) (*ChatResponse, error) {
	resp := &ChatResponse{}
	var currentToolCall *models.ToolCall
	var toolInput strings.Builder
	var thinking strings.Builder
	var content strings.Builder
	var stopReason string

	for stream.Next() {
		if cancelCheck != nil && cancelCheck() {
			return nil, ErrJobCancelled
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			resp.Usage.PromptTokens = ms.Message.Usage.InputTokens
			resp.Usage.CacheReadTokens = ms.Message.Usage.CacheReadInputTokens
			resp.Usage.CacheCreateTokens = ms.Message.Usage.CacheCreationInputTokens

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				currentToolCall = &models.ToolCall{ID: tu.ID, Name: tu.Name}
				toolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				content.WriteString(delta.Text)
			case "thinking_delta":
				thinking.WriteString(delta.Thinking)
			case "signature_delta":
				resp.ThinkingSignature = delta.Signature
			case "input_json_delta":
				toolInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if currentToolCall != nil {
				currentToolCall.Arguments = toolInput.String()
				resp.ToolCalls = append(resp.ToolCalls, *currentToolCall)
				currentToolCall = nil
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				resp.Usage.CompletionTokens = md.Usage.OutputTokens
			}
			stopReason = string(md.Delta.StopReason)

		case "message_stop":
			resp.Content = content.String()
			resp.Thinking = thinking.String()
			resp.StopReason = stopReason
			resp.Truncated = isStreamTruncated(stopReason)
			return resp, nil
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	resp.Content = content.String()
	resp.Thinking = thinking.String()
	resp.StopReason = stopReason
	resp.Truncated = isStreamTruncated(stopReason)
	return resp, nil
}

func convertMessagesAnthropic(messages []*models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case models.RoleUser:
			var blocks []anthropic.ContentBlockParamUnion
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			result = append(result, anthropic.NewUserMessage(blocks...))
		case models.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return nil, fmt.Errorf("tool call %s arguments: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return result, nil
}

func convertToolsAnthropic(tools []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
		}
		tp := anthropic.ToolUnionParamOfTool(schema, t.Name)
		tp.OfTool.Description = anthropic.String(t.Description)
		result = append(result, tp)
	}
	return result, nil
}

func resolveMaxTokens(req ChatRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if req.EnableThinking {
		reserve := req.ThinkingBudgetTokens + minThinkingReserve
		if reserve > outputCapFor(req.Model) {
			return reserve
		}
	}
	return outputCapFor(req.Model)
}

func isStreamTruncated(stopReason string) bool {
	return strings.EqualFold(stopReason, "max_tokens")
}
