// Package llm provides a provider-abstracted chat operation: a single Chat
// call returning text, tool calls, an extended-reasoning trace, usage,
// cost, stop reason, and a truncated flag, with retry, streaming
// cancellation, and thinking-block bookkeeping layered on top of swappable
// per-provider implementations. Grounded on a providers package shaped
// around base/anthropic/openai adapters.
package llm

import (
	"context"
	"errors"

	"github.com/haasonsaas/cortex/pkg/models"
)

// ToolSpec is the provider-neutral function-calling shape a Provider
// converts into its own tool-definition format.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []byte // raw JSON schema: {type, properties, required, additionalProperties:false}
}

// ToolChoice constrains how a provider selects a tool to call: auto, none,
// required, or a specific tool name.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// ChatRequest is the single operation's input.
type ChatRequest struct {
	Model      string
	Messages   []*models.Message
	System     string
	Tools      []ToolSpec
	ToolChoice ToolChoice

	// EnableThinking requests extended reasoning; ThinkingBudgetTokens
	// reserves an output budget for it (reasoning + a fixed buffer for tool
	// arguments, conservatively >= 16KB, enforced by the caller).
	EnableThinking       bool
	ThinkingBudgetTokens int
	ReasoningEffort      string

	MaxTokens int

	Component      string
	JobID          string
	ConversationID string

	// CancellationCheck, if set, is polled during streaming so a cancel
	// signal is observed within ~200ms instead of only between calls.
	CancellationCheck func() bool
}

// ChatResponse is the single operation's output.
type ChatResponse struct {
	Content           string
	ToolCalls         []models.ToolCall
	Thinking          string
	ThinkingSignature string
	Usage             models.Usage
	CostUSD           float64
	StopReason        string
	Truncated         bool
}

// Provider performs exactly one chat attempt against a specific backend. It
// does not retry; Client layers retry, backoff, thinking-strip-and-retry,
// and usage recording on top of whatever Provider is configured.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ErrJobCancelled is the distinguished error raised when a cancellation
// signal is observed mid-stream or during backoff.
var ErrJobCancelled = errors.New("llm: job cancelled")

// outputCapFor returns the conservative per-model output token cap: strong
// models get a large ceiling, cheap/fast models a smaller one.
func outputCapFor(model string) int {
	switch {
	case isCheapModel(model):
		return 8192
	default:
		return 16384
	}
}

func isCheapModel(model string) bool {
	switch model {
	case "claude-3-5-haiku-20241022", "gpt-4o-mini":
		return true
	default:
		return false
	}
}

// minThinkingReserve is the fixed buffer reserved for tool-call arguments
// on top of the thinking budget, so enabling extended reasoning never
// truncates tool arguments.
const minThinkingReserve = 16 * 1024
