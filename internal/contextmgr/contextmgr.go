// Package contextmgr implements token-budget-aware history compression:
// distinct from the always-on stub compression in internal/store (which
// keeps every message but shrinks old tool payloads), this package decides
// when a conversation's *current* turn is too large for its model's context
// window and, when so, replaces a whole middle segment with one
// LLM-generated summary message. Grounded on an internal/agent/context-
// shaped package (a summary-message metadata convention, a
// Summarizer/SummarizationConfig shape) and a token-estimation/threshold
// compaction routine, adapted to call through internal/llm instead of a
// separate SummaryProvider interface.
package contextmgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/pkg/models"
)

// charsPerToken is the same rough heuristic providers commonly use for
// CountTokens (no tokenizer dependency, just a fast approximation).
const charsPerToken = 4

// PlanMarker is the content prefix a planning-injection message carries;
// Compress locates and special-cases the first such message so a turn's
// plan survives middle-summarization instead of being flattened into prose.
const PlanMarker = "<plan>"

// DefaultThreshold is the fraction of a model's context window that
// triggers compression.
const DefaultThreshold = 0.70

// Manager decides when a conversation needs compressing and performs it.
type Manager struct {
	client    *llm.Client
	profile   llm.Profile
	threshold float64
}

// New constructs a Manager that summarizes via the given cheap-tier
// provider/model profile.
func New(client *llm.Client, cheapProfile llm.Profile) *Manager {
	return &Manager{client: client, profile: cheapProfile, threshold: DefaultThreshold}
}

// EstimateTokens sums a ~4-chars-per-token estimate across content and
// serialized tool calls/results for every message.
func EstimateTokens(messages []*models.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
		total += len(m.Thinking)
		for _, tc := range m.ToolCalls {
			total += len(tc.Name) + len(tc.Arguments)
		}
	}
	return total / charsPerToken
}

// UsagePercent returns EstimateTokens(messages) as a fraction of window.
func UsagePercent(messages []*models.Message, contextWindow int) float64 {
	if contextWindow <= 0 {
		return 0
	}
	return float64(EstimateTokens(messages)) / float64(contextWindow)
}

// ShouldCompress reports whether usage crosses the manager's threshold and
// there are enough messages for a split to make sense.
func (m *Manager) ShouldCompress(messages []*models.Message, contextWindow int) bool {
	if len(messages) < 6 {
		return false
	}
	return UsagePercent(messages, contextWindow) >= m.threshold
}

// Compress replaces the compressible middle of messages with a single LLM
// summary, preserving the system message, a tail of recent messages, and
// (when preservePlan) the first plan-marked message intact. It returns the
// input untouched if compression isn't warranted, the split point can't be
// found safely, or post-validation of the tool-call/tool-result pairing
// invariant fails on the reassembled result.
func (m *Manager) Compress(ctx context.Context, messages []*models.Message, contextWindow int, preservePlan bool) ([]*models.Message, error) {
	if !m.ShouldCompress(messages, contextWindow) {
		return messages, nil
	}

	var system *models.Message
	rest := messages
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		system = messages[0]
		rest = messages[1:]
	}

	split := store.SafeSplitIndex(rest, recentExchangesKept)
	if split <= 0 {
		return messages, nil
	}

	middle := append([]*models.Message(nil), rest[:split]...)
	recent := rest[split:]

	var planMsg *models.Message
	if preservePlan {
		for i, msg := range middle {
			if strings.Contains(msg.Content, PlanMarker) {
				planMsg = cloneForPlan(msg)
				middle = append(middle[:i], middle[i+1:]...)
				break
			}
		}
	}
	if len(middle) == 0 {
		return messages, nil
	}

	summary, err := m.summarizeMiddle(ctx, middle)
	if err != nil {
		return messages, fmt.Errorf("contextmgr: summarize middle: %w", err)
	}

	rebuilt := make([]*models.Message, 0, len(recent)+4)
	if system != nil {
		rebuilt = append(rebuilt, system)
	}
	rebuilt = append(rebuilt, &models.Message{
		Role:    models.RoleUser,
		Content: "[Previous context summary]\n" + summary,
	})
	if planMsg != nil {
		rebuilt = append(rebuilt, planMsg)
	}
	rebuilt = append(rebuilt, recent...)

	if !store.PairingHolds(rebuilt) {
		return messages, nil
	}
	return rebuilt, nil
}

// recentExchangesKept mirrors the store package's own default so E and A
// agree on what "recent" means when both walk the same history.
const recentExchangesKept = store.DefaultRecentExchanges

func cloneForPlan(m *models.Message) *models.Message {
	clone := *m
	clone.ToolCalls = nil // the plan's tool calls will be summarized with everything else
	return &clone
}

func (m *Manager) summarizeMiddle(ctx context.Context, middle []*models.Message) (string, error) {
	prompt := buildSummarizationPrompt(middle)
	resp, err := m.client.Chat(ctx, m.profile.Provider, llm.ChatRequest{
		Model:     m.profile.Model,
		Messages:  []*models.Message{{Role: models.RoleUser, Content: prompt}},
		System:    "You compress conversation history into a dense factual summary for another instance of yourself to continue from.",
		MaxTokens: 1024,
		Component: "context_summary",
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func buildSummarizationPrompt(messages []*models.Message) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following conversation segment concisely, retaining concrete values (prices, names, paths, decisions, current task state):\n\n")
	for _, msg := range messages {
		sb.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content))
		for _, tc := range msg.ToolCalls {
			sb.WriteString(fmt.Sprintf("  [called %s]\n", tc.Name))
		}
	}
	sb.WriteString("\nProvide the summary now:")
	return sb.String()
}
