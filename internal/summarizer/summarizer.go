// Package summarizer maintains a rolling semantic summary per conversation,
// updated incrementally whenever enough new messages have accumulated since
// the last update. Built in the same idiom as internal/contextmgr (which
// handles the orthogonal concern of compressing an oversized *current* turn)
// but grounded more directly on internal/agent/context/summary.go's
// summary-message bookkeeping conventions, adapted to persist the summary on
// the Conversation row itself (Summary/SummaryUpToMessageID) rather than as
// an in-band message with metadata, since this runtime's history loading
// already special-cases compression independently of summaries.
package summarizer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/pkg/models"
)

// InitialThreshold is the total message count that triggers the first
// summary when none exists yet.
const InitialThreshold = 15

// UpdateInterval is how many messages past the last summary's high-water
// mark accumulate before another summary update runs.
const UpdateInterval = 10

// maxToolResultChars is how much of a tool result's content survives into
// the summarization prompt; older tool output is noise once summarized.
const maxToolResultChars = 200

// Summarizer maintains conversation summaries via an LLMClient.cheap profile.
type Summarizer struct {
	client  *llm.Client
	profile llm.Profile
	store   store.Store
}

// New constructs a Summarizer backed by st, summarizing via the given
// cheap-tier provider/model profile.
func New(client *llm.Client, cheapProfile llm.Profile, st store.Store) *Summarizer {
	return &Summarizer{client: client, profile: cheapProfile, store: st}
}

// ShouldUpdateSummary reports whether conversationID's summary is due for an
// update: either no summary exists yet and the total message count has
// crossed InitialThreshold, or the most recent message is at least
// UpdateInterval messages past the existing summary's high-water mark.
func (s *Summarizer) ShouldUpdateSummary(ctx context.Context, conversationID string) (bool, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("summarizer: load conversation: %w", err)
	}
	total, err := s.store.CountMessages(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("summarizer: count messages: %w", err)
	}

	if conv.Summary == "" {
		return total >= InitialThreshold, nil
	}

	messages, err := s.store.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return false, fmt.Errorf("summarizer: list messages: %w", err)
	}
	if len(messages) == 0 {
		return false, nil
	}
	lastID, err := strconv.ParseInt(messages[len(messages)-1].ID, 10, 64)
	if err != nil {
		return false, nil
	}
	upTo, err := strconv.ParseInt(conv.SummaryUpToMessageID, 10, 64)
	if err != nil {
		upTo = 0
	}
	return lastID-upTo >= UpdateInterval, nil
}

// GenerateSummarySync loads only the messages after the conversation's
// current summary high-water mark, formats them into a compact transcript
// (tool outputs aggressively truncated), prepends the existing summary for
// incremental refinement, calls the cheap LLM profile with a prompt that
// must retain concrete values, and persists the new summary and high-water
// message id.
func (s *Summarizer) GenerateSummarySync(ctx context.Context, conversationID string) (string, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("summarizer: load conversation: %w", err)
	}
	messages, err := s.store.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return "", fmt.Errorf("summarizer: list messages: %w", err)
	}

	tail := messagesAfter(messages, conv.SummaryUpToMessageID)
	if len(tail) == 0 {
		return conv.Summary, nil
	}

	prompt := buildSummaryPrompt(conv.Summary, tail)
	resp, err := s.client.Chat(ctx, s.profile.Provider, llm.ChatRequest{
		Model: s.profile.Model,
		Messages: []*models.Message{
			{Role: models.RoleUser, Content: prompt},
		},
		System:    "You maintain a running bullet-list summary of a conversation for another instance of yourself to continue from. Always keep concrete values: prices, names, paths, decisions, and current task state.",
		MaxTokens: 768,
		Component: "conversation_summary",
	})
	if err != nil {
		return "", fmt.Errorf("summarizer: generate summary: %w", err)
	}

	summary := strings.TrimSpace(resp.Content)
	upTo := tail[len(tail)-1].ID
	if err := s.store.SaveConversationSummary(ctx, conversationID, summary, upTo); err != nil {
		return "", fmt.Errorf("summarizer: save summary: %w", err)
	}
	return summary, nil
}

// BuildContextHeader constructs a short injection message reporting how
// many earlier messages are hidden, the current summary (if any), and
// guidance to recover exact values the summary may have dropped.
func BuildContextHeader(total, visible int, summary string) string {
	hidden := total - visible
	if hidden <= 0 && summary == "" {
		return ""
	}

	var sb strings.Builder
	if hidden > 0 {
		fmt.Fprintf(&sb, "[%d earlier message(s) hidden from this view.", hidden)
		if summary != "" {
			sb.WriteString(" Summary of hidden history:\n")
			sb.WriteString(summary)
		}
		sb.WriteString("\nUse recall_from_chat for exact earlier values if needed.]")
		return sb.String()
	}

	sb.WriteString("[Summary of earlier history:\n")
	sb.WriteString(summary)
	sb.WriteString("]")
	return sb.String()
}

// messagesAfter returns the suffix of messages with an ID strictly greater
// than upToMessageID (all of messages if upToMessageID is empty or unparseable).
func messagesAfter(messages []*models.Message, upToMessageID string) []*models.Message {
	if upToMessageID == "" {
		return messages
	}
	upTo, err := strconv.ParseInt(upToMessageID, 10, 64)
	if err != nil {
		return messages
	}
	for i, m := range messages {
		id, err := strconv.ParseInt(m.ID, 10, 64)
		if err != nil || id > upTo {
			return messages[i:]
		}
	}
	return nil
}

func buildSummaryPrompt(existing string, messages []*models.Message) string {
	var sb strings.Builder
	if existing != "" {
		sb.WriteString("Existing summary so far:\n")
		sb.WriteString(existing)
		sb.WriteString("\n\n")
	}
	sb.WriteString("New messages to fold into the summary:\n\n")
	for _, m := range messages {
		if m.Internal {
			continue
		}
		switch m.Role {
		case models.RoleTool:
			sb.WriteString(fmt.Sprintf("[tool result]: %s\n", truncateToolResult(m.Content)))
		case models.RoleAssistant:
			sb.WriteString(fmt.Sprintf("[assistant]: %s\n", m.Content))
			for _, tc := range m.ToolCalls {
				sb.WriteString(fmt.Sprintf("  [called %s]\n", tc.Name))
			}
		default:
			sb.WriteString(fmt.Sprintf("[%s]: %s\n", m.Role, m.Content))
		}
	}
	sb.WriteString("\nProduce an updated bullet-list summary retaining concrete values (prices, names, paths, decisions, current task state):")
	return sb.String()
}

func truncateToolResult(content string) string {
	if len(content) <= maxToolResultChars {
		return content
	}
	return content[:maxToolResultChars] + "...(truncated)"
}
