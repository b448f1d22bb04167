package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/cortex/internal/store"
)

// RecallFromChatTool searches a conversation's full message history for a
// literal substring, letting the delegate/explore executors and the main
// loop recover exact values a rolling summary (internal/summarizer) may
// have dropped or paraphrased.
type RecallFromChatTool struct{ Store store.Store }

func (t *RecallFromChatTool) Name() string { return "recall_from_chat" }
func (t *RecallFromChatTool) Description() string {
	return "Search the full conversation history for a literal substring, bypassing any summary."
}
func (t *RecallFromChatTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"conversation_id":{"type":"string"},"query":{"type":"string"}},"required":["conversation_id","query"],"additionalProperties":false}`)
}

type recallArgs struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

const maxRecallMatches = 20

func (t *RecallFromChatTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var args recallArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &Result{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	if t.Store == nil {
		return &Result{Content: "recall_from_chat: no store configured", IsError: true}, nil
	}

	messages, err := t.Store.ListMessages(ctx, args.ConversationID, 0)
	if err != nil {
		return &Result{Content: fmt.Sprintf("list messages: %v", err), IsError: true}, nil
	}

	type match struct {
		MessageID string `json:"message_id"`
		Role      string `json:"role"`
		Content   string `json:"content"`
	}
	var matches []match
	for _, m := range messages {
		if !strings.Contains(m.Content, args.Query) {
			continue
		}
		matches = append(matches, match{MessageID: m.ID, Role: string(m.Role), Content: m.Content})
		if len(matches) >= maxRecallMatches {
			break
		}
	}

	payload, _ := json.Marshal(map[string]any{"matches": matches})
	return &Result{Content: string(payload)}, nil
}
