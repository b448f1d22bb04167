package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/cortex/pkg/models"
)

// compressHistory implements get_conversation_history's compression
// algorithm over an already-loaded, in-order message slice. It is shared by
// every Store implementation so the compression semantics (and the pairing
// invariant they must preserve) live in exactly one place.
func compressHistory(messages []*models.Message, opts CompressionOptions) []*models.Message {
	if len(messages) == 0 {
		return messages
	}
	if opts.Limit > 0 && len(messages) > opts.Limit {
		messages = messages[len(messages)-opts.Limit:]
	}
	if !opts.CompressOld {
		return messages
	}

	splitIdx, ok := safeSplitIndex(messages, opts.RecentExchanges)
	if !ok {
		// No qualifying boundary: skip compression entirely.
		return messages
	}

	toolNames := toolNameByCallID(messages)

	out := make([]*models.Message, 0, len(messages))
	for i, m := range messages {
		if i < splitIdx {
			out = append(out, compressOldMessage(m, toolNames))
		} else {
			out = append(out, lightlyTruncate(m))
		}
	}

	if !pairingHolds(out) {
		// Compression must never violate the tool-call/tool-result
		// invariant; fall back to the uncompressed slice.
		return messages
	}
	return out
}

// safeSplitIndex walks backward from the (len-recentExchanges)'th
// non-internal user message and snaps to a boundary that never splits an
// assistant-with-tool_calls message from its tool results.
func safeSplitIndex(messages []*models.Message, recentExchanges int) (int, bool) {
	if recentExchanges <= 0 {
		recentExchanges = 4
	}

	userIdxs := make([]int, 0, len(messages))
	for i, m := range messages {
		if m.Role == models.RoleUser && !m.Internal {
			userIdxs = append(userIdxs, i)
		}
	}
	if len(userIdxs) <= recentExchanges {
		return 0, false
	}

	target := userIdxs[len(userIdxs)-recentExchanges]
	// Snap backward until target does not land inside a tool_use/tool_result
	// pairing, i.e. target is not a tool message and the preceding message
	// is not an assistant-with-tool_calls expecting target's results.
	for target > 0 {
		prev := messages[target-1]
		if prev.Role == models.RoleAssistant && prev.HasToolCalls() {
			target--
			continue
		}
		if messages[target].Role == models.RoleTool {
			target--
			continue
		}
		break
	}
	if target <= 0 {
		return 0, false
	}
	return target, true
}

// pairingHolds verifies the universal invariant: every assistant message
// with N tool_calls is immediately followed by exactly N tool messages
// whose tool_call_ids match, in order, with nothing interleaved.
func pairingHolds(messages []*models.Message) bool {
	i := 0
	for i < len(messages) {
		m := messages[i]
		if m.Role == models.RoleAssistant && m.HasToolCalls() {
			want := make([]string, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				want[j] = tc.ID
			}
			i++
			for _, id := range want {
				if i >= len(messages) || messages[i].Role != models.RoleTool || messages[i].ToolCallID != id {
					return false
				}
				i++
			}
			continue
		}
		i++
	}
	return true
}

const (
	newToolResultBudget = 1536 // bytes kept from each end when truncating a >4kB tool result
	newToolResultCap    = 4096
	newArgBudget        = 2048
)

// toolNameByCallID indexes every tool_call id to its originating tool name,
// so a later tool-result message (which only carries ToolCallID) can be
// compressed using the per-tool summary rule below.
func toolNameByCallID(messages []*models.Message) map[string]string {
	names := make(map[string]string)
	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			names[tc.ID] = tc.Name
		}
	}
	return names
}

// compressOldMessage aggressively compresses a message that falls before the
// safe split point: tool results become one-line summaries, tool-call
// arguments are reduced to path/query/first-line stubs, and thinking is
// replaced with a constant placeholder.
func compressOldMessage(m *models.Message, toolNames map[string]string) *models.Message {
	c := *m
	c.Thinking = ""
	c.ThinkingSignature = ""
	if m.Thinking != "" {
		c.Thinking = "[earlier reasoning omitted]"
	}
	if len(m.ToolCalls) > 0 {
		c.ToolCalls = make([]models.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			cc := tc
			cc.Arguments = stubArgs(tc.Name, tc.Arguments)
			c.ToolCalls[i] = cc
		}
	}
	if m.Role == models.RoleTool {
		c.Content = oneLineToolSummary(toolNames[m.ToolCallID], m.Content)
	}
	return &c
}

// lightlyTruncate applies light truncation to a message after the safe
// split point: only oversized payloads are shortened.
func lightlyTruncate(m *models.Message) *models.Message {
	c := *m
	if m.Role == models.RoleTool && len(m.Content) > newToolResultCap {
		head := m.Content[:newToolResultBudget]
		tail := m.Content[len(m.Content)-newToolResultBudget:]
		c.Content = fmt.Sprintf("%s\n...[%d bytes omitted]...\n%s", head, len(m.Content)-2*newToolResultBudget, tail)
	}
	if len(m.ToolCalls) > 0 {
		c.ToolCalls = make([]models.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			cc := tc
			if isLargeArgTool(tc.Name) && len(tc.Arguments) > newArgBudget {
				cc.Arguments = stubArgs(tc.Name, tc.Arguments)
			}
			c.ToolCalls[i] = cc
		}
	}
	return &c
}

func isLargeArgTool(name string) bool {
	switch name {
	case "write_file", "edit_file", "shell":
		return true
	default:
		return false
	}
}

// stubArgs reduces tool-call arguments to a minimal stub preserving only the
// path/query/first-line, matching the per-tool compression rules above.
func stubArgs(toolName, rawArgs string) string {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &decoded); err != nil {
		return rawArgs
	}
	stub := map[string]any{}
	if path, ok := decoded["path"]; ok {
		stub["path"] = path
	}
	if query, ok := decoded["query"]; ok {
		stub["query"] = query
	}
	if content, ok := decoded["content"].(string); ok {
		stub["content"] = firstLine(content)
		stub["size"] = len(content)
	}
	if cmd, ok := decoded["command"].(string); ok {
		stub["command"] = firstLine(cmd)
	}
	if len(stub) == 0 {
		return "{}"
	}
	encoded, err := json.Marshal(stub)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// oneLineToolSummary compresses a tool result into a one-line summary keyed
// by tool name.
func oneLineToolSummary(toolName, content string) string {
	switch toolName {
	case "write_file", "edit_file":
		return "[File written successfully]"
	case "read_file":
		lines := strings.Count(content, "\n") + 1
		return fmt.Sprintf("[Read file: %d lines]", lines)
	case "shell":
		return fmt.Sprintf("[Ran: %s]", firstLine(content))
	default:
		if len(content) > 120 {
			return firstLine(content[:120]) + "…"
		}
		return firstLine(content)
	}
}
