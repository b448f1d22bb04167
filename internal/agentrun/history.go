package agentrun

import (
	"context"

	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/summarizer"
	"github.com/haasonsaas/cortex/pkg/models"
)

// assembleHistory builds the message history for one turn: for a
// skip_history job the turn sees only the raw user message; otherwise the
// conversation's rolling summary is refreshed if due, the store's
// compressed history is loaded, and — if a summary exists — a synthetic
// user/assistant exchange carrying the summary header is prepended so the
// turn-structure invariant (every tool_use paired with a tool_result, every
// user message followed eventually by an assistant reply) survives
// summarization the same way it survives compression.
func (e *Engine) assembleHistory(ctx context.Context, job *models.Job) ([]*models.Message, error) {
	if job.SkipHistory {
		return []*models.Message{{ConversationID: job.ConversationID, Role: models.RoleUser, Content: job.Message}}, nil
	}

	if e.summarizer != nil {
		due, err := e.summarizer.ShouldUpdateSummary(ctx, job.ConversationID)
		if err == nil && due {
			if _, err := e.summarizer.GenerateSummarySync(ctx, job.ConversationID); err != nil && e.logger != nil {
				e.logger.Warn(ctx, "summary generation failed", "conversation_id", job.ConversationID, "error", err.Error())
			}
		}
	}

	total, err := e.store.CountMessages(ctx, job.ConversationID)
	if err != nil {
		return nil, err
	}
	history, err := e.store.GetConversationHistory(ctx, job.ConversationID, store.DefaultCompressionOptions())
	if err != nil {
		return nil, err
	}

	conv, err := e.store.GetConversation(ctx, job.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || conv.Summary == "" {
		return history, nil
	}

	header := summarizer.BuildContextHeader(total, len(history), conv.Summary)
	if header == "" {
		return history, nil
	}
	synthetic := []*models.Message{
		{ConversationID: job.ConversationID, Role: models.RoleUser, Content: header, Internal: true},
		{ConversationID: job.ConversationID, Role: models.RoleAssistant, Content: "Understood, I have the earlier context.", Internal: true},
	}
	return append(synthetic, history...), nil
}
