package usage

import (
	"context"
	"testing"

	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/pkg/models"
)

func TestRecordAppendsUsageLogWithTabulatedCost(t *testing.T) {
	st := store.NewMemoryStore()
	tr := NewTracker(st)
	ctx := context.Background()

	conv := &models.Conversation{ID: "conv-1"}
	if err := st.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	u := models.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}
	if err := tr.Record(ctx, "job-1", "conv-1", "anthropic", "claude-sonnet-4-20250514", "agent", u); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := st.GetConversationCost(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get cost: %v", err)
	}
	want := 3.0 + 15.0 // 1M prompt tokens @ $3/M + 1M completion tokens @ $15/M
	if got != want {
		t.Fatalf("expected cost %.2f, got %.2f", want, got)
	}
}

func TestRecordUnknownModelIsZeroCostNotDropped(t *testing.T) {
	st := store.NewMemoryStore()
	tr := NewTracker(st)
	ctx := context.Background()

	if err := tr.Record(ctx, "job-1", "conv-1", "anthropic", "some-future-model", "agent", models.Usage{PromptTokens: 100}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := st.GetConversationCost(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get cost: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected zero cost for unknown model, got %.4f", got)
	}
}
