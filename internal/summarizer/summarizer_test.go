package summarizer

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/usage"
	"github.com/haasonsaas/cortex/pkg/models"
)

type fakeProvider struct {
	content string
}

func (p *fakeProvider) Name() string { return "anthropic" }
func (p *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: p.content, Usage: models.Usage{PromptTokens: 5, CompletionTokens: 5}}, nil
}

func newTestSummarizer(t *testing.T, content string) (*Summarizer, store.Store, string) {
	t.Helper()
	st := store.NewMemoryStore()
	conv := &models.Conversation{ID: "conv-1"}
	if err := st.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	client := llm.NewClient(usage.NewTracker(st), &fakeProvider{content: content})
	s := New(client, llm.Profile{Provider: "anthropic", Model: "claude-3-5-haiku-20241022"}, st)
	return s, st, conv.ID
}

func appendMessages(t *testing.T, st store.Store, conversationID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := st.AppendMessage(context.Background(), &models.Message{
			ConversationID: conversationID,
			Role:           models.RoleUser,
			Content:        "message",
		})
		if err != nil {
			t.Fatalf("append message: %v", err)
		}
	}
}

func TestShouldUpdateSummaryBelowInitialThreshold(t *testing.T) {
	s, st, convID := newTestSummarizer(t, "summary")
	appendMessages(t, st, convID, InitialThreshold-1)

	should, err := s.ShouldUpdateSummary(context.Background(), convID)
	if err != nil {
		t.Fatalf("should update: %v", err)
	}
	if should {
		t.Fatal("expected no update below initial threshold")
	}
}

func TestShouldUpdateSummaryAtInitialThreshold(t *testing.T) {
	s, st, convID := newTestSummarizer(t, "summary")
	appendMessages(t, st, convID, InitialThreshold)

	should, err := s.ShouldUpdateSummary(context.Background(), convID)
	if err != nil {
		t.Fatalf("should update: %v", err)
	}
	if !should {
		t.Fatal("expected update at initial threshold")
	}
}

func TestGenerateSummarySyncPersistsHighWaterMark(t *testing.T) {
	s, st, convID := newTestSummarizer(t, "- decided X\n- price is $42")
	appendMessages(t, st, convID, InitialThreshold)

	summary, err := s.GenerateSummarySync(context.Background(), convID)
	if err != nil {
		t.Fatalf("generate summary: %v", err)
	}
	if !strings.Contains(summary, "$42") {
		t.Fatalf("expected concrete value retained in summary, got %q", summary)
	}

	conv, err := st.GetConversation(context.Background(), convID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.Summary != summary {
		t.Fatalf("expected persisted summary %q, got %q", summary, conv.Summary)
	}
	wantHighWater := strconv.Itoa(InitialThreshold)
	if conv.SummaryUpToMessageID != wantHighWater {
		t.Fatalf("expected high-water mark %q, got %q", wantHighWater, conv.SummaryUpToMessageID)
	}

	// No new messages since the summary: another update shouldn't be due.
	should, err := s.ShouldUpdateSummary(context.Background(), convID)
	if err != nil {
		t.Fatalf("should update: %v", err)
	}
	if should {
		t.Fatal("expected no update immediately after summarizing")
	}
}

func TestShouldUpdateSummaryAfterUpdateInterval(t *testing.T) {
	s, st, convID := newTestSummarizer(t, "summary")
	appendMessages(t, st, convID, InitialThreshold)
	if _, err := s.GenerateSummarySync(context.Background(), convID); err != nil {
		t.Fatalf("generate summary: %v", err)
	}

	appendMessages(t, st, convID, UpdateInterval-1)
	should, err := s.ShouldUpdateSummary(context.Background(), convID)
	if err != nil {
		t.Fatalf("should update: %v", err)
	}
	if should {
		t.Fatal("expected no update before crossing update interval")
	}

	appendMessages(t, st, convID, 1)
	should, err = s.ShouldUpdateSummary(context.Background(), convID)
	if err != nil {
		t.Fatalf("should update: %v", err)
	}
	if !should {
		t.Fatal("expected update once update interval is crossed")
	}
}

func TestBuildContextHeaderReportsHiddenCount(t *testing.T) {
	header := BuildContextHeader(20, 5, "earlier events happened")
	if !strings.Contains(header, "15 earlier") {
		t.Fatalf("expected hidden count in header, got %q", header)
	}
	if !strings.Contains(header, "recall_from_chat") {
		t.Fatalf("expected recovery guidance in header, got %q", header)
	}
}

func TestBuildContextHeaderEmptyWhenNothingHidden(t *testing.T) {
	header := BuildContextHeader(5, 5, "")
	if header != "" {
		t.Fatalf("expected empty header, got %q", header)
	}
}
