package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/usage"
	"github.com/haasonsaas/cortex/pkg/models"
)

type fakeProvider struct {
	name  string
	calls int
	fn    func(calls int) (*ChatResponse, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.calls++
	return f.fn(f.calls)
}

func newTestClient(t *testing.T, p Provider) (*Client, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	if err := st.CreateConversation(context.Background(), &models.Conversation{ID: "conv-1"}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	tr := usage.NewTracker(st)
	return NewClient(tr, p), st
}

func TestChatRetriesRetryableErrorThenSucceeds(t *testing.T) {
	fp := &fakeProvider{name: "anthropic", fn: func(calls int) (*ChatResponse, error) {
		if calls < 3 {
			return nil, NewProviderError("anthropic", "m", 429, errors.New("rate limited"))
		}
		return &ChatResponse{Content: "hello", Usage: models.Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
	}}
	c, _ := newTestClient(t, fp)

	resp, err := c.Chat(context.Background(), "anthropic", ChatRequest{
		Model: "claude-3-5-haiku-20241022", ConversationID: "conv-1",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "hello" {
		t.Fatalf("expected hello, got %q", resp.Content)
	}
	if fp.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fp.calls)
	}
}

func TestChatDoesNotRetryNonRetryableError(t *testing.T) {
	fp := &fakeProvider{name: "anthropic", fn: func(calls int) (*ChatResponse, error) {
		return nil, NewProviderError("anthropic", "m", 401, errors.New("unauthorized"))
	}}
	c, _ := newTestClient(t, fp)

	_, err := c.Chat(context.Background(), "anthropic", ChatRequest{Model: "m", ConversationID: "conv-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if fp.calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", fp.calls)
	}
}

func TestChatRecordsUsage(t *testing.T) {
	fp := &fakeProvider{name: "anthropic", fn: func(calls int) (*ChatResponse, error) {
		return &ChatResponse{Content: "x", Usage: models.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}}, nil
	}}
	c, _ := newTestClient(t, fp)

	_, err := c.Chat(context.Background(), "anthropic", ChatRequest{
		Model: "claude-sonnet-4-20250514", ConversationID: "conv-1", JobID: "job-1",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	got, err := st.GetConversationCost(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("get cost: %v", err)
	}
	if want := 3.0 + 15.0; got != want {
		t.Fatalf("expected cost %.2f, got %.2f", want, got)
	}
}

func TestChatReturnsJobCancelledWithoutRetry(t *testing.T) {
	fp := &fakeProvider{name: "anthropic", fn: func(calls int) (*ChatResponse, error) {
		return nil, ErrJobCancelled
	}}
	c, _ := newTestClient(t, fp)

	_, err := c.Chat(context.Background(), "anthropic", ChatRequest{Model: "m", ConversationID: "conv-1"})
	if err != ErrJobCancelled {
		t.Fatalf("expected ErrJobCancelled, got %v", err)
	}
	if fp.calls != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", fp.calls)
	}
}
