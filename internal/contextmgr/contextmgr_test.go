package contextmgr

import (
	"context"
	"testing"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/usage"
	"github.com/haasonsaas/cortex/pkg/models"
)

type fakeProvider struct {
	name    string
	content string
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: p.content, Usage: models.Usage{PromptTokens: 10, CompletionTokens: 10}}, nil
}

func newTestManager(t *testing.T, content string) *Manager {
	t.Helper()
	p := &fakeProvider{name: "anthropic", content: content}
	client := llm.NewClient(usage.NewTracker(store.NewMemoryStore()), p)
	return New(client, llm.Profile{Provider: "anthropic", Model: "claude-3-5-haiku-20241022"})
}

func longMessage(role models.Role, n int) *models.Message {
	content := ""
	for i := 0; i < n; i++ {
		content += "x"
	}
	return &models.Message{Role: role, Content: content}
}

func TestShouldCompressBelowThreshold(t *testing.T) {
	m := newTestManager(t, "summary")
	messages := []*models.Message{
		longMessage(models.RoleUser, 10),
		longMessage(models.RoleAssistant, 10),
	}
	if m.ShouldCompress(messages, 100000) {
		t.Fatal("expected no compression for tiny history")
	}
}

func TestShouldCompressAboveThreshold(t *testing.T) {
	m := newTestManager(t, "summary")
	messages := make([]*models.Message, 0)
	for i := 0; i < 10; i++ {
		messages = append(messages, longMessage(models.RoleUser, 4000), longMessage(models.RoleAssistant, 4000))
	}
	if !m.ShouldCompress(messages, 1000) {
		t.Fatal("expected compression above threshold")
	}
}

func TestCompressReplacesMiddleWithSummary(t *testing.T) {
	m := newTestManager(t, "dense factual summary")

	messages := []*models.Message{
		{Role: models.RoleSystem, Content: "system prompt"},
	}
	for i := 0; i < 10; i++ {
		messages = append(messages,
			longMessage(models.RoleUser, 4000),
			longMessage(models.RoleAssistant, 4000),
		)
	}

	out, err := m.Compress(context.Background(), messages, 1000, false)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(out) >= len(messages) {
		t.Fatalf("expected compression to shrink history, got %d from %d", len(out), len(messages))
	}
	if out[0].Role != models.RoleSystem {
		t.Fatalf("expected system message preserved first, got role %s", out[0].Role)
	}
	found := false
	for _, msg := range out {
		if msg.Content == "[Previous context summary]\ndense factual summary" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a summary message in the compressed result")
	}
}

func TestCompressPreservesPlanMarker(t *testing.T) {
	m := newTestManager(t, "summary")

	messages := []*models.Message{}
	for i := 0; i < 8; i++ {
		messages = append(messages, longMessage(models.RoleUser, 4000), longMessage(models.RoleAssistant, 4000))
	}
	messages[2] = &models.Message{Role: models.RoleAssistant, Content: PlanMarker + "\nstep 1\nstep 2"}

	out, err := m.Compress(context.Background(), messages, 1000, true)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	found := false
	for _, msg := range out {
		if msg.Content == messages[2].Content {
			found = true
		}
	}
	if !found {
		t.Fatal("expected plan-marked message to survive compression intact")
	}
}

func TestCompressSkipsWhenBelowThreshold(t *testing.T) {
	m := newTestManager(t, "summary")
	messages := []*models.Message{
		longMessage(models.RoleUser, 10),
		longMessage(models.RoleAssistant, 10),
	}
	out, err := m.Compress(context.Background(), messages, 100000, false)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(out) != len(messages) {
		t.Fatal("expected untouched history below threshold")
	}
}
