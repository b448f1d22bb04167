package routing

import (
	"context"
	"testing"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/usage"
	"github.com/haasonsaas/cortex/pkg/models"
)

type fixedProvider struct {
	content string
	err     error
}

func (p *fixedProvider) Name() string { return "anthropic" }
func (p *fixedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{Content: p.content, Usage: models.Usage{PromptTokens: 2, CompletionTokens: 1}}, nil
}

func newTestClassifier(t *testing.T, content string, err error) *DepthClassifier {
	t.Helper()
	client := llm.NewClient(usage.NewTracker(store.NewMemoryStore()), &fixedProvider{content: content, err: err})
	return NewDepthClassifier(client, llm.Profile{Provider: "anthropic", Model: "claude-3-5-haiku-20241022"})
}

func TestClassifyDepthParsesZero(t *testing.T) {
	c := newTestClassifier(t, "0", nil)
	history := []*models.Message{{Role: models.RoleUser, Content: "what is the capital of France?"}}
	depth, err := c.ClassifyDepth(context.Background(), history)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected depth 0, got %d", depth)
	}
}

func TestClassifyDepthParsesOne(t *testing.T) {
	c := newTestClassifier(t, "1", nil)
	history := []*models.Message{{Role: models.RoleUser, Content: "design and implement a caching layer"}}
	depth, err := c.ClassifyDepth(context.Background(), history)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}
}

func TestClassifyDepthDefaultsOnMalformedResponse(t *testing.T) {
	c := newTestClassifier(t, "I think this is moderately complex", nil)
	history := []*models.Message{{Role: models.RoleUser, Content: "hello"}}
	depth, err := c.ClassifyDepth(context.Background(), history)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if depth != defaultDepth {
		t.Fatalf("expected default depth %d, got %d", defaultDepth, depth)
	}
}

func TestClassifyDepthDefaultsOnProviderError(t *testing.T) {
	c := newTestClassifier(t, "", context.DeadlineExceeded)
	history := []*models.Message{{Role: models.RoleUser, Content: "hello"}}
	depth, err := c.ClassifyDepth(context.Background(), history)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if depth != defaultDepth {
		t.Fatalf("expected default depth on error, got %d", depth)
	}
}

func TestClassifyDepthNoUserMessageDefaults(t *testing.T) {
	c := newTestClassifier(t, "0", nil)
	depth, err := c.ClassifyDepth(context.Background(), nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if depth != defaultDepth {
		t.Fatalf("expected default depth with no history, got %d", depth)
	}
}

func TestShouldInjectPlanOnlyAtStepOneDepthAtLeastOne(t *testing.T) {
	if !ShouldInjectPlan(1, 1) {
		t.Fatal("expected plan injection at step 1, depth 1")
	}
	if ShouldInjectPlan(1, 2) {
		t.Fatal("expected no plan injection after step 1")
	}
	if ShouldInjectPlan(0, 1) {
		t.Fatal("expected no plan injection at depth 0")
	}
}

func TestShouldReflectOnInterval(t *testing.T) {
	if !ShouldReflect(1, 6, 3) {
		t.Fatal("expected reflection at step divisible by interval")
	}
	if ShouldReflect(1, 5, 3) {
		t.Fatal("expected no reflection off interval")
	}
	if ShouldReflect(0, 6, 3) {
		t.Fatal("expected no reflection at depth 0")
	}
}

func TestThinkingBudgetTokensByDepth(t *testing.T) {
	if ThinkingBudgetTokens(0) != 0 {
		t.Fatal("expected zero thinking budget at depth 0")
	}
	if ThinkingBudgetTokens(1) <= 0 {
		t.Fatal("expected nonzero thinking budget at depth 1")
	}
}

func TestAuxiliaryFeaturesEnabledByDepth(t *testing.T) {
	if AuxiliaryFeaturesEnabled(0) {
		t.Fatal("expected auxiliary features disabled at depth 0")
	}
	if !AuxiliaryFeaturesEnabled(1) {
		t.Fatal("expected auxiliary features enabled at depth 1")
	}
}
