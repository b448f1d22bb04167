package skills

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/usage"
	"github.com/haasonsaas/cortex/pkg/models"
)

type scriptedProvider struct {
	content string
	err     error
}

func (p *scriptedProvider) Name() string { return "anthropic" }
func (p *scriptedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{Content: p.content, Usage: models.Usage{PromptTokens: 5, CompletionTokens: 5}}, nil
}

func newTestRouter(t *testing.T, content string, err error) *Router {
	t.Helper()
	client := llm.NewClient(usage.NewTracker(store.NewMemoryStore()), &scriptedProvider{content: content, err: err})
	return NewRouter(client, llm.Profile{Provider: "anthropic", Model: "claude-3-5-haiku-20241022"})
}

func TestRouteAppliesAddKeepDrop(t *testing.T) {
	r := newTestRouter(t, `{"add":["pdf-tools"],"keep":["notes"],"drop":["stale"]}`, nil)
	available := []*SkillEntry{{Name: "pdf-tools"}, {Name: "notes"}}
	active := map[string]int{"notes": 1, "stale": 3}

	next := r.Route(context.Background(), nil, available, active)

	if next["pdf-tools"] != MaxTTL {
		t.Fatalf("expected pdf-tools added with max TTL, got %+v", next)
	}
	if next["notes"] != MaxTTL {
		t.Fatalf("expected notes TTL reset, got %+v", next)
	}
	if _, ok := next["stale"]; ok {
		t.Fatalf("expected stale dropped, got %+v", next)
	}
}

func TestRouteDecaysUnmentionedSkills(t *testing.T) {
	r := newTestRouter(t, `{"add":[],"keep":[],"drop":[]}`, nil)
	active := map[string]int{"quiet": 2}

	next := r.Route(context.Background(), nil, nil, active)
	if next["quiet"] != 1 {
		t.Fatalf("expected decay to 1, got %+v", next)
	}
}

func TestRouteDropsAtZeroTTL(t *testing.T) {
	r := newTestRouter(t, `{"add":[],"keep":[],"drop":[]}`, nil)
	active := map[string]int{"quiet": 1}

	next := r.Route(context.Background(), nil, nil, active)
	if _, ok := next["quiet"]; ok {
		t.Fatalf("expected skill dropped at zero TTL, got %+v", next)
	}
}

func TestRouteFallsBackToDecayOnProviderError(t *testing.T) {
	r := newTestRouter(t, "", errors.New("boom"))
	active := map[string]int{"notes": 3}

	next := r.Route(context.Background(), nil, nil, active)
	if next["notes"] != 2 {
		t.Fatalf("expected fallback decay, got %+v", next)
	}
}

func TestRouteFallsBackToDecayOnMalformedJSON(t *testing.T) {
	r := newTestRouter(t, "not json at all", nil)
	active := map[string]int{"notes": 3}

	next := r.Route(context.Background(), nil, nil, active)
	if next["notes"] != 2 {
		t.Fatalf("expected fallback decay on malformed response, got %+v", next)
	}
}

func TestRouteIgnoresHallucinatedSkillNames(t *testing.T) {
	r := newTestRouter(t, `{"add":["does-not-exist"],"keep":[],"drop":[]}`, nil)
	available := []*SkillEntry{{Name: "real-skill"}}

	next := r.Route(context.Background(), nil, available, map[string]int{})
	if _, ok := next["does-not-exist"]; ok {
		t.Fatalf("expected hallucinated skill ignored, got %+v", next)
	}
}
