package agentrun

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/queue"
	"github.com/haasonsaas/cortex/internal/skills"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/tools"
	"github.com/haasonsaas/cortex/internal/usage"
	"github.com/haasonsaas/cortex/pkg/models"
)

// scriptedProvider replays responses in order, repeating the last one once
// exhausted, mirroring internal/subagent's test fake.
type scriptedProvider struct {
	calls     int32
	responses []llm.ChatResponse
}

func (p *scriptedProvider) Name() string { return "anthropic" }
func (p *scriptedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	i := atomic.AddInt32(&p.calls, 1) - 1
	if int(i) >= len(p.responses) {
		resp := p.responses[len(p.responses)-1]
		return &resp, nil
	}
	resp := p.responses[i]
	return &resp, nil
}

func testProfile() llm.Profile {
	return llm.Profile{Provider: "anthropic", Model: "claude-3-5-haiku-20241022"}
}

// fixedDepth implements routing.Classifier without needing a real LLM call.
type fixedDepth struct{ depth int }

func (f fixedDepth) ClassifyDepth(ctx context.Context, history []*models.Message) (int, error) {
	return f.depth, nil
}

type testHarness struct {
	t      *testing.T
	store  store.Store
	queue  *queue.JobQueue
	engine *Engine
}

func newHarness(t *testing.T, depth int, registry *tools.Registry, responses ...llm.ChatResponse) *testHarness {
	t.Helper()
	st := store.NewMemoryStore()
	q := queue.New(st, 16)
	client := llm.NewClient(usage.NewTracker(st), &scriptedProvider{responses: responses})
	if registry == nil {
		registry = tools.NewRegistry()
	}
	eng := New(Config{
		Store:          st,
		Queue:          q,
		LLMClient:      client,
		DefaultProfile: testProfile(),
		// CheapProfile deliberately names a provider the test client never
		// registers: generateRelatedQuestions's background Chat call then
		// fails fast and is dropped instead of racing the main loop for the
		// scripted provider's next response.
		CheapProfile:    llm.Profile{Provider: "unconfigured", Model: "n/a"},
		Registry:        registry,
		SkillLoader:     skills.NewLoader("", st),
		DepthClassifier: fixedDepth{depth: depth},
		BasePrompt:      "You are a helpful local agent.",
	})
	return &testHarness{t: t, store: st, queue: q, engine: eng}
}

func (h *testHarness) newJob(conversationID, message string, opts queue.CreateOptions) *models.Job {
	h.t.Helper()
	ctx := context.Background()
	if err := h.store.CreateConversation(ctx, &models.Conversation{ID: conversationID}); err != nil {
		h.t.Fatalf("create conversation: %v", err)
	}
	if _, err := h.store.AppendMessage(ctx, &models.Message{ConversationID: conversationID, Role: models.RoleUser, Content: message}); err != nil {
		h.t.Fatalf("append seed message: %v", err)
	}
	job, err := h.queue.CreateJob(ctx, "job-1", conversationID, message, opts)
	if err != nil {
		h.t.Fatalf("create job: %v", err)
	}
	return job
}

func TestRunHappyPathDepthZero(t *testing.T) {
	h := newHarness(t, 0, nil, llm.ChatResponse{Content: "hello there", StopReason: "end_turn"})
	job := h.newJob("conv-1", "hi", queue.CreateOptions{})

	result, err := h.engine.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != models.JobCompleted {
		t.Fatalf("expected completed, got %s (error=%s)", result.Status, result.Error)
	}
	if result.Result != "hello there" {
		t.Fatalf("expected result %q, got %q", "hello there", result.Result)
	}
}

func TestRunSequentialToolsDepthOne(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("file contents"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	registry := tools.NewRegistry()
	registry.Register(&tools.ReadFileTool{Root: dir})

	h := newHarness(t, 1, registry,
		llm.ChatResponse{ToolCalls: []models.ToolCall{{ID: "1", Name: "read_file", Arguments: `{"path":"a.txt"}`}}},
		llm.ChatResponse{Content: "the file says: file contents", StopReason: "end_turn"},
	)
	job := h.newJob("conv-2", "what's in a.txt?", queue.CreateOptions{})

	result, err := h.engine.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != models.JobCompleted {
		t.Fatalf("expected completed, got %s (error=%s)", result.Status, result.Error)
	}
	if result.Result != "the file says: file contents" {
		t.Fatalf("unexpected result: %q", result.Result)
	}

	msgs, err := h.store.ListMessages(context.Background(), "conv-2", 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	var sawToolCall, sawToolResult bool
	for _, m := range msgs {
		if m.HasToolCalls() {
			sawToolCall = true
		}
		if m.Role == models.RoleTool && m.ToolCallID == "1" {
			sawToolResult = true
		}
	}
	if !sawToolCall || !sawToolResult {
		t.Fatalf("expected a persisted tool call and its result, messages=%+v", msgs)
	}
}

// stuckTool always succeeds with the same content, regardless of arguments,
// so repeated identical calls drive the consecutive-same-tool counters.
type stuckTool struct{}

func (stuckTool) Name() string        { return "stuck" }
func (stuckTool) Description() string { return "a tool that never makes progress" }
func (stuckTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
}
func (stuckTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	return &tools.Result{Content: "still stuck"}, nil
}

func TestRunLoopHardStop(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(stuckTool{})

	var responses []llm.ChatResponse
	for i := 0; i < 20; i++ {
		responses = append(responses, llm.ChatResponse{
			ToolCalls: []models.ToolCall{{ID: fmt.Sprintf("%d", i), Name: "stuck", Arguments: `{}`}},
		})
	}
	h := newHarness(t, 0, registry, responses...)
	job := h.newJob("conv-3", "do the stuck thing forever", queue.CreateOptions{})

	result, err := h.engine.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != models.JobFailed {
		t.Fatalf("expected failed (hard stop), got %s", result.Status)
	}
}

func TestRunAskUserPausesForInput(t *testing.T) {
	h := newHarness(t, 0, nil, llm.ChatResponse{
		ToolCalls: []models.ToolCall{{ID: "1", Name: "ask_user", Arguments: `{"question":"which city?","options":["NYC","LA"]}`}},
	})
	job := h.newJob("conv-4", "book me a flight", queue.CreateOptions{})

	result, err := h.engine.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != models.JobWaitingForInput {
		t.Fatalf("expected waiting_for_input, got %s", result.Status)
	}
	if result.Question != "which city?" {
		t.Fatalf("expected question to be persisted on the job, got %q", result.Question)
	}

	msgs, err := h.store.ListMessages(context.Background(), "conv-4", 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	var sawQuestion bool
	for _, m := range msgs {
		if m.Role == models.RoleAssistant && m.Content == "which city?" {
			sawQuestion = true
		}
	}
	if !sawQuestion {
		t.Fatalf("expected the question to be persisted as a visible assistant message, messages=%+v", msgs)
	}
}

func TestRunCancelledMidStream(t *testing.T) {
	h := newHarness(t, 0, nil, llm.ChatResponse{Content: "too late", StopReason: "end_turn"})
	job := h.newJob("conv-5", "hi", queue.CreateOptions{})
	h.queue.Cancel(job.ID)

	result, err := h.engine.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != models.JobCancelled {
		t.Fatalf("expected cancelled, got %s", result.Status)
	}
}
