package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/tools"
	"github.com/haasonsaas/cortex/internal/usage"
	"github.com/haasonsaas/cortex/pkg/models"
)

type scriptedStepProvider struct {
	calls     int32
	responses []llm.ChatResponse
}

func (p *scriptedStepProvider) Name() string { return "anthropic" }
func (p *scriptedStepProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	i := atomic.AddInt32(&p.calls, 1) - 1
	if int(i) >= len(p.responses) {
		return &p.responses[len(p.responses)-1], nil
	}
	resp := p.responses[i]
	return &resp, nil
}

func newTestClient(t *testing.T, responses ...llm.ChatResponse) *llm.Client {
	t.Helper()
	return llm.NewClient(usage.NewTracker(store.NewMemoryStore()), &scriptedStepProvider{responses: responses})
}

func testProfile() llm.Profile {
	return llm.Profile{Provider: "anthropic", Model: "claude-3-5-haiku-20241022"}
}

func TestDelegateExecutorSucceedsWithoutToolCalls(t *testing.T) {
	client := newTestClient(t, llm.ChatResponse{Content: "done: task completed"})
	registry := tools.NewRegistry()
	exec := NewDelegateExecutor(client, testProfile(), registry, "delegate_task")

	out := exec.Execute(context.Background(), "summarize this", nil)
	if out.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Steps != 1 {
		t.Fatalf("expected 1 step, got %d", out.Steps)
	}
}

func TestDelegateExecutorRunsToolThenSucceeds(t *testing.T) {
	client := newTestClient(t,
		llm.ChatResponse{ToolCalls: []models.ToolCall{{ID: "1", Name: "read_file", Arguments: `{"path":"a.txt"}`}}},
		llm.ChatResponse{Content: "finished"},
	)
	dir := t.TempDir()
	registry := tools.NewRegistry()
	registry.Register(&tools.ReadFileTool{Root: dir})
	exec := NewDelegateExecutor(client, testProfile(), registry, "delegate_task")

	out := exec.Execute(context.Background(), "read a.txt", nil)
	if out.Status != StatusSuccess || out.Output != "finished" {
		t.Fatalf("expected success with final output, got %+v", out)
	}
	if out.Steps != 2 {
		t.Fatalf("expected 2 steps, got %d", out.Steps)
	}
}

func TestDelegateExecutorTimesOutAtStepBound(t *testing.T) {
	var responses []llm.ChatResponse
	for i := 0; i < DelegateMaxSteps+2; i++ {
		responses = append(responses, llm.ChatResponse{
			Content:   fmt.Sprintf("thinking %d", i),
			ToolCalls: []models.ToolCall{{ID: fmt.Sprintf("%d", i), Name: "read_file", Arguments: `{"path":"missing.txt"}`}},
		})
	}
	client := newTestClient(t, responses...)
	registry := tools.NewRegistry()
	registry.Register(&tools.ReadFileTool{Root: t.TempDir()})
	exec := NewDelegateExecutor(client, testProfile(), registry, "delegate_task")

	out := exec.Execute(context.Background(), "loop forever", nil)
	if out.Status != StatusTimeout {
		t.Fatalf("expected timeout status, got %+v", out)
	}
	if out.Steps != DelegateMaxSteps {
		t.Fatalf("expected %d steps, got %d", DelegateMaxSteps, out.Steps)
	}
}

func TestDelegateExecutorHonorsCancellation(t *testing.T) {
	client := newTestClient(t, llm.ChatResponse{Content: "should not be reached"})
	registry := tools.NewRegistry()
	exec := NewDelegateExecutor(client, testProfile(), registry, "delegate_task")

	out := exec.Execute(context.Background(), "task", func() bool { return true })
	if out.Status != StatusError || out.Error != "cancelled" {
		t.Fatalf("expected cancelled error, got %+v", out)
	}
}

func TestDelegateExecutorExcludesDelegateTool(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&tools.ReadFileTool{})
	client := newTestClient(t, llm.ChatResponse{Content: "ok"})
	exec := NewDelegateExecutor(client, testProfile(), registry, "read_file")

	if len(exec.runner.toolNames) != 0 {
		t.Fatalf("expected excluded tool removed from set, got %v", exec.runner.toolNames)
	}
}

func TestExploreExecutorRestrictedToReadOnlyTools(t *testing.T) {
	registry := tools.NewRegistry()
	client := newTestClient(t, llm.ChatResponse{Content: "explored"})
	exec := NewExploreExecutor(client, testProfile(), registry)

	for _, name := range exec.runner.toolNames {
		found := false
		for _, allowed := range exploreToolNames {
			if name == allowed {
				found = true
			}
		}
		if !found {
			t.Fatalf("unexpected tool %q in explore tool set", name)
		}
	}
}

func TestRunDelegatesParallelReturnsAllOutcomesInOrder(t *testing.T) {
	client := newTestClient(t, llm.ChatResponse{Content: "done"})
	registry := tools.NewRegistry()
	exec := NewDelegateExecutor(client, testProfile(), registry, "delegate_task")

	tasks := []string{"task-a", "task-b", "task-c", "task-d", "task-e"}
	outcomes := RunDelegatesParallel(context.Background(), exec, tasks, nil)
	if len(outcomes) != len(tasks) {
		t.Fatalf("expected %d outcomes, got %d", len(tasks), len(outcomes))
	}
	for i, o := range outcomes {
		if o == nil || o.Status != StatusSuccess {
			t.Fatalf("task %d: expected success outcome, got %+v", i, o)
		}
	}
}
