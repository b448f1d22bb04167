// Package subagent implements the bounded DelegateExecutor and
// ExploreExecutor sub-agents: short, self-contained tool-use loops an agent
// turn can hand a sub-task to without growing the parent conversation's own
// history. Grounded on a bounded-parallelism pattern (a semaphore channel
// capping concurrent agent execution) for running several delegate tasks at
// once, generalized away from a dependency-graph/shared-context model —
// delegate tasks here are independent, single-shot sub-tasks, not a staged
// multi-agent pipeline — down to a flat bounded fan-out via
// golang.org/x/sync/errgroup.
package subagent

import (
	"context"
	"encoding/json"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/tools"
	"github.com/haasonsaas/cortex/pkg/models"
)

// DelegateMaxSteps and ExploreMaxSteps are the per-executor step bounds.
// Neither executor runs the main loop's history-based loop detection
// because the bound alone is enough at this size.
const (
	DelegateMaxSteps = 10
	ExploreMaxSteps  = 15
)

// maxDelegateConcurrency caps how many delegate tasks J may run at once.
const maxDelegateConcurrency = 4

// Status is a sub-agent run's terminal state.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Outcome is what a DelegateExecutor/ExploreExecutor run returns to the
// caller: status, output/summary, step count, and an optional error.
type Outcome struct {
	Status Status `json:"status"`
	Output string `json:"output,omitempty"`
	Steps  int    `json:"steps"`
	Error  string `json:"error,omitempty"`
}

// stepRunner is the shared tool-dispatch loop both executors compose,
// differing only in system prompt, allowed tool subset, and step bound.
type stepRunner struct {
	client       *llm.Client
	profile      llm.Profile
	registry     *tools.Registry
	toolNames    []string
	systemPrompt string
	maxSteps     int
	component    string
}

func (r *stepRunner) run(ctx context.Context, task string, cancelCheck func() bool) *Outcome {
	messages := []*models.Message{{Role: models.RoleUser, Content: task}}
	specs := r.registry.AsSpecs(r.toolNames...)

	for step := 1; step <= r.maxSteps; step++ {
		if cancelCheck != nil && cancelCheck() {
			return &Outcome{Status: StatusError, Error: "cancelled", Steps: step - 1}
		}

		resp, err := r.client.Chat(ctx, r.profile.Provider, llm.ChatRequest{
			Model:             r.profile.Model,
			Messages:          messages,
			System:            r.systemPrompt,
			Tools:             specs,
			MaxTokens:         2048,
			Component:         r.component,
			CancellationCheck: cancelCheck,
		})
		if err != nil {
			if errors.Is(err, llm.ErrJobCancelled) {
				return &Outcome{Status: StatusError, Error: "cancelled", Steps: step - 1}
			}
			return &Outcome{Status: StatusError, Error: err.Error(), Steps: step}
		}

		messages = append(messages, &models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			return &Outcome{Status: StatusSuccess, Output: resp.Content, Steps: step}
		}

		for _, tc := range resp.ToolCalls {
			result, execErr := r.registry.Execute(ctx, tc.Name, json.RawMessage(tc.Arguments))
			content := ""
			switch {
			case execErr != nil:
				content = execErr.Error()
			case result != nil:
				content = result.Content
			}
			messages = append(messages, &models.Message{
				Role:       models.RoleTool,
				ToolCallID: tc.ID,
				Content:    content,
			})
		}
	}

	return &Outcome{Status: StatusTimeout, Output: lastAssistantContent(messages), Steps: r.maxSteps}
}

func lastAssistantContent(messages []*models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}

// delegateSystemPrompt omits any mention of a delegate tool: delegate tasks
// never recursively delegate.
const delegateSystemPrompt = "You are a focused sub-agent completing one delegated task. Use the tools available to you to accomplish it directly, then respond with a final plain-text result. Do not ask clarifying questions; make reasonable assumptions and state them in your result."

const exploreSystemPrompt = "You are a read-only exploration sub-agent. Investigate the codebase or conversation history using only the tools available to you, then respond with a concise plain-text summary of what you found. You cannot modify anything."

// exploreToolNames is the read-only tool subset available to exploration
// runs: file read, directory list, text search, chat recall.
var exploreToolNames = []string{"read_file", "list_directory", "search_text", "recall_from_chat"}

// DelegateExecutor runs a bounded tool-use loop for one delegated task,
// with every registered tool available except delegate_task itself.
type DelegateExecutor struct {
	runner *stepRunner
}

// NewDelegateExecutor constructs a DelegateExecutor calling through the
// given cheap-tier profile, with delegateToolName excluded from its tool
// set so it cannot recursively delegate.
func NewDelegateExecutor(client *llm.Client, cheapProfile llm.Profile, registry *tools.Registry, delegateToolName string) *DelegateExecutor {
	return &DelegateExecutor{runner: &stepRunner{
		client:       client,
		profile:      cheapProfile,
		registry:     registry,
		toolNames:    namesExcluding(registry, delegateToolName),
		systemPrompt: delegateSystemPrompt,
		maxSteps:     DelegateMaxSteps,
		component:    "delegate_executor",
	}}
}

// Execute runs task to completion or until the step bound, honoring
// cancelCheck the same way the main loop does.
func (e *DelegateExecutor) Execute(ctx context.Context, task string, cancelCheck func() bool) *Outcome {
	return e.runner.run(ctx, task, cancelCheck)
}

// ExploreExecutor runs a bounded, read-only-tool-only investigation loop.
type ExploreExecutor struct {
	runner *stepRunner
}

// NewExploreExecutor constructs an ExploreExecutor calling through the
// given cheap-tier profile, restricted to exploreToolNames.
func NewExploreExecutor(client *llm.Client, cheapProfile llm.Profile, registry *tools.Registry) *ExploreExecutor {
	return &ExploreExecutor{runner: &stepRunner{
		client:       client,
		profile:      cheapProfile,
		registry:     registry,
		toolNames:    exploreToolNames,
		systemPrompt: exploreSystemPrompt,
		maxSteps:     ExploreMaxSteps,
		component:    "explore_executor",
	}}
}

// Execute runs task to completion or until the step bound.
func (e *ExploreExecutor) Execute(ctx context.Context, task string, cancelCheck func() bool) *Outcome {
	return e.runner.run(ctx, task, cancelCheck)
}

func namesExcluding(registry *tools.Registry, excluded string) []string {
	all := registry.All()
	out := make([]string, 0, len(all))
	for _, t := range all {
		if t.Name() == excluded {
			continue
		}
		out = append(out, t.Name())
	}
	return out
}

// RunDelegatesParallel runs multiple delegate tasks concurrently, bounded
// by maxDelegateConcurrency, while the caller keeps any other tool calls in
// the same turn sequential. Every task always produces an Outcome
// (errors surface as Outcome.Status == StatusError), so the returned slice
// is always fully populated in task order.
func RunDelegatesParallel(ctx context.Context, executor *DelegateExecutor, tasks []string, cancelCheck func() bool) []*Outcome {
	results := make([]*Outcome, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDelegateConcurrency)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = executor.Execute(gctx, task, cancelCheck)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
