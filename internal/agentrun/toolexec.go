package agentrun

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/cortex/internal/subagent"
	"github.com/haasonsaas/cortex/internal/tools"
	"github.com/haasonsaas/cortex/pkg/models"
)

// delegateToolName is the tool that hands a task off to subagent's bounded
// DelegateExecutor. Kept as a constant (rather than a Config field) since
// every component from G's routing prompt to I's recursion guard needs the
// same literal name.
const delegateToolName = "delegate_task"

// toolOutcome pairs one ToolCall with its resolved models.ToolResult,
// preserving batch order regardless of which partition (delegate vs
// sequential) produced it.
type toolOutcome struct {
	Call   models.ToolCall
	Result *tools.Result
}

// executeToolCalls partitions the batch into delegate_task calls (run
// concurrently via subagent.RunDelegatesParallel) and everything else (run
// sequentially, checking cancellation between calls), then returns outcomes
// in the original call order.
func (r *run) executeToolCalls(ctx context.Context, calls []models.ToolCall) []toolOutcome {
	outcomes := make([]toolOutcome, len(calls))
	var delegateIdx, sequentialIdx []int
	for i, c := range calls {
		if c.Name == delegateToolName {
			delegateIdx = append(delegateIdx, i)
		} else {
			sequentialIdx = append(sequentialIdx, i)
		}
	}

	for _, i := range sequentialIdx {
		if r.check() {
			outcomes[i] = toolOutcome{Call: calls[i], Result: &tools.Result{Content: "cancelled", IsError: true}}
			continue
		}
		outcomes[i] = toolOutcome{Call: calls[i], Result: r.executeOne(ctx, calls[i])}
	}

	if len(delegateIdx) > 0 && r.engine.delegateExec != nil {
		tasks := make([]string, len(delegateIdx))
		for n, i := range delegateIdx {
			tasks[n] = delegateTaskArg(calls[i])
		}
		delegateOutcomes := subagent.RunDelegatesParallel(ctx, r.engine.delegateExec, tasks, r.check)
		for n, i := range delegateIdx {
			outcomes[i] = toolOutcome{Call: calls[i], Result: subagentResultToToolResult(delegateOutcomes[n])}
		}
	} else {
		for _, i := range delegateIdx {
			outcomes[i] = toolOutcome{Call: calls[i], Result: &tools.Result{Content: "delegate_task is not configured", IsError: true}}
		}
	}

	return outcomes
}

// executeOne runs a single tool call: best-effort JSON parse (falling back
// to {"raw": string} so malformed-but-present arguments still reach
// validation instead of panicking), schema validation (catching the
// truncated-arguments case before any handler runs), then dispatch.
func (r *run) executeOne(ctx context.Context, call models.ToolCall) *tools.Result {
	started := time.Now()
	result := r.executeOneUninstrumented(ctx, call)
	if m := r.engine.metrics; m != nil {
		status := "success"
		if result.IsError {
			status = "error"
		}
		m.RecordToolExecution(call.Name, status, time.Since(started).Seconds())
	}
	return result
}

func (r *run) executeOneUninstrumented(ctx context.Context, call models.ToolCall) *tools.Result {
	params := normalizeToolArgs(call.Arguments)
	if err := r.registry.Validate(call.Name, params); err != nil {
		return &tools.Result{Content: err.Error(), IsError: true}
	}
	result, err := r.registry.Execute(ctx, call.Name, params)
	if err != nil {
		return &tools.Result{Content: err.Error(), IsError: true}
	}
	return result
}

// normalizeToolArgs parses raw as a JSON object; if it isn't valid JSON
// (the model truncated mid-argument, or emitted plain text), it wraps it
// as {"raw": raw} so schema validation still runs and produces a
// descriptive error rather than a panic deep in a handler.
func normalizeToolArgs(raw string) json.RawMessage {
	var probe any
	if err := json.Unmarshal([]byte(raw), &probe); err == nil {
		if _, ok := probe.(map[string]any); ok {
			return json.RawMessage(raw)
		}
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": raw})
	return wrapped
}

func delegateTaskArg(call models.ToolCall) string {
	var args struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err == nil && args.Task != "" {
		return args.Task
	}
	return call.Arguments
}

func subagentResultToToolResult(o *subagent.Outcome) *tools.Result {
	if o == nil {
		return &tools.Result{Content: "sub-agent task produced no outcome", IsError: true}
	}
	switch o.Status {
	case subagent.StatusSuccess:
		return &tools.Result{Content: o.Output}
	case subagent.StatusTimeout:
		return &tools.Result{Content: fmt.Sprintf("sub-agent task hit its step bound (%d steps) without finishing. Partial output: %s", o.Steps, o.Output)}
	default:
		return &tools.Result{Content: fmt.Sprintf("sub-agent task failed: %s", o.Error), IsError: true}
	}
}
