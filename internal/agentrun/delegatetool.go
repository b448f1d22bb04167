package agentrun

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/cortex/internal/queue"
	"github.com/haasonsaas/cortex/internal/subagent"
	"github.com/haasonsaas/cortex/internal/tools"
)

// DelegateTaskTool hands a single sub-task off to subagent's bounded
// DelegateExecutor. Registered dynamically per job (like ExploreTool) so its
// cancellation check polls this job's own queue entry. When several
// delegate_task calls land in the same LLM response, executeToolCalls in
// toolexec.go runs them concurrently via subagent.RunDelegatesParallel
// rather than one at a time through this tool's own Execute.
type DelegateTaskTool struct {
	Executor *subagent.DelegateExecutor
	Queue    *queue.JobQueue
	JobID    string
}

func (t *DelegateTaskTool) Name() string { return delegateToolName }
func (t *DelegateTaskTool) Description() string {
	return "Delegate a self-contained sub-task to a sub-agent with its own tool-use loop. Use this to parallelize independent pieces of work; the sub-agent cannot ask clarifying questions, so give it enough detail to act on. Several delegate_task calls in the same turn run concurrently."
}
func (t *DelegateTaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"task":{"type":"string"}},"required":["task"],"additionalProperties":false}`)
}

type delegateTaskArgs struct {
	Task string `json:"task"`
}

func (t *DelegateTaskTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var args delegateTaskArgs
	if err := json.Unmarshal(params, &args); err != nil || args.Task == "" {
		return &tools.Result{Content: "delegate_task requires a non-empty task", IsError: true}, nil
	}
	if t.Executor == nil {
		return &tools.Result{Content: "delegate_task is not configured", IsError: true}, nil
	}
	cancelCheck := func() bool {
		return t.Queue != nil && t.Queue.IsCancelled(t.JobID)
	}
	outcome := t.Executor.Execute(ctx, args.Task, cancelCheck)
	return subagentResultToToolResult(outcome), nil
}
