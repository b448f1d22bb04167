package agentrun

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/cortex/internal/queue"
	"github.com/haasonsaas/cortex/internal/subagent"
	"github.com/haasonsaas/cortex/internal/tools"
)

// ExploreTool hands a read-only investigation off to subagent's bounded
// ExploreExecutor. Registered dynamically per job (like AskUserTool) so its
// cancellation check can poll this job's own queue entry rather than a
// shared one.
type ExploreTool struct {
	Executor *subagent.ExploreExecutor
	Queue    *queue.JobQueue
	JobID    string
}

func (t *ExploreTool) Name() string { return "explore_task" }
func (t *ExploreTool) Description() string {
	return "Investigate the codebase or conversation history using only read-only tools, then report a concise summary. Cannot modify anything."
}
func (t *ExploreTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"task":{"type":"string"}},"required":["task"],"additionalProperties":false}`)
}

type exploreTaskArgs struct {
	Task string `json:"task"`
}

func (t *ExploreTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var args exploreTaskArgs
	if err := json.Unmarshal(params, &args); err != nil || args.Task == "" {
		return &tools.Result{Content: "explore_task requires a non-empty task", IsError: true}, nil
	}
	if t.Executor == nil {
		return &tools.Result{Content: "explore_task is not configured", IsError: true}, nil
	}
	cancelCheck := func() bool {
		return t.Queue != nil && t.Queue.IsCancelled(t.JobID)
	}
	outcome := t.Executor.Execute(ctx, args.Task, cancelCheck)
	return subagentResultToToolResult(outcome), nil
}
