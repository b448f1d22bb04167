package agentrun

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/pkg/models"
)

// handleResponse branches on the shape of one LLM response (tool calls /
// thinking-only / empty / final text) and decides whether the turn
// continues to another step or has reached a terminal state.
func (r *run) handleResponse(ctx context.Context, step int, resp *llm.ChatResponse) (*models.Job, bool, error) {
	text := stripInternalMarkup(resp.Content)

	switch {
	case len(resp.ToolCalls) > 0:
		return r.handleToolCalls(ctx, step, resp, text)

	case text == "" && resp.Thinking != "":
		msg := &models.Message{
			ConversationID:    r.job.ConversationID,
			Role:              models.RoleAssistant,
			Thinking:          resp.Thinking,
			ThinkingSignature: resp.ThinkingSignature,
			Internal:          true,
		}
		if _, err := r.engine.store.AppendMessage(ctx, msg); err != nil {
			return nil, false, err
		}
		r.ls.ObserveTruncation(false)
		r.prevStepHadTools = false
		return nil, false, nil

	case text == "":
		if r.prevStepHadTools && !resp.Truncated {
			return r.complete(ctx, step, "Done.")
		}
		if hardStop := r.ls.ObserveTruncation(true); hardStop {
			job, err := r.finish(ctx, models.JobFailed, "", "model returned empty responses repeatedly", step)
			return job, true, err
		}
		r.prevStepHadTools = false
		return nil, false, nil

	default:
		r.ls.ObserveTruncation(false)
		return r.complete(ctx, step, text)
	}
}

// handleToolCalls runs the has-tool-calls branch: drop any corrupted (non
// JSON-object) call arguments before dispatch, run the survivors, update
// loop-detection state per call, persist the assistant message and its tool
// results as internal, and detect an ask_user pause.
func (r *run) handleToolCalls(ctx context.Context, step int, resp *llm.ChatResponse, preamble string) (*models.Job, bool, error) {
	e := r.engine
	jobID := r.job.ID

	valid := make([]models.ToolCall, 0, len(resp.ToolCalls))
	var corrupted int
	for _, tc := range resp.ToolCalls {
		var probe any
		if err := json.Unmarshal([]byte(tc.Arguments), &probe); err != nil {
			corrupted++
			e.emitActivity(ctx, jobID, models.ActivityWarning, "dropped corrupted tool call", withToolName(tc.Name), withError())
			continue
		}
		valid = append(valid, tc)
	}

	if len(valid) == 0 {
		if hardStop := r.ls.ObserveTruncation(true); hardStop {
			job, err := r.finish(ctx, models.JobFailed, "", "repeated corrupted tool-call batches", step)
			return job, true, err
		}
		r.prevStepHadTools = false
		return nil, false, nil
	}
	r.ls.ObserveTruncation(false)

	if r.check() {
		job, err := r.cancelled(ctx, step)
		return job, true, err
	}

	names := make([]string, len(valid))
	for i, tc := range valid {
		names[i] = tc.Name
	}
	e.emitActivity(ctx, jobID, models.ActivityThinkingStream, "running "+strings.Join(names, ", "))

	assistantMsg := &models.Message{
		ConversationID:    r.job.ConversationID,
		Role:              models.RoleAssistant,
		Content:           preamble,
		ToolCalls:         valid,
		Thinking:          resp.Thinking,
		ThinkingSignature: resp.ThinkingSignature,
		Internal:          true,
	}
	if _, err := e.store.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, false, err
	}

	outcomes := r.executeToolCalls(ctx, valid)
	resultContents := make([]string, len(outcomes))

	for i, o := range outcomes {
		e.emitActivity(ctx, jobID, models.ActivityToolCall, o.Call.Name, withToolName(o.Call.Name))
		resultContents[i] = o.Result.Content

		if prev, dup := r.ls.CheckDuplicate(o.Call.Name, o.Call.Arguments, o.Result.Content); dup {
			e.emitActivity(ctx, jobID, models.ActivityDuplicateTool, "repeated call with identical arguments", withToolName(o.Call.Name), withDetail(prev))
		}

		resultMsg := &models.Message{
			ConversationID: r.job.ConversationID,
			Role:           models.RoleTool,
			Content:        o.Result.Content,
			ToolCallID:     o.Call.ID,
			Internal:       true,
		}
		if o.Result.IsError {
			resultMsg.Metadata = map[string]any{"is_error": true}
		}
		if _, err := e.store.AppendMessage(ctx, resultMsg); err != nil {
			return nil, false, err
		}

		if action, tool := r.ls.RecordToolUsage(o.Call); action != loopActionNone {
			if job, terminal, err := r.applyLoopAction(ctx, step, action, o.Call.Name, tool); terminal || err != nil {
				return job, terminal, err
			}
		}
	}

	// consecutive_same_tool / consecutive_same_result track the batch as a
	// whole, using the first call's signature and every result concatenated,
	// so a single response issuing several distinct tool calls doesn't
	// spuriously pump either counter.
	combined, _ := json.Marshal(resultContents)
	action, detail := r.ls.ObserveStep(outcomes[0].Call, string(combined))
	if job, terminal, err := r.applyLoopAction(ctx, step, action, outcomes[0].Call.Name, detail); terminal || err != nil {
		return job, terminal, err
	}

	if r.ls.ShouldNoteResearchArtifact() {
		e.emitActivity(ctx, jobID, models.ActivityResearchMode, "switching to research-artifact mode")
		if _, err := e.store.AppendMessage(ctx, &models.Message{
			ConversationID: r.job.ConversationID, Role: models.RoleUser,
			Content: researchArtifactNotice(fmt.Sprintf("job-%s-research.md", jobID)), Internal: true,
		}); err != nil {
			return nil, false, err
		}
	}

	if nudge, hardStop := r.ls.ObserveToolOnlyResponse(preamble != ""); hardStop {
		job, err := r.finish(ctx, models.JobFailed, "", "repeated tool-only responses without progress", step)
		return job, true, err
	} else if nudge {
		if _, err := e.store.AppendMessage(ctx, &models.Message{
			ConversationID: r.job.ConversationID, Role: models.RoleUser,
			Content: toolOnlyNudge(), Internal: true,
		}); err != nil {
			return nil, false, err
		}
	}

	job, err := e.queue.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if job.Status == models.JobWaitingForInput {
		return job, true, nil
	}

	r.prevStepHadTools = true
	return nil, false, nil
}

// applyLoopAction persists whatever prompt or terminal state a loopAction
// calls for, shared between the per-call tool-usage caps (RecordToolUsage)
// and the once-per-step consecutive-same-tool/result tracking (ObserveStep).
func (r *run) applyLoopAction(ctx context.Context, step int, action loopAction, toolName, detail string) (*models.Job, bool, error) {
	e := r.engine
	jobID := r.job.ID

	switch action {
	case loopActionNone:
		return nil, false, nil
	case loopActionHardStop:
		e.emitActivity(ctx, jobID, models.ActivityLoopHardStop, detail, withError())
		job, err := r.finish(ctx, models.JobFailed, "", detail, step)
		return job, true, err
	case loopActionInjectRecoveryPrompt:
		e.emitActivity(ctx, jobID, models.ActivityLoopRecovery, "injecting recovery prompt", withToolName(toolName))
		if _, err := e.store.AppendMessage(ctx, &models.Message{
			ConversationID: r.job.ConversationID, Role: models.RoleUser,
			Content: recoveryPrompt(toolName, detail), Internal: true,
		}); err != nil {
			return nil, false, err
		}
	case loopActionInjectForceProgressPrompt:
		e.emitActivity(ctx, jobID, models.ActivityLoopWarning, "injecting force-progress prompt")
		if _, err := e.store.AppendMessage(ctx, &models.Message{
			ConversationID: r.job.ConversationID, Role: models.RoleUser,
			Content: forceProgressPrompt(), Internal: true,
		}); err != nil {
			return nil, false, err
		}
	case loopActionInjectToolLimitPrompt:
		e.emitActivity(ctx, jobID, models.ActivityToolLimit, "tool usage cap reached", withToolName(detail))
		if _, err := e.store.AppendMessage(ctx, &models.Message{
			ConversationID: r.job.ConversationID, Role: models.RoleUser,
			Content: toolLimitPrompt(detail), Internal: true,
		}); err != nil {
			return nil, false, err
		}
	case loopActionInjectTotalLimitPrompt:
		e.emitActivity(ctx, jobID, models.ActivityToolLimit, "total tool usage cap reached")
		if _, err := e.store.AppendMessage(ctx, &models.Message{
			ConversationID: r.job.ConversationID, Role: models.RoleUser,
			Content: totalLimitPrompt(), Internal: true,
		}); err != nil {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// complete implements the final-text branch: strip already happened by the
// caller, persist the visible reply, and return the success terminal job.
func (r *run) complete(ctx context.Context, step int, text string) (*models.Job, bool, error) {
	e := r.engine
	jobID := r.job.ID

	if _, err := e.store.AppendMessage(ctx, &models.Message{
		ConversationID: r.job.ConversationID,
		Role:           models.RoleAssistant,
		Content:        text,
		Internal:       false,
	}); err != nil {
		return nil, false, err
	}
	e.emitActivity(ctx, jobID, models.ActivityComplete, "done")

	job, err := r.finish(ctx, models.JobCompleted, text, "", step)
	return job, true, err
}
