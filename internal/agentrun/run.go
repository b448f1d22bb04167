package agentrun

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/routing"
	"github.com/haasonsaas/cortex/internal/tools"
	"github.com/haasonsaas/cortex/pkg/models"
	"go.opentelemetry.io/otel/trace"
)

// run holds everything specific to one Engine.Run call: the job it's
// servicing, a private tool registry (job-scoped tools added, never
// mutating the engine's shared static registry — see register.go), its own
// LoopState, and the depth decided once at the start of the turn. Carrying
// this as a value instead of Engine fields is what lets multiple jobs run
// concurrently without racing on each other's ask_user/scheduled-job tools
// or loop counters.
type run struct {
	engine    *Engine
	job       *models.Job
	registry  *tools.Registry
	ls        *LoopState
	depth     int
	startedAt time.Time

	// prevStepHadTools records whether the previous step executed at least
	// one tool call, so an empty follow-up response can be read as "the
	// model considers the job done" rather than a stall.
	prevStepHadTools bool
}

func (r *run) check() bool { return r.engine.queue.IsCancelled(r.job.ID) }

// Run executes jobID's step loop to completion, pause, or failure.
func (e *Engine) Run(ctx context.Context, jobID string) (result *models.Job, runErr error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobErrorf(jobID, "not found")
	}

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "agent.run")
		defer span.End()
	}

	r := &run{engine: e, job: job, ls: e.loopState(jobID), startedAt: time.Now()}
	defer e.dropLoopState(jobID)
	if e.metrics != nil {
		e.metrics.JobStarted()
		defer func() {
			status := ""
			if result != nil {
				status = string(result.Status)
			}
			e.metrics.JobEnded(status)
		}()
	}

	if err := e.queue.SetStatus(ctx, jobID, models.JobRunning, nil); err != nil {
		return nil, err
	}

	if r.check() {
		return r.cancelled(ctx, 0)
	}

	history, err := e.store.ListMessages(ctx, job.ConversationID, 0)
	if err != nil {
		return nil, err
	}
	r.depth = 1
	if e.depthClassifier != nil {
		if d, derr := e.depthClassifier.ClassifyDepth(ctx, history); derr == nil {
			r.depth = d
		}
	}
	e.emitActivity(ctx, jobID, models.ActivityRouting, fmt.Sprintf("depth %d", r.depth))

	if r.depth > 0 {
		e.emitActivity(ctx, jobID, models.ActivityThinking, "Working on it.")
		bgCtx := context.WithoutCancel(ctx)
		go e.generateRelatedQuestions(bgCtx, job, r.check)
		go e.emitFakeProgress(bgCtx, jobID, r.check)
	}

	r.registry = r.jobRegistry()

	for step := 1; step <= e.maxSteps; step++ {
		if r.check() {
			return r.cancelled(ctx, step-1)
		}
		e.emitActivity(ctx, jobID, models.ActivityStep, fmt.Sprintf("step %d", step))

		outcome, terminal, err := r.runStep(ctx, step)
		if err != nil {
			return nil, err
		}
		if terminal {
			return outcome, nil
		}
	}

	e.emitActivity(ctx, jobID, models.ActivityTimeout, "max steps reached")
	return r.finish(ctx, models.JobTimeout, "", "", e.maxSteps)
}

// runStep runs one iteration of the loop: assemble context, select skills,
// build the system prompt, detect loops, compress, call the LLM, then
// branch on the response shape. Returns (job, true, nil) when
// the turn has reached a terminal state, (nil, false, nil) to continue to
// the next step, or a non-nil error only for unrecoverable store/infra
// failures (never for ordinary LLM/tool errors, which resolve to a failed
// job instead).
func (r *run) runStep(ctx context.Context, step int) (*models.Job, bool, error) {
	e := r.engine
	jobID := r.job.ID

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.TraceJobStep(ctx, jobID, step)
		defer span.End()
	}

	messages, err := e.assembleHistory(ctx, r.job)
	if err != nil {
		return nil, false, err
	}

	allSkills, err := e.skillLoader.Load(ctx)
	if err != nil && e.logger != nil {
		e.logger.Warn(ctx, "skill load failed", "error", err.Error())
	}
	var active map[string]int
	if agentCtx, _ := e.store.GetAgentContext(ctx, r.job.ConversationID); agentCtx != nil {
		active = agentCtx.ActiveSkills
	}
	if e.skillRouter != nil {
		active = e.skillRouter.Route(ctx, messages, allSkills, active)
		_ = e.store.SaveAgentContext(ctx, &models.AgentContext{ConversationID: r.job.ConversationID, ActiveSkills: active})
	}

	system := buildSystemPrompt(e.basePrompt, e.userInstructions, activeSkillEntries(allSkills, active), r.depth, step)
	if r.depth >= 1 && step > 1 && step%e.reflectionInterval == 0 {
		system += "\n\n" + reflectionInjection
		e.emitActivity(ctx, jobID, models.ActivityReflection, "reflecting on plan")
	}
	if detectHistoryLoop(messages) {
		e.emitActivity(ctx, jobID, models.ActivityLoopDetected, "repeated tool call detected")
		system += "\n\n" + antiLoopInstruction()
	}

	if e.contextMgr != nil {
		messages, err = e.contextMgr.Compress(ctx, messages, e.contextWindow, r.depth >= 1)
		if err != nil {
			return nil, false, err
		}
	}

	if r.check() {
		job, err := r.cancelled(ctx, step)
		return job, true, err
	}

	resp, err := e.llmClient.Chat(ctx, e.defaultProfile.Provider, llm.ChatRequest{
		Model:                e.defaultProfile.Model,
		Messages:             messages,
		System:               system,
		Tools:                r.registry.AsSpecs(),
		MaxTokens:            4096,
		EnableThinking:       r.depth >= 1,
		ThinkingBudgetTokens: routing.ThinkingBudgetTokens(r.depth),
		Component:            "agent",
		JobID:                jobID,
		ConversationID:       r.job.ConversationID,
		CancellationCheck:    r.check,
	})
	if err != nil {
		if err == llm.ErrJobCancelled {
			job, cerr := r.cancelled(ctx, step)
			return job, true, cerr
		}
		job, ferr := r.finish(ctx, models.JobFailed, "", err.Error(), step)
		return job, true, ferr
	}

	e.emitActivity(ctx, jobID, models.ActivityLLMResponse, "response received")
	if resp.StopReason == "max_tokens" && len(resp.ToolCalls) > 0 {
		e.emitActivity(ctx, jobID, models.ActivityWarning, "response truncated with pending tool calls")
	}
	if r.check() {
		job, err := r.cancelled(ctx, step)
		return job, true, err
	}

	return r.handleResponse(ctx, step, resp)
}
