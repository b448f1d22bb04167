// Package agentrun implements the agent main loop: a deterministic step
// loop with cancellation checkpoints, wiring together the store, job queue,
// LLM client, tool registry, context manager, conversation summarizer,
// skill router/loader, depth classifier, and delegate/explore executors
// built in the sibling packages. Grounded on an internal/agent-shaped loop
// (a state-machine shape, a partitioned tool executor, response-branch
// handling), generalized from that package's session/jobs abstractions onto
// this runtime's store/queue/models types.
package agentrun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/cortex/internal/contextmgr"
	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/internal/queue"
	"github.com/haasonsaas/cortex/internal/routing"
	"github.com/haasonsaas/cortex/internal/skills"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/subagent"
	"github.com/haasonsaas/cortex/internal/summarizer"
	"github.com/haasonsaas/cortex/internal/tools"
	"github.com/haasonsaas/cortex/pkg/models"
)

// DefaultMaxSteps is the default step bound for a job's loop.
const DefaultMaxSteps = 100

// DefaultContextWindow is the token budget the context manager measures
// usage against when a caller doesn't know the active model's real window.
const DefaultContextWindow = 200_000

// DefaultReflectionInterval is how often (in steps) a depth>=1 turn is
// nudged to reflect on its own plan.
const DefaultReflectionInterval = 5

// SchedulerAPI is the subset of the scheduler the agent loop's dynamically
// registered tools call into. Defined here (rather than importing
// internal/scheduler directly) so agentrun has no dependency on the
// scheduler's CRON machinery — only on the three operations those tools
// need.
type SchedulerAPI interface {
	CreateScheduledJob(conversationID, name, prompt, cronExpr, timezone string, fileNames []string) (string, error)
	UpdateScheduledJob(id string, enabled *bool, cronExpr, prompt *string) error
	ListScheduledJobs() (string, error)
}

// Config carries every dependency and tunable Engine needs. Fields left
// zero get the package defaults.
type Config struct {
	Store     store.Store
	Queue     *queue.JobQueue
	LLMClient *llm.Client

	DefaultProfile llm.Profile
	CheapProfile   llm.Profile

	Registry        *tools.Registry
	ContextMgr      *contextmgr.Manager
	Summarizer      *summarizer.Summarizer
	SkillLoader     *skills.Loader
	SkillRouter     *skills.Router
	DepthClassifier routing.Classifier
	DelegateExec    *subagent.DelegateExecutor
	ExploreExec     *subagent.ExploreExecutor
	Scheduler       SchedulerAPI

	Tracer  *observability.Tracer
	Logger  *observability.Logger
	Metrics *observability.Metrics

	BasePrompt         string
	UserInstructions   string
	MaxSteps           int
	ContextWindow      int
	ReflectionInterval int
}

// Engine runs one job's step loop to completion, pause, or failure.
type Engine struct {
	store     store.Store
	queue     *queue.JobQueue
	llmClient *llm.Client

	defaultProfile llm.Profile
	cheapProfile   llm.Profile

	registry        *tools.Registry
	contextMgr      *contextmgr.Manager
	summarizer      *summarizer.Summarizer
	skillLoader     *skills.Loader
	skillRouter     *skills.Router
	depthClassifier routing.Classifier
	delegateExec    *subagent.DelegateExecutor
	exploreExec     *subagent.ExploreExecutor
	scheduler       SchedulerAPI

	tracer  *observability.Tracer
	logger  *observability.Logger
	metrics *observability.Metrics

	basePrompt         string
	userInstructions   string
	maxSteps           int
	contextWindow      int
	reflectionInterval int

	mu         sync.Mutex
	loopStates map[string]*LoopState
}

// New constructs an Engine from cfg, filling in documented defaults for
// any zero-valued tunable.
func New(cfg Config) *Engine {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	contextWindow := cfg.ContextWindow
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}
	reflectionInterval := cfg.ReflectionInterval
	if reflectionInterval <= 0 {
		reflectionInterval = DefaultReflectionInterval
	}
	return &Engine{
		store:              cfg.Store,
		queue:              cfg.Queue,
		llmClient:          cfg.LLMClient,
		defaultProfile:     cfg.DefaultProfile,
		cheapProfile:       cfg.CheapProfile,
		registry:           cfg.Registry,
		contextMgr:         cfg.ContextMgr,
		summarizer:         cfg.Summarizer,
		skillLoader:        cfg.SkillLoader,
		skillRouter:        cfg.SkillRouter,
		depthClassifier:    cfg.DepthClassifier,
		delegateExec:       cfg.DelegateExec,
		exploreExec:        cfg.ExploreExec,
		scheduler:          cfg.Scheduler,
		tracer:             cfg.Tracer,
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
		basePrompt:         cfg.BasePrompt,
		userInstructions:   cfg.UserInstructions,
		maxSteps:           maxSteps,
		contextWindow:      contextWindow,
		reflectionInterval: reflectionInterval,
		loopStates:         make(map[string]*LoopState),
	}
}

// cancelCheck returns a closure capturing jobID, the same
// cancellation_check callable every cancellation checkpoint and every
// sub-executor call polls.
func (e *Engine) cancelCheck(jobID string) func() bool {
	return func() bool { return e.queue.IsCancelled(jobID) }
}

func (e *Engine) loopState(jobID string) *LoopState {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls, ok := e.loopStates[jobID]
	if !ok {
		ls = NewLoopState()
		e.loopStates[jobID] = ls
	}
	return ls
}

func (e *Engine) dropLoopState(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.loopStates, jobID)
}

// emitActivity appends a JobActivity to the store. Failures to persist an
// activity never fail the turn; activities are a best-effort UI feed.
func (e *Engine) emitActivity(ctx context.Context, jobID string, typ models.JobActivityType, message string, opts ...activityOpt) {
	a := &models.JobActivity{JobID: jobID, Timestamp: time.Now(), Type: typ, Message: message}
	for _, o := range opts {
		o(a)
	}
	_, _ = e.store.AppendActivity(ctx, a)
}

// withDetail, withToolName, and withError let emitActivity calls stay terse
// at the call site.
type activityOpt func(*models.JobActivity)

func withDetail(detail string) activityOpt { return func(a *models.JobActivity) { a.Detail = detail } }
func withToolName(name string) activityOpt {
	return func(a *models.JobActivity) { a.ToolName = name }
}
func withError() activityOpt { return func(a *models.JobActivity) { a.IsError = true } }

func jobErrorf(jobID, format string, args ...any) error {
	return fmt.Errorf("agentrun: job %s: "+format, append([]any{jobID}, args...)...)
}
