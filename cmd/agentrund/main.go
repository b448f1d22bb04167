// Command agentrund is the single-user agent runtime daemon: it loads a
// YAML config, wires the store/queue/llm/tools/contextmgr/summarizer/
// skills/routing/subagent/scheduler components together into one
// agentrun.Engine, and drives jobs through it either as a one-shot
// "run" or as a long-lived "serve" reading further messages from stdin.
// No HTTP surface is implemented here; that layer is an out-of-scope
// external collaborator that would call the same Engine methods.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/cortex/internal/agentrun"
	"github.com/haasonsaas/cortex/internal/config"
	"github.com/haasonsaas/cortex/internal/contextmgr"
	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/internal/queue"
	"github.com/haasonsaas/cortex/internal/routing"
	"github.com/haasonsaas/cortex/internal/scheduler"
	"github.com/haasonsaas/cortex/internal/skills"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/store/sqlstore"
	"github.com/haasonsaas/cortex/internal/subagent"
	"github.com/haasonsaas/cortex/internal/summarizer"
	"github.com/haasonsaas/cortex/internal/tools"
	"github.com/haasonsaas/cortex/internal/usage"
	"github.com/haasonsaas/cortex/pkg/models"
)

// Version is set at build time.
var Version = "dev"

// dequeueTimeout bounds how long a worker blocks on an empty queue before
// checking its context for cancellation again.
const dequeueTimeout = 2 * time.Second

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "agentrund",
		Short: "single-user AI agent runtime",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "agentrund.yaml", "path to the YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentrund %s\n", Version)
		},
	})

	var workers int
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the scheduler and worker pool, reading further messages from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			env, err := buildEnvironment(cfg)
			if err != nil {
				return fmt.Errorf("build environment: %w", err)
			}
			defer env.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return env.Serve(ctx, workers)
		},
	}
	serveCmd.Flags().IntVar(&workers, "workers", 4, "number of concurrent job workers")
	root.AddCommand(serveCmd)

	runCmd := &cobra.Command{
		Use:   "run [message]",
		Short: "submit a single message, run it to completion or a pause, and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			env, err := buildEnvironment(cfg)
			if err != nil {
				return fmt.Errorf("build environment: %w", err)
			}
			defer env.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return env.RunOnce(ctx, args[0])
		},
	}
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// environment bundles every component New() builds from one loaded config.
// It exists so "serve" and "run" share the identical wiring, rather than
// duplicating constructor calls between the two commands.
type environment struct {
	store     store.Store
	closeFunc func() error

	queue     *queue.JobQueue
	engine    *agentrun.Engine
	scheduler *scheduler.Scheduler
	logger    *observability.Logger
	metrics   *observability.Metrics

	metricsAddr    string
	metricsEnabled bool
	metricsSrv     *http.Server

	shutdownTracer func(context.Context) error
}

func (e *environment) Close() {
	if e.metricsSrv != nil {
		_ = e.metricsSrv.Close()
	}
	if e.shutdownTracer != nil {
		_ = e.shutdownTracer(context.Background())
	}
	if e.closeFunc != nil {
		_ = e.closeFunc()
	}
}

func buildEnvironment(cfg *config.Config) (*environment, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: logFormat(cfg.Logging.Format),
		Output: os.Stderr,
	})

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		Endpoint:       traceEndpoint(cfg),
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	st, closeFunc, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	tracker := usage.NewTracker(st)
	metrics := observability.NewMetrics()
	client, defaultProfile, cheapProfile, routingProfile := llm.NewClientFromConfig(&cfg.LLM, tracker)
	client.WithMetrics(metrics)

	q := queue.New(st, 1024)

	registry := tools.NewRegistry()
	registry.Register(&tools.ReadFileTool{Root: cfg.Workspace.Path})
	registry.Register(&tools.WriteFileTool{Root: cfg.Workspace.Path})
	registry.Register(&tools.EditFileTool{Root: cfg.Workspace.Path})
	registry.Register(&tools.ShellTool{Root: cfg.Workspace.Path, Timeout: 60 * time.Second})
	registry.Register(&tools.ListDirectoryTool{Root: cfg.Workspace.Path})
	registry.Register(&tools.SearchTextTool{Root: cfg.Workspace.Path})
	registry.Register(&tools.RecallFromChatTool{Store: st})
	registry.Register(tools.NewLobsterTool(tools.LobsterConfig{WorkDir: cfg.Workspace.Path}))

	ctxMgr := contextmgr.New(client, cheapProfile)
	summ := summarizer.New(client, cheapProfile, st)
	skillLoader := skills.NewLoader(cfg.Workspace.SkillsDir, st)
	skillRouter := skills.NewRouter(client, cheapProfile)
	depthClassifier := routing.NewDepthClassifier(client, routingProfile)
	delegateExec := subagent.NewDelegateExecutor(client, cheapProfile, registry, "delegate_task")
	exploreExec := subagent.NewExploreExecutor(client, cheapProfile, registry)

	sched := scheduler.New(scheduler.Config{
		Store:           st,
		Queue:           q,
		WorkspaceRoot:   cfg.Workspace.Path,
		FilesRoot:       cfg.Scheduler.FilesDir,
		DefaultTimezone: cfg.Scheduler.DefaultTimezone,
		Logger:          logger,
	})

	engine := agentrun.New(agentrun.Config{
		Store:           st,
		Queue:           q,
		LLMClient:       client,
		DefaultProfile:  defaultProfile,
		CheapProfile:    cheapProfile,
		Registry:        registry,
		ContextMgr:      ctxMgr,
		Summarizer:      summ,
		SkillLoader:     skillLoader,
		SkillRouter:     skillRouter,
		DepthClassifier: depthClassifier,
		DelegateExec:    delegateExec,
		ExploreExec:     exploreExec,
		Scheduler:       sched,
		Tracer:          tracer,
		Logger:          logger,
		Metrics:         metrics,
		BasePrompt:      "You are a helpful local agent with access to the workspace's files and shell.",
	})

	return &environment{
		store:          st,
		closeFunc:      closeFunc,
		queue:          q,
		engine:         engine,
		scheduler:      sched,
		logger:         logger,
		metrics:        metrics,
		metricsAddr:    cfg.Metrics.Addr,
		metricsEnabled: cfg.Metrics.Enabled,
		shutdownTracer: shutdownTracer,
	}, nil
}

func openStore(cfg *config.Config) (store.Store, func() error, error) {
	if cfg.Database.Path == "" || cfg.Database.Path == ":memory:" {
		st := store.NewMemoryStore()
		return st, st.Close, nil
	}
	st, err := sqlstore.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store at %s: %w", cfg.Database.Path, err)
	}
	return st, st.Close, nil
}

func logFormat(configured string) string {
	if configured == "console" {
		return "text"
	}
	return configured
}

func traceEndpoint(cfg *config.Config) string {
	if !cfg.Tracing.Enabled {
		return ""
	}
	return cfg.Tracing.Endpoint
}

// Serve starts the scheduler, launches workers worth of dequeue loops, and
// reads newline-delimited messages from stdin into a single resident
// conversation until ctx is cancelled. A job paused on ask_user prints its
// question and treats the next stdin line as the answer instead of a new
// message.
func (e *environment) Serve(ctx context.Context, workers int) error {
	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if e.metricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		e.metricsSrv = &http.Server{Addr: e.metricsAddr, Handler: mux}
		go func() {
			if err := e.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				e.logger.Error(ctx, "metrics server failed", "error", err.Error())
			}
		}()
		e.logger.Info(ctx, "metrics endpoint listening", "addr", e.metricsAddr)
	}

	for i := 0; i < workers; i++ {
		go e.worker(ctx)
	}

	conv := &models.Conversation{ID: uuid.NewString(), CreatedAt: time.Now()}
	if err := e.store.CreateConversation(ctx, conv); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	e.logger.Info(ctx, "agentrund serving", "workers", workers, "conversation_id", conv.ID)

	scanner := bufio.NewScanner(os.Stdin)
	go func() {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			e.dispatchLine(ctx, conv.ID, line)
		}
	}()

	<-ctx.Done()
	e.logger.Info(ctx, "agentrund shutting down")
	return nil
}

// dispatchLine either answers the conversation's currently paused job or
// starts a new one, depending on whether one is already waiting for input.
func (e *environment) dispatchLine(ctx context.Context, conversationID, line string) {
	if active := e.queue.GetActiveJobForConversation(conversationID); active != nil && active.Status == models.JobWaitingForInput {
		if err := e.queue.SetResponse(ctx, active.ID, line); err != nil {
			e.logger.Error(ctx, "failed to deliver response", "job_id", active.ID, "error", err.Error())
		}
		return
	}

	jobID := uuid.NewString()
	if _, err := e.queue.CreateJob(ctx, jobID, conversationID, line, queue.CreateOptions{}); err != nil {
		e.logger.Error(ctx, "failed to create job", "error", err.Error())
		return
	}
	e.queue.Enqueue(jobID)
}

func (e *environment) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		jobID, err := e.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			continue
		}
		result, err := e.engine.Run(ctx, jobID)
		if err != nil {
			e.logger.Error(ctx, "job run failed", "job_id", jobID, "error", err.Error())
			continue
		}
		switch result.Status {
		case models.JobCompleted:
			fmt.Println(result.Result)
		case models.JobWaitingForInput:
			fmt.Println(result.Question)
		case models.JobFailed:
			e.logger.Error(ctx, "job failed", "job_id", jobID, "error", result.Error)
		case models.JobTimeout:
			e.logger.Error(ctx, "job timed out", "job_id", jobID)
		}
	}
}

// RunOnce submits message as a single job against a fresh conversation and
// blocks until it completes, pauses on ask_user, or fails, printing
// whichever of those three happens.
func (e *environment) RunOnce(ctx context.Context, message string) error {
	conv := &models.Conversation{ID: uuid.NewString(), CreatedAt: time.Now()}
	if err := e.store.CreateConversation(ctx, conv); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	jobID := uuid.NewString()
	if _, err := e.queue.CreateJob(ctx, jobID, conv.ID, message, queue.CreateOptions{Headless: true}); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	e.queue.Enqueue(jobID)

	dequeued, err := e.queue.Dequeue(ctx, dequeueTimeout)
	if err != nil {
		return fmt.Errorf("dequeue: %w", err)
	}

	result, err := e.engine.Run(ctx, dequeued)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	switch result.Status {
	case models.JobCompleted:
		fmt.Println(result.Result)
		return nil
	case models.JobWaitingForInput:
		fmt.Println(result.Question)
		return nil
	case models.JobFailed:
		return fmt.Errorf("job failed: %s", result.Error)
	case models.JobTimeout:
		return fmt.Errorf("job timed out before reaching a final answer")
	default:
		return fmt.Errorf("job ended in unexpected state %s", result.Status)
	}
}
