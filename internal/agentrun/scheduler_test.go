package agentrun

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/internal/queue"
	"github.com/haasonsaas/cortex/internal/scheduler"
	"github.com/haasonsaas/cortex/internal/skills"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/tools"
	"github.com/haasonsaas/cortex/internal/usage"
	"github.com/haasonsaas/cortex/pkg/models"
)

// TestRunPicksUpSchedulerFiredJob exercises the scheduler and the agent
// loop together: a CRON trigger fires a job the same way a live user turn
// would, and the step loop runs it to completion from nothing but what the
// scheduler persisted.
func TestRunPicksUpSchedulerFiredJob(t *testing.T) {
	st := store.NewMemoryStore()
	q := queue.New(st, 16)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sched := scheduler.New(scheduler.Config{
		Store:           st,
		Queue:           q,
		WorkspaceRoot:   t.TempDir(),
		FilesRoot:       t.TempDir(),
		DefaultTimezone: "UTC",
		Clock:           func() time.Time { return now },
	})

	id, err := sched.CreateScheduledJob("", "daily digest", "summarize overnight activity", "0 9 * * *", "UTC", nil)
	if err != nil {
		t.Fatalf("CreateScheduledJob: %v", err)
	}
	if err := sched.TriggerNow(context.Background(), id); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	jobID, err := q.Dequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("expected the scheduler to enqueue a job: %v", err)
	}
	job, err := q.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !job.SkipHistory {
		t.Fatal("expected a scheduler-fired job to skip history summarization")
	}

	client := llm.NewClient(usage.NewTracker(st), &scriptedProvider{
		responses: []llm.ChatResponse{{Content: "overnight: nothing urgent", StopReason: "end_turn"}},
	})
	eng := New(Config{
		Store:           st,
		Queue:           q,
		LLMClient:       client,
		DefaultProfile:  testProfile(),
		CheapProfile:    llm.Profile{Provider: "unconfigured", Model: "n/a"},
		Registry:        tools.NewRegistry(),
		SkillLoader:     skills.NewLoader("", st),
		DepthClassifier: fixedDepth{depth: 0},
		BasePrompt:      "You are a helpful local agent.",
	})

	result, err := eng.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != models.JobCompleted {
		t.Fatalf("expected completed, got %s (error=%s)", result.Status, result.Error)
	}
	if result.Result != "overnight: nothing urgent" {
		t.Fatalf("unexpected result: %q", result.Result)
	}

	conv, err := st.GetConversation(context.Background(), job.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.SchedulerID != id || !conv.IsSchedulerRun {
		t.Fatalf("expected conversation linked to the scheduled job, got %+v", conv)
	}
}
