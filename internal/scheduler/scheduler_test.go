package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/cortex/internal/queue"
	"github.com/haasonsaas/cortex/internal/store"
)

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, store.Store, *queue.JobQueue) {
	t.Helper()
	st := store.NewMemoryStore()
	q := queue.New(st, 16)
	filesRoot := t.TempDir()
	workspaceRoot := t.TempDir()
	s := New(Config{
		Store:           st,
		Queue:           q,
		WorkspaceRoot:   workspaceRoot,
		FilesRoot:       filesRoot,
		DefaultTimezone: "UTC",
		Clock:           func() time.Time { return now },
	})
	return s, st, q
}

func TestCreateScheduledJobRejectsBadCron(t *testing.T) {
	s, _, _ := newTestScheduler(t, time.Now())
	if _, err := s.CreateScheduledJob("conv-1", "daily digest", "summarize my day", "not a cron", "", nil); err == nil {
		t.Fatal("expected an error for a malformed cron expression")
	}
	if _, err := s.CreateScheduledJob("conv-1", "daily digest", "summarize my day", "0 9 * *", "", nil); err == nil {
		t.Fatal("expected an error for a 4-field cron expression")
	}
}

func TestCreateScheduledJobPersistsAndComputesNextRun(t *testing.T) {
	s, st, _ := newTestScheduler(t, time.Now())
	id, err := s.CreateScheduledJob("conv-1", "daily digest", "summarize my day", "0 9 * * *", "UTC", nil)
	if err != nil {
		t.Fatalf("CreateScheduledJob: %v", err)
	}

	job, err := st.GetScheduledJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetScheduledJob: %v", err)
	}
	if !job.IsEnabled {
		t.Fatal("expected new job to be enabled")
	}
	if job.NextRunAt == nil {
		t.Fatal("expected NextRunAt to be computed on create")
	}
}

func TestCreateScheduledJobStagesFiles(t *testing.T) {
	s, _, _ := newTestScheduler(t, time.Now())
	if err := os.WriteFile(filepath.Join(s.workspaceRoot, "notes.txt"), []byte("remember this"), 0o644); err != nil {
		t.Fatalf("seed workspace file: %v", err)
	}

	id, err := s.CreateScheduledJob("conv-1", "with files", "read notes.txt", "0 9 * * *", "UTC", []string{"notes.txt"})
	if err != nil {
		t.Fatalf("CreateScheduledJob: %v", err)
	}
	staged := filepath.Join(s.filesRoot, id, "notes.txt")
	data, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("expected staged file at %s: %v", staged, err)
	}
	if string(data) != "remember this" {
		t.Fatalf("unexpected staged contents: %q", data)
	}
}

func TestFireCreatesConversationAndEnqueuesJob(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s, st, q := newTestScheduler(t, now)
	id, err := s.CreateScheduledJob("conv-1", "daily digest", "summarize my day", "0 9 * * *", "UTC", nil)
	if err != nil {
		t.Fatalf("CreateScheduledJob: %v", err)
	}

	s.fire(context.Background(), id)

	jobID, err := q.Dequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("expected a job to be enqueued: %v", err)
	}
	enqueued, err := q.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !enqueued.SkipHistory {
		t.Fatal("expected scheduler-fired job to have SkipHistory set")
	}

	conv, err := st.GetConversation(context.Background(), enqueued.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.SchedulerID != id || !conv.IsSchedulerRun {
		t.Fatalf("expected conversation driven by scheduled job, got %+v", conv)
	}

	job, err := st.GetScheduledJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetScheduledJob: %v", err)
	}
	if job.RunCount != 1 {
		t.Fatalf("expected run_count 1, got %d", job.RunCount)
	}
	if job.LastRunAt == nil || !job.LastRunAt.Equal(now) {
		t.Fatalf("expected LastRunAt %v, got %v", now, job.LastRunAt)
	}

	runs, err := st.ListScheduledJobRuns(context.Background(), id, 10)
	if err != nil {
		t.Fatalf("ListScheduledJobRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].JobID != jobID {
		t.Fatalf("expected one run referencing job %s, got %+v", jobID, runs)
	}
}

func TestFireSkipsDisabledJob(t *testing.T) {
	now := time.Now()
	s, st, q := newTestScheduler(t, now)
	id, err := s.CreateScheduledJob("conv-1", "daily digest", "summarize my day", "0 9 * * *", "UTC", nil)
	if err != nil {
		t.Fatalf("CreateScheduledJob: %v", err)
	}
	falseVal := false
	if err := s.UpdateScheduledJob(id, &falseVal, nil, nil); err != nil {
		t.Fatalf("UpdateScheduledJob: %v", err)
	}

	s.fire(context.Background(), id)

	if _, err := q.Dequeue(context.Background(), 50*time.Millisecond); err != queue.ErrTimeout {
		t.Fatalf("expected no job enqueued for a disabled schedule, got err=%v", err)
	}
	runs, err := st.ListScheduledJobRuns(context.Background(), id, 10)
	if err != nil {
		t.Fatalf("ListScheduledJobRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs for a disabled schedule, got %d", len(runs))
	}
}

func TestDeleteScheduledJobClearsConversationsAndFiles(t *testing.T) {
	now := time.Now()
	s, st, _ := newTestScheduler(t, now)
	if err := os.WriteFile(filepath.Join(s.workspaceRoot, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed workspace file: %v", err)
	}
	id, err := s.CreateScheduledJob("conv-1", "daily digest", "summarize my day", "0 9 * * *", "UTC", []string{"notes.txt"})
	if err != nil {
		t.Fatalf("CreateScheduledJob: %v", err)
	}
	s.fire(context.Background(), id)

	job, err := st.GetScheduledJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetScheduledJob: %v", err)
	}
	filesDir := job.FilesDir

	if err := s.DeleteScheduledJob(context.Background(), id); err != nil {
		t.Fatalf("DeleteScheduledJob: %v", err)
	}

	if _, err := st.GetScheduledJob(context.Background(), id); err == nil {
		t.Fatal("expected scheduled job to be deleted")
	}
	if _, err := os.Stat(filesDir); !os.IsNotExist(err) {
		t.Fatalf("expected files directory to be removed, stat err=%v", err)
	}

	convs, err := st.ListConversations(context.Background(), true)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	for _, c := range convs {
		if c.SchedulerID == id {
			t.Fatalf("expected conversation %s to have scheduler_id cleared", c.ID)
		}
	}
}

func TestUpdateScheduledJobRejectsBadCron(t *testing.T) {
	s, _, _ := newTestScheduler(t, time.Now())
	id, err := s.CreateScheduledJob("conv-1", "daily digest", "summarize my day", "0 9 * * *", "UTC", nil)
	if err != nil {
		t.Fatalf("CreateScheduledJob: %v", err)
	}
	bad := "not a cron"
	if err := s.UpdateScheduledJob(id, nil, &bad, nil); err == nil {
		t.Fatal("expected an error for a malformed cron expression")
	}
}

func TestListScheduledJobsReturnsJSON(t *testing.T) {
	s, _, _ := newTestScheduler(t, time.Now())
	if _, err := s.CreateScheduledJob("conv-1", "daily digest", "summarize my day", "0 9 * * *", "UTC", nil); err != nil {
		t.Fatalf("CreateScheduledJob: %v", err)
	}
	listing, err := s.ListScheduledJobs()
	if err != nil {
		t.Fatalf("ListScheduledJobs: %v", err)
	}
	if listing == "" || listing == "null" {
		t.Fatalf("expected a non-empty JSON listing, got %q", listing)
	}
}
