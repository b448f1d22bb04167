// Package scheduler implements a CRON-driven trigger: on startup it loads
// every enabled ScheduledJob and registers a trigger for it; on each fire it
// creates a fresh conversation, builds the effective prompt, and enqueues a
// job through the same JobQueue a live user turn goes through. Grounded on
// a tick-loop/trigger-registration/Start-Stop/logger-injection shape merged
// with a ScheduledTask/TaskExecution persistence split and worker-id style
// bookkeeping, generalized onto this runtime's ScheduledJob /
// ScheduledJobRun entities and the robfig/cron/v3 expression parser.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/internal/queue"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/pkg/models"
)

// DefaultTimezone is used when a caller doesn't specify one.
const DefaultTimezone = "Europe/Warsaw"

// cronParser accepts exactly the 5 standard CRON fields. A leading
// "CRON_TZ=<zone>" on the expression handed to cron.Cron itself is
// stripped and honored before the remainder reaches this parser.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Config carries Scheduler's dependencies and tunables.
type Config struct {
	Store store.Store
	Queue *queue.JobQueue

	// WorkspaceRoot is where a scheduled job's named files are copied from
	// when create_scheduled_job is given a files list.
	WorkspaceRoot string
	// FilesRoot is the parent directory under which each scheduled job gets
	// its own files subdirectory (FilesRoot/<job-id>/...).
	FilesRoot string
	// DefaultTimezone is used when a caller doesn't specify one.
	DefaultTimezone string

	Logger *observability.Logger
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Scheduler owns one robfig/cron.Cron instance and the store-backed
// ScheduledJob/ScheduledJobRun bookkeeping around it.
type Scheduler struct {
	store store.Store
	queue *queue.JobQueue

	workspaceRoot   string
	filesRoot       string
	defaultTimezone string
	logger          *observability.Logger
	clock           func() time.Time

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

// New constructs a Scheduler. Call Start to load persisted jobs and begin
// firing triggers.
func New(cfg Config) *Scheduler {
	tz := cfg.DefaultTimezone
	if tz == "" {
		tz = DefaultTimezone
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		store:           cfg.Store,
		queue:           cfg.Queue,
		workspaceRoot:   cfg.WorkspaceRoot,
		filesRoot:       cfg.FilesRoot,
		defaultTimezone: tz,
		logger:          cfg.Logger,
		clock:           clock,
		cron:            cron.New(),
		entries:         make(map[string]cron.EntryID),
	}
}

// Start loads every enabled ScheduledJob from the store, registers a CRON
// trigger for each in its own timezone, and begins the cron runner. Calling
// Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	jobs, err := s.store.ListScheduledJobs(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list scheduled jobs: %w", err)
	}
	for _, job := range jobs {
		if !job.IsEnabled {
			continue
		}
		if err := s.register(job); err != nil {
			s.logf(ctx, "scheduled job skipped at startup", "id", job.ID, "error", err)
		}
	}

	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

// register adds a CRON entry for job, replacing any existing entry for the
// same job id.
func (s *Scheduler) register(job *models.ScheduledJob) error {
	tz := job.Timezone
	if tz == "" {
		tz = s.defaultTimezone
	}
	spec := fmt.Sprintf("CRON_TZ=%s %s", tz, job.CronExpression)

	s.mu.Lock()
	if id, ok := s.entries[job.ID]; ok {
		s.cron.Remove(id)
		delete(s.entries, job.ID)
	}
	s.mu.Unlock()

	jobID := job.ID
	entryID, err := s.cron.AddFunc(spec, func() { s.fire(context.Background(), jobID) })
	if err != nil {
		return fmt.Errorf("register trigger: %w", err)
	}

	s.mu.Lock()
	s.entries[job.ID] = entryID
	s.mu.Unlock()
	return nil
}

// unregister removes job's CRON entry, if any.
func (s *Scheduler) unregister(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[jobID]; ok {
		s.cron.Remove(id)
		delete(s.entries, jobID)
	}
}

// computeNextRun evaluates cronExpr/timezone directly against the parser,
// rather than reading cron.Entry.Next: the library only populates Next once
// its run loop has processed an add, which races with a caller that wants
// next_run_at available the moment create/update returns.
func computeNextRun(cronExpr, timezone string, after time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron_expression: %w", err)
	}
	return sched.Next(after.In(loc)), nil
}

// fire creates a conversation and job for scheduledJobID and enqueues it.
func (s *Scheduler) fire(ctx context.Context, scheduledJobID string) {
	job, err := s.store.GetScheduledJob(ctx, scheduledJobID)
	if err != nil {
		s.logf(ctx, "scheduled job fire: lookup failed", "id", scheduledJobID, "error", err)
		return
	}
	if !job.IsEnabled {
		return
	}

	now := s.clock()
	conv := &models.Conversation{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		SchedulerID:    job.ID,
		IsSchedulerRun: true,
		LastMessageAt:  now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		s.logf(ctx, "scheduled job fire: create conversation failed", "id", job.ID, "error", err)
		return
	}

	prompt := s.effectivePrompt(job)
	if _, err := s.store.AppendMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        prompt,
	}); err != nil {
		s.logf(ctx, "scheduled job fire: append prompt failed", "id", job.ID, "error", err)
		return
	}

	jobID := uuid.NewString()
	if _, err := s.queue.CreateJob(ctx, jobID, conv.ID, prompt, queue.CreateOptions{SkipHistory: true}); err != nil {
		s.logf(ctx, "scheduled job fire: create job failed", "id", job.ID, "error", err)
		return
	}
	s.queue.Enqueue(jobID)

	job.LastRunAt = &now
	job.RunCount++
	tz := job.Timezone
	if tz == "" {
		tz = s.defaultTimezone
	}
	if next, err := computeNextRun(job.CronExpression, tz, now); err == nil {
		job.NextRunAt = &next
	}
	if err := s.store.UpdateScheduledJob(ctx, job); err != nil {
		s.logf(ctx, "scheduled job fire: update job failed", "id", job.ID, "error", err)
	}

	run := &models.ScheduledJobRun{
		ScheduledJobID: job.ID,
		JobID:          jobID,
		StartedAt:      now,
		Status:         models.RunPending,
	}
	if err := s.store.AppendScheduledJobRun(ctx, run); err != nil {
		s.logf(ctx, "scheduled job fire: append run failed", "id", job.ID, "error", err)
	}
}

// effectivePrompt appends a files-directory appendix to job.Prompt when one
// is configured.
func (s *Scheduler) effectivePrompt(job *models.ScheduledJob) string {
	if job.FilesDir == "" {
		return job.Prompt
	}
	entries, err := os.ReadDir(job.FilesDir)
	if err != nil || len(entries) == 0 {
		return job.Prompt
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return job.Prompt
	}
	var b strings.Builder
	b.WriteString(job.Prompt)
	b.WriteString("\n\n---\nFiles available for this run (read them from the directory below):\n")
	b.WriteString("Directory: " + job.FilesDir + "\n")
	for _, n := range names {
		b.WriteString("- " + n + "\n")
	}
	return b.String()
}

func (s *Scheduler) logf(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(ctx, msg, args...)
}
