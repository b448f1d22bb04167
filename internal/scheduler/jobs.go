package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/cortex/pkg/models"
)

// CreateScheduledJob implements agentrun.SchedulerAPI: validates the CRON
// expression, computes next_run_at, optionally stages named workspace files
// into a per-job directory, persists the row, and registers its trigger.
func (s *Scheduler) CreateScheduledJob(conversationID, name, prompt, cronExpr, timezone string, fileNames []string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)
	if len(strings.Fields(cronExpr)) != 5 {
		return "", fmt.Errorf("scheduler: cron_expression must have 5 fields, got %q", cronExpr)
	}
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return "", fmt.Errorf("scheduler: invalid cron_expression: %w", err)
	}
	if timezone == "" {
		timezone = s.defaultTimezone
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return "", fmt.Errorf("scheduler: invalid timezone %q: %w", timezone, err)
	}

	ctx := context.Background()
	id := uuid.NewString()

	var filesDir string
	if len(fileNames) > 0 {
		var err error
		filesDir, err = s.stageFiles(id, fileNames)
		if err != nil {
			return "", err
		}
	}

	now := s.clock()
	next, err := computeNextRun(cronExpr, timezone, now)
	if err != nil {
		return "", fmt.Errorf("scheduler: %w", err)
	}
	job := &models.ScheduledJob{
		ID:             id,
		ConversationID: conversationID,
		Name:           name,
		Prompt:         prompt,
		CronExpression: cronExpr,
		Timezone:       timezone,
		IsEnabled:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
		NextRunAt:      &next,
		FilesDir:       filesDir,
	}

	if err := s.store.CreateScheduledJob(ctx, job); err != nil {
		return "", fmt.Errorf("scheduler: persist job: %w", err)
	}
	if err := s.register(job); err != nil {
		return "", fmt.Errorf("scheduler: register trigger: %w", err)
	}
	return job.ID, nil
}

// stageFiles copies the named files out of WorkspaceRoot into
// FilesRoot/<id>/, so a later fire can still read them even if the
// workspace changes underneath the job.
func (s *Scheduler) stageFiles(id string, fileNames []string) (string, error) {
	if s.filesRoot == "" {
		return "", fmt.Errorf("scheduler: files support is not configured")
	}
	dir := filepath.Join(s.filesRoot, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("scheduler: create files directory: %w", err)
	}
	for _, name := range fileNames {
		name = filepath.Clean(name)
		if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return "", fmt.Errorf("scheduler: invalid file name %q", name)
		}
		src := filepath.Join(s.workspaceRoot, name)
		data, err := os.ReadFile(src)
		if err != nil {
			return "", fmt.Errorf("scheduler: read %q: %w", name, err)
		}
		dst := filepath.Join(dir, filepath.Base(name))
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return "", fmt.Errorf("scheduler: stage %q: %w", name, err)
		}
	}
	return dir, nil
}

// UpdateScheduledJob implements agentrun.SchedulerAPI: toggles enablement
// and/or edits the CRON expression or prompt, re-registering the trigger
// when enablement or schedule changes.
func (s *Scheduler) UpdateScheduledJob(id string, enabled *bool, cronExpr, prompt *string) error {
	ctx := context.Background()
	job, err := s.store.GetScheduledJob(ctx, id)
	if err != nil {
		return fmt.Errorf("scheduler: get job: %w", err)
	}

	rescheduled := false
	if cronExpr != nil {
		expr := strings.TrimSpace(*cronExpr)
		if len(strings.Fields(expr)) != 5 {
			return fmt.Errorf("scheduler: cron_expression must have 5 fields, got %q", expr)
		}
		if _, err := cronParser.Parse(expr); err != nil {
			return fmt.Errorf("scheduler: invalid cron_expression: %w", err)
		}
		job.CronExpression = expr
		rescheduled = true
	}
	if prompt != nil {
		job.Prompt = *prompt
	}
	wasEnabled := job.IsEnabled
	if enabled != nil {
		job.IsEnabled = *enabled
	}
	job.UpdatedAt = s.clock()

	if err := s.store.UpdateScheduledJob(ctx, job); err != nil {
		return fmt.Errorf("scheduler: persist update: %w", err)
	}

	switch {
	case job.IsEnabled && (rescheduled || !wasEnabled):
		if err := s.register(job); err != nil {
			return fmt.Errorf("scheduler: re-register trigger: %w", err)
		}
		tz := job.Timezone
		if tz == "" {
			tz = s.defaultTimezone
		}
		if next, err := computeNextRun(job.CronExpression, tz, s.clock()); err == nil {
			job.NextRunAt = &next
			_ = s.store.UpdateScheduledJob(ctx, job)
		}
	case !job.IsEnabled && wasEnabled:
		s.unregister(job.ID)
	}
	return nil
}

// ListScheduledJobs implements agentrun.SchedulerAPI, returning a JSON
// listing of every persisted ScheduledJob.
func (s *Scheduler) ListScheduledJobs() (string, error) {
	jobs, err := s.store.ListScheduledJobs(context.Background())
	if err != nil {
		return "", fmt.Errorf("scheduler: list jobs: %w", err)
	}
	payload, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("scheduler: encode jobs: %w", err)
	}
	return string(payload), nil
}

// DeleteScheduledJob removes the trigger, clears scheduler_id off any
// conversations it drove, removes the staged files directory, and deletes
// the row.
func (s *Scheduler) DeleteScheduledJob(ctx context.Context, id string) error {
	job, err := s.store.GetScheduledJob(ctx, id)
	if err != nil {
		return fmt.Errorf("scheduler: get job: %w", err)
	}

	s.unregister(id)

	convs, err := s.store.ListConversations(ctx, true)
	if err != nil {
		return fmt.Errorf("scheduler: list conversations: %w", err)
	}
	for _, c := range convs {
		if c.SchedulerID != id {
			continue
		}
		c.SchedulerID = ""
		if err := s.store.UpdateConversation(ctx, c); err != nil {
			return fmt.Errorf("scheduler: clear conversation %s: %w", c.ID, err)
		}
	}

	if job.FilesDir != "" {
		if err := os.RemoveAll(job.FilesDir); err != nil {
			return fmt.Errorf("scheduler: remove files directory: %w", err)
		}
	}

	return s.store.DeleteScheduledJob(ctx, id)
}

// TriggerNow fires job id immediately, independent of its CRON schedule.
func (s *Scheduler) TriggerNow(ctx context.Context, id string) error {
	if _, err := s.store.GetScheduledJob(ctx, id); err != nil {
		return fmt.Errorf("scheduler: get job: %w", err)
	}
	s.fire(ctx, id)
	return nil
}

// ListRuns returns recent ScheduledJobRun rows for id.
func (s *Scheduler) ListRuns(ctx context.Context, id string, limit int) ([]*models.ScheduledJobRun, error) {
	return s.store.ListScheduledJobRuns(ctx, id, limit)
}
