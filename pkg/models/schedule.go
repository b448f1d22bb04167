package models

import "time"

// ScheduledJob is a CRON-driven trigger that creates a fresh conversation and
// enqueues a Job each time it fires.
type ScheduledJob struct {
	ID                  string     `json:"id"`
	ConversationID      string     `json:"conversation_id"` // source conversation it was created from
	Name                string     `json:"name"`
	Prompt              string     `json:"prompt"`
	CronExpression      string     `json:"cron_expression"`
	ScheduleDescription string     `json:"schedule_description,omitempty"`
	Timezone            string     `json:"timezone"`
	IsEnabled           bool       `json:"is_enabled"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	NextRunAt           *time.Time `json:"next_run_at,omitempty"`
	RunCount            int64      `json:"run_count"`
	ContextJSON         string     `json:"context_json,omitempty"`
	FilesDir            string     `json:"files_dir,omitempty"`
}

// ScheduledJobRunStatus mirrors the status of the Job the run created.
type ScheduledJobRunStatus string

const (
	RunPending   ScheduledJobRunStatus = "pending"
	RunRunning   ScheduledJobRunStatus = "running"
	RunSucceeded ScheduledJobRunStatus = "succeeded"
	RunFailed    ScheduledJobRunStatus = "failed"
)

// ScheduledJobRun records one fire of a ScheduledJob.
type ScheduledJobRun struct {
	ID             int64                 `json:"id"`
	ScheduledJobID string                `json:"scheduled_job_id"`
	JobID          string                `json:"job_id"`
	StartedAt      time.Time             `json:"started_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	Status         ScheduledJobRunStatus `json:"status"`
	ResultPreview  string                `json:"result_preview,omitempty"`
}
