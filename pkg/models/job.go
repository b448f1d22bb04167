package models

import "time"

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobPending         JobStatus = "pending"
	JobRunning         JobStatus = "running"
	JobWaitingForInput JobStatus = "waiting_for_input"
	JobCompleted       JobStatus = "completed"
	JobFailed          JobStatus = "failed"
	JobCancelled       JobStatus = "cancelled"
	JobTimeout         JobStatus = "timeout"
)

// Terminal reports whether status is one that ends a Job's lifecycle.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled, JobTimeout:
		return true
	default:
		return false
	}
}

// Job is one unit of agent execution servicing a single user turn or a
// scheduled fire.
type Job struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Message        string     `json:"message"`
	Status         JobStatus  `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Result         string     `json:"result,omitempty"`
	Error          string     `json:"error,omitempty"`
	WorkerID       string     `json:"worker_id,omitempty"`
	Question       string     `json:"question,omitempty"`
	QuestionOptions []string  `json:"question_options,omitempty"`
	UserResponse   string     `json:"user_response,omitempty"`

	// Cooperative flags polled by the agent loop.
	IsCancelled    bool `json:"is_cancelled"`
	IsForceRespond bool `json:"is_force_respond"`

	SkipHistory     bool   `json:"skip_history"`
	Headless        bool   `json:"headless"`
	AskUserDefault  string `json:"ask_user_default,omitempty"`
}

// JobActivityType is an open enum of activity kinds emitted during job
// execution. New values are backward compatible for UI consumers.
type JobActivityType string

const (
	ActivityRouting         JobActivityType = "routing"
	ActivityStep            JobActivityType = "step"
	ActivityThinking        JobActivityType = "thinking"
	ActivityThinkingStream  JobActivityType = "thinking_stream"
	ActivityPlanning        JobActivityType = "planning"
	ActivityReflection      JobActivityType = "reflection"
	ActivityLLMCall         JobActivityType = "llm_call"
	ActivityLLMResponse     JobActivityType = "llm_response"
	ActivityToolCall        JobActivityType = "tool_call"
	ActivityToolResult      JobActivityType = "tool_result"
	ActivityDelegateStart   JobActivityType = "delegate_start"
	ActivityDelegateStep    JobActivityType = "delegate_step"
	ActivityDelegateEnd     JobActivityType = "delegate_end"
	ActivityExploreStart    JobActivityType = "explore_start"
	ActivityExploreStep     JobActivityType = "explore_step"
	ActivityExploreEnd      JobActivityType = "explore_end"
	ActivityWarning         JobActivityType = "warning"
	ActivityError           JobActivityType = "error"
	ActivityLoopDetected    JobActivityType = "loop_detected"
	ActivityLoopRecovery    JobActivityType = "loop_recovery"
	ActivityLoopWarning     JobActivityType = "loop_warning"
	ActivityLoopHardStop    JobActivityType = "loop_hard_stop"
	ActivityToolLimit       JobActivityType = "tool_limit"
	ActivityDuplicateTool   JobActivityType = "duplicate_tool"
	ActivityResearchMode    JobActivityType = "research_mode"
	ActivityCancelled       JobActivityType = "cancelled"
	ActivityComplete        JobActivityType = "complete"
	ActivityProgressStep    JobActivityType = "progress_step"
	ActivityTimeout         JobActivityType = "timeout"
)

// JobActivity is an append-only event emitted during job execution for UI
// consumption. Consumers poll incrementally via ID > since_id.
type JobActivity struct {
	ID        int64           `json:"id"`
	JobID     string          `json:"job_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      JobActivityType `json:"type"`
	Message   string          `json:"message"`
	Detail    string          `json:"detail,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}
