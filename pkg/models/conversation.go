package models

import "time"

// Conversation is an ordered thread of Messages, possibly forked from another
// conversation and possibly driven by a ScheduledJob.
type Conversation struct {
	ID                    string     `json:"id"`
	CreatedAt             time.Time  `json:"created_at"`
	Preview               string     `json:"preview,omitempty"`
	ForkedFrom            string     `json:"forked_from,omitempty"`
	BranchNumber          int        `json:"branch_number,omitempty"`
	IsArchived            bool       `json:"is_archived"`
	SchedulerID           string     `json:"scheduler_id,omitempty"`
	IsSchedulerRun        bool       `json:"is_scheduler_run"`
	ReadAt                *time.Time `json:"read_at,omitempty"`
	Summary               string     `json:"summary,omitempty"`
	SummaryUpToMessageID  string     `json:"summary_up_to_message_id,omitempty"`
	LastMessageAt         time.Time  `json:"last_message_at,omitempty"`
}

// Unread reports whether the conversation has activity the user has not seen.
func (c *Conversation) Unread() bool {
	if c == nil || c.LastMessageAt.IsZero() {
		return false
	}
	if c.ReadAt == nil {
		return true
	}
	return c.LastMessageAt.After(*c.ReadAt)
}

// AgentContext is the per-conversation map of active skill name to remaining
// TTL steps, upserted every agent turn.
type AgentContext struct {
	ConversationID string         `json:"conversation_id"`
	ActiveSkills   map[string]int `json:"active_skills"`
}

// UsageLog is an append-only record of LLM token usage and cost.
type UsageLog struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Model          string    `json:"model"`
	Provider       string    `json:"provider"`
	PromptTokens   int64     `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD        float64   `json:"cost_usd"`
	Component      string    `json:"component"`
	CreatedAt      time.Time `json:"created_at"`
}

// CustomSkill is a user-defined skill stored in the database rather than on
// disk.
type CustomSkill struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
