// Package store provides the durable mapping from entity IDs to records:
// conversations, messages, jobs, job activities, scheduled jobs, scheduled
// runs, agent context, usage log, custom skills, and key-value settings. It
// is grounded on the dual in-memory/durable split of a storage-and-jobs
// package pair, generalized to the full entity set this runtime persists.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/cortex/pkg/models"
)

// ErrNotFound is returned when a lookup by ID finds no record.
var ErrNotFound = errors.New("store: not found")

// ErrConstraint is returned when a write would violate a store invariant
// (e.g. forking past a missing cutoff message, deleting a conversation that
// does not exist). Callers map it to an appropriate external error.
var ErrConstraint = errors.New("store: constraint violation")

// Store is the durable persistence surface consumed by the queue, the agent
// loop, the scheduler, and the context manager. Every method is synchronous;
// implementations serialize concurrent writers with a single-writer mutex
// while allowing concurrent reads.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, c *models.Conversation) error
	DeleteConversation(ctx context.Context, id string) error
	ListConversations(ctx context.Context, includeArchived bool) ([]*models.Conversation, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	ForkConversation(ctx context.Context, sourceID, upToMessageID string) (*models.Conversation, error)

	// Messages
	AppendMessage(ctx context.Context, m *models.Message) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)
	DeleteMessagesFrom(ctx context.Context, conversationID, messageID string) error
	// GetConversationHistory returns messages in provider-neutral form with
	// intelligent compression applied to the older portion of history; see
	// CompressionOptions.
	GetConversationHistory(ctx context.Context, conversationID string, opts CompressionOptions) ([]*models.Message, error)

	// Jobs
	CreateJob(ctx context.Context, j *models.Job) error
	UpdateJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobsByConversation(ctx context.Context, conversationID string) ([]*models.Job, error)

	// JobActivities
	AppendActivity(ctx context.Context, a *models.JobActivity) (*models.JobActivity, error)
	ListActivitiesSince(ctx context.Context, jobID string, sinceID int64) ([]*models.JobActivity, error)

	// ScheduledJobs
	CreateScheduledJob(ctx context.Context, s *models.ScheduledJob) error
	UpdateScheduledJob(ctx context.Context, s *models.ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*models.ScheduledJob, error)
	ListScheduledJobs(ctx context.Context) ([]*models.ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error
	AppendScheduledJobRun(ctx context.Context, r *models.ScheduledJobRun) error
	ListScheduledJobRuns(ctx context.Context, scheduledJobID string, limit int) ([]*models.ScheduledJobRun, error)

	// AgentContext (active-skill TTL map per conversation)
	GetAgentContext(ctx context.Context, conversationID string) (*models.AgentContext, error)
	SaveAgentContext(ctx context.Context, c *models.AgentContext) error

	// Conversation summary
	SaveConversationSummary(ctx context.Context, conversationID, summary, upToMessageID string) error

	// UsageLog
	AppendUsage(ctx context.Context, u *models.UsageLog) error
	GetConversationCost(ctx context.Context, conversationID string) (float64, error)

	// CustomSkills
	ListCustomSkills(ctx context.Context) ([]*models.CustomSkill, error)
	SaveCustomSkill(ctx context.Context, s *models.CustomSkill) error

	// Settings (key-value)
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}

// CompressionOptions configures GetConversationHistory.
type CompressionOptions struct {
	// CompressOld enables compression of messages before the safe split
	// point. Defaults to true semantics when zero-valued callers pass this
	// explicitly via NewCompressionOptions.
	CompressOld bool
	// RecentExchanges is N: the number of trailing non-internal user turns
	// kept as the "recent" (lightly-truncated) tail.
	RecentExchanges int
	// Limit caps the number of most-recent messages loaded before
	// compression is applied; 0 means no cap.
	Limit int
}

// DefaultCompressionOptions returns the default recent_exchanges window.
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{CompressOld: true, RecentExchanges: 4}
}

// CompressHistory exposes compressHistory to other packages in this module
// (sqlstore in particular) so every Store implementation shares identical
// compression semantics without duplicating the pairing-invariant logic.
func CompressHistory(messages []*models.Message, opts CompressionOptions) []*models.Message {
	return compressHistory(messages, opts)
}

// DefaultRecentExchanges is the default trailing-user-turn count both this
// package's own compression and internal/contextmgr's LLM-driven
// compression use when locating a safe split point.
const DefaultRecentExchanges = 4

// SafeSplitIndex exposes safeSplitIndex to internal/contextmgr, which needs
// the same never-split-a-tool-pairing boundary search this package uses,
// but over a caller-assembled slice rather than a freshly loaded one.
func SafeSplitIndex(messages []*models.Message, recentExchanges int) (int, bool) {
	return safeSplitIndex(messages, recentExchanges)
}

// PairingHolds exposes pairingHolds so callers assembling their own message
// slices (internal/contextmgr's post-compression reassembly) can verify the
// tool-call/tool-result invariant before committing to a result.
func PairingHolds(messages []*models.Message) bool {
	return pairingHolds(messages)
}
