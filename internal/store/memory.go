package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/cortex/pkg/models"
)

// MemoryStore is an in-process, mutex-guarded Store implementation. It backs
// unit tests and can back a single-process deployment that does not need
// durability across restarts, mirroring the role of an in-memory job store
// and in-memory storage backend pair.
type MemoryStore struct {
	mu sync.Mutex

	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message // conversationID -> ordered messages
	nextMsgID     map[string]int64

	jobs          map[string]*models.Job
	activities    map[string][]*models.JobActivity // jobID -> ordered activities
	nextActivity  map[string]int64

	scheduledJobs map[string]*models.ScheduledJob
	scheduledRuns map[string][]*models.ScheduledJobRun
	nextRunID     int64

	agentContext map[string]*models.AgentContext
	usage        []*models.UsageLog
	customSkills map[string]*models.CustomSkill
	settings     map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		nextMsgID:     make(map[string]int64),
		jobs:          make(map[string]*models.Job),
		activities:    make(map[string][]*models.JobActivity),
		nextActivity:  make(map[string]int64),
		scheduledJobs: make(map[string]*models.ScheduledJob),
		scheduledRuns: make(map[string][]*models.ScheduledJobRun),
		agentContext:  make(map[string]*models.AgentContext),
		customSkills:  make(map[string]*models.CustomSkill),
		settings:      make(map[string]string),
	}
}

func (s *MemoryStore) Close() error { return nil }

// ---- Conversations ----

func (s *MemoryStore) CreateConversation(_ context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	clone := *c
	s.conversations[c.ID] = &clone
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *MemoryStore) UpdateConversation(_ context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; !ok {
		return ErrNotFound
	}
	clone := *c
	s.conversations[c.ID] = &clone
	return nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	delete(s.nextMsgID, id)
	delete(s.agentContext, id)
	for jobID, j := range s.jobs {
		if j.ConversationID == id {
			delete(s.jobs, jobID)
			delete(s.activities, jobID)
			delete(s.nextActivity, jobID)
		}
	}
	for sid, sched := range s.scheduledJobs {
		if sched.ConversationID == id {
			delete(s.scheduledJobs, sid)
			delete(s.scheduledRuns, sid)
		}
	}
	// Any conversation forked from or scheduled by this one loses the
	// backreference rather than cascading further: the delete cascades to
	// messages, activities, jobs, scheduled jobs, and agent context for the
	// deleted id only.
	for _, other := range s.conversations {
		if other.SchedulerID == id {
			other.SchedulerID = ""
		}
	}
	return nil
}

func (s *MemoryStore) ListConversations(_ context.Context, includeArchived bool) ([]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if c.IsArchived && !includeArchived {
			continue
		}
		clone := *c
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	if c.ReadAt == nil || at.After(*c.ReadAt) {
		c.ReadAt = &at
	}
	return nil
}

// ForkConversation atomically creates a new conversation whose
// forked_from chain depth determines branch_number, copies messages with
// id <= cutoff, and copies the agent-context row.
func (s *MemoryStore) ForkConversation(_ context.Context, sourceID, upToMessageID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.conversations[sourceID]
	if !ok {
		return nil, ErrNotFound
	}
	cutoff, err := strconv.ParseInt(upToMessageID, 10, 64)
	if err != nil {
		return nil, ErrConstraint
	}

	fork := &models.Conversation{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now(),
		ForkedFrom:   sourceID,
		BranchNumber: src.BranchNumber + 1,
	}
	s.conversations[fork.ID] = fork

	var copied []*models.Message
	for _, m := range s.messages[sourceID] {
		id, convErr := strconv.ParseInt(m.ID, 10, 64)
		if convErr != nil || id > cutoff {
			continue
		}
		clone := *m
		clone.ConversationID = fork.ID
		copied = append(copied, &clone)
	}
	s.messages[fork.ID] = copied
	s.nextMsgID[fork.ID] = s.nextMsgID[sourceID]

	if ctx, ok := s.agentContext[sourceID]; ok {
		cloneCtx := &models.AgentContext{ConversationID: fork.ID, ActiveSkills: make(map[string]int, len(ctx.ActiveSkills))}
		for k, v := range ctx.ActiveSkills {
			cloneCtx.ActiveSkills[k] = v
		}
		s.agentContext[fork.ID] = cloneCtx
	}

	clone := *fork
	return &clone, nil
}

// ---- Messages ----

func (s *MemoryStore) AppendMessage(_ context.Context, m *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[m.ConversationID]; !ok {
		return nil, ErrConstraint
	}
	s.nextMsgID[m.ConversationID]++
	clone := *m
	clone.ID = strconv.FormatInt(s.nextMsgID[m.ConversationID], 10)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], &clone)

	if conv := s.conversations[m.ConversationID]; conv != nil {
		conv.LastMessageAt = clone.CreatedAt
	}

	out := clone
	return &out, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string, limit int) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*models.Message, len(all))
	for i, m := range all {
		clone := *m
		out[i] = &clone
	}
	return out, nil
}

func (s *MemoryStore) CountMessages(_ context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[conversationID]), nil
}

func (s *MemoryStore) DeleteMessagesFrom(_ context.Context, conversationID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return ErrConstraint
	}
	all := s.messages[conversationID]
	kept := make([]*models.Message, 0, len(all))
	for _, m := range all {
		id, convErr := strconv.ParseInt(m.ID, 10, 64)
		if convErr == nil && id >= cutoff {
			continue
		}
		kept = append(kept, m)
	}
	s.messages[conversationID] = kept
	return nil
}

func (s *MemoryStore) GetConversationHistory(ctx context.Context, conversationID string, opts CompressionOptions) ([]*models.Message, error) {
	all, err := s.ListMessages(ctx, conversationID, opts.Limit)
	if err != nil {
		return nil, err
	}
	return compressHistory(all, opts), nil
}

// ---- Jobs ----

func (s *MemoryStore) CreateJob(_ context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	if j.Status == "" {
		j.Status = models.JobPending
	}
	clone := *j
	s.jobs[j.ID] = &clone
	return nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return ErrNotFound
	}
	clone := *j
	s.jobs[j.ID] = &clone
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *j
	return &clone, nil
}

func (s *MemoryStore) ListJobsByConversation(_ context.Context, conversationID string) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, j := range s.jobs {
		if j.ConversationID == conversationID {
			clone := *j
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- Activities ----

func (s *MemoryStore) AppendActivity(_ context.Context, a *models.JobActivity) (*models.JobActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextActivity[a.JobID]++
	clone := *a
	clone.ID = s.nextActivity[a.JobID]
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now()
	}
	s.activities[a.JobID] = append(s.activities[a.JobID], &clone)
	out := clone
	return &out, nil
}

func (s *MemoryStore) ListActivitiesSince(_ context.Context, jobID string, sinceID int64) ([]*models.JobActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.JobActivity
	for _, a := range s.activities[jobID] {
		if a.ID > sinceID {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}

// ---- Scheduled jobs ----

func (s *MemoryStore) CreateScheduledJob(_ context.Context, j *models.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	clone := *j
	s.scheduledJobs[j.ID] = &clone
	return nil
}

func (s *MemoryStore) UpdateScheduledJob(_ context.Context, j *models.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scheduledJobs[j.ID]; !ok {
		return ErrNotFound
	}
	j.UpdatedAt = time.Now()
	clone := *j
	s.scheduledJobs[j.ID] = &clone
	return nil
}

func (s *MemoryStore) GetScheduledJob(_ context.Context, id string) (*models.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.scheduledJobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *j
	return &clone, nil
}

func (s *MemoryStore) ListScheduledJobs(_ context.Context) ([]*models.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ScheduledJob, 0, len(s.scheduledJobs))
	for _, j := range s.scheduledJobs {
		clone := *j
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteScheduledJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scheduledJobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.scheduledJobs, id)
	delete(s.scheduledRuns, id)
	for _, c := range s.conversations {
		if c.SchedulerID == id {
			c.SchedulerID = ""
		}
	}
	return nil
}

func (s *MemoryStore) AppendScheduledJobRun(_ context.Context, r *models.ScheduledJobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunID++
	clone := *r
	clone.ID = s.nextRunID
	s.scheduledRuns[r.ScheduledJobID] = append(s.scheduledRuns[r.ScheduledJobID], &clone)
	return nil
}

func (s *MemoryStore) ListScheduledJobRuns(_ context.Context, scheduledJobID string, limit int) ([]*models.ScheduledJobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.scheduledRuns[scheduledJobID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*models.ScheduledJobRun, len(all))
	for i, r := range all {
		clone := *r
		out[i] = &clone
	}
	return out, nil
}

// ---- Agent context ----

func (s *MemoryStore) GetAgentContext(_ context.Context, conversationID string) (*models.AgentContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.agentContext[conversationID]
	if !ok {
		return &models.AgentContext{ConversationID: conversationID, ActiveSkills: map[string]int{}}, nil
	}
	clone := &models.AgentContext{ConversationID: c.ConversationID, ActiveSkills: make(map[string]int, len(c.ActiveSkills))}
	for k, v := range c.ActiveSkills {
		clone.ActiveSkills[k] = v
	}
	return clone, nil
}

func (s *MemoryStore) SaveAgentContext(_ context.Context, c *models.AgentContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := &models.AgentContext{ConversationID: c.ConversationID, ActiveSkills: make(map[string]int, len(c.ActiveSkills))}
	for k, v := range c.ActiveSkills {
		clone.ActiveSkills[k] = v
	}
	s.agentContext[c.ConversationID] = clone
	return nil
}

// ---- Summary ----

func (s *MemoryStore) SaveConversationSummary(_ context.Context, conversationID, summary, upToMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.Summary = summary
	c.SummaryUpToMessageID = upToMessageID
	return nil
}

// ---- Usage ----

func (s *MemoryStore) AppendUsage(_ context.Context, u *models.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	clone := *u
	s.usage = append(s.usage, &clone)
	return nil
}

func (s *MemoryStore) GetConversationCost(_ context.Context, conversationID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, u := range s.usage {
		if u.ConversationID == conversationID {
			total += u.CostUSD
		}
	}
	return total, nil
}

// ---- Custom skills ----

func (s *MemoryStore) ListCustomSkills(_ context.Context) ([]*models.CustomSkill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.CustomSkill, 0, len(s.customSkills))
	for _, sk := range s.customSkills {
		clone := *sk
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) SaveCustomSkill(_ context.Context, sk *models.CustomSkill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.customSkills[sk.Name]; ok {
		sk.CreatedAt = existing.CreatedAt
	} else {
		sk.CreatedAt = now
	}
	sk.UpdatedAt = now
	clone := *sk
	s.customSkills[sk.Name] = &clone
	return nil
}

// ---- Settings ----

func (s *MemoryStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}
