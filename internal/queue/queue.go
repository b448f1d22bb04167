// Package queue implements the in-process job queue: a FIFO of pending job
// IDs backed by a durable store, plus the cooperative cancellation,
// force-respond, and ask-user rendezvous primitives the agent loop polls.
// Grounded on a mutex-guarded in-memory map pattern, generalized from
// tool-call jobs to agent turns.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/pkg/models"
)

// CreateOptions carries the optional fields accepted by CreateJob.
type CreateOptions struct {
	Headless       bool
	AskUserDefault string
	SkipHistory    bool
}

// rendezvous is the single-producer, single-consumer channel used to deliver
// a user's reply (or a cancellation sentinel) to a worker blocked in
// WaitForResponse.
type rendezvous struct {
	ch     chan string
	once   sync.Once
}

func newRendezvous() *rendezvous {
	return &rendezvous{ch: make(chan string, 1)}
}

func (r *rendezvous) deliver(v string) {
	r.once.Do(func() { r.ch <- v })
}

// cancelSentinel is sent on a rendezvous channel to unblock a waiter when the
// job is cancelled instead of answered.
const cancelSentinel = "\x00__job_cancelled__"

// ErrCancelled is returned by WaitForResponse when the job was cancelled
// while a worker waited for the user's reply.
var ErrCancelled = fmt.Errorf("queue: job cancelled while waiting for response")

// ErrTimeout is returned by Dequeue and WaitForResponse when no event arrives
// before the deadline.
var ErrTimeout = fmt.Errorf("queue: timed out")

// JobQueue is the FIFO of pending job IDs plus the process-lifetime cache of
// job state.
type JobQueue struct {
	store store.Store

	mu          sync.Mutex
	cache       map[string]*models.Job
	rendezvous  map[string]*rendezvous
	suggestions map[string][]string

	pending chan string
}

// New constructs a JobQueue backed by the given durable store. capacity
// bounds the pending FIFO channel; 1024 is a generous default for a
// single-user runtime.
func New(st store.Store, capacity int) *JobQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &JobQueue{
		store:       st,
		cache:       make(map[string]*models.Job),
		rendezvous:  make(map[string]*rendezvous),
		suggestions: make(map[string][]string),
		pending:     make(chan string, capacity),
	}
}

// CreateJob persists the initial job row and caches it with status pending.
func (q *JobQueue) CreateJob(ctx context.Context, jobID, conversationID, message string, opts CreateOptions) (*models.Job, error) {
	j := &models.Job{
		ID:             jobID,
		ConversationID: conversationID,
		Message:        message,
		Status:         models.JobPending,
		CreatedAt:      time.Now(),
		Headless:       opts.Headless,
		AskUserDefault: opts.AskUserDefault,
		SkipHistory:    opts.SkipHistory,
	}
	if err := q.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	q.mu.Lock()
	q.cache[j.ID] = cloneJob(j)
	q.mu.Unlock()
	return j, nil
}

// Enqueue pushes job_id onto the pending FIFO. It never blocks: the channel
// is sized generously and a full queue indicates a configuration error
// rather than a condition to silently drop work.
func (q *JobQueue) Enqueue(jobID string) {
	q.pending <- jobID
}

// Dequeue blocks until a job is available or timeout elapses.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case id := <-q.pending:
		return id, nil
	case <-timer.C:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// SetStatus updates the cached job's status and, on transition to a terminal
// status or to running, durably persists it.
func (q *JobQueue) SetStatus(ctx context.Context, jobID string, status models.JobStatus, mutate func(*models.Job)) error {
	q.mu.Lock()
	j, ok := q.cache[jobID]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("queue: unknown job %q", jobID)
	}
	j.Status = status
	now := time.Now()
	switch status {
	case models.JobRunning:
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	case models.JobCompleted, models.JobFailed, models.JobCancelled, models.JobTimeout:
		j.CompletedAt = &now
	}
	if mutate != nil {
		mutate(j)
	}
	persisted := cloneJob(j)
	q.mu.Unlock()

	if status == models.JobRunning || status.Terminal() {
		return q.store.UpdateJob(ctx, persisted)
	}
	return nil
}

// GetJob returns the cached job, falling back to the durable store for
// historical jobs no longer cached.
func (q *JobQueue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	q.mu.Lock()
	if j, ok := q.cache[jobID]; ok {
		q.mu.Unlock()
		return cloneJob(j), nil
	}
	q.mu.Unlock()
	return q.store.GetJob(ctx, jobID)
}

// SetQuestion transitions running -> waiting_for_input, stores the question
// and its options, and creates a fresh rendezvous primitive for the job.
func (q *JobQueue) SetQuestion(ctx context.Context, jobID, question string, options []string) error {
	q.mu.Lock()
	q.rendezvous[jobID] = newRendezvous()
	q.mu.Unlock()
	return q.SetStatus(ctx, jobID, models.JobWaitingForInput, func(j *models.Job) {
		j.Question = question
		j.QuestionOptions = options
	})
}

// WaitForResponse blocks until the job's rendezvous is signaled (by
// SetResponse or Cancel) or timeout elapses, and returns the captured
// response text.
func (q *JobQueue) WaitForResponse(ctx context.Context, jobID string, timeout time.Duration) (string, error) {
	q.mu.Lock()
	r, ok := q.rendezvous[jobID]
	q.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("queue: no pending question for job %q", jobID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-r.ch:
		if v == cancelSentinel {
			return "", ErrCancelled
		}
		return v, nil
	case <-timer.C:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// SetResponse records the user's reply, flips status back to running, and
// signals the rendezvous so a blocked worker resumes.
func (q *JobQueue) SetResponse(ctx context.Context, jobID, text string) error {
	q.mu.Lock()
	r, ok := q.rendezvous[jobID]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("queue: no pending question for job %q", jobID)
	}
	if err := q.SetStatus(ctx, jobID, models.JobRunning, func(j *models.Job) {
		j.UserResponse = text
	}); err != nil {
		return err
	}
	r.deliver(text)
	return nil
}

// Cancel sets is_cancelled=true, observed cooperatively by the agent loop's
// checkpoints. If a worker is blocked waiting for a user response, it is
// unblocked with ErrCancelled.
func (q *JobQueue) Cancel(jobID string) {
	q.mu.Lock()
	if j, ok := q.cache[jobID]; ok {
		j.IsCancelled = true
	}
	r, ok := q.rendezvous[jobID]
	q.mu.Unlock()
	if ok {
		r.deliver(cancelSentinel)
	}
}

// IsCancelled reports the cooperative cancellation flag for jobID.
func (q *JobQueue) IsCancelled(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.cache[jobID]
	return ok && j.IsCancelled
}

// ForceRespond sets is_force_respond=true; the agent loop must stop calling
// tools and produce a user-facing reply on its next checkpoint.
func (q *JobQueue) ForceRespond(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.cache[jobID]; ok {
		j.IsForceRespond = true
	}
}

// IsForceRespond reports the cooperative force-respond flag for jobID.
func (q *JobQueue) IsForceRespond(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.cache[jobID]
	return ok && j.IsForceRespond
}

// GetActiveJobForConversation returns the first cached job for
// conversationID whose status is pending, running, or waiting_for_input.
func (q *JobQueue) GetActiveJobForConversation(conversationID string) *models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.cache {
		if j.ConversationID != conversationID {
			continue
		}
		switch j.Status {
		case models.JobPending, models.JobRunning, models.JobWaitingForInput:
			return cloneJob(j)
		}
	}
	return nil
}

// SetSuggestions stores an ephemeral per-job list of follow-up suggestions.
func (q *JobQueue) SetSuggestions(jobID string, suggestions []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.suggestions[jobID] = suggestions
}

// GetSuggestions returns the ephemeral suggestions recorded for jobID, if any.
func (q *JobQueue) GetSuggestions(jobID string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.suggestions[jobID]
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.QuestionOptions != nil {
		c.QuestionOptions = append([]string(nil), j.QuestionOptions...)
	}
	return &c
}
