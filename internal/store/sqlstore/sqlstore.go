// Package sqlstore is the durable, file-backed store.Store implementation.
// It persists through database/sql against modernc.org/sqlite (CGo-free)
// and applies schema migrations with golang-migrate/migrate/v4, mirroring a
// migration-driven bootstrap pattern.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the sqlite-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and applies
// any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer sqlite connection

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// ---- Conversations ----

func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO conversations
		(id, created_at, preview, forked_from, branch_number, is_archived, scheduler_id, is_scheduler_run, read_at, summary, summary_up_to_message_id, last_message_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.CreatedAt, c.Preview, nullStr(c.ForkedFrom), c.BranchNumber, boolInt(c.IsArchived),
		nullStr(c.SchedulerID), boolInt(c.IsSchedulerRun), nullTime(c.ReadAt), c.Summary,
		c.SummaryUpToMessageID, nullTimeVal(c.LastMessageAt))
	return err
}

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, preview, forked_from, branch_number, is_archived,
		scheduler_id, is_scheduler_run, read_at, summary, summary_up_to_message_id, last_message_at
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return c, err
}

func (s *Store) UpdateConversation(ctx context.Context, c *models.Conversation) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET preview=?, forked_from=?, branch_number=?,
		is_archived=?, scheduler_id=?, is_scheduler_run=?, read_at=?, summary=?, summary_up_to_message_id=?,
		last_message_at=? WHERE id=?`,
		c.Preview, nullStr(c.ForkedFrom), c.BranchNumber, boolInt(c.IsArchived), nullStr(c.SchedulerID),
		boolInt(c.IsSchedulerRun), nullTime(c.ReadAt), c.Summary, c.SummaryUpToMessageID,
		nullTimeVal(c.LastMessageAt), c.ID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id=?`, id)
	if err != nil {
		return err
	}
	if err := requireRowsAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM job_activities WHERE job_id IN (SELECT id FROM jobs WHERE conversation_id=?)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE conversation_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_job_runs WHERE scheduled_job_id IN (SELECT id FROM scheduled_jobs WHERE conversation_id=?)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE conversation_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_context WHERE conversation_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET scheduler_id=NULL WHERE scheduler_id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListConversations(ctx context.Context, includeArchived bool) ([]*models.Conversation, error) {
	q := `SELECT id, created_at, preview, forked_from, branch_number, is_archived,
		scheduler_id, is_scheduler_run, read_at, summary, summary_up_to_message_id, last_message_at
		FROM conversations`
	if !includeArchived {
		q += ` WHERE is_archived = 0`
	}
	q += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) MarkRead(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET read_at=? WHERE id=? AND (read_at IS NULL OR read_at < ?)`, at, id, at)
	if err != nil {
		return err
	}
	_, err = res.RowsAffected()
	return err
}

func (s *Store) ForkConversation(ctx context.Context, sourceID, upToMessageID string) (*models.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	src, err := scanConversation(tx.QueryRowContext(ctx, `SELECT id, created_at, preview, forked_from, branch_number,
		is_archived, scheduler_id, is_scheduler_run, read_at, summary, summary_up_to_message_id, last_message_at
		FROM conversations WHERE id=?`, sourceID))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	} else if err != nil {
		return nil, err
	}

	fork := &models.Conversation{ID: uuid.NewString(), CreatedAt: time.Now(), ForkedFrom: sourceID, BranchNumber: src.BranchNumber + 1}
	if _, err := tx.ExecContext(ctx, `INSERT INTO conversations (id, created_at, forked_from, branch_number, is_archived, is_scheduler_run)
		VALUES (?,?,?,?,0,0)`, fork.ID, fork.CreatedAt, fork.ForkedFrom, fork.BranchNumber); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_call_id,
		thinking, thinking_signature, metadata, internal, created_at)
		SELECT id, ?, role, content, tool_calls, tool_call_id, thinking, thinking_signature, metadata, internal, created_at
		FROM messages WHERE conversation_id=? AND id <= ?`, fork.ID, sourceID, upToMessageID); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrConstraint, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO agent_context (conversation_id, active_skills)
		SELECT ?, active_skills FROM agent_context WHERE conversation_id=?`, fork.ID, sourceID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return fork, nil
}

// ---- Messages ----

func (s *Store) AppendMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	toolCalls, err := json.Marshal(m.ToolCalls)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, err
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var nextID int64
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM messages WHERE conversation_id=?`, m.ConversationID)
	if err := row.Scan(&nextID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO messages
		(id, conversation_id, role, content, tool_calls, tool_call_id, thinking, thinking_signature, metadata, internal, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		nextID, m.ConversationID, m.Role, m.Content, string(toolCalls), nullStr(m.ToolCallID), m.Thinking,
		m.ThinkingSignature, string(metadata), boolInt(m.Internal), createdAt); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_at=? WHERE id=?`, createdAt, m.ConversationID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := *m
	out.ID = fmt.Sprintf("%d", nextID)
	out.CreatedAt = createdAt
	return &out, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	q := `SELECT id, conversation_id, role, content, tool_calls, tool_call_id, thinking, thinking_signature,
		metadata, internal, created_at FROM messages WHERE conversation_id=? ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id=?`, conversationID).Scan(&n)
	return n, err
}

func (s *Store) DeleteMessagesFrom(ctx context.Context, conversationID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id=? AND id >= ?`, conversationID, messageID)
	return err
}

func (s *Store) GetConversationHistory(ctx context.Context, conversationID string, opts store.CompressionOptions) ([]*models.Message, error) {
	all, err := s.ListMessages(ctx, conversationID, opts.Limit)
	if err != nil {
		return nil, err
	}
	return store.CompressHistory(all, opts), nil
}

// ---- Jobs ----

func (s *Store) CreateJob(ctx context.Context, j *models.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	if j.Status == "" {
		j.Status = models.JobPending
	}
	opts, err := json.Marshal(j.QuestionOptions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (id, conversation_id, message, status, created_at, started_at,
		completed_at, result, error, worker_id, question, question_options, user_response, is_cancelled,
		is_force_respond, skip_history, headless, ask_user_default) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.ConversationID, j.Message, j.Status, j.CreatedAt, nullTime(j.StartedAt), nullTime(j.CompletedAt),
		j.Result, j.Error, j.WorkerID, j.Question, string(opts), j.UserResponse, boolInt(j.IsCancelled),
		boolInt(j.IsForceRespond), boolInt(j.SkipHistory), boolInt(j.Headless), j.AskUserDefault)
	return err
}

func (s *Store) UpdateJob(ctx context.Context, j *models.Job) error {
	opts, err := json.Marshal(j.QuestionOptions)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status=?, started_at=?, completed_at=?, result=?, error=?,
		worker_id=?, question=?, question_options=?, user_response=?, is_cancelled=?, is_force_respond=? WHERE id=?`,
		j.Status, nullTime(j.StartedAt), nullTime(j.CompletedAt), j.Result, j.Error, j.WorkerID, j.Question,
		string(opts), j.UserResponse, boolInt(j.IsCancelled), boolInt(j.IsForceRespond), j.ID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, conversation_id, message, status, created_at, started_at,
		completed_at, result, error, worker_id, question, question_options, user_response, is_cancelled,
		is_force_respond, skip_history, headless, ask_user_default FROM jobs WHERE id=?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return j, err
}

func (s *Store) ListJobsByConversation(ctx context.Context, conversationID string) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, conversation_id, message, status, created_at, started_at,
		completed_at, result, error, worker_id, question, question_options, user_response, is_cancelled,
		is_force_respond, skip_history, headless, ask_user_default FROM jobs WHERE conversation_id=? ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ---- Activities ----

func (s *Store) AppendActivity(ctx context.Context, a *models.JobActivity) (*models.JobActivity, error) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var nextID int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM job_activities WHERE job_id=?`, a.JobID).Scan(&nextID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO job_activities (id, job_id, timestamp, type, message, detail, tool_name, is_error)
		VALUES (?,?,?,?,?,?,?,?)`, nextID, a.JobID, a.Timestamp, a.Type, a.Message, a.Detail, a.ToolName, boolInt(a.IsError)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := *a
	out.ID = nextID
	return &out, nil
}

func (s *Store) ListActivitiesSince(ctx context.Context, jobID string, sinceID int64) ([]*models.JobActivity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, job_id, timestamp, type, message, detail, tool_name, is_error
		FROM job_activities WHERE job_id=? AND id > ? ORDER BY id ASC`, jobID, sinceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.JobActivity
	for rows.Next() {
		a := &models.JobActivity{}
		var isErr int
		if err := rows.Scan(&a.ID, &a.JobID, &a.Timestamp, &a.Type, &a.Message, &a.Detail, &a.ToolName, &isErr); err != nil {
			return nil, err
		}
		a.IsError = isErr != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---- Scheduled jobs ----

func (s *Store) CreateScheduledJob(ctx context.Context, j *models.ScheduledJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `INSERT INTO scheduled_jobs (id, conversation_id, name, prompt, cron_expression,
		schedule_description, timezone, is_enabled, created_at, updated_at, last_run_at, next_run_at, run_count,
		context_json, files_dir) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.ConversationID, j.Name, j.Prompt, j.CronExpression, j.ScheduleDescription, j.Timezone,
		boolInt(j.IsEnabled), j.CreatedAt, j.UpdatedAt, nullTime(j.LastRunAt), nullTime(j.NextRunAt), j.RunCount,
		j.ContextJSON, j.FilesDir)
	return err
}

func (s *Store) UpdateScheduledJob(ctx context.Context, j *models.ScheduledJob) error {
	j.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_jobs SET name=?, prompt=?, cron_expression=?,
		schedule_description=?, timezone=?, is_enabled=?, updated_at=?, last_run_at=?, next_run_at=?, run_count=?,
		context_json=?, files_dir=? WHERE id=?`,
		j.Name, j.Prompt, j.CronExpression, j.ScheduleDescription, j.Timezone, boolInt(j.IsEnabled), j.UpdatedAt,
		nullTime(j.LastRunAt), nullTime(j.NextRunAt), j.RunCount, j.ContextJSON, j.FilesDir, j.ID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (s *Store) GetScheduledJob(ctx context.Context, id string) (*models.ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, conversation_id, name, prompt, cron_expression, schedule_description,
		timezone, is_enabled, created_at, updated_at, last_run_at, next_run_at, run_count, context_json, files_dir
		FROM scheduled_jobs WHERE id=?`, id)
	j, err := scanScheduledJob(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return j, err
}

func (s *Store) ListScheduledJobs(ctx context.Context) ([]*models.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, conversation_id, name, prompt, cron_expression,
		schedule_description, timezone, is_enabled, created_at, updated_at, last_run_at, next_run_at, run_count,
		context_json, files_dir FROM scheduled_jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) DeleteScheduledJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if err := requireRowsAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_job_runs WHERE scheduled_job_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET scheduler_id=NULL WHERE scheduler_id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AppendScheduledJobRun(ctx context.Context, r *models.ScheduledJobRun) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO scheduled_job_runs (scheduled_job_id, job_id, started_at,
		completed_at, status, result_preview) VALUES (?,?,?,?,?,?)`,
		r.ScheduledJobID, r.JobID, r.StartedAt, nullTime(r.CompletedAt), r.Status, r.ResultPreview)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (s *Store) ListScheduledJobRuns(ctx context.Context, scheduledJobID string, limit int) ([]*models.ScheduledJobRun, error) {
	q := `SELECT id, scheduled_job_id, job_id, started_at, completed_at, status, result_preview
		FROM scheduled_job_runs WHERE scheduled_job_id=? ORDER BY id DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q, scheduledJobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.ScheduledJobRun
	for rows.Next() {
		r := &models.ScheduledJobRun{}
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.ScheduledJobID, &r.JobID, &r.StartedAt, &completed, &r.Status, &r.ResultPreview); err != nil {
			return nil, err
		}
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, rows.Err()
}

// ---- Agent context ----

func (s *Store) GetAgentContext(ctx context.Context, conversationID string) (*models.AgentContext, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT active_skills FROM agent_context WHERE conversation_id=?`, conversationID).Scan(&raw)
	if err == sql.ErrNoRows {
		return &models.AgentContext{ConversationID: conversationID, ActiveSkills: map[string]int{}}, nil
	}
	if err != nil {
		return nil, err
	}
	skills := map[string]int{}
	if err := json.Unmarshal([]byte(raw), &skills); err != nil {
		return nil, err
	}
	return &models.AgentContext{ConversationID: conversationID, ActiveSkills: skills}, nil
}

func (s *Store) SaveAgentContext(ctx context.Context, c *models.AgentContext) error {
	raw, err := json.Marshal(c.ActiveSkills)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO agent_context (conversation_id, active_skills) VALUES (?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET active_skills=excluded.active_skills`, c.ConversationID, string(raw))
	return err
}

// ---- Summary ----

func (s *Store) SaveConversationSummary(ctx context.Context, conversationID, summary, upToMessageID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET summary=?, summary_up_to_message_id=? WHERE id=?`,
		summary, upToMessageID, conversationID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

// ---- Usage ----

func (s *Store) AppendUsage(ctx context.Context, u *models.UsageLog) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO usage_log (id, job_id, conversation_id, model, provider,
		prompt_tokens, completion_tokens, cost_usd, component, created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.JobID, u.ConversationID, u.Model, u.Provider, u.PromptTokens, u.CompletionTokens, u.CostUSD,
		u.Component, u.CreatedAt)
	return err
}

func (s *Store) GetConversationCost(ctx context.Context, conversationID string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(cost_usd) FROM usage_log WHERE conversation_id=?`, conversationID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

// ---- Custom skills ----

func (s *Store) ListCustomSkills(ctx context.Context) ([]*models.CustomSkill, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, description, content, created_at, updated_at FROM custom_skills ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.CustomSkill
	for rows.Next() {
		sk := &models.CustomSkill{}
		if err := rows.Scan(&sk.Name, &sk.Description, &sk.Content, &sk.CreatedAt, &sk.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

func (s *Store) SaveCustomSkill(ctx context.Context, sk *models.CustomSkill) error {
	now := time.Now()
	sk.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `INSERT INTO custom_skills (name, description, content, created_at, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET description=excluded.description, content=excluded.content, updated_at=excluded.updated_at`,
		sk.Name, sk.Description, sk.Content, now, now)
	return err
}

// ---- Settings ----

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return v, err == nil, err
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}
