package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/cortex/pkg/models"
)

// row is the subset of *sql.Row / *sql.Rows that Scan needs, so the scan*
// helpers work for both QueryRowContext and QueryContext call sites.
type row interface {
	Scan(dest ...any) error
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullTimeVal(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanConversation(r row) (*models.Conversation, error) {
	c := &models.Conversation{}
	var forkedFrom, schedulerID, summaryUpTo sql.NullString
	var readAt, lastMessageAt sql.NullTime
	var isArchived, isSchedulerRun int
	if err := r.Scan(&c.ID, &c.CreatedAt, &c.Preview, &forkedFrom, &c.BranchNumber, &isArchived,
		&schedulerID, &isSchedulerRun, &readAt, &c.Summary, &summaryUpTo, &lastMessageAt); err != nil {
		return nil, err
	}
	c.ForkedFrom = forkedFrom.String
	c.SchedulerID = schedulerID.String
	c.SummaryUpToMessageID = summaryUpTo.String
	c.IsArchived = isArchived != 0
	c.IsSchedulerRun = isSchedulerRun != 0
	if readAt.Valid {
		t := readAt.Time
		c.ReadAt = &t
	}
	if lastMessageAt.Valid {
		c.LastMessageAt = lastMessageAt.Time
	}
	return c, nil
}

func scanMessage(r row) (*models.Message, error) {
	m := &models.Message{}
	var id int64
	var toolCalls, metadata sql.NullString
	var toolCallID sql.NullString
	var internal int
	if err := r.Scan(&id, &m.ConversationID, &m.Role, &m.Content, &toolCalls, &toolCallID, &m.Thinking,
		&m.ThinkingSignature, &metadata, &internal, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.ID = fmt.Sprintf("%d", id)
	m.ToolCallID = toolCallID.String
	m.Internal = internal != 0
	if toolCalls.Valid && toolCalls.String != "" && toolCalls.String != "null" {
		if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
			return nil, err
		}
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func scanJob(r row) (*models.Job, error) {
	j := &models.Job{}
	var startedAt, completedAt sql.NullTime
	var result, errStr, workerID, question, userResponse, askDefault sql.NullString
	var questionOptions sql.NullString
	var isCancelled, isForceRespond, skipHistory, headless int
	if err := r.Scan(&j.ID, &j.ConversationID, &j.Message, &j.Status, &j.CreatedAt, &startedAt, &completedAt,
		&result, &errStr, &workerID, &question, &questionOptions, &userResponse, &isCancelled, &isForceRespond,
		&skipHistory, &headless, &askDefault); err != nil {
		return nil, err
	}
	j.Result = result.String
	j.Error = errStr.String
	j.WorkerID = workerID.String
	j.Question = question.String
	j.UserResponse = userResponse.String
	j.AskUserDefault = askDefault.String
	j.IsCancelled = isCancelled != 0
	j.IsForceRespond = isForceRespond != 0
	j.SkipHistory = skipHistory != 0
	j.Headless = headless != 0
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	if questionOptions.Valid && questionOptions.String != "" && questionOptions.String != "null" {
		if err := json.Unmarshal([]byte(questionOptions.String), &j.QuestionOptions); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func scanScheduledJob(r row) (*models.ScheduledJob, error) {
	j := &models.ScheduledJob{}
	var lastRunAt, nextRunAt sql.NullTime
	var scheduleDesc, contextJSON, filesDir sql.NullString
	var isEnabled int
	if err := r.Scan(&j.ID, &j.ConversationID, &j.Name, &j.Prompt, &j.CronExpression, &scheduleDesc, &j.Timezone,
		&isEnabled, &j.CreatedAt, &j.UpdatedAt, &lastRunAt, &nextRunAt, &j.RunCount, &contextJSON, &filesDir); err != nil {
		return nil, err
	}
	j.ScheduleDescription = scheduleDesc.String
	j.ContextJSON = contextJSON.String
	j.FilesDir = filesDir.String
	j.IsEnabled = isEnabled != 0
	if lastRunAt.Valid {
		t := lastRunAt.Time
		j.LastRunAt = &t
	}
	if nextRunAt.Valid {
		t := nextRunAt.Time
		j.NextRunAt = &t
	}
	return j, nil
}
