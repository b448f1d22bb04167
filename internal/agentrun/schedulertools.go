package agentrun

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/cortex/internal/tools"
)

// CreateScheduledJobTool, UpdateScheduledJobTool, and ListScheduledJobsTool
// adapt SchedulerAPI into the tool registry's Tool interface.
// create_scheduled_job and update_scheduled_job are only registered when a
// job_id is available; list_scheduled_jobs is always registered.
type CreateScheduledJobTool struct {
	ConversationID string
	API            SchedulerAPI
}

func (t *CreateScheduledJobTool) Name() string { return "create_scheduled_job" }
func (t *CreateScheduledJobTool) Description() string {
	return "Create a recurring job that runs a prompt on a CRON schedule."
}
func (t *CreateScheduledJobTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"},"prompt":{"type":"string"},"cron_expression":{"type":"string"},"timezone":{"type":"string"},"files":{"type":"array","items":{"type":"string"}}},"required":["name","prompt","cron_expression"],"additionalProperties":false}`)
}

type createScheduledJobArgs struct {
	Name           string   `json:"name"`
	Prompt         string   `json:"prompt"`
	CronExpression string   `json:"cron_expression"`
	Timezone       string   `json:"timezone,omitempty"`
	Files          []string `json:"files,omitempty"`
}

func (t *CreateScheduledJobTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var args createScheduledJobArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &tools.Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}
	if t.API == nil {
		return &tools.Result{Content: "scheduler is not configured", IsError: true}, nil
	}
	tz := args.Timezone
	if tz == "" {
		tz = "UTC"
	}
	id, err := t.API.CreateScheduledJob(t.ConversationID, args.Name, args.Prompt, args.CronExpression, tz, args.Files)
	if err != nil {
		return &tools.Result{Content: err.Error(), IsError: true}, nil
	}
	payload, _ := json.Marshal(map[string]string{"scheduled_job_id": id})
	return &tools.Result{Content: string(payload)}, nil
}

// UpdateScheduledJobTool toggles enablement or edits the CRON expression or
// prompt of an existing scheduled job.
type UpdateScheduledJobTool struct {
	API SchedulerAPI
}

func (t *UpdateScheduledJobTool) Name() string { return "update_scheduled_job" }
func (t *UpdateScheduledJobTool) Description() string {
	return "Enable, disable, or edit an existing scheduled job."
}
func (t *UpdateScheduledJobTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"},"enabled":{"type":"boolean"},"cron_expression":{"type":"string"},"prompt":{"type":"string"}},"required":["id"],"additionalProperties":false}`)
}

type updateScheduledJobArgs struct {
	ID             string  `json:"id"`
	Enabled        *bool   `json:"enabled,omitempty"`
	CronExpression *string `json:"cron_expression,omitempty"`
	Prompt         *string `json:"prompt,omitempty"`
}

func (t *UpdateScheduledJobTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var args updateScheduledJobArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &tools.Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}
	if t.API == nil {
		return &tools.Result{Content: "scheduler is not configured", IsError: true}, nil
	}
	if err := t.API.UpdateScheduledJob(args.ID, args.Enabled, args.CronExpression, args.Prompt); err != nil {
		return &tools.Result{Content: err.Error(), IsError: true}, nil
	}
	return &tools.Result{Content: "updated"}, nil
}

// ListScheduledJobsTool is always registered.
type ListScheduledJobsTool struct {
	API SchedulerAPI
}

func (t *ListScheduledJobsTool) Name() string        { return "list_scheduled_jobs" }
func (t *ListScheduledJobsTool) Description() string { return "List all scheduled jobs and their status." }
func (t *ListScheduledJobsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
}

func (t *ListScheduledJobsTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	if t.API == nil {
		return &tools.Result{Content: "scheduler is not configured", IsError: true}, nil
	}
	listing, err := t.API.ListScheduledJobs()
	if err != nil {
		return &tools.Result{Content: err.Error(), IsError: true}, nil
	}
	return &tools.Result{Content: listing}, nil
}
