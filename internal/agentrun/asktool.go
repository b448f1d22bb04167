package agentrun

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/cortex/internal/queue"
	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/internal/tools"
	"github.com/haasonsaas/cortex/pkg/models"
)

// AskUserTool pauses a job to ask the user a question and waits for a
// response. It is registered dynamically per job (only when a job_id is
// available) rather than living in the static registry internal/tools
// builds, because its behavior (headless vs. interactive, the default
// response) is per-job state.
type AskUserTool struct {
	Queue           *queue.JobQueue
	Store           store.Store
	JobID           string
	ConversationID  string
	Headless        bool
	DefaultResponse string
}

func (t *AskUserTool) Name() string { return "ask_user" }
func (t *AskUserTool) Description() string {
	return "Ask the user a clarifying question and wait for their reply before continuing."
}
func (t *AskUserTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"question":{"type":"string"},"options":{"type":"array","items":{"type":"string"}}},"required":["question"],"additionalProperties":false}`)
}

type askUserArgs struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

func (t *AskUserTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var args askUserArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &tools.Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}

	questionMsg := &models.Message{
		ConversationID: t.ConversationID,
		Role:           models.RoleAssistant,
		Content:        args.Question,
		Internal:       false,
		Metadata:       map[string]any{"type": "question", "options": args.Options},
	}
	if _, err := t.Store.AppendMessage(ctx, questionMsg); err != nil {
		return &tools.Result{Content: "failed to record question: " + err.Error(), IsError: true}, nil
	}

	if t.Headless {
		answer := t.DefaultResponse
		ackMsg := &models.Message{
			ConversationID: t.ConversationID,
			Role:           models.RoleUser,
			Content:        answer,
			Internal:       true,
		}
		if _, err := t.Store.AppendMessage(ctx, ackMsg); err != nil {
			return &tools.Result{Content: "failed to record default response: " + err.Error(), IsError: true}, nil
		}
		return &tools.Result{Content: answer}, nil
	}

	if err := t.Queue.SetQuestion(ctx, t.JobID, args.Question, args.Options); err != nil {
		return &tools.Result{Content: "failed to pause for input: " + err.Error(), IsError: true}, nil
	}
	return &tools.Result{Content: "Waiting for user response."}, nil
}
