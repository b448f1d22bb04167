package agentrun

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/pkg/models"
)

// progressMessages rotate through emitFakeProgress's activity feed so a
// depth>=1 turn looks alive to the UI while the first LLM call is still in
// flight.
var progressMessages = []string{
	"Gathering context.",
	"Reviewing the details.",
	"Working through the steps.",
	"Checking what's been done so far.",
	"Putting together a response.",
}

// relatedQuestionsPrompt asks the cheap profile for a short, scannable set
// of natural follow-ups a user might ask next.
const relatedQuestionsPrompt = "Based on the conversation so far, suggest exactly 3 short follow-up questions the user might want to ask next. Reply with one question per line and nothing else."

// generateRelatedQuestions is a background task that asks the cheap
// profile for follow-up suggestions and stores them on
// the queue for the UI to surface, without ever blocking the main loop. A
// failure here is silently dropped — suggestions are a nice-to-have, not a
// turn requirement.
func (e *Engine) generateRelatedQuestions(ctx context.Context, job *models.Job, check func() bool) {
	if check() || e.llmClient == nil {
		return
	}

	history, err := e.store.ListMessages(ctx, job.ConversationID, 20)
	if err != nil || len(history) == 0 {
		return
	}

	resp, err := e.llmClient.Chat(ctx, e.cheapProfile.Provider, llm.ChatRequest{
		Model:             e.cheapProfile.Model,
		Messages:          history,
		System:            relatedQuestionsPrompt,
		MaxTokens:         256,
		Component:         "related_questions",
		JobID:             job.ID,
		ConversationID:    job.ConversationID,
		CancellationCheck: check,
	})
	if err != nil || check() {
		return
	}

	var questions []string
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			questions = append(questions, line)
		}
	}
	if len(questions) == 0 {
		return
	}
	e.queue.SetSuggestions(job.ID, questions)
}

// emitFakeProgress is a background task that emits 3-5
// progress_step activities spaced 3-5s apart, so a long-running depth>=1
// turn doesn't look stalled before the first real activity lands.
func (e *Engine) emitFakeProgress(ctx context.Context, jobID string, check func() bool) {
	count := 3 + rand.Intn(3)
	for i := 0; i < count; i++ {
		delay := time.Duration(3000+rand.Intn(2001)) * time.Millisecond
		if !sleepOrDone(ctx, delay, check) {
			return
		}
		if check() {
			return
		}
		e.emitActivity(ctx, jobID, models.ActivityProgressStep, progressMessages[i%len(progressMessages)])
	}
}

// sleepOrDone waits for delay, polling check and ctx at a short interval so
// a cancellation is observed well before delay elapses. Returns false if
// the wait was cut short by cancellation or context done.
func sleepOrDone(ctx context.Context, delay time.Duration, check func() bool) bool {
	const pollInterval = 250 * time.Millisecond
	deadline := time.Now().Add(delay)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if check() {
			return false
		}
		if time.Now().After(deadline) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
