// Package routing implements the single-shot depth classification used to
// decide how much scaffolding (planning injection, periodic reflection,
// extended-thinking budget, auxiliary suggestions) a turn gets. The
// Classifier interface shape is adapted from a rule-matching, tag-based,
// multi-provider-failover router, replaced here by one LLM call that
// returns a single digit.
package routing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/pkg/models"
)

// Classifier assigns a reasoning depth to a turn's history.
type Classifier interface {
	ClassifyDepth(ctx context.Context, history []*models.Message) (int, error)
}

// defaultTailSize is how many trailing messages accompany the latest user
// message in the classification prompt.
const defaultTailSize = 6

// defaultDepth is used whenever classification fails to parse.
const defaultDepth = 1

// DepthClassifier issues one LLMClient.routing call per turn and parses a
// single digit, 0 or 1, out of the response.
type DepthClassifier struct {
	client   *llm.Client
	profile  llm.Profile
	tailSize int
}

// NewDepthClassifier constructs a DepthClassifier calling through the given
// routing-tier provider/model profile.
func NewDepthClassifier(client *llm.Client, routingProfile llm.Profile) *DepthClassifier {
	return &DepthClassifier{client: client, profile: routingProfile, tailSize: defaultTailSize}
}

// ClassifyDepth returns 0 (shallow, single-shot) or 1 (deep, plan-and-
// reflect) for the turn represented by history. It never returns a non-nil
// error: any LLM failure or unparseable response falls back to defaultDepth
// so a routing outage never blocks the turn.
func (c *DepthClassifier) ClassifyDepth(ctx context.Context, history []*models.Message) (int, error) {
	latest := lastUserMessage(history)
	if latest == "" {
		return defaultDepth, nil
	}

	prompt := buildClassificationPrompt(latest, tail(history, c.tailSize))
	resp, err := c.client.Chat(ctx, c.profile.Provider, llm.ChatRequest{
		Model: c.profile.Model,
		Messages: []*models.Message{
			{Role: models.RoleUser, Content: prompt},
		},
		System:    "You classify how much reasoning depth a request needs. Respond with exactly one digit: 0 for a quick, direct answer, or 1 for a task that benefits from planning and multi-step reasoning. No other text.",
		MaxTokens: 8,
		Component: "depth_routing",
	})
	if err != nil {
		return defaultDepth, nil
	}

	depth, ok := parseDigit(resp.Content)
	if !ok {
		return defaultDepth, nil
	}
	return depth, nil
}

func parseDigit(s string) (int, bool) {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if r == '0' || r == '1' {
			n, err := strconv.Atoi(string(r))
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

func buildClassificationPrompt(latest string, history []*models.Message) string {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Recent context:\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "[%s]: %s\n", m.Role, truncate(m.Content, 300))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Latest request:\n")
	sb.WriteString(latest)
	return sb.String()
}

func lastUserMessage(history []*models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser && !history[i].Internal {
			return history[i].Content
		}
	}
	return ""
}

func tail(history []*models.Message, n int) []*models.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ShouldInjectPlan reports whether a planning prompt should be injected at
// the given step for a turn classified at depth. Planning only fires on the
// first step of depth >= 1 turns.
func ShouldInjectPlan(depth, step int) bool {
	return depth >= 1 && step == 1
}

// ShouldReflect reports whether a periodic reflection prompt is due at step
// for a turn classified at depth, given reflectionInterval steps between
// reflections.
func ShouldReflect(depth, step, reflectionInterval int) bool {
	if depth < 1 || reflectionInterval <= 0 {
		return false
	}
	return step > 0 && step%reflectionInterval == 0
}

// ThinkingBudgetTokens returns the extended-thinking token budget for depth:
// none for a shallow turn, a moderate budget for a deep one.
func ThinkingBudgetTokens(depth int) int {
	if depth >= 1 {
		return 4096
	}
	return 0
}

// AuxiliaryFeaturesEnabled reports whether auxiliary features (progress
// estimates, follow-up suggestions) should run for depth; these only fire
// on turns classified deeper than 0.
func AuxiliaryFeaturesEnabled(depth int) bool {
	return depth > 0
}
