package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/cortex/internal/llm"
	"github.com/haasonsaas/cortex/pkg/models"
)

// MaxTTL is the TTL steps a skill is given when it's added or kept active.
// 5 turns balances a skill staying available across a short multi-step task
// without lingering indefinitely once the conversation moves on. See
// DESIGN.md's Open Question decisions.
const MaxTTL = 5

// decision is the strict-JSON shape an LLMClient.cheap routing call must
// produce.
type decision struct {
	Add  []string `json:"add"`
	Keep []string `json:"keep"`
	Drop []string `json:"drop"`
}

// Router selects which skills stay active for the current turn, applying a
// decay-TTL policy over the previous turn's active set.
type Router struct {
	client  *llm.Client
	profile llm.Profile
}

// NewRouter constructs a Router calling through the given cheap-tier
// provider/model profile.
func NewRouter(client *llm.Client, cheapProfile llm.Profile) *Router {
	return &Router{client: client, profile: cheapProfile}
}

// Route receives recent history, the available skill catalog, and the
// conversation's current active-skills TTL map, and returns the next
// active-skills map: add newly relevant skills, keep or decay ones still in
// use, and drop ones the model explicitly releases. On an LLM error or malformed
// response it falls back to decaying every active skill by one step,
// dropping any that reach zero.
func (r *Router) Route(ctx context.Context, history []*models.Message, available []*SkillEntry, active map[string]int) map[string]int {
	d, err := r.decide(ctx, history, available, active)
	if err != nil {
		return decayAll(active)
	}
	return applyDecision(active, d, availableNames(available))
}

func (r *Router) decide(ctx context.Context, history []*models.Message, available []*SkillEntry, active map[string]int) (*decision, error) {
	prompt := buildRoutingPrompt(history, available, active)
	resp, err := r.client.Chat(ctx, r.profile.Provider, llm.ChatRequest{
		Model: r.profile.Model,
		Messages: []*models.Message{
			{Role: models.RoleUser, Content: prompt},
		},
		System:    "You select which skills should be active for the agent's next step. Respond with strict JSON only, no prose, matching {\"add\":[],\"keep\":[],\"drop\":[]}.",
		MaxTokens: 256,
		Component: "skill_routing",
	})
	if err != nil {
		return nil, fmt.Errorf("skills: routing call: %w", err)
	}

	var d decision
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &d); err != nil {
		return nil, fmt.Errorf("skills: parse routing response: %w", err)
	}
	return &d, nil
}

func applyDecision(active map[string]int, d *decision, validNames map[string]bool) map[string]int {
	next := make(map[string]int, len(active))
	for name, ttl := range active {
		next[name] = ttl
	}

	// 1. Drop.
	for _, name := range d.Drop {
		delete(next, name)
	}

	// 2. Reset TTL to max for keep/add, ignoring names the router
	// hallucinated that aren't in the actual catalog.
	mentioned := make(map[string]bool)
	for _, name := range append(append([]string{}, d.Keep...), d.Add...) {
		mentioned[name] = true
		if !validNames[name] {
			continue
		}
		next[name] = MaxTTL
	}

	// 3. Decay anything not mentioned; drop at zero.
	for name, ttl := range next {
		if mentioned[name] {
			continue
		}
		ttl--
		if ttl <= 0 {
			delete(next, name)
			continue
		}
		next[name] = ttl
	}

	return next
}

// decayAll is the fallback path: every active skill loses one TTL step,
// dropping any that reach zero.
func decayAll(active map[string]int) map[string]int {
	next := make(map[string]int, len(active))
	for name, ttl := range active {
		ttl--
		if ttl <= 0 {
			continue
		}
		next[name] = ttl
	}
	return next
}

func availableNames(available []*SkillEntry) map[string]bool {
	out := make(map[string]bool, len(available))
	for _, s := range available {
		out[s.Name] = true
	}
	return out
}

func buildRoutingPrompt(history []*models.Message, available []*SkillEntry, active map[string]int) string {
	var sb strings.Builder
	sb.WriteString("Available skills:\n")
	for _, s := range available {
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
	}
	sb.WriteString("\nCurrently active skills (name: remaining TTL):\n")
	if len(active) == 0 {
		sb.WriteString("(none)\n")
	}
	for name, ttl := range active {
		fmt.Fprintf(&sb, "- %s: %d\n", name, ttl)
	}
	sb.WriteString("\nRecent conversation:\n")
	for _, m := range lastN(history, 8) {
		if m.Internal || m.Content == "" {
			continue
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", m.Role, truncate(m.Content, 300))
	}
	sb.WriteString("\nDecide which skills to add, keep, or drop for the next step. Respond with JSON only.")
	return sb.String()
}

func lastN(messages []*models.Message, n int) []*models.Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// extractJSON strips any prose fencing a cheap model adds around the JSON
// object despite being told not to (```json blocks are the common case).
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndex(s, "}"); j >= 0 && j < len(s)-1 {
		s = s[:j+1]
	}
	return s
}
