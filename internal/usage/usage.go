// Package usage tabulates per-model LLM cost and records UsageLog rows.
// Grounded on an internal/usage package (Usage/Cost/Tracker shapes),
// adapted to operate on pkg/models.Usage and to sink directly into the
// durable store instead of an in-memory-only tracker.
package usage

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/pkg/models"
)

// Cost is per-million-token pricing for a model. Duration-based skill models
// (billed per minute rather than per token) set PerMinute instead.
type Cost struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
	PerMinute  float64
}

// Estimate returns the dollar cost of u under this price.
func (c Cost) Estimate(u models.Usage) float64 {
	if c.PerMinute > 0 {
		return 0 // duration-based components report cost explicitly; nothing to tabulate here.
	}
	total := float64(u.PromptTokens)*c.Input +
		float64(u.CompletionTokens)*c.Output +
		float64(u.CacheReadTokens)*c.CacheRead +
		float64(u.CacheCreateTokens)*c.CacheWrite
	return total / 1_000_000
}

// PriceTable is a small, hand-maintained table of current-generation model
// prices. It is intentionally minimal — the core's job is to tabulate a
// cost, not to mirror providers' full, frequently-changing catalogs.
var PriceTable = map[string]Cost{
	"claude-opus-4-20250514":    {Input: 15, Output: 75, CacheRead: 1.5, CacheWrite: 18.75},
	"claude-sonnet-4-20250514":  {Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
	"claude-3-5-haiku-20241022": {Input: 0.8, Output: 4, CacheRead: 0.08, CacheWrite: 1},
	"gpt-4o":                    {Input: 2.5, Output: 10, CacheRead: 1.25},
	"gpt-4o-mini":               {Input: 0.15, Output: 0.6, CacheRead: 0.075},
}

// unknownModelCost is used for models absent from PriceTable so usage is
// still logged (with a zero cost) rather than dropped.
var unknownModelCost = Cost{}

// Lookup returns the price for model, or a zero-cost entry if unknown.
func Lookup(model string) Cost {
	if c, ok := PriceTable[model]; ok {
		return c
	}
	return unknownModelCost
}

// Tracker is the process-wide sink for LLM usage. It is safe for concurrent
// use: the underlying store serializes writers.
type Tracker struct {
	store store.Store
}

// NewTracker constructs a Tracker backed by st.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Record computes cost from the price table and appends a UsageLog row. It
// never blocks the caller's critical path on a slow store by more than a
// single synchronous write; callers on a hot path should invoke it from a
// goroutine if that write latency matters.
func (t *Tracker) Record(ctx context.Context, jobID, conversationID, provider, model, component string, u models.Usage) error {
	cost := Lookup(model).Estimate(u)
	return t.store.AppendUsage(ctx, &models.UsageLog{
		ID:               uuid.NewString(),
		JobID:            jobID,
		ConversationID:   conversationID,
		Model:            model,
		Provider:         provider,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		CostUSD:          cost,
		Component:        component,
	})
}

// FormatTokenCount renders a token count using k/m suffixes for log lines.
func FormatTokenCount(count int64) string {
	switch {
	case count <= 0:
		return "0"
	case count >= 1_000_000:
		return fmt.Sprintf("%.1fm", float64(count)/1_000_000)
	case count >= 10_000:
		return fmt.Sprintf("%dk", count/1_000)
	case count >= 1_000:
		return fmt.Sprintf("%.1fk", float64(count)/1_000)
	default:
		return fmt.Sprintf("%d", count)
	}
}

// FormatUSD renders a dollar amount for log lines, suppressing noise for
// zero/invalid values.
func FormatUSD(amount float64) string {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ""
	}
	if amount >= 0.01 {
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("$%.4f", amount)
}
