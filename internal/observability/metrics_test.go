package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLLMRequestCountsAndTokens(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RecordLLMRequest("anthropic", "claude-sonnet-4-20250514", "success", 1.2, 100, 50)
	m.RecordLLMRequest("anthropic", "claude-sonnet-4-20250514", "error", 0.3, 0, 0)

	if got := testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "success")); got != 1 {
		t.Errorf("expected 1 success request, got %v", got)
	}
	if got := testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "error")); got != 1 {
		t.Errorf("expected 1 error request, got %v", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "prompt")); got != 100 {
		t.Errorf("expected 100 prompt tokens, got %v", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "completion")); got != 50 {
		t.Errorf("expected 50 completion tokens, got %v", got)
	}
}

func TestRecordLLMCostAccumulates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RecordLLMCost("anthropic", "claude-sonnet-4-20250514", 0.015)
	m.RecordLLMCost("anthropic", "claude-sonnet-4-20250514", 0.02)

	if got := testutil.ToFloat64(m.LLMCostUSD.WithLabelValues("anthropic", "claude-sonnet-4-20250514")); got < 0.034 || got > 0.036 {
		t.Errorf("expected accumulated cost near 0.035, got %v", got)
	}
}

func TestRecordToolExecution(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RecordToolExecution("read_file", "success", 0.02)
	m.RecordToolExecution("shell", "error", 1.5)

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("read_file", "success")); got != 1 {
		t.Errorf("expected 1 successful read_file execution, got %v", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("shell", "error")); got != 1 {
		t.Errorf("expected 1 failed shell execution, got %v", got)
	}
}

func TestRecordError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RecordError("llm", "timeout")
	m.RecordError("llm", "timeout")
	m.RecordError("tool", "execution_failed")

	if got := testutil.ToFloat64(m.ErrorCounter.WithLabelValues("llm", "timeout")); got != 2 {
		t.Errorf("expected 2 llm timeouts, got %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorCounter.WithLabelValues("tool", "execution_failed")); got != 1 {
		t.Errorf("expected 1 tool failure, got %v", got)
	}
}

func TestJobStartedAndEnded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.JobStarted()
	m.JobStarted()
	if got := testutil.ToFloat64(m.ActiveJobs); got != 2 {
		t.Errorf("expected 2 active jobs, got %v", got)
	}

	m.JobEnded(string("completed"))
	if got := testutil.ToFloat64(m.ActiveJobs); got != 1 {
		t.Errorf("expected 1 active job after one ended, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunAttempts.WithLabelValues("completed")); got != 1 {
		t.Errorf("expected 1 completed run attempt, got %v", got)
	}
}

func TestRecordContextWindow(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RecordContextWindow("anthropic", "claude-sonnet-4-20250514", 12000)

	if count := testutil.CollectAndCount(m.ContextWindowUsed); count != 1 {
		t.Errorf("expected 1 context window observation series, got %d", count)
	}
}
