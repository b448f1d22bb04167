package agentrun

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/cortex/pkg/models"
)

func toolCall(id, name string) models.ToolCall {
	return models.ToolCall{ID: id, Name: name, Arguments: `{}`}
}

// TestRecordToolUsagePerCallWithinOneBatch verifies per-tool usage caps
// still count every call in a batch, even though consecutive-same-tool
// tracking (ObserveStep) only looks at the batch's first call.
func TestRecordToolUsagePerCallWithinOneBatch(t *testing.T) {
	ls := NewLoopState()
	calls := []models.ToolCall{toolCall("1", "read_file"), toolCall("2", "read_file"), toolCall("3", "shell")}
	for _, c := range calls {
		if action, _ := ls.RecordToolUsage(c); action != loopActionNone {
			t.Fatalf("unexpected action %v for call %s", action, c.Name)
		}
	}
	if got := ls.toolUsage["read_file"]; got != 2 {
		t.Fatalf("expected read_file usage 2, got %d", got)
	}
	if got := ls.toolUsage["_total"]; got != 3 {
		t.Fatalf("expected total usage 3, got %d", got)
	}
}

// TestObserveStepUsesFirstCallOfBatch confirms consecutive_same_tool is
// judged by the batch's first call, not by every call in it: a batch of
// distinct tool calls followed by another batch whose first call differs
// resets the streak rather than accumulating once per call.
func TestObserveStepUsesFirstCallOfBatch(t *testing.T) {
	ls := NewLoopState()

	distinctBatch := []models.ToolCall{toolCall("1", "read_file"), toolCall("2", "shell"), toolCall("3", "web_search")}
	for i := 0; i < 4; i++ {
		results, _ := json.Marshal([]string{"a", "b", "c"})
		action, _ := ls.ObserveStep(distinctBatch[0], string(results))
		if action == loopActionHardStop {
			t.Fatalf("hard stop fired after %d identical-first-call batches, want no earlier than the hard cap", i+1)
		}
	}
	if ls.consecutiveSameTool != 4 {
		t.Fatalf("expected consecutiveSameTool to track once per step (4), got %d", ls.consecutiveSameTool)
	}

	otherBatch := []models.ToolCall{toolCall("4", "shell"), toolCall("5", "read_file")}
	results, _ := json.Marshal([]string{"x", "y"})
	ls.ObserveStep(otherBatch[0], string(results))
	if ls.consecutiveSameTool != 1 {
		t.Fatalf("expected a differing first call to reset the streak to 1, got %d", ls.consecutiveSameTool)
	}
}

// TestObserveStepHardStopAfterTenIdenticalSteps confirms the hard-stop cap
// counts steps, not individual tool calls within a step's batch.
func TestObserveStepHardStopAfterTenIdenticalSteps(t *testing.T) {
	ls := NewLoopState()
	call := toolCall("1", "stuck")
	results, _ := json.Marshal([]string{"same"})

	var lastAction loopAction
	for i := 0; i < consecutiveSameToolHardCap; i++ {
		lastAction, _ = ls.ObserveStep(call, string(results))
		if lastAction == loopActionHardStop {
			break
		}
		// the soft cap fires a recovery prompt partway through and resets
		// the streak, so keep feeding steps until the hard cap or the
		// recovery budget is exhausted.
	}
	if lastAction != loopActionHardStop {
		t.Fatalf("expected a hard stop within %d identical steps, last action was %v", consecutiveSameToolHardCap, lastAction)
	}
}
