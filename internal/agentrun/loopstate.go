package agentrun

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/haasonsaas/cortex/pkg/models"
)

// historyLoopThreshold is how many trailing assistant tool-call messages
// the history-based detector compares.
const historyLoopThreshold = 3

// toolCapDefaults holds the per-tool usage caps, plus the "_total"
// cumulative cap.
var toolCapDefaults = map[string]int{
	"web_search":    10,
	"web_fetch":     15,
	"read_file":     30,
	"shell":         25,
	"edit_file":     30,
	"delegate_task": 5,
	"_total":        60,
}

// consecutiveSameToolSoftCap, consecutiveSameToolHardCap, and
// maxRecoveryAttempts implement a recovery-then-hard-stop ladder for a tool
// called the same way over and over.
const (
	consecutiveSameToolSoftCap = 3
	consecutiveSameToolHardCap = 10
	maxRecoveryAttempts        = 3
	consecutiveSameResultCap   = 2
	toolOnlyNudgeEvery         = 5
	toolOnlyHardStop           = 15
	researchArtifactThreshold  = 3
)

// loopAction is what the persistent LoopState wants the caller to do after
// recording a tool call or a step's overall outcome.
type loopAction int

const (
	loopActionNone loopAction = iota
	loopActionInjectRecoveryPrompt
	loopActionInjectForceProgressPrompt
	loopActionInjectToolLimitPrompt
	loopActionInjectTotalLimitPrompt
	loopActionHardStop
)

// toolSignature is the first tool call's (name, serialized-args) pair a
// batch is classified by for consecutive-repeat tracking.
type toolSignature struct {
	Name string
	Args string
}

func signatureOf(tc models.ToolCall) toolSignature {
	return toolSignature{Name: tc.Name, Args: tc.Arguments}
}

// LoopState is the persistent, per-job bookkeeping for loop detection:
// consecutive-same-tool and consecutive-same-result counters, per-tool and
// total usage caps, a duplicate-call cache, research-artifact tracking, and
// a tool-only-response stall counter. One LoopState lives for a job's full
// run across every step, unlike the stateless history-based detector in
// detectHistoryLoop.
type LoopState struct {
	mu sync.Mutex

	lastSignature       toolSignature
	consecutiveSameTool int
	recoveryAttempts    int

	lastResultHash        string
	consecutiveSameResult int

	toolUsage map[string]int

	dupCache map[string]string // key: name+md5(args)[:8] -> result preview

	researchArtifactNoted bool
	webToolCount          int

	toolOnlyStreak int

	// truncationStreak tracks consecutive truncated/corrupted responses.
	// Corrupted tool-call batches and non-tool truncations share one
	// counter since both represent the same underlying symptom: the model
	// keeps returning unusable output.
	truncationStreak int
}

// NewLoopState returns a zeroed LoopState ready to track one job.
func NewLoopState() *LoopState {
	return &LoopState{toolUsage: make(map[string]int), dupCache: make(map[string]string)}
}

// RecordToolUsage updates the per-tool and total usage counters for one
// executed call and reports whether it just crossed a usage cap. Called
// once per tool call in a batch, since caps track how many times each tool
// has run regardless of which step or batch that happened in.
func (ls *LoopState) RecordToolUsage(tc models.ToolCall) (loopAction, string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.toolUsage[tc.Name]++
	ls.toolUsage["_total"]++
	if tc.Name == "web_search" || tc.Name == "web_fetch" {
		ls.webToolCount++
	}

	if limit, ok := toolCapDefaults[tc.Name]; ok && ls.toolUsage[tc.Name] == limit {
		return loopActionInjectToolLimitPrompt, tc.Name
	}
	if total, ok := toolCapDefaults["_total"]; ok && ls.toolUsage["_total"] == total {
		return loopActionInjectTotalLimitPrompt, ""
	}
	return loopActionNone, ""
}

// ObserveStep tracks consecutive_same_tool and consecutive_same_result once
// per step, using the batch's first tool call's signature and a hash of the
// combined serialized results of every call in the batch — the same
// granularity the step loop itself observes progress at, so a single
// response issuing several distinct tool calls doesn't spuriously pump
// either counter. Returns the action the caller should take (if any) and a
// message describing it (empty when action is loopActionNone or
// loopActionHardStop, where the caller supplies its own terminal message).
func (ls *LoopState) ObserveStep(firstCall models.ToolCall, combinedResults string) (loopAction, string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	sig := signatureOf(firstCall)
	if sig == ls.lastSignature {
		ls.consecutiveSameTool++
	} else {
		ls.lastSignature = sig
		ls.consecutiveSameTool = 1
	}

	resultHash := hashResult(combinedResults)
	if resultHash == ls.lastResultHash {
		ls.consecutiveSameResult++
	} else {
		ls.lastResultHash = resultHash
		ls.consecutiveSameResult = 1
	}

	if ls.consecutiveSameTool >= consecutiveSameToolHardCap {
		return loopActionHardStop, "same tool invoked 10 times consecutively without resolution"
	}

	if ls.consecutiveSameTool == consecutiveSameToolSoftCap {
		ls.recoveryAttempts++
		ls.consecutiveSameTool = 0
		if ls.recoveryAttempts >= maxRecoveryAttempts {
			return loopActionHardStop, "repeated recovery attempts exhausted for a stuck tool call"
		}
		return loopActionInjectRecoveryPrompt, preview(combinedResults)
	}

	if ls.consecutiveSameResult == consecutiveSameResultCap {
		ls.consecutiveSameResult = 0
		return loopActionInjectForceProgressPrompt, ""
	}

	return loopActionNone, ""
}

// ShouldNoteResearchArtifact reports whether web_search/web_fetch usage has
// just crossed researchArtifactThreshold for the first time this job.
func (ls *LoopState) ShouldNoteResearchArtifact() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.researchArtifactNoted || ls.webToolCount < researchArtifactThreshold {
		return false
	}
	ls.researchArtifactNoted = true
	return true
}

// CheckDuplicate looks up the duplicate-call cache for (name, args); if
// found, it returns the cached preview and true. Otherwise it stores the
// new result's preview under the key and returns ("", false).
func (ls *LoopState) CheckDuplicate(name, args, resultContent string) (string, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	key := dupKey(name, args)
	if prev, ok := ls.dupCache[key]; ok {
		return prev, true
	}
	ls.dupCache[key] = preview(resultContent)
	return "", false
}

// ObserveToolOnlyResponse tracks consecutive assistant turns that returned
// tool calls with no accompanying text, returning whether a nudge should be
// injected and whether the job must hard-stop.
func (ls *LoopState) ObserveToolOnlyResponse(hadText bool) (nudge, hardStop bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if hadText {
		ls.toolOnlyStreak = 0
		return false, false
	}
	ls.toolOnlyStreak++
	if ls.toolOnlyStreak >= toolOnlyHardStop {
		return false, true
	}
	if ls.toolOnlyStreak%toolOnlyNudgeEvery == 0 {
		return true, false
	}
	return false, false
}

// ObserveTruncation tracks consecutive truncated/unusable responses,
// reporting whether the job must hard-stop (3 consecutive).
func (ls *LoopState) ObserveTruncation(truncated bool) (hardStop bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !truncated {
		ls.truncationStreak = 0
		return false
	}
	ls.truncationStreak++
	return ls.truncationStreak >= 3
}

func hashResult(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func dupKey(name, args string) string {
	sum := md5.Sum([]byte(args))
	return name + "+" + hex.EncodeToString(sum[:])[:8]
}

func preview(content string) string {
	const maxPreview = 300
	if len(content) <= maxPreview {
		return content
	}
	return content[:maxPreview] + "..."
}

// detectHistoryLoop implements the stateless history-based detector: if the
// last historyLoopThreshold assistant messages carrying tool calls all
// issued the identical (name, args) signature on their first call, the
// step is considered looping.
func detectHistoryLoop(messages []*models.Message) bool {
	var signatures []toolSignature
	for i := len(messages) - 1; i >= 0 && len(signatures) < historyLoopThreshold; i-- {
		m := messages[i]
		if m.Role != models.RoleAssistant || !m.HasToolCalls() {
			continue
		}
		signatures = append(signatures, signatureOf(m.ToolCalls[0]))
	}
	if len(signatures) < historyLoopThreshold {
		return false
	}
	first := signatures[0]
	for _, s := range signatures[1:] {
		if s != first {
			return false
		}
	}
	return true
}

// sortedToolNames is a small helper used by callers building a human
// readable summary of current tool usage (e.g. for a limit-hit activity).
func sortedToolNames(usage map[string]int) []string {
	names := make([]string, 0, len(usage))
	for n := range usage {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
