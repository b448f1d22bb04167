package agentrun

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/cortex/internal/skills"
)

// planInjection is appended to the system prompt at step 1 for depth>=1
// turns, asking the model to lay out its approach before acting.
// contextmgr.PlanMarker matches this message's prefix when a later turn
// needs the context manager to special-case it during compression.
const planInjection = contextmgrPlanMarker + " Before using any tools, briefly outline your plan: what you'll do and in what order. Keep it to a few sentences."

// contextmgrPlanMarker mirrors contextmgr.PlanMarker without importing
// contextmgr here (this package only ever writes the marker into a prompt
// string; contextmgr is the one that needs to recognize it later).
const contextmgrPlanMarker = "<plan>"

const reflectionInjection = "<reflection> Pause and check: does your plan still make sense given what you've learned so far? Adjust if needed, then continue."

// buildSystemPrompt assembles the turn's system prompt: base prompt, the
// current date, user instructions, active skill prompts, and the depth-1
// planning injection at step 1.
func buildSystemPrompt(basePrompt, userInstructions string, activeSkills []*skills.SkillEntry, depth, step int) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\nCurrent date: ")
	b.WriteString(time.Now().Format("2006-01-02"))
	if userInstructions != "" {
		b.WriteString("\n\nUser instructions:\n")
		b.WriteString(userInstructions)
	}
	for _, s := range activeSkills {
		b.WriteString("\n\n## Skill: ")
		b.WriteString(s.Name)
		b.WriteString("\n")
		b.WriteString(s.Content)
	}
	if depth >= 1 && step == 1 {
		b.WriteString("\n\n")
		b.WriteString(planInjection)
	}
	return b.String()
}

// activeSkillEntries resolves the loader's full catalog down to the
// entries named in active, skipping any TTL-tracked name the loader no
// longer knows about (e.g. a custom skill deleted mid-conversation).
func activeSkillEntries(all []*skills.SkillEntry, active map[string]int) []*skills.SkillEntry {
	if len(active) == 0 {
		return nil
	}
	byName := make(map[string]*skills.SkillEntry, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}
	out := make([]*skills.SkillEntry, 0, len(active))
	for name := range active {
		if s, ok := byName[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

func antiLoopInstruction() string {
	return "You appear to be repeating the same tool call without making progress. Stop and try a materially different approach, or explain to the user why you're stuck."
}

func recoveryPrompt(toolName, resultPreview string) string {
	return fmt.Sprintf("The last few calls to %q returned the same kind of result:\n\n%s\n\nThat approach isn't working. Take a different, concrete action instead of repeating it.", toolName, resultPreview)
}

func forceProgressPrompt() string {
	return "Your last two tool results were effectively identical. Change your approach: try a different tool, different arguments, or explain the blocker to the user."
}

func toolLimitPrompt(toolName string) string {
	return fmt.Sprintf("You've reached the usage limit for %q this turn. Synthesize what you've learned so far instead of calling it again.", toolName)
}

func totalLimitPrompt() string {
	return "You've reached the total tool-call limit for this turn. Wrap up now with the best answer you can give from what you've already gathered."
}

func researchArtifactNotice(path string) string {
	return fmt.Sprintf("Your research findings from this turn are being collected in %s for later reference.", path)
}

func toolOnlyNudge() string {
	return "You've made several tool calls in a row without saying anything to the user. Briefly explain what you're doing before continuing."
}
