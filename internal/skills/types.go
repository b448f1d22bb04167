// Package skills implements skill discovery and per-turn routing: the set
// of markdown-defined capability prompts the agent loop can fold into its
// system prompt, and the decay-TTL policy deciding which skills stay active
// turn over turn.
package skills

// SkillEntry is a discovered skill: a name, a one-line description used in
// routing prompts, and the markdown instructions injected into the system
// prompt once the skill is active.
type SkillEntry struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Content     string `json:"-"`
	Path        string `json:"path,omitempty"`
	Source      SourceType `json:"source"`
}

// SourceType indicates where a skill was discovered from.
type SourceType string

const (
	// SourceLocal is a filesystem directory skill: a folder containing a
	// SKILL.md manifest (YAML frontmatter + markdown body).
	SourceLocal SourceType = "local"
	// SourceCustom is a skill stored in A's CustomSkills table, authored
	// through the running agent rather than shipped on disk.
	SourceCustom SourceType = "custom"
)
