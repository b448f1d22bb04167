package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/pkg/models"
)

func writeSkillDir(t *testing.T, root, name, description, content string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := "---\nname: " + name + "\ndescription: " + description + "\n---\n" + content
	if err := os.WriteFile(filepath.Join(dir, SkillFilename), []byte(body), 0o644); err != nil {
		t.Fatalf("write skill manifest: %v", err)
	}
}

func TestLoaderDiscoversLocalSkills(t *testing.T) {
	dir := t.TempDir()
	writeSkillDir(t, dir, "pdf-tools", "Work with PDF files", "instructions here")

	l := NewLoader(dir, store.NewMemoryStore())
	entries, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "pdf-tools" {
		t.Fatalf("expected one local skill, got %+v", entries)
	}
	if entries[0].Source != SourceLocal {
		t.Fatalf("expected SourceLocal, got %s", entries[0].Source)
	}
}

func TestLoaderDiscoversCustomSkillsAndOverridesLocal(t *testing.T) {
	dir := t.TempDir()
	writeSkillDir(t, dir, "notes", "local description", "local content")

	st := store.NewMemoryStore()
	if err := st.SaveCustomSkill(context.Background(), &models.CustomSkill{
		Name:        "notes",
		Description: "db description",
		Content:     "db content",
	}); err != nil {
		t.Fatalf("save custom skill: %v", err)
	}

	l := NewLoader(dir, st)
	entries, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected custom skill to override, got %d entries", len(entries))
	}
	if entries[0].Source != SourceCustom || entries[0].Description != "db description" {
		t.Fatalf("expected custom skill to win, got %+v", entries[0])
	}
}

func TestLoaderGetBeforeLoad(t *testing.T) {
	l := NewLoader(t.TempDir(), store.NewMemoryStore())
	if _, ok := l.Get("missing"); ok {
		t.Fatal("expected no skill before Load is called")
	}
}

func TestLoaderSkipsMalformedManifest(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bad, SkillFilename), []byte("not frontmatter at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	writeSkillDir(t, dir, "good", "a good skill", "content")

	l := NewLoader(dir, store.NewMemoryStore())
	entries, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "good" {
		t.Fatalf("expected malformed skill skipped, got %+v", entries)
	}
}
