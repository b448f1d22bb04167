package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "database:\n  path: test.db\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Path != "test.db" {
		t.Fatalf("expected explicit path to survive, got %q", cfg.Database.Path)
	}
	if cfg.Server.Port != 8787 {
		t.Fatalf("expected default port 8787, got %d", cfg.Server.Port)
	}
	if cfg.LLM.Profiles.Default.Model != "claude-sonnet-4-20250514" {
		t.Fatalf("expected default model fallback, got %q", cfg.LLM.Profiles.Default.Model)
	}
	if cfg.LLM.Profiles.Routing.Provider != cfg.LLM.Profiles.Cheap.Provider {
		t.Fatalf("expected routing profile to fall back to cheap profile")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	os.Setenv("NEXUS_TEST_API_KEY", "sk-test-123")
	defer os.Unsetenv("NEXUS_TEST_API_KEY")

	path := writeTempConfig(t, "llm:\n  providers:\n    anthropic:\n      api_key: ${NEXUS_TEST_API_KEY}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-test-123" {
		t.Fatalf("expected env expansion, got %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, "bogus_top_level_key: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}
