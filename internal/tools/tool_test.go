package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/cortex/internal/store"
	"github.com/haasonsaas/cortex/pkg/models"
)

func TestRegistryExecuteWriteThenReadFile(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry()
	r.Register(&WriteFileTool{Root: dir})
	r.Register(&ReadFileTool{Root: dir})

	writeArgs, _ := json.Marshal(map[string]string{"path": "note.txt", "content": "a\nb\nc"})
	res, err := r.Execute(context.Background(), "write_file", writeArgs)
	if err != nil {
		t.Fatalf("execute write: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}

	readArgs, _ := json.Marshal(map[string]string{"path": "note.txt"})
	res, err = r.Execute(context.Background(), "read_file", readArgs)
	if err != nil {
		t.Fatalf("execute read: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}

	var decoded struct {
		Content    string `json:"content"`
		TotalLines int    `json:"total_lines"`
	}
	if err := json.Unmarshal([]byte(res.Content), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded.TotalLines != 3 {
		t.Fatalf("expected 3 lines, got %d", decoded.TotalLines)
	}
}

func TestRegistryValidateRejectsMissingRequiredField(t *testing.T) {
	r := NewRegistry()
	r.Register(&ReadFileTool{})

	res, err := r.Execute(context.Background(), "read_file", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected a schema-validation error result")
	}
}

func TestRegistryUnknownToolIsErrorNotPanic(t *testing.T) {
	r := NewRegistry()
	res, err := r.Execute(context.Background(), "does_not_exist", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result for unknown tool")
	}
}

func TestListDirectoryToolListsEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tool := &ListDirectoryTool{Root: dir}
	args, _ := json.Marshal(map[string]string{"path": "."})
	res, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	var decoded struct {
		Entries []string `json:"entries"`
	}
	if err := json.Unmarshal([]byte(res.Content), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", decoded.Entries)
	}
}

func TestSearchTextToolFindsMatches(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("first line\nneedle here\nlast line"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tool := &SearchTextTool{Root: dir}
	args, _ := json.Marshal(map[string]string{"path": ".", "query": "needle"})
	res, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var decoded struct {
		Matches []string `json:"matches"`
	}
	if err := json.Unmarshal([]byte(res.Content), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Matches) != 1 {
		t.Fatalf("expected 1 match, got %+v", decoded.Matches)
	}
}

func TestRecallFromChatToolFindsSubstring(t *testing.T) {
	st := store.NewMemoryStore()
	conv := &models.Conversation{ID: "conv-1"}
	if err := st.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if _, err := st.AppendMessage(context.Background(), &models.Message{ConversationID: "conv-1", Role: models.RoleUser, Content: "the price is $42"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	tool := &RecallFromChatTool{Store: st}
	args, _ := json.Marshal(map[string]string{"conversation_id": "conv-1", "query": "$42"})
	res, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var decoded struct {
		Matches []struct {
			Content string `json:"content"`
		} `json:"matches"`
	}
	if err := json.Unmarshal([]byte(res.Content), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Matches) != 1 {
		t.Fatalf("expected 1 match, got %+v", decoded.Matches)
	}
}

func TestAsSpecsFiltersByName(t *testing.T) {
	r := NewRegistry()
	r.Register(&ReadFileTool{})
	r.Register(&WriteFileTool{})

	specs := r.AsSpecs("read_file")
	if len(specs) != 1 || specs[0].Name != "read_file" {
		t.Fatalf("expected exactly read_file, got %+v", specs)
	}
}
