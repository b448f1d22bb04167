package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ReadFileTool reads a file and reports its line count.
type ReadFileTool struct{ Root string }

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a UTF-8 text file and return its contents." }
func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"],"additionalProperties":false}`)
}

type readFileArgs struct {
	Path string `json:"path"`
}

func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var args readFileArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &Result{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	path := t.resolve(args.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		return &Result{Content: fmt.Sprintf("read %s: %v", args.Path, err), IsError: true}, nil
	}
	lines := strings.Count(string(data), "\n") + 1
	payload, _ := json.Marshal(map[string]any{
		"content":     string(data),
		"total_lines": lines,
	})
	return &Result{Content: string(payload)}, nil
}

func (t *ReadFileTool) resolve(path string) string {
	if t.Root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(t.Root, path)
}

// WriteFileTool writes a file, overwriting it if present.
type WriteFileTool struct{ Root string }

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file, creating or overwriting it." }
func (t *WriteFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"],"additionalProperties":false}`)
}

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var args writeFileArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &Result{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	path := resolveUnder(t.Root, args.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return &Result{Content: fmt.Sprintf("write %s: %v", args.Path, err), IsError: true}, nil
	}
	return &Result{Content: "File written successfully"}, nil
}

// EditFileTool performs a literal find-and-replace within an existing file.
type EditFileTool struct{ Root string }

func (t *EditFileTool) Name() string        { return "edit_file" }
func (t *EditFileTool) Description() string { return "Replace the first occurrence of old_text with new_text in a file." }
func (t *EditFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"old_text":{"type":"string"},"new_text":{"type":"string"}},"required":["path","old_text","new_text"],"additionalProperties":false}`)
}

type editFileArgs struct {
	Path    string `json:"path"`
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

func (t *EditFileTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var args editFileArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &Result{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	path := resolveUnder(t.Root, args.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		return &Result{Content: fmt.Sprintf("read %s: %v", args.Path, err), IsError: true}, nil
	}
	if !strings.Contains(string(data), args.OldText) {
		return &Result{Content: "old_text not found in file", IsError: true}, nil
	}
	updated := strings.Replace(string(data), args.OldText, args.NewText, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return &Result{Content: fmt.Sprintf("write %s: %v", args.Path, err), IsError: true}, nil
	}
	return &Result{Content: "File edited successfully"}, nil
}

// ShellTool runs a single shell command with a bounded timeout. No
// sandboxing is implemented — that's an explicit non-goal.
type ShellTool struct {
	Root    string
	Timeout time.Duration
}

func (t *ShellTool) Name() string        { return "shell" }
func (t *ShellTool) Description() string { return "Run a shell command and return its combined output." }
func (t *ShellTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"],"additionalProperties":false}`)
}

type shellArgs struct {
	Command string `json:"command"`
}

func (t *ShellTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var args shellArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &Result{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	timeout := t.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", args.Command)
	if t.Root != "" {
		cmd.Dir = t.Root
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil {
		return &Result{Content: fmt.Sprintf("%s\nexit error: %v", out.String(), err), IsError: true}, nil
	}
	return &Result{Content: out.String()}, nil
}

func resolveUnder(root, path string) string {
	if root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// ListDirectoryTool lists the immediate entries of a directory. It's one of
// the read-only tools the explore executor uses.
type ListDirectoryTool struct{ Root string }

func (t *ListDirectoryTool) Name() string { return "list_directory" }
func (t *ListDirectoryTool) Description() string {
	return "List the files and subdirectories directly inside a directory."
}
func (t *ListDirectoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"],"additionalProperties":false}`)
}

type listDirectoryArgs struct {
	Path string `json:"path"`
}

func (t *ListDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var args listDirectoryArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &Result{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	path := resolveUnder(t.Root, args.Path)
	entries, err := os.ReadDir(path)
	if err != nil {
		return &Result{Content: fmt.Sprintf("list %s: %v", args.Path, err), IsError: true}, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name()+"/")
			continue
		}
		names = append(names, e.Name())
	}
	payload, _ := json.Marshal(map[string]any{"entries": names})
	return &Result{Content: string(payload)}, nil
}

// SearchTextTool performs a literal substring search across files under a
// directory, the text-search read-only tool the explore executor uses.
type SearchTextTool struct{ Root string }

func (t *SearchTextTool) Name() string { return "search_text" }
func (t *SearchTextTool) Description() string {
	return "Search for a literal substring across text files under a directory, returning matching file:line pairs."
}
func (t *SearchTextTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"query":{"type":"string"}},"required":["path","query"],"additionalProperties":false}`)
}

type searchTextArgs struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

const maxSearchTextMatches = 200

func (t *SearchTextTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var args searchTextArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &Result{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	root := resolveUnder(t.Root, args.Path)

	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || len(matches) >= maxSearchTextMatches {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, args.Query) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", path, i+1, strings.TrimSpace(line)))
				if len(matches) >= maxSearchTextMatches {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return &Result{Content: fmt.Sprintf("search %s: %v", args.Path, err), IsError: true}, nil
	}
	payload, _ := json.Marshal(map[string]any{"matches": matches})
	return &Result{Content: string(payload)}, nil
}
