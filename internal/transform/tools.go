package transform

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// ToolRenderer turns one generic tool_use block into a display line.
type ToolRenderer func(name string, input json.RawMessage, worktree string) string

// toolArgs covers the argument names shared by the common tools. Unknown
// fields are simply absent.
type toolArgs struct {
	FilePath string `json:"file_path"`
	Command  string `json:"command"`
	Pattern  string `json:"pattern"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Query    string `json:"query"`
	Prompt   string `json:"prompt"`
}

// RenderToolUse is the default tool renderer: a single line naming the tool
// and its most relevant argument.
func RenderToolUse(name string, input json.RawMessage, worktree string) string {
	var args toolArgs
	decodeInput(input, &args)

	detail := ""
	switch {
	case args.FilePath != "":
		detail = relPath(args.FilePath, worktree)
	case args.Command != "":
		detail = firstLine(args.Command, 80)
	case args.Pattern != "":
		detail = args.Pattern
	case args.URL != "":
		detail = args.URL
	case args.Query != "":
		detail = args.Query
	case args.Path != "":
		detail = relPath(args.Path, worktree)
	}
	if detail == "" {
		return fmt.Sprintf("🔧 *%s*", name)
	}
	return fmt.Sprintf("🔧 *%s* `%s`", name, detail)
}

func decodeInput(input json.RawMessage, dst any) {
	if len(input) == 0 {
		return
	}
	// Malformed tool input renders as a bare tool name rather than failing
	// the whole event.
	_ = json.Unmarshal(input, dst)
}

func relPath(path, worktree string) string {
	if worktree == "" {
		return path
	}
	if rel, err := filepath.Rel(worktree, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	if len(s) > max {
		s = s[:max] + "…"
	}
	return s
}
