package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternlabs/tern/internal/engine"
)

const (
	// Files up to this many lines come back in full.
	fullReadLineLimit = 400
	// Lines shown from the head and the tail of a large file.
	previewWindow = 30
)

type readResult struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	LineCount   int    `json:"line_count"`
	ContentType string `json:"content_type"` // "full", "range", "preview"
	StartLine   int    `json:"start_line,omitempty"`
	EndLine     int    `json:"end_line,omitempty"`
}

func readFile(fs FileSystem, workDir, path string, startLine, endLine int) (string, error) {
	filePath, err := resolvePath(workDir, path)
	if err != nil {
		return "", err
	}

	contentBytes, err := fs.ReadFile(filePath)
	if err != nil {
		return "", err
	}

	content := string(contentBytes)
	lines := strings.Split(content, "\n")
	lineCount := len(lines)

	var res readResult
	switch {
	case startLine > 0:
		// Explicit range request. Clamp to the file.
		if endLine <= 0 || endLine > lineCount {
			endLine = lineCount
		}
		if startLine > lineCount {
			return "", fmt.Errorf("start_line %d is past the end of %s (%d lines)", startLine, path, lineCount)
		}
		res = readResult{
			Path:        path,
			Content:     strings.Join(lines[startLine-1:endLine], "\n"),
			LineCount:   lineCount,
			ContentType: "range",
			StartLine:   startLine,
			EndLine:     endLine,
		}

	case lineCount <= fullReadLineLimit:
		res = readResult{
			Path:        path,
			Content:     content,
			LineCount:   lineCount,
			ContentType: "full",
		}

	default:
		res = readResult{
			Path:        path,
			Content:     previewLargeFile(lines),
			LineCount:   lineCount,
			ContentType: "preview",
		}
	}

	resultJSON, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// previewLargeFile shows the head and tail of a file too large to
// return whole, with line numbers so a follow-up range read can target
// the middle.
func previewLargeFile(lines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File has %d lines; showing first and last %d. Re-read with start_line/end_line for the rest.\n\n", len(lines), previewWindow)
	for i := 0; i < previewWindow && i < len(lines); i++ {
		fmt.Fprintf(&b, "%5d: %s\n", i+1, lines[i])
	}
	omitted := len(lines) - 2*previewWindow
	if omitted > 0 {
		fmt.Fprintf(&b, "\n... %d lines omitted (read_file with start_line=%d to continue) ...\n\n", omitted, previewWindow+1)
	}
	start := len(lines) - previewWindow
	if start < previewWindow {
		start = previewWindow
	}
	for i := start; i < len(lines); i++ {
		fmt.Fprintf(&b, "%5d: %s\n", i+1, lines[i])
	}
	return b.String()
}

// NewReadFileTool builds the read_file tool bound to workDir.
func NewReadFileTool(workDir string, fs FileSystem) engine.Tool {
	return &engine.FuncTool{
		ToolName: "read_file",
		Desc:     "Reads a file from the workspace. Small files come back whole; large files come back as a head/tail preview with line numbers. Pass start_line and end_line to read a specific range.",
		Schema:   `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file relative to the workspace root"},"start_line":{"type":"integer","minimum":1,"description":"Optional: first line of a range to read (1-based)"},"end_line":{"type":"integer","minimum":1,"description":"Optional: last line of the range, inclusive"}},"required":["path"]}`,
		CanRetry: true,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			startLine := intArg(args, "start_line")
			endLine := intArg(args, "end_line")
			return readFile(fs, workDir, path, startLine, endLine)
		},
	}
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
