package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ternlabs/tern/internal/engine"
)

func writeFile(fs FileSystem, workDir, path, content string) (string, error) {
	filePath, err := resolvePath(workDir, path)
	if err != nil {
		return "", err
	}

	if err := fs.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := fs.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	resultJSON, err := json.Marshal(map[string]any{
		"path":    path,
		"bytes":   len(content),
		"success": true,
	})
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// NewWriteFileTool builds the write_file tool bound to workDir.
func NewWriteFileTool(workDir string, fs FileSystem) engine.Tool {
	return &engine.FuncTool{
		ToolName: "write_file",
		Desc:     "Writes content to a file. Creates the file and any missing parent directories; overwrites if the file exists.",
		Schema:   `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file relative to the workspace root"},"content":{"type":"string","description":"Content to write to the file"}},"required":["path","content"]}`,
		CanRetry: false,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			content, ok := args["content"].(string)
			if !ok {
				return "", fmt.Errorf("content must be a string")
			}
			return writeFile(fs, workDir, path, content)
		},
	}
}
