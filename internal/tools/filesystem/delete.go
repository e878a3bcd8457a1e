package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ternlabs/tern/internal/engine"
)

func deleteFile(fs FileSystem, workDir, relPath string) (string, error) {
	absPath, err := resolvePath(workDir, relPath)
	if err != nil {
		return "", err
	}

	info, err := fs.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			resultJSON, _ := json.Marshal(map[string]any{
				"path":    relPath,
				"success": true,
				"message": "File does not exist (already deleted)",
			})
			return string(resultJSON), nil
		}
		return "", fmt.Errorf("failed to check file: %w", err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("cannot delete directory %s (delete_file only removes files)", relPath)
	}

	if err := fs.Remove(absPath); err != nil {
		return "", fmt.Errorf("failed to delete file: %w", err)
	}

	resultJSON, err := json.Marshal(map[string]any{
		"path":    relPath,
		"success": true,
	})
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// NewDeleteFileTool builds the delete_file tool bound to workDir.
func NewDeleteFileTool(workDir string, fs FileSystem) engine.Tool {
	return &engine.FuncTool{
		ToolName: "delete_file",
		Desc:     "Deletes a file from the workspace. Cannot delete directories. Use this to remove conflicting files or clean up temporary files.",
		Schema:   `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file to delete, relative to the workspace root"}},"required":["path"]}`,
		CanRetry: false,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			if path == "" {
				return "", fmt.Errorf("path cannot be empty")
			}
			return deleteFile(fs, workDir, path)
		},
	}
}
