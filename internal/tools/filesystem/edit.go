package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternlabs/tern/internal/engine"
)

var generatedFileMarkers = []string{
	"Code generated",
	"DO NOT EDIT",
	"Auto-generated",
	"automatically generated",
	"This file is generated",
}

func editFailure(path, message string) (string, error) {
	resultJSON, err := json.Marshal(map[string]any{
		"path":   path,
		"status": "failed",
		"error":  message,
	})
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

func editFile(fs FileSystem, workDir, path, oldString, newString string, replaceAll bool) (string, error) {
	filePath, err := resolvePath(workDir, path)
	if err != nil {
		return "", err
	}

	contentBytes, err := fs.ReadFile(filePath)
	if err != nil {
		return editFailure(path, fmt.Sprintf("failed to read file: %v", err))
	}
	content := string(contentBytes)

	if isGenerated, marker := isGeneratedFile(content); isGenerated {
		return editFailure(path, fmt.Sprintf("file appears to be generated (found %q); edit the generator instead", marker))
	}

	if oldString == newString {
		return editFailure(path, "old_string and new_string are identical, nothing to change")
	}

	count := strings.Count(content, oldString)
	if count == 0 {
		hint := ""
		normalizedContent := strings.Join(strings.Fields(content), " ")
		normalizedOld := strings.Join(strings.Fields(oldString), " ")
		if strings.Contains(normalizedContent, normalizedOld) {
			hint = " The text exists with different whitespace; re-read the file and copy it exactly."
		}
		return editFailure(path, "old_string not found in file."+hint)
	}
	if count > 1 && !replaceAll {
		return editFailure(path, fmt.Sprintf("old_string appears %d times; include more surrounding context to make it unique, or set replace_all", count))
	}

	var newContent string
	replacements := 1
	if replaceAll {
		newContent = strings.ReplaceAll(content, oldString, newString)
		replacements = count
	} else {
		newContent = strings.Replace(content, oldString, newString, 1)
	}

	if err := fs.WriteFile(filePath, []byte(newContent), 0o644); err != nil {
		return editFailure(path, fmt.Sprintf("failed to write file: %v", err))
	}

	resultJSON, err := json.Marshal(map[string]any{
		"path":         path,
		"status":       "success",
		"replacements": replacements,
	})
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// isGeneratedFile checks the head of a file for generated-code markers.
func isGeneratedFile(content string) (bool, string) {
	preview := content
	if len(preview) > 500 {
		preview = preview[:500]
	}
	for _, marker := range generatedFileMarkers {
		if strings.Contains(preview, marker) {
			return true, marker
		}
	}
	return false, ""
}

// NewEditFileTool builds the edit_file tool bound to workDir.
func NewEditFileTool(workDir string, fs FileSystem) engine.Tool {
	return &engine.FuncTool{
		ToolName: "edit_file",
		Desc:     "Performs exact string search and replace in a file. This is the primary tool for editing existing files; read the file first to copy the exact text to replace.",
		Schema:   `{"type":"object","properties":{"path":{"type":"string","description":"File path relative to the workspace root"},"old_string":{"type":"string","description":"Exact string to find and replace"},"new_string":{"type":"string","description":"Replacement string"},"replace_all":{"type":"boolean","description":"If true, replace all occurrences"}},"required":["path","old_string","new_string"]}`,
		CanRetry: false,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			oldString, ok := args["old_string"].(string)
			if !ok {
				return "", fmt.Errorf("old_string must be a string")
			}
			newString, ok := args["new_string"].(string)
			if !ok {
				return "", fmt.Errorf("new_string must be a string")
			}
			replaceAll := false
			if ra, ok := args["replace_all"].(bool); ok {
				replaceAll = ra
			}
			return editFile(fs, workDir, path, oldString, newString, replaceAll)
		},
	}
}
