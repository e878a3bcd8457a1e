package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/ternlabs/tern/internal/engine"
)

var defaultListIgnores = []string{".git", "node_modules", "vendor", "__pycache__", "target", "dist"}

func listFiles(fileSys FileSystem, workDir, path string, recursive bool, maxDepth, limit int, ignorePatterns []string) (string, error) {
	dirPath, err := resolvePath(workDir, path)
	if err != nil {
		return "", err
	}

	matcher := gitignore.CompileIgnoreLines(ignorePatterns...)

	files := make([]string, 0)
	truncated := false

	if recursive {
		walkErr := fileSys.WalkDir(dirPath, func(walkPath string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if walkPath == dirPath {
				return nil
			}

			relPath, err := filepath.Rel(workDir, walkPath)
			if err != nil {
				return nil
			}
			if matcher.MatchesPath(relPath) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if maxDepth >= 0 {
				relFromStart, err := filepath.Rel(dirPath, walkPath)
				if err == nil && strings.Count(relFromStart, string(filepath.Separator)) > maxDepth {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}

			files = append(files, relPath)
			if len(files) >= limit {
				truncated = true
				return filepath.SkipAll
			}
			return nil
		})
		if walkErr != nil {
			return "", walkErr
		}
	} else {
		entries, err := fileSys.ReadDir(dirPath)
		if err != nil {
			return "", err
		}
		for _, entry := range entries {
			relPath := entry.Name()
			if path != "" {
				relPath = filepath.Join(path, entry.Name())
			}
			if matcher.MatchesPath(relPath) {
				continue
			}
			files = append(files, relPath)
			if len(files) >= limit {
				truncated = true
				break
			}
		}
	}

	resultJSON, err := json.Marshal(map[string]any{
		"path":      path,
		"files":     files,
		"recursive": recursive,
		"truncated": truncated,
	})
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// NewListFilesTool builds the list_files tool bound to workDir.
func NewListFilesTool(workDir string, fs FileSystem) engine.Tool {
	return &engine.FuncTool{
		ToolName: "list_files",
		Desc:     "Lists files in the workspace. Use this to discover which files exist before reading them. Supports recursive listing and gitignore-style ignore patterns.",
		Schema: `{"type":"object","properties":{
			"path":{"type":"string","description":"Optional: subdirectory path relative to the workspace root (empty string for root)"},
			"recursive":{"type":"boolean","description":"If true, list files recursively. Default: false"},
			"max_depth":{"type":"integer","description":"Maximum depth for recursive listing. Default: -1 (unlimited)"},
			"limit":{"type":"integer","description":"Maximum number of entries to return. Default: 1000"},
			"ignore_patterns":{"type":"array","items":{"type":"string"},"description":"Gitignore-style patterns to skip. Default: .git, node_modules, vendor and friends"}
		},"required":[]}`,
		CanRetry: true,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path := ""
			if p, ok := args["path"].(string); ok {
				path = p
			}
			recursive := false
			if r, ok := args["recursive"].(bool); ok {
				recursive = r
			}
			maxDepth := -1
			if d := intArg(args, "max_depth"); d > 0 {
				maxDepth = d
			}
			limit := 1000
			if l := intArg(args, "limit"); l > 0 {
				limit = l
			}
			ignorePatterns := defaultListIgnores
			if raw, ok := args["ignore_patterns"].([]any); ok {
				custom := make([]string, 0, len(raw))
				for _, p := range raw {
					if s, ok := p.(string); ok {
						custom = append(custom, s)
					}
				}
				if len(custom) > 0 {
					ignorePatterns = custom
				}
			}
			if path != "" && strings.HasPrefix(path, "/") {
				return "", fmt.Errorf("path must be relative to the workspace root")
			}
			return listFiles(fs, workDir, path, recursive, maxDepth, limit, ignorePatterns)
		},
	}
}
