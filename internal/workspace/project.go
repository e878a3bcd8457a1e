// Package workspace knows about the directory the agent operates on:
// what kind of project lives there and which files a task run touched.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType labels the toolchain a workspace belongs to.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

var manifestFiles = []struct {
	name string
	typ  ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

var extensionGroups = map[ProjectType][]string{
	ProjectTypeGo:     {".go"},
	ProjectTypeNode:   {".ts", ".tsx", ".js", ".jsx"},
	ProjectTypePython: {".py"},
	ProjectTypeRust:   {".rs"},
}

// DetectProjectType identifies the project type, manifest files first
// with a source-extension count as fallback.
func DetectProjectType(root string) ProjectType {
	for _, m := range manifestFiles {
		if _, err := os.Stat(filepath.Join(root, m.name)); err == nil {
			return m.typ
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return ProjectTypeUnknown
	}

	extCounts := make(map[string]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(entry.Name())); ext != "" {
			extCounts[ext]++
		}
	}

	best := ProjectTypeUnknown
	bestCount := 0
	for typ, exts := range extensionGroups {
		count := 0
		for _, ext := range exts {
			count += extCounts[ext]
		}
		if count > bestCount {
			best, bestCount = typ, count
		}
	}

	// A couple of stray files is not enough signal.
	if bestCount < 3 {
		return ProjectTypeUnknown
	}
	return best
}

// BuildCommand returns the conventional build command for a project
// type, or ("", nil) when there is none.
func BuildCommand(typ ProjectType) (string, []string) {
	switch typ {
	case ProjectTypeGo:
		return "go", []string{"build", "./..."}
	case ProjectTypeNode:
		return "npm", []string{"run", "build"}
	case ProjectTypeRust:
		return "cargo", []string{"build"}
	default:
		return "", nil
	}
}

// TestCommand returns the conventional test command for a project type.
func TestCommand(typ ProjectType) (string, []string) {
	switch typ {
	case ProjectTypeGo:
		return "go", []string{"test", "./..."}
	case ProjectTypeNode:
		return "npm", []string{"test"}
	case ProjectTypePython:
		return "pytest", nil
	case ProjectTypeRust:
		return "cargo", []string{"test"}
	default:
		return "", nil
	}
}
