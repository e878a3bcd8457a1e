// Package tools wires the individual tool packages into an
// engine.ToolRegistry ready for an executor.
package tools

import (
	"fmt"

	"github.com/ternlabs/tern/internal/engine"
	"github.com/ternlabs/tern/internal/tools/execution"
	"github.com/ternlabs/tern/internal/tools/filesystem"
	"github.com/ternlabs/tern/internal/tools/search"
)

// Set selects which tool groups a registry exposes.
type Set struct {
	Filesystem bool
	Search     bool
	Execution  bool
}

// FullSet enables every tool group.
func FullSet() Set {
	return Set{Filesystem: true, Search: true, Execution: true}
}

// NewRegistry builds a registry for the workspace rooted at workDir.
// A nil runner gets the default sandbox runner.
func NewRegistry(workDir string, runner execution.Runner, set Set) (*engine.ToolRegistry, error) {
	if workDir == "" {
		return nil, fmt.Errorf("workDir is required")
	}
	if runner == nil {
		runner = execution.NewSandboxRunner()
	}

	reg := engine.NewToolRegistry()

	if set.Filesystem {
		fs := filesystem.NewOSFileSystem()
		reg.MustRegister(filesystem.NewReadFileTool(workDir, fs))
		reg.MustRegister(filesystem.NewWriteFileTool(workDir, fs))
		reg.MustRegister(filesystem.NewEditFileTool(workDir, fs))
		reg.MustRegister(filesystem.NewListFilesTool(workDir, fs))
		reg.MustRegister(filesystem.NewDeleteFileTool(workDir, fs))
	}

	if set.Search {
		reg.MustRegister(search.NewGrepTool(workDir, runner))
	}

	if set.Execution {
		reg.MustRegister(execution.NewRunCmdTool(workDir, runner))
		reg.MustRegister(execution.NewRunBuildTool(workDir, runner))
		reg.MustRegister(execution.NewRunTestsTool(workDir, runner))
	}

	return reg, nil
}
