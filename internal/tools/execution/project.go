package execution

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ternlabs/tern/internal/engine"
	"github.com/ternlabs/tern/internal/workspace"
)

func unavailableResult(stderr, reason string, exitCode int) (string, error) {
	out := engine.ExecutionResult{
		ExitCode: exitCode,
		Stderr:   stderr,
		Status:   "unavailable",
		Reason:   reason,
	}
	resultJSON, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// runProjectCommand runs a detected build or test command and maps the
// outcome onto the shared ExecutionResult contract.
func runProjectCommand(ctx context.Context, runner Runner, workDir, cmdName string, args []string) (string, error) {
	res, err := runner.RunCmd(ctx, workDir, cmdName, args, 0)

	cmdStr := cmdName
	if len(args) > 0 {
		cmdStr += " " + strings.Join(args, " ")
	}

	out := engine.ExecutionResult{
		Cmd:      cmdStr,
		ExitCode: res.Code,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Status:   "ok",
	}
	if res.Code != 0 || err != nil {
		out.Status = "failed"
		if err != nil && strings.Contains(err.Error(), "executable file not found") {
			out.Status = "unavailable"
			out.Reason = "command_not_found"
		}
	}
	if strings.Contains(res.Stdout, "no tests found") {
		out.Status = "unavailable"
		out.Reason = "not_configured"
	}

	resultJSON, marshalErr := json.Marshal(out)
	if marshalErr != nil {
		return "", marshalErr
	}
	return string(resultJSON), nil
}

// NewRunBuildTool builds the run_build tool. It detects the project
// type under workDir and runs the conventional build command.
func NewRunBuildTool(workDir string, runner Runner) engine.Tool {
	return &engine.FuncTool{
		ToolName: "run_build",
		Desc:     "Runs the appropriate build command for the project type. Auto-detects project type (Go, Node, Python, Rust) and runs the corresponding build command.",
		Schema:   `{"type":"object","properties":{},"required":[]}`,
		CanRetry: true,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			projectType := workspace.DetectProjectType(workDir)
			if projectType == workspace.ProjectTypeUnknown {
				return unavailableResult("Could not detect project type", "not_configured", 1)
			}

			cmdName, cmdArgs := workspace.BuildCommand(projectType)
			if cmdName == "" {
				// Python has no build step; report success, not failure.
				if projectType == workspace.ProjectTypePython {
					return unavailableResult("", "not_configured", 0)
				}
				return unavailableResult("No build command available for project type: "+string(projectType), "not_configured", 1)
			}

			return runProjectCommand(ctx, runner, workDir, cmdName, cmdArgs)
		},
	}
}

// NewRunTestsTool builds the run_tests tool. It detects the project
// type under workDir and runs the conventional test command.
func NewRunTestsTool(workDir string, runner Runner) engine.Tool {
	return &engine.FuncTool{
		ToolName: "run_tests",
		Desc:     "Runs the appropriate test command for the project type. Auto-detects project type (Go, Node, Python, Rust) and runs the corresponding test command.",
		Schema:   `{"type":"object","properties":{},"required":[]}`,
		CanRetry: true,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			projectType := workspace.DetectProjectType(workDir)
			if projectType == workspace.ProjectTypeUnknown {
				return unavailableResult("Could not detect project type", "not_configured", 1)
			}

			cmdName, cmdArgs := workspace.TestCommand(projectType)
			if cmdName == "" {
				return unavailableResult("No test command available for project type: "+string(projectType), "not_configured", 1)
			}

			return runProjectCommand(ctx, runner, workDir, cmdName, cmdArgs)
		},
	}
}
