// Package execution provides the command-running tool surface. Every
// command goes through a sandbox.Runner, so the same tools work against
// Docker isolation or a plain host process.
package execution

import (
	"context"
	"time"

	"github.com/ternlabs/tern/internal/sandbox"
)

// Runner abstracts command execution so tests can substitute a fake.
type Runner interface {
	RunCmd(ctx context.Context, workDir, name string, args []string, timeout time.Duration) (sandbox.Result, error)
}

// SandboxRunner routes commands through the configured sandbox. The
// underlying runner is picked once at construction (Docker when
// available, host otherwise).
type SandboxRunner struct {
	runner sandbox.Runner
}

// NewSandboxRunner builds a SandboxRunner with the default sandbox
// configuration.
func NewSandboxRunner() *SandboxRunner {
	return &SandboxRunner{runner: sandbox.NewDefaultRunner()}
}

func (r *SandboxRunner) RunCmd(ctx context.Context, workDir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	return r.runner.RunCmd(ctx, workDir, name, args, timeout)
}
