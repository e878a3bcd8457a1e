// Package sandbox runs agent-issued commands in an isolated environment.
// Docker containers are the preferred runtime; a host runner exists as a
// fallback for machines without a Docker daemon.
package sandbox

import (
	"context"
	"time"
)

// Result captures the output of one command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner executes a command inside a working directory with a timeout.
// A timeout <= 0 uses the runner's configured default.
type Runner interface {
	RunCmd(ctx context.Context, workDir, name string, args []string, timeout time.Duration) (Result, error)
}
