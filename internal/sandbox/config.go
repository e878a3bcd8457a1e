package sandbox

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Mode selects the sandbox runtime.
type Mode string

const (
	ModeDocker Mode = "docker" // containers, fails closed to host with a warning
	ModeHost   Mode = "host"   // no isolation
	ModeAuto   Mode = "auto"   // docker if the daemon answers, host otherwise
)

// Config holds sandbox settings.
type Config struct {
	Mode        Mode
	DockerImage string        // custom image override
	CPU         string        // e.g. "2"
	Memory      string        // e.g. "1g"
	CmdTimeout  time.Duration // default per-command timeout
}

// DefaultConfig reads sandbox settings from the environment.
func DefaultConfig() Config {
	modeStr := strings.ToLower(os.Getenv("TERN_SANDBOX_MODE"))
	if modeStr == "" {
		modeStr = "auto"
	}

	var mode Mode
	switch modeStr {
	case "docker":
		mode = ModeDocker
	case "host":
		mode = ModeHost
	case "auto":
		mode = ModeAuto
	default:
		log.Printf("⚠️ unknown TERN_SANDBOX_MODE %q, using auto", modeStr)
		mode = ModeAuto
	}

	cmdTimeout := 2 * time.Minute
	if timeoutStr := os.Getenv("TERN_CMD_TIMEOUT"); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil && d > 0 {
			cmdTimeout = d
		} else {
			log.Printf("⚠️ invalid TERN_CMD_TIMEOUT %q, using 2m", timeoutStr)
		}
	}

	return Config{
		Mode:        mode,
		DockerImage: os.Getenv("TERN_DOCKER_IMAGE"),
		CPU:         envOr("TERN_DOCKER_CPU", "2"),
		Memory:      envOr("TERN_DOCKER_MEMORY", "1g"),
		CmdTimeout:  cmdTimeout,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// IsDockerAvailable reports whether the Docker daemon answers.
func IsDockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	return cmd.Run() == nil
}

// NewDefaultRunner selects a runner per the configured mode, preferring
// Docker and warning loudly whenever commands end up on the bare host.
func NewDefaultRunner() Runner {
	config := DefaultConfig()
	ctx := context.Background()

	switch config.Mode {
	case ModeDocker, ModeAuto:
		if IsDockerAvailable(ctx) {
			runner, err := NewDockerRunner(config)
			if err == nil {
				return runner
			}
			log.Printf("⚠️ docker runner unavailable (%v), falling back to host execution", err)
		} else if config.Mode == ModeDocker {
			log.Printf("⚠️ docker mode requested but the daemon is unreachable, falling back to host execution")
		} else {
			log.Printf("⚠️ docker not available, commands run on the host without isolation")
		}
		return &HostRunner{config: config}

	case ModeHost:
		log.Printf("⚠️ host execution mode: commands run without isolation")
		return &HostRunner{config: config}

	default:
		return &HostRunner{config: config}
	}
}

// NewRunner creates a specific runner implementation.
func NewRunner(mode Mode, config Config) (Runner, error) {
	switch mode {
	case ModeDocker:
		return NewDockerRunner(config)
	case ModeHost:
		return &HostRunner{config: config}, nil
	default:
		return nil, fmt.Errorf("unknown runner mode: %s", mode)
	}
}
