package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ternlabs/tern/internal/agent"
	"github.com/ternlabs/tern/internal/config"
	"github.com/ternlabs/tern/internal/engine"
	"github.com/ternlabs/tern/internal/memory"
	"github.com/ternlabs/tern/internal/providers"
	"github.com/ternlabs/tern/internal/session"
	"github.com/ternlabs/tern/internal/tools"
	"github.com/ternlabs/tern/internal/workspace"
)

// runtimeEnv bundles everything a task run needs: the inference client,
// the tool registry rooted at the workspace, the files-touched tracker,
// episodic memory and the record store.
type runtimeEnv struct {
	WorkDir  string
	Model    string
	LLM      engine.LLMClient
	Registry *engine.ToolRegistry
	Records  *session.Store

	tracker *workspace.Tracker
	mem     *memory.Memory
}

func (r *runtimeEnv) Close() {
	if r.tracker != nil {
		if err := r.tracker.Stop(); err != nil {
			log.Printf("⚠️  failed to stop workspace tracker: %v", err)
		}
	}
	if r.mem != nil {
		if err := r.mem.Close(); err != nil {
			log.Printf("⚠️  failed to close memory: %v", err)
		}
	}
}

// FilesTouched reports the workspace files modified since the tracker
// started.
func (r *runtimeEnv) FilesTouched() []string {
	if r.tracker == nil {
		return nil
	}
	return r.tracker.Touched()
}

// Recall surfaces summaries of similar past episodes for the planner.
func (r *runtimeEnv) Recall(ctx context.Context, task agent.Task) []string {
	if r.mem == nil {
		return nil
	}
	summaries, err := r.mem.Recall(ctx, task.Description, task.Kind, 3)
	if err != nil {
		log.Printf("⚠️  episode recall failed: %v", err)
		return nil
	}
	return summaries
}

// RecordEpisode persists the finished run into memory and the record
// store. Failures are logged, not fatal: the task result stands either
// way.
func (r *runtimeEnv) RecordEpisode(task agent.Task, result agent.Result) {
	outcome := "failure"
	if result.Success {
		outcome = "success"
	}

	if r.mem != nil {
		ep := memory.Episode{
			TaskID:      task.ID,
			Kind:        task.Kind,
			Description: task.Description,
			Summary:     memory.Summarize(task.Kind, task.Description, outcome, result.Iterations, result.ValidationScore),
			Outcome:     outcome,
			Iterations:  result.Iterations,
			Score:       result.ValidationScore,
		}
		if err := r.mem.Record(context.Background(), ep); err != nil {
			log.Printf("⚠️  failed to record episode: %v", err)
		}
	}

	if r.Records != nil {
		rec := session.NewRecord(task, result)
		if err := r.Records.Save(&rec); err != nil {
			log.Printf("⚠️  failed to save task record: %v", err)
		}
	}
}

func prepareRuntimeEnv(ctx context.Context, workDirFlag string) (*runtimeEnv, error) {
	workDir := workDirFlag
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	if info, err := os.Stat(absWorkDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("workspace path is not a valid directory: %s", absWorkDir)
	}

	// Saved preferences feed the same env vars the factory reads; env set
	// by the user wins.
	userConfig, configDir := loadUserConfig()
	userConfig.ApplyToEnv()

	llm, model, err := providers.NewLLMClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to build inference client: %w", err)
	}

	registry, err := tools.NewRegistry(absWorkDir, nil, tools.FullSet())
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	env := &runtimeEnv{
		WorkDir:  absWorkDir,
		Model:    model,
		LLM:      llm,
		Registry: registry,
		Records:  session.NewStore(configDir),
	}

	tracker, err := workspace.NewTracker(absWorkDir)
	if err != nil {
		log.Printf("⚠️  file tracking disabled: %v", err)
	} else if err := tracker.Start(); err != nil {
		log.Printf("⚠️  file tracking disabled: %v", err)
	} else {
		env.tracker = tracker
	}

	memoryDir := userConfig.MemoryDir
	if memoryDir == "" {
		memoryDir = filepath.Join(configDir, "memory")
	}
	mem, err := memory.Open(ctx, memoryDir)
	if err != nil {
		log.Printf("⚠️  episodic memory disabled: %v", err)
	} else {
		env.mem = mem
	}

	return env, nil
}

// loadUserConfig loads saved preferences, falling back to an empty
// config (and a local .tern directory) when the user config dir is
// unavailable.
func loadUserConfig() (*config.Config, string) {
	manager, err := config.NewManager()
	if err != nil {
		log.Printf("⚠️  failed to locate user config dir: %v", err)
		return &config.Config{}, ".tern"
	}

	cfg, err := manager.Load()
	if err != nil {
		log.Printf("⚠️  failed to load user config: %v", err)
		return &config.Config{}, manager.Dir()
	}
	return cfg, manager.Dir()
}
