// Command tern runs one task through the autonomous executor: it plans
// with the configured model, acts on the workspace through sandboxed
// tools, validates its own results and stops when it converges or the
// iteration budget runs out.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ternlabs/tern/internal/agent"
	"github.com/ternlabs/tern/internal/engine"
)

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("tern", flag.ExitOnError)
	kind := fs.String("kind", "task", "Task kind label, used for cross-session stats (build, fix, refactor, ...)")
	workDir := fs.String("workdir", "", "Path to the workspace root (default: current directory)")
	expect := fs.String("expect", "", "Comma-separated substrings that must appear in tool output for success")
	files := fs.String("files", "", "Comma-separated files the task names up front")
	verbose := fs.Bool("verbose", false, "Verbose logging of inference and tool calls")
	listRecords := fs.Bool("list", false, "List past task records for this workspace and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tern [flags] \"task description\"\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := prepareRuntimeEnv(ctx, *workDir)
	if err != nil {
		log.Fatalf("failed to prepare runtime environment: %v", err)
	}
	defer env.Close()

	if *listRecords {
		if err := printRecords(env); err != nil {
			log.Fatalf("failed to list records: %v", err)
		}
		return
	}

	description := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if description == "" {
		fs.Usage()
		os.Exit(2)
	}

	task := agent.NewTask(*kind, description, env.WorkDir)
	task.ExpectedOutputs = splitList(*expect)
	task.Files = splitList(*files)

	executor, err := buildExecutor(env, *verbose)
	if err != nil {
		log.Fatalf("failed to build executor: %v", err)
	}

	log.Printf("🌊 tern starting task %s (kind=%s, model=%s, workspace=%s)", task.ID, task.Kind, env.Model, env.WorkDir)

	result, err := executor.Run(ctx, task)
	if err != nil {
		log.Fatalf("task aborted: %v", err)
	}

	printResult(result)
	if !result.Success {
		os.Exit(1)
	}
}

func buildExecutor(env *runtimeEnv, verbose bool) (*agent.Executor, error) {
	cfg := agent.DefaultConfig(env.Model)

	executor, err := agent.NewExecutor(cfg, env.LLM, env.Registry)
	if err != nil {
		return nil, err
	}

	executor.
		WithHooks(engine.LoggerHook{Verbose: verbose}).
		WithTelemetry(agent.LogTelemetry{Verbose: verbose}).
		WithFilesTouched(env.FilesTouched).
		WithRecall(env.Recall).
		WithEpisodeRecorder(env.RecordEpisode)

	return executor, nil
}

func printResult(result agent.Result) {
	status := "✅ success"
	if !result.Success {
		status = "❌ failure"
	}
	log.Printf("%s in %d iteration(s), score %.2f, %s",
		status, result.Iterations, result.ValidationScore, result.Duration.Round(time.Millisecond))
	if len(result.FilesTouched) > 0 {
		log.Printf("📁 files touched: %s", strings.Join(result.FilesTouched, ", "))
	}
	fmt.Println(result.Output)
}

func printRecords(env *runtimeEnv) error {
	metas, err := env.Records.List(env.WorkDir)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("no records for this workspace")
		return nil
	}
	for _, m := range metas {
		status := "ok"
		if !m.Success {
			status = "failed"
		}
		fmt.Printf("%s  %-8s %-6s  %s\n", m.UpdatedAt.Format("2006-01-02 15:04"), m.Kind, status, m.Description)
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
