package memory

import (
	"context"
	"strings"
	"testing"
)

func openTestMemory(t *testing.T) *Memory {
	t.Helper()
	mem, err := Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { mem.Close() })
	return mem
}

func TestNewStoreRejectsUnusablePath(t *testing.T) {
	// A directory cannot be opened as a database file; NewStore must
	// report the failure instead of handing back a half-open store.
	if _, err := NewStore(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for a directory path")
	}
}

func TestRecordAndRecall(t *testing.T) {
	mem := openTestMemory(t)
	ctx := context.Background()

	episodes := []Episode{
		{
			TaskID:      "t1",
			Kind:        "fix",
			Description: "fix the flaky websocket reconnect test",
			Summary:     Summarize("fix", "fix the flaky websocket reconnect test", "success", 3, 0.91),
			Outcome:     "success",
			Iterations:  3,
			Score:       0.91,
		},
		{
			TaskID:      "t2",
			Kind:        "feature",
			Description: "add csv export to the report generator",
			Summary:     Summarize("feature", "add csv export to the report generator", "failure", 8, 0.42),
			Outcome:     "failure",
			Iterations:  8,
			Score:       0.42,
		},
	}
	for _, e := range episodes {
		if err := mem.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	summaries, err := mem.Recall(ctx, "websocket reconnect", "", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(summaries) == 0 {
		t.Fatal("expected at least one recall hit")
	}
	if !strings.Contains(summaries[0], "websocket") {
		t.Errorf("top summary = %q, want websocket episode first", summaries[0])
	}
}

func TestRecallFiltersByKind(t *testing.T) {
	mem := openTestMemory(t)
	ctx := context.Background()

	for _, e := range []Episode{
		{TaskID: "a", Kind: "fix", Description: "repair parser crash", Summary: "fix: parser crash repaired", Outcome: "success", Iterations: 2, Score: 0.9},
		{TaskID: "b", Kind: "feature", Description: "parser feature flag", Summary: "feature: parser flag added", Outcome: "success", Iterations: 4, Score: 0.8},
	} {
		if err := mem.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	summaries, err := mem.Recall(ctx, "parser", "fix", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	for _, s := range summaries {
		if strings.HasPrefix(s, "feature:") {
			t.Errorf("kind filter leaked a feature episode: %q", s)
		}
	}
}

func TestRecallFallsBackToRecent(t *testing.T) {
	mem := openTestMemory(t)
	ctx := context.Background()

	ep := Episode{
		TaskID:      "t1",
		Kind:        "refactor",
		Description: "split the storage layer",
		Summary:     "refactor: storage layer split",
		Outcome:     "success",
		Iterations:  5,
		Score:       0.85,
	}
	if err := mem.Record(ctx, ep); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Query shares no terms with the stored episode.
	summaries, err := mem.Recall(ctx, "zzzzqqqq", "refactor", 3)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(summaries) != 1 || summaries[0] != ep.Summary {
		t.Errorf("fallback summaries = %v", summaries)
	}
}

func TestStatsAggregates(t *testing.T) {
	mem := openTestMemory(t)
	ctx := context.Background()

	for _, e := range []Episode{
		{TaskID: "1", Kind: "fix", Description: "a", Summary: "a", Outcome: "success", Iterations: 2, Score: 1.0},
		{TaskID: "2", Kind: "fix", Description: "b", Summary: "b", Outcome: "failure", Iterations: 6, Score: 0.5},
		{TaskID: "3", Kind: "feature", Description: "c", Summary: "c", Outcome: "success", Iterations: 4, Score: 0.9},
	} {
		if err := mem.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	stats, err := mem.Stats(ctx, "fix")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Attempts != 2 || stats.Successes != 1 {
		t.Errorf("attempts=%d successes=%d, want 2/1", stats.Attempts, stats.Successes)
	}
	if stats.AvgIterations != 4 {
		t.Errorf("AvgIterations = %v, want 4", stats.AvgIterations)
	}
	if got := stats.SuccessRate(); got != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", got)
	}
}

func TestStatsEmptyKind(t *testing.T) {
	mem := openTestMemory(t)

	stats, err := mem.Stats(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Attempts != 0 || stats.SuccessRate() != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestSummarizeTruncatesDescription(t *testing.T) {
	long := strings.Repeat("x", 300)
	s := Summarize("fix", long, "success", 1, 1.0)
	if len(s) > 200 {
		t.Errorf("summary too long: %d chars", len(s))
	}
	if !strings.Contains(s, "...") {
		t.Errorf("expected truncation marker in %q", s)
	}
}
