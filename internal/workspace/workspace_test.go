package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetectProjectType(t *testing.T) {
	t.Run("manifest first", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/x\n")
		if got := DetectProjectType(dir); got != ProjectTypeGo {
			t.Errorf("got %s, want go", got)
		}
	})

	t.Run("extension fallback", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"a.py", "b.py", "c.py"} {
			writeFile(t, filepath.Join(dir, name), "pass\n")
		}
		if got := DetectProjectType(dir); got != ProjectTypePython {
			t.Errorf("got %s, want python", got)
		}
	})

	t.Run("too little signal", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "one.rs"), "fn main() {}\n")
		if got := DetectProjectType(dir); got != ProjectTypeUnknown {
			t.Errorf("got %s, want unknown", got)
		}
	})
}

// waitFor polls until the condition holds or the deadline passes.
// fsnotify delivery is asynchronous, so assertions need a little grace.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestTrackerRecordsTouchedFiles(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := tracker.Start(); err != nil {
		t.Fatal(err)
	}
	defer tracker.Stop()

	writeFile(t, filepath.Join(dir, "main.go"), "package main\n")

	ok := waitFor(t, 2*time.Second, func() bool {
		for _, p := range tracker.Touched() {
			if p == "main.go" {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Fatalf("main.go not tracked, touched=%v", tracker.Touched())
	}
}

func TestTrackerIgnoresGitignoredPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".gitignore"), "*.log\n")

	tracker, err := NewTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := tracker.Start(); err != nil {
		t.Fatal(err)
	}
	defer tracker.Stop()

	writeFile(t, filepath.Join(dir, "debug.log"), "noise\n")
	writeFile(t, filepath.Join(dir, "kept.txt"), "signal\n")

	ok := waitFor(t, 2*time.Second, func() bool {
		for _, p := range tracker.Touched() {
			if p == "kept.txt" {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Fatalf("kept.txt not tracked, touched=%v", tracker.Touched())
	}

	for _, p := range tracker.Touched() {
		if p == "debug.log" {
			t.Error("gitignored file should not be tracked")
		}
	}
}

func TestTrackerReset(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := tracker.Start(); err != nil {
		t.Fatal(err)
	}
	defer tracker.Stop()

	writeFile(t, filepath.Join(dir, "a.txt"), "x\n")
	waitFor(t, 2*time.Second, func() bool { return len(tracker.Touched()) > 0 })

	tracker.Reset()
	if got := tracker.Touched(); len(got) != 0 {
		t.Errorf("Touched after Reset = %v, want empty", got)
	}
}
