package workspace

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnorePatterns are excluded from tracking on top of whatever
// the repository's .gitignore files say.
var defaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"dist",
	"build",
	"vendor",
	"__pycache__",
	"coverage",
	".next",
	".cache",
	"target",
	".idea",
	".vscode",
	".DS_Store",
}

// Tracker records which workspace files the agent touches during a task
// run. It watches the tree with fsnotify and filters events through the
// repository's gitignore patterns, so generated artifacts do not inflate
// the result.
type Tracker struct {
	root    string
	watcher *fsnotify.Watcher
	ignore  gitignore.IgnoreParser

	mu      sync.Mutex
	touched map[string]struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// NewTracker creates a tracker rooted at the given directory.
func NewTracker(root string) (*Tracker, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	patterns := append([]string{}, defaultIgnorePatterns...)
	patterns = append(patterns, loadGitignorePatterns(abs)...)

	return &Tracker{
		root:    abs,
		watcher: watcher,
		ignore:  gitignore.CompileIgnoreLines(patterns...),
		touched: make(map[string]struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. Directories created while the tracker runs are
// picked up from their create events.
func (t *Tracker) Start() error {
	err := filepath.WalkDir(t.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(t.root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && t.ignore.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := t.watcher.Add(path); err != nil {
				log.Printf("⚠️ cannot watch %s: %v", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk workspace: %w", err)
	}

	t.wg.Add(1)
	go t.eventLoop()
	return nil
}

// Stop ends watching. The touched set remains readable.
func (t *Tracker) Stop() error {
	close(t.done)
	err := t.watcher.Close()
	t.wg.Wait()
	return err
}

// Touched returns the sorted relative paths of files modified since
// Start (or the last Reset).
func (t *Tracker) Touched() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.touched))
	for path := range t.touched {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Reset clears the touched set, used between task runs on the same
// workspace.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touched = make(map[string]struct{})
}

func (t *Tracker) eventLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.handleEvent(event)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ workspace watcher error: %v", err)
		}
	}
}

func (t *Tracker) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(t.root, event.Name)
	if err != nil {
		return
	}
	if t.ignore.MatchesPath(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := t.watcher.Add(event.Name); err != nil {
				log.Printf("⚠️ cannot watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		t.mu.Lock()
		t.touched[rel] = struct{}{}
		t.mu.Unlock()
	}
}

// loadGitignorePatterns collects patterns from every .gitignore in the
// tree. Nested files lose their directory scoping, which overmatches a
// little; for touch tracking that errs on the quiet side.
func loadGitignorePatterns(root string) []string {
	var patterns []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() != ".gitignore" {
			return nil
		}
		if lines, err := readGitignoreLines(path); err == nil {
			patterns = append(patterns, lines...)
		}
		return nil
	})
	return patterns
}

func readGitignoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
