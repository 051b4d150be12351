package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docdiff/docdiff/pkg/compare"
	"github.com/docdiff/docdiff/pkg/loader"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRecomparer_StartAndReload(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "same")
	writeFile(t, b, "same")

	var results []*compare.Result
	var changed []string
	r := NewRecomparer([]string{a, b}, loader.New(loader.Options{}, nil), nil, nil)
	r.OnResult = func(path string, res *compare.Result) {
		changed = append(changed, path)
		results = append(results, res)
	}

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(results) != 1 || !results[0].Report.Identical() {
		t.Fatalf("Expected an identical initial report, got %v", results)
	}

	writeFile(t, b, "different now")
	if err := r.Reload(ctx, b); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if changed[1] != b {
		t.Errorf("Expected changed path %s, got %s", b, changed[1])
	}
	if !strings.Contains(results[1].String(), "Differences found in text content.") {
		t.Errorf("Expected text differences, got %q", results[1].String())
	}

	if err := r.Reload(ctx, filepath.Join(dir, "other.txt")); err == nil {
		t.Error("Expected error for an unwatched path")
	}
}

func TestRecomparer_ReloadUpdatesRepeatedPath(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "x")
	writeFile(t, b, "yy")

	var last *compare.Result
	r := NewRecomparer([]string{a, b, a}, loader.New(loader.Options{}, nil), nil, nil)
	r.OnResult = func(_ string, res *compare.Result) { last = res }

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if last.Report.Identical() {
		t.Fatal("Expected differences before the change")
	}

	writeFile(t, a, "yy")
	if err := r.Reload(ctx, a); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if len(last.Report.Pairs) != 3 {
		t.Fatalf("Expected 3 pairs, got %d", len(last.Report.Pairs))
	}
	if !last.Report.Identical() {
		t.Errorf("Expected every position of a.txt to be reloaded, got %q", last.String())
	}
}

func TestRecomparer_StartFailsOnBadSource(t *testing.T) {
	r := NewRecomparer([]string{"/does/not/exist.csv"}, loader.New(loader.Options{}, nil), nil, nil)
	if err := r.Start(context.Background()); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestWatcher_TriggersOnChange(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "one")
	writeFile(t, b, "one")

	w, err := NewWatcher(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	reports := make(chan *compare.Result, 4)
	r := NewRecomparer([]string{a, b}, loader.New(loader.Options{}, nil), nil, nil)
	r.OnResult = func(_ string, res *compare.Result) { reports <- res }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-reports

	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, w) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, b, "two plus more")

	select {
	case res := <-reports:
		if res.Report.Identical() {
			t.Error("Expected a differing report after the change")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for recomparison")
	}

	cancel()
	<-done
}
