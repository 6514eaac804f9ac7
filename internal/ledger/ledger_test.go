package ledger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFreshLedgerIsNotResumable(t *testing.T) {
	l := New(t.TempDir())
	if l.CanResume() {
		t.Error("fresh in-memory ledger must not be resumable")
	}
}

func TestLoadMissingLedger(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load should fail when no ledger file exists")
	}
}

func TestLoadCorruptLedger(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("Load should report a corrupt ledger file")
	}
}

func TestResumeAfterKill(t *testing.T) {
	dir := t.TempDir()
	files := []string{"a.go", "b.go", "c.go", "d.go", "e.go"}

	// Process A: index the first two files, then "die".
	a := New(dir)
	if err := a.Start("openai", "text-embedding-3-small", "abc123"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := a.SetPendingFiles(files); err != nil {
		t.Fatalf("SetPendingFiles failed: %v", err)
	}
	if err := a.MarkCompleted("a.go", 4); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if err := a.MarkCompleted("b.go", 7); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	// Process B: load the ledger and resume.
	b, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !b.CanResume() {
		t.Fatal("in-progress ledger loaded from disk must be resumable")
	}

	remaining := b.RemainingFiles()
	want := []string{"c.go", "d.go", "e.go"}
	if len(remaining) != len(want) {
		t.Fatalf("remaining files: got %v, want %v", remaining, want)
	}
	for i := range want {
		if remaining[i] != want[i] {
			t.Errorf("remaining[%d]: got %q, want %q", i, remaining[i], want[i])
		}
	}

	provider, model := b.Provider()
	if provider != "openai" || model != "text-embedding-3-small" {
		t.Errorf("provider/model not preserved: got %q/%q", provider, model)
	}

	// Process B finishes the rest.
	for _, f := range remaining {
		if err := b.MarkCompleted(f, 1); err != nil {
			t.Fatalf("MarkCompleted failed: %v", err)
		}
	}
	if err := b.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	processed, failed, chunks, total := b.Progress()
	if processed != 5 || failed != 0 || total != 5 {
		t.Errorf("progress: processed=%d failed=%d total=%d, want 5/0/5", processed, failed, total)
	}
	if chunks != 4+7+3 {
		t.Errorf("chunks indexed: got %d, want %d", chunks, 4+7+3)
	}
	if b.Status() != StatusCompleted {
		t.Errorf("status: got %q, want %q", b.Status(), StatusCompleted)
	}

	// A completed ledger is no longer resumable, even reloaded fresh.
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.CanResume() {
		t.Error("completed ledger must not be resumable")
	}
}

func TestFailedFileAdvancesCursor(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	if err := l.Start("openai", "text-embedding-3-small", ""); err != nil {
		t.Fatal(err)
	}
	if err := l.SetPendingFiles([]string{"file1", "file2", "file3"}); err != nil {
		t.Fatal(err)
	}

	if err := l.MarkCompleted("file1", 2); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkCompleted("file2", 2); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkFailed("file3", "parse error"); err != nil {
		t.Fatal(err)
	}

	processed, failed, _, _ := l.Progress()
	if processed != 2 {
		t.Errorf("files_processed: got %d, want 2", processed)
	}
	if failed != 1 {
		t.Errorf("failed count: got %d, want 1", failed)
	}
	if got := l.CurrentFileIndex(); got != 3 {
		t.Errorf("current_file_index: got %d, want 3", got)
	}
	if rem := l.RemainingFiles(); len(rem) != 0 {
		t.Errorf("remaining files: got %v, want empty", rem)
	}

	ff := l.FailedFiles()
	if len(ff) != 1 || ff[0] != "file3" {
		t.Errorf("failed_file_paths: got %v, want [file3]", ff)
	}

	// Status stays InProgress until Complete, so the session is resumable
	// from another process even though no files remain.
	reloaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.CanResume() {
		t.Error("interrupted session must remain resumable")
	}
}

func TestCursorInvariantUnderInterleaving(t *testing.T) {
	l := New(t.TempDir())
	if err := l.Start("ollama", "nomic-embed-text", ""); err != nil {
		t.Fatal(err)
	}
	files := []string{"f0", "f1", "f2", "f3", "f4", "f5"}
	if err := l.SetPendingFiles(files); err != nil {
		t.Fatal(err)
	}

	// Interleave successes and failures; the cursor must always equal
	// processed + failed.
	steps := []struct {
		path string
		fail bool
	}{
		{"f0", false}, {"f1", true}, {"f2", false}, {"f3", true}, {"f4", false},
	}
	for i, s := range steps {
		var err error
		if s.fail {
			err = l.MarkFailed(s.path, "boom")
		} else {
			err = l.MarkCompleted(s.path, 1)
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		processed, failed, _, _ := l.Progress()
		if got := l.CurrentFileIndex(); got != processed+failed {
			t.Errorf("after step %d: cursor %d != processed %d + failed %d", i, got, processed, failed)
		}
	}

	if rem := l.RemainingFiles(); len(rem) != 1 || rem[0] != "f5" {
		t.Errorf("remaining: got %v, want [f5]", rem)
	}
}

func TestPersistAfterEveryTransition(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	if err := l.Start("openai", "m", ""); err != nil {
		t.Fatal(err)
	}
	if err := l.SetPendingFiles([]string{"x", "y"}); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkCompleted("x", 1); err != nil {
		t.Fatal(err)
	}

	// Another process must observe the committed state immediately.
	other, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	processed, _, _, total := other.Progress()
	if processed != 1 || total != 2 {
		t.Errorf("cross-process view: processed=%d total=%d, want 1/2", processed, total)
	}
}
