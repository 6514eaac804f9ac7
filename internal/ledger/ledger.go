// Package ledger persists per-file indexing progress so an interrupted
// run can resume exactly where it stopped. The ledger file is rewritten
// atomically after every single-file transition; it is the inter-process
// synchronization point for resumability.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the ledger state machine: NotStarted -> InProgress -> Completed.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// FileName is the ledger file name inside a collection directory.
const FileName = "ledger.json"

// state is the persisted ledger shape.
type state struct {
	SessionID        string          `json:"session_id"`
	Status           Status          `json:"status"`
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	GitContext       string          `json:"git_context"`
	FilesToIndex     []string        `json:"files_to_index"`
	CurrentFileIndex int             `json:"current_file_index"`
	FilesProcessed   int             `json:"files_processed"`
	ChunksIndexed    int             `json:"chunks_indexed"`
	FailedFiles      map[string]bool `json:"failed_file_paths"`
	StartedAt        time.Time       `json:"started_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Ledger is a durable record of indexing progress for one collection.
// All mutating methods persist before returning, so a kill at any point
// leaves a precisely resumable checkpoint.
type Ledger struct {
	mu             sync.Mutex
	path           string
	st             state
	loadedFromDisk bool
}

// New creates an empty ledger that will persist to dir/ledger.json.
func New(dir string) *Ledger {
	return &Ledger{
		path: filepath.Join(dir, FileName),
		st: state{
			Status:      StatusNotStarted,
			FailedFiles: make(map[string]bool),
		},
	}
}

// Load reads an existing ledger from dir/ledger.json. It returns
// os.ErrNotExist (wrapped) when no ledger file exists, and a descriptive
// error when the file is corrupt.
func Load(dir string) (*Ledger, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: reading %s: %w", path, err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("ledger: corrupt ledger file %s: %w", path, err)
	}
	if st.FailedFiles == nil {
		st.FailedFiles = make(map[string]bool)
	}

	return &Ledger{path: path, st: st, loadedFromDisk: true}, nil
}

// persistLocked writes the ledger atomically (tmp + rename). Callers must
// hold l.mu.
func (l *Ledger) persistLocked() error {
	l.st.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(&l.st, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshalling state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("ledger: creating directory: %w", err)
	}

	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("ledger: creating %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("ledger: writing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("ledger: syncing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ledger: closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("ledger: replacing %s: %w", l.path, err)
	}
	return nil
}

// Start transitions the ledger to InProgress and records the embedding
// provider, model, and git context for the session.
func (l *Ledger) Start(provider, model, gitContext string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.SessionID = uuid.NewString()
	l.st.Status = StatusInProgress
	l.st.Provider = provider
	l.st.Model = model
	l.st.GitContext = gitContext
	l.st.StartedAt = time.Now()
	return l.persistLocked()
}

// SetPendingFiles records the ordered list of files this session will
// index and resets progress counters.
func (l *Ledger) SetPendingFiles(paths []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.FilesToIndex = append([]string(nil), paths...)
	l.st.CurrentFileIndex = 0
	l.st.FilesProcessed = 0
	l.st.ChunksIndexed = 0
	l.st.FailedFiles = make(map[string]bool)
	return l.persistLocked()
}

// MarkCompleted records a successfully indexed file and advances the
// cursor past it.
func (l *Ledger) MarkCompleted(path string, chunkCount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.FilesProcessed++
	l.st.ChunksIndexed += chunkCount
	l.st.CurrentFileIndex = l.st.FilesProcessed + len(l.st.FailedFiles)
	return l.persistLocked()
}

// MarkFailed records a failed file. Failed files advance the cursor like
// completed ones and are not retried automatically on resume; they are
// surfaced via FailedFiles.
func (l *Ledger) MarkFailed(path, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.FailedFiles[path] = true
	l.st.CurrentFileIndex = l.st.FilesProcessed + len(l.st.FailedFiles)
	return l.persistLocked()
}

// Complete transitions the ledger to Completed.
func (l *Ledger) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.Status = StatusCompleted
	return l.persistLocked()
}

// CanResume reports whether this ledger represents a resumable session:
// it was loaded from durable storage and is still InProgress. A fresh
// in-memory ledger or a completed one is not resumable.
func (l *Ledger) CanResume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadedFromDisk && l.st.Status == StatusInProgress
}

// RemainingFiles returns the ordered tail of files the session has not
// yet advanced past.
func (l *Ledger) RemainingFiles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.CurrentFileIndex >= len(l.st.FilesToIndex) {
		return nil
	}
	return append([]string(nil), l.st.FilesToIndex[l.st.CurrentFileIndex:]...)
}

// FailedFiles returns the sorted set of files that failed this session.
func (l *Ledger) FailedFiles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.st.FailedFiles))
	for p := range l.st.FailedFiles {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Progress returns the current counters: files processed, failed, chunks
// indexed, and total files in the session.
func (l *Ledger) Progress() (processed, failed, chunks, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.FilesProcessed, len(l.st.FailedFiles), l.st.ChunksIndexed, len(l.st.FilesToIndex)
}

// Status returns the current state-machine status.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.Status
}

// Provider returns the embedding provider and model recorded at Start.
func (l *Ledger) Provider() (provider, model string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.Provider, l.st.Model
}

// CurrentFileIndex returns the cursor position within FilesToIndex.
func (l *Ledger) CurrentFileIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.CurrentFileIndex
}
