// Package gitresolver resolves git blob hashes for candidate files so the
// pipeline can skip re-embedding unchanged content. Paths are passed to
// git in bounded batches to stay clear of OS argv limits on large
// repositories. Any git failure degrades to "treat everything as
// changed"; it never aborts an indexing run.
package gitresolver

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// DefaultBatchSize is the default number of paths per git invocation.
const DefaultBatchSize = 100

// commandTimeout bounds each git subprocess.
const commandTimeout = 30 * time.Second

// CollectionKind distinguishes normal code collections from ephemeral
// temporal ones whose records are synthetic.
type CollectionKind string

const (
	CollectionKindNormal   CollectionKind = "normal"
	CollectionKindTemporal CollectionKind = "temporal"
)

// runGitFunc executes a git command and returns its stdout. Swappable in
// tests to simulate argv ceilings without a real repository.
type runGitFunc func(ctx context.Context, repoRoot string, args ...string) ([]byte, error)

// Resolver maps file paths to git blob hashes.
type Resolver struct {
	batchSize int
	runGit    runGitFunc
}

// New creates a Resolver issuing at most batchSize paths per git call.
// batchSize values below 1 fall back to DefaultBatchSize.
func New(batchSize int) *Resolver {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Resolver{
		batchSize: batchSize,
		runGit:    runGit,
	}
}

func runGit(ctx context.Context, repoRoot string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoRoot
	return cmd.Output()
}

// ResolveBlobHashes returns a mapping from each path to its HEAD blob
// hash. Paths git does not know about are absent from the result. On any
// git failure (missing binary, not a repository, timeout) the result is
// an empty map, so callers treat every file as changed.
func (r *Resolver) ResolveBlobHashes(ctx context.Context, repoRoot string, paths []string) map[string]string {
	hashes := make(map[string]string, len(paths))
	if len(paths) == 0 {
		return hashes
	}

	for start := 0; start < len(paths); start += r.batchSize {
		end := start + r.batchSize
		if end > len(paths) {
			end = len(paths)
		}
		batch := paths[start:end]

		args := append([]string{"ls-tree", "-z", "HEAD", "--"}, batch...)
		out, err := r.runGit(ctx, repoRoot, args...)
		if err != nil {
			return map[string]string{}
		}

		parseLsTree(out, hashes)
	}

	return hashes
}

// parseLsTree parses NUL-terminated `git ls-tree` records of the form
// "<mode> <type> <hash>\t<path>" into the result map.
func parseLsTree(out []byte, hashes map[string]string) {
	for _, record := range bytes.Split(out, []byte{0}) {
		line := string(record)
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			continue
		}
		meta := strings.Fields(line[:tab])
		if len(meta) != 3 || meta[1] != "blob" {
			continue
		}
		hashes[line[tab+1:]] = meta[2]
	}
}

// HeadCommit returns the current HEAD commit hash, or empty string if
// repoRoot is not a git repository. Used as the ledger's git context.
func HeadCommit(ctx context.Context, repoRoot string) string {
	out, err := runGit(ctx, repoRoot, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
