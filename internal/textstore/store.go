// Package textstore implements the full-text index backend on SQLite
// FTS5. Each collection owns one index directory; rebuilds go through the
// shared atomic rebuild-and-swap primitive, and searches in flight during
// a rebuild complete against the pre-rebuild snapshot because they hold
// the previously opened database handle.
package textstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/jsbattig/code-indexer-sub031/internal/rebuild"
)

// DirName is the artifact directory name inside a collection directory.
const DirName = "fulltext"

// dbFileName is the database file inside the artifact directory.
const dbFileName = "index.db"

// Document is one indexed record.
type Document struct {
	ID       string
	FilePath string
	Language string
	Content  string
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    file_path TEXT NOT NULL,
    language TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(file_path);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    content,
    id UNINDEXED,
    file_path UNINDEXED,
    language UNINDEXED,
    tokenize = 'unicode61'
);
`

// Store manages the full-text index for one collection directory.
type Store struct {
	collectionDir string
	rebuilder     *rebuild.Rebuilder

	mu sync.RWMutex // guards db handle replacement after a rebuild swap
	db *sql.DB
	tx *sql.Tx
}

// NewStore opens (creating if needed) the full-text index under
// collectionDir.
func NewStore(collectionDir string, rb *rebuild.Rebuilder) (*Store, error) {
	s := &Store{collectionDir: collectionDir, rebuilder: rb}
	db, err := openIndexDB(s.artifactDir())
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

func (s *Store) artifactDir() string {
	return filepath.Join(s.collectionDir, DirName)
}

// openIndexDB opens the database inside dir, creating directory and
// schema as needed.
func openIndexDB(dir string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("textstore: creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("textstore: opening %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("textstore: pinging %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("textstore: applying schema: %w", err)
	}
	return db, nil
}

// AddDocument stages a document inside the current write transaction,
// starting one if none is active. Existing documents with the same id are
// replaced. Staged documents become visible to Search after Commit.
func (s *Store) AddDocument(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("textstore: beginning transaction: %w", err)
		}
		s.tx = tx
	}

	return insertDocument(s.tx, doc)
}

// insertDocument writes a document into both tables of an execer
// (transaction or database).
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func insertDocument(e execer, doc Document) error {
	if _, err := e.Exec(`DELETE FROM documents_fts WHERE id = ?`, doc.ID); err != nil {
		return fmt.Errorf("textstore: clearing old fts row for %s: %w", doc.ID, err)
	}
	if _, err := e.Exec(
		`INSERT OR REPLACE INTO documents (id, file_path, language, content) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.FilePath, doc.Language, doc.Content,
	); err != nil {
		return fmt.Errorf("textstore: inserting document %s: %w", doc.ID, err)
	}
	if _, err := e.Exec(
		`INSERT INTO documents_fts (content, id, file_path, language) VALUES (?, ?, ?, ?)`,
		doc.Content, doc.ID, doc.FilePath, doc.Language,
	); err != nil {
		return fmt.Errorf("textstore: indexing document %s: %w", doc.ID, err)
	}
	return nil
}

// Commit makes all staged documents durable and visible to searches.
// With no staged documents it is a no-op.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("textstore: committing: %w", err)
	}
	return nil
}

// DeleteByFilePath removes all documents for the given file path. Takes
// effect immediately, outside any staged transaction.
func (s *Store) DeleteByFilePath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM documents_fts WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("textstore: deleting fts rows for %s: %w", path, err)
	}
	if _, err := s.db.Exec(`DELETE FROM documents WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("textstore: deleting documents for %s: %w", path, err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("textstore: counting documents: %w", err)
	}
	return n, nil
}

// AllDocuments returns every committed document, ordered by file path.
// Rebuilds feed this back through RebuildFromDocumentsBackground.
func (s *Store) AllDocuments() ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, file_path, language, content FROM documents ORDER BY file_path, id`)
	if err != nil {
		return nil, fmt.Errorf("textstore: listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.FilePath, &d.Language, &d.Content); err != nil {
			return nil, fmt.Errorf("textstore: scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("textstore: listing documents: %w", err)
	}
	return docs, nil
}

// Stats returns the document count and on-disk size of the index.
func (s *Store) Stats() (docCount int, sizeBytes int64, err error) {
	docCount, err = s.Count()
	if err != nil {
		return 0, 0, err
	}
	entries, err := os.ReadDir(s.artifactDir())
	if err != nil {
		return 0, 0, fmt.Errorf("textstore: reading %s: %w", s.artifactDir(), err)
	}
	for _, e := range entries {
		if info, err := e.Info(); err == nil {
			sizeBytes += info.Size()
		}
	}
	return docCount, sizeBytes, nil
}

// RebuildFromDocumentsBackground rebuilds the whole index from the given
// documents through the atomic rebuilder: a fresh database is built in a
// temp directory, swapped over the live one, and the store's handle is
// reopened. Searches started before the swap finish against the old
// snapshot.
func (s *Store) RebuildFromDocumentsBackground(ctx context.Context, docs []Document) error {
	err := s.rebuilder.RebuildWithLock(ctx, s.artifactDir(), func(ctx context.Context, tmpPath string) error {
		db, err := openIndexDB(tmpPath)
		if err != nil {
			return err
		}
		defer db.Close()

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("textstore: beginning rebuild transaction: %w", err)
		}
		for _, doc := range docs {
			if err := insertDocument(tx, doc); err != nil {
				tx.Rollback()
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("textstore: committing rebuild: %w", err)
		}
		// WAL must be folded into the main file before the swap.
		if _, err := db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
			return fmt.Errorf("textstore: checkpointing rebuild: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Point the store at the freshly swapped artifact. Queries holding
	// the old handle complete against the old snapshot.
	newDB, err := openIndexDB(s.artifactDir())
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.db
	s.db = newDB
	s.tx = nil
	s.mu.Unlock()
	old.Close()
	return nil
}

// Close releases the database handle. Staged, uncommitted documents are
// discarded.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}
