package textstore

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
)

// SearchOptions narrows and shapes a full-text query.
type SearchOptions struct {
	Languages        []string // include only these languages (empty = all)
	ExcludeLanguages []string
	PathGlobs        []string // include only matching paths (doublestar, empty = all)
	ExcludePathGlobs []string
	CaseSensitive    bool
	Regex            bool // treat query as a regex over indexed tokens
	Limit            int
}

// SearchResult is one ranked hit.
type SearchResult struct {
	DocID    string
	FilePath string
	Language string
	Score    float64 // lower is better (BM25); 0 for regex hits
	Snippet  string
}

const defaultSearchLimit = 50

// Search runs a ranked query against the index. In regex mode the query
// is compiled first and a descriptive error is returned before any index
// I/O when the pattern is invalid.
func (s *Store) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultSearchLimit
	}

	if opts.Regex {
		return s.searchRegex(query, opts)
	}
	return s.searchMatch(query, opts)
}

// searchMatch performs BM25-ranked FTS5 search with post-filtering.
func (s *Store) searchMatch(query string, opts SearchOptions) ([]SearchResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, fmt.Errorf("textstore: empty search query")
	}

	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()

	rows, err := db.Query(`
		SELECT id, file_path, language, content, bm25(documents_fts) AS score
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY score`, sanitized)
	if err != nil {
		return nil, fmt.Errorf("textstore: fts query: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var content string
		if err := rows.Scan(&r.DocID, &r.FilePath, &r.Language, &content, &r.Score); err != nil {
			return nil, fmt.Errorf("textstore: scanning result: %w", err)
		}
		if !passesFilters(r.FilePath, r.Language, opts) {
			continue
		}
		// FTS5's unicode61 tokenizer folds case; enforce exact case here.
		if opts.CaseSensitive && !containsAnyTermExact(content, query) {
			continue
		}
		r.Snippet = makeSnippet(content, query, opts.CaseSensitive)
		results = append(results, r)
		if len(results) >= opts.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("textstore: iterating results: %w", err)
	}
	return results, nil
}

// searchRegex matches a compiled pattern against whole indexed tokens.
func (s *Store) searchRegex(pattern string, opts SearchOptions) ([]SearchResult, error) {
	expr := pattern
	if !opts.CaseSensitive {
		expr = "(?i)" + expr
	}
	// Anchor so the pattern must cover an entire token, matching how the
	// index is tokenized rather than raw byte offsets.
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, fmt.Errorf("textstore: invalid regex pattern %q: %w", pattern, err)
	}

	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()

	rows, err := db.Query(`SELECT id, file_path, language, content FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("textstore: scanning documents: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var content string
		if err := rows.Scan(&r.DocID, &r.FilePath, &r.Language, &content); err != nil {
			return nil, fmt.Errorf("textstore: scanning document: %w", err)
		}
		if !passesFilters(r.FilePath, r.Language, opts) {
			continue
		}
		tok, ok := firstMatchingToken(content, re)
		if !ok {
			continue
		}
		r.Snippet = makeSnippet(content, tok, true)
		results = append(results, r)
		if len(results) >= opts.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("textstore: iterating documents: %w", err)
	}
	return results, nil
}

// passesFilters applies language and path include/exclude sets.
func passesFilters(path, language string, opts SearchOptions) bool {
	if len(opts.Languages) > 0 && !containsFold(opts.Languages, language) {
		return false
	}
	if containsFold(opts.ExcludeLanguages, language) {
		return false
	}
	if len(opts.PathGlobs) > 0 && !matchesAnyGlob(path, opts.PathGlobs) {
		return false
	}
	if matchesAnyGlob(path, opts.ExcludePathGlobs) {
		return false
	}
	return true
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// matchesAnyGlob matches with gitignore-style semantics: ** spans zero or
// more directories, so **/*.py matches a file with no directory at all.
func matchesAnyGlob(path string, globs []string) bool {
	normalized := filepath.ToSlash(path)
	for _, g := range globs {
		if ok, err := doublestar.Match(filepath.ToSlash(g), normalized); err == nil && ok {
			return true
		}
	}
	return false
}

// isTokenRune mirrors the unicode61 tokenizer: tokens are runs of
// letters, digits, and underscores.
func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// firstMatchingToken scans content token by token and returns the first
// token the pattern fully matches.
func firstMatchingToken(content string, re *regexp.Regexp) (string, bool) {
	start := -1
	for i, r := range content {
		if isTokenRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if tok := content[start:i]; re.MatchString(tok) {
				return tok, true
			}
			start = -1
		}
	}
	if start >= 0 {
		if tok := content[start:]; re.MatchString(tok) {
			return tok, true
		}
	}
	return "", false
}

// containsAnyTermExact reports whether any whitespace-separated term of
// the query appears in content with exact case.
func containsAnyTermExact(content, query string) bool {
	for _, term := range strings.Fields(query) {
		if strings.Contains(content, term) {
			return true
		}
	}
	return false
}

// sanitizeFTSQuery quotes each term so user input cannot inject FTS5
// operators (AND, OR, NOT, NEAR, column prefixes) or break the MATCH
// expression.
func sanitizeFTSQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		if f == "" {
			continue
		}
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}

// snippetRadius is how many bytes of context a snippet carries on each
// side of the first match.
const snippetRadius = 60

// makeSnippet extracts a short context window around the first occurrence
// of term in content.
func makeSnippet(content, term string, caseSensitive bool) string {
	idx := -1
	if caseSensitive {
		idx = strings.Index(content, term)
	} else {
		idx = strings.Index(strings.ToLower(content), strings.ToLower(term))
	}
	if idx < 0 {
		if len(content) > 2*snippetRadius {
			return content[:2*snippetRadius]
		}
		return content
	}

	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(term) + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}
