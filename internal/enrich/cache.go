package enrich

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Cache is a run-scoped SQLite page cache. Backfill iterations and resumed
// runs hit the same URLs; the cache keeps those fetches off the network.
type Cache struct {
	db   *sql.DB
	path string
}

// NewCache opens (or creates) pages.db inside the run directory.
func NewCache(runDir string) (*Cache, error) {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	dbPath := filepath.Join(runDir, "pages.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open page cache: %w", err)
	}
	// SQLite locks the whole file; a single connection keeps concurrent
	// enrichment workers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	cache := &Cache{db: db, path: dbPath}
	if err := cache.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize page cache: %w", err)
	}
	return cache, nil
}

func (c *Cache) initialize() error {
	table := `
	CREATE TABLE IF NOT EXISTS pages (
		canonical_url TEXT PRIMARY KEY,
		status INTEGER,
		content_type TEXT,
		excerpt TEXT,
		best_quote TEXT,
		reachability REAL,
		fetched_at DATETIME
	);`
	if _, err := c.db.Exec(table); err != nil {
		return fmt.Errorf("failed to create pages table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached page for a canonical URL, reporting whether one
// exists.
func (c *Cache) Get(canonicalURL string) (Page, bool, error) {
	row := c.db.QueryRow(`
		SELECT status, content_type, excerpt, best_quote, reachability, fetched_at
		FROM pages WHERE canonical_url = ?`, canonicalURL)

	var page Page
	err := row.Scan(&page.Status, &page.ContentType, &page.Excerpt,
		&page.BestQuote, &page.Reachability, &page.FetchedAt)
	if err == sql.ErrNoRows {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, fmt.Errorf("failed to read page cache: %w", err)
	}
	return page, true, nil
}

// Put stores a fetch outcome, replacing any previous entry for the URL.
func (c *Cache) Put(canonicalURL string, page Page) error {
	if page.FetchedAt.IsZero() {
		page.FetchedAt = time.Now().UTC()
	}
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO pages
		(canonical_url, status, content_type, excerpt, best_quote, reachability, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		canonicalURL, page.Status, page.ContentType, page.Excerpt,
		page.BestQuote, page.Reachability, page.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to write page cache: %w", err)
	}
	return nil
}
