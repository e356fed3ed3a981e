package extension

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/use-agent/serpent/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT NOT NULL PRIMARY KEY,
	search_engine TEXT,
	started_at    TIMESTAMP,
	num_requests  INTEGER,
	metadata      TEXT
);
CREATE TABLE IF NOT EXISTS serp_results (
	id           INTEGER NOT NULL PRIMARY KEY,
	run_id       TEXT NOT NULL,
	keyword      TEXT NOT NULL,
	page         INTEGER NOT NULL,
	rank         INTEGER NOT NULL,
	title        TEXT,
	link         TEXT,
	visible_link TEXT,
	snippet      TEXT,
	date         TEXT,
	extra        TEXT,
	page_url     TEXT,
	fetched_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS serp_results_keyword ON serp_results(keyword);`

// sqliteStore persists every scrape into a SQLite database. The results hook
// opens a run; the metadata hook closes it. The driver does not allow
// concurrent writes, so all writes hold mu.
type sqliteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	run string
}

// SQLite returns a factory for an extension storing results and metadata
// in the database at path.
func SQLite(path string) Factory {
	return func(Env) (*Extension, error) {
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
		}
		if _, err := db.Exec(sqliteSchema); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: create tables: %w", err)
		}
		s := &sqliteStore{db: db}
		slog.Info("sqlite store opened", "path", path)
		return &Extension{
			Name:           "sqlite",
			HandleResults:  s.storeResults,
			HandleMetadata: s.storeMetadata,
			Close:          db.Close,
		}, nil
	}
}

func (s *sqliteStore) storeResults(ctx context.Context, r Results) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run = uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO serp_results
		(run_id, keyword, page, rank, title, link, visible_link, snippet, date, extra, page_url, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	rows := 0
	for kw, pages := range r.Data {
		for _, pr := range pages {
			for _, it := range pr.Items {
				var extra []byte
				if len(it.Extra) > 0 {
					extra, _ = json.Marshal(it.Extra)
				}
				if _, err := stmt.ExecContext(ctx, s.run, kw, pr.Page, it.Rank, it.Title, it.Link,
					it.VisibleLink, it.Snippet, it.Date, string(extra), pr.URL, pr.Timestamp); err != nil {
					return fmt.Errorf("sqlite: insert result: %w", err)
				}
				rows++
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	slog.Debug("sqlite results stored", "run", s.run, "rows", rows)
	return nil
}

func (s *sqliteStore) storeMetadata(ctx context.Context, md *models.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == "" {
		s.run = uuid.NewString()
	}
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("sqlite: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, search_engine, started_at, num_requests, metadata) VALUES (?, ?, ?, ?, ?)`,
		s.run, md.SearchEngine, md.StartedAt, md.NumRequests, string(data))
	if err != nil {
		return fmt.Errorf("sqlite: insert run: %w", err)
	}
	s.run = ""
	return nil
}
