//go:build sqlite_fts5

package cache

import (
	"database/sql"
	"fmt"

	"github.com/starford/atelier/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS artifacts_fts USING fts5(
			scope UNINDEXED,
			id UNINDEXED,
			kind UNINDEXED,
			prompt,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, scope string, a models.Artifact) error {
	content := a.Content
	if a.IsBinary() {
		content = ""
	}
	_, err := tx.Exec(`INSERT INTO artifacts_fts (scope, id, kind, prompt, content) VALUES (?, ?, ?, ?, ?)`,
		scope, a.ID, string(a.Kind), a.Prompt, content)
	if err != nil {
		return fmt.Errorf("cache: upsert fts: %w", err)
	}
	return nil
}

func ftsClear(tx *sql.Tx, scope string) error {
	if _, err := tx.Exec(`DELETE FROM artifacts_fts WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("cache: clear fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search and returns matching artifacts with snippets.
func (db *DB) Search(scope, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id,
		       kind,
		       snippet(artifacts_fts, 3, '<b>', '</b>', '...', 32)
		FROM artifacts_fts
		WHERE scope = ? AND artifacts_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, scope, query, limit)
	if err != nil {
		return nil, fmt.Errorf("cache: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.Snippet); err != nil {
			return nil, err
		}
		r.Kind = models.Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}
