//go:build !sqlite_fts5

package cache

import (
	"database/sql"
	"fmt"

	"github.com/starford/atelier/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the artifacts table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ string, _ models.Artifact) error { return nil }

func ftsClear(_ *sql.Tx, _ string) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(scope, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, kind, substr(prompt, 1, 200)
		FROM artifacts
		WHERE scope = ? AND (prompt LIKE ? OR content LIKE ?)
		ORDER BY position
		LIMIT ?
	`, scope, like, like, limit)
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
