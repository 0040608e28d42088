package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/checksum"
	"github.com/starford/atelier/internal/models"
)

// Snapshot is the cached collection of one scope.
type Snapshot struct {
	Scope     string
	Items     []models.Artifact
	Checksum  string
	FetchedAt time.Time
}

// SearchResult is one cached artifact matching a search.
type SearchResult struct {
	ID      string
	Kind    models.Kind
	Snippet string
}

// Checksum returns the digest of the stored snapshot for scope, or "" if none.
func (db *DB) Checksum(scope string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM snapshots WHERE scope = ?`, scope).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache: checksum: %w", err)
	}
	return cs, nil
}

// Save replaces the snapshot of scope. It reports false without writing when
// items match the stored snapshot.
func (db *DB) Save(scope string, items []models.Artifact, fetchedAt time.Time) (bool, error) {
	sum, err := checksum.SumJSON(items)
	if err != nil {
		return false, fmt.Errorf("cache: digest: %w", err)
	}
	prev, err := db.Checksum(scope)
	if err != nil {
		return false, err
	}
	if prev == sum {
		_, err := db.conn.Exec(`UPDATE snapshots SET fetched_at = ? WHERE scope = ?`, fetchedAt.UTC(), scope)
		return false, err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM artifacts WHERE scope = ?`, scope); err != nil {
		return false, fmt.Errorf("cache: clear scope: %w", err)
	}
	if err := ftsClear(tx, scope); err != nil {
		return false, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO artifacts (scope, id, position, kind, prompt, content, created_at, likes, publish)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, id) DO NOTHING
	`)
	if err != nil {
		return false, fmt.Errorf("cache: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range items {
		likes, _ := json.Marshal(a.LikedBy)
		if _, err := stmt.Exec(scope, a.ID, i, string(a.Kind), a.Prompt, a.Content, a.CreatedAt.UTC(), string(likes), a.Published); err != nil {
			return false, fmt.Errorf("cache: insert artifact: %w", err)
		}
		if err := ftsUpsert(tx, scope, a); err != nil {
			return false, err
		}
	}

	_, err = tx.Exec(`
		INSERT INTO snapshots (scope, checksum, item_count, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			checksum   = excluded.checksum,
			item_count = excluded.item_count,
			fetched_at = excluded.fetched_at
	`, scope, sum, len(items), fetchedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("cache: upsert snapshot: %w", err)
	}
	return true, tx.Commit()
}

// Load returns the snapshot of scope, or apperr.ErrNotFound.
func (db *DB) Load(scope string) (*Snapshot, error) {
	s := &Snapshot{Scope: scope}
	err := db.conn.QueryRow(`SELECT checksum, fetched_at FROM snapshots WHERE scope = ?`, scope).Scan(&s.Checksum, &s.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cache: snapshot %q: %w", scope, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: load snapshot: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT id, kind, prompt, content, created_at, likes, publish
		FROM artifacts WHERE scope = ? ORDER BY position
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("cache: load artifacts: %w", err)
	}
	defer rows.Close()

	s.Items = []models.Artifact{}
	for rows.Next() {
		var (
			a       models.Artifact
			kind    string
			created sql.NullTime
			likes   string
		)
		if err := rows.Scan(&a.ID, &kind, &a.Prompt, &a.Content, &created, &likes, &a.Published); err != nil {
			return nil, err
		}
		a.Kind = models.Kind(kind)
		if created.Valid {
			a.CreatedAt = created.Time
		}
		if err := json.Unmarshal([]byte(likes), &a.LikedBy); err != nil {
			a.LikedBy = models.LikeSet{}
		}
		s.Items = append(s.Items, a)
	}
	return s, rows.Err()
}

// Clear removes the snapshot of scope.
func (db *DB) Clear(scope string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM artifacts WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("cache: clear artifacts: %w", err)
	}
	if err := ftsClear(tx, scope); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("cache: clear snapshot: %w", err)
	}
	return tx.Commit()
}
