// Package testutil provides shared test helpers: a temporary snapshot cache
// and an in-process fake of the remote collection API.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/atelier/internal/cache"
)

// TestCache creates a temporary SQLite snapshot cache that is automatically cleaned up.
func TestCache(t *testing.T) *cache.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "atelier-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := cache.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
