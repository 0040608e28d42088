//go:build sqlite_fts5

package cache

import (
	"testing"
	"time"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM artifacts_fts`).Scan(&count); err != nil {
		t.Fatalf("artifacts_fts table missing: %v", err)
	}
}

func TestFTS5_SnippetAndClear(t *testing.T) {
	db := testDB(t)
	_, _ = db.Save("own", sample(), time.Now())

	res, err := db.Search("own", "lighthouses", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].Snippet == "" {
		t.Fatalf("results = %+v", res)
	}

	_ = db.Clear("own")
	res, _ = db.Search("own", "lighthouses", 10)
	if len(res) != 0 {
		t.Errorf("cleared scope still searchable: %+v", res)
	}
}
