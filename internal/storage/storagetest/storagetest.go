// Package storagetest builds throwaway shard files for tests.
package storagetest

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Schema is the books table every shard file carries.
const Schema = `
CREATE TABLE books (
	id INTEGER PRIMARY KEY,
	title TEXT,
	author TEXT,
	publisher TEXT,
	publish_date TEXT,
	page_count INTEGER,
	ISBN TEXT,
	SS_code TEXT,
	dxid TEXT,
	second_pass_code TEXT,
	size TEXT,
	file_type TEXT
)`

// Row is the subset of columns tests usually care about.
type Row struct {
	Title     string
	Author    string
	Publisher string
	ISBN      string
	DXID      string
}

// CreateShard writes dir/name.db with the books schema and rows, returning
// its path.
func CreateShard(t testing.TB, dir, name string, rows ...Row) string {
	t.Helper()

	path := filepath.Join(dir, name+".db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("create schema in %s: %v", path, err)
	}
	for _, r := range rows {
		_, err := db.Exec(
			"INSERT INTO books (title, author, publisher, ISBN, dxid, page_count) VALUES (?, ?, ?, ?, ?, ?)",
			r.Title, r.Author, r.Publisher, r.ISBN, r.DXID, 100,
		)
		if err != nil {
			t.Fatalf("insert into %s: %v", path, err)
		}
	}
	return path
}

// CreateEmptyFile writes a SQLite file without the books table.
func CreateEmptyFile(t testing.TB, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name+".db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()
	if _, err := db.Exec("CREATE TABLE other (x INTEGER)"); err != nil {
		t.Fatalf("create table in %s: %v", path, err)
	}
	return path
}
