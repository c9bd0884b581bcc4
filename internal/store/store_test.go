package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='kv'").Scan(&name)
	if err != nil {
		t.Errorf("table kv not found after idempotent opens: %v", err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := openTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := openTestStore(t)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := openTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestSchema_UserVersion(t *testing.T) {
	s := openTestStore(t)
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

// Schema tests

func TestSchema_KVTable(t *testing.T) {
	s := openTestStore(t)

	columns := getTableColumns(t, s.db, "kv")
	for _, col := range []string{"key", "value", "updated_at", "revision"} {
		if !contains(columns, col) {
			t.Errorf("kv table missing column %q", col)
		}
	}

	indexes := getTableIndexes(t, s.db, "kv")
	if !contains(indexes, "idx_kv_updated") {
		t.Error("kv table missing index idx_kv_updated")
	}
}

// Read/Write tests

func TestRead_Missing(t *testing.T) {
	s := openTestStore(t)

	data, ok, err := s.Read(context.Background(), "snapstate:user")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if ok {
		t.Errorf("Read() ok = true for missing key, data = %q", data)
	}
}

func TestWrite_ThenRead(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "snapstate:liked", []byte(`["a","b"]`)); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	data, ok, err := s.Read(ctx, "snapstate:liked")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if !ok {
		t.Fatal("Read() ok = false after Write")
	}
	if string(data) != `["a","b"]` {
		t.Errorf("Read() = %q, want %q", data, `["a","b"]`)
	}
}

func TestWrite_OverwriteBumpsRevision(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openTestStore(t, WithNow(func() time.Time { return now }))
	ctx := context.Background()

	for _, v := range []string{`1`, `2`, `3`} {
		if err := s.Write(ctx, "snapstate:progress", []byte(v)); err != nil {
			t.Fatalf("Write(%s) failed: %v", v, err)
		}
	}

	data, _, err := s.Read(ctx, "snapstate:progress")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if string(data) != "3" {
		t.Errorf("Read() = %q, want latest write %q", data, "3")
	}

	entries, err := s.List(ctx, "snapstate:")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() returned %d entries, want 1", len(entries))
	}
	if entries[0].Revision != 3 {
		t.Errorf("revision = %d, want 3", entries[0].Revision)
	}
	if !entries[0].UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", entries[0].UpdatedAt, now)
	}
}

func TestWrite_EmptyValue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "k", nil); err != nil {
		t.Fatalf("Write(nil) failed: %v", err)
	}
	data, ok, err := s.Read(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Read() = %v, %v", ok, err)
	}
	if len(data) != 0 {
		t.Errorf("Read() = %q, want empty", data)
	}
}

func TestList_FiltersByPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"app:saved", "app:liked", "other:liked", "app"} {
		if err := s.Write(ctx, k, []byte(`[]`)); err != nil {
			t.Fatalf("Write(%q) failed: %v", k, err)
		}
	}

	entries, err := s.List(ctx, "app:")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	if len(keys) != 2 || keys[0] != "app:liked" || keys[1] != "app:saved" {
		t.Errorf("List() keys = %v, want [app:liked app:saved]", keys)
	}
	if entries[0].Size != 2 {
		t.Errorf("size = %d, want 2", entries[0].Size)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "k", []byte(`1`)); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete() failed: %v", err)
	}
	if _, ok, _ := s.Read(ctx, "k"); ok {
		t.Error("key still present after Delete")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s1.Write(ctx, "snapstate:user", []byte(`{"id":"u1"}`)); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	data, ok, err := s2.Read(ctx, "snapstate:user")
	if err != nil || !ok {
		t.Fatalf("Read() after reopen = %v, %v", ok, err)
	}
	if string(data) != `{"id":"u1"}` {
		t.Errorf("Read() = %q", data)
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
