package db

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write test file %s: %v", name, err)
		}
	}
}

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"001_core.sql":    "CREATE TABLE booking (id UUID PRIMARY KEY);",
		"002_tariffs.sql": "CREATE TABLE tariff_row (id UUID PRIMARY KEY);",
		"003_invoice.sql": "CREATE TABLE invoice (id UUID PRIMARY KEY);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_core.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE booking (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"010_tables.sql": "SELECT 10;",
		"002_second.sql": "SELECT 2;",
		"001_first.sql":  "SELECT 1;",
		"005_middle.sql": "SELECT 5;",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	want := []int{1, 2, 5, 10}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migrations))
	}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_InvalidFilename(t *testing.T) {
	fsys := fstest.MapFS{
		"001_valid.sql":      {Data: []byte("SELECT 1;")},
		"readme.sql":         {Data: []byte("-- no version prefix")},
		"notes.txt":          {Data: []byte("not sql")},
		"abc_invalid.sql":    {Data: []byte("-- non-numeric prefix")},
		"002_also_valid.sql": {Data: []byte("SELECT 2;")},
	}

	migrations, err := NewMigratorFS(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("unexpected versions: %d, %d", migrations[0].Version, migrations[1].Version)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigratorFS(nil, fsys).LoadMigrations(); err == nil {
		t.Error("expected error for duplicated version")
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations from empty dir, got %d", len(migrations))
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	_, err := NewMigrator(nil, "/nonexistent/path/that/does/not/exist").LoadMigrations()
	if err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: 1}, {Version: 2}, {Version: 3}, {Version: 4}}
	done := map[int]time.Time{1: time.Now()}

	got := pending(all, done, 0)
	if len(got) != 3 || got[0].Version != 2 {
		t.Errorf("expected versions 2..4 pending, got %+v", got)
	}

	got = pending(all, done, 3)
	if len(got) != 2 || got[1].Version != 3 {
		t.Errorf("expected versions 2..3 pending with target 3, got %+v", got)
	}
}

func TestStatuses(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	migs := []Migration{
		{Version: 1, Name: "001_core.sql"},
		{Version: 2, Name: "002_tariffs.sql"},
	}
	got := statuses(migs, map[int]time.Time{1: at})

	if len(got) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(got))
	}
	if !got[0].Applied || got[0].AppliedAt == nil || !got[0].AppliedAt.Equal(at) {
		t.Errorf("expected 001 applied at %s, got %+v", at, got[0])
	}
	if got[1].Applied || got[1].AppliedAt != nil {
		t.Errorf("expected 002 pending, got %+v", got[1])
	}
}
