package db

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/medconnect/telemed/migrations"
)

func TestLoadMigrations_SortOrder(t *testing.T) {
	files := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"005_middle.sql": {Data: []byte("SELECT 5;")},
	}
	migs, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	expected := []int{1, 2, 5, 10}
	if len(migs) != len(expected) {
		t.Fatalf("expected %d migrations, got %d", len(expected), len(migs))
	}
	for i, v := range expected {
		if migs[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migs[i].Version)
		}
	}
	if migs[0].Name != "001_first.sql" || migs[0].SQL != "SELECT 1;" {
		t.Errorf("unexpected first migration %+v", migs[0])
	}
}

func TestLoadMigrations_SkipsInvalidNames(t *testing.T) {
	files := fstest.MapFS{
		"001_valid.sql":      {Data: []byte("SELECT 1;")},
		"readme.sql":         {Data: []byte("-- no version prefix")},
		"notes.txt":          {Data: []byte("not sql")},
		"abc_invalid.sql":    {Data: []byte("-- non-numeric prefix")},
		"002_also_valid.sql": {Data: []byte("SELECT 2;")},
		"sub/003_nested.sql": {Data: []byte("SELECT 3;")},
	}
	migs, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migs))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigrator(nil, files).LoadMigrations(); err == nil {
		t.Error("expected error for duplicate version")
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	migs, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) < 2 || migs[0].Name != "001_availability.sql" {
		t.Fatalf("unexpected embedded migrations %+v", migs)
	}
}

func TestPendingAndStatuses(t *testing.T) {
	migs := []Migration{{Version: 1, Name: "001_a.sql"}, {Version: 2, Name: "002_b.sql"}, {Version: 3, Name: "003_c.sql"}}
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	applied := map[int]time.Time{1: at}

	p := pending(migs, applied)
	if len(p) != 2 || p[0].Version != 2 || p[1].Version != 3 {
		t.Errorf("pending = %+v", p)
	}

	st := statuses(migs, applied)
	if len(st) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(st))
	}
	if !st[0].Applied || st[0].AppliedAt == nil || !st[0].AppliedAt.Equal(at) {
		t.Errorf("expected migration 001 applied at %s, got %+v", at, st[0])
	}
	if st[1].Applied || st[1].AppliedAt != nil {
		t.Errorf("expected migration 002 pending, got %+v", st[1])
	}
}
