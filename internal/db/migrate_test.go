package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"002_leaves.sql": {Data: []byte("CREATE TABLE leaves (id INT);")},
		"001_core.sql":   {Data: []byte("CREATE TABLE doctors (id INT);")},
		"010_index.sql":  {Data: []byte("CREATE INDEX x ON doctors (id);")},
		"README.md":      {Data: []byte("not sql")},
		"notes.sql":      {Data: []byte("-- no numeric prefix")},
		"abc_bad.sql":    {Data: []byte("-- non numeric prefix")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	wantVersions := []int{1, 2, 10}
	for i, v := range wantVersions {
		if migrations[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_core.sql" {
		t.Errorf("expected name 001_core.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE doctors (id INT);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 2;")},
	}

	if _, err := NewMigrator(nil, files).LoadMigrations(); err == nil {
		t.Fatal("expected error for duplicate version")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := NewMigrator(nil, Migrations()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected embedded migrations")
	}
	if migrations[0].Version != 1 {
		t.Errorf("expected first version 1, got %d", migrations[0].Version)
	}

	sql := migrations[0].SQL
	for _, want := range []string{
		"slots_doctor_date_start_key",
		"appointments_active_slot_key",
		"CREATE TABLE IF NOT EXISTS schedule_templates",
		"CREATE TABLE IF NOT EXISTS doctor_leaves",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("expected initial migration to contain %q", want)
		}
	}

	if len(migrations) < 2 || migrations[1].Version != 2 {
		t.Fatalf("expected a second migration at version 2, got %d migrations", len(migrations))
	}
	for _, want := range []string{"held_since", "CHECK (end_at > start_at)"} {
		if !strings.Contains(migrations[1].SQL, want) {
			t.Errorf("expected hold limits migration to contain %q", want)
		}
	}
}

func TestMergeStatus(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	migrations := []Migration{{Version: 1, Name: "001_init.sql"}, {Version: 2, Name: "002_more.sql"}}

	statuses := mergeStatus(migrations, map[int]time.Time{1: at})
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected first migration applied at %s, got %+v", at, statuses[0])
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Errorf("expected second migration pending, got %+v", statuses[1])
	}
}

func TestWithTx_NoPool(t *testing.T) {
	called := false
	err := WithTx(context.Background(), nil, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error without a pool")
	}
	if called {
		t.Error("fn must not run without a transaction")
	}
}

func TestTxFromContext_Nil(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Error("expected no transaction on a bare context")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "slots_doctor_date_start_key"}

	if !IsUniqueViolation(pgErr, "slots_doctor_date_start_key") {
		t.Error("expected match on named constraint")
	}
	if !IsUniqueViolation(pgErr, "") {
		t.Error("expected match on any constraint")
	}
	if IsUniqueViolation(pgErr, "appointments_active_slot_key") {
		t.Error("did not expect match on another constraint")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("did not expect match on foreign key violation")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Error("did not expect match on plain error")
	}
}
