package rollup

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"romshelf/internal/catalogue/migrations"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enabling foreign keys: %v", err)
	}
	if err := migrations.Up(db); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func dirCounters(t *testing.T, db *sql.DB, path string) (fileCount, matchedCount, totalSize int64) {
	t.Helper()
	err := db.QueryRow(`SELECT file_count, matched_count, total_size FROM directories WHERE path = ?`, path).
		Scan(&fileCount, &matchedCount, &totalSize)
	if err != nil {
		t.Fatalf("querying directory %s: %v", path, err)
	}
	return
}

func TestInsertFile_PropagatesToAncestors(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := InsertFile(ctx, tx, "/roms/snes/game.zip", 1024); err != nil {
		t.Fatalf("InsertFile() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fc, _, size := dirCounters(t, db, "/roms/snes")
	if fc != 1 || size != 1024 {
		t.Errorf("/roms/snes counters = (%d, %d), want (1, 1024)", fc, size)
	}
	fc, _, size = dirCounters(t, db, "/roms")
	if fc != 1 || size != 1024 {
		t.Errorf("/roms counters = (%d, %d), want (1, 1024)", fc, size)
	}
}

func TestInsertMatch_IncrementsMatchedCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, _ := db.BeginTx(ctx, nil)
	if err := InsertFile(ctx, tx, "/roms/snes/game.zip", 10); err != nil {
		t.Fatalf("InsertFile() error = %v", err)
	}
	if err := InsertMatch(ctx, tx, "/roms/snes/game.zip"); err != nil {
		t.Fatalf("InsertMatch() error = %v", err)
	}
	tx.Commit()

	_, mc, _ := dirCounters(t, db, "/roms/snes")
	if mc != 1 {
		t.Errorf("matched_count = %d, want 1", mc)
	}
	_, mc, _ = dirCounters(t, db, "/roms")
	if mc != 1 {
		t.Errorf("root matched_count = %d, want 1", mc)
	}
}

func TestDeleteFile_Decrements(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, _ := db.BeginTx(ctx, nil)
	InsertFile(ctx, tx, "/roms/snes/game.zip", 10)
	InsertFile(ctx, tx, "/roms/snes/other.zip", 20)
	tx.Commit()

	tx, _ = db.BeginTx(ctx, nil)
	if err := DeleteFile(ctx, tx, "/roms/snes/game.zip", 10); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	tx.Commit()

	fc, _, size := dirCounters(t, db, "/roms/snes")
	if fc != 1 || size != 20 {
		t.Errorf("/roms/snes counters = (%d, %d), want (1, 20)", fc, size)
	}
}

func TestArchiveMember_ContributesToArchiveDirectory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, _ := db.BeginTx(ctx, nil)
	if err := InsertFile(ctx, tx, "/roms/pack.zip//a.rom", 5); err != nil {
		t.Fatalf("InsertFile() error = %v", err)
	}
	tx.Commit()

	fc, _, _ := dirCounters(t, db, "/roms")
	if fc != 1 {
		t.Errorf("/roms file_count = %d, want 1 (archive member contributes to containing dir)", fc)
	}
}
