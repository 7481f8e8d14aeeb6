package resolver

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"romshelf/internal/catalogue/migrations"
	"romshelf/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	if err := migrations.Up(db); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedDat(t *testing.T, db *sql.DB) {
	t.Helper()
	now := time.Now()
	mustExec(t, db, `INSERT INTO dats (name, format, file_path, file_sha1, file_size, file_mod) VALUES ('D','logiqx','/d.dat','dsha1',1,?)`, now)
	mustExec(t, db, `INSERT INTO dat_versions (dat_id, loaded_at, entry_count) VALUES (1, ?, 3)`, now)
	mustExec(t, db, `INSERT INTO sets (dat_version_id, name) VALUES (1, 'Set')`)
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) int64 {
	t.Helper()
	res, err := db.Exec(query, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
	id, _ := res.LastInsertId()
	return id
}

func insertFile(t *testing.T, db *sql.DB, f model.ScannedFile) model.ScannedFile {
	t.Helper()
	id := mustExec(t, db, `INSERT INTO files (path, filename, size, mod_time, crc32, md5, sha1) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.Path, f.Filename, f.Size, time.Now(), f.CRC32, f.MD5, f.SHA1)
	f.ID = id
	return f
}

func TestResolve_SHA1Priority(t *testing.T) {
	db := openTestDB(t)
	seedDat(t, db)
	mustExec(t, db, `INSERT INTO dat_entries (dat_version_id, set_id, name, size, sha1) VALUES (1, 1, 'game.rom', 100, 'sha1match')`)

	f := insertFile(t, db, model.ScannedFile{Path: "/roms/game.rom", Filename: "game.rom", Size: 100, SHA1: "sha1match"})

	tx, _ := db.Begin()
	m, err := Resolve(context.Background(), tx, f)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	tx.Commit()

	if m == nil {
		t.Fatal("Resolve() = nil, want a match")
	}
	if !m.NameCorrect {
		t.Error("NameCorrect = false, want true (filenames match)")
	}
}

func TestResolve_FallsBackToCRC32WhenNoSHA1Match(t *testing.T) {
	db := openTestDB(t)
	seedDat(t, db)
	mustExec(t, db, `INSERT INTO dat_entries (dat_version_id, set_id, name, size, crc32) VALUES (1, 1, 'other.rom', 50, 'crcmatch')`)

	f := insertFile(t, db, model.ScannedFile{Path: "/roms/file.rom", Filename: "file.rom", Size: 50, CRC32: "crcmatch"})

	tx, _ := db.Begin()
	m, err := Resolve(context.Background(), tx, f)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	tx.Commit()

	if m == nil {
		t.Fatal("Resolve() = nil, want a match via CRC32 fallback")
	}
	if m.NameCorrect {
		t.Error("NameCorrect = true, want false (filenames differ)")
	}
}

func TestResolve_NoCandidates_NoMatch(t *testing.T) {
	db := openTestDB(t)
	seedDat(t, db)
	f := insertFile(t, db, model.ScannedFile{Path: "/roms/nope.rom", Filename: "nope.rom", Size: 999, SHA1: "unknown"})

	tx, _ := db.Begin()
	m, err := Resolve(context.Background(), tx, f)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	tx.Commit()

	if m != nil {
		t.Fatalf("Resolve() = %+v, want nil", m)
	}
}

func TestResolve_TieBreak_PrefersNameMatchThenLowestID(t *testing.T) {
	db := openTestDB(t)
	seedDat(t, db)
	mustExec(t, db, `INSERT INTO dat_entries (dat_version_id, set_id, name, size, crc32) VALUES (1, 1, 'wrong.rom', 10, 'dupcrc')`)
	mustExec(t, db, `INSERT INTO dat_entries (dat_version_id, set_id, name, size, crc32) VALUES (1, 1, 'right.rom', 10, 'dupcrc')`)

	f := insertFile(t, db, model.ScannedFile{Path: "/roms/right.rom", Filename: "right.rom", Size: 10, CRC32: "dupcrc"})

	tx, _ := db.Begin()
	m, err := Resolve(context.Background(), tx, f)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	tx.Commit()

	if m == nil || !m.NameCorrect {
		t.Fatalf("Resolve() = %+v, want name-correct match against right.rom", m)
	}
}

func TestResolve_Idempotent_ReplacesPriorMatch(t *testing.T) {
	db := openTestDB(t)
	seedDat(t, db)
	mustExec(t, db, `INSERT INTO dat_entries (dat_version_id, set_id, name, size, sha1) VALUES (1, 1, 'game.rom', 100, 'sha1a')`)

	f := insertFile(t, db, model.ScannedFile{Path: "/roms/game.rom", Filename: "game.rom", Size: 100, SHA1: "sha1a"})

	tx, _ := db.Begin()
	first, err := Resolve(context.Background(), tx, f)
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	tx.Commit()

	tx, _ = db.Begin()
	second, err := Resolve(context.Background(), tx, f)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	tx.Commit()

	if first == nil || second == nil {
		t.Fatal("expected both resolutions to produce a match")
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM matches WHERE file_id = ?`, f.ID).Scan(&count)
	if count != 1 {
		t.Errorf("got %d matches for file, want exactly 1 after re-resolution", count)
	}
}
